package blob

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// PublicPrefix is the URL path under which the filesystem store is served.
const PublicPrefix = "/uploads"

// FileSystemStore keeps blobs as files under a root directory:
//
//	<root>/
//	  <path>/
//	    <name><ext>
type FileSystemStore struct {
	root string
}

// NewFileSystemStore creates the root directory if needed.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create blob root: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

// Root returns the directory served under PublicPrefix.
func (s *FileSystemStore) Root() string {
	return s.root
}

func (s *FileSystemStore) Upload(ctx context.Context, f *File) (string, error) {
	if err := f.validate(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dest := filepath.Join(s.root, filepath.FromSlash(f.Key()))
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	_, err = tmp.Write(f.Buffer)
	closeErr := tmp.Close()
	if err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to write blob: %w", err)
	}
	if closeErr != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to close blob: %w", closeErr)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("failed to rename blob: %w", err)
	}

	return path.Join(PublicPrefix, f.Key()), nil
}

// Delete removes the blob. A missing file is not an error.
func (s *FileSystemStore) Delete(ctx context.Context, f *File) error {
	if err := f.validate(); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(f.Key())))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete blob: %w", err)
	}
	return nil
}
