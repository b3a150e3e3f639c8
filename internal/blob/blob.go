package blob

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// File describes an object handed to a Store. Name is the stable identifier
// (the upstream external id) that deletion later relies on.
type File struct {
	Path   string
	Name   string
	Ext    string
	Mime   string
	Hash   string
	Buffer []byte
}

// Key returns the object key relative to the store root, e.g. "facebook-feed/123_456.webp".
func (f *File) Key() string {
	return path.Join(f.Path, f.Name+f.Ext)
}

func (f *File) validate() error {
	if f.Name == "" {
		return fmt.Errorf("blob name is required")
	}
	for _, part := range []string{f.Path, f.Name, f.Ext} {
		if strings.Contains(part, "..") || strings.ContainsAny(part, `\`) {
			return fmt.Errorf("invalid blob key component %q", part)
		}
	}
	if strings.Contains(f.Name, "/") || strings.Contains(f.Ext, "/") {
		return fmt.Errorf("invalid blob name %q", f.Name+f.Ext)
	}
	return nil
}

// Store persists encoded media. Upload returns the public URL of the object,
// either absolute or relative to the service's own base URL.
type Store interface {
	Upload(ctx context.Context, f *File) (string, error)
	Delete(ctx context.Context, f *File) error
}
