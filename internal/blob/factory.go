package blob

import (
	"context"
	"fmt"

	"social_feed/internal/config"
)

// NewFromConfig creates a Store implementation based on the blob config type.
func NewFromConfig(ctx context.Context, cfg config.BlobConfig) (Store, error) {
	switch cfg.Type {
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem blob store requires root to be set")
		}
		return NewFileSystemStore(cfg.Root)
	case "s3":
		return NewS3Store(ctx, S3Config{
			Bucket:        cfg.S3Bucket,
			Prefix:        cfg.S3Prefix,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
	default:
		return nil, fmt.Errorf("unknown blob store type: %s", cfg.Type)
	}
}
