package content

import (
	"context"
	"fmt"

	"custody-go/internal/config"
	"custody-go/internal/custody"
)

// NewContentStoreFromConfig creates a ContentStore based on the content config type.
func NewContentStoreFromConfig(ctx context.Context, cfg config.ContentConfig) (custody.ContentStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem content store requires fs_root to be set")
		}
		return NewFileSystemStore(cfg.FSRoot)
	case "s3":
		return NewS3Store(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown content store type: %s", cfg.Type)
	}
}
