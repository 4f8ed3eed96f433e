// Package storage keeps attachment contents in a local directory or an S3 bucket.
package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/erp/weclapp-migration/internal/infrastructure/config"
)

// ErrObjectNotFound is returned by Get for unknown keys
var ErrObjectNotFound = errors.New("object not found")

// BlobStorage stores attachment contents by key
type BlobStorage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// New returns the blob storage selected by cfg.Driver
func New(ctx context.Context, cfg *config.StorageConfig, logger *zap.Logger) (BlobStorage, error) {
	switch cfg.Driver {
	case "s3":
		s, err := NewS3BlobStorage(cfg, WithLogger(logger))
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "local", "":
		return NewLocalBlobStorage(cfg.BasePath)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
