// Package storage selects the blob store that receives diagnostic artifacts.
// The concrete backends live in the local, memory, gcs and s3 subpackages.
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/JakeFAU/directory-crawler/internal/config"
	"github.com/JakeFAU/directory-crawler/internal/crawler"
	"github.com/JakeFAU/directory-crawler/internal/storage/gcs"
	"github.com/JakeFAU/directory-crawler/internal/storage/local"
	"github.com/JakeFAU/directory-crawler/internal/storage/memory"
	"github.com/JakeFAU/directory-crawler/internal/storage/s3"
)

// Open builds the backend named by cfg.Backend. The returned closer is never
// nil.
func Open(ctx context.Context, cfg config.DiagnosticsConfig, fsys afero.Fs) (crawler.BlobStore, io.Closer, error) {
	switch cfg.Backend {
	case "", "local":
		store, err := local.New(fsys, cfg.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("local blob store: %w", err)
		}
		return store, nopCloser{}, nil
	case "memory":
		return memory.NewBlobStore(), nopCloser{}, nil
	case "gcs":
		store, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, nil, fmt.Errorf("gcs blob store: %w", err)
		}
		return store, store, nil
	case "s3":
		store, err := s3.Open(ctx, s3.Config{
			Bucket:   cfg.Bucket,
			Prefix:   cfg.Prefix,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("s3 blob store: %w", err)
		}
		return store, nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported diagnostics backend %q", cfg.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
