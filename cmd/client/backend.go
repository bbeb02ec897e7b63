package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/openmined/syncmirror/internal/client/auth"
	"github.com/openmined/syncmirror/internal/client/config"
	"github.com/openmined/syncmirror/internal/remote"
	"github.com/openmined/syncmirror/internal/remote/dirstore"
	"github.com/openmined/syncmirror/internal/remote/httpstore"
	"github.com/openmined/syncmirror/internal/remote/miniostore"
	"github.com/openmined/syncmirror/internal/remote/s3store"
)

// backend is an opened remote store plus what it needs to stay usable.
type backend struct {
	store       remote.Store
	credentials remote.CredentialSupplier
	closer      io.Closer
}

func (b *backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	slog.Debug("open backend", "backend", cfg.Backend)

	switch cfg.Backend {
	case config.BackendDir:
		store, err := dirstore.Open(cfg.Dir.Path)
		if err != nil {
			return nil, fmt.Errorf("dir backend: %w", err)
		}
		return &backend{store: store, closer: store}, nil

	case config.BackendS3:
		store, err := s3store.NewWithConfig(ctx, &s3store.Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 backend: %w", err)
		}
		return &backend{store: store}, nil

	case config.BackendMinio:
		store, err := miniostore.NewWithConfig(&miniostore.Config{
			Endpoint:  cfg.Minio.Endpoint,
			Bucket:    cfg.Minio.Bucket,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Secure:    cfg.Minio.Secure,
		})
		if err != nil {
			return nil, fmt.Errorf("minio backend: %w", err)
		}
		return &backend{store: store}, nil

	case config.BackendHTTP:
		tokens := auth.NewTokenManager(cfg.HTTP.ServerURL, cfg.HTTP.TokenFile)
		if err := tokens.Load(); err != nil {
			return nil, fmt.Errorf("http backend: %w", err)
		}
		return &backend{
			store:       httpstore.New(cfg.HTTP.ServerURL, tokens),
			credentials: tokens,
		}, nil
	}

	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}
