package blobstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"vidrepo/internal/config"
	"vidrepo/internal/services"
)

// Store holds binary asset payloads by key. Implementations own the bytes
// exclusively: callers get copies back from Get.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// Open builds the backend selected in cfg.
func Open(cfg *config.Config, logger *slog.Logger) (Store, error) {
	switch cfg.Storage.BlobBackend {
	case config.BlobBackendBadger:
		if cfg.Storage.BadgerInMemory {
			return OpenBadger(InMemoryBadgerConfig(logger))
		}
		bcfg := DefaultBadgerConfig()
		bcfg.Path = cfg.BlobDir()
		bcfg.Logger = logger
		return OpenBadger(bcfg)
	case config.BlobBackendFilesystem:
		return NewFilesystem(cfg.BlobDir())
	default:
		return nil, services.Wrap(services.ErrConfiguration, "blobstore", "open", fmt.Sprintf("unsupported backend %q", cfg.Storage.BlobBackend), nil)
	}
}

// AssetKey is the blob key for an asset payload.
func AssetKey(assetID int64) string {
	return fmt.Sprintf("asset/%d", assetID)
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return services.Wrap(services.ErrValidation, "blobstore", "key", "key must not be empty", nil)
	}
	if strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return services.Wrap(services.ErrValidation, "blobstore", "key", fmt.Sprintf("key %q is not allowed", key), nil)
	}
	return nil
}

func notFound(key string) error {
	return services.Wrap(services.ErrNotFound, "blobstore", "get", fmt.Sprintf("blob %q not found", key), nil)
}
