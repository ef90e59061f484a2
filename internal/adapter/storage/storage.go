// Package storage contains the crate stores backing the core client.
package storage

import (
	"errors"
	"fmt"

	"github.com/sndnv/stasis-sub000/internal/config"
	"github.com/sndnv/stasis-sub000/internal/domain"
)

// ErrNotFound is returned by Download when the requested object does not exist.
var ErrNotFound = errors.New("object not found")

// New creates the store described by cfg.
func New(cfg *config.StoreConfig) (domain.Storage, error) {
	switch cfg.Type {
	case "local":
		return NewLocal(cfg.Path)
	case "s3":
		return NewS3(cfg)
	case "minio":
		return NewMinio(cfg)
	case "gdrive":
		return NewGDrive(cfg)
	default:
		return nil, fmt.Errorf("unsupported store type [%s]", cfg.Type)
	}
}
