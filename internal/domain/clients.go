package domain

import (
	"context"
	"io"
	"time"
)

// APIClient is the subset of the server API used by backup and recovery operations.
type APIClient interface {
	DatasetDefinitions(ctx context.Context) ([]DatasetDefinition, error)
	DatasetDefinition(ctx context.Context, id DatasetDefinitionID) (DatasetDefinition, error)
	CreateDatasetDefinition(ctx context.Context, request CreateDatasetDefinition) (DatasetDefinitionID, error)
	DatasetEntries(ctx context.Context, definition DatasetDefinitionID) ([]DatasetEntry, error)
	DatasetEntry(ctx context.Context, id DatasetEntryID) (DatasetEntry, error)
	LatestEntry(ctx context.Context, definition DatasetDefinitionID, until *time.Time) (*DatasetEntry, error)
	CreateDatasetEntry(ctx context.Context, request CreateDatasetEntry) (DatasetEntryID, error)
	PublicSchedules(ctx context.Context) ([]Schedule, error)
	Ping(ctx context.Context) error
	Device() DeviceID
	Server() string
}

// CoreClient stores and retrieves crates. Pull returns a nil reader and a nil
// error when the crate does not exist.
type CoreClient interface {
	Reserve(ctx context.Context, manifest Manifest) (StorageReservation, error)
	Push(ctx context.Context, manifest Manifest, content io.Reader, reservation ReservationID) error
	Pull(ctx context.Context, crate CrateID) (io.ReadCloser, error)
}

// Storage is a crate store backing the core client.
type Storage interface {
	Upload(ctx context.Context, name string, content io.Reader, size int64) error
	Download(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
	GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error)
}
