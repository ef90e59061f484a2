package backup

import (
	"bytes"
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"

	"github.com/sndnv/stasis-sub000/internal/domain"
	"github.com/sndnv/stasis-sub000/internal/usecase"
)

type MetadataCollection struct {
	tracker Tracker
}

func NewMetadataCollection(tracker Tracker) *MetadataCollection {
	return &MetadataCollection{tracker: tracker}
}

// Collect folds the processing results into the dataset metadata of a new
// entry. Without a prior snapshot the filesystem ledger is a bootstrap list.
func (uc *MetadataCollection) Collect(
	ctx context.Context,
	op domain.OperationID,
	prior *domain.DatasetMetadata,
	results iter.Seq2[domain.EntityResult, error],
) (domain.DatasetMetadata, error) {
	metadata := domain.EmptyDatasetMetadata()
	var changes []string

	for result, err := range results {
		if err != nil {
			return domain.DatasetMetadata{}, err
		}
		if err := ctx.Err(); err != nil {
			return domain.DatasetMetadata{}, err
		}

		entity := result.Metadata()
		switch result.(type) {
		case domain.ContentChanged:
			metadata.ContentChanged[entity.Path] = entity
		case domain.MetadataChanged:
			metadata.MetadataChanged[entity.Path] = entity
		}
		changes = append(changes, entity.Path)
	}

	metadata.Filesystem = domain.NewFilesystemMetadata(prior, changes)
	uc.tracker.MetadataCollected(op)

	return metadata, nil
}

type MetadataPush struct {
	api     domain.APIClient
	core    domain.CoreClient
	encoder Encoder
	copies  int
	tracker Tracker
	logger  usecase.Logger
}

type Encoder interface {
	Encode(metadata domain.DatasetMetadata, crate domain.CrateID) ([]byte, error)
}

func NewMetadataPush(
	api domain.APIClient,
	core domain.CoreClient,
	encoder Encoder,
	copies int,
	tracker Tracker,
	logger usecase.Logger,
) *MetadataPush {
	return &MetadataPush{api: api, core: core, encoder: encoder, copies: copies, tracker: tracker, logger: logger}
}

// Push stores the metadata as a new crate and creates the dataset entry
// referencing it and every content crate.
func (uc *MetadataPush) Push(
	ctx context.Context,
	op domain.OperationID,
	definition domain.DatasetDefinitionID,
	metadata domain.DatasetMetadata,
) (domain.DatasetEntryID, error) {
	crate := uuid.New()

	content, err := uc.encoder.Encode(metadata, crate)
	if err != nil {
		return uuid.Nil, err
	}

	device := uc.api.Device()
	manifest := domain.Manifest{
		Crate:  crate,
		Origin: device,
		Source: device,
		Size:   int64(len(content)),
		Copies: uc.copies,
	}

	reservation, err := uc.core.Reserve(ctx, manifest)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to reserve storage for metadata: %w", err)
	}

	if err := uc.core.Push(ctx, manifest, bytes.NewReader(content), reservation.ID); err != nil {
		return uuid.Nil, fmt.Errorf("failed to push metadata: %w", err)
	}

	entry, err := uc.api.CreateDatasetEntry(ctx, domain.CreateDatasetEntry{
		Definition: definition,
		Device:     device,
		Data:       metadata.ContentCrates(),
		Metadata:   crate,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create dataset entry: %w", err)
	}

	uc.logger.Infof("[%s] Created entry [%s] with metadata crate [%s]", op, entry, crate)
	uc.tracker.MetadataPushed(op, entry)

	return entry, nil
}
