package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sndnv/stasis-sub000/internal/domain"
	"github.com/sndnv/stasis-sub000/internal/usecase"
	"github.com/sndnv/stasis-sub000/internal/usecase/datasets"
)

// Tracker receives the progress events of backup operations.
type Tracker interface {
	Started(op domain.OperationID, definition domain.DatasetDefinitionID)
	EntityDiscovered(op domain.OperationID, path string)
	SpecificationProcessed(op domain.OperationID, unmatched []domain.RuleFailure)
	EntityExamined(op domain.OperationID, path string, metadataChanged, contentChanged bool)
	EntitySkipped(op domain.OperationID, path string)
	EntityCollected(op domain.OperationID, entity domain.SourceEntity)
	EntityProcessingStarted(op domain.OperationID, path string, expectedParts int)
	EntityPartProcessed(op domain.OperationID, path string)
	EntityProcessed(op domain.OperationID, path string, result domain.EntityResult)
	MetadataCollected(op domain.OperationID)
	MetadataPushed(op domain.OperationID, entry domain.DatasetEntryID)
	EntityFailed(op domain.OperationID, path string, err error)
	FailureEncountered(op domain.OperationID, err error)
	Completed(op domain.OperationID)
}

// Backup runs a complete backup of one dataset definition.
type Backup struct {
	api       domain.APIClient
	loader    *datasets.Loader
	codec     *datasets.Codec
	extractor Extractor
	providers Providers
	limits    Limits
	tracker   Tracker
	logger    usecase.Logger
}

func NewBackup(
	api domain.APIClient,
	loader *datasets.Loader,
	codec *datasets.Codec,
	extractor Extractor,
	providers Providers,
	limits Limits,
	tracker Tracker,
	logger usecase.Logger,
) *Backup {
	return &Backup{
		api:       api,
		loader:    loader,
		codec:     codec,
		extractor: extractor,
		providers: providers,
		limits:    limits,
		tracker:   tracker,
		logger:    logger,
	}
}

// Execute backs up the entities selected by the descriptor and returns the
// created dataset entry. Failures are recorded on the tracker and complete
// the operation; a cancelled operation is never completed.
func (uc *Backup) Execute(
	ctx context.Context,
	op domain.OperationID,
	definition domain.DatasetDefinitionID,
	descriptor Descriptor,
) (domain.DatasetEntryID, error) {
	start := time.Now()
	uc.logger.Infof("[%s] Starting backup of definition [%s]...", op, definition)
	uc.tracker.Started(op, definition)

	entry, err := uc.run(ctx, op, definition, descriptor)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			uc.logger.Warnf("[%s] Backup cancelled", op)
			return uuid.Nil, err
		}

		uc.logger.Errorf("[%s] Backup failed: %v", op, err)
		uc.tracker.FailureEncountered(op, err)
		uc.tracker.Completed(op)
		return uuid.Nil, err
	}

	uc.tracker.Completed(op)
	uc.logger.Infof("[%s] Backup completed in %v, entry: %s", op, time.Since(start).Round(time.Millisecond), entry)

	return entry, nil
}

func (uc *Backup) run(
	ctx context.Context,
	op domain.OperationID,
	id domain.DatasetDefinitionID,
	descriptor Descriptor,
) (domain.DatasetEntryID, error) {
	definition, err := uc.api.DatasetDefinition(ctx, id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to retrieve definition: %w", err)
	}

	history, err := uc.loader.History(ctx, id, nil)
	if err != nil {
		return uuid.Nil, err
	}

	prior, err := history.LatestMetadata(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to retrieve latest metadata: %w", err)
	}

	collector, err := NewDiscovery(uc.tracker, uc.logger).Discover(ctx, op, descriptor.ForDefinition(id))
	if err != nil {
		return uuid.Nil, err
	}

	entities := NewCollection(uc.extractor, history, uc.tracker, uc.logger).Collect(ctx, op, collector)

	processing := NewProcessing(uc.providers, uc.api.Device(), definition.RedundantCopies, uc.limits, uc.tracker, uc.logger)
	results := processing.Process(ctx, op, entities)

	metadata, err := NewMetadataCollection(uc.tracker).Collect(ctx, op, prior, results)
	if err != nil {
		return uuid.Nil, err
	}

	push := NewMetadataPush(uc.api, uc.providers.Core, uc.codec, definition.RedundantCopies, uc.tracker, uc.logger)
	return push.Push(ctx, op, id, metadata)
}
