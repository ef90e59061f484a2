package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sndnv/stasis-sub000/internal/domain"
	"github.com/sndnv/stasis-sub000/internal/usecase"
	"github.com/sndnv/stasis-sub000/internal/usecase/datasets"
)

// Tracker receives the progress events of recovery operations.
type Tracker interface {
	Started(op domain.OperationID)
	EntityExamined(op domain.OperationID, path string, metadataChanged, contentChanged bool)
	EntityCollected(op domain.OperationID, entity domain.TargetEntity)
	EntityProcessingStarted(op domain.OperationID, path string, expectedParts int)
	EntityPartProcessed(op domain.OperationID, path string)
	EntityProcessed(op domain.OperationID, path string)
	MetadataApplied(op domain.OperationID, path string)
	EntityFailed(op domain.OperationID, path string, err error)
	FailureEncountered(op domain.OperationID, err error)
	Completed(op domain.OperationID)
}

type Recovery struct {
	loader    *datasets.Loader
	extractor Extractor
	providers Providers
	apply     Applier
	tracker   Tracker
	logger    usecase.Logger
}

func NewRecovery(
	loader *datasets.Loader,
	extractor Extractor,
	providers Providers,
	apply Applier,
	tracker Tracker,
	logger usecase.Logger,
) *Recovery {
	return &Recovery{
		loader:    loader,
		extractor: extractor,
		providers: providers,
		apply:     apply,
		tracker:   tracker,
		logger:    logger,
	}
}

// Execute recovers the entities selected by the descriptor. Failures are
// recorded on the tracker and complete the operation; a cancelled operation
// is never completed.
func (uc *Recovery) Execute(ctx context.Context, op domain.OperationID, descriptor Descriptor) error {
	start := time.Now()
	uc.logger.Infof("[%s] Starting recovery...", op)
	uc.tracker.Started(op)

	if err := uc.run(ctx, op, descriptor); err != nil {
		if errors.Is(err, context.Canceled) {
			uc.logger.Warnf("[%s] Recovery cancelled", op)
			return err
		}

		uc.logger.Errorf("[%s] Recovery failed: %v", op, err)
		uc.tracker.FailureEncountered(op, err)
		uc.tracker.Completed(op)
		return err
	}

	uc.tracker.Completed(op)
	uc.logger.Infof("[%s] Recovery completed in %v", op, time.Since(start).Round(time.Millisecond))

	return nil
}

func (uc *Recovery) run(ctx context.Context, op domain.OperationID, descriptor Descriptor) error {
	if err := descriptor.Validate(); err != nil {
		return err
	}

	history, err := uc.history(ctx, descriptor)
	if err != nil {
		return err
	}

	latest := history.Latest()
	if latest == nil {
		return fmt.Errorf("no entry found for definition [%s]", *descriptor.Definition)
	}
	uc.logger.Debugf("[%s] Recovering from entry [%s]", op, latest.ID)

	entities, err := history.Entities(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve entities: %w", err)
	}

	targets := NewCollection(uc.extractor, uc.tracker, uc.logger).Collect(ctx, op, entities, descriptor)
	recovered := NewProcessing(uc.providers, uc.tracker, uc.logger).Process(ctx, op, targets)

	return NewMetadataApplication(uc.apply, uc.tracker).Apply(ctx, op, recovered)
}

func (uc *Recovery) history(ctx context.Context, descriptor Descriptor) (*datasets.History, error) {
	if descriptor.Entry != nil {
		return uc.loader.HistoryOf(ctx, *descriptor.Entry)
	}
	return uc.loader.History(ctx, *descriptor.Definition, descriptor.Until)
}
