package recovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"maps"
	"slices"

	"github.com/sndnv/stasis-sub000/internal/domain"
	"github.com/sndnv/stasis-sub000/internal/usecase"
)

type Extractor interface {
	Extract(path string) (domain.EntityMetadata, error)
}

type Collection struct {
	extractor Extractor
	tracker   Tracker
	logger    usecase.Logger
}

func NewCollection(extractor Extractor, tracker Tracker, logger usecase.Logger) *Collection {
	return &Collection{extractor: extractor, tracker: tracker, logger: logger}
}

// Collect compares the backed up entities selected by the descriptor with
// what is currently at their destination and yields the ones that need to
// be recovered, parents first.
func (uc *Collection) Collect(
	ctx context.Context,
	op domain.OperationID,
	entities map[string]domain.EntityMetadata,
	descriptor Descriptor,
) iter.Seq2[domain.TargetEntity, error] {
	return func(yield func(domain.TargetEntity, error) bool) {
		for _, path := range slices.Sorted(maps.Keys(entities)) {
			if err := ctx.Err(); err != nil {
				yield(domain.TargetEntity{}, err)
				return
			}

			if !descriptor.Matches(path) {
				continue
			}

			target := domain.TargetEntity{
				Path:        path,
				Destination: descriptor.Destination,
				Existing:    entities[path],
			}

			current, err := uc.extractor.Extract(target.DestinationPath())
			switch {
			case err == nil:
				target.Current = &current
			case errors.Is(err, fs.ErrNotExist):
			default:
				uc.logger.Warnf("[%s] Failed to extract metadata of [%s]: %v", op, target.DestinationPath(), err)
				uc.tracker.EntityExamined(op, path, false, false)
				uc.tracker.FailureEncountered(op, fmt.Errorf("failed to examine [%s]: %w", path, err))
				continue
			}

			contentChanged := target.HasContentChanged()
			uc.tracker.EntityExamined(op, path, !contentChanged && target.HasChanged(), contentChanged)

			if !target.HasChanged() {
				continue
			}

			uc.tracker.EntityCollected(op, target)
			if !yield(target, nil) {
				return
			}
		}
	}
}
