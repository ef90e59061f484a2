package backup

import (
	"context"
	"fmt"
	"iter"

	"github.com/sndnv/stasis-sub000/internal/domain"
	"github.com/sndnv/stasis-sub000/internal/usecase"
)

type Extractor interface {
	Extract(path string) (domain.EntityMetadata, error)
}

// Resolver looks up the latest known metadata of a path; nil means the path
// was never backed up.
type Resolver interface {
	Resolve(ctx context.Context, path string) (*domain.EntityMetadata, error)
}

type Collection struct {
	extractor Extractor
	resolver  Resolver
	tracker   Tracker
	logger    usecase.Logger
}

func NewCollection(extractor Extractor, resolver Resolver, tracker Tracker, logger usecase.Logger) *Collection {
	return &Collection{extractor: extractor, resolver: resolver, tracker: tracker, logger: logger}
}

// Collect compares every discovered entity with its latest known metadata
// and yields the changed ones. Entities whose metadata cannot be extracted
// are reported and dropped.
func (uc *Collection) Collect(ctx context.Context, op domain.OperationID, collector Collector) iter.Seq2[domain.SourceEntity, error] {
	return func(yield func(domain.SourceEntity, error) bool) {
		for path, err := range collector.Collect(ctx) {
			if err != nil {
				yield(domain.SourceEntity{}, err)
				return
			}

			entity, ok, err := uc.collect(ctx, op, path)
			if err != nil {
				yield(domain.SourceEntity{}, err)
				return
			}
			if !ok {
				continue
			}

			if !yield(entity, nil) {
				return
			}
		}
	}
}

func (uc *Collection) collect(ctx context.Context, op domain.OperationID, path string) (domain.SourceEntity, bool, error) {
	current, err := uc.extractor.Extract(path)
	if err != nil {
		uc.logger.Warnf("[%s] Failed to extract metadata of [%s]: %v", op, path, err)
		uc.tracker.EntityExamined(op, path, false, false)
		uc.tracker.FailureEncountered(op, fmt.Errorf("failed to examine [%s]: %w", path, err))
		return domain.SourceEntity{}, false, nil
	}

	existing, err := uc.resolver.Resolve(ctx, path)
	if err != nil {
		return domain.SourceEntity{}, false, err
	}

	entity := domain.SourceEntity{Path: path, Existing: existing, Current: current}
	uc.tracker.EntityExamined(op, path, entity.IsMetadataChanged(), entity.IsContentChanged())

	if !entity.IsChanged() {
		uc.tracker.EntitySkipped(op, path)
		return domain.SourceEntity{}, false, nil
	}

	if entity.IsMetadataChanged() {
		entity.Current.Crates = existing.Crates
		entity.Current.Compression = existing.Compression
	}

	uc.tracker.EntityCollected(op, entity)
	return entity, true, nil
}
