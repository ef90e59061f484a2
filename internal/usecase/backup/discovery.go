// Package backup implements the stages of a backup operation: discovery,
// collection, processing, metadata collection and metadata push.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"slices"

	"github.com/sndnv/stasis-sub000/internal/domain"
	"github.com/sndnv/stasis-sub000/internal/specification"
	"github.com/sndnv/stasis-sub000/internal/usecase"
)

// Descriptor selects the entities of a backup: either rules evaluated against
// the filesystem or an explicit list of paths.
type Descriptor struct {
	rules    []domain.Rule
	entities []string
}

func WithRules(rules []domain.Rule) Descriptor {
	return Descriptor{rules: rules}
}

func WithEntities(paths []string) Descriptor {
	return Descriptor{entities: paths}
}

// ForDefinition drops the rules scoped to other definitions.
func (d Descriptor) ForDefinition(definition domain.DatasetDefinitionID) Descriptor {
	if d.rules == nil {
		return d
	}

	rules := make([]domain.Rule, 0, len(d.rules))
	for _, rule := range d.rules {
		if rule.AppliesTo(definition) {
			rules = append(rules, rule)
		}
	}

	return Descriptor{rules: rules, entities: d.entities}
}

// Collector is a restartable source of discovered paths; every iteration
// walks the underlying paths again.
type Collector struct {
	op      domain.OperationID
	paths   func() []string
	tracker Tracker
}

func (c Collector) Collect(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, path := range c.paths() {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}

			c.tracker.EntityDiscovered(c.op, path)
			if !yield(path, nil) {
				return
			}
		}
	}
}

type Discovery struct {
	tracker Tracker
	logger  usecase.Logger
}

func NewDiscovery(tracker Tracker, logger usecase.Logger) *Discovery {
	return &Discovery{tracker: tracker, logger: logger}
}

// Discover creates the collector for the descriptor. Rule-based discovery
// evaluates the rules right away and reports the unmatched ones before
// returning.
func (uc *Discovery) Discover(ctx context.Context, op domain.OperationID, descriptor Descriptor) (Collector, error) {
	if descriptor.rules != nil {
		spec, err := specification.New(ctx, descriptor.rules)
		if err != nil {
			return Collector{}, fmt.Errorf("failed to process specification: %w", err)
		}

		unmatched := spec.Unmatched()
		for _, failure := range unmatched {
			uc.logger.Warnf("[%s] %s", op, failure)
		}
		uc.tracker.SpecificationProcessed(op, unmatched)

		included := spec.Included()
		uc.logger.Debugf("[%s] Specification included [%d] and excluded [%d] entities", op, len(included), len(spec.Excluded()))

		return Collector{op: op, paths: func() []string { return included }, tracker: uc.tracker}, nil
	}

	entities := slices.Clone(descriptor.entities)
	return Collector{op: op, paths: func() []string { return existing(entities) }, tracker: uc.tracker}, nil
}

func existing(paths []string) []string {
	result := make([]string, 0, len(paths))
	for _, path := range paths {
		if absolute, err := filepath.Abs(path); err == nil {
			path = absolute
		}
		if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		result = append(result, path)
	}
	return result
}
