package datasets

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

// Loader pulls and decodes metadata crates. Decoded snapshots are cached by
// crate id since entries are immutable.
type Loader struct {
	api   domain.APIClient
	core  domain.CoreClient
	codec *Codec

	mu    sync.Mutex
	cache map[domain.CrateID]domain.DatasetMetadata
}

func NewLoader(api domain.APIClient, core domain.CoreClient, codec *Codec) *Loader {
	return &Loader{
		api:   api,
		core:  core,
		codec: codec,
		cache: make(map[domain.CrateID]domain.DatasetMetadata),
	}
}

func (l *Loader) Metadata(ctx context.Context, entry domain.DatasetEntry) (domain.DatasetMetadata, error) {
	l.mu.Lock()
	cached, ok := l.cache[entry.Metadata]
	l.mu.Unlock()
	if ok {
		return cached, nil
	}

	content, err := l.core.Pull(ctx, entry.Metadata)
	if err != nil {
		return domain.DatasetMetadata{}, fmt.Errorf("failed to pull metadata of entry [%s]: %w", entry.ID, err)
	}
	if content == nil {
		return domain.DatasetMetadata{}, fmt.Errorf("%w: metadata crate [%s] of entry [%s] not found", domain.ErrCrateMissing, entry.Metadata, entry.ID)
	}
	defer content.Close()

	metadata, err := l.codec.Decode(content, entry.Metadata)
	if err != nil {
		return domain.DatasetMetadata{}, fmt.Errorf("failed to load metadata of entry [%s]: %w", entry.ID, err)
	}

	l.mu.Lock()
	l.cache[entry.Metadata] = metadata
	l.mu.Unlock()

	return metadata, nil
}

// History returns the entries of the definition created no later than until
// (when set), newest first.
func (l *Loader) History(ctx context.Context, definition domain.DatasetDefinitionID, until *time.Time) (*History, error) {
	entries, err := l.api.DatasetEntries(ctx, definition)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve entries of definition [%s]: %w", definition, err)
	}

	selected := make([]domain.DatasetEntry, 0, len(entries))
	for _, entry := range entries {
		if until == nil || !entry.Created.After(*until) {
			selected = append(selected, entry)
		}
	}

	slices.SortStableFunc(selected, func(a, b domain.DatasetEntry) int {
		return b.Created.Compare(a.Created)
	})

	return &History{loader: l, entries: selected}, nil
}

// HistoryOf returns the history ending with the given entry.
func (l *Loader) HistoryOf(ctx context.Context, entry domain.DatasetEntryID) (*History, error) {
	target, err := l.api.DatasetEntry(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve entry [%s]: %w", entry, err)
	}

	history, err := l.History(ctx, target.Definition, &target.Created)
	if err != nil {
		return nil, err
	}

	for i, candidate := range history.entries {
		if candidate.ID == target.ID {
			history.entries = history.entries[i:]
			break
		}
	}

	return history, nil
}

// History resolves entity metadata across a chain of entries. Every snapshot
// only records the paths that changed in it, so the latest metadata of a path
// lives in the newest snapshot whose ledger mentions it.
type History struct {
	loader  *Loader
	entries []domain.DatasetEntry
}

// Latest returns the newest entry of the history, if any.
func (h *History) Latest() *domain.DatasetEntry {
	if len(h.entries) == 0 {
		return nil
	}
	latest := h.entries[0]
	return &latest
}

// LatestMetadata returns the snapshot of the newest entry, or nil for an empty history.
func (h *History) LatestMetadata(ctx context.Context) (*domain.DatasetMetadata, error) {
	latest := h.Latest()
	if latest == nil {
		return nil, nil
	}

	metadata, err := h.loader.Metadata(ctx, *latest)
	if err != nil {
		return nil, err
	}

	return &metadata, nil
}

// Resolve returns the latest known metadata of path, or nil when no entry of
// the history recorded it.
func (h *History) Resolve(ctx context.Context, path string) (*domain.EntityMetadata, error) {
	for _, entry := range h.entries {
		metadata, err := h.loader.Metadata(ctx, entry)
		if err != nil {
			return nil, err
		}

		state, ok := metadata.Filesystem.StateOf(path)
		if !ok {
			if entity, found := metadata.Lookup(path); found {
				return &entity, nil
			}
			continue
		}

		entity, err := h.lookup(ctx, entry, metadata, path, state)
		if err != nil {
			return nil, err
		}
		return entity, nil
	}

	return nil, nil
}

// Entities resolves the metadata of every path known to the history.
func (h *History) Entities(ctx context.Context) (map[string]domain.EntityMetadata, error) {
	resolved := make(map[string]domain.EntityMetadata)

	for _, entry := range h.entries {
		metadata, err := h.loader.Metadata(ctx, entry)
		if err != nil {
			return nil, err
		}

		for _, path := range slices.Sorted(maps.Keys(metadata.KnownPaths())) {
			if _, ok := resolved[path]; ok {
				continue
			}

			state, ok := metadata.Filesystem.StateOf(path)
			if !ok {
				state = domain.EntityUpdated
			}

			entity, err := h.lookup(ctx, entry, metadata, path, state)
			if err != nil {
				return nil, err
			}
			if entity != nil {
				resolved[path] = *entity
			}
		}
	}

	return resolved, nil
}

func (h *History) lookup(
	ctx context.Context,
	entry domain.DatasetEntry,
	metadata domain.DatasetMetadata,
	path string,
	state domain.EntityState,
) (*domain.EntityMetadata, error) {
	if state.Kind == domain.StateExisting && state.Entry != nil && *state.Entry != entry.ID {
		for _, candidate := range h.entries {
			if candidate.ID != *state.Entry {
				continue
			}

			referenced, err := h.loader.Metadata(ctx, candidate)
			if err != nil {
				return nil, err
			}
			if entity, ok := referenced.Lookup(path); ok {
				return &entity, nil
			}
			return nil, nil
		}

		return nil, fmt.Errorf("entry [%s] referenced by [%s] in entry [%s] is not part of the history", *state.Entry, path, entry.ID)
	}

	if entity, ok := metadata.Lookup(path); ok {
		return &entity, nil
	}

	return nil, nil
}
