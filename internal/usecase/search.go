package usecase

import (
	"context"
	"fmt"
	"maps"
	"regexp"
	"slices"
	"time"

	"github.com/sndnv/stasis-sub000/internal/domain"
	"github.com/sndnv/stasis-sub000/internal/usecase/datasets"
)

// DefinitionMatches lists the paths of one definition matching a search.
// Entry is nil when the definition has no entries.
type DefinitionMatches struct {
	Definition   domain.DatasetDefinitionID
	Info         string
	Entry        *domain.DatasetEntryID
	EntryCreated *time.Time
	Matches      map[string]domain.EntityMetadata
}

type Search struct {
	api    domain.APIClient
	loader *datasets.Loader
	logger Logger
}

func NewSearch(api domain.APIClient, loader *datasets.Loader, logger Logger) *Search {
	return &Search{api: api, loader: loader, logger: logger}
}

// Execute matches query against every path known to the latest entry (as of
// until, when set) of every dataset definition.
func (uc *Search) Execute(ctx context.Context, query string, until *time.Time) ([]DefinitionMatches, error) {
	pattern, err := regexp.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("invalid search query [%s]: %w", query, err)
	}

	definitions, err := uc.api.DatasetDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve definitions: %w", err)
	}

	results := make([]DefinitionMatches, 0, len(definitions))
	for _, definition := range definitions {
		result, err := uc.search(ctx, definition, pattern, until)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	uc.logger.Debugf("Search for [%s] covered [%d] definition(s)", query, len(results))
	return results, nil
}

func (uc *Search) search(
	ctx context.Context,
	definition domain.DatasetDefinition,
	pattern *regexp.Regexp,
	until *time.Time,
) (DefinitionMatches, error) {
	result := DefinitionMatches{Definition: definition.ID, Info: definition.Info}

	history, err := uc.loader.History(ctx, definition.ID, until)
	if err != nil {
		return DefinitionMatches{}, err
	}

	latest := history.Latest()
	if latest == nil {
		return result, nil
	}

	entities, err := history.Entities(ctx)
	if err != nil {
		return DefinitionMatches{}, fmt.Errorf("failed to search definition [%s]: %w", definition.ID, err)
	}

	result.Entry = &latest.ID
	result.EntryCreated = &latest.Created
	result.Matches = make(map[string]domain.EntityMetadata)
	for _, path := range slices.Sorted(maps.Keys(entities)) {
		if pattern.MatchString(path) {
			result.Matches[path] = entities[path]
		}
	}

	return result, nil
}
