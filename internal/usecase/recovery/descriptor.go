// Package recovery restores entities from the dataset entries of a definition.
package recovery

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

// Descriptor selects what to recover: the state of a definition as of an
// optional point in time, or the state captured by one specific entry.
type Descriptor struct {
	Definition  *domain.DatasetDefinitionID
	Until       *time.Time
	Entry       *domain.DatasetEntryID
	Query       *PathQuery
	Destination domain.Destination
}

func ForDefinition(definition domain.DatasetDefinitionID, until *time.Time) Descriptor {
	return Descriptor{Definition: &definition, Until: until}
}

func ForEntry(entry domain.DatasetEntryID) Descriptor {
	return Descriptor{Entry: &entry}
}

func (d Descriptor) WithQuery(query PathQuery) Descriptor {
	d.Query = &query
	return d
}

func (d Descriptor) WithDestination(destination domain.Destination) Descriptor {
	d.Destination = destination
	return d
}

func (d Descriptor) Validate() error {
	switch {
	case d.Definition == nil && d.Entry == nil:
		return fmt.Errorf("either a definition or an entry is required")
	case d.Definition != nil && d.Entry != nil:
		return fmt.Errorf("a definition and an entry cannot be recovered at the same time")
	case d.Entry != nil && d.Until != nil:
		return fmt.Errorf("a point in time can only be used with a definition")
	}
	return nil
}

func (d Descriptor) Matches(path string) bool {
	return d.Query == nil || d.Query.Matches(path)
}

// PathQuery matches entity paths. Queries containing a path separator are
// matched against the full path, all others only against the file name.
type PathQuery struct {
	pattern *regexp.Regexp
	full    bool
}

func NewPathQuery(query string) (PathQuery, error) {
	pattern, err := regexp.Compile(query)
	if err != nil {
		return PathQuery{}, fmt.Errorf("invalid query [%s]: %w", query, err)
	}

	return PathQuery{pattern: pattern, full: strings.Contains(query, "/")}, nil
}

func (q PathQuery) Matches(path string) bool {
	if q.full {
		return q.pattern.MatchString(path)
	}
	return q.pattern.MatchString(filepath.Base(path))
}

func (q PathQuery) String() string {
	return q.pattern.String()
}
