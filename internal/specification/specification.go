// Package specification resolves include/exclude rules against the filesystem.
package specification

import (
	"context"
	"errors"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

var ErrRuleMatchedNoFiles = errors.New("Rule matched no files")

// Entry is one matched path with the operation that finally applies to it.
type Entry struct {
	Path      string
	Directory string
	Operation domain.RuleOperation
	Reasons   []domain.RuleOperation
}

type FailedMatch struct {
	Rule    domain.Rule
	Path    string
	Failure error
}

// Specification is the resolved view of a rule set: which paths are included,
// which are excluded and which rules failed to match anything.
type Specification struct {
	Entries  map[string]Entry
	Failures []FailedMatch
}

func Empty() Specification {
	return Specification{Entries: map[string]Entry{}}
}

// New evaluates the rules against the filesystem. Rules sharing a directory
// are evaluated together by a single walk of that directory; rules are applied
// in order and an exclusion is never overridden by a later inclusion.
func New(ctx context.Context, rules []domain.Rule) (Specification, error) {
	spec := Empty()

	groups := make(map[string][]domain.Rule)
	for _, rule := range rules {
		directory := filepath.Clean(rule.Directory)
		groups[directory] = append(groups[directory], rule)
	}

	for _, directory := range slices.Sorted(maps.Keys(groups)) {
		group := groups[directory]
		slices.SortStableFunc(group, func(a, b domain.Rule) int { return a.ID - b.ID })

		result, err := walk(ctx, directory, group)
		switch {
		case err != nil && ctx.Err() != nil:
			return Specification{}, ctx.Err()
		case err != nil:
			for _, rule := range group {
				spec.Failures = append(spec.Failures, FailedMatch{Rule: rule, Path: directory, Failure: err})
			}
		default:
			spec.withMatches(group, result.matches, directory)
			for i, rule := range group {
				if len(result.matches[i]) == 0 {
					spec.Failures = append(spec.Failures, FailedMatch{Rule: rule, Path: directory, Failure: ErrRuleMatchedNoFiles})
				}
			}
			for _, path := range slices.Sorted(maps.Keys(result.failures)) {
				spec.Failures = append(spec.Failures, FailedMatch{Rule: group[0], Path: path, Failure: result.failures[path]})
			}
		}
	}

	spec.dropExcludedFailures(rules)

	return spec, nil
}

func (s *Specification) withMatches(group []domain.Rule, matches map[int][]string, directory string) {
	for i, rule := range group {
		for _, path := range matches[i] {
			entry, ok := s.Entries[path]
			if !ok {
				entry = Entry{Path: path, Directory: directory, Operation: rule.Operation}
			} else if entry.Operation != domain.RuleExclude {
				entry.Operation = rule.Operation
			}
			entry.Reasons = append(slices.Clone(entry.Reasons), rule.Operation)
			s.Entries[path] = entry
		}
	}
}

func (s *Specification) dropExcludedFailures(rules []domain.Rule) {
	var exclusions []domain.Rule
	for _, rule := range rules {
		if rule.Operation == domain.RuleExclude {
			exclusions = append(exclusions, rule)
		}
	}

	s.Failures = slices.DeleteFunc(s.Failures, func(failure FailedMatch) bool {
		for _, rule := range exclusions {
			relative, err := filepath.Rel(filepath.Clean(rule.Directory), failure.Path)
			if err != nil || relative == "." || strings.HasPrefix(relative, "..") {
				continue
			}
			if matchesRule(rule, filepath.ToSlash(relative)) {
				return true
			}
		}
		return false
	})
}

// Included returns the included entries together with every parent directory
// between them and their rule's directory, minus excluded paths, sorted.
func (s Specification) Included() []string {
	excluded := make(map[string]struct{})
	for _, path := range s.Excluded() {
		excluded[path] = struct{}{}
	}

	included := make(map[string]struct{})
	for _, entry := range s.Entries {
		if entry.Operation != domain.RuleInclude {
			continue
		}
		included[entry.Path] = struct{}{}
		for _, parent := range RelativeParents(entry.Directory, entry.Path) {
			included[parent] = struct{}{}
		}
	}

	for path := range excluded {
		delete(included, path)
	}

	return slices.Sorted(maps.Keys(included))
}

func (s Specification) Excluded() []string {
	var excluded []string
	for path, entry := range s.Entries {
		if entry.Operation == domain.RuleExclude {
			excluded = append(excluded, path)
		}
	}
	slices.Sort(excluded)
	return excluded
}

func (s Specification) Unmatched() []domain.RuleFailure {
	unmatched := make([]domain.RuleFailure, 0, len(s.Failures))
	for _, failure := range s.Failures {
		unmatched = append(unmatched, domain.RuleFailure{Rule: failure.Rule, Failure: failure.Failure})
	}
	return unmatched
}

// RelativeParents lists the parents of path up to and including from. Paths
// outside of from have no relative parents.
func RelativeParents(from, path string) []string {
	from = filepath.Clean(from)
	path = filepath.Clean(path)

	relative, err := filepath.Rel(from, path)
	if err != nil || relative == "." || strings.HasPrefix(relative, "..") {
		return nil
	}

	var parents []string
	for current := path; current != from; {
		current = filepath.Dir(current)
		parents = append(parents, current)
	}
	return parents
}
