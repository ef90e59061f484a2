package specification

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

// matches is keyed by the index of the rule in the walked group.
type walkResult struct {
	matches  map[int][]string
	failures map[string]error
}

// walk visits every entity below directory and records which rules match it.
// Patterns are matched against the slash-separated path relative to directory.
// Errors on sub-paths are collected; only a failure on directory itself aborts.
func walk(ctx context.Context, directory string, rules []domain.Rule) (walkResult, error) {
	result := walkResult{
		matches:  make(map[int][]string),
		failures: make(map[string]error),
	}

	err := filepath.WalkDir(directory, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == directory {
				return err
			}
			result.failures[path] = err
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if path == directory {
			return nil
		}

		relative, err := filepath.Rel(directory, path)
		if err != nil {
			result.failures[path] = err
			return nil
		}
		relative = filepath.ToSlash(relative)

		for i, rule := range rules {
			if matchesRule(rule, relative) {
				result.matches[i] = append(result.matches[i], path)
			}
		}

		return nil
	})

	return result, err
}

func matchesRule(rule domain.Rule, relative string) bool {
	return doublestar.MatchUnvalidated(rule.Pattern, relative)
}
