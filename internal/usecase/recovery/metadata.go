package recovery

import (
	"context"
	"fmt"
	"iter"
	"path/filepath"
	"slices"
	"strings"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

// Applier restores the attributes of metadata onto the entity at path.
type Applier func(metadata domain.EntityMetadata, path string) error

type MetadataApplication struct {
	apply   Applier
	tracker Tracker
}

func NewMetadataApplication(apply Applier, tracker Tracker) *MetadataApplication {
	return &MetadataApplication{apply: apply, tracker: tracker}
}

// Apply restores the attributes of every recovered entity. Directories are
// handled last, deepest first, so that restoring their contents does not
// overwrite their modification times.
func (uc *MetadataApplication) Apply(
	ctx context.Context,
	op domain.OperationID,
	targets iter.Seq2[domain.TargetEntity, error],
) error {
	var files, directories []domain.TargetEntity

	for target, err := range targets {
		if err != nil {
			return err
		}

		if target.Existing.IsDirectory() {
			directories = append(directories, target)
		} else {
			files = append(files, target)
		}
	}

	slices.SortStableFunc(directories, func(a, b domain.TargetEntity) int {
		return depth(b.DestinationPath()) - depth(a.DestinationPath())
	})

	for _, target := range append(files, directories...) {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := uc.apply(target.Existing, target.DestinationPath()); err != nil {
			return fmt.Errorf("failed to apply metadata to [%s]: %w", target.DestinationPath(), err)
		}

		uc.tracker.MetadataApplied(op, target.Path)
	}

	return nil
}

func depth(path string) int {
	return strings.Count(filepath.Clean(path), string(filepath.Separator))
}
