package backup

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

func (f *fixture) backup() *Backup {
	return NewBackup(f.api, f.loader, f.codec, f.extractor, f.providers, Limits{MaxPartSize: 8, Parallelism: 2}, f.tracker, f.logger)
}

func TestMetadataCollection(t *testing.T) {
	ctx := context.Background()
	op := domain.NewOperationID()

	results := func(values ...domain.EntityResult) func(func(domain.EntityResult, error) bool) {
		return func(yield func(domain.EntityResult, error) bool) {
			for _, value := range values {
				if !yield(value, nil) {
					return
				}
			}
		}
	}

	file := domain.ContentChanged{Entity: domain.EntityMetadata{Kind: domain.KindFile, Path: "/tmp/a"}}
	attributes := domain.MetadataChanged{Entity: domain.EntityMetadata{Kind: domain.KindFile, Path: "/tmp/b"}}

	Convey("Given processing results", t, func() {
		tracker := newRecordingTracker()
		collection := NewMetadataCollection(tracker)

		Convey("When there is no prior snapshot", func() {
			metadata, err := collection.Collect(ctx, op, nil, results(file, attributes))
			So(err, ShouldBeNil)

			Convey("It should create a bootstrap ledger", func() {
				So(metadata.ContentChanged, ShouldContainKey, "/tmp/a")
				So(metadata.MetadataChanged, ShouldContainKey, "/tmp/b")
				So(metadata.Filesystem.IsBootstrap(), ShouldBeTrue)
				So(metadata.Filesystem.Changes(), ShouldResemble, []string{"/tmp/a", "/tmp/b"})
				So(tracker.metadataCollected, ShouldEqual, 1)
			})
		})

		Convey("When a prior snapshot knows some of the paths", func() {
			prior := domain.EmptyDatasetMetadata()
			prior.Filesystem = domain.BootstrapFilesystem([]string{"/tmp/b"})

			metadata, err := collection.Collect(ctx, op, &prior, results(file, attributes))
			So(err, ShouldBeNil)

			Convey("It should create an incremental ledger", func() {
				So(metadata.Filesystem.IsBootstrap(), ShouldBeFalse)
				So(metadata.Filesystem.Entities(), ShouldResemble, map[string]domain.EntityState{
					"/tmp/a": domain.EntityNew,
					"/tmp/b": domain.EntityUpdated,
				})
			})
		})

		Convey("When the results fail", func() {
			failing := func(yield func(domain.EntityResult, error) bool) {
				yield(nil, context.DeadlineExceeded)
			}

			_, err := collection.Collect(ctx, op, nil, failing)

			Convey("It should not collect anything", func() {
				So(err, ShouldEqual, context.DeadlineExceeded)
				So(tracker.metadataCollected, ShouldEqual, 0)
			})
		})
	})
}

func TestMetadataPush(t *testing.T) {
	ctx := context.Background()
	op := domain.NewOperationID()

	Convey("Given collected metadata", t, func() {
		f := newFixture(t)
		crate := uuid.New()

		metadata := domain.EmptyDatasetMetadata()
		metadata.ContentChanged["/tmp/a"] = domain.EntityMetadata{
			Kind:   domain.KindFile,
			Path:   "/tmp/a",
			Crates: []domain.CratePart{{Part: 0, Crate: crate}},
		}
		metadata.Filesystem = domain.BootstrapFilesystem([]string{"/tmp/a"})

		Convey("When it is pushed", func() {
			push := NewMetadataPush(f.api, f.core, f.codec, 1, f.tracker, f.logger)
			id, err := push.Push(ctx, op, f.definition, metadata)
			So(err, ShouldBeNil)

			Convey("It should create an entry referencing every crate", func() {
				entry, err := f.api.DatasetEntry(ctx, id)
				So(err, ShouldBeNil)
				So(entry.Definition, ShouldEqual, f.definition)
				So(entry.Data, ShouldResemble, []domain.CrateID{crate})
				So(f.tracker.pushed, ShouldResemble, []domain.DatasetEntryID{id})

				stored, err := f.loader.Metadata(ctx, entry)
				So(err, ShouldBeNil)
				So(stored.ContentChanged["/tmp/a"].Crates, ShouldResemble, metadata.ContentChanged["/tmp/a"].Crates)
			})
		})
	})
}

func TestBackup(t *testing.T) {
	ctx := context.Background()

	Convey("Given a definition and a directory to back up", t, func() {
		f := newFixture(t)
		root := t.TempDir()
		first := filepath.Join(root, "first.txt")
		second := filepath.Join(root, "second.txt")
		writeFile(first, "first file content")
		writeFile(second, "second file content")

		rules := WithRules([]domain.Rule{
			{ID: 1, Operation: domain.RuleInclude, Directory: root, Pattern: "*.txt"},
		})

		Convey("When the first backup runs", func() {
			op := domain.NewOperationID()
			id, err := f.backup().Execute(ctx, op, f.definition, rules)
			So(err, ShouldBeNil)

			Convey("It should store every entity with a bootstrap ledger", func() {
				entry, err := f.api.DatasetEntry(ctx, id)
				So(err, ShouldBeNil)

				metadata, err := f.loader.Metadata(ctx, entry)
				So(err, ShouldBeNil)
				So(metadata.Filesystem.IsBootstrap(), ShouldBeTrue)
				So(metadata.Filesystem.Changes(), ShouldResemble, []string{root, first, second})
				So(metadata.ContentChanged[first].Crates, ShouldHaveLength, 3)
				So(entry.Data, ShouldHaveLength, 6)

				So(f.tracker.started, ShouldResemble, []domain.DatasetDefinitionID{f.definition})
				So(f.tracker.metadataCollected, ShouldEqual, 1)
				So(f.tracker.pushed, ShouldResemble, []domain.DatasetEntryID{id})
				So(f.tracker.failures, ShouldBeEmpty)
				So(f.tracker.completed, ShouldEqual, 1)
			})

			Convey("When a file changes before the next backup", func() {
				writeFile(second, "second file content, updated")

				f.tracker = newRecordingTracker()
				next, err := f.backup().Execute(ctx, domain.NewOperationID(), f.definition, rules)
				So(err, ShouldBeNil)

				Convey("It should only store the changed file", func() {
					entry, err := f.api.DatasetEntry(ctx, next)
					So(err, ShouldBeNil)

					metadata, err := f.loader.Metadata(ctx, entry)
					So(err, ShouldBeNil)
					So(metadata.ContentChanged, ShouldContainKey, second)
					So(metadata.ContentChanged, ShouldNotContainKey, first)
					So(metadata.Filesystem.IsBootstrap(), ShouldBeFalse)
					So(metadata.Filesystem.Entities()[second], ShouldResemble, domain.EntityUpdated)

					So(f.tracker.skipped, ShouldContain, first)
					So(f.tracker.completed, ShouldEqual, 1)
				})
			})
		})

		Convey("When the definition does not exist", func() {
			_, err := f.backup().Execute(ctx, domain.NewOperationID(), uuid.New(), rules)

			Convey("It should record the failure and complete", func() {
				So(err, ShouldWrap, domain.ErrDefinitionNotFound)
				So(f.tracker.failures, ShouldHaveLength, 1)
				So(f.tracker.completed, ShouldEqual, 1)
			})
		})

		Convey("When the operation is cancelled", func() {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			_, err := f.backup().Execute(cancelled, domain.NewOperationID(), f.definition, rules)

			Convey("It should never complete", func() {
				So(err, ShouldNotBeNil)
				So(f.tracker.completed, ShouldEqual, 0)
			})
		})
	})
}
