package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

func TestAggregator(t *testing.T) {
	Convey("Given an aggregator over all trackers", t, func() {
		backup := NewBackupTracker()
		recovery := NewRecoveryTracker()
		server := NewServerTracker()
		aggregator := NewAggregator(backup, recovery, server)
		defer func() {
			backup.Close()
			recovery.Close()
			server.Close()
			aggregator.Close()
		}()

		Convey("When a backup is running", func() {
			op := domain.NewOperationID()
			file := domain.EntityMetadata{Kind: domain.KindFile, Path: "/tmp/file/one"}

			backup.Started(op, domain.NewOperationID())
			for range 3 {
				backup.EntityDiscovered(op, "/tmp/file/one")
			}
			backup.SpecificationProcessed(op, nil)
			backup.EntityExamined(op, "/tmp/file/one", false, true)
			backup.EntityCollected(op, domain.SourceEntity{Path: "/tmp/file/one", Current: file})
			backup.EntityProcessed(op, "/tmp/file/one", domain.ContentChanged{Entity: file})
			backup.MetadataCollected(op)
			backup.MetadataPushed(op, domain.NewOperationID())
			backup.FailureEncountered(op, errors.New("test failure"))
			backup.Completed(op)

			So(eventually(func() bool {
				progress, ok := aggregator.State().Operations[op]
				return ok && progress.Completed != nil
			}), ShouldBeTrue)

			progress := aggregator.State().Operations[op]

			Convey("It should log every step per stage", func() {
				So(progress.Type, ShouldEqual, domain.OperationBackup)
				So(progress.Stages[StageDiscovery].Steps, ShouldHaveLength, 3)
				So(progress.Stages[StageSpecification].Steps, ShouldHaveLength, 1)
				So(progress.Stages[StageSpecification].Steps[0].Name, ShouldEqual, "processing")
				So(progress.Stages[StageExamination].Steps, ShouldHaveLength, 1)
				So(progress.Stages[StageCollection].Steps, ShouldHaveLength, 1)
				So(progress.Stages[StageProcessing].Steps[0].Name, ShouldEqual, "/tmp/file/one")

				metadata := progress.Stages[StageMetadata].Steps
				So(metadata, ShouldHaveLength, 2)
				So(metadata[0].Name, ShouldEqual, "collection")
				So(metadata[1].Name, ShouldEqual, "push")

				So(progress.Failures, ShouldResemble, []string{"Error: test failure"})
			})

			Convey("It should keep the tracker deduplicated", func() {
				state, _ := backup.StateOf(op)
				So(state.Entities.Discovered, ShouldHaveLength, 1)
			})
		})

		Convey("When rules are unmatched", func() {
			op := domain.NewOperationID()
			backup.SpecificationProcessed(op, []domain.RuleFailure{
				{Rule: domain.Rule{Operation: domain.RuleInclude, Directory: "/tmp/1", Pattern: "*"}, Failure: errors.New("x")},
				{Rule: domain.Rule{Operation: domain.RuleInclude, Directory: "/tmp/2", Pattern: "*"}, Failure: errors.New("y")},
			})

			So(eventually(func() bool {
				return len(aggregator.State().Operations[op].Failures) == 2
			}), ShouldBeTrue)

			Convey("It should record a failure per rule and no specification step", func() {
				progress := aggregator.State().Operations[op]
				So(progress.Failures, ShouldResemble, []string{
					"RuleMatchingFailure: Rule [+ /tmp/1 *] failed with [x]",
					"RuleMatchingFailure: Rule [+ /tmp/2 *] failed with [y]",
				})
				So(progress.Stages, ShouldNotContainKey, StageSpecification)
			})
		})

		Convey("When a recovery is running", func() {
			op := domain.NewOperationID()

			recovery.EntityExamined(op, "/tmp/file/one", false, true)
			recovery.EntityCollected(op, domain.TargetEntity{Path: "/tmp/file/one"})
			recovery.EntityProcessingStarted(op, "/tmp/file/one", 1)
			recovery.EntityPartProcessed(op, "/tmp/file/one")
			recovery.EntityProcessed(op, "/tmp/file/one")
			recovery.MetadataApplied(op, "/tmp/file/one")
			recovery.Completed(op)

			So(eventually(func() bool {
				progress, ok := aggregator.State().Operations[op]
				return ok && progress.Completed != nil
			}), ShouldBeTrue)

			Convey("It should use the recovery stages", func() {
				progress := aggregator.State().Operations[op]
				So(progress.Type, ShouldEqual, domain.OperationRecovery)
				So(progress.Stages, ShouldHaveLength, 4)
				So(progress.Stages, ShouldContainKey, StageMetadataApplied)
				So(progress.Failures, ShouldBeEmpty)
			})
		})

		Convey("When server state changes", func() {
			server.Reachable("primary")
			server.Unreachable("secondary")

			Convey("It should expose the servers", func() {
				So(eventually(func() bool {
					servers := aggregator.State().Servers
					return len(servers) == 2 && servers["primary"].Reachable && !servers["secondary"].Reachable
				}), ShouldBeTrue)
			})
		})

		Convey("When observing a single operation", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			op := domain.NewOperationID()
			updates := aggregator.OperationUpdates(ctx, op)

			backup.EntityDiscovered(domain.NewOperationID(), "/tmp/other")
			backup.EntityDiscovered(op, "/tmp/file/one")

			Convey("It should only deliver that operation", func() {
				select {
				case progress := <-updates:
					So(progress.Stages[StageDiscovery].Steps[0].Name, ShouldEqual, "/tmp/file/one")
				case <-time.After(waitFor):
					So("missing update", ShouldBeEmpty)
				}
			})
		})

		Convey("When subscribing to the aggregate", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			updates := aggregator.Subscribe(ctx)

			Convey("It should deliver the current state first", func() {
				initial := <-updates
				So(initial.Operations, ShouldBeEmpty)
				So(initial.Servers, ShouldBeEmpty)
			})
		})
	})
}
