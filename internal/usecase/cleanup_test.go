package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"

	"github.com/sndnv/stasis-sub000/internal/adapter/staging"
)

type removedRecorder struct {
	mu      sync.Mutex
	removed []int
}

func (r *removedRecorder) StagingFilesRemoved(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, count)
}

// namedStore only supports listing by name.
type namedStore struct {
	mu      sync.Mutex
	files   []string
	deleted []string
}

func (s *namedStore) List(context.Context) ([]string, error) {
	return s.files, nil
}

func (s *namedStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, name)
	return nil
}

func (s *namedStore) GetOldFiles(context.Context, time.Time) ([]string, error) {
	return nil, errors.New("not supported")
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop().Sugar()

	Convey("Given a staging directory with stale and fresh files", t, func() {
		path := t.TempDir()
		directory, err := staging.NewDirectory(path)
		So(err, ShouldBeNil)

		stale, err := directory.Temporary()
		So(err, ShouldBeNil)
		So(stale.Close(), ShouldBeNil)
		old := time.Now().Add(-3 * time.Hour)
		So(os.Chtimes(stale.Name(), old, old), ShouldBeNil)

		fresh, err := directory.Temporary()
		So(err, ShouldBeNil)
		So(fresh.Close(), ShouldBeNil)

		recorder := &removedRecorder{}
		cleanup := NewCleanup([]CleanupTarget{{Name: "staging", Store: directory}}, recorder, logger, time.Hour)

		Convey("When the cleanup runs", func() {
			So(cleanup.Execute(ctx), ShouldBeNil)

			Convey("It should only remove the stale file", func() {
				_, err := os.Stat(stale.Name())
				So(os.IsNotExist(err), ShouldBeTrue)

				_, err = os.Stat(filepath.Join(path, filepath.Base(fresh.Name())))
				So(err, ShouldBeNil)

				So(recorder.removed, ShouldResemble, []int{1})
			})
		})
	})

	Convey("Given a store that cannot report file ages", t, func() {
		store := &namedStore{files: []string{
			"part_20200101_101500_123",
			"part_" + time.Now().Format("20060102_150405") + "_456",
			"unrelated",
		}}

		recorder := &removedRecorder{}
		cleanup := NewCleanup([]CleanupTarget{{Name: "named", Store: store}}, recorder, logger, time.Hour)

		Convey("It should fall back to the timestamps in file names", func() {
			So(cleanup.Execute(ctx), ShouldBeNil)
			So(store.deleted, ShouldResemble, []string{"part_20200101_101500_123"})
			So(recorder.removed, ShouldResemble, []int{1})
		})
	})
}

func TestExtractTimestamp(t *testing.T) {
	Convey("Given staged file names", t, func() {
		Convey("It should read the embedded timestamp", func() {
			timestamp, err := extractTimestamp("part_20240315_143000_98765")
			So(err, ShouldBeNil)
			So(timestamp.Equal(time.Date(2024, 3, 15, 14, 30, 0, 0, time.Local)), ShouldBeTrue)
		})

		Convey("It should reject names without a timestamp", func() {
			_, err := extractTimestamp("part_latest")
			So(err, ShouldNotBeNil)
		})
	})
}
