package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/sndnv/stasis-sub000/internal/config"
)

func TestLocalStorage(t *testing.T) {
	Convey("Given a LocalStorage", t, func() {
		tempDir, err := os.MkdirTemp("", "local_storage_test")
		So(err, ShouldBeNil)
		defer os.RemoveAll(tempDir)

		ctx := context.Background()

		Convey("NewLocal", func() {
			Convey("When creating with non-existent path", func() {
				newPath := filepath.Join(tempDir, "new", "nested", "dir")
				storage, err := NewLocal(newPath)

				Convey("It should create directory and succeed", func() {
					So(err, ShouldBeNil)
					So(storage.basePath, ShouldEqual, newPath)

					info, err := os.Stat(newPath)
					So(err, ShouldBeNil)
					So(info.IsDir(), ShouldBeTrue)
				})
			})
		})

		Convey("Upload and Download methods", func() {
			storage, _ := NewLocal(tempDir)

			Convey("When uploading content", func() {
				err := storage.Upload(ctx, "crate-1", strings.NewReader("test content"), 12)
				So(err, ShouldBeNil)

				Convey("It should be downloadable", func() {
					reader, err := storage.Download(ctx, "crate-1")
					So(err, ShouldBeNil)
					defer reader.Close()

					content, err := io.ReadAll(reader)
					So(err, ShouldBeNil)
					So(string(content), ShouldEqual, "test content")
				})
			})

			Convey("When the content is shorter than expected", func() {
				err := storage.Upload(ctx, "crate-2", strings.NewReader("short"), 12)

				Convey("It should fail without leaving a crate behind", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "expected [12] bytes but [5] were written")

					files, err := storage.List(ctx)
					So(err, ShouldBeNil)
					So(files, ShouldBeEmpty)
				})
			})

			Convey("When the context is cancelled", func() {
				cancelled, cancel := context.WithCancel(ctx)
				cancel()

				err := storage.Upload(cancelled, "crate-3", strings.NewReader("test content"), 12)

				Convey("It should fail", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to copy")
				})
			})

			Convey("When downloading a missing crate", func() {
				_, err := storage.Download(ctx, "missing")

				Convey("It should report it as not found", func() {
					So(err, ShouldEqual, ErrNotFound)
				})
			})
		})

		Convey("List method", func() {
			storage, _ := NewLocal(tempDir)

			Convey("When directory has files", func() {
				So(os.WriteFile(filepath.Join(tempDir, "file1"), []byte("test"), 0o644), ShouldBeNil)
				So(os.WriteFile(filepath.Join(tempDir, "file2"), []byte("test"), 0o644), ShouldBeNil)
				So(os.WriteFile(filepath.Join(tempDir, ".upload-123"), []byte("test"), 0o644), ShouldBeNil)
				So(os.Mkdir(filepath.Join(tempDir, "subdir"), 0o755), ShouldBeNil)

				files, err := storage.List(ctx)

				Convey("It should list only stored files", func() {
					So(err, ShouldBeNil)
					So(files, ShouldResemble, []string{"file1", "file2"})
				})
			})
		})

		Convey("Delete method", func() {
			storage, _ := NewLocal(tempDir)

			Convey("When deleting existing file", func() {
				So(storage.Upload(ctx, "delete_me", strings.NewReader("test"), 4), ShouldBeNil)

				err := storage.Delete(ctx, "delete_me")

				Convey("It should delete successfully", func() {
					So(err, ShouldBeNil)

					_, err := os.Stat(filepath.Join(tempDir, "delete_me"))
					So(os.IsNotExist(err), ShouldBeTrue)
				})
			})

			Convey("When deleting non-existent file", func() {
				err := storage.Delete(ctx, "nonexistent")

				Convey("It should return error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to delete file")
				})
			})
		})

		Convey("GetOldFiles method", func() {
			storage, _ := NewLocal(tempDir)

			Convey("When finding old files", func() {
				oldFile := filepath.Join(tempDir, "old")
				So(os.WriteFile(oldFile, []byte("test"), 0o644), ShouldBeNil)
				oldTime := time.Now().Add(-10 * 24 * time.Hour)
				So(os.Chtimes(oldFile, oldTime, oldTime), ShouldBeNil)

				So(os.WriteFile(filepath.Join(tempDir, "new"), []byte("test"), 0o644), ShouldBeNil)

				cutoff := time.Now().Add(-7 * 24 * time.Hour)
				oldFiles, err := storage.GetOldFiles(ctx, cutoff)

				Convey("It should return only old files", func() {
					So(err, ShouldBeNil)
					So(oldFiles, ShouldResemble, []string{"old"})
				})
			})
		})

		Convey("GetPath method", func() {
			storage, _ := NewLocal(tempDir)

			Convey("It should keep names inside the base path", func() {
				So(storage.GetPath("test"), ShouldEqual, filepath.Join(tempDir, "test"))
				So(storage.GetPath("../escape"), ShouldEqual, filepath.Join(tempDir, "escape"))
			})
		})
	})
}

func TestNew(t *testing.T) {
	Convey("Given store configurations", t, func() {
		Convey("It should create local stores", func() {
			store, err := New(&config.StoreConfig{Type: "local", Path: t.TempDir()})
			So(err, ShouldBeNil)
			So(store, ShouldHaveSameTypeAs, &LocalStorage{})
		})

		Convey("It should reject unknown stores", func() {
			_, err := New(&config.StoreConfig{Type: "ftp"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldEqual, "unsupported store type [ftp]")
		})
	})
}
