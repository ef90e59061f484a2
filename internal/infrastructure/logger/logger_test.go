package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

func TestLogger(t *testing.T) {
	Convey("Given the Logger package", t, func() {
		Convey("New function", func() {
			Convey("When creating a logger with console output only", func() {
				logger, err := New("info", "")

				Convey("It should create a logger successfully", func() {
					So(err, ShouldBeNil)
					So(logger, ShouldNotBeNil)
					So(logger.Level(), ShouldEqual, "info")
					So(func() { logger.Info("Test log") }, ShouldNotPanic)
				})
			})

			Convey("When creating a logger with a valid log file", func() {
				tempDir := t.TempDir()
				logFile := filepath.Join(tempDir, "logs", "stasis.log")

				logger, err := New("debug", logFile)
				So(err, ShouldBeNil)

				Convey("It should write JSON entries to the file", func() {
					logger.Debugf("Processed [%d] entities", 3)
					logger.Close()

					content, err := os.ReadFile(logFile)
					So(err, ShouldBeNil)
					So(string(content), ShouldContainSubstring, `"level":"DEBUG"`)
					So(string(content), ShouldContainSubstring, "Processed [3] entities")
				})
			})

			Convey("When creating a logger with an invalid log level", func() {
				logger, err := New("invalid", "")

				Convey("It should default to Info level", func() {
					So(err, ShouldBeNil)
					So(logger.Level(), ShouldEqual, "info")
				})
			})

			Convey("When creating a logger with an invalid log file path", func() {
				blocker := filepath.Join(t.TempDir(), "file")
				So(os.WriteFile(blocker, []byte("x"), 0o644), ShouldBeNil)

				logger, err := New("info", filepath.Join(blocker, "logs", "stasis.log"))

				Convey("It should return an error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to create log directory")
					So(logger, ShouldBeNil)
				})
			})
		})

		Convey("Derived loggers", func() {
			logFile := filepath.Join(t.TempDir(), "stasis.log")
			logger, err := New("info", logFile)
			So(err, ShouldBeNil)

			op := domain.NewOperationID()
			derived := logger.Named("backup").ForOperation(op)

			Convey("It should share the level with the root logger", func() {
				derived.Debugf("hidden")
				So(logger.SetLevel("debug"), ShouldBeNil)
				derived.Debugf("visible")
				logger.Close()

				content, err := os.ReadFile(logFile)
				So(err, ShouldBeNil)
				So(strings.Contains(string(content), "hidden"), ShouldBeFalse)
				So(string(content), ShouldContainSubstring, "visible")
				So(string(content), ShouldContainSubstring, `"logger":"backup"`)
				So(string(content), ShouldContainSubstring, op.String())
			})

			Convey("It should reject unknown levels", func() {
				So(logger.SetLevel("loud"), ShouldNotBeNil)
				So(logger.Level(), ShouldEqual, "info")
			})
		})
	})
}
