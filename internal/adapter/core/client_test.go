package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/sndnv/stasis-sub000/internal/adapter/storage"
	"github.com/sndnv/stasis-sub000/internal/domain"
)

type brokenStorage struct {
	domain.Storage
	err error
}

func (b brokenStorage) Upload(_ context.Context, _ string, content io.Reader, _ int64) error {
	_, _ = io.CopyN(io.Discard, content, 1)
	return b.err
}

func (b brokenStorage) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, b.err
}

func newLocalTarget(t *testing.T, name string) Target {
	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return Target{Name: name, Storage: store}
}

func manifestOf(content []byte) domain.Manifest {
	return domain.Manifest{
		Crate:  uuid.New(),
		Origin: uuid.New(),
		Source: uuid.New(),
		Size:   int64(len(content)),
		Copies: 1,
	}
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	Convey("Given a client without targets", t, func() {
		_, err := NewClient(nil, 0, 0)

		Convey("It should be rejected", func() {
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a client over two local stores", t, func() {
		first := newLocalTarget(t, "first")
		second := newLocalTarget(t, "second")

		client, err := NewClient([]Target{first, second}, 0, time.Minute)
		So(err, ShouldBeNil)

		content := []byte("some crate content")
		manifest := manifestOf(content)

		Convey("When a crate is reserved and pushed", func() {
			reservation, err := client.Reserve(ctx, manifest)
			So(err, ShouldBeNil)
			So(reservation.Crate, ShouldEqual, manifest.Crate)
			So(client.Reservations(), ShouldHaveLength, 1)

			err = client.Push(ctx, manifest, bytes.NewReader(content), reservation.ID)
			So(err, ShouldBeNil)

			Convey("It should store the crate on every target", func() {
				for _, target := range []Target{first, second} {
					reader, err := target.Storage.Download(ctx, manifest.Crate.String())
					So(err, ShouldBeNil)
					data, err := io.ReadAll(reader)
					reader.Close()
					So(err, ShouldBeNil)
					So(data, ShouldResemble, content)
				}
			})

			Convey("It should consume the reservation", func() {
				So(client.Reservations(), ShouldBeEmpty)

				err := client.Push(ctx, manifest, bytes.NewReader(content), reservation.ID)
				So(err, ShouldWrap, domain.ErrInvalidReservation)
			})

			Convey("It should pull the crate back", func() {
				reader, err := client.Pull(ctx, manifest.Crate)
				So(err, ShouldBeNil)
				So(reader, ShouldNotBeNil)
				defer reader.Close()

				data, err := io.ReadAll(reader)
				So(err, ShouldBeNil)
				So(data, ShouldResemble, content)
			})
		})

		Convey("When a push uses a reservation for another crate", func() {
			reservation, err := client.Reserve(ctx, manifest)
			So(err, ShouldBeNil)

			err = client.Push(ctx, manifestOf(content), bytes.NewReader(content), reservation.ID)

			Convey("It should be rejected", func() {
				So(err, ShouldWrap, domain.ErrInvalidReservation)
			})
		})

		Convey("When a push happens without a reservation", func() {
			err := client.Push(ctx, manifest, bytes.NewReader(content), uuid.New())

			Convey("It should be rejected", func() {
				So(err, ShouldWrap, domain.ErrInvalidReservation)
			})
		})

		Convey("When a reservation expires", func() {
			now := time.Now()
			client.now = func() time.Time { return now }

			reservation, err := client.Reserve(ctx, manifest)
			So(err, ShouldBeNil)

			now = now.Add(2 * time.Minute)
			err = client.Push(ctx, manifest, bytes.NewReader(content), reservation.ID)

			Convey("It should reject the push", func() {
				So(err, ShouldWrap, domain.ErrInvalidReservation)
				So(client.Reservations(), ShouldBeEmpty)
			})
		})

		Convey("When a missing crate is pulled", func() {
			reader, err := client.Pull(ctx, uuid.New())

			Convey("It should return nothing without failing", func() {
				So(err, ShouldBeNil)
				So(reader, ShouldBeNil)
			})
		})
	})

	Convey("Given a client with a storage limit", t, func() {
		client, err := NewClient([]Target{newLocalTarget(t, "local")}, 100, 0)
		So(err, ShouldBeNil)

		Convey("When reservations exceed the limit", func() {
			_, err := client.Reserve(ctx, domain.Manifest{Crate: uuid.New(), Size: 30, Copies: 2})
			So(err, ShouldBeNil)

			_, err = client.Reserve(ctx, domain.Manifest{Crate: uuid.New(), Size: 50, Copies: 1})

			Convey("It should reject them as storage exhaustion", func() {
				So(err, ShouldWrap, domain.ErrReservationRejected)
				So(err.Error(), ShouldContainSubstring, "[40] bytes available")
			})
		})

		Convey("When stored crates use up the limit", func() {
			content := bytes.Repeat([]byte{1}, 80)
			manifest := manifestOf(content)

			reservation, err := client.Reserve(ctx, manifest)
			So(err, ShouldBeNil)
			So(client.Push(ctx, manifest, bytes.NewReader(content), reservation.ID), ShouldBeNil)

			_, err = client.Reserve(ctx, domain.Manifest{Crate: uuid.New(), Size: 21, Copies: 1})

			Convey("It should count them against the limit", func() {
				So(err, ShouldWrap, domain.ErrReservationRejected)
			})
		})
	})

	Convey("Given a client where one target fails", t, func() {
		failure := errors.New("store unavailable")
		healthy := newLocalTarget(t, "healthy")

		client, err := NewClient([]Target{healthy, {Name: "broken", Storage: brokenStorage{err: failure}}}, 0, 0)
		So(err, ShouldBeNil)

		content := []byte(strings.Repeat("x", 128*1024))
		manifest := manifestOf(content)

		Convey("When a crate is pushed", func() {
			reservation, err := client.Reserve(ctx, manifest)
			So(err, ShouldBeNil)

			err = client.Push(ctx, manifest, bytes.NewReader(content), reservation.ID)

			Convey("It should fail the push and keep the reservation", func() {
				So(err, ShouldWrap, failure)
				So(client.Reservations(), ShouldHaveLength, 1)
			})
		})

		Convey("When a crate is only missing from the healthy target", func() {
			reader, err := client.Pull(ctx, uuid.New())

			Convey("It should report the failing target instead of a missing crate", func() {
				So(reader, ShouldBeNil)
				So(err, ShouldWrap, failure)
			})
		})
	})
}
