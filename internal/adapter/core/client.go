// Package core implements the crate service on top of one or more crate stores.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sndnv/stasis-sub000/internal/adapter/storage"
	"github.com/sndnv/stasis-sub000/internal/domain"
	"github.com/sndnv/stasis-sub000/internal/infrastructure/metrics"
)

// Target is one named crate store; every crate is pushed to all targets.
type Target struct {
	Name    string
	Storage domain.Storage
}

type Client struct {
	targets []Target
	limit   int64
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics

	mu           sync.Mutex
	reservations map[domain.ReservationID]domain.StorageReservation
	used         int64
}

// NewClient creates a client over the given targets. A zero limit disables
// the storage limit and a zero ttl makes reservations never expire.
func NewClient(targets []Target, limit int64, ttl time.Duration) (*Client, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("at least one crate store is required")
	}

	return &Client{
		targets:      targets,
		limit:        limit,
		ttl:          ttl,
		now:          time.Now,
		metrics:      metrics.Get(),
		reservations: make(map[domain.ReservationID]domain.StorageReservation),
	}, nil
}

func (c *Client) Reserve(_ context.Context, manifest domain.Manifest) (domain.StorageReservation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.expire(now)

	required := footprint(manifest.Size, manifest.Copies)
	if c.limit > 0 && c.used+c.reserved()+required > c.limit {
		c.metrics.RecordReservation(false)
		return domain.StorageReservation{}, fmt.Errorf(
			"%w: requested [%d] bytes with [%d] bytes available",
			domain.ErrReservationRejected, required, max(c.limit-c.used-c.reserved(), 0),
		)
	}

	reservation := domain.StorageReservation{
		ID:     uuid.New(),
		Crate:  manifest.Crate,
		Size:   manifest.Size,
		Copies: manifest.Copies,
		Origin: manifest.Origin,
	}
	if c.ttl > 0 {
		reservation.Expiration = now.Add(c.ttl)
	}

	c.reservations[reservation.ID] = reservation
	c.metrics.RecordReservation(true)

	return reservation, nil
}

// Push stores the crate on every target. A failed push leaves its reservation
// in place until it expires.
func (c *Client) Push(ctx context.Context, manifest domain.Manifest, content io.Reader, reservation domain.ReservationID) error {
	if err := c.check(manifest, reservation); err != nil {
		return err
	}

	name := manifest.Crate.String()
	if err := c.upload(ctx, name, content, manifest.Size); err != nil {
		return fmt.Errorf("failed to push crate [%s]: %w", name, err)
	}

	c.mu.Lock()
	delete(c.reservations, reservation)
	c.used += footprint(manifest.Size, manifest.Copies)
	c.mu.Unlock()

	return nil
}

// Pull returns the crate from the first target holding it. Missing crates
// yield a nil reader and a nil error.
func (c *Client) Pull(ctx context.Context, crate domain.CrateID) (io.ReadCloser, error) {
	name := crate.String()

	var failures []error
	for _, target := range c.targets {
		content, err := target.Storage.Download(ctx, name)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			c.metrics.RecordPull(target.Name, "missing")
		case err != nil:
			c.metrics.RecordPull(target.Name, "failure")
			failures = append(failures, fmt.Errorf("%s: %w", target.Name, err))
		default:
			c.metrics.RecordPull(target.Name, "success")
			return content, nil
		}
	}

	if len(failures) > 0 {
		return nil, fmt.Errorf("failed to pull crate [%s]: %w", name, errors.Join(failures...))
	}

	return nil, nil
}

// Reservations returns the currently live reservations.
func (c *Client) Reservations() []domain.StorageReservation {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expire(c.now())

	result := make([]domain.StorageReservation, 0, len(c.reservations))
	for _, reservation := range c.reservations {
		result = append(result, reservation)
	}
	return result
}

func (c *Client) check(manifest domain.Manifest, id domain.ReservationID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	reservation, ok := c.reservations[id]
	if !ok || reservation.IsExpired(c.now()) {
		return fmt.Errorf("%w: reservation [%s] not found or expired", domain.ErrInvalidReservation, id)
	}
	if reservation.Crate != manifest.Crate {
		return fmt.Errorf("%w: reservation [%s] is for crate [%s]", domain.ErrInvalidReservation, id, reservation.Crate)
	}

	return nil
}

func (c *Client) upload(ctx context.Context, name string, content io.Reader, size int64) error {
	if len(c.targets) == 1 {
		target := c.targets[0]
		err := target.Storage.Upload(ctx, name, content, size)
		c.metrics.RecordPush(target.Name, size, err)
		if err != nil {
			return fmt.Errorf("%s: %w", target.Name, err)
		}
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)

	writers := make([]io.Writer, 0, len(c.targets))
	pipes := make([]*io.PipeWriter, 0, len(c.targets))

	for _, target := range c.targets {
		pr, pw := io.Pipe()
		writers = append(writers, pw)
		pipes = append(pipes, pw)

		g.Go(func() error {
			err := target.Storage.Upload(ctx, name, pr, size)
			c.metrics.RecordPush(target.Name, size, err)
			if err != nil {
				pr.CloseWithError(err)
				return fmt.Errorf("%s: %w", target.Name, err)
			}
			pr.Close()
			return nil
		})
	}

	g.Go(func() error {
		_, err := io.Copy(io.MultiWriter(writers...), content)
		for _, pw := range pipes {
			pw.CloseWithError(err)
		}
		return err
	})

	return g.Wait()
}

func (c *Client) expire(now time.Time) {
	for id, reservation := range c.reservations {
		if reservation.IsExpired(now) {
			delete(c.reservations, id)
		}
	}
}

func (c *Client) reserved() int64 {
	var total int64
	for _, reservation := range c.reservations {
		total += footprint(reservation.Size, reservation.Copies)
	}
	return total
}

func footprint(size int64, copies int) int64 {
	return size * int64(max(copies, 1))
}
