package usecase

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"
)

// CleanupStore is a location holding disposable files, such as the staging
// directory or a crate store used for scratch data.
type CleanupStore interface {
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
	GetOldFiles(ctx context.Context, cutoffTime time.Time) ([]string, error)
}

type CleanupTarget struct {
	Name  string
	Store CleanupStore
}

type CleanupRecorder interface {
	StagingFilesRemoved(count int)
}

// Cleanup removes files older than maxAge from every target.
type Cleanup struct {
	targets []CleanupTarget
	metrics CleanupRecorder
	logger  Logger
	maxAge  time.Duration
	now     func() time.Time

	mu      sync.Mutex
	removed int
}

func NewCleanup(
	targets []CleanupTarget,
	metrics CleanupRecorder,
	logger Logger,
	maxAge time.Duration,
) *Cleanup {
	return &Cleanup{
		targets: targets,
		metrics: metrics,
		logger:  logger,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

func (uc *Cleanup) Execute(ctx context.Context) error {
	uc.logger.Infof("Starting cleanup, max age: %v", uc.maxAge)

	cutoff := uc.now().Add(-uc.maxAge)

	uc.mu.Lock()
	uc.removed = 0
	uc.mu.Unlock()

	if len(uc.targets) > 0 {
		uc.cleanupTargets(ctx, cutoff)
	}

	uc.mu.Lock()
	removed := uc.removed
	uc.mu.Unlock()

	uc.metrics.StagingFilesRemoved(removed)
	uc.logger.Infof("Cleanup completed, removed %d file(s)", removed)
	return nil
}

func (uc *Cleanup) cleanupTargets(ctx context.Context, cutoff time.Time) {
	var wg sync.WaitGroup

	for _, target := range uc.targets {
		wg.Add(1)
		go func(t CleanupTarget) {
			defer wg.Done()

			if err := uc.cleanupTarget(ctx, t, cutoff); err != nil {
				uc.logger.Errorf("Cleanup failed for %s: %v", t.Name, err)
			}
		}(target)
	}

	wg.Wait()
}

func (uc *Cleanup) cleanupTarget(ctx context.Context, target CleanupTarget, cutoff time.Time) error {
	files, err := target.Store.GetOldFiles(ctx, cutoff)
	if err != nil {
		uc.logger.Warnf("Failed to find old files in %s, falling back to file names: %v", target.Name, err)
		files, err = uc.fallbackListFiles(ctx, target, cutoff)
		if err != nil {
			return err
		}
	}

	deleted := 0
	for _, filename := range files {
		uc.logger.Debugf("Deleting stale file from %s: %s", target.Name, filename)

		if err := target.Store.Delete(ctx, filename); err != nil {
			uc.logger.Errorf("Failed to delete %s from %s: %v", filename, target.Name, err)
		} else {
			deleted++
		}
	}

	uc.mu.Lock()
	uc.removed += deleted
	uc.mu.Unlock()

	uc.logger.Infof("Deleted %d stale file(s) from %s", deleted, target.Name)
	return nil
}

func (uc *Cleanup) fallbackListFiles(ctx context.Context, target CleanupTarget, cutoff time.Time) ([]string, error) {
	files, err := target.Store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	oldFiles := make([]string, 0)
	for _, filename := range files {
		timestamp, err := extractTimestamp(filename)
		if err != nil {
			uc.logger.Warnf("Could not parse timestamp from %s: %v", filename, err)
			continue
		}

		if timestamp.Before(cutoff) {
			oldFiles = append(oldFiles, filename)
		}
	}

	return oldFiles, nil
}

var timestampPattern = regexp.MustCompile(`(\d{8})_(\d{6})`)

// extractTimestamp reads the creation time embedded in staged file names.
func extractTimestamp(filename string) (time.Time, error) {
	matches := timestampPattern.FindStringSubmatch(filename)

	if len(matches) < 3 {
		return time.Time{}, fmt.Errorf("invalid filename format: no timestamp found")
	}

	timestampStr := matches[1] + "_" + matches[2]
	return time.ParseInLocation("20060102_150405", timestampStr, time.Local)
}
