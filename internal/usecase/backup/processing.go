package backup

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"iter"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sndnv/stasis-sub000/internal/domain"
	"github.com/sndnv/stasis-sub000/internal/usecase"
)

// Providers groups the collaborators used to turn entity content into crates.
type Providers struct {
	Core        domain.CoreClient
	Compression domain.Compression
	Encryptor   domain.Encryptor
	Secrets     domain.Secrets
	Staging     domain.Staging
	Checksum    domain.Checksum
}

type Limits struct {
	MaxPartSize int64
	Parallelism int
}

type Processing struct {
	providers Providers
	device    domain.DeviceID
	copies    int
	limits    Limits
	tracker   Tracker
	logger    usecase.Logger
}

func NewProcessing(
	providers Providers,
	device domain.DeviceID,
	copies int,
	limits Limits,
	tracker Tracker,
	logger usecase.Logger,
) *Processing {
	if limits.Parallelism < 1 {
		limits.Parallelism = 1
	}

	return &Processing{
		providers: providers,
		device:    device,
		copies:    copies,
		limits:    limits,
		tracker:   tracker,
		logger:    logger,
	}
}

// Process stores the content of every collected entity and yields the
// results in input order. The first failure stops processing and is the
// last value yielded; crates pushed before it are not removed.
func (uc *Processing) Process(
	ctx context.Context,
	op domain.OperationID,
	entities iter.Seq2[domain.SourceEntity, error],
) iter.Seq2[domain.EntityResult, error] {
	return func(yield func(domain.EntityResult, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(uc.limits.Parallelism)

		ordered := make(chan chan domain.EntityResult, uc.limits.Parallelism)
		var inputErr error

		go func() {
			defer close(ordered)

			for entity, err := range entities {
				if err != nil {
					inputErr = err
					return
				}
				if gctx.Err() != nil {
					return
				}

				result := make(chan domain.EntityResult, 1)
				select {
				case ordered <- result:
				case <-gctx.Done():
					return
				}

				g.Go(func() error {
					defer close(result)

					processed, err := uc.process(gctx, op, entity)
					if err != nil {
						uc.tracker.EntityFailed(op, entity.Path, err)
						return fmt.Errorf("failed to process [%s]: %w", entity.Path, err)
					}

					result <- processed
					return nil
				})
			}
		}()

		stopped := false
		for result := range ordered {
			processed, ok := <-result
			if !ok {
				break
			}
			if !yield(processed, nil) {
				stopped = true
				break
			}
		}

		cancel()
		for range ordered {
		}

		err := g.Wait()
		switch {
		case stopped:
		case err != nil:
			yield(nil, err)
		case inputErr != nil:
			yield(nil, inputErr)
		}
	}
}

func (uc *Processing) process(ctx context.Context, op domain.OperationID, entity domain.SourceEntity) (domain.EntityResult, error) {
	if !entity.IsContentChanged() || entity.Current.IsDirectory() || entity.Current.Link != "" {
		uc.tracker.EntityProcessingStarted(op, entity.Path, 0)

		var result domain.EntityResult
		if entity.IsContentChanged() {
			result = domain.ContentChanged{Entity: entity.Current}
		} else {
			result = domain.MetadataChanged{Entity: entity.Current}
		}

		uc.tracker.EntityProcessed(op, entity.Path, result)
		return result, nil
	}

	metadata, err := uc.processFile(ctx, op, entity.Current)
	if err != nil {
		return nil, err
	}

	result := domain.ContentChanged{Entity: metadata}
	uc.tracker.EntityProcessed(op, entity.Path, result)
	return result, nil
}

func (uc *Processing) processFile(ctx context.Context, op domain.OperationID, metadata domain.EntityMetadata) (domain.EntityMetadata, error) {
	if err := metadata.RequireFile(); err != nil {
		return domain.EntityMetadata{}, err
	}

	partSize := uc.partSize()
	uc.tracker.EntityProcessingStarted(op, metadata.Path, expectedParts(metadata.Size, partSize))

	if metadata.Compression == "" {
		metadata.Compression = uc.providers.Compression.AlgorithmFor(metadata.Path)
	}
	compressor, err := uc.providers.Compression.Compressor(metadata.Compression)
	if err != nil {
		return domain.EntityMetadata{}, err
	}

	file, err := os.Open(metadata.Path)
	if err != nil {
		return domain.EntityMetadata{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	digest := uc.providers.Checksum.New()
	content := bufio.NewReader(io.TeeReader(file, digest))

	crates := make([]domain.CratePart, 0, max(expectedParts(metadata.Size, partSize), 1))
	var offset int64

	for part := 0; ; part++ {
		if part > 0 {
			if _, err := content.Peek(1); errors.Is(err, io.EOF) {
				break
			} else if err != nil {
				return domain.EntityMetadata{}, fmt.Errorf("failed to read file: %w", err)
			}
		}

		crate, size, err := uc.processPart(ctx, metadata.Path, part, io.LimitReader(content, partSize), compressor)
		if err != nil {
			return domain.EntityMetadata{}, fmt.Errorf("failed to process part [%d]: %w", part, err)
		}

		crates = append(crates, domain.CratePart{Part: part, Crate: crate, Offset: offset, Size: size})
		offset += size

		uc.tracker.EntityPartProcessed(op, metadata.Path)
	}

	checksum := encode(digest)
	if checksum != metadata.Checksum {
		uc.logger.Warnf("[%s] Content of [%s] changed while it was being processed", op, metadata.Path)
	}

	metadata.Checksum = checksum
	metadata.Size = offset
	metadata.Crates = crates

	return metadata, nil
}

// processPart stages, compresses and encrypts one part and pushes it as a
// new crate. The staged file is discarded regardless of the outcome.
func (uc *Processing) processPart(
	ctx context.Context,
	path string,
	part int,
	content io.Reader,
	compressor domain.Compressor,
) (domain.CrateID, int64, error) {
	staged, err := uc.providers.Staging.Temporary()
	if err != nil {
		return uuid.Nil, 0, err
	}
	defer func() {
		if err := uc.providers.Staging.Discard(staged.Name()); err != nil {
			uc.logger.Warnf("Failed to discard staged part of [%s]: %v", path, err)
		}
	}()

	size, err := uc.stage(staged, path, part, content, compressor)
	if err != nil {
		return uuid.Nil, 0, err
	}

	stagedInfo, err := os.Stat(staged.Name())
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("failed to stat staged file: %w", err)
	}

	manifest := domain.Manifest{
		Crate:  uuid.New(),
		Origin: uc.device,
		Source: uc.device,
		Size:   stagedInfo.Size(),
		Copies: uc.copies,
	}

	reservation, err := uc.providers.Core.Reserve(ctx, manifest)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("failed to reserve storage: %w", err)
	}

	upload, err := os.Open(staged.Name())
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("failed to open staged file: %w", err)
	}
	defer upload.Close()

	if err := uc.providers.Core.Push(ctx, manifest, upload, reservation.ID); err != nil {
		return uuid.Nil, 0, fmt.Errorf("failed to push crate: %w", err)
	}

	uc.logger.Debugf("Pushed part [%d] of [%s] as crate [%s]", part, path, manifest.Crate)

	return manifest.Crate, size, nil
}

func (uc *Processing) stage(staged *os.File, path string, part int, content io.Reader, compressor domain.Compressor) (int64, error) {
	defer staged.Close()

	encrypted, err := uc.providers.Encryptor.EncryptFile(staged, uc.providers.Secrets.FileSecret(domain.PartName(path, part)))
	if err != nil {
		return 0, fmt.Errorf("failed to encrypt part: %w", err)
	}

	compressed, err := compressor.Compress(encrypted)
	if err != nil {
		return 0, fmt.Errorf("failed to compress part: %w", err)
	}

	size, err := io.Copy(compressed, content)
	if err != nil {
		return 0, fmt.Errorf("failed to stage part: %w", err)
	}

	if err := compressed.Close(); err != nil {
		return 0, fmt.Errorf("failed to compress part: %w", err)
	}
	if err := encrypted.Close(); err != nil {
		return 0, fmt.Errorf("failed to encrypt part: %w", err)
	}
	if err := staged.Sync(); err != nil {
		return 0, fmt.Errorf("failed to stage part: %w", err)
	}

	return size, nil
}

func (uc *Processing) partSize() int64 {
	size := uc.limits.MaxPartSize
	if maxSize := uc.providers.Encryptor.MaxPlaintextSize(); size <= 0 || size > maxSize {
		size = maxSize
	}
	return size
}

// expectedParts is ceil(size / partSize). Empty files expect no parts but are
// still stored as a single empty crate.
func expectedParts(size, partSize int64) int {
	if size <= 0 {
		return 0
	}
	return int((size + partSize - 1) / partSize)
}

func encode(digest hash.Hash) string {
	return hex.EncodeToString(digest.Sum(nil))
}
