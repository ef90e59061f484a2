package recovery

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/sndnv/stasis-sub000/internal/domain"
	"github.com/sndnv/stasis-sub000/internal/usecase"
)

// Providers groups the collaborators used to turn crates back into content.
type Providers struct {
	Core        domain.CoreClient
	Compression domain.Compression
	Encryptor   domain.Encryptor
	Secrets     domain.Secrets
	Staging     domain.Staging
	Checksum    domain.Checksum
}

type Processing struct {
	providers Providers
	tracker   Tracker
	logger    usecase.Logger
}

func NewProcessing(providers Providers, tracker Tracker, logger usecase.Logger) *Processing {
	return &Processing{providers: providers, tracker: tracker, logger: logger}
}

// Process restores the content of every collected entity, one at a time.
// The first failure stops processing and is the last value yielded.
func (uc *Processing) Process(
	ctx context.Context,
	op domain.OperationID,
	targets iter.Seq2[domain.TargetEntity, error],
) iter.Seq2[domain.TargetEntity, error] {
	return func(yield func(domain.TargetEntity, error) bool) {
		for target, err := range targets {
			if err != nil {
				yield(domain.TargetEntity{}, err)
				return
			}
			if err := ctx.Err(); err != nil {
				yield(domain.TargetEntity{}, err)
				return
			}

			if err := uc.process(ctx, op, target); err != nil {
				uc.tracker.EntityFailed(op, target.Path, err)
				yield(domain.TargetEntity{}, fmt.Errorf("failed to recover [%s]: %w", target.Path, err))
				return
			}

			if !yield(target, nil) {
				return
			}
		}
	}
}

func (uc *Processing) process(ctx context.Context, op domain.OperationID, target domain.TargetEntity) error {
	destination := target.DestinationPath()
	metadata := target.Existing

	switch {
	case !target.HasContentChanged():
		uc.tracker.EntityProcessingStarted(op, target.Path, 0)

	case metadata.IsDirectory():
		uc.tracker.EntityProcessingStarted(op, target.Path, 0)
		if err := os.MkdirAll(destination, 0o700); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}

	case metadata.Link != "":
		uc.tracker.EntityProcessingStarted(op, target.Path, 0)
		if err := uc.link(metadata.Link, destination); err != nil {
			return err
		}

	default:
		if err := uc.processFile(ctx, op, target); err != nil {
			return err
		}
	}

	uc.tracker.EntityProcessed(op, target.Path)
	return nil
}

func (uc *Processing) link(to, destination string) error {
	if err := createParents(destination); err != nil {
		return err
	}
	if err := os.Remove(destination); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to replace existing entity: %w", err)
	}
	if err := os.Symlink(to, destination); err != nil {
		return fmt.Errorf("failed to create link: %w", err)
	}
	return nil
}

// processFile reassembles the parts of a file in a staged file, verifies its
// checksum and moves it to the destination.
func (uc *Processing) processFile(ctx context.Context, op domain.OperationID, target domain.TargetEntity) error {
	metadata := target.Existing
	if err := metadata.RequireFile(); err != nil {
		return err
	}
	if err := verifyParts(metadata); err != nil {
		return err
	}

	uc.tracker.EntityProcessingStarted(op, target.Path, len(metadata.Crates))

	compressor, err := uc.providers.Compression.Compressor(metadata.Compression)
	if err != nil {
		return err
	}

	staged, err := uc.providers.Staging.Temporary()
	if err != nil {
		return err
	}
	destaged := false
	defer func() {
		if destaged {
			return
		}
		if err := uc.providers.Staging.Discard(staged.Name()); err != nil {
			uc.logger.Warnf("Failed to discard staged content of [%s]: %v", target.Path, err)
		}
	}()

	digest := uc.providers.Checksum.New()
	output := io.MultiWriter(staged, digest)

	for _, part := range metadata.Crates {
		if err := uc.processPart(ctx, metadata.Path, part, compressor, output); err != nil {
			staged.Close()
			return fmt.Errorf("failed to process part [%d]: %w", part.Part, err)
		}
		uc.tracker.EntityPartProcessed(op, target.Path)
	}

	if err := staged.Close(); err != nil {
		return fmt.Errorf("failed to stage file: %w", err)
	}

	if actual := hex.EncodeToString(digest.Sum(nil)); actual != metadata.Checksum {
		return fmt.Errorf("%w: expected [%s] but found [%s]", domain.ErrChecksumMismatch, metadata.Checksum, actual)
	}

	destination := target.DestinationPath()
	if err := createParents(destination); err != nil {
		return err
	}
	if err := uc.providers.Staging.Destage(staged.Name(), destination); err != nil {
		return err
	}
	destaged = true

	return nil
}

func (uc *Processing) processPart(
	ctx context.Context,
	path string,
	part domain.CratePart,
	compressor domain.Compressor,
	output io.Writer,
) error {
	content, err := uc.providers.Core.Pull(ctx, part.Crate)
	if err != nil {
		return err
	}
	if content == nil {
		return fmt.Errorf("%w: [%s]", domain.ErrCrateMissing, part.Crate)
	}
	defer content.Close()

	decrypted, err := uc.providers.Encryptor.DecryptFile(content, uc.providers.Secrets.FileSecret(domain.PartName(path, part.Part)))
	if err != nil {
		return fmt.Errorf("failed to decrypt part: %w", err)
	}

	decompressed, err := compressor.Decompress(decrypted)
	if err != nil {
		return fmt.Errorf("failed to decompress part: %w", err)
	}
	defer decompressed.Close()

	if _, err := io.Copy(output, decompressed); err != nil {
		return fmt.Errorf("failed to read part: %w", err)
	}

	return nil
}

// verifyParts requires the crates of a file to be numbered 0..n-1 in order.
func verifyParts(metadata domain.EntityMetadata) error {
	for i, part := range metadata.Crates {
		if part.Part != i {
			return fmt.Errorf("unexpected part [%d] of [%s] at position [%d]", part.Part, metadata.Path, i)
		}
	}
	return nil
}

func createParents(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create parent directories: %w", err)
	}
	return nil
}
