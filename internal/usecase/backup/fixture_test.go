package backup

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"

	"github.com/sndnv/stasis-sub000/internal/adapter/attributes"
	"github.com/sndnv/stasis-sub000/internal/adapter/catalog"
	"github.com/sndnv/stasis-sub000/internal/adapter/checksum"
	"github.com/sndnv/stasis-sub000/internal/adapter/compressor"
	"github.com/sndnv/stasis-sub000/internal/adapter/core"
	"github.com/sndnv/stasis-sub000/internal/adapter/encryption"
	"github.com/sndnv/stasis-sub000/internal/adapter/staging"
	"github.com/sndnv/stasis-sub000/internal/adapter/storage"
	"github.com/sndnv/stasis-sub000/internal/domain"
	"github.com/sndnv/stasis-sub000/internal/usecase/datasets"
)

// recordingTracker keeps every backup event in memory.
type recordingTracker struct {
	mu sync.Mutex

	started           []domain.DatasetDefinitionID
	discovered        []string
	unmatched         []domain.RuleFailure
	examined          []string
	skipped           []string
	collected         []domain.SourceEntity
	expected          map[string]int
	parts             map[string]int
	processed         map[string]domain.EntityResult
	failed            map[string]error
	failures          []error
	metadataCollected int
	pushed            []domain.DatasetEntryID
	completed         int
}

func newRecordingTracker() *recordingTracker {
	return &recordingTracker{
		expected:  map[string]int{},
		parts:     map[string]int{},
		processed: map[string]domain.EntityResult{},
		failed:    map[string]error{},
	}
}

func (r *recordingTracker) Started(_ domain.OperationID, definition domain.DatasetDefinitionID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, definition)
}

func (r *recordingTracker) EntityDiscovered(_ domain.OperationID, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discovered = append(r.discovered, path)
}

func (r *recordingTracker) SpecificationProcessed(_ domain.OperationID, unmatched []domain.RuleFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unmatched = unmatched
}

func (r *recordingTracker) EntityExamined(_ domain.OperationID, path string, _, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.examined = append(r.examined, path)
}

func (r *recordingTracker) EntitySkipped(_ domain.OperationID, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped = append(r.skipped, path)
}

func (r *recordingTracker) EntityCollected(_ domain.OperationID, entity domain.SourceEntity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collected = append(r.collected, entity)
}

func (r *recordingTracker) EntityProcessingStarted(_ domain.OperationID, path string, expectedParts int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expected[path] = expectedParts
}

func (r *recordingTracker) EntityPartProcessed(_ domain.OperationID, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parts[path]++
}

func (r *recordingTracker) EntityProcessed(_ domain.OperationID, path string, result domain.EntityResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed[path] = result
}

func (r *recordingTracker) MetadataCollected(domain.OperationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metadataCollected++
}

func (r *recordingTracker) MetadataPushed(_ domain.OperationID, entry domain.DatasetEntryID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushed = append(r.pushed, entry)
}

func (r *recordingTracker) EntityFailed(_ domain.OperationID, path string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[path] = err
}

func (r *recordingTracker) FailureEncountered(_ domain.OperationID, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
}

func (r *recordingTracker) Completed(domain.OperationID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
}

// failingCore fails every push after the first `successful` ones.
type failingCore struct {
	domain.CoreClient

	mu         sync.Mutex
	successful int
	pushes     int
}

func (f *failingCore) Push(ctx context.Context, manifest domain.Manifest, content io.Reader, reservation domain.ReservationID) error {
	f.mu.Lock()
	f.pushes++
	pushes := f.pushes
	f.mu.Unlock()

	if pushes > f.successful {
		return errors.New("push failed")
	}
	return f.CoreClient.Push(ctx, manifest, content, reservation)
}

type staticResolver map[string]domain.EntityMetadata

func (s staticResolver) Resolve(_ context.Context, path string) (*domain.EntityMetadata, error) {
	if entity, ok := s[path]; ok {
		return &entity, nil
	}
	return nil, nil
}

type fixture struct {
	api        *catalog.Catalog
	core       *core.Client
	providers  Providers
	extractor  *attributes.Extractor
	codec      *datasets.Codec
	loader     *datasets.Loader
	staging    string
	definition domain.DatasetDefinitionID
	tracker    *recordingTracker
	logger     *zap.SugaredLogger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	device := uuid.New()
	api, err := catalog.Open(filepath.Join(t.TempDir(), "catalog.db"), device)
	if err != nil {
		t.Fatalf("failed to open catalog: %v", err)
	}
	t.Cleanup(func() { api.Close() })

	store, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	client, err := core.NewClient([]core.Target{{Name: "local", Storage: store}}, 0, 0)
	if err != nil {
		t.Fatalf("failed to create core client: %v", err)
	}

	compression, err := compressor.NewProvider(compressor.Gzip, nil)
	if err != nil {
		t.Fatalf("failed to create compression: %v", err)
	}
	secrets, err := encryption.NewDeviceSecret(uuid.New(), device, []byte("device-secret"))
	if err != nil {
		t.Fatalf("failed to create secrets: %v", err)
	}
	hasher, err := checksum.New(checksum.SHA256)
	if err != nil {
		t.Fatalf("failed to create checksum: %v", err)
	}

	stagingPath := t.TempDir()
	directory, err := staging.NewDirectory(stagingPath)
	if err != nil {
		t.Fatalf("failed to create staging directory: %v", err)
	}

	definition, err := api.CreateDatasetDefinition(context.Background(), domain.CreateDatasetDefinition{
		Info:             "test",
		Device:           device,
		RedundantCopies:  1,
		ExistingVersions: domain.Retention{Policy: domain.RetentionPolicy{Kind: domain.PolicyAll}},
		RemovedVersions:  domain.Retention{Policy: domain.RetentionPolicy{Kind: domain.PolicyAll}},
	})
	if err != nil {
		t.Fatalf("failed to create definition: %v", err)
	}

	encryptor := encryption.NewAES()
	codec := datasets.NewCodec(compression, encryptor, secrets)

	return &fixture{
		api:  api,
		core: client,
		providers: Providers{
			Core:        client,
			Compression: compression,
			Encryptor:   encryptor,
			Secrets:     secrets,
			Staging:     directory,
			Checksum:    hasher,
		},
		extractor:  attributes.NewExtractor(hasher, compression),
		codec:      codec,
		loader:     datasets.NewLoader(api, client, codec),
		staging:    stagingPath,
		definition: definition,
		tracker:    newRecordingTracker(),
		logger:     zap.NewNop().Sugar(),
	}
}

func (f *fixture) processing(partSize int64, parallelism int) *Processing {
	return NewProcessing(f.providers, f.api.Device(), 1, Limits{MaxPartSize: partSize, Parallelism: parallelism}, f.tracker, f.logger)
}

// restore pulls, decrypts and decompresses the parts of a file.
func (f *fixture) restore(metadata domain.EntityMetadata) []byte {
	ctx := context.Background()
	compressor, err := f.providers.Compression.Compressor(metadata.Compression)
	So(err, ShouldBeNil)

	var restored []byte
	for _, part := range metadata.Crates {
		content, err := f.core.Pull(ctx, part.Crate)
		So(err, ShouldBeNil)
		So(content, ShouldNotBeNil)

		decrypted, err := f.providers.Encryptor.DecryptFile(content, f.providers.Secrets.FileSecret(domain.PartName(metadata.Path, part.Part)))
		So(err, ShouldBeNil)

		decompressed, err := compressor.Decompress(decrypted)
		So(err, ShouldBeNil)

		data, err := io.ReadAll(decompressed)
		So(err, ShouldBeNil)
		So(decompressed.Close(), ShouldBeNil)
		So(content.Close(), ShouldBeNil)

		restored = append(restored, data...)
	}
	return restored
}

func writeFile(path string, content string) {
	So(os.MkdirAll(filepath.Dir(path), 0o755), ShouldBeNil)
	So(os.WriteFile(path, []byte(content), 0o644), ShouldBeNil)
}

func sourceOf(f *fixture, path string) domain.SourceEntity {
	current, err := f.extractor.Extract(path)
	So(err, ShouldBeNil)
	return domain.SourceEntity{Path: path, Current: current}
}

func entitiesOf(entities ...domain.SourceEntity) func(func(domain.SourceEntity, error) bool) {
	return func(yield func(domain.SourceEntity, error) bool) {
		for _, entity := range entities {
			if !yield(entity, nil) {
				return
			}
		}
	}
}

func stagedFiles(f *fixture) []os.DirEntry {
	entries, err := os.ReadDir(f.staging)
	So(err, ShouldBeNil)
	return entries
}
