package tracker

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

type PendingEntity struct {
	ExpectedParts  int
	ProcessedParts int
}

type ProcessedSourceEntity struct {
	ExpectedParts  int
	ProcessedParts int
	Result         domain.EntityResult
}

type BackupEntities struct {
	Discovered map[string]struct{}
	Unmatched  []string
	Examined   map[string]struct{}
	Skipped    map[string]struct{}
	Collected  map[string]domain.SourceEntity
	Pending    map[string]PendingEntity
	Processed  map[string]ProcessedSourceEntity
	Failed     map[string]string
}

type BackupState struct {
	Operation         domain.OperationID
	Definition        domain.DatasetDefinitionID
	Started           time.Time
	Entities          BackupEntities
	MetadataCollected *time.Time
	MetadataPushed    *time.Time
	Entry             *domain.DatasetEntryID
	Failures          []string
	Completed         *time.Time
}

func newBackupState(operation domain.OperationID) BackupState {
	return BackupState{
		Operation: operation,
		Started:   time.Now(),
		Entities: BackupEntities{
			Discovered: map[string]struct{}{},
			Unmatched:  []string{},
			Examined:   map[string]struct{}{},
			Skipped:    map[string]struct{}{},
			Collected:  map[string]domain.SourceEntity{},
			Pending:    map[string]PendingEntity{},
			Processed:  map[string]ProcessedSourceEntity{},
			Failed:     map[string]string{},
		},
		Failures: []string{},
	}
}

// Progress summarizes the state as counts.
func (s BackupState) Progress() Summary {
	return Summary{
		Type:      domain.OperationBackup,
		Started:   s.Started,
		Total:     len(s.Entities.Discovered),
		Processed: len(s.Entities.Skipped) + len(s.Entities.Processed),
		Failures:  len(s.Entities.Failed) + len(s.Failures),
		Completed: s.Completed,
	}
}

// Remaining lists discovered entities that were not processed yet.
func (s BackupState) Remaining() []string {
	if s.Completed != nil {
		return nil
	}

	var remaining []string
	for path := range s.Entities.Discovered {
		if _, ok := s.Entities.Processed[path]; !ok {
			remaining = append(remaining, path)
		}
	}
	slices.Sort(remaining)
	return remaining
}

func applyBackup(op domain.OperationID, state BackupState, exists bool, event Event) BackupState {
	if !exists {
		state = newBackupState(op)
	}
	return state.with(event)
}

func (s BackupState) with(event Event) BackupState {
	e := s.Entities

	switch event := event.(type) {
	case Started:
		s.Definition = event.Definition
		s.Started = event.At
	case EntityDiscovered:
		e.Discovered = withPath(e.Discovered, event.Path)
	case SpecificationProcessed:
		e.Unmatched = slices.Clone(event.Unmatched)
	case EntityExamined:
		e.Examined = withPath(e.Examined, event.Path)
	case EntitySkipped:
		e.Skipped = withPath(e.Skipped, event.Path)
	case EntityCollected:
		if event.Source != nil {
			e.Collected = withEntry(e.Collected, event.Path, *event.Source)
		}
	case EntityProcessingStarted:
		e.Pending = withEntry(e.Pending, event.Path, PendingEntity{ExpectedParts: event.ExpectedParts})
	case EntityPartProcessed:
		pending, ok := e.Pending[event.Path]
		if !ok {
			return s
		}
		pending.ProcessedParts++
		e.Pending = withEntry(e.Pending, event.Path, pending)
	case EntityProcessed:
		pending := e.Pending[event.Path]
		e.Pending = withoutEntry(e.Pending, event.Path)
		e.Processed = withEntry(e.Processed, event.Path, ProcessedSourceEntity{
			ExpectedParts:  pending.ExpectedParts,
			ProcessedParts: pending.ProcessedParts,
			Result:         event.Result,
		})
	case EntityFailed:
		e.Failed = withEntry(e.Failed, event.Path, event.Failure.String())
	case MetadataCollected:
		s.MetadataCollected = &event.At
	case MetadataPushed:
		entry := event.Entry
		s.Entry = &entry
		s.MetadataPushed = &event.At
	case FailureEncountered:
		s.Failures = append(slices.Clone(s.Failures), event.Failure.String())
	case Completed:
		s.Completed = &event.At
	}

	s.Entities = e
	return s
}

// BackupTracker records the progress of backup operations.
type BackupTracker struct {
	store *store[domain.OperationID, BackupState, Event]
}

func NewBackupTracker() *BackupTracker {
	return &BackupTracker{
		store: newStore[domain.OperationID, BackupState, Event](applyBackup),
	}
}

func (t *BackupTracker) record(op domain.OperationID, event Event) {
	t.store.record(op, event)
}

func (t *BackupTracker) Started(op domain.OperationID, definition domain.DatasetDefinitionID) {
	t.record(op, Started{Definition: definition, At: time.Now()})
}

func (t *BackupTracker) EntityDiscovered(op domain.OperationID, path string) {
	t.record(op, EntityDiscovered{Path: path})
}

func (t *BackupTracker) SpecificationProcessed(op domain.OperationID, unmatched []domain.RuleFailure) {
	t.record(op, SpecificationProcessed{Unmatched: renderUnmatched(unmatched)})
}

func (t *BackupTracker) EntityExamined(op domain.OperationID, path string, metadataChanged, contentChanged bool) {
	t.record(op, EntityExamined{Path: path, MetadataChanged: metadataChanged, ContentChanged: contentChanged})
}

func (t *BackupTracker) EntitySkipped(op domain.OperationID, path string) {
	t.record(op, EntitySkipped{Path: path})
}

func (t *BackupTracker) EntityCollected(op domain.OperationID, entity domain.SourceEntity) {
	t.record(op, EntityCollected{Path: entity.Path, Source: &entity})
}

func (t *BackupTracker) EntityProcessingStarted(op domain.OperationID, path string, expectedParts int) {
	t.record(op, EntityProcessingStarted{Path: path, ExpectedParts: expectedParts})
}

func (t *BackupTracker) EntityPartProcessed(op domain.OperationID, path string) {
	t.record(op, EntityPartProcessed{Path: path})
}

func (t *BackupTracker) EntityProcessed(op domain.OperationID, path string, result domain.EntityResult) {
	t.record(op, EntityProcessed{Path: path, Result: result})
}

func (t *BackupTracker) MetadataCollected(op domain.OperationID) {
	t.record(op, MetadataCollected{At: time.Now()})
}

func (t *BackupTracker) MetadataPushed(op domain.OperationID, entry domain.DatasetEntryID) {
	t.record(op, MetadataPushed{Entry: entry, At: time.Now()})
}

func (t *BackupTracker) EntityFailed(op domain.OperationID, path string, err error) {
	t.record(op, EntityFailed{Path: path, Failure: NewFailure(err)})
}

func (t *BackupTracker) FailureEncountered(op domain.OperationID, err error) {
	t.record(op, FailureEncountered{Failure: NewFailure(err)})
}

func (t *BackupTracker) Completed(op domain.OperationID) {
	t.record(op, Completed{At: time.Now()})
}

func (t *BackupTracker) Remove(op domain.OperationID) { t.store.remove(op) }

func (t *BackupTracker) Clear() { t.store.clear() }

func (t *BackupTracker) StateOf(op domain.OperationID) (BackupState, bool) {
	return t.store.stateOf(op)
}

func (t *BackupTracker) State() map[domain.OperationID]BackupState {
	return t.store.state()
}

func (t *BackupTracker) Subscribe(ctx context.Context) <-chan map[domain.OperationID]BackupState {
	return t.store.subscribe(ctx)
}

func (t *BackupTracker) Updates(ctx context.Context, op domain.OperationID) <-chan BackupState {
	return t.store.updates(ctx, op)
}

// Listen registers a hook that receives every recorded event.
func (t *BackupTracker) Listen(listener func(domain.OperationID, Event)) {
	t.store.listen(listener)
}

func (t *BackupTracker) Close() { t.store.close() }

func renderUnmatched(unmatched []domain.RuleFailure) []string {
	rendered := make([]string, 0, len(unmatched))
	for _, failure := range unmatched {
		rendered = append(rendered, failure.String())
	}
	slices.Sort(rendered)
	return rendered
}

func withPath(set map[string]struct{}, path string) map[string]struct{} {
	return withEntry(set, path, struct{}{})
}

func withEntry[V any](m map[string]V, key string, value V) map[string]V {
	next := maps.Clone(m)
	if next == nil {
		next = make(map[string]V)
	}
	next[key] = value
	return next
}

func withoutEntry[V any](m map[string]V, key string) map[string]V {
	if _, ok := m[key]; !ok {
		return m
	}
	next := maps.Clone(m)
	delete(next, key)
	return next
}
