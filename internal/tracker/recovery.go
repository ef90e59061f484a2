package tracker

import (
	"context"
	"slices"
	"time"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

type ProcessedTargetEntity struct {
	ExpectedParts  int
	ProcessedParts int
}

type RecoveryEntities struct {
	Examined        map[string]struct{}
	Collected       map[string]domain.TargetEntity
	Pending         map[string]PendingEntity
	Processed       map[string]ProcessedTargetEntity
	MetadataApplied map[string]struct{}
	Failed          map[string]string
}

type RecoveryState struct {
	Operation domain.OperationID
	Started   time.Time
	Entities  RecoveryEntities
	Failures  []string
	Completed *time.Time
}

func newRecoveryState(operation domain.OperationID) RecoveryState {
	return RecoveryState{
		Operation: operation,
		Started:   time.Now(),
		Entities: RecoveryEntities{
			Examined:        map[string]struct{}{},
			Collected:       map[string]domain.TargetEntity{},
			Pending:         map[string]PendingEntity{},
			Processed:       map[string]ProcessedTargetEntity{},
			MetadataApplied: map[string]struct{}{},
			Failed:          map[string]string{},
		},
		Failures: []string{},
	}
}

func (s RecoveryState) Progress() Summary {
	return Summary{
		Type:      domain.OperationRecovery,
		Started:   s.Started,
		Total:     len(s.Entities.Examined),
		Processed: len(s.Entities.Processed),
		Failures:  len(s.Entities.Failed) + len(s.Failures),
		Completed: s.Completed,
	}
}

func applyRecovery(op domain.OperationID, state RecoveryState, exists bool, event Event) RecoveryState {
	if !exists {
		state = newRecoveryState(op)
	}
	return state.with(event)
}

func (s RecoveryState) with(event Event) RecoveryState {
	e := s.Entities

	switch event := event.(type) {
	case Started:
		s.Started = event.At
	case EntityExamined:
		e.Examined = withPath(e.Examined, event.Path)
	case EntityCollected:
		if event.Target != nil {
			e.Collected = withEntry(e.Collected, event.Path, *event.Target)
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
		e.Processed = withEntry(e.Processed, event.Path, ProcessedTargetEntity{
			ExpectedParts:  pending.ExpectedParts,
			ProcessedParts: pending.ProcessedParts,
		})
	case MetadataApplied:
		e.MetadataApplied = withPath(e.MetadataApplied, event.Path)
	case EntityFailed:
		e.Failed = withEntry(e.Failed, event.Path, event.Failure.String())
	case FailureEncountered:
		s.Failures = append(slices.Clone(s.Failures), event.Failure.String())
	case Completed:
		s.Completed = &event.At
	}

	s.Entities = e
	return s
}

// RecoveryTracker records the progress of recovery operations.
type RecoveryTracker struct {
	store *store[domain.OperationID, RecoveryState, Event]
}

func NewRecoveryTracker() *RecoveryTracker {
	return &RecoveryTracker{
		store: newStore[domain.OperationID, RecoveryState, Event](applyRecovery),
	}
}

func (t *RecoveryTracker) record(op domain.OperationID, event Event) {
	t.store.record(op, event)
}

func (t *RecoveryTracker) Started(op domain.OperationID) {
	t.record(op, Started{At: time.Now()})
}

func (t *RecoveryTracker) EntityExamined(op domain.OperationID, path string, metadataChanged, contentChanged bool) {
	t.record(op, EntityExamined{Path: path, MetadataChanged: metadataChanged, ContentChanged: contentChanged})
}

func (t *RecoveryTracker) EntityCollected(op domain.OperationID, entity domain.TargetEntity) {
	t.record(op, EntityCollected{Path: entity.Path, Target: &entity})
}

func (t *RecoveryTracker) EntityProcessingStarted(op domain.OperationID, path string, expectedParts int) {
	t.record(op, EntityProcessingStarted{Path: path, ExpectedParts: expectedParts})
}

func (t *RecoveryTracker) EntityPartProcessed(op domain.OperationID, path string) {
	t.record(op, EntityPartProcessed{Path: path})
}

func (t *RecoveryTracker) EntityProcessed(op domain.OperationID, path string) {
	t.record(op, EntityProcessed{Path: path})
}

func (t *RecoveryTracker) MetadataApplied(op domain.OperationID, path string) {
	t.record(op, MetadataApplied{Path: path})
}

func (t *RecoveryTracker) EntityFailed(op domain.OperationID, path string, err error) {
	t.record(op, EntityFailed{Path: path, Failure: NewFailure(err)})
}

func (t *RecoveryTracker) FailureEncountered(op domain.OperationID, err error) {
	t.record(op, FailureEncountered{Failure: NewFailure(err)})
}

func (t *RecoveryTracker) Completed(op domain.OperationID) {
	t.record(op, Completed{At: time.Now()})
}

func (t *RecoveryTracker) Remove(op domain.OperationID) { t.store.remove(op) }

func (t *RecoveryTracker) Clear() { t.store.clear() }

func (t *RecoveryTracker) StateOf(op domain.OperationID) (RecoveryState, bool) {
	return t.store.stateOf(op)
}

func (t *RecoveryTracker) State() map[domain.OperationID]RecoveryState {
	return t.store.state()
}

func (t *RecoveryTracker) Subscribe(ctx context.Context) <-chan map[domain.OperationID]RecoveryState {
	return t.store.subscribe(ctx)
}

func (t *RecoveryTracker) Updates(ctx context.Context, op domain.OperationID) <-chan RecoveryState {
	return t.store.updates(ctx, op)
}

func (t *RecoveryTracker) Listen(listener func(domain.OperationID, Event)) {
	t.store.listen(listener)
}

func (t *RecoveryTracker) Close() { t.store.close() }
