package tracker

import (
	"context"
	"fmt"
	"maps"
	"time"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

const (
	StageDiscovery       = "discovery"
	StageSpecification   = "specification"
	StageExamination     = "examination"
	StageCollection      = "collection"
	StageProcessing      = "processing"
	StageMetadata        = "metadata"
	StageMetadataApplied = "metadata-applied"
)

type aggregateEvent struct {
	operation domain.OperationID
	kind      domain.OperationType
	stage     string
	step      string
	failure   string
	completed bool
	server    string
	state     ServerState
	at        time.Time
}

// Aggregator folds the events of the backup, recovery and server trackers
// into a single view of every operation and server.
type Aggregator struct {
	store *store[struct{}, AggregateState, aggregateEvent]
}

func NewAggregator(backup *BackupTracker, recovery *RecoveryTracker, server *ServerTracker) *Aggregator {
	a := &Aggregator{
		store: newStore[struct{}, AggregateState, aggregateEvent](applyAggregate),
	}

	if backup != nil {
		backup.Listen(func(op domain.OperationID, event Event) {
			a.forward(backupEvents(op, event))
		})
	}

	if recovery != nil {
		recovery.Listen(func(op domain.OperationID, event Event) {
			a.forward(recoveryEvents(op, event))
		})
	}

	if server != nil {
		server.Listen(func(name string, state ServerState) {
			a.store.record(struct{}{}, aggregateEvent{server: name, state: state})
		})
	}

	return a
}

func (a *Aggregator) forward(events []aggregateEvent) {
	for _, event := range events {
		a.store.record(struct{}{}, event)
	}
}

func (a *Aggregator) State() AggregateState {
	state, ok := a.store.stateOf(struct{}{})
	if !ok {
		return emptyAggregate()
	}
	return state
}

func (a *Aggregator) Subscribe(ctx context.Context) <-chan AggregateState {
	out := make(chan AggregateState, 1)
	offer(out, a.State())

	in := a.store.updates(ctx, struct{}{})
	go func() {
		defer close(out)
		for state := range in {
			offer(out, state)
		}
	}()

	return out
}

// OperationUpdates publishes the progress of a single operation once it has
// recorded at least one step.
func (a *Aggregator) OperationUpdates(ctx context.Context, op domain.OperationID) <-chan Progress {
	out := make(chan Progress, 1)

	in := a.store.updates(ctx, struct{}{})
	go func() {
		defer close(out)
		for state := range in {
			if progress, ok := state.Operations[op]; ok {
				offer(out, progress)
			}
		}
	}()

	return out
}

func (a *Aggregator) Close() { a.store.close() }

func emptyAggregate() AggregateState {
	return AggregateState{
		Operations: map[domain.OperationID]Progress{},
		Servers:    map[string]ServerState{},
	}
}

func applyAggregate(_ struct{}, state AggregateState, exists bool, event aggregateEvent) AggregateState {
	if !exists {
		state = emptyAggregate()
	}

	if event.server != "" {
		servers := maps.Clone(state.Servers)
		servers[event.server] = event.state
		state.Servers = servers
		return state
	}

	progress, ok := state.Operations[event.operation]
	if !ok {
		progress = Progress{Type: event.kind, Stages: map[string]Stage{}, Failures: []string{}}
	}

	switch {
	case event.completed:
		at := event.at
		progress.Completed = &at
	case event.failure != "":
		progress = progress.withFailure(event.failure)
	case event.stage != "":
		progress = progress.withStep(event.stage, event.step, event.at)
	}

	operations := maps.Clone(state.Operations)
	operations[event.operation] = progress
	state.Operations = operations

	return state
}

func backupEvents(op domain.OperationID, event Event) []aggregateEvent {
	now := time.Now()
	step := func(stage, name string) []aggregateEvent {
		return []aggregateEvent{{operation: op, kind: domain.OperationBackup, stage: stage, step: name, at: now}}
	}

	switch event := event.(type) {
	case EntityDiscovered:
		return step(StageDiscovery, event.Path)
	case SpecificationProcessed:
		if len(event.Unmatched) == 0 {
			return step(StageSpecification, "processing")
		}
		events := make([]aggregateEvent, 0, len(event.Unmatched))
		for _, unmatched := range event.Unmatched {
			events = append(events, aggregateEvent{
				operation: op,
				kind:      domain.OperationBackup,
				failure:   renderAggregateFailure(Failure{Type: "RuleMatchingFailure", Message: unmatched}),
				at:        now,
			})
		}
		return events
	case EntityExamined:
		return step(StageExamination, event.Path)
	case EntityCollected:
		return step(StageCollection, event.Path)
	case EntityProcessed:
		return step(StageProcessing, event.Path)
	case MetadataCollected:
		return step(StageMetadata, "collection")
	case MetadataPushed:
		return step(StageMetadata, "push")
	}

	return commonEvents(op, domain.OperationBackup, event, now)
}

func recoveryEvents(op domain.OperationID, event Event) []aggregateEvent {
	now := time.Now()
	step := func(stage, name string) []aggregateEvent {
		return []aggregateEvent{{operation: op, kind: domain.OperationRecovery, stage: stage, step: name, at: now}}
	}

	switch event := event.(type) {
	case EntityExamined:
		return step(StageExamination, event.Path)
	case EntityCollected:
		return step(StageCollection, event.Path)
	case EntityProcessed:
		return step(StageProcessing, event.Path)
	case MetadataApplied:
		return step(StageMetadataApplied, event.Path)
	}

	return commonEvents(op, domain.OperationRecovery, event, now)
}

func commonEvents(op domain.OperationID, kind domain.OperationType, event Event, now time.Time) []aggregateEvent {
	switch event := event.(type) {
	case Started:
		return []aggregateEvent{{operation: op, kind: kind, at: event.At}}
	case EntityFailed:
		return []aggregateEvent{{operation: op, kind: kind, failure: renderAggregateFailure(event.Failure), at: now}}
	case FailureEncountered:
		return []aggregateEvent{{operation: op, kind: kind, failure: renderAggregateFailure(event.Failure), at: now}}
	case Completed:
		return []aggregateEvent{{operation: op, kind: kind, completed: true, at: event.At}}
	default:
		return nil
	}
}

func renderAggregateFailure(failure Failure) string {
	return fmt.Sprintf("%s: %s", failure.Type, failure.Message)
}
