package tracker

import (
	"time"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

// Summary is a count-based view of an operation.
type Summary struct {
	Type      domain.OperationType
	Started   time.Time
	Total     int
	Processed int
	Failures  int
	Completed *time.Time
}

type Step struct {
	Name      string
	Completed time.Time
}

type Stage struct {
	Steps []Step
}

// Progress is the stage-by-stage log of an operation. Steps are appended in
// the order they were reported and are never deduplicated.
type Progress struct {
	Type      domain.OperationType
	Stages    map[string]Stage
	Failures  []string
	Completed *time.Time
}

func (p Progress) withStep(stage, step string, at time.Time) Progress {
	stages := make(map[string]Stage, len(p.Stages)+1)
	for name, existing := range p.Stages {
		stages[name] = existing
	}

	existing := stages[stage]
	steps := make([]Step, len(existing.Steps), len(existing.Steps)+1)
	copy(steps, existing.Steps)
	stages[stage] = Stage{Steps: append(steps, Step{Name: step, Completed: at})}

	p.Stages = stages
	return p
}

func (p Progress) withFailure(failure string) Progress {
	failures := make([]string, len(p.Failures), len(p.Failures)+1)
	copy(failures, p.Failures)
	p.Failures = append(failures, failure)
	return p
}

type AggregateState struct {
	Operations map[domain.OperationID]Progress
	Servers    map[string]ServerState
}
