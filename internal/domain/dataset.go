package domain

import (
	"fmt"
	"time"
)

type RetentionPolicyKind string

const (
	PolicyAtMost     RetentionPolicyKind = "at-most"
	PolicyLatestOnly RetentionPolicyKind = "latest-only"
	PolicyAll        RetentionPolicyKind = "all"
)

type RetentionPolicy struct {
	Kind     RetentionPolicyKind `json:"kind"`
	Versions int                 `json:"versions,omitempty"`
}

func (p RetentionPolicy) Validate() error {
	switch p.Kind {
	case PolicyAtMost:
		if p.Versions <= 0 {
			return fmt.Errorf("at-most retention policy requires a positive number of versions")
		}
	case PolicyLatestOnly, PolicyAll:
	default:
		return fmt.Errorf("unsupported retention policy [%s]", p.Kind)
	}
	return nil
}

type Retention struct {
	Policy   RetentionPolicy `json:"policy"`
	Duration time.Duration   `json:"duration"`
}

type DatasetDefinition struct {
	ID               DatasetDefinitionID
	Info             string
	Device           DeviceID
	RedundantCopies  int
	ExistingVersions Retention
	RemovedVersions  Retention
	Created          time.Time
	Updated          time.Time
}

type DatasetEntry struct {
	ID         DatasetEntryID
	Definition DatasetDefinitionID
	Device     DeviceID
	Data       []CrateID
	Metadata   CrateID
	Created    time.Time
}

type CreateDatasetDefinition struct {
	Info             string
	Device           DeviceID
	RedundantCopies  int
	ExistingVersions Retention
	RemovedVersions  Retention
}

type CreateDatasetEntry struct {
	Definition DatasetDefinitionID
	Device     DeviceID
	Data       []CrateID
	Metadata   CrateID
}

type Schedule struct {
	ID       ScheduleID
	Info     string
	IsPublic bool
	Start    time.Time
	Interval time.Duration
}

// NextInvocation returns the first invocation of the schedule after the given instant.
func (s Schedule) NextInvocation(after time.Time) time.Time {
	if s.Interval <= 0 || after.Before(s.Start) {
		return s.Start
	}
	elapsed := after.Sub(s.Start)
	return s.Start.Add((elapsed/s.Interval + 1) * s.Interval)
}
