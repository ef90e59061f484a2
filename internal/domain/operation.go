package domain

import (
	"github.com/google/uuid"
)

type (
	OperationID         = uuid.UUID
	CrateID             = uuid.UUID
	DatasetDefinitionID = uuid.UUID
	DatasetEntryID      = uuid.UUID
	DeviceID            = uuid.UUID
	UserID              = uuid.UUID
	ReservationID       = uuid.UUID
	ScheduleID          = uuid.UUID
)

type OperationType string

const (
	OperationBackup   OperationType = "backup"
	OperationRecovery OperationType = "recovery"
)

// NewOperationID generates the identifier of a single backup or recovery run.
func NewOperationID() OperationID {
	return uuid.New()
}
