package domain

import (
	"errors"
	"fmt"
)

var (
	ErrExpectedFileMetadata = errors.New("expected metadata for file but directory metadata provided")
	ErrReservationRejected  = errors.New("storage reservation rejected: not enough storage available")
	ErrInvalidReservation   = errors.New("push attempted without a valid storage reservation")
	ErrChecksumMismatch     = errors.New("checksum mismatch")
	ErrCrateMissing         = errors.New("failed to pull crate")
	ErrDefinitionNotFound   = errors.New("dataset definition not found")
	ErrEntryNotFound        = errors.New("dataset entry not found")
)

// UnexpectedStatusError is returned by clients when a remote endpoint answers
// with a status the client does not know how to handle.
type UnexpectedStatusError struct {
	Operation string
	Status    int
	Message   string
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("%s failed with unexpected status [%d]: %s", e.Operation, e.Status, e.Message)
}
