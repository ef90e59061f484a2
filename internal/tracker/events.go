package tracker

import (
	"errors"
	"reflect"
	"time"

	"github.com/sndnv/stasis-sub000/internal/domain"
)

// Event is a single step reported by a running operation.
type Event interface {
	isEvent()
}

type Started struct {
	Definition domain.DatasetDefinitionID
	At         time.Time
}

type EntityDiscovered struct{ Path string }

type SpecificationProcessed struct{ Unmatched []string }

type EntityExamined struct {
	Path            string
	MetadataChanged bool
	ContentChanged  bool
}

type EntitySkipped struct{ Path string }

type EntityCollected struct {
	Path   string
	Source *domain.SourceEntity
	Target *domain.TargetEntity
}

type EntityProcessingStarted struct {
	Path          string
	ExpectedParts int
}

type EntityPartProcessed struct{ Path string }

// EntityProcessed carries the backup result; recovery leaves Result nil.
type EntityProcessed struct {
	Path   string
	Result domain.EntityResult
}

type MetadataCollected struct{ At time.Time }

type MetadataPushed struct {
	Entry domain.DatasetEntryID
	At    time.Time
}

type MetadataApplied struct{ Path string }

type EntityFailed struct {
	Path    string
	Failure Failure
}

type FailureEncountered struct{ Failure Failure }

type Completed struct{ At time.Time }

func (Started) isEvent()                 {}
func (EntityDiscovered) isEvent()        {}
func (SpecificationProcessed) isEvent()  {}
func (EntityExamined) isEvent()          {}
func (EntitySkipped) isEvent()           {}
func (EntityCollected) isEvent()         {}
func (EntityProcessingStarted) isEvent() {}
func (EntityPartProcessed) isEvent()     {}
func (EntityProcessed) isEvent()         {}
func (MetadataCollected) isEvent()       {}
func (MetadataPushed) isEvent()          {}
func (MetadataApplied) isEvent()         {}
func (EntityFailed) isEvent()            {}
func (FailureEncountered) isEvent()      {}
func (Completed) isEvent()               {}

// Failure is an error reduced to its type name and message.
type Failure struct {
	Type    string
	Message string
}

// NewFailure names the failure after the first error in the chain that is not
// a plain message or a wrapper.
func NewFailure(err error) Failure {
	if err == nil {
		return Failure{Type: "Error"}
	}

	name := "Error"
	for current := err; current != nil; current = errors.Unwrap(current) {
		if candidate := typeName(current); candidate != "" {
			name = candidate
			break
		}
	}

	return Failure{Type: name, Message: err.Error()}
}

func (f Failure) String() string {
	return f.Type + " - " + f.Message
}

func typeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch name := t.Name(); name {
	case "errorString", "wrapError", "wrapErrors", "joinError":
		return ""
	default:
		return name
	}
}
