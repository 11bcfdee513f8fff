package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is the sentinel matched by NotFoundError via errors.Is.
var ErrNotFound = errors.New("record not found")

// NotFoundError is returned when no stored record exists for a key.
type NotFoundError struct {
	Key EntityKey
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Key.Type, e.Key.ID)
}

// Is lets errors.Is(err, ErrNotFound) match.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// UnresolvedTypeError is returned when the model registry cannot map a type tag.
type UnresolvedTypeError struct {
	Type string
}

func (e UnresolvedTypeError) Error() string {
	return fmt.Sprintf("unresolved entity type %q", e.Type)
}

// UnknownFieldError is returned when a field is neither declared as a scalar
// nor as a relationship on the entity's schema.
type UnknownFieldError struct {
	Type  string
	Field string
}

func (e UnknownFieldError) Error() string {
	return fmt.Sprintf("%s has no field %q", e.Type, e.Field)
}

// ImmutableIDError guards against reassigning an id once it was issued.
type ImmutableIDError struct {
	Key       EntityKey
	Attempted any
}

func (e ImmutableIDError) Error() string {
	return fmt.Sprintf("%s: id is immutable (attempted %v)", e.Key, e.Attempted)
}

// SerializationError reports a value that cannot round-trip through the
// canonical record encoding.
type SerializationError struct {
	Field string
	Err   error
}

func (e SerializationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("serialization: %v", e.Err)
	}
	return fmt.Sprintf("serialization of %s: %v", e.Field, e.Err)
}

func (e SerializationError) Unwrap() error { return e.Err }

// RecordState tracks one record through a save call.
type RecordState string

const (
	StateNew         RecordState = "new"
	StateKeyAssigned RecordState = "key_assigned"
	StateSimplified  RecordState = "simplified"
	StateMerged      RecordState = "merged"
	StateSkipped     RecordState = "skipped"
	StateNewWrite    RecordState = "new_write"
	StatePersisted   RecordState = "persisted"
	StateFailed      RecordState = "failed"
)

// RecordResult is the outcome for one record of a save call. Resolution
// records how the write was decided (merged, skipped or new_write) and State
// its terminal state.
type RecordResult struct {
	Key        EntityKey
	Resolution RecordState
	State      RecordState
	Err        error
}

// PersistPartialFailureError lists the records of one save call that could
// not be written. Records absent from the list were handled normally.
type PersistPartialFailureError struct {
	Root   EntityKey
	Failed []RecordResult
}

func (e *PersistPartialFailureError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s: %v", f.Key, f.Err))
	}
	return fmt.Sprintf("save %s: %d record(s) failed: %s", e.Root, len(e.Failed), strings.Join(parts, "; "))
}

// Unwrap exposes the individual record errors.
func (e *PersistPartialFailureError) Unwrap() []error {
	out := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		if f.Err != nil {
			out = append(out, f.Err)
		}
	}
	return out
}
