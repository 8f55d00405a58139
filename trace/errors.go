package trace

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedLog is returned when a log row can not be parsed.
	ErrMalformedLog = errors.New("malformed device log")
	// ErrReservedLocation is returned when a raw row uses a location or unit
	// name reserved for aggregate views.
	ErrReservedLocation = errors.New("reserved location in device log")
	// ErrAlignmentStall is returned when timeline alignment can make no progress.
	ErrAlignmentStall = errors.New("timeline alignment stalled")
)

// MalformedLogError carries the position of an unparseable field.
type MalformedLogError struct {
	Line  int
	Field string
	Err   error
}

func (e *MalformedLogError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: line %d: %v", ErrMalformedLog, e.Line, e.Err)
	}
	return fmt.Sprintf("%v: line %d: field %s: %v", ErrMalformedLog, e.Line, e.Field, e.Err)
}

func (e *MalformedLogError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrMalformedLog) hold for every MalformedLogError.
func (e *MalformedLogError) Is(target error) bool { return target == ErrMalformedLog }
