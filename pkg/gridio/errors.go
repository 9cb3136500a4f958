package gridio

import (
	"errors"
	"fmt"

	"github.com/edp1096/toy-powerflow/pkg/grid"
)

var (
	ErrFormat         = errors.New("gridio: malformed document")
	ErrModelIntegrity = errors.New("gridio: unresolved model reference")
)

// FormatError reports a missing or malformed field. Path locates the entity,
// e.g. "grid.lines[3]".
type FormatError struct {
	Path   string
	Field  string
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	loc := e.Path
	if e.Field != "" {
		loc += "." + e.Field
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", loc, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", loc, e.Reason)
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

func (e *FormatError) Unwrap() error { return e.Err }

// ModelIntegrityError reports an entity whose bus reference cannot be
// resolved or attached. Entities without an id of their own, such as schedule
// items, are located by Path instead.
type ModelIntegrityError struct {
	Kind  string // generator, shunt capacitor, line, transformer, schedule
	ID    int
	Path  string
	BusID int
	Err   error
}

func (e *ModelIntegrityError) Error() string {
	who := fmt.Sprintf("%s %d", e.Kind, e.ID)
	if e.Path != "" {
		who = e.Path
	}
	if e.Err == nil {
		return fmt.Sprintf("%s references %d which does not exist", who, e.BusID)
	}
	return fmt.Sprintf("%s references %d: %v", who, e.BusID, e.Err)
}

// Is matches ErrModelIntegrity, and grid.ErrUnknownBus for a dangling
// reference.
func (e *ModelIntegrityError) Is(target error) bool {
	return target == ErrModelIntegrity || (e.Err == nil && target == grid.ErrUnknownBus)
}

func (e *ModelIntegrityError) Unwrap() error { return e.Err }

func missing(path, field string) *FormatError {
	return &FormatError{Path: path, Field: field, Reason: "missing required field"}
}
