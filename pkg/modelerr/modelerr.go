// Package modelerr defines the error taxonomy shared by the radiative and sky
// models. Callers distinguish recoverable missing-data conditions from model
// faults with errors.Is against the package sentinels.
package modelerr

import (
	"errors"
	"fmt"
)

// Kind classifies a model error.
type Kind int

const (
	// UnitMismatch means a quantity arrived with an unexpected physical dimension.
	UnitMismatch Kind = iota + 1
	// InsufficientData means a required upstream observable was NaN or missing.
	InsufficientData
	// RangeViolation means a derived dimensionless quantity left its valid domain.
	RangeViolation
	// Integration means the photon flux integral failed or went non-finite.
	Integration
)

func (k Kind) String() string {
	switch k {
	case UnitMismatch:
		return "unit mismatch"
	case InsufficientData:
		return "insufficient data"
	case RangeViolation:
		return "range violation"
	case Integration:
		return "integration"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels for errors.Is. Any *Error of the same Kind matches.
var (
	ErrUnitMismatch     = &Error{Kind: UnitMismatch}
	ErrInsufficientData = &Error{Kind: InsufficientData}
	ErrRangeViolation   = &Error{Kind: RangeViolation}
	ErrIntegration      = &Error{Kind: Integration}
)

// Error is a classified model error.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "sky.Emissivity"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// UnitMismatchf returns a UnitMismatch error.
func UnitMismatchf(op, format string, args ...any) error {
	return newf(UnitMismatch, op, format, args...)
}

// InsufficientDataf returns an InsufficientData error.
func InsufficientDataf(op, format string, args ...any) error {
	return newf(InsufficientData, op, format, args...)
}

// RangeViolationf returns a RangeViolation error.
func RangeViolationf(op, format string, args ...any) error {
	return newf(RangeViolation, op, format, args...)
}

// Integrationf returns an Integration error.
func Integrationf(op, format string, args ...any) error {
	return newf(Integration, op, format, args...)
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return 0
}

// IsRecoverable reports whether a batch loop may skip the point that produced
// err and carry on. Only missing upstream data qualifies.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}
