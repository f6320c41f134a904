package hiding

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrOracleUnavailable marks a search aborted because a collaborator could
// not answer. Callers should hold their current target and retry later.
var ErrOracleUnavailable = errors.New("hiding: oracle unavailable")

// VisibilityOracle reports whether observer has an unobstructed line of
// sight to point.
type VisibilityOracle interface {
	IsVisibleTo(point, observer r3.Vec) (bool, error)
}

// TraversabilityOracle reports whether point lies on, or within snapping
// distance of, a navigable surface.
type TraversabilityOracle interface {
	IsTraversable(point r3.Vec) (bool, error)
}

// VisibilityFunc adapts a function to VisibilityOracle.
type VisibilityFunc func(point, observer r3.Vec) (bool, error)

// IsVisibleTo calls f(point, observer).
func (f VisibilityFunc) IsVisibleTo(point, observer r3.Vec) (bool, error) {
	return f(point, observer)
}

// TraversabilityFunc adapts a function to TraversabilityOracle.
type TraversabilityFunc func(point r3.Vec) (bool, error)

// IsTraversable calls f(point).
func (f TraversabilityFunc) IsTraversable(point r3.Vec) (bool, error) {
	return f(point)
}

// OracleError wraps a failure reported by an oracle. It matches
// ErrOracleUnavailable under errors.Is.
type OracleError struct {
	Oracle string // "visibility" or "traversability"
	Point  r3.Vec
	Err    error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("hiding: %s oracle failed at (%.3f, %.3f, %.3f): %v",
		e.Oracle, e.Point.X, e.Point.Y, e.Point.Z, e.Err)
}

func (e *OracleError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrOracleUnavailable.
func (e *OracleError) Is(target error) bool {
	return target == ErrOracleUnavailable
}

func visibilityError(p r3.Vec, err error) error {
	return &OracleError{Oracle: "visibility", Point: p, Err: err}
}

func traversabilityError(p r3.Vec, err error) error {
	return &OracleError{Oracle: "traversability", Point: p, Err: err}
}
