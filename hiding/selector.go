// Package hiding picks concealment points for an agent evading an observer.
//
// A search samples a Poisson-disc point set over a square centred on the
// agent, classifies every sample against a visibility and a traversability
// oracle, and proposes the nearest hidden, reachable sample as the new
// destination.
package hiding

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/hideout/sampling"
)

// Class tags a sampled candidate.
type Class uint8

const (
	ClassVisible Class = iota
	ClassHiddenUnreachable
	ClassHiddenReachable
)

func (c Class) String() string {
	switch c {
	case ClassVisible:
		return "visible"
	case ClassHiddenUnreachable:
		return "hidden_unreachable"
	case ClassHiddenReachable:
		return "hidden_reachable"
	default:
		return fmt.Sprintf("class(%d)", uint8(c))
	}
}

// Query holds the inputs of one search.
type Query struct {
	Agent          r3.Vec
	Observer       r3.Vec
	SamplingRadius float64 // side of the square sampled around the agent
	PointSpacing   float64 // minimum distance between candidates
}

// Params returns the sampling domain for the query.
func (q Query) Params(attempts int) sampling.Params {
	return sampling.Params{
		Width:    q.SamplingRadius,
		Height:   q.SamplingRadius,
		Radius:   q.PointSpacing,
		Attempts: attempts,
	}
}

// Bounds returns the world-space square covered by the search.
func (q Query) Bounds() Bounds {
	half := q.SamplingRadius / 2
	return Bounds{
		Min: r3.Vec{X: q.Agent.X - half, Y: q.Agent.Y, Z: q.Agent.Z - half},
		Max: r3.Vec{X: q.Agent.X + half, Y: q.Agent.Y, Z: q.Agent.Z + half},
	}
}

func (q Query) validate(attempts int) error {
	for _, v := range []float64{q.Agent.X, q.Agent.Y, q.Agent.Z, q.Observer.X, q.Observer.Y, q.Observer.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite agent or observer position", sampling.ErrInvalidParams)
		}
	}
	if err := q.Params(attempts).Validate(); err != nil {
		return fmt.Errorf("hiding: %w", err)
	}
	return nil
}

// Bounds is an axis-aligned square on the ground plane.
type Bounds struct {
	Min, Max r3.Vec
}

// ToWorld maps a sample from the local sampling frame onto the ground plane,
// centring the domain on the agent.
func ToWorld(agent r3.Vec, local r2.Vec, samplingRadius float64) r3.Vec {
	half := samplingRadius / 2
	return r3.Add(agent, r3.Vec{X: local.X - half, Y: 0, Z: local.Y - half})
}

// Candidate is one classified sample.
type Candidate struct {
	Index    int    // emission order within the search
	Local    r2.Vec // position in the sampling frame
	World    r3.Vec
	Class    Class
	Distance float64 // distance to the agent
}

// Result is the outcome of one search. It supersedes any earlier result.
type Result struct {
	Found       bool
	Target      r3.Vec
	TargetIndex int // index into Candidates, -1 when nothing was found
	Candidates  []Candidate
	Bounds      Bounds

	// Sampling is the sampler's work, when the point source reports it
	Sampling sampling.Stats
}

// Counts tallies candidates per class.
func (r Result) Counts() (visible, hiddenUnreachable, hiddenReachable int) {
	for _, c := range r.Candidates {
		switch c.Class {
		case ClassVisible:
			visible++
		case ClassHiddenUnreachable:
			hiddenUnreachable++
		case ClassHiddenReachable:
			hiddenReachable++
		}
	}
	return visible, hiddenUnreachable, hiddenReachable
}

// Visible returns the world positions the observer can see.
func (r Result) Visible() []r3.Vec {
	return r.filter(func(c Class) bool { return c == ClassVisible })
}

// Hidden returns every hidden world position, reachable or not.
func (r Result) Hidden() []r3.Vec {
	return r.filter(func(c Class) bool { return c != ClassVisible })
}

// Eligible returns the hidden, reachable world positions.
func (r Result) Eligible() []r3.Vec {
	return r.filter(func(c Class) bool { return c == ClassHiddenReachable })
}

func (r Result) filter(keep func(Class) bool) []r3.Vec {
	var out []r3.Vec
	for _, c := range r.Candidates {
		if keep(c.Class) {
			out = append(out, c.World)
		}
	}
	return out
}

// PointSource yields sample points in the local sampling frame.
// *sampling.Sampler satisfies it.
type PointSource interface {
	Next() (r2.Vec, bool)
}

// Selector runs hiding-spot searches. It keeps no state between searches
// beyond its random source.
type Selector struct {
	Visibility     VisibilityOracle
	Traversability TraversabilityOracle
	Rand           sampling.Rand
	Attempts       int // sampler attempts per active point; 0 uses the default

	// NewSource replaces the Poisson-disc sampler when set.
	NewSource func(p sampling.Params) (PointSource, error)
}

// NewSelector creates a selector drawing samples from rng.
func NewSelector(vis VisibilityOracle, trav TraversabilityOracle, rng sampling.Rand) *Selector {
	return &Selector{
		Visibility:     vis,
		Traversability: trav,
		Rand:           rng,
	}
}

// SelectHidingSpot runs a single search with a fresh selector.
func SelectHidingSpot(q Query, vis VisibilityOracle, trav TraversabilityOracle, rng sampling.Rand) (Result, error) {
	return NewSelector(vis, trav, rng).Select(q)
}

// Select samples around q.Agent and returns the nearest hidden, reachable
// candidate. An empty Result with a nil error means no candidate qualified.
// Oracle failures abort the search and return an *OracleError.
func (s *Selector) Select(q Query) (Result, error) {
	empty := Result{TargetIndex: -1, Bounds: q.Bounds()}

	if err := q.validate(s.Attempts); err != nil {
		return empty, err
	}
	if s.Visibility == nil || s.Traversability == nil {
		return empty, fmt.Errorf("%w: selector has no oracles", ErrOracleUnavailable)
	}

	src, err := s.source(q.Params(s.Attempts))
	if err != nil {
		return empty, fmt.Errorf("hiding: %w", err)
	}

	res := empty
	bestDist := math.Inf(1)

	for i := 0; ; i++ {
		local, ok := src.Next()
		if !ok {
			break
		}

		world := ToWorld(q.Agent, local, q.SamplingRadius)
		class, err := s.classify(world, q.Observer)
		if err != nil {
			return empty, err
		}

		c := Candidate{
			Index:    i,
			Local:    local,
			World:    world,
			Class:    class,
			Distance: r3.Norm(r3.Sub(world, q.Agent)),
		}
		// Strict comparison keeps the first sampled candidate on ties.
		if class == ClassHiddenReachable && c.Distance < bestDist {
			bestDist = c.Distance
			res.TargetIndex = len(res.Candidates)
		}
		res.Candidates = append(res.Candidates, c)
	}

	if st, ok := src.(interface{ Stats() sampling.Stats }); ok {
		res.Sampling = st.Stats()
	}
	if res.TargetIndex >= 0 {
		res.Found = true
		res.Target = res.Candidates[res.TargetIndex].World
	}
	return res, nil
}

func (s *Selector) source(p sampling.Params) (PointSource, error) {
	if s.NewSource != nil {
		return s.NewSource(p)
	}
	return sampling.New(p, s.Rand)
}

// classify queries visibility first; traversability is only consulted for
// hidden points.
func (s *Selector) classify(world, observer r3.Vec) (Class, error) {
	visible, err := s.Visibility.IsVisibleTo(world, observer)
	if err != nil {
		return ClassVisible, visibilityError(world, err)
	}
	if visible {
		return ClassVisible, nil
	}

	reachable, err := s.Traversability.IsTraversable(world)
	if err != nil {
		return ClassVisible, traversabilityError(world, err)
	}
	if reachable {
		return ClassHiddenReachable, nil
	}
	return ClassHiddenUnreachable, nil
}
