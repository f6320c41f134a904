// Package sampling generates blue-noise point sets with Bridson's
// Poisson-disc algorithm.
package sampling

import (
	"errors"
	"fmt"
	"iter"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// DefaultAttempts is the number of candidates tried around an active sample
// before it is retired from the frontier.
const DefaultAttempts = 30

// maxCells bounds the acceleration grid so a tiny radius over a huge domain
// fails fast instead of exhausting memory.
const maxCells = 1 << 24

// ErrInvalidParams is returned when the sampling domain cannot be sampled.
var ErrInvalidParams = errors.New("sampling: invalid params")

// Rand is the random source consumed by the sampler.
// *math/rand.Rand satisfies it.
type Rand interface {
	Float64() float64
	Intn(n int) int
}

// Params describes a rectangular sampling domain [0,Width]x[0,Height] and the
// minimum spacing between samples.
type Params struct {
	Width    float64
	Height   float64
	Radius   float64
	Attempts int // candidates per active sample; 0 uses DefaultAttempts
}

// Validate checks that the domain is finite and non-degenerate.
func (p Params) Validate() error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: %s must be a positive finite number, got %v", ErrInvalidParams, name, v)
		}
		return nil
	}
	if err := check("width", p.Width); err != nil {
		return err
	}
	if err := check("height", p.Height); err != nil {
		return err
	}
	if err := check("radius", p.Radius); err != nil {
		return err
	}
	if p.Attempts < 0 {
		return fmt.Errorf("%w: attempts must not be negative, got %d", ErrInvalidParams, p.Attempts)
	}

	cellSize := p.Radius / math.Sqrt2
	cells := math.Ceil(p.Width/cellSize) * math.Ceil(p.Height/cellSize)
	if cells > maxCells {
		return fmt.Errorf("%w: radius %v too small for %vx%v domain", ErrInvalidParams, p.Radius, p.Width, p.Height)
	}
	return nil
}

// Stats counts the work done by a sampler so far.
type Stats struct {
	Emitted  int // samples returned
	Attempts int // candidates generated
	Rejected int // candidates outside the domain or too close to a neighbor
	Retired  int // active samples removed after exhausting their attempts
}

// Sampler lazily produces a Poisson-disc point set. It is single-pass and
// not safe for concurrent use.
type Sampler struct {
	params   Params
	rng      Rand
	attempts int
	radius2  float64
	grid     *grid
	active   []r2.Vec
	started  bool
	stats    Stats
}

// New creates a sampler over the given domain drawing from rng.
func New(p Params, rng Rand) (*Sampler, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("%w: nil random source", ErrInvalidParams)
	}

	attempts := p.Attempts
	if attempts == 0 {
		attempts = DefaultAttempts
	}

	return &Sampler{
		params:   p,
		rng:      rng,
		attempts: attempts,
		radius2:  p.Radius * p.Radius,
		grid:     newGrid(p.Width, p.Height, p.Radius/math.Sqrt2),
		active:   make([]r2.Vec, 0, 16),
	}, nil
}

// Next returns the next sample, or false once the frontier is exhausted.
func (s *Sampler) Next() (r2.Vec, bool) {
	if !s.started {
		s.started = true
		seed := r2.Vec{
			X: s.rng.Float64() * s.params.Width,
			Y: s.rng.Float64() * s.params.Height,
		}
		return s.add(seed), true
	}

	for len(s.active) > 0 {
		i := s.rng.Intn(len(s.active))
		origin := s.active[i]

		for j := 0; j < s.attempts; j++ {
			s.stats.Attempts++
			candidate := s.annulusPoint(origin)
			if s.contains(candidate) && s.grid.farEnough(candidate, s.radius2) {
				return s.add(candidate), true
			}
			s.stats.Rejected++
		}

		s.retire(i)
	}

	return r2.Vec{}, false
}

// All returns the remaining samples as a range-over-func sequence.
func (s *Sampler) All() iter.Seq[r2.Vec] {
	return func(yield func(r2.Vec) bool) {
		for {
			p, ok := s.Next()
			if !ok || !yield(p) {
				return
			}
		}
	}
}

// Stats returns the work counters accumulated so far.
func (s *Sampler) Stats() Stats {
	return s.stats
}

// Active returns the current frontier size.
func (s *Sampler) Active() int {
	return len(s.active)
}

// Params returns the domain the sampler was built for.
func (s *Sampler) Params() Params {
	return s.params
}

// annulusPoint draws a point uniformly by area from the annulus
// [radius, 2*radius] around origin.
func (s *Sampler) annulusPoint(origin r2.Vec) r2.Vec {
	angle := 2 * math.Pi * s.rng.Float64()
	dist := math.Sqrt(s.rng.Float64()*3*s.radius2 + s.radius2)
	return r2.Add(origin, r2.Vec{X: dist * math.Cos(angle), Y: dist * math.Sin(angle)})
}

func (s *Sampler) contains(p r2.Vec) bool {
	return p.X >= 0 && p.X <= s.params.Width && p.Y >= 0 && p.Y <= s.params.Height
}

func (s *Sampler) add(p r2.Vec) r2.Vec {
	s.active = append(s.active, p)
	s.grid.insert(p)
	s.stats.Emitted++
	return p
}

// retire swap-removes active[i]; the sample stays in the grid.
func (s *Sampler) retire(i int) {
	last := len(s.active) - 1
	s.active[i] = s.active[last]
	s.active = s.active[:last]
	s.stats.Retired++
}

// Sample runs a sampler to completion and returns every point in emission order.
func Sample(p Params, rng Rand) ([]r2.Vec, error) {
	s, err := New(p, rng)
	if err != nil {
		return nil, err
	}

	points := make([]r2.Vec, 0, estimateCount(p))
	for pt := range s.All() {
		points = append(points, pt)
	}
	return points, nil
}

// estimateCount approximates the number of samples a maximal packing yields,
// used only to size allocations.
func estimateCount(p Params) int {
	n := int(p.Width * p.Height / (p.Radius * p.Radius))
	return min(max(n, 1), 4096)
}
