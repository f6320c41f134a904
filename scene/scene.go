// Package scene provides a small static world for the evader simulation:
// box occluders indexed in an R-tree for line-of-sight queries, and a walk
// grid that answers traversability.
//
// The ground plane is X/Z with Y up. Occluders are axis-aligned footprints
// that extend infinitely in Y, so visibility is decided in the plane.
package scene

import (
	"errors"
	"fmt"
	"math"

	"github.com/dhconnelly/rtreego"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/hideout/hiding"
)

// ErrNonFinite is returned for queries with NaN or infinite coordinates.
var ErrNonFinite = errors.New("scene: non-finite point")

// minExtent keeps degenerate query rectangles valid for the R-tree.
const minExtent = 1e-6

// Occluder is a solid box footprint in the X/Z plane. Min.X/Max.X span world
// X and Min.Y/Max.Y span world Z.
type Occluder struct {
	ID  int
	Box r2.Box

	rect rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (o *Occluder) Bounds() rtreego.Rect {
	return o.rect
}

// Contains reports whether the ground point p lies inside the footprint.
func (o *Occluder) Contains(p r2.Vec) bool {
	return p.X >= o.Box.Min.X && p.X <= o.Box.Max.X && p.Y >= o.Box.Min.Y && p.Y <= o.Box.Max.Y
}

// Scene holds the static occluders of a rectangular area anchored at the
// origin.
type Scene struct {
	width, depth float64
	occluders    []*Occluder
	tree         *rtreego.Rtree
}

// New builds a scene of the given size from box footprints. Boxes are
// canonicalised; empty boxes are rejected.
func New(width, depth float64, boxes []r2.Box) (*Scene, error) {
	if !(width > 0) || !(depth > 0) || math.IsInf(width, 0) || math.IsInf(depth, 0) {
		return nil, fmt.Errorf("scene: invalid size %vx%v", width, depth)
	}

	s := &Scene{width: width, depth: depth}
	spatials := make([]rtreego.Spatial, 0, len(boxes))
	for i, b := range boxes {
		b = canon(b)
		size := r2.Sub(b.Max, b.Min)
		rect, err := rtreego.NewRect(rtreego.Point{b.Min.X, b.Min.Y}, []float64{size.X, size.Y})
		if err != nil {
			return nil, fmt.Errorf("scene: occluder %d: %w", i, err)
		}
		o := &Occluder{ID: i, Box: b, rect: rect}
		s.occluders = append(s.occluders, o)
		spatials = append(spatials, o)
	}
	s.tree = rtreego.NewTree(2, 25, 50, spatials...)
	return s, nil
}

// Width returns the X extent.
func (s *Scene) Width() float64 { return s.width }

// Depth returns the Z extent.
func (s *Scene) Depth() float64 { return s.depth }

// Occluders returns the scene's occluders in construction order.
func (s *Scene) Occluders() []*Occluder {
	return s.occluders
}

// InBounds reports whether p lies on the scene's ground area.
func (s *Scene) InBounds(p r3.Vec) bool {
	return p.X >= 0 && p.X <= s.width && p.Z >= 0 && p.Z <= s.depth
}

// Solid reports whether the ground point under p is inside an occluder.
func (s *Scene) Solid(p r3.Vec) bool {
	g := ground(p)
	for _, sp := range s.tree.SearchIntersect(pointRect(g)) {
		if sp.(*Occluder).Contains(g) {
			return true
		}
	}
	return false
}

// Near returns the occluders whose footprint lies within dist of g.
func (s *Scene) Near(g r2.Vec, dist float64) []*Occluder {
	rect, err := rtreego.NewRect(rtreego.Point{g.X - dist, g.Y - dist}, []float64{2*dist + minExtent, 2*dist + minExtent})
	if err != nil {
		return nil
	}
	var out []*Occluder
	for _, sp := range s.tree.SearchIntersect(rect) {
		o := sp.(*Occluder)
		if boxDistance(o.Box, g) <= dist {
			out = append(out, o)
		}
	}
	return out
}

// LineOfSight reports whether the open segment from a to b crosses no
// occluder. Segments that only graze an edge are unobstructed.
func (s *Scene) LineOfSight(a, b r3.Vec) bool {
	ga, gb := ground(a), ground(b)
	lo := r2.Vec{X: math.Min(ga.X, gb.X), Y: math.Min(ga.Y, gb.Y)}
	hi := r2.Vec{X: math.Max(ga.X, gb.X), Y: math.Max(ga.Y, gb.Y)}
	rect, err := rtreego.NewRect(rtreego.Point{lo.X, lo.Y}, []float64{hi.X - lo.X + minExtent, hi.Y - lo.Y + minExtent})
	if err != nil {
		return true
	}

	blocked := false
	s.tree.SearchIntersect(rect, func(_ []rtreego.Spatial, obj rtreego.Spatial) (refuse, abort bool) {
		if segmentHitsBox(ga, gb, obj.(*Occluder).Box) {
			blocked = true
			return false, true
		}
		return true, false
	})
	return !blocked
}

// Visibility returns an oracle that reports a point visible when the
// observer has an unobstructed line of sight to it. Bodies of the agent and
// observer never obstruct.
func (s *Scene) Visibility() hiding.VisibilityOracle {
	return hiding.VisibilityFunc(func(point, observer r3.Vec) (bool, error) {
		if !finite(point) || !finite(observer) {
			return false, fmt.Errorf("%w: point %v observer %v", ErrNonFinite, point, observer)
		}
		return s.LineOfSight(observer, point), nil
	})
}

// segmentHitsBox is a slab test of the open segment a→b against box.
func segmentHitsBox(a, b r2.Vec, box r2.Box) bool {
	d := r2.Sub(b, a)
	tmin, tmax := 0.0, 1.0

	for _, axis := range [2]struct{ o, d, lo, hi float64 }{
		{a.X, d.X, box.Min.X, box.Max.X},
		{a.Y, d.Y, box.Min.Y, box.Max.Y},
	} {
		if axis.d == 0 {
			if axis.o <= axis.lo || axis.o >= axis.hi {
				return false
			}
			continue
		}
		t0 := (axis.lo - axis.o) / axis.d
		t1 := (axis.hi - axis.o) / axis.d
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		tmin = math.Max(tmin, t0)
		tmax = math.Min(tmax, t1)
		if tmin >= tmax {
			return false
		}
	}
	return true
}

func boxDistance(b r2.Box, p r2.Vec) float64 {
	dx := math.Max(math.Max(b.Min.X-p.X, 0), p.X-b.Max.X)
	dy := math.Max(math.Max(b.Min.Y-p.Y, 0), p.Y-b.Max.Y)
	return math.Hypot(dx, dy)
}

func canon(b r2.Box) r2.Box {
	if b.Min.X > b.Max.X {
		b.Min.X, b.Max.X = b.Max.X, b.Min.X
	}
	if b.Min.Y > b.Max.Y {
		b.Min.Y, b.Max.Y = b.Max.Y, b.Min.Y
	}
	return b
}

func pointRect(g r2.Vec) rtreego.Rect {
	r, _ := rtreego.NewRect(rtreego.Point{g.X - minExtent/2, g.Y - minExtent/2}, []float64{minExtent, minExtent})
	return r
}

// ground projects a world point onto the X/Z plane.
func ground(p r3.Vec) r2.Vec {
	return r2.Vec{X: p.X, Y: p.Z}
}

func finite(p r3.Vec) bool {
	for _, c := range [3]float64{p.X, p.Y, p.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
