package scene

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/hideout/hiding"
)

// WalkGrid stores walkable ground for traversability queries.
// Cells are marked as blocked (true) or open (false).
type WalkGrid struct {
	scene    *Scene
	cells    []bool  // true = blocked
	cellSize float64 // world units per cell
	cols     int
	rows     int
	snap     float64 // max distance to snap onto an open cell
}

// NewWalkGrid rasterises the scene, inflated by inflation, into cells of the
// given size. A point is traversable when an open cell centre lies within
// snap of it.
func NewWalkGrid(s *Scene, cellSize, inflation, snap float64) (*WalkGrid, error) {
	if !(cellSize > 0) || inflation < 0 || snap < 0 {
		return nil, fmt.Errorf("scene: invalid walk grid (cell %v, inflation %v, snap %v)", cellSize, inflation, snap)
	}

	cols := max(int(math.Ceil(s.width/cellSize)), 1)
	rows := max(int(math.Ceil(s.depth/cellSize)), 1)

	g := &WalkGrid{
		scene:    s,
		cells:    make([]bool, cols*rows),
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		snap:     snap,
	}

	for gy := 0; gy < rows; gy++ {
		for gx := 0; gx < cols; gx++ {
			c := g.centre(gx, gy)
			blocked := c.X > s.width || c.Y > s.depth
			if !blocked {
				// Any occluder within the inflation distance blocks the cell.
				blocked = len(s.Near(c, inflation)) > 0
			}
			g.cells[gy*cols+gx] = blocked
		}
	}

	return g, nil
}

// Size returns the grid dimensions in cells.
func (g *WalkGrid) Size() (cols, rows int) {
	return g.cols, g.rows
}

// CellSize returns the world size of a cell.
func (g *WalkGrid) CellSize() float64 {
	return g.cellSize
}

// IsBlocked returns true if the given cell is blocked.
func (g *WalkGrid) IsBlocked(gx, gy int) bool {
	if gx < 0 || gx >= g.cols || gy < 0 || gy >= g.rows {
		return true // Out of bounds is blocked
	}
	return g.cells[gy*g.cols+gx]
}

// WorldToGrid converts a world position to grid coordinates.
func (g *WalkGrid) WorldToGrid(p r3.Vec) (gx, gy int) {
	return int(math.Floor(p.X / g.cellSize)), int(math.Floor(p.Z / g.cellSize))
}

// GridToWorld converts grid coordinates to the world cell centre.
func (g *WalkGrid) GridToWorld(gx, gy int) r3.Vec {
	c := g.centre(gx, gy)
	return r3.Vec{X: c.X, Z: c.Y}
}

// Open reports whether p lies in an open cell.
func (g *WalkGrid) Open(p r3.Vec) bool {
	return !g.IsBlocked(g.WorldToGrid(p))
}

// Nearest returns the open cell centre closest to p within the snap
// distance. A point already in an open cell is returned unchanged.
func (g *WalkGrid) Nearest(p r3.Vec) (r3.Vec, bool) {
	if g.Open(p) {
		return p, true
	}

	cx, cy := g.WorldToGrid(p)
	reach := int(math.Ceil(g.snap/g.cellSize)) + 1
	best := math.Inf(1)
	var out r3.Vec
	found := false
	for gy := cy - reach; gy <= cy+reach; gy++ {
		for gx := cx - reach; gx <= cx+reach; gx++ {
			if g.IsBlocked(gx, gy) {
				continue
			}
			c := g.GridToWorld(gx, gy)
			c.Y = p.Y
			d := r3.Norm(r3.Sub(c, p))
			if d <= g.snap && d < best {
				best, out, found = d, c, true
			}
		}
	}
	return out, found
}

// IsTraversable implements hiding.TraversabilityOracle. Points inside an
// occluder are never traversable.
func (g *WalkGrid) IsTraversable(p r3.Vec) (bool, error) {
	if !finite(p) {
		return false, fmt.Errorf("%w: %v", ErrNonFinite, p)
	}
	if g.scene.Solid(p) {
		return false, nil
	}
	_, ok := g.Nearest(p)
	return ok, nil
}

func (g *WalkGrid) centre(gx, gy int) r2.Vec {
	return r2.Vec{
		X: (float64(gx) + 0.5) * g.cellSize,
		Y: (float64(gy) + 0.5) * g.cellSize,
	}
}

var _ hiding.TraversabilityOracle = (*WalkGrid)(nil)
