package sampling

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// neighborhood is the cell reach checked around a candidate. With cells of
// radius/√2, any point closer than radius lies at most two cells away.
const neighborhood = 2

// grid is a uniform acceleration structure over the sampling domain.
// A cell is occupied when its slice is non-empty; there is no sentinel
// coordinate, so a sample placed exactly at the origin is still tested.
type grid struct {
	cellSize float64
	cols     int
	rows     int
	cells    [][]r2.Vec
}

func newGrid(width, height, cellSize float64) *grid {
	cols := int(math.Ceil(width / cellSize))
	rows := int(math.Ceil(height / cellSize))
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}

	return &grid{
		cellSize: cellSize,
		cols:     cols,
		rows:     rows,
		cells:    make([][]r2.Vec, cols*rows),
	}
}

// cellOf returns the column and row holding p, clamped to the grid so that
// points on the far domain edge land in the last cell.
func (g *grid) cellOf(p r2.Vec) (col, row int) {
	col = int(p.X / g.cellSize)
	row = int(p.Y / g.cellSize)

	if col < 0 {
		col = 0
	} else if col >= g.cols {
		col = g.cols - 1
	}
	if row < 0 {
		row = 0
	} else if row >= g.rows {
		row = g.rows - 1
	}
	return col, row
}

func (g *grid) insert(p r2.Vec) {
	col, row := g.cellOf(p)
	idx := row*g.cols + col
	g.cells[idx] = append(g.cells[idx], p)
}

// occupied reports whether any sample has been placed in the cell.
func (g *grid) occupied(col, row int) bool {
	if col < 0 || col >= g.cols || row < 0 || row >= g.rows {
		return false
	}
	return len(g.cells[row*g.cols+col]) > 0
}

// farEnough reports whether p is at least sqrt(radius2) from every placed
// sample in its neighborhood.
func (g *grid) farEnough(p r2.Vec, radius2 float64) bool {
	col, row := g.cellOf(p)

	colMin := max(col-neighborhood, 0)
	rowMin := max(row-neighborhood, 0)
	colMax := min(col+neighborhood, g.cols-1)
	rowMax := min(row+neighborhood, g.rows-1)

	for r := rowMin; r <= rowMax; r++ {
		for c := colMin; c <= colMax; c++ {
			if !g.occupied(c, r) {
				continue
			}
			for _, s := range g.cells[r*g.cols+c] {
				if r2.Norm2(r2.Sub(s, p)) < radius2 {
					return false
				}
			}
		}
	}
	return true
}
