package scene

import (
	"fmt"

	"github.com/ojrac/opensimplex-go"
	"gonum.org/v1/gonum/spatial/r2"
)

// GenParams controls procedural scene generation.
type GenParams struct {
	Width, Depth float64
	Seed         int64
	NoiseScale   float64 // Noise frequency per world unit
	Threshold    float64 // Normalised noise above which an occluder is placed
	Size         float64 // Lattice spacing and max occluder footprint
	CellSize     float64 // Walk grid resolution
	Inflation    float64
	SnapDistance float64
}

// Layout is a generated scene with its walk grid.
type Layout struct {
	Scene *Scene
	Walk  *WalkGrid
}

// Generate places occluders on a lattice wherever normalised simplex noise
// exceeds the threshold. Footprints grow with the noise value. A one-lattice
// margin along the edges stays open.
func Generate(p GenParams) (*Layout, error) {
	if !(p.Size > 0) {
		return nil, fmt.Errorf("scene: occluder size must be positive, got %v", p.Size)
	}

	noise := opensimplex.NewNormalized(p.Seed)
	var boxes []r2.Box

	for z := p.Size; z+p.Size <= p.Depth; z += p.Size {
		for x := p.Size; x+p.Size <= p.Width; x += p.Size {
			v := noise.Eval2(x*p.NoiseScale, z*p.NoiseScale)
			if v <= p.Threshold {
				continue
			}

			// Map (threshold, 1] onto a half extent of [0.2, 0.5] * Size.
			strength := 1.0
			if p.Threshold < 1 {
				strength = (v - p.Threshold) / (1 - p.Threshold)
			}
			half := p.Size * (0.2 + 0.3*strength)

			// A second noise channel stretches boxes into walls along one axis.
			hx, hz := half, half
			if noise.Eval2(x*p.NoiseScale+97, z*p.NoiseScale+31) > 0.5 {
				hx = p.Size / 2
			} else {
				hz = p.Size / 2
			}

			boxes = append(boxes, r2.Box{
				Min: r2.Vec{X: x - hx, Y: z - hz},
				Max: r2.Vec{X: x + hx, Y: z + hz},
			})
		}
	}

	s, err := New(p.Width, p.Depth, boxes)
	if err != nil {
		return nil, err
	}
	walk, err := NewWalkGrid(s, p.CellSize, p.Inflation, p.SnapDistance)
	if err != nil {
		return nil, err
	}
	return &Layout{Scene: s, Walk: walk}, nil
}
