package components

import "gonum.org/v1/gonum/spatial/r3"

// Body holds physical properties of an entity.
type Body struct {
	Radius float64
}

// Mover walks an entity along a planned path toward a destination.
type Mover struct {
	Speed       float64 // units per second
	Destination r3.Vec
	Path        []r3.Vec // waypoints, ending at Destination
	Index       int      // waypoint being approached
	Active      bool     // false once the destination is reached or unreachable
}

// Waypoint returns the waypoint being approached.
func (m *Mover) Waypoint() (r3.Vec, bool) {
	if !m.Active || m.Index >= len(m.Path) {
		return r3.Vec{}, false
	}
	return m.Path[m.Index], true
}

// Step advances pos toward the path by at most dist and returns the new
// position and the distance covered. Reaching the last waypoint deactivates
// the mover.
func (m *Mover) Step(pos r3.Vec, dist float64) (r3.Vec, float64) {
	var moved float64
	for dist > 0 {
		wp, ok := m.Waypoint()
		if !ok {
			break
		}
		d := r3.Sub(wp, pos)
		n := r3.Norm(d)
		if n <= dist {
			pos = wp
			dist -= n
			moved += n
			m.Index++
			if m.Index >= len(m.Path) {
				m.Active = false
			}
			continue
		}
		pos = r3.Add(pos, r3.Scale(dist/n, d))
		moved += dist
		dist = 0
	}
	return pos, moved
}

// Follow sets a new path. An empty path leaves the mover inactive.
func (m *Mover) Follow(dest r3.Vec, path []r3.Vec) {
	m.Destination = dest
	m.Path = path
	m.Index = 0
	m.Active = len(path) > 0
}
