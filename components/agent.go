package components

import "gonum.org/v1/gonum/spatial/r3"

// Evader tags an agent that hides from the observer.
// Its avoider lives outside the ECS, keyed by ID.
type Evader struct {
	ID uint32
}

// Observer patrols a closed loop of waypoints.
type Observer struct {
	Waypoints []r3.Vec
	Next      int // index of the waypoint being approached
}

// Target returns the waypoint being approached.
func (o *Observer) Target() r3.Vec {
	if len(o.Waypoints) == 0 {
		return r3.Vec{}
	}
	return o.Waypoints[o.Next%len(o.Waypoints)]
}

// Advance moves on to the following waypoint.
func (o *Observer) Advance() {
	if len(o.Waypoints) > 0 {
		o.Next = (o.Next + 1) % len(o.Waypoints)
	}
}
