package hiding

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Settings are the caller-owned knobs of the trigger policy. They may change
// between ticks.
type Settings struct {
	TriggerRadius     float64 // observer distance below which the agent reacts
	SamplingRadius    float64
	PointSpacing      float64
	StoppingTolerance float64 // arrival distance to a committed target
}

// Validate rejects settings that can never produce a useful search.
func (s Settings) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"trigger radius", s.TriggerRadius},
		{"sampling radius", s.SamplingRadius},
		{"point spacing", s.PointSpacing},
		{"stopping tolerance", s.StoppingTolerance},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("hiding: %s must be finite, got %v", f.name, f.v)
		}
	}

	switch {
	case s.TriggerRadius <= 0:
		return fmt.Errorf("hiding: trigger radius must be positive, got %v", s.TriggerRadius)
	case s.SamplingRadius <= 0:
		return fmt.Errorf("hiding: sampling radius must be positive, got %v", s.SamplingRadius)
	case s.PointSpacing <= 0:
		return fmt.Errorf("hiding: point spacing must be positive, got %v", s.PointSpacing)
	case s.PointSpacing > s.SamplingRadius:
		return fmt.Errorf("hiding: point spacing %v exceeds sampling radius %v", s.PointSpacing, s.SamplingRadius)
	case s.StoppingTolerance < 0:
		return fmt.Errorf("hiding: stopping tolerance must not be negative, got %v", s.StoppingTolerance)
	}
	return nil
}

// MovementSink receives committed destinations.
type MovementSink interface {
	SetDestination(target r3.Vec)
}

// Decision reports what one Update did.
type Decision struct {
	Arrived   bool   // the agent reached its committed target this tick
	Searched  bool   // a search ran this tick
	Committed bool   // the search found a target and it was committed
	Result    Result // valid when Searched
}

// Avoider applies the re-search trigger policy around a Selector: search
// only when the observer is close, can see the agent, and the agent is not
// already travelling to an earlier pick.
type Avoider struct {
	settings Settings
	selector *Selector
	sink     MovementSink

	moving bool
	target r3.Vec
	last   Result
}

// NewAvoider creates an avoider. sink may be nil.
func NewAvoider(settings Settings, selector *Selector, sink MovementSink) *Avoider {
	return &Avoider{
		settings: settings,
		selector: selector,
		sink:     sink,
		last:     Result{TargetIndex: -1},
	}
}

// Settings returns the active settings.
func (a *Avoider) Settings() Settings {
	return a.settings
}

// SetSettings replaces the settings used from the next Update on.
func (a *Avoider) SetSettings(s Settings) {
	a.settings = s
}

// Moving reports whether the agent is in transit to a committed target.
func (a *Avoider) Moving() bool {
	return a.moving
}

// Target returns the committed target and whether one is active.
func (a *Avoider) Target() (r3.Vec, bool) {
	return a.target, a.moving
}

// Cancel abandons the committed target, for a movement sink that cannot
// reach it. The agent is eligible to search again on the next Update.
func (a *Avoider) Cancel() {
	a.moving = false
}

// Last returns the most recent search result.
func (a *Avoider) Last() Result {
	return a.last
}

// Update advances the policy by one tick. On error nothing is committed and
// the agent stays eligible to search again next tick.
func (a *Avoider) Update(agent, observer r3.Vec) (Decision, error) {
	var d Decision

	if a.moving && r3.Norm(r3.Sub(a.target, agent)) <= a.settings.StoppingTolerance {
		a.moving = false
		d.Arrived = true
	}

	if a.moving || r3.Norm(r3.Sub(observer, agent)) >= a.settings.TriggerRadius {
		return d, nil
	}

	if a.selector == nil || a.selector.Visibility == nil {
		return d, fmt.Errorf("%w: avoider has no visibility oracle", ErrOracleUnavailable)
	}
	seen, err := a.selector.Visibility.IsVisibleTo(agent, observer)
	if err != nil {
		return d, visibilityError(agent, err)
	}
	if !seen {
		return d, nil
	}

	res, err := a.selector.Select(Query{
		Agent:          agent,
		Observer:       observer,
		SamplingRadius: a.settings.SamplingRadius,
		PointSpacing:   a.settings.PointSpacing,
	})
	if err != nil {
		return d, err
	}

	d.Searched = true
	d.Result = res
	a.last = res

	if !res.Found {
		return d, nil
	}

	a.moving = true
	a.target = res.Target
	d.Committed = true
	if a.sink != nil {
		a.sink.SetDestination(res.Target)
	}
	return d, nil
}
