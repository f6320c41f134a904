package hiding

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/hideout/sampling"
)

// listSource replays fixed local points.
type listSource struct {
	points []r2.Vec
	next   int
}

func (s *listSource) Next() (r2.Vec, bool) {
	if s.next >= len(s.points) {
		return r2.Vec{}, false
	}
	p := s.points[s.next]
	s.next++
	return p, true
}

// fixedSelector returns a selector that samples the given world points
// around agent for a search of the given sampling radius.
func fixedSelector(agent r3.Vec, radius float64, world []r3.Vec, vis VisibilityOracle, trav TraversabilityOracle) *Selector {
	half := radius / 2
	local := make([]r2.Vec, len(world))
	for i, w := range world {
		local[i] = r2.Vec{X: w.X - agent.X + half, Y: w.Z - agent.Z + half}
	}
	sel := NewSelector(vis, trav, rand.New(rand.NewSource(1)))
	sel.NewSource = func(sampling.Params) (PointSource, error) {
		return &listSource{points: local}, nil
	}
	return sel
}

var alwaysTraversable = TraversabilityFunc(func(r3.Vec) (bool, error) { return true, nil })

var neverVisible = VisibilityFunc(func(r3.Vec, r3.Vec) (bool, error) { return false, nil })

func TestSelectPrefersHiddenOverVisible(t *testing.T) {
	agent := r3.Vec{}
	observer := r3.Vec{X: 5}

	// Everything on the observer's side of the agent is in plain sight.
	vis := VisibilityFunc(func(p, _ r3.Vec) (bool, error) { return p.X > 0, nil })

	sel := fixedSelector(agent, 10, []r3.Vec{{X: 3}, {X: -3}}, vis, alwaysTraversable)
	res, err := sel.Select(Query{Agent: agent, Observer: observer, SamplingRadius: 10, PointSpacing: 2})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !res.Found {
		t.Fatal("Select() found nothing, want (-3,0,0)")
	}
	if want := (r3.Vec{X: -3}); res.Target != want {
		t.Errorf("Target = %v, want %v", res.Target, want)
	}
	if res.Candidates[0].Class != ClassVisible {
		t.Errorf("candidate 0 class = %v, want visible", res.Candidates[0].Class)
	}
	if res.Candidates[1].Class != ClassHiddenReachable {
		t.Errorf("candidate 1 class = %v, want hidden_reachable", res.Candidates[1].Class)
	}
}

func TestSelectNearestEligible(t *testing.T) {
	tests := []struct {
		name  string
		world []r3.Vec
		want  r3.Vec
	}{
		{
			name:  "distance 4 beats distance 7",
			world: []r3.Vec{{Z: 7}, {X: 4}},
			want:  r3.Vec{X: 4},
		},
		{
			name:  "tie keeps first sampled",
			world: []r3.Vec{{X: 3}, {X: -3}, {Z: 3}},
			want:  r3.Vec{X: 3},
		},
		{
			name:  "single candidate",
			world: []r3.Vec{{X: -6, Z: 2}},
			want:  r3.Vec{X: -6, Z: 2},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sel := fixedSelector(r3.Vec{}, 20, tc.world, neverVisible, alwaysTraversable)
			res, err := sel.Select(Query{Observer: r3.Vec{X: 5}, SamplingRadius: 20, PointSpacing: 2})
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if !res.Found || res.Target != tc.want {
				t.Errorf("Select() = (%v, found=%v), want %v", res.Target, res.Found, tc.want)
			}
		})
	}
}

func TestSelectNoCandidate(t *testing.T) {
	never := TraversabilityFunc(func(r3.Vec) (bool, error) { return false, nil })

	res, err := SelectHidingSpot(
		Query{Agent: r3.Vec{X: 1, Z: 1}, Observer: r3.Vec{X: 5}, SamplingRadius: 10, PointSpacing: 2},
		neverVisible, never, rand.New(rand.NewSource(4)),
	)
	if err != nil {
		t.Fatalf("SelectHidingSpot() error = %v", err)
	}
	if res.Found {
		t.Errorf("Found = true with nothing traversable, target %v", res.Target)
	}
	if res.TargetIndex != -1 {
		t.Errorf("TargetIndex = %d, want -1", res.TargetIndex)
	}
	if len(res.Candidates) == 0 {
		t.Fatal("no candidates recorded")
	}
	for _, c := range res.Candidates {
		if c.Class != ClassHiddenUnreachable {
			t.Errorf("candidate %d class = %v, want hidden_unreachable", c.Index, c.Class)
		}
	}
}

// checkerVisibility marks points visible on alternating unit stripes.
func checkerVisibility(p, _ r3.Vec) (bool, error) {
	return int(math.Floor(p.X))%2 == 0, nil
}

func TestSelectClassificationAndOptimality(t *testing.T) {
	var travCalls int
	trav := TraversabilityFunc(func(p r3.Vec) (bool, error) {
		travCalls++
		return p.Z > -2, nil
	})

	agent := r3.Vec{X: 10, Z: -1}
	q := Query{Agent: agent, Observer: r3.Vec{X: 20, Z: 5}, SamplingRadius: 12, PointSpacing: 1.5}
	res, err := SelectHidingSpot(q, VisibilityFunc(checkerVisibility), trav, rand.New(rand.NewSource(8)))
	if err != nil {
		t.Fatalf("SelectHidingSpot() error = %v", err)
	}

	visible, unreachable, reachable := res.Counts()
	if visible+unreachable+reachable != len(res.Candidates) {
		t.Errorf("class counts %d+%d+%d != %d candidates", visible, unreachable, reachable, len(res.Candidates))
	}
	if travCalls != unreachable+reachable {
		t.Errorf("traversability queried %d times, want %d (hidden points only)", travCalls, unreachable+reachable)
	}
	if got := len(res.Visible()) + len(res.Hidden()); got != len(res.Candidates) {
		t.Errorf("Visible()+Hidden() = %d, want %d", got, len(res.Candidates))
	}
	if got := len(res.Eligible()); got != reachable {
		t.Errorf("len(Eligible()) = %d, want %d", got, reachable)
	}

	for i, c := range res.Candidates {
		if c.Index != i {
			t.Errorf("candidate %d has Index %d", i, c.Index)
		}
		if c.World.X < res.Bounds.Min.X || c.World.X > res.Bounds.Max.X ||
			c.World.Z < res.Bounds.Min.Z || c.World.Z > res.Bounds.Max.Z {
			t.Errorf("candidate %d %v outside bounds %+v", i, c.World, res.Bounds)
		}
	}

	if reachable == 0 {
		t.Fatal("expected at least one eligible candidate")
	}
	if !res.Found {
		t.Fatal("Found = false with eligible candidates")
	}
	best := r3.Norm(r3.Sub(res.Target, agent))
	for _, c := range res.Candidates {
		if c.Class == ClassHiddenReachable && c.Distance < best {
			t.Errorf("candidate %v at %.4f is nearer than target at %.4f", c.World, c.Distance, best)
		}
	}
}

func TestSelectOracleFailure(t *testing.T) {
	boom := errors.New("scene query failed")

	tests := []struct {
		name string
		vis  VisibilityOracle
		trav TraversabilityOracle
	}{
		{
			name: "visibility",
			vis: func() VisibilityFunc {
				calls := 0
				return func(r3.Vec, r3.Vec) (bool, error) {
					calls++
					if calls == 3 {
						return false, boom
					}
					return false, nil
				}
			}(),
			trav: alwaysTraversable,
		},
		{
			name: "traversability",
			vis:  neverVisible,
			trav: TraversabilityFunc(func(r3.Vec) (bool, error) { return false, boom }),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res, err := SelectHidingSpot(
				Query{Observer: r3.Vec{X: 3}, SamplingRadius: 10, PointSpacing: 2},
				tc.vis, tc.trav, rand.New(rand.NewSource(1)),
			)
			if !errors.Is(err, ErrOracleUnavailable) {
				t.Fatalf("error = %v, want ErrOracleUnavailable", err)
			}
			if !errors.Is(err, boom) {
				t.Errorf("error = %v, want wrapped cause", err)
			}
			var oe *OracleError
			if !errors.As(err, &oe) || oe.Oracle != tc.name {
				t.Errorf("errors.As() = %v, want *OracleError for %s", oe, tc.name)
			}
			if res.Found || len(res.Candidates) != 0 {
				t.Errorf("partial result returned: found=%v candidates=%d", res.Found, len(res.Candidates))
			}
		})
	}
}

func TestSelectInvalidQuery(t *testing.T) {
	tests := []struct {
		name string
		q    Query
	}{
		{"zero sampling radius", Query{SamplingRadius: 0, PointSpacing: 1}},
		{"negative spacing", Query{SamplingRadius: 10, PointSpacing: -1}},
		{"nan agent", Query{Agent: r3.Vec{X: math.NaN()}, SamplingRadius: 10, PointSpacing: 1}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := SelectHidingSpot(tc.q, neverVisible, alwaysTraversable, rand.New(rand.NewSource(1)))
			if !errors.Is(err, sampling.ErrInvalidParams) {
				t.Errorf("error = %v, want sampling.ErrInvalidParams", err)
			}
		})
	}

	if _, err := NewSelector(nil, nil, rand.New(rand.NewSource(1))).Select(Query{SamplingRadius: 10, PointSpacing: 1}); !errors.Is(err, ErrOracleUnavailable) {
		t.Errorf("Select() without oracles error = %v, want ErrOracleUnavailable", err)
	}
}

func TestSelectIndependentSearches(t *testing.T) {
	q := Query{Agent: r3.Vec{X: 2}, Observer: r3.Vec{X: 8}, SamplingRadius: 10, PointSpacing: 2}
	vis := VisibilityFunc(checkerVisibility)

	a, err := SelectHidingSpot(q, vis, alwaysTraversable, rand.New(rand.NewSource(21)))
	if err != nil {
		t.Fatalf("first search error = %v", err)
	}
	b, err := SelectHidingSpot(q, vis, alwaysTraversable, rand.New(rand.NewSource(21)))
	if err != nil {
		t.Fatalf("second search error = %v", err)
	}
	if a.Target != b.Target || len(a.Candidates) != len(b.Candidates) {
		t.Errorf("identical searches differ: %v/%d vs %v/%d", a.Target, len(a.Candidates), b.Target, len(b.Candidates))
	}
}

func TestToWorldCentresDomain(t *testing.T) {
	agent := r3.Vec{X: 1, Y: 2, Z: 3}
	got := ToWorld(agent, r2.Vec{X: 5, Y: 5}, 10)
	if got != agent {
		t.Errorf("ToWorld(centre) = %v, want %v", got, agent)
	}
	got = ToWorld(agent, r2.Vec{}, 10)
	if want := (r3.Vec{X: -4, Y: 2, Z: -2}); got != want {
		t.Errorf("ToWorld(origin) = %v, want %v", got, want)
	}
}

func TestClassString(t *testing.T) {
	for c, want := range map[Class]string{
		ClassVisible:           "visible",
		ClassHiddenUnreachable: "hidden_unreachable",
		ClassHiddenReachable:   "hidden_reachable",
		Class(9):               "class(9)",
	} {
		if got := c.String(); got != want {
			t.Errorf("Class(%d).String() = %q, want %q", uint8(c), got, want)
		}
	}
}

func TestSelectReportsSamplerWork(t *testing.T) {
	q := Query{Agent: r3.Vec{X: 2}, Observer: r3.Vec{X: 8}, SamplingRadius: 10, PointSpacing: 2}
	res, err := SelectHidingSpot(q, VisibilityFunc(checkerVisibility), alwaysTraversable, rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	st := res.Sampling
	if st.Emitted != len(res.Candidates) {
		t.Errorf("Sampling.Emitted = %d, want %d candidates", st.Emitted, len(res.Candidates))
	}
	if st.Attempts == 0 || st.Rejected > st.Attempts {
		t.Errorf("Sampling = %+v, want attempts with at most as many rejections", st)
	}

	// Replayed sources report no sampler work
	sel := fixedSelector(r3.Vec{}, 10, []r3.Vec{{X: -3}}, neverVisible, alwaysTraversable)
	res, err = sel.Select(Query{Observer: r3.Vec{X: 5}, SamplingRadius: 10, PointSpacing: 1})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if res.Sampling != (sampling.Stats{}) {
		t.Errorf("Sampling = %+v for a replayed source, want zero", res.Sampling)
	}
}
