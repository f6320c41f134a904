package telemetry

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated statistics for a time window.
type WindowStats struct {
	WindowStartTick int32   `csv:"-"`
	WindowEndTick   int32   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Events during window
	Searches     int `csv:"searches"`
	Found        int `csv:"found"`
	Holds        int `csv:"holds"`
	OracleErrors int `csv:"oracle_errors"`
	Arrivals     int `csv:"arrivals"`

	// Search quality
	FoundRate      float64 `csv:"found_rate"`
	MeanCandidates float64 `csv:"mean_candidates"`
	MeanEligible   float64 `csv:"mean_eligible"`
	VisibleFrac    float64 `csv:"visible_frac"` // Share of candidates in plain sight
	SearchP50US    float64 `csv:"search_p50_us"`
	SearchP90US    float64 `csv:"search_p90_us"`

	// Evader cover at window end
	HiddenEvaders  int `csv:"hidden"`
	ExposedEvaders int `csv:"exposed"`
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Spacing summarises nearest-neighbour distances of a point set.
type Spacing struct {
	Count  int
	Min    float64
	Mean   float64
	StdDev float64
}

// SpacingStats computes nearest-neighbour spacing. Fewer than two points
// yield a zero Spacing with only Count set.
func SpacingStats(points []r2.Vec) Spacing {
	s := Spacing{Count: len(points)}
	if len(points) < 2 {
		return s
	}

	nn := make([]float64, len(points))
	for i, p := range points {
		best := math.Inf(1)
		for j, q := range points {
			if i == j {
				continue
			}
			if d := r2.Norm(r2.Sub(p, q)); d < best {
				best = d
			}
		}
		nn[i] = best
	}

	s.Min = nn[0]
	for _, d := range nn[1:] {
		s.Min = math.Min(s.Min, d)
	}
	s.Mean, s.StdDev = stat.MeanStdDev(nn, nil)
	return s
}

// LogValue implements slog.LogValuer for structured logging.
func (s Spacing) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("count", s.Count),
		slog.Float64("min", s.Min),
		slog.Float64("mean", s.Mean),
		slog.Float64("stddev", s.StdDev),
	)
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", int(s.WindowStartTick)),
		slog.Int("window_end", int(s.WindowEndTick)),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("searches", s.Searches),
		slog.Int("found", s.Found),
		slog.Int("holds", s.Holds),
		slog.Int("oracle_errors", s.OracleErrors),
		slog.Int("arrivals", s.Arrivals),
		slog.Float64("found_rate", s.FoundRate),
		slog.Float64("mean_candidates", s.MeanCandidates),
		slog.Float64("mean_eligible", s.MeanEligible),
		slog.Float64("visible_frac", s.VisibleFrac),
		slog.Float64("search_p50_us", s.SearchP50US),
		slog.Float64("search_p90_us", s.SearchP90US),
		slog.Int("hidden", s.HiddenEvaders),
		slog.Int("exposed", s.ExposedEvaders),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats", "window", s)
}
