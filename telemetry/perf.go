package telemetry

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/pthm-cable/hideout/hiding"
	"github.com/pthm-cable/hideout/sampling"
)

// Phase identifies a timed section of the simulation step.
type Phase int

const (
	PhaseObserver Phase = iota
	PhaseSearch
	PhaseMovement
	PhaseTelemetry
	PhasePublish
	numPhases
)

var phaseNames = [numPhases]string{"observer", "search", "movement", "telemetry", "publish"}

func (p Phase) String() string {
	if p < 0 || p >= numPhases {
		return "unknown"
	}
	return phaseNames[p]
}

// SearchWork is the oracle and sampler effort spent on one search.
type SearchWork struct {
	VisibilityQueries     int
	TraversabilityQueries int
	Sampler               sampling.Stats
}

// WorkOf derives the effort of a completed search. Every candidate costs one
// visibility query; only hidden candidates cost a traversability query.
func WorkOf(res hiding.Result) SearchWork {
	_, unreachable, reachable := res.Counts()
	return SearchWork{
		VisibilityQueries:     len(res.Candidates),
		TraversabilityQueries: unreachable + reachable,
		Sampler:               res.Sampling,
	}
}

func (w *SearchWork) add(o SearchWork) {
	w.VisibilityQueries += o.VisibilityQueries
	w.TraversabilityQueries += o.TraversabilityQueries
	w.Sampler.Emitted += o.Sampler.Emitted
	w.Sampler.Attempts += o.Sampler.Attempts
	w.Sampler.Rejected += o.Sampler.Rejected
	w.Sampler.Retired += o.Sampler.Retired
}

// tickRecord is the timing and search work of one step.
type tickRecord struct {
	total    time.Duration
	phases   [numPhases]time.Duration
	searches int
	work     SearchWork
}

// PerfCollector keeps step timing and search work over the last windowSize ticks.
type PerfCollector struct {
	ring  []tickRecord
	next  int
	count int

	cur        tickRecord
	tickStart  time.Time
	phaseStart time.Time
	phase      Phase
	inPhase    bool

	now func() time.Time
}

// NewPerfCollector creates a collector averaging over windowSize ticks.
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	return &PerfCollector{
		ring: make([]tickRecord, windowSize),
		now:  time.Now,
	}
}

// StartTick begins timing a new step.
func (p *PerfCollector) StartTick() {
	p.tickStart = p.now()
	p.cur = tickRecord{}
	p.inPhase = false
}

// StartPhase closes the running phase, if any, and opens phase.
func (p *PerfCollector) StartPhase(phase Phase) {
	now := p.now()
	p.closePhase(now)
	p.phase = phase
	p.phaseStart = now
	p.inPhase = true
}

// RecordSearch adds one search to the current tick.
func (p *PerfCollector) RecordSearch(w SearchWork) {
	p.cur.searches++
	p.cur.work.add(w)
}

// EndTick closes the running phase and stores the tick.
func (p *PerfCollector) EndTick() {
	now := p.now()
	p.closePhase(now)
	p.cur.total = now.Sub(p.tickStart)

	p.ring[p.next] = p.cur
	p.next = (p.next + 1) % len(p.ring)
	if p.count < len(p.ring) {
		p.count++
	}
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.inPhase && p.phase >= 0 && p.phase < numPhases {
		p.cur.phases[p.phase] += now.Sub(p.phaseStart)
	}
	p.inPhase = false
}

// PerfStats aggregates the collector window.
type PerfStats struct {
	Ticks          int
	AvgTick        time.Duration
	P90Tick        time.Duration
	MaxTick        time.Duration
	TicksPerSecond float64
	PhasePct       [numPhases]float64

	Searches                int
	VisibilityPerSearch     float64
	TraversabilityPerSearch float64
	AttemptsPerSearch       float64
	RejectionRate           float64 // rejected sampler candidates over attempts
}

// Stats summarises the ticks currently in the window.
func (p *PerfCollector) Stats() PerfStats {
	var s PerfStats
	if p.count == 0 {
		return s
	}
	s.Ticks = p.count

	var total time.Duration
	var phases [numPhases]time.Duration
	var work SearchWork
	ticksUS := make([]float64, 0, p.count)
	for _, r := range p.ring[:p.count] {
		total += r.total
		s.MaxTick = max(s.MaxTick, r.total)
		ticksUS = append(ticksUS, float64(r.total.Microseconds()))
		for i, d := range r.phases {
			phases[i] += d
		}
		s.Searches += r.searches
		work.add(r.work)
	}

	s.AvgTick = total / time.Duration(p.count)
	sort.Float64s(ticksUS)
	s.P90Tick = time.Duration(math.Round(Percentile(ticksUS, 0.90))) * time.Microsecond
	if total > 0 {
		s.TicksPerSecond = float64(p.count) * float64(time.Second) / float64(total)
		for i, d := range phases {
			s.PhasePct[i] = float64(d) / float64(total) * 100
		}
	}

	if s.Searches > 0 {
		n := float64(s.Searches)
		s.VisibilityPerSearch = float64(work.VisibilityQueries) / n
		s.TraversabilityPerSearch = float64(work.TraversabilityQueries) / n
		s.AttemptsPerSearch = float64(work.Sampler.Attempts) / n
	}
	if work.Sampler.Attempts > 0 {
		s.RejectionRate = float64(work.Sampler.Rejected) / float64(work.Sampler.Attempts)
	}
	return s
}

// QueriesPerSearch is the mean oracle query count of one search.
func (s PerfStats) QueriesPerSearch() float64 {
	return s.VisibilityPerSearch + s.TraversabilityPerSearch
}

// LogStats logs the window at info level.
func (s PerfStats) LogStats() {
	slog.Info("perf", "stats", s)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTick.Microseconds()),
		slog.Int64("p90_tick_us", s.P90Tick.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTick.Microseconds()),
		slog.Int("ticks_per_sec", int(s.TicksPerSecond)),
		slog.Int("searches", s.Searches),
		slog.Float64("queries_per_search", s.QueriesPerSearch()),
		slog.Float64("rejection_rate", s.RejectionRate),
	}
	for i, pct := range s.PhasePct {
		if pct > 0.1 {
			attrs = append(attrs, slog.Float64(Phase(i).String()+"_pct", pct))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is the perf.csv row.
type PerfStatsCSV struct {
	WindowEnd         int32   `csv:"window_end"`
	AvgTickUS         int64   `csv:"avg_tick_us"`
	P90TickUS         int64   `csv:"p90_tick_us"`
	MaxTickUS         int64   `csv:"max_tick_us"`
	TicksPerSec       float64 `csv:"ticks_per_sec"`
	ObserverPct       float64 `csv:"observer_pct"`
	SearchPct         float64 `csv:"search_pct"`
	MovementPct       float64 `csv:"movement_pct"`
	TelemetryPct      float64 `csv:"telemetry_pct"`
	PublishPct        float64 `csv:"publish_pct"`
	Searches          int     `csv:"searches"`
	VisibilityQueries float64 `csv:"visibility_per_search"`
	TraversalQueries  float64 `csv:"traversability_per_search"`
	SamplerAttempts   float64 `csv:"attempts_per_search"`
	RejectionRate     float64 `csv:"rejection_rate"`
}

// ToCSV flattens the stats for the window ending at windowEnd.
func (s PerfStats) ToCSV(windowEnd int32) PerfStatsCSV {
	return PerfStatsCSV{
		WindowEnd:         windowEnd,
		AvgTickUS:         s.AvgTick.Microseconds(),
		P90TickUS:         s.P90Tick.Microseconds(),
		MaxTickUS:         s.MaxTick.Microseconds(),
		TicksPerSec:       s.TicksPerSecond,
		ObserverPct:       s.PhasePct[PhaseObserver],
		SearchPct:         s.PhasePct[PhaseSearch],
		MovementPct:       s.PhasePct[PhaseMovement],
		TelemetryPct:      s.PhasePct[PhaseTelemetry],
		PublishPct:        s.PhasePct[PhasePublish],
		Searches:          s.Searches,
		VisibilityQueries: s.VisibilityPerSearch,
		TraversalQueries:  s.TraversabilityPerSearch,
		SamplerAttempts:   s.AttemptsPerSearch,
		RejectionRate:     s.RejectionRate,
	}
}
