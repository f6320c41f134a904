package telemetry

import "sort"

// Collector accumulates search events within tick windows and produces WindowStats.
type Collector struct {
	windowDurationTicks int32
	dt                  float64

	// Current window tracking
	windowStartTick int32

	// Event counters for current window
	searches     int
	found        int
	holds        int
	oracleErrors int
	arrivals     int
	candidates   int
	visible      int
	eligible     int
	durationsUS  []float64
}

// NewCollector creates a new stats collector.
// windowTicks: how many ticks each stats window lasts
// dt: seconds per tick (used for tick-to-time conversion)
func NewCollector(windowTicks int, dt float64) *Collector {
	if windowTicks < 1 {
		windowTicks = 1
	}
	return &Collector{
		windowDurationTicks: int32(windowTicks),
		dt:                  dt,
	}
}

// RecordSearch records a completed search. A search without a target is a hold.
func (c *Collector) RecordSearch(rec SelectionRecord) {
	c.searches++
	if rec.Found {
		c.found++
	} else {
		c.holds++
	}
	c.candidates += rec.Candidates
	c.visible += rec.Visible
	c.eligible += rec.Reachable
	c.durationsUS = append(c.durationsUS, float64(rec.DurationUS))
}

// RecordOracleError records a search abandoned because an oracle failed.
func (c *Collector) RecordOracleError() {
	c.oracleErrors++
}

// RecordArrival records an evader reaching its committed target.
func (c *Collector) RecordArrival() {
	c.arrivals++
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int32) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Flush produces a WindowStats and resets counters for the next window.
// hidden and exposed are the evader counts at window end.
func (c *Collector) Flush(currentTick int32, hidden, exposed int) WindowStats {
	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * c.dt,

		Searches:     c.searches,
		Found:        c.found,
		Holds:        c.holds,
		OracleErrors: c.oracleErrors,
		Arrivals:     c.arrivals,

		HiddenEvaders:  hidden,
		ExposedEvaders: exposed,
	}

	if c.searches > 0 {
		n := float64(c.searches)
		stats.FoundRate = float64(c.found) / n
		stats.MeanCandidates = float64(c.candidates) / n
		stats.MeanEligible = float64(c.eligible) / n
	}
	if c.candidates > 0 {
		stats.VisibleFrac = float64(c.visible) / float64(c.candidates)
	}
	if len(c.durationsUS) > 0 {
		sorted := append([]float64(nil), c.durationsUS...)
		sort.Float64s(sorted)
		stats.SearchP50US = Percentile(sorted, 0.50)
		stats.SearchP90US = Percentile(sorted, 0.90)
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.searches = 0
	c.found = 0
	c.holds = 0
	c.oracleErrors = 0
	c.arrivals = 0
	c.candidates = 0
	c.visible = 0
	c.eligible = 0
	c.durationsUS = c.durationsUS[:0]

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() int32 {
	return c.windowDurationTicks
}
