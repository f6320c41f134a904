package telemetry

// LifetimeStats tracks per-evader statistics over a run.
type LifetimeStats struct {
	SpawnTick int32

	// Searches
	Searches int
	Commits  int
	Holds    int
	Arrivals int

	// Cover
	ExposedTicks int
	HiddenTicks  int

	// Movement
	Distance float64
}

// HiddenFrac returns the share of observed ticks spent out of sight.
func (ls *LifetimeStats) HiddenFrac() float64 {
	total := ls.ExposedTicks + ls.HiddenTicks
	if total == 0 {
		return 0
	}
	return float64(ls.HiddenTicks) / float64(total)
}

// LifetimeTracker manages per-evader lifetime statistics.
type LifetimeTracker struct {
	stats map[uint32]*LifetimeStats
}

// NewLifetimeTracker creates a new lifetime tracker.
func NewLifetimeTracker() *LifetimeTracker {
	return &LifetimeTracker{
		stats: make(map[uint32]*LifetimeStats),
	}
}

// Register creates lifetime stats for a new evader.
func (lt *LifetimeTracker) Register(evaderID uint32, spawnTick int32) {
	lt.stats[evaderID] = &LifetimeStats{SpawnTick: spawnTick}
}

// Get returns the lifetime stats for an evader, or nil if not found.
func (lt *LifetimeTracker) Get(evaderID uint32) *LifetimeStats {
	return lt.stats[evaderID]
}

// Remove removes an evader's stats and returns them.
func (lt *LifetimeTracker) Remove(evaderID uint32) *LifetimeStats {
	stats := lt.stats[evaderID]
	delete(lt.stats, evaderID)
	return stats
}

// RecordSearch counts a search and whether it committed a target.
func (lt *LifetimeTracker) RecordSearch(evaderID uint32, committed bool) {
	if s := lt.stats[evaderID]; s != nil {
		s.Searches++
		if committed {
			s.Commits++
		} else {
			s.Holds++
		}
	}
}

// RecordArrival counts an arrival at a committed target.
func (lt *LifetimeTracker) RecordArrival(evaderID uint32) {
	if s := lt.stats[evaderID]; s != nil {
		s.Arrivals++
	}
}

// RecordExposure counts one tick seen or unseen by the observer.
func (lt *LifetimeTracker) RecordExposure(evaderID uint32, exposed bool) {
	if s := lt.stats[evaderID]; s != nil {
		if exposed {
			s.ExposedTicks++
		} else {
			s.HiddenTicks++
		}
	}
}

// AddDistance accumulates distance walked.
func (lt *LifetimeTracker) AddDistance(evaderID uint32, d float64) {
	if s := lt.stats[evaderID]; s != nil {
		s.Distance += d
	}
}

// All returns all tracked stats (for snapshots).
func (lt *LifetimeTracker) All() map[uint32]*LifetimeStats {
	return lt.stats
}

// Count returns the number of tracked evaders.
func (lt *LifetimeTracker) Count() int {
	return len(lt.stats)
}
