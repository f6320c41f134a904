package sim

import (
	"log/slog"

	"github.com/pthm-cable/hideout/telemetry"
)

// flushTelemetry checks if the stats window should be flushed and handles bookmarks.
func (s *Simulation) flushTelemetry() {
	if !s.collector.ShouldFlush(s.tick) {
		return
	}

	hidden, exposed := s.coverCounts()
	stats := s.collector.Flush(s.tick, hidden, exposed)
	perfStats := s.perfCollector.Stats()
	s.lastStats = stats

	if s.statsCallback != nil {
		s.statsCallback(stats)
	}

	if s.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if err := s.outputManager.WriteTelemetry(stats); err != nil {
		slog.Error("failed to write telemetry", "error", err)
	}
	if err := s.outputManager.WritePerf(perfStats, stats.WindowEndTick); err != nil {
		slog.Error("failed to write perf", "error", err)
	}

	for _, bm := range s.bookmarkDetector.Check(stats) {
		if s.logStats {
			bm.LogBookmark()
		}
		if err := s.outputManager.WriteBookmark(bm); err != nil {
			slog.Error("failed to write bookmark", "error", err)
		}
		if s.outputManager != nil {
			s.saveSnapshot(&bm)
		}
	}
}

// coverCounts returns how many evaders are hidden from and exposed to the observer.
func (s *Simulation) coverCounts() (hidden, exposed int) {
	for id := range s.avoiders {
		if s.exposed[id] {
			exposed++
		} else {
			hidden++
		}
	}
	return hidden, exposed
}

// saveSnapshot writes the full state for a bookmark.
func (s *Simulation) saveSnapshot(bm *telemetry.Bookmark) {
	snap := s.Snapshot()
	snap.Bookmark = bm
	path, err := s.outputManager.WriteSnapshot(snap)
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}
	slog.Info("snapshot saved", "path", path, "bookmark", string(bm.Type))
}

// publishFrame hands the current frame to the sink, if any.
func (s *Simulation) publishFrame() {
	if s.sink == nil {
		return
	}
	s.sink.Publish(s.Frame())
}

// Snapshot returns the full simulation state including the scene and
// lifetime stats.
func (s *Simulation) Snapshot() *telemetry.Snapshot {
	snap := s.Frame()
	for _, o := range s.layout.Scene.Occluders() {
		snap.Occluders = append(snap.Occluders, telemetry.OccluderState{
			MinX: o.Box.Min.X,
			MinZ: o.Box.Min.Y,
			MaxX: o.Box.Max.X,
			MaxZ: o.Box.Max.Y,
		})
	}
	for i := range snap.Entities {
		e := &snap.Entities[i]
		if e.Role != telemetry.RoleEvader {
			continue
		}
		if ls := s.lifetimeTracker.Get(e.ID); ls != nil {
			e.Lifetime = ls.ToJSON()
		}
	}
	return snap
}

// Frame returns the dynamic state of the current tick.
func (s *Simulation) Frame() *telemetry.Snapshot {
	snap := &telemetry.Snapshot{
		Version: telemetry.SnapshotVersion,
		Seed:    s.cfg.Scene.Seed,
		Width:   s.layout.Scene.Width(),
		Depth:   s.layout.Scene.Depth(),
		Tick:    s.tick,
	}

	oq := s.observerFilter.Query()
	for oq.Next() {
		pos, _, rot, _, _ := oq.Get()
		snap.Entities = append(snap.Entities, telemetry.EntityState{
			ID:      0,
			Role:    telemetry.RoleObserver,
			X:       pos.X,
			Y:       pos.Y,
			Z:       pos.Z,
			Heading: rot.Heading,
		})
	}

	eq := s.evaderFilter.Query()
	for eq.Next() {
		pos, _, rot, _, _, ev := eq.Get()
		state := telemetry.EntityState{
			ID:      ev.ID,
			Role:    telemetry.RoleEvader,
			X:       pos.X,
			Y:       pos.Y,
			Z:       pos.Z,
			Heading: rot.Heading,
			Exposed: s.exposed[ev.ID],
		}
		if a, ok := s.avoiders[ev.ID]; ok {
			if target, moving := a.Target(); moving {
				state.Moving = true
				state.TargetX, state.TargetZ = target.X, target.Z
			}
			for _, c := range a.Last().Candidates {
				state.Candidates = append(state.Candidates, telemetry.CandidateState{
					X:     c.World.X,
					Z:     c.World.Z,
					Class: c.Class.String(),
				})
			}
		}
		snap.Entities = append(snap.Entities, state)
	}

	return snap
}
