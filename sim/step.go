package sim

import (
	"context"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/hideout/components"
	"github.com/pthm-cable/hideout/hiding"
	"github.com/pthm-cable/hideout/telemetry"
)

// Step advances the simulation by one tick.
func (s *Simulation) Step() {
	s.perfCollector.StartTick()

	// 1. Observer patrol
	s.perfCollector.StartPhase(telemetry.PhaseObserver)
	s.updateObserver()

	// 2. Trigger policy and hiding spot searches
	s.perfCollector.StartPhase(telemetry.PhaseSearch)
	s.updateSearch()

	// 3. Evader movement along planned paths
	s.perfCollector.StartPhase(telemetry.PhaseMovement)
	s.updateMovement()

	s.tick++

	// 4. Stats windows and bookmarks
	s.perfCollector.StartPhase(telemetry.PhaseTelemetry)
	s.flushTelemetry()

	// 5. Live frames
	s.perfCollector.StartPhase(telemetry.PhasePublish)
	s.publishFrame()

	s.perfCollector.EndTick()
}

// Run steps until maxTicks ticks have completed or ctx is done.
// maxTicks <= 0 runs until ctx is done.
func (s *Simulation) Run(ctx context.Context, maxTicks int32) error {
	for maxTicks <= 0 || s.tick < maxTicks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.Step()
	}
	return nil
}

// updateObserver walks the observer toward its next waypoint, planning a new
// leg whenever the last one is finished.
func (s *Simulation) updateObserver() {
	dt := s.cfg.Sim.DT

	query := s.observerFilter.Query()
	for query.Next() {
		pos, vel, rot, mover, obs := query.Get()

		if !mover.Active {
			target := obs.Target()
			obs.Advance()
			path := s.planner.FindPath(pos.Vec(), target)
			if path == nil {
				slog.Debug("observer waypoint unreachable", "tick", s.tick, "waypoint", target)
				continue
			}
			mover.Follow(target, path)
		}

		advance(pos, vel, rot, mover, dt)
	}
}

// updateSearch runs every evader's trigger policy against the observer.
func (s *Simulation) updateSearch() {
	observer := s.ObserverPosition()

	query := s.evaderFilter.Query()
	for query.Next() {
		pos, _, rot, _, mover, ev := query.Get()

		a, ok := s.avoiders[ev.ID]
		if !ok {
			continue
		}
		agent := pos.Vec()

		start := time.Now()
		d, err := a.Update(agent, observer)
		elapsed := time.Since(start)

		if err != nil {
			// The avoider committed nothing and retries next tick
			s.collector.RecordOracleError()
			slog.Warn("hiding spot search failed", "evader", ev.ID, "tick", s.tick, "error", err)
		} else {
			if d.Arrived {
				s.collector.RecordArrival()
				s.lifetimeTracker.RecordArrival(ev.ID)
			}
			if d.Searched {
				s.recordSearch(ev.ID, agent, observer, d, elapsed)
			}
			if d.Committed && !mover.Active {
				slog.Debug("hiding spot unreachable", "evader", ev.ID, "tick", s.tick, "target", d.Result.Target)
				a.Cancel()
			}
		}

		exposed := s.layout.Scene.LineOfSight(observer, agent)
		s.exposed[ev.ID] = exposed
		s.lifetimeTracker.RecordExposure(ev.ID, exposed)

		// Idle evaders keep an eye on the observer
		if !mover.Active {
			rot.Heading = math.Atan2(observer.Z-agent.Z, observer.X-agent.X)
		}
	}
}

// recordSearch feeds a completed search into telemetry.
func (s *Simulation) recordSearch(id uint32, agent, observer r3.Vec, d hiding.Decision, elapsed time.Duration) {
	rec := telemetry.NewSelectionRecord(s.tick, id, agent, observer, d.Result, elapsed)
	s.collector.RecordSearch(rec)
	s.perfCollector.RecordSearch(telemetry.WorkOf(d.Result))
	s.lifetimeTracker.RecordSearch(id, d.Committed)
	slog.Debug("search", "selection", rec)

	var candidates []telemetry.CandidateRecord
	if s.cfg.Telemetry.Candidates {
		candidates = telemetry.CandidateRecords(rec.SearchID, d.Result)
	}
	if err := s.outputManager.WriteSelection(rec, candidates); err != nil {
		slog.Error("failed to write selection", "error", err)
	}
}

// updateMovement moves evaders along their paths.
func (s *Simulation) updateMovement() {
	dt := s.cfg.Sim.DT

	query := s.evaderFilter.Query()
	for query.Next() {
		pos, vel, rot, _, mover, ev := query.Get()
		if moved := advance(pos, vel, rot, mover, dt); moved > 0 {
			s.lifetimeTracker.AddDistance(ev.ID, moved)
		}
	}
}

// advance steps one mover for dt seconds and returns the distance covered.
func advance(pos *components.Position, vel *components.Velocity, rot *components.Rotation, mover *components.Mover, dt float64) float64 {
	if !mover.Active {
		vel.X, vel.Z = 0, 0
		return 0
	}

	from := pos.Vec()
	to, moved := mover.Step(from, mover.Speed*dt)
	pos.Set(to)

	vel.X = (to.X - from.X) / dt
	vel.Z = (to.Z - from.Z) / dt
	if moved > 0 {
		rot.Heading = math.Atan2(vel.Z, vel.X)
	}
	return moved
}
