// Package telemetry provides search tracking, windowed stats, bookmarks and snapshots.
package telemetry

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/hideout/hiding"
)

// SelectionRecord describes one hiding-spot search by one evader.
type SelectionRecord struct {
	SearchID    string  `csv:"search_id"`
	Tick        int32   `csv:"tick"`
	EvaderID    uint32  `csv:"evader"`
	AgentX      float64 `csv:"agent_x"`
	AgentZ      float64 `csv:"agent_z"`
	ObserverX   float64 `csv:"observer_x"`
	ObserverZ   float64 `csv:"observer_z"`
	Found       bool    `csv:"found"`
	TargetX     float64 `csv:"target_x"`
	TargetZ     float64 `csv:"target_z"`
	Distance    float64 `csv:"distance"`
	Candidates  int     `csv:"candidates"`
	Visible     int     `csv:"visible"`
	Unreachable int     `csv:"hidden_unreachable"`
	Reachable   int     `csv:"hidden_reachable"`
	DurationUS  int64   `csv:"duration_us"`
}

// NewSelectionRecord summarises a search result under a fresh search id.
func NewSelectionRecord(tick int32, evaderID uint32, agent, observer r3.Vec, res hiding.Result, dur time.Duration) SelectionRecord {
	visible, unreachable, reachable := res.Counts()
	rec := SelectionRecord{
		SearchID:    uuid.NewString(),
		Tick:        tick,
		EvaderID:    evaderID,
		AgentX:      agent.X,
		AgentZ:      agent.Z,
		ObserverX:   observer.X,
		ObserverZ:   observer.Z,
		Found:       res.Found,
		Candidates:  len(res.Candidates),
		Visible:     visible,
		Unreachable: unreachable,
		Reachable:   reachable,
		DurationUS:  dur.Microseconds(),
	}
	if res.Found {
		rec.TargetX = res.Target.X
		rec.TargetZ = res.Target.Z
		rec.Distance = res.Candidates[res.TargetIndex].Distance
	}
	return rec
}

// LogValue implements slog.LogValuer for structured logging.
func (r SelectionRecord) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("search_id", r.SearchID),
		slog.Int("tick", int(r.Tick)),
		slog.Int("evader", int(r.EvaderID)),
		slog.Bool("found", r.Found),
		slog.Int("candidates", r.Candidates),
		slog.Int("visible", r.Visible),
		slog.Int("hidden_unreachable", r.Unreachable),
		slog.Int("hidden_reachable", r.Reachable),
		slog.Int64("duration_us", r.DurationUS),
	}
	if r.Found {
		attrs = append(attrs,
			slog.Float64("target_x", r.TargetX),
			slog.Float64("target_z", r.TargetZ),
			slog.Float64("distance", r.Distance),
		)
	}
	return slog.GroupValue(attrs...)
}

// CandidateRecord is one classified candidate of a search.
type CandidateRecord struct {
	SearchID string  `csv:"search_id"`
	Index    int     `csv:"index"`
	X        float64 `csv:"x"`
	Y        float64 `csv:"y"`
	Z        float64 `csv:"z"`
	Class    string  `csv:"class"`
	Distance float64 `csv:"distance"`
	Chosen   bool    `csv:"chosen"`
}

// CandidateRecords flattens a result's candidates in sampling order.
func CandidateRecords(searchID string, res hiding.Result) []CandidateRecord {
	out := make([]CandidateRecord, len(res.Candidates))
	for i, c := range res.Candidates {
		out[i] = CandidateRecord{
			SearchID: searchID,
			Index:    c.Index,
			X:        c.World.X,
			Y:        c.World.Y,
			Z:        c.World.Z,
			Class:    c.Class.String(),
			Distance: c.Distance,
			Chosen:   res.Found && c.Index == res.TargetIndex,
		}
	}
	return out
}
