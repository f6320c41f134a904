package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Entity roles in a snapshot.
const (
	RoleEvader   = "evader"
	RoleObserver = "observer"
)

// Snapshot holds the simulation state at one tick. Frames published to
// viewers are snapshots without the static occluders.
type Snapshot struct {
	Version int   `json:"version"`
	Seed    int64 `json:"seed"`

	Width float64 `json:"width"`
	Depth float64 `json:"depth"`

	Occluders []OccluderState `json:"occluders,omitempty"`

	Tick int32 `json:"tick"`

	Entities []EntityState `json:"entities"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// OccluderState is an occluder footprint on the X/Z plane.
type OccluderState struct {
	MinX float64 `json:"min_x"`
	MinZ float64 `json:"min_z"`
	MaxX float64 `json:"max_x"`
	MaxZ float64 `json:"max_z"`
}

// EntityState holds one entity's state.
type EntityState struct {
	ID   uint32 `json:"id"`
	Role string `json:"role"`

	// Position and heading
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	Heading float64 `json:"heading"`

	// Evasion state (evaders only)
	Moving  bool    `json:"moving,omitempty"`
	TargetX float64 `json:"target_x,omitempty"`
	TargetZ float64 `json:"target_z,omitempty"`
	Exposed bool    `json:"exposed,omitempty"`

	// Candidates of the most recent search
	Candidates []CandidateState `json:"candidates,omitempty"`

	// Lifetime stats
	Lifetime *LifetimeStatsJSON `json:"lifetime,omitempty"`
}

// CandidateState is a classified candidate for drawing.
type CandidateState struct {
	X     float64 `json:"x"`
	Z     float64 `json:"z"`
	Class string  `json:"class"`
}

// LifetimeStatsJSON is the JSON-serializable form of LifetimeStats.
type LifetimeStatsJSON struct {
	SpawnTick    int32   `json:"spawn_tick"`
	Searches     int     `json:"searches"`
	Commits      int     `json:"commits"`
	Holds        int     `json:"holds"`
	Arrivals     int     `json:"arrivals"`
	ExposedTicks int     `json:"exposed_ticks"`
	HiddenTicks  int     `json:"hidden_ticks"`
	Distance     float64 `json:"distance"`
}

// ToJSON converts LifetimeStats to its JSON form.
func (ls *LifetimeStats) ToJSON() *LifetimeStatsJSON {
	if ls == nil {
		return nil
	}
	return &LifetimeStatsJSON{
		SpawnTick:    ls.SpawnTick,
		Searches:     ls.Searches,
		Commits:      ls.Commits,
		Holds:        ls.Holds,
		Arrivals:     ls.Arrivals,
		ExposedTicks: ls.ExposedTicks,
		HiddenTicks:  ls.HiddenTicks,
		Distance:     ls.Distance,
	}
}

// FromJSON converts the JSON form back to LifetimeStats.
func (lsj *LifetimeStatsJSON) FromJSON() *LifetimeStats {
	if lsj == nil {
		return nil
	}
	return &LifetimeStats{
		SpawnTick:    lsj.SpawnTick,
		Searches:     lsj.Searches,
		Commits:      lsj.Commits,
		Holds:        lsj.Holds,
		Arrivals:     lsj.Arrivals,
		ExposedTicks: lsj.ExposedTicks,
		HiddenTicks:  lsj.HiddenTicks,
		Distance:     lsj.Distance,
	}
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	// Build filename
	name := fmt.Sprintf("snapshot_%d", snapshot.Tick)
	if snapshot.Bookmark != nil {
		// Sanitize bookmark type for filename
		sanitized := strings.ReplaceAll(string(snapshot.Bookmark.Type), " ", "_")
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Tick, sanitized)
	}
	name += ".json"

	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}

	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snapshot.Version)
	}

	return &snapshot, nil
}
