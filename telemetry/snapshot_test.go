package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSnapshotSaveLoad(t *testing.T) {
	// Create a temporary directory
	tmpDir := t.TempDir()

	// Create a test snapshot
	snapshot := &Snapshot{
		Version: SnapshotVersion,
		Seed:    42,
		Width:   60,
		Depth:   40,
		Occluders: []OccluderState{
			{MinX: 10, MinZ: 10, MaxX: 12, MaxZ: 20},
		},
		Tick: 1000,
		Entities: []EntityState{
			{ID: 0, Role: RoleObserver, X: 30, Z: 20, Heading: 1.2},
			{
				ID:      1,
				Role:    RoleEvader,
				X:       15,
				Z:       12,
				Moving:  true,
				TargetX: 9,
				TargetZ: 14,
				Candidates: []CandidateState{
					{X: 9, Z: 14, Class: "hidden_reachable"},
				},
				Lifetime: (&LifetimeStats{SpawnTick: 100, Searches: 3, Commits: 2, Holds: 1, Distance: 7.5}).ToJSON(),
			},
		},
		Bookmark: &Bookmark{
			Type:        BookmarkCornered,
			Tick:        1000,
			Description: "Test bookmark",
		},
	}

	// Save the snapshot
	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	// Verify file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("Snapshot file not created at %s", path)
	}

	// Load the snapshot
	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}

	// Verify loaded data matches original
	if loaded.Seed != snapshot.Seed {
		t.Errorf("Seed mismatch: got %d, want %d", loaded.Seed, snapshot.Seed)
	}
	if loaded.Tick != snapshot.Tick {
		t.Errorf("Tick mismatch: got %d, want %d", loaded.Tick, snapshot.Tick)
	}
	if len(loaded.Occluders) != 1 || loaded.Occluders[0] != snapshot.Occluders[0] {
		t.Errorf("Occluders mismatch: got %v", loaded.Occluders)
	}
	if len(loaded.Entities) != len(snapshot.Entities) {
		t.Fatalf("Entities count mismatch: got %d, want %d", len(loaded.Entities), len(snapshot.Entities))
	}
	ev := loaded.Entities[1]
	if !ev.Moving || ev.TargetX != 9 || len(ev.Candidates) != 1 {
		t.Errorf("evader state mismatch: %+v", ev)
	}
	if got := ev.Lifetime.FromJSON(); got.Commits != 2 || got.Distance != 7.5 {
		t.Errorf("lifetime mismatch: %+v", got)
	}
	if loaded.Bookmark == nil {
		t.Error("Bookmark not loaded")
	} else if loaded.Bookmark.Type != snapshot.Bookmark.Type {
		t.Errorf("Bookmark type mismatch: got %s, want %s", loaded.Bookmark.Type, snapshot.Bookmark.Type)
	}
}

func TestSnapshotFilename(t *testing.T) {
	tmpDir := t.TempDir()

	// Test with bookmark
	snapshot := &Snapshot{
		Version: SnapshotVersion,
		Tick:    5000,
		Bookmark: &Bookmark{
			Type: BookmarkStableCover,
			Tick: 5000,
		},
	}

	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	expected := filepath.Join(tmpDir, "snapshot_5000_stable_cover.json")
	if path != expected {
		t.Errorf("Path mismatch: got %s, want %s", path, expected)
	}

	// Test without bookmark
	snapshotNoBookmark := &Snapshot{
		Version: SnapshotVersion,
		Tick:    3000,
	}

	path, err = SaveSnapshot(snapshotNoBookmark, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	expected = filepath.Join(tmpDir, "snapshot_3000.json")
	if path != expected {
		t.Errorf("Path mismatch: got %s, want %s", path, expected)
	}
}

func TestLoadSnapshotRejectsVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.json")
	if err := os.WriteFile(path, []byte(`{"version": 99, "tick": 1}`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSnapshot(path); err == nil || !strings.Contains(err.Error(), "version") {
		t.Errorf("LoadSnapshot() error = %v, want version error", err)
	}
}

func TestLifetimeTracker(t *testing.T) {
	lt := NewLifetimeTracker()
	lt.Register(3, 10)

	lt.RecordSearch(3, true)
	lt.RecordSearch(3, false)
	lt.RecordArrival(3)
	lt.RecordExposure(3, true)
	lt.RecordExposure(3, false)
	lt.RecordExposure(3, false)
	lt.RecordExposure(3, false)
	lt.AddDistance(3, 2.5)
	lt.RecordSearch(99, true) // unknown ids are ignored

	s := lt.Get(3)
	if s.Searches != 2 || s.Commits != 1 || s.Holds != 1 || s.Arrivals != 1 {
		t.Errorf("search counters = %+v", s)
	}
	if got := s.HiddenFrac(); got != 0.75 {
		t.Errorf("HiddenFrac() = %v, want 0.75", got)
	}
	if lt.Count() != 1 {
		t.Errorf("Count() = %d, want 1", lt.Count())
	}
	if removed := lt.Remove(3); removed != s || lt.Get(3) != nil {
		t.Error("Remove() did not hand back and drop the stats")
	}
}
