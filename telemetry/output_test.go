package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("", true)
	if err != nil || om != nil {
		t.Fatalf("NewOutputManager(\"\") = %v, %v; want nil, nil", om, err)
	}
	// Nil manager is a no-op
	if err := om.WriteTelemetry(WindowStats{}); err != nil {
		t.Errorf("nil WriteTelemetry() error = %v", err)
	}
	if err := om.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}
}

func TestOutputManagerWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir, true)
	if err != nil {
		t.Fatalf("NewOutputManager() error = %v", err)
	}

	res := testResult()
	for i := 0; i < 3; i++ {
		rec := NewSelectionRecord(int32(i), 1, r3.Vec{}, r3.Vec{X: 4}, res, time.Millisecond)
		if err := om.WriteSelection(rec, CandidateRecords(rec.SearchID, res)); err != nil {
			t.Fatalf("WriteSelection() error = %v", err)
		}
	}
	if err := om.WriteBookmark(Bookmark{Type: BookmarkCornered, Tick: 5, Description: "x"}); err != nil {
		t.Fatalf("WriteBookmark() error = %v", err)
	}
	if err := om.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	tests := []struct {
		file      string
		header    string
		wantLines int
	}{
		{"selections.csv", "search_id,tick,evader", 4},
		{"candidates.csv", "search_id,index,x,y,z,class,distance,chosen", 10},
		{"bookmarks.csv", "type,tick,description", 2},
		{"telemetry.csv", "", 0},
	}
	for _, tc := range tests {
		t.Run(tc.file, func(t *testing.T) {
			data, err := os.ReadFile(filepath.Join(dir, tc.file))
			if err != nil {
				t.Fatalf("reading %s: %v", tc.file, err)
			}
			text := strings.TrimSpace(string(data))
			var lines []string
			if text != "" {
				lines = strings.Split(text, "\n")
			}
			if len(lines) != tc.wantLines {
				t.Fatalf("%s has %d lines, want %d", tc.file, len(lines), tc.wantLines)
			}
			if tc.header != "" && !strings.HasPrefix(lines[0], tc.header) {
				t.Errorf("%s header = %q, want prefix %q", tc.file, lines[0], tc.header)
			}
		})
	}
}

func TestOutputManagerWithoutCandidates(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir, false)
	if err != nil {
		t.Fatalf("NewOutputManager() error = %v", err)
	}
	defer om.Close()

	res := testResult()
	rec := NewSelectionRecord(1, 1, r3.Vec{}, r3.Vec{X: 4}, res, 0)
	if err := om.WriteSelection(rec, CandidateRecords(rec.SearchID, res)); err != nil {
		t.Fatalf("WriteSelection() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "candidates.csv")); !os.IsNotExist(err) {
		t.Errorf("candidates.csv exists with candidates disabled (stat err %v)", err)
	}
}
