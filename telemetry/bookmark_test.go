package telemetry

import "testing"

func hasBookmark(bookmarks []Bookmark, typ BookmarkType) bool {
	for _, bm := range bookmarks {
		if bm.Type == typ {
			return true
		}
	}
	return false
}

func TestBookmarkDetector_CorneredAndRestored(t *testing.T) {
	bd := NewBookmarkDetector(10)

	bookmarks := bd.Check(WindowStats{WindowEndTick: 600, Searches: 8, Found: 1, FoundRate: 0.125})
	if !hasBookmark(bookmarks, BookmarkCornered) {
		t.Fatal("expected cornered bookmark")
	}

	// Still cornered: no repeat
	bookmarks = bd.Check(WindowStats{WindowEndTick: 1200, Searches: 8, Found: 2, FoundRate: 0.25})
	if hasBookmark(bookmarks, BookmarkCornered) {
		t.Error("cornered bookmark repeated")
	}

	bookmarks = bd.Check(WindowStats{WindowEndTick: 1800, Searches: 4, Found: 4, FoundRate: 1})
	if !hasBookmark(bookmarks, BookmarkCoverRestored) {
		t.Error("expected cover_restored bookmark")
	}
}

func TestBookmarkDetector_IgnoresSparseWindows(t *testing.T) {
	bd := NewBookmarkDetector(10)
	bookmarks := bd.Check(WindowStats{WindowEndTick: 600, Searches: 2, FoundRate: 0})
	if hasBookmark(bookmarks, BookmarkCornered) {
		t.Error("cornered bookmark from too few searches")
	}
}

func TestBookmarkDetector_OracleFailure(t *testing.T) {
	bd := NewBookmarkDetector(10)

	if !hasBookmark(bd.Check(WindowStats{WindowEndTick: 600, OracleErrors: 3}), BookmarkOracleFailure) {
		t.Fatal("expected oracle_failure bookmark")
	}
	if hasBookmark(bd.Check(WindowStats{WindowEndTick: 1200, OracleErrors: 1}), BookmarkOracleFailure) {
		t.Error("oracle_failure repeated during a failing run")
	}
	bd.Check(WindowStats{WindowEndTick: 1800})
	if !hasBookmark(bd.Check(WindowStats{WindowEndTick: 2400, OracleErrors: 1}), BookmarkOracleFailure) {
		t.Error("expected oracle_failure after recovery")
	}
}

func TestBookmarkDetector_SearchSpike(t *testing.T) {
	bd := NewBookmarkDetector(10)

	for i := 0; i < 5; i++ {
		bd.Check(WindowStats{WindowEndTick: int32(i * 600), Searches: 5, SearchP90US: 100})
	}

	bookmarks := bd.Check(WindowStats{WindowEndTick: 3000, Searches: 5, SearchP90US: 450})
	if !hasBookmark(bookmarks, BookmarkSearchSpike) {
		t.Error("expected search_spike bookmark")
	}
}

func TestBookmarkDetector_StableCover(t *testing.T) {
	bd := NewBookmarkDetector(10)

	var fired int
	for i := 0; i < 8; i++ {
		bookmarks := bd.Check(WindowStats{WindowEndTick: int32(i * 600), HiddenEvaders: 4})
		if hasBookmark(bookmarks, BookmarkStableCover) {
			fired++
			if i != stableWindows-1 {
				t.Errorf("stable_cover fired at window %d, want %d", i, stableWindows-1)
			}
		}
	}
	if fired != 1 {
		t.Errorf("stable_cover fired %d times, want 1", fired)
	}

	// Exposure resets the streak
	bd = NewBookmarkDetector(10)
	for i := 0; i < 4; i++ {
		bd.Check(WindowStats{HiddenEvaders: 4})
	}
	bd.Check(WindowStats{HiddenEvaders: 3, ExposedEvaders: 1})
	if hasBookmark(bd.Check(WindowStats{HiddenEvaders: 4}), BookmarkStableCover) {
		t.Error("stable_cover fired after streak was broken")
	}
}

func TestBookmarkDetector_HistoryWraps(t *testing.T) {
	bd := NewBookmarkDetector(5)
	for i := 0; i < 12; i++ {
		bd.Check(WindowStats{WindowEndTick: int32(i)})
	}
	if got := len(bd.getHistory()); got != 5 {
		t.Errorf("history length = %d, want 5", got)
	}
}
