package telemetry

import (
	"fmt"
	"log/slog"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkCornered      BookmarkType = "cornered"
	BookmarkCoverRestored BookmarkType = "cover_restored"
	BookmarkOracleFailure BookmarkType = "oracle_failure"
	BookmarkSearchSpike   BookmarkType = "search_spike"
	BookmarkStableCover   BookmarkType = "stable_cover"
)

// Bookmark thresholds
const (
	corneredFoundRate  = 0.25 // found rate at or below which evaders are cornered
	restoredFoundRate  = 0.75
	minSearchesForRate = 3
	spikeFactor        = 2.0 // search p90 multiple of the rolling mean
	stableWindows      = 5
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Tick        int32        `csv:"tick"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"tick", b.Tick,
		"description", b.Description,
	)
}

// BookmarkDetector detects interesting moments in the simulation.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	cornered           bool // last rated window was cornered
	failing            bool // last window had oracle errors
	stableWindowsCount int  // consecutive windows with every evader hidden
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < stableWindows {
		historySize = stableWindows
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	for _, check := range []func(WindowStats) *Bookmark{
		bd.checkCornered,
		bd.checkOracleFailure,
		bd.checkSearchSpike,
		bd.checkStableCover,
	} {
		if b := check(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	bd.addToHistory(stats)
	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

// checkCornered fires on entering and leaving a low found-rate regime.
func (bd *BookmarkDetector) checkCornered(stats WindowStats) *Bookmark {
	if stats.Searches < minSearchesForRate {
		return nil
	}

	if !bd.cornered && stats.FoundRate <= corneredFoundRate {
		bd.cornered = true
		return &Bookmark{
			Type:        BookmarkCornered,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Only %d of %d searches found cover", stats.Found, stats.Searches),
		}
	}
	if bd.cornered && stats.FoundRate >= restoredFoundRate {
		bd.cornered = false
		return &Bookmark{
			Type:        BookmarkCoverRestored,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Found rate recovered to %.2f", stats.FoundRate),
		}
	}
	return nil
}

// checkOracleFailure fires on the first window of a run of oracle errors.
func (bd *BookmarkDetector) checkOracleFailure(stats WindowStats) *Bookmark {
	was := bd.failing
	bd.failing = stats.OracleErrors > 0
	if !bd.failing || was {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkOracleFailure,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("%d searches abandoned on oracle errors", stats.OracleErrors),
	}
}

func (bd *BookmarkDetector) checkSearchSpike(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 || stats.Searches == 0 {
		return nil
	}

	// Rolling mean of p90 search time over windows that searched
	var sum float64
	var n int
	for _, h := range history {
		if h.Searches > 0 {
			sum += h.SearchP90US
			n++
		}
	}
	if n == 0 || sum == 0 {
		return nil
	}
	avg := sum / float64(n)

	if stats.SearchP90US > avg*spikeFactor {
		return &Bookmark{
			Type:        BookmarkSearchSpike,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("Search p90 %.0fus is %.1fx average (%.0fus)", stats.SearchP90US, stats.SearchP90US/avg, avg),
		}
	}
	return nil
}

func (bd *BookmarkDetector) checkStableCover(stats WindowStats) *Bookmark {
	if stats.HiddenEvaders == 0 || stats.ExposedEvaders > 0 {
		bd.stableWindowsCount = 0
		return nil
	}

	bd.stableWindowsCount++
	if bd.stableWindowsCount == stableWindows { // trigger exactly once per run
		return &Bookmark{
			Type:        BookmarkStableCover,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("All %d evaders hidden for %d windows", stats.HiddenEvaders, stableWindows),
		}
	}
	return nil
}
