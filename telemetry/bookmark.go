package telemetry

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/stat"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkFirstWin            BookmarkType = "first_win"
	BookmarkSuccessBreakthrough BookmarkType = "success_breakthrough"
	BookmarkSuccessCollapse     BookmarkType = "success_collapse"
	BookmarkStagnationSpike     BookmarkType = "stagnation_spike"
	BookmarkPlateau             BookmarkType = "plateau"
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

// BookmarkDetector detects notable moments in training progress.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	// State tracking
	sawWin          bool
	rollingPeak     float64 // peak rolling success in recent history
	plateauReported bool
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for plateau detection
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if !bd.sawWin && stats.Wins > 0 {
		bd.sawWin = true
		bookmarks = append(bookmarks, Bookmark{
			Type:        BookmarkFirstWin,
			Tick:        stats.WindowEndTick,
			Description: fmt.Sprintf("first goal reached (%d wins in window)", stats.Wins),
		})
	}

	if bd.historyFull || bd.historyIdx > 0 {
		if b := bd.checkSuccessBreakthrough(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkSuccessCollapse(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkStagnationSpike(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
		if b := bd.checkPlateau(stats); b != nil {
			bookmarks = append(bookmarks, *b)
		}
	}

	bd.addToHistory(stats)
	if stats.RollingSuccess > bd.rollingPeak {
		bd.rollingPeak = stats.RollingSuccess
	}

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

// checkSuccessBreakthrough fires when a window's success rate is more than
// double the history average.
func (bd *BookmarkDetector) checkSuccessBreakthrough(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 || stats.Episodes == 0 {
		return nil
	}

	var wins, episodes int
	for _, h := range history {
		wins += h.Wins
		episodes += h.Episodes
	}
	if episodes == 0 {
		return nil
	}

	avg := float64(wins) / float64(episodes)
	if avg == 0 || stats.WindowSuccess < 0.1 || stats.WindowSuccess <= 2*avg {
		return nil
	}

	return &Bookmark{
		Type: BookmarkSuccessBreakthrough,
		Tick: stats.WindowEndTick,
		Description: fmt.Sprintf("window success %.2f vs avg %.2f (%.1fx)",
			stats.WindowSuccess, avg, stats.WindowSuccess/avg),
	}
}

// checkSuccessCollapse fires when the rolling success rate falls more than
// 30% below its peak.
func (bd *BookmarkDetector) checkSuccessCollapse(stats WindowStats) *Bookmark {
	if bd.rollingPeak < 0.2 {
		return nil
	}
	drop := (bd.rollingPeak - stats.RollingSuccess) / bd.rollingPeak
	if drop <= 0.3 {
		return nil
	}

	peak := bd.rollingPeak
	bd.rollingPeak = stats.RollingSuccess // reset so we don't re-trigger
	return &Bookmark{
		Type:        BookmarkSuccessCollapse,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("rolling success dropped from %.2f to %.2f (%.0f%%)", peak, stats.RollingSuccess, drop*100),
	}
}

// checkStagnationSpike fires when most episodes in a window end by
// stagnation while that was rare before.
func (bd *BookmarkDetector) checkStagnationSpike(stats WindowStats) *Bookmark {
	history := bd.getHistory()
	if len(history) < 3 || stats.Episodes < 5 {
		return nil
	}

	var stagnated, episodes int
	for _, h := range history {
		stagnated += h.Stagnated
		episodes += h.Episodes
	}
	if episodes == 0 {
		return nil
	}

	avg := float64(stagnated) / float64(episodes)
	frac := float64(stats.Stagnated) / float64(stats.Episodes)
	if frac <= 0.5 || avg >= 0.25 {
		return nil
	}

	return &Bookmark{
		Type:        BookmarkStagnationSpike,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("%.0f%% of episodes stagnated vs avg %.0f%%", frac*100, avg*100),
	}
}

// checkPlateau fires once when the rolling success rate has barely moved
// over the whole history.
func (bd *BookmarkDetector) checkPlateau(stats WindowStats) *Bookmark {
	if bd.plateauReported {
		return nil
	}
	history := bd.getHistory()
	if len(history) < 5 || stats.Episodes == 0 {
		return nil
	}

	rolling := make([]float64, 0, len(history)+1)
	for _, h := range history {
		rolling = append(rolling, h.RollingSuccess)
	}
	rolling = append(rolling, stats.RollingSuccess)

	mean, std := stat.MeanStdDev(rolling, nil)
	if std >= 0.02 {
		return nil
	}

	bd.plateauReported = true
	return &Bookmark{
		Type:        BookmarkPlateau,
		Tick:        stats.WindowEndTick,
		Description: fmt.Sprintf("rolling success flat at %.2f (std %.3f) over %d windows", mean, std, len(rolling)),
	}
}
