package game

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/pthm-cable/smartnav/telemetry"
)

// flushTelemetry checks if the stats window should be flushed and handles bookmarks.
func (g *Game) flushTelemetry() {
	if !g.collector.ShouldFlush(g.tick) {
		return
	}

	stats := g.collector.Flush(g.tick, g.pool.Slots())
	perfStats := g.perfCollector.Stats()

	if g.statsCallback != nil {
		g.statsCallback(stats)
	}

	if g.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if err := g.outputManager.WriteTelemetry(stats); err != nil {
		slog.Error("failed to write telemetry", "error", err)
	}
	if err := g.outputManager.WritePerf(perfStats, stats.WindowEndTick); err != nil {
		slog.Error("failed to write perf", "error", err)
	}
	if err := g.savePending(); err != nil {
		slog.Error("failed to save episodes", "error", err)
	}

	for _, bm := range g.bookmarkDetector.Check(stats) {
		if g.logStats {
			bm.LogBookmark()
		}
		if err := g.outputManager.WriteBookmark(bm); err != nil {
			slog.Error("failed to write bookmark", "error", err)
		}
	}
}

// savePending writes episodes finished since the last flush to episodes.csv
// and the run database.
func (g *Game) savePending() error {
	if len(g.pending) == 0 {
		return nil
	}
	var errs []error
	if err := g.outputManager.WriteEpisodes(g.pending); err != nil {
		errs = append(errs, fmt.Errorf("writing episodes: %w", err))
	}
	if g.db != nil {
		if err := g.db.SaveEpisodes(g.runID, g.pending); err != nil {
			errs = append(errs, err)
		}
	}
	g.pending = g.pending[:0]
	return errors.Join(errs...)
}

// recordEpisode feeds a finished episode to every telemetry sink.
func (g *Game) recordEpisode(rec telemetry.EpisodeRecord) {
	rec.RunID = g.runID
	g.collector.RecordEpisode(rec)
	g.agentTracker.RecordEpisode(rec)
	g.pending = append(g.pending, rec)
}
