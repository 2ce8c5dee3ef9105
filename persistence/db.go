// Package persistence provides SQLite-based storage of training runs and
// their finished episodes.
package persistence

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/pthm-cable/smartnav/telemetry"
)

// DB wraps a SQLite connection for run history.
type DB struct {
	conn *sqlx.DB
}

// Run is one row of the runs table.
type Run struct {
	ID         string `db:"id"`
	StartedAt  string `db:"started_at"`
	FinishedAt string `db:"finished_at"`
	Seed       int64  `db:"seed"`
	Maps       int    `db:"maps"`
	Agents     int    `db:"agents"`
	Ticks      int64  `db:"ticks"`
}

// MapStat aggregates episodes of one run on one map.
type MapStat struct {
	MapIndex int32   `db:"map_index"`
	Episodes int     `db:"episodes"`
	Wins     int     `db:"wins"`
	MeanRet  float64 `db:"mean_return"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT '',
		seed INTEGER NOT NULL,
		maps INTEGER NOT NULL,
		agents INTEGER NOT NULL,
		ticks INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS episodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		tick INTEGER NOT NULL,
		agent INTEGER NOT NULL,
		episode INTEGER NOT NULL,
		map_index INTEGER NOT NULL,
		slot_index INTEGER NOT NULL,
		spawn_index INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		success INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		ep_return REAL NOT NULL,
		final_distance REAL NOT NULL,
		closest_distance REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_episodes_run ON episodes(run_id);
	CREATE INDEX IF NOT EXISTS idx_episodes_map ON episodes(run_id, map_index);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// StartRun registers a new run and returns its ID.
func (db *DB) StartRun(seed int64, maps, agents int) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(
		"INSERT INTO runs (id, started_at, seed, maps, agents) VALUES (?, ?, ?, ?, ?)",
		id, time.Now().UTC().Format(time.RFC3339), seed, maps, agents,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun stamps a run with its end time and tick count.
func (db *DB) FinishRun(runID string, ticks int64) error {
	_, err := db.conn.Exec(
		"UPDATE runs SET finished_at = ?, ticks = ? WHERE id = ?",
		time.Now().UTC().Format(time.RFC3339), ticks, runID,
	)
	return err
}

// SaveEpisodes appends finished episodes to a run in one transaction.
func (db *DB) SaveEpisodes(runID string, recs []telemetry.EpisodeRecord) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO episodes
		(run_id, tick, agent, episode, map_index, slot_index, spawn_index, outcome, success, steps, ep_return, final_distance, closest_distance)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.Exec(runID, r.Tick, r.AgentID, r.Episode, r.MapIndex, r.SlotIndex, r.SpawnIndex,
			r.Outcome, r.Success, r.Steps, r.Return, r.Distance, r.Closest); err != nil {
			return fmt.Errorf("insert episode %d of agent %d: %w", r.Episode, r.AgentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Debug("episodes saved", "run", runID, "count", len(recs))
	return nil
}

// EpisodeCount returns how many episodes a run has stored.
func (db *DB) EpisodeCount(runID string) (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM episodes WHERE run_id = ?", runID)
	return n, err
}

// SuccessRate returns the fraction of a run's stored episodes that succeeded.
// A run with no episodes has rate 0.
func (db *DB) SuccessRate(runID string) (float64, error) {
	var rate float64
	err := db.conn.Get(&rate,
		"SELECT COALESCE(AVG(success), 0.0) FROM episodes WHERE run_id = ?", runID)
	return rate, err
}

// MapStats returns per-map aggregates for a run, ordered by map index.
func (db *DB) MapStats(runID string) ([]MapStat, error) {
	var stats []MapStat
	err := db.conn.Select(&stats, `
		SELECT map_index, COUNT(*) AS episodes, SUM(success) AS wins, AVG(ep_return) AS mean_return
		FROM episodes WHERE run_id = ?
		GROUP BY map_index ORDER BY map_index`, runID)
	return stats, err
}

// Runs returns every stored run, newest first.
func (db *DB) Runs() ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs, "SELECT * FROM runs ORDER BY started_at DESC, id")
	return runs, err
}
