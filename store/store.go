// Package store archives runs and their tick history in SQLite.
package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/pthm-cable/radiate/config"
	"github.com/pthm-cable/radiate/systems"
)

// DB wraps a SQLite connection for run archiving.
type DB struct {
	conn *sqlx.DB
}

// Run is one archived simulation run.
type Run struct {
	ID            string     `db:"id"`
	StartedAt     time.Time  `db:"started_at"`
	FinishedAt    *time.Time `db:"finished_at"`
	Seed          int64      `db:"seed"`
	InitialSupply float64    `db:"initial_supply"`
	ScaleDivisor  float64    `db:"scale_divisor"`
	Kappa         float64    `db:"kappa"`
	LevelCount    int        `db:"level_count"`
	Ticks         int        `db:"ticks"`
	FinalSource   float64    `db:"final_source"`
	FinalEnv      float64    `db:"final_environment"`
	Depleted      bool       `db:"depleted"`
}

// TickRow is one archived tick.
type TickRow struct {
	RunID              string  `db:"run_id"`
	Tick               int     `db:"tick"`
	SimTime            int64   `db:"sim_time"` // Unix nanoseconds
	Emitted            float64 `db:"emitted"`
	SourceBalance      float64 `db:"source_balance"`
	EnvironmentBalance float64 `db:"environment_balance"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite")
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
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		seed INTEGER NOT NULL,
		initial_supply REAL NOT NULL,
		scale_divisor REAL NOT NULL,
		kappa REAL NOT NULL,
		level_count INTEGER NOT NULL,
		ticks INTEGER NOT NULL DEFAULT 0,
		final_source REAL NOT NULL DEFAULT 0,
		final_environment REAL NOT NULL DEFAULT 0,
		depleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS ticks (
		run_id TEXT NOT NULL REFERENCES runs(id),
		tick INTEGER NOT NULL,
		sim_time INTEGER NOT NULL,
		emitted REAL NOT NULL,
		source_balance REAL NOT NULL,
		environment_balance REAL NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// BeginRun registers a new run and returns a recorder for its ticks.
func (db *DB) BeginRun(cfg *config.Config, seed uint64, startedAt time.Time) (*Recorder, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(`INSERT INTO runs
		(id, started_at, seed, initial_supply, scale_divisor, kappa, level_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, startedAt.UTC(), int64(seed), cfg.Source.InitialSupply,
		cfg.Emission.ScaleDivisor, cfg.Kappa.Shape, cfg.Environment.LevelCount,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return &Recorder{db: db, runID: id, every: 1}, nil
}

// FinishRun stores the final state of a run.
func (db *DB) FinishRun(runID string, ticks int, last systems.Result, finishedAt time.Time) error {
	_, err := db.conn.Exec(`UPDATE runs SET
		finished_at = ?, ticks = ?, final_source = ?, final_environment = ?, depleted = ?
		WHERE id = ?`,
		finishedAt.UTC(), ticks, last.SourceBalance, last.EnvironmentBalance, last.Depleted, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

// ListRuns returns archived runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	var runs []Run
	err := db.conn.Select(&runs, `SELECT * FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run by id.
func (db *DB) GetRun(runID string) (Run, error) {
	var r Run
	if err := db.conn.Get(&r, `SELECT * FROM runs WHERE id = ?`, runID); err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return r, nil
}

// Ticks returns the archived ticks of a run in order.
func (db *DB) Ticks(runID string) ([]TickRow, error) {
	var rows []TickRow
	err := db.conn.Select(&rows, `SELECT * FROM ticks WHERE run_id = ? ORDER BY tick`, runID)
	if err != nil {
		return nil, fmt.Errorf("ticks for %s: %w", runID, err)
	}
	return rows, nil
}

// Recorder buffers tick rows for one run and flushes them in transactions.
// It implements simulation.Sink.
type Recorder struct {
	db      *DB
	runID   string
	every   int
	pending []TickRow
}

// flushSize bounds how many rows are buffered before a transaction.
const flushSize = 512

// RunID returns the id of the run being recorded.
func (r *Recorder) RunID() string {
	return r.runID
}

// SetEvery keeps only every nth tick (n <= 1 keeps all).
func (r *Recorder) SetEvery(n int) {
	r.every = max(n, 1)
}

// Record buffers a tick, flushing when the buffer is full.
func (r *Recorder) Record(tick int, res systems.Result) error {
	if tick%r.every != 0 && !res.Depleted {
		return nil
	}
	r.pending = append(r.pending, TickRow{
		RunID:              r.runID,
		Tick:               tick,
		SimTime:            res.Time.UnixNano(),
		Emitted:            res.Emitted,
		SourceBalance:      res.SourceBalance,
		EnvironmentBalance: res.EnvironmentBalance,
	})
	if len(r.pending) >= flushSize {
		return r.Flush()
	}
	return nil
}

// Flush writes buffered ticks.
func (r *Recorder) Flush() error {
	if len(r.pending) == 0 {
		return nil
	}

	tx, err := r.db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.NamedExec(`INSERT INTO ticks
		(run_id, tick, sim_time, emitted, source_balance, environment_balance)
		VALUES (:run_id, :tick, :sim_time, :emitted, :source_balance, :environment_balance)`,
		r.pending)
	if err != nil {
		return fmt.Errorf("insert ticks: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	r.pending = r.pending[:0]
	return nil
}

// Finish flushes pending ticks and stores the run's final state.
func (r *Recorder) Finish(ticks int, last systems.Result, finishedAt time.Time) error {
	if err := r.Flush(); err != nil {
		return err
	}
	return r.db.FinishRun(r.runID, ticks, last, finishedAt)
}
