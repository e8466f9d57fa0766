package observer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/dcshock/datamux/stream"
)

// ErrNoRun is returned by Flush and FinishRun before StartRun was called.
var ErrNoRun = errors.New("observer: no run started")

// Run is one row of mix_run.
type Run struct {
	ID         uuid.UUID
	Name       string
	Seed       int64
	StartedAt  time.Time
	FinishedAt *time.Time
}

// SourceStat is the draw statistics of one input of one multiplexer in a run.
type SourceStat struct {
	Mux       string
	Source    string
	Drawn     int64
	Opens     int64
	Exhausted int64
}

// timeLayout has fixed-width fractions so timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type statKey struct{ mux, source string }

// Ledger persists draw statistics to SQLite. It implements stream.Observer.
type Ledger struct {
	db   *sql.DB
	path string

	mu    sync.Mutex
	run   uuid.UUID
	stats map[statKey]*SourceStat
}

var _ stream.Observer = (*Ledger)(nil)

// Open opens or creates the ledger database at path.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps a :memory: database alive across calls.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	l := &Ledger{db: db, path: path, stats: make(map[statKey]*SourceStat)}
	if err := l.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// Path returns the database path the ledger was opened with.
func (l *Ledger) Path() string { return l.path }

// Close closes the database. Unflushed counts are lost.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// StartRun inserts a mix_run row and makes it the current run. Counters are reset.
func (l *Ledger) StartRun(ctx context.Context, name string, seed int64) (uuid.UUID, error) {
	id := uuid.New()
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO mix_run (run_id, name, seed, started_at) VALUES (?, ?, ?, ?)`,
		id.String(), name, seed, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}
	l.mu.Lock()
	l.run = id
	l.stats = make(map[statKey]*SourceStat)
	l.mu.Unlock()
	return id, nil
}

// StreamOpened implements stream.Observer.
func (l *Ledger) StreamOpened(_ context.Context, mux, source string) error {
	l.mu.Lock()
	l.stat(mux, source).Opens++
	l.mu.Unlock()
	return nil
}

// StreamExhausted implements stream.Observer.
func (l *Ledger) StreamExhausted(_ context.Context, mux, source string, _ int) error {
	l.mu.Lock()
	l.stat(mux, source).Exhausted++
	l.mu.Unlock()
	return nil
}

// StreamClosed implements stream.Observer. Inputs still open when a multiplexer is
// closed count as neither exhausted nor drawn again.
func (l *Ledger) StreamClosed(context.Context, string, string, int) error { return nil }

// EntryDrawn implements stream.Observer.
func (l *Ledger) EntryDrawn(_ context.Context, mux, source string) error {
	l.mu.Lock()
	l.stat(mux, source).Drawn++
	l.mu.Unlock()
	return nil
}

func (l *Ledger) stat(mux, source string) *SourceStat {
	k := statKey{mux, source}
	s, ok := l.stats[k]
	if !ok {
		s = &SourceStat{Mux: mux, Source: source}
		l.stats[k] = s
	}
	return s
}

// Flush writes the current run's counters. Rows are upserted, so Flush may be called
// any number of times during a run.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	run := l.run
	snapshot := make([]SourceStat, 0, len(l.stats))
	for _, s := range l.stats {
		snapshot = append(snapshot, *s)
	}
	l.mu.Unlock()
	if run == uuid.Nil {
		return ErrNoRun
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin flush tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, s := range snapshot {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO mix_run_source (run_id, mux, source, drawn, opens, exhausted)
             VALUES (?, ?, ?, ?, ?, ?)
             ON CONFLICT (run_id, mux, source) DO UPDATE SET
                drawn = excluded.drawn,
                opens = excluded.opens,
                exhausted = excluded.exhausted`,
			run.String(), s.Mux, s.Source, s.Drawn, s.Opens, s.Exhausted)
		if err != nil {
			return fmt.Errorf("upsert source stats %s/%s: %w", s.Mux, s.Source, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flush: %w", err)
	}
	return nil
}

// FinishRun flushes the current run and records its finish time.
func (l *Ledger) FinishRun(ctx context.Context) error {
	if err := l.Flush(ctx); err != nil {
		return err
	}
	l.mu.Lock()
	run := l.run
	l.mu.Unlock()
	_, err := l.db.ExecContext(ctx, `UPDATE mix_run SET finished_at = ? WHERE run_id = ?`,
		time.Now().UTC().Format(timeLayout), run.String())
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// Runs returns every run, oldest first.
func (l *Ledger) Runs(ctx context.Context) ([]Run, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, name, seed, started_at, finished_at FROM mix_run ORDER BY started_at, run_id`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r        Run
			id       string
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&id, &r.Name, &r.Seed, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse run id %q: %w", id, err)
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if finished.Valid {
			t, err := time.Parse(timeLayout, finished.String)
			if err != nil {
				return nil, fmt.Errorf("parse finished_at: %w", err)
			}
			r.FinishedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SourceStats returns the persisted statistics of a run ordered by mux and source.
func (l *Ledger) SourceStats(ctx context.Context, runID uuid.UUID) ([]SourceStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT mux, source, drawn, opens, exhausted FROM mix_run_source WHERE run_id = ?`,
		runID.String())
	if err != nil {
		return nil, fmt.Errorf("query source stats: %w", err)
	}
	defer rows.Close()

	var out []SourceStat
	for rows.Next() {
		var s SourceStat
		if err := rows.Scan(&s.Mux, &s.Source, &s.Drawn, &s.Opens, &s.Exhausted); err != nil {
			return nil, fmt.Errorf("scan source stats: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Mux != out[j].Mux {
			return out[i].Mux < out[j].Mux
		}
		return out[i].Source < out[j].Source
	})
	return out, nil
}
