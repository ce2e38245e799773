// Package registry records pipeline runs and their per-region results in an
// SQLite database whose schema is managed by embedded migrations.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/truthmatch/internal/monitoring"
)

// Store is a run registry backed by SQLite.
type Store struct {
	db  *sql.DB
	log monitoring.Logger
}

// Open opens or creates the registry at path and migrates it to the latest
// schema.
func Open(path string, log monitoring.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY between
	// the migration driver and inserts.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: monitoring.OrDefault(log)}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Run describes one invocation of the pipeline.
type Run struct {
	ID         uuid.UUID
	Name       string
	Version    string
	Searcher   string
	Validated  bool
	StartedAt  time.Time
	FinishedAt time.Time
	Regions    []Region
}

// Region is the outcome of one region within a run.
type Region struct {
	Tract      string
	InputPath  string
	ObjectPath string
	OutputPath string

	TruthRows  int
	Objects    int
	Unique     int
	Duplicates int
	Unmatched  int

	MeanSep   float64
	MedianSep float64
	P90Sep    float64
	MaxSep    float64

	Duration time.Duration
	Err      string
}

// Failed counts the regions with an error.
func (r *Run) Failed() int {
	n := 0
	for _, reg := range r.Regions {
		if reg.Err != "" {
			n++
		}
	}
	return n
}

// NewRun starts a run record with a fresh id.
func NewRun(name, version, searcher string, validated bool, started time.Time) *Run {
	return &Run{
		ID:        uuid.New(),
		Name:      name,
		Version:   version,
		Searcher:  searcher,
		Validated: validated,
		StartedAt: started,
	}
}

// Record stores a run and its regions in one transaction.
func (s *Store) Record(ctx context.Context, run *Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, name, version, searcher, validated, started_at, finished_at, regions, failed_regions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.Name, run.Version, run.Searcher, run.Validated,
		run.StartedAt.UTC(), run.FinishedAt.UTC(), len(run.Regions), run.Failed())
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO region_results (run_id, tract, input_path, object_path, output_path,
			truth_rows, objects, unique_matches, duplicates, unmatched,
			mean_sep, median_sep, p90_sep, max_sep, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare region insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range run.Regions {
		_, err := stmt.ExecContext(ctx, run.ID.String(), r.Tract, r.InputPath,
			nullString(r.ObjectPath), nullString(r.OutputPath),
			r.TruthRows, r.Objects, r.Unique, r.Duplicates, r.Unmatched,
			r.MeanSep, r.MedianSep, r.P90Sep, r.MaxSep, r.Duration.Milliseconds(), nullString(r.Err))
		if err != nil {
			return fmt.Errorf("insert region %s: %w", r.Tract, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Infof("recorded run %s with %d regions", run.ID, len(run.Regions))
	return nil
}

// Runs returns every recorded run, most recent first, with its regions.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, name, version, searcher, validated, started_at, finished_at
		FROM runs ORDER BY started_at DESC, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r  Run
			id string
		)
		if err := rows.Scan(&id, &r.Name, &r.Version, &r.Searcher, &r.Validated, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		if r.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		if runs[i].Regions, err = s.regions(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

func (s *Store) regions(ctx context.Context, id uuid.UUID) ([]Region, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tract, input_path, object_path, output_path, truth_rows, objects,
			unique_matches, duplicates, unmatched, mean_sep, median_sep, p90_sep, max_sep,
			duration_ms, error
		FROM region_results WHERE run_id = ? ORDER BY rowid`, id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Region
	for rows.Next() {
		var (
			r                     Region
			object, output, rerr  sql.NullString
			mean, med, p90, maxSp sql.NullFloat64
			ms                    int64
		)
		if err := rows.Scan(&r.Tract, &r.InputPath, &object, &output, &r.TruthRows, &r.Objects,
			&r.Unique, &r.Duplicates, &r.Unmatched, &mean, &med, &p90, &maxSp, &ms, &rerr); err != nil {
			return nil, err
		}
		r.ObjectPath, r.OutputPath, r.Err = object.String, output.String, rerr.String
		r.MeanSep, r.MedianSep, r.P90Sep, r.MaxSep = mean.Float64, med.Float64, p90.Float64, maxSp.Float64
		r.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
