// Package provenance records pipeline runs and their persisted products in a
// local sqlite database, one row per run plus one per product and timed
// stage. Recording is optional: the orchestrator accepts a nil recorder.
package provenance

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"github.com/TrystanKoch/jwst/pkg/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	run_id         TEXT PRIMARY KEY,
	association    TEXT NOT NULL,
	status         TEXT NOT NULL,
	abort_reason   TEXT NOT NULL DEFAULT '',
	psf_members    INTEGER NOT NULL,
	target_members INTEGER NOT NULL,
	started_at     TEXT NOT NULL,
	finished_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_products (
	run_id       TEXT NOT NULL REFERENCES pipeline_runs(run_id),
	product_type TEXT NOT NULL,
	path         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_stages (
	run_id     TEXT NOT NULL REFERENCES pipeline_runs(run_id),
	stage      TEXT NOT NULL,
	elapsed_ns INTEGER NOT NULL
);
`

// Recorder persists run reports to sqlite. It implements
// pipeline.RunRecorder.
type Recorder struct {
	db *sql.DB
}

// Open creates or opens the provenance database at path and ensures the
// schema exists.
func Open(path string) (*Recorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open provenance database %s", path)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()

		return nil, errors.Wrap(err, "unable to create provenance schema")
	}

	return &Recorder{db: db}, nil
}

// Close closes the underlying database.
func (r *Recorder) Close() error {
	return errors.Wrap(r.db.Close(), "unable to close provenance database")
}

// RecordRun writes one run report and its products and stage timings in a
// single transaction.
func (r *Recorder) RecordRun(ctx context.Context, report *pipeline.RunReport) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "unable to begin provenance transaction")
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.ExecContext(ctx,
		`INSERT INTO pipeline_runs
		 (run_id, association, status, abort_reason, psf_members, target_members, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		report.ID,
		report.Association,
		string(report.Status),
		report.AbortReason,
		report.PSFCount,
		report.TargetCount,
		report.Started.UTC().Format(time.RFC3339Nano),
		report.Finished.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return errors.Wrap(err, "unable to insert run")
	}

	for _, product := range report.Products {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_products (run_id, product_type, path) VALUES (?, ?, ?)`,
			report.ID, product.Type, product.Path,
		)
		if err != nil {
			return errors.Wrap(err, "unable to insert run product")
		}
	}

	for _, stage := range report.Stages {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_stages (run_id, stage, elapsed_ns) VALUES (?, ?, ?)`,
			report.ID, stage.Name, stage.Elapsed.Nanoseconds(),
		)
		if err != nil {
			return errors.Wrap(err, "unable to insert run stage")
		}
	}

	return errors.Wrap(tx.Commit(), "unable to commit provenance transaction")
}

// Run is a stored run row.
type Run struct {
	ID          string
	Association string
	Status      string
	AbortReason string
	PSFCount    int
	TargetCount int
}

// Run returns the stored row for one run.
func (r *Recorder) Run(ctx context.Context, runID string) (*Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT run_id, association, status, abort_reason, psf_members, target_members
		 FROM pipeline_runs WHERE run_id = ?`, runID)

	run := &Run{}
	err := row.Scan(&run.ID, &run.Association, &run.Status, &run.AbortReason, &run.PSFCount, &run.TargetCount)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load run %s", runID)
	}

	return run, nil
}

// Products returns the recorded products of one run, in insertion order.
func (r *Recorder) Products(ctx context.Context, runID string) ([]pipeline.SavedProduct, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT product_type, path FROM run_products WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load products for run %s", runID)
	}
	defer rows.Close()

	var products []pipeline.SavedProduct
	for rows.Next() {
		var p pipeline.SavedProduct
		if err := rows.Scan(&p.Type, &p.Path); err != nil {
			return nil, errors.Wrap(err, "unable to scan product row")
		}
		products = append(products, p)
	}

	return products, errors.Wrap(rows.Err(), "unable to iterate product rows")
}
