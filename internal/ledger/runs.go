package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagescribe/pagescribe/constants"
	"github.com/pagescribe/pagescribe/internal/pipeline"
)

// ErrNotFound reports a run id the ledger has no row for.
var ErrNotFound = errors.New("ledger: run not found")

// RunRecord is a run as read back from the ledger. Artifact text is not
// stored; the output folder holds it.
type RunRecord struct {
	RunID        string
	Folder       string
	OutputFolder string
	TotalPages   int
	Completed    int
	Failed       int
	Skipped      int
	Degraded     int
	StartedAt    time.Time
	FinishedAt   time.Time
	Outcomes     []PageRecord
}

// PageRecord is one page's stored outcome.
type PageRecord struct {
	PageIndex int
	Stem      string
	Status    constants.PageStatus
	Degraded  bool
	Attempts  int
	Elapsed   time.Duration
	Err       string
}

type RunRepository interface {
	// RecordRun stores a finished summary with all its page outcomes.
	RecordRun(ctx context.Context, summary pipeline.RunSummary) error

	// GetRun loads one run with its outcomes ordered by page index.
	GetRun(ctx context.Context, runID string) (*RunRecord, error)

	// LatestRun loads the most recently started run.
	LatestRun(ctx context.Context) (*RunRecord, error)

	// ListRuns returns up to limit run headers, newest first, without
	// their page outcomes.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)
}

type runRepo struct {
	db  *DB
	log *slog.Logger
}

func NewRunRepository(db *DB, log *slog.Logger) RunRepository {
	return &runRepo{db: db, log: log}
}

func (r *runRepo) RecordRun(ctx context.Context, s pipeline.RunSummary) error {
	tx, err := r.db.sql.BeginTx(ctx, nil)
	if err != nil {
		r.log.Error("ledger.record failed", "run_id", s.RunID, "err", err)
		return fmt.Errorf("beginning ledger transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, r.db.rebind(
		`INSERT INTO runs (id, folder, output_folder, total_pages, completed, failed, skipped, degraded, started_at_ms, finished_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		s.RunID, s.Folder, s.OutputFolder, s.TotalPages, s.Completed, s.Failed, s.Skipped, s.Degraded,
		s.StartedAt.UnixMilli(), s.FinishedAt.UnixMilli())
	if err != nil {
		r.log.Error("ledger.record failed", "run_id", s.RunID, "err", err)
		return fmt.Errorf("inserting run: %w", err)
	}

	for _, out := range s.Outcomes {
		_, err = tx.ExecContext(ctx, r.db.rebind(
			`INSERT INTO page_outcomes (run_id, page_index, stem, status, degraded, attempts, elapsed_ms, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			s.RunID, out.PageIndex, out.Stem, string(out.Status), boolToInt(out.Degraded),
			out.Attempts, out.Duration.Milliseconds(), out.Err)
		if err != nil {
			r.log.Error("ledger.record failed", "run_id", s.RunID, "page", out.PageIndex, "err", err)
			return fmt.Errorf("inserting outcome for page %d: %w", out.PageIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		r.log.Error("ledger.record failed", "run_id", s.RunID, "err", err)
		return fmt.Errorf("committing run: %w", err)
	}
	r.log.Info("ledger.run recorded", "run_id", s.RunID, "pages", s.TotalPages)
	return nil
}

func (r *runRepo) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	rec, err := r.scanRun(r.db.sql.QueryRowContext(ctx, r.db.rebind(
		`SELECT id, folder, output_folder, total_pages, completed, failed, skipped, degraded, started_at_ms, finished_at_ms
		 FROM runs WHERE id = ?`), runID))
	if err != nil {
		return nil, err
	}

	rows, err := r.db.sql.QueryContext(ctx, r.db.rebind(
		`SELECT page_index, stem, status, degraded, attempts, elapsed_ms, error
		 FROM page_outcomes WHERE run_id = ? ORDER BY page_index`), runID)
	if err != nil {
		return nil, fmt.Errorf("loading outcomes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			p         PageRecord
			status    string
			degraded  int
			elapsedMS int64
		)
		if err := rows.Scan(&p.PageIndex, &p.Stem, &status, &degraded, &p.Attempts, &elapsedMS, &p.Err); err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		p.Status = constants.PageStatus(status)
		p.Degraded = degraded != 0
		p.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		rec.Outcomes = append(rec.Outcomes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading outcomes: %w", err)
	}
	return rec, nil
}

func (r *runRepo) LatestRun(ctx context.Context) (*RunRecord, error) {
	var id string
	err := r.db.sql.QueryRowContext(ctx,
		`SELECT id FROM runs ORDER BY started_at_ms DESC, id LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding latest run: %w", err)
	}
	return r.GetRun(ctx, id)
}

func (r *runRepo) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.sql.QueryContext(ctx, r.db.rebind(
		`SELECT id, folder, output_folder, total_pages, completed, failed, skipped, degraded, started_at_ms, finished_at_ms
		 FROM runs ORDER BY started_at_ms DESC, id LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		rec, err := r.scanRun(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return recs, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (r *runRepo) scanRun(row scanner) (*RunRecord, error) {
	var (
		rec                   RunRecord
		startedMS, finishedMS int64
	)
	err := row.Scan(&rec.RunID, &rec.Folder, &rec.OutputFolder, &rec.TotalPages,
		&rec.Completed, &rec.Failed, &rec.Skipped, &rec.Degraded, &startedMS, &finishedMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	rec.StartedAt = time.UnixMilli(startedMS).UTC()
	rec.FinishedAt = time.UnixMilli(finishedMS).UTC()
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
