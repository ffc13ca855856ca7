package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pagescribe/pagescribe/constants"
	"github.com/pagescribe/pagescribe/internal/pipeline"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestLedger(t *testing.T) (*DB, RunRepository) {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"), discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(db.Close)
	return db, NewRunRepository(db, discardLogger())
}

func sampleSummary(id string, started time.Time) pipeline.RunSummary {
	text := "page one text"
	return pipeline.RunSummary{
		RunID:        id,
		Folder:       "/scans/book",
		OutputFolder: "/scans/llm_md",
		TotalPages:   3,
		Completed:    2,
		Failed:       1,
		Skipped:      0,
		Degraded:     1,
		StartedAt:    started,
		FinishedAt:   started.Add(90 * time.Second),
		Outcomes: []pipeline.PageOutcome{
			{PageIndex: 1, Stem: "page_001", Status: constants.PageStatusCompleted, FinalText: &text, Attempts: 2, Duration: 1500 * time.Millisecond},
			{PageIndex: 2, Stem: "page_002", Status: constants.PageStatusCompleted, Degraded: true, Attempts: 3, Duration: 4 * time.Second, Err: "refine refused"},
			{PageIndex: 3, Stem: "page_003", Status: constants.PageStatusFailed, Attempts: 3, Duration: 9 * time.Second, Err: "rate limited"},
		},
	}
}

func TestRecordAndGetRun(t *testing.T) {
	_, repo := openTestLedger(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	if err := repo.RecordRun(ctx, sampleSummary("run-1", started)); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}

	rec, err := repo.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if rec.RunID != "run-1" || rec.Folder != "/scans/book" || rec.OutputFolder != "/scans/llm_md" {
		t.Errorf("run header = %+v", rec)
	}
	if rec.TotalPages != 3 || rec.Completed != 2 || rec.Failed != 1 || rec.Degraded != 1 {
		t.Errorf("counts = %d/%d/%d/%d", rec.TotalPages, rec.Completed, rec.Failed, rec.Degraded)
	}
	if !rec.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", rec.StartedAt, started)
	}
	if !rec.FinishedAt.Equal(started.Add(90 * time.Second)) {
		t.Errorf("finished_at = %v", rec.FinishedAt)
	}

	if len(rec.Outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(rec.Outcomes))
	}
	for i, out := range rec.Outcomes {
		if out.PageIndex != i+1 {
			t.Fatalf("outcome %d has page index %d, want ascending order", i, out.PageIndex)
		}
	}
	second := rec.Outcomes[1]
	if second.Status != constants.PageStatusCompleted || !second.Degraded || second.Err != "refine refused" {
		t.Errorf("page 2 = %+v", second)
	}
	if second.Elapsed != 4*time.Second || second.Attempts != 3 {
		t.Errorf("page 2 elapsed = %v attempts = %d", second.Elapsed, second.Attempts)
	}
	if rec.Outcomes[2].Status != constants.PageStatusFailed {
		t.Errorf("page 3 status = %s", rec.Outcomes[2].Status)
	}
}

func TestGetRunMissing(t *testing.T) {
	_, repo := openTestLedger(t)
	if _, err := repo.GetRun(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestLatestRunPicksNewest(t *testing.T) {
	_, repo := openTestLedger(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := repo.RecordRun(ctx, sampleSummary("run-old", started)); err != nil {
		t.Fatal(err)
	}
	if err := repo.RecordRun(ctx, sampleSummary("run-new", started.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}

	rec, err := repo.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if rec.RunID != "run-new" {
		t.Errorf("latest = %s, want run-new", rec.RunID)
	}
	if len(rec.Outcomes) != 3 {
		t.Errorf("latest outcomes = %d, want 3", len(rec.Outcomes))
	}
}

func TestLatestRunEmptyLedger(t *testing.T) {
	_, repo := openTestLedger(t)
	if _, err := repo.LatestRun(context.Background()); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListRunsNewestFirstWithLimit(t *testing.T) {
	_, repo := openTestLedger(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		s := sampleSummary(fmt.Sprintf("run-%d", i), started.Add(time.Duration(i)*time.Minute))
		if err := repo.RecordRun(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := repo.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("runs = %d, want 2", len(recs))
	}
	if recs[0].RunID != "run-2" || recs[1].RunID != "run-1" {
		t.Errorf("order = %s, %s, want newest first", recs[0].RunID, recs[1].RunID)
	}
	if len(recs[0].Outcomes) != 0 {
		t.Error("list should not load page outcomes")
	}
}

func TestOpenCreatesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "runs.db")

	db, err := Open(context.Background(), path, discardLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("parent directory not created: %v", err)
	}
	if err := db.Ping(context.Background(), time.Second); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestRebind(t *testing.T) {
	sqlite := &DB{}
	if got := sqlite.rebind("SELECT ? WHERE x = ?"); got != "SELECT ? WHERE x = ?" {
		t.Errorf("sqlite rebind changed the query: %q", got)
	}
	pg := &DB{postgres: true}
	if got := pg.rebind("INSERT INTO t VALUES (?, ?, ?)"); got != "INSERT INTO t VALUES ($1, $2, $3)" {
		t.Errorf("postgres rebind = %q", got)
	}
}
