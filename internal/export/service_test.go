package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pagescribe/pagescribe/constants"
	"github.com/pagescribe/pagescribe/internal/ledger"
	"github.com/pagescribe/pagescribe/internal/pipeline"
)

type fakeRuns struct {
	latest  *ledger.RunRecord
	byID    map[string]*ledger.RunRecord
	gotID   string
	listErr error
}

func (f *fakeRuns) RecordRun(context.Context, pipeline.RunSummary) error { return nil }

func (f *fakeRuns) GetRun(_ context.Context, runID string) (*ledger.RunRecord, error) {
	f.gotID = runID
	rec, ok := f.byID[runID]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return rec, nil
}

func (f *fakeRuns) LatestRun(context.Context) (*ledger.RunRecord, error) {
	if f.latest == nil {
		return nil, ledger.ErrNotFound
	}
	return f.latest, nil
}

func (f *fakeRuns) ListRuns(context.Context, int) ([]ledger.RunRecord, error) {
	return nil, f.listErr
}

func sampleRecord() *ledger.RunRecord {
	return &ledger.RunRecord{
		RunID:        "run-7",
		Folder:       "/scans/book",
		OutputFolder: "/scans/llm_md",
		TotalPages:   3,
		Completed:    2,
		Failed:       1,
		Degraded:     1,
		StartedAt:    time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		FinishedAt:   time.Date(2026, 3, 1, 9, 2, 0, 0, time.UTC),
		Outcomes: []ledger.PageRecord{
			{PageIndex: 1, Stem: "page_001", Status: constants.PageStatusCompleted, Attempts: 2, Elapsed: 1500 * time.Millisecond},
			{PageIndex: 2, Stem: "page_002", Status: constants.PageStatusCompleted, Degraded: true, Attempts: 3, Elapsed: 4 * time.Second, Err: "refine refused"},
			{PageIndex: 3, Stem: "page_003", Status: constants.PageStatusFailed, Attempts: 3, Elapsed: 9 * time.Second, Err: "rate limited"},
		},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestExportRunXLSXLatest(t *testing.T) {
	svc := NewService(&fakeRuns{latest: sampleRecord()}, testLogger())

	b, err := svc.ExportRunXLSX(context.Background(), "")
	if err != nil {
		t.Fatalf("ExportRunXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("workbook does not open: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Pages")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("rows = %d, want header plus 3 pages", len(rows))
	}
	if rows[0][0] != "Page" || rows[0][2] != "Status" || rows[0][7] != "Artifact Path" {
		t.Errorf("header row = %v", rows[0])
	}

	first := rows[1]
	if first[0] != "1" || first[1] != "page_001" || first[2] != string(constants.PageStatusCompleted) {
		t.Errorf("page 1 row = %v", first)
	}
	if first[7] != "/scans/llm_md/page_001.md" {
		t.Errorf("page 1 artifact = %q", first[7])
	}

	second := rows[2]
	if second[3] != "yes" {
		t.Errorf("page 2 degraded cell = %q, want yes", second[3])
	}
	if second[6] != "refine refused" {
		t.Errorf("page 2 error cell = %q", second[6])
	}

	third := rows[3]
	if third[2] != string(constants.PageStatusFailed) {
		t.Errorf("page 3 status cell = %q", third[2])
	}
	if len(third) > 7 && third[7] != "" {
		t.Errorf("failed page should have no artifact path, got %q", third[7])
	}
}

func TestExportRunXLSXByID(t *testing.T) {
	rec := sampleRecord()
	runs := &fakeRuns{byID: map[string]*ledger.RunRecord{"run-7": rec}}
	svc := NewService(runs, testLogger())

	if _, err := svc.ExportRunXLSX(context.Background(), "run-7"); err != nil {
		t.Fatalf("ExportRunXLSX: %v", err)
	}
	if runs.gotID != "run-7" {
		t.Errorf("queried run id = %q", runs.gotID)
	}
}

func TestExportRunXLSXNotFound(t *testing.T) {
	svc := NewService(&fakeRuns{byID: map[string]*ledger.RunRecord{}}, testLogger())

	_, err := svc.ExportRunXLSX(context.Background(), "missing")
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
