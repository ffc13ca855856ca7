// Package export renders run reports as XLSX workbooks.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pagescribe/pagescribe/constants"
	"github.com/pagescribe/pagescribe/internal/ledger"
)

// Service is a tiny façade over the run ledger that produces XLSX bytes.
type Service struct {
	runs   ledger.RunRepository
	logger *slog.Logger
}

func NewService(runs ledger.RunRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runs: runs, logger: logger}
}

// ExportRunXLSX returns a workbook (as bytes) for the given run. An empty
// runID exports the most recent run.
func (s *Service) ExportRunXLSX(ctx context.Context, runID string) ([]byte, error) {
	start := time.Now()

	var (
		rec *ledger.RunRecord
		err error
	)
	if runID == "" {
		rec, err = s.runs.LatestRun(ctx)
	} else {
		rec, err = s.runs.GetRun(ctx, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Pages"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		_, err := f.NewSheet(sheet)
		if err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Page",
		"File",
		"Status",
		"Degraded",
		"Attempts",
		"Duration (ms)",
		"Error",
		"Artifact Path",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, p := range rec.Outcomes {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		degraded := ""
		if p.Degraded {
			degraded = "yes"
		}
		artifact := ""
		if p.Status == constants.PageStatusCompleted || p.Status == constants.PageStatusSkipped {
			artifact = filepath.Join(rec.OutputFolder, p.Stem+constants.ArtifactExtension)
		}

		write(1, p.PageIndex)
		write(2, p.Stem)
		write(3, string(p.Status))
		write(4, degraded)
		write(5, p.Attempts)
		write(6, p.Elapsed.Milliseconds())
		write(7, truncate(p.Err, 140))
		write(8, artifact)

		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 8)  // page
	_ = f.SetColWidth(sheet, "B", "B", 24) // file
	_ = f.SetColWidth(sheet, "C", "D", 12) // status, degraded
	_ = f.SetColWidth(sheet, "E", "F", 14) // attempts, duration
	_ = f.SetColWidth(sheet, "G", "G", 48) // error
	_ = f.SetColWidth(sheet, "H", "H", 60) // artifact

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"run_id", rec.RunID,
		"rows", len(rec.Outcomes),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
