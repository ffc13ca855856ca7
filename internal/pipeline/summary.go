package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pagescribe/pagescribe/constants"
)

// RunSummary aggregates one batch run. Outcomes are ordered by page index
// and the status counts always agree with them.
type RunSummary struct {
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
	Outcomes     []PageOutcome
}

// RunRecorder persists finished summaries. Recording failures degrade the
// run to a warning; they never change its disposition.
type RunRecorder interface {
	RecordRun(ctx context.Context, summary RunSummary) error
}

func (s *RunSummary) tally() {
	s.TotalPages = len(s.Outcomes)
	s.Completed, s.Failed, s.Skipped, s.Degraded = 0, 0, 0, 0
	for _, out := range s.Outcomes {
		switch out.Status {
		case constants.PageStatusCompleted:
			s.Completed++
			if out.Degraded {
				s.Degraded++
			}
		case constants.PageStatusFailed:
			s.Failed++
		case constants.PageStatusSkipped:
			s.Skipped++
		}
	}
}

// WriteText renders the operator-facing summary the run command prints.
func (s RunSummary) WriteText(w io.Writer) {
	fmt.Fprintf(w, "Processed %d pages in %s: %d completed (%d degraded), %d skipped, %d failed.\n",
		s.TotalPages, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond),
		s.Completed, s.Degraded, s.Skipped, s.Failed)
	for _, out := range s.Outcomes {
		switch {
		case out.Status == constants.PageStatusFailed:
			fmt.Fprintf(w, "  page %d (%s): FAILED: %s\n", out.PageIndex, out.Stem, out.Err)
		case out.Degraded:
			fmt.Fprintf(w, "  page %d (%s): completed with first-pass text only: %s\n", out.PageIndex, out.Stem, out.Err)
		}
	}
}
