// Package pipeline runs the two-stage OCR flow for single pages and
// coordinates folder-wide batches: an initial transcription pass, then a
// refinement pass that corrects the first draft against the same image.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/pagescribe/pagescribe/constants"
	"github.com/pagescribe/pagescribe/internal/common"
	"github.com/pagescribe/pagescribe/internal/obs"
	"github.com/pagescribe/pagescribe/internal/pages"
	"github.com/pagescribe/pagescribe/internal/retry"
	"github.com/pagescribe/pagescribe/internal/store"
	"github.com/pagescribe/pagescribe/internal/vision"
)

// StageResult is one stage's output for one page. Produced once, never
// mutated afterwards.
type StageResult struct {
	Stage constants.Stage
	Text  string
	Err   error

	attempts int
}

// PageOutcome is the terminal record for one page in one run. Owned by the
// coordinator; everything else only reads it.
type PageOutcome struct {
	PageIndex int
	Stem      string
	Status    constants.PageStatus
	FinalText *string
	Degraded  bool
	Attempts  int
	Duration  time.Duration
	Err       string

	// cause keeps the classified error for run-disposition decisions inside
	// this package; the exported Err string is what reports carry.
	cause error
}

// TwoStage processes one page: resumption short-circuit, initial pass,
// refinement pass. It never writes to storage; it hands results back to the
// coordinator, which owns persistence.
type TwoStage struct {
	client      vision.Client
	store       store.Store
	sink        obs.Sink
	logger      *slog.Logger
	policy      retry.Policy
	provider    string
	ocrModel    string
	refineModel string
	force       bool
}

func (t *TwoStage) Process(ctx context.Context, p pages.Page) PageOutcome {
	start := time.Now()
	runID := common.RunIDFromContext(ctx)
	out := PageOutcome{PageIndex: p.Index, Stem: p.Stem}

	if !t.force {
		ok, err := t.store.Exists(p)
		if err != nil {
			out.Status = constants.PageStatusFailed
			out.Err = err.Error()
			out.cause = err
			out.Duration = time.Since(start)
			return out
		}
		if ok {
			t.logger.Info("page.skip", "run_id", runID, "page", p.Index, "artifact", t.store.Path(p))
			out.Status = constants.PageStatusSkipped
			out.Duration = time.Since(start)
			return out
		}
	}

	initial := t.runStage(ctx, p, constants.StageInitial, "")
	out.Attempts = initial.attempts
	if initial.Err != nil {
		out.Status = constants.PageStatusFailed
		out.Err = initial.Err.Error()
		out.cause = initial.Err
		out.Duration = time.Since(start)
		return out
	}

	refined := t.runStage(ctx, p, constants.StageRefined, initial.Text)
	out.Attempts += refined.attempts
	out.Duration = time.Since(start)
	if refined.Err != nil {
		// Degraded success: the first draft is usable, so the page completes
		// with the stage-1 text rather than failing outright.
		text := initial.Text
		out.Status = constants.PageStatusCompleted
		out.Degraded = true
		out.FinalText = &text
		out.Err = refined.Err.Error()
		out.cause = refined.Err
		return out
	}

	text := refined.Text
	out.Status = constants.PageStatusCompleted
	out.FinalText = &text
	return out
}

// runStage invokes the model through the retry policy and emits exactly one
// stage event regardless of outcome. The refinement stage embeds the first
// draft in its prompt; an empty draft is still a valid input.
func (t *TwoStage) runStage(ctx context.Context, p pages.Page, stage constants.Stage, draft string) StageResult {
	start := time.Now()

	var system, user, model string
	switch stage {
	case constants.StageInitial:
		system, user = vision.BuildTranscribePrompts()
		model = t.ocrModel
	default:
		system, user = vision.BuildRefinePrompts(draft)
		model = t.refineModel
	}
	t.logger.Debug("stage.start",
		"run_id", common.RunIDFromContext(ctx),
		"page", p.Index,
		"stage", string(stage),
		"model", model,
	)

	res, attempts, err := retry.Do(ctx, t.policy, t.logger, func(ctx context.Context) (vision.Result, error) {
		return t.client.Transcribe(ctx, vision.Request{
			Model:     model,
			System:    system,
			Prompt:    user,
			ImagePath: p.Path,
		})
	})

	text := vision.SanitizeTranscript(res.Text)
	t.sink.StageObserved(obs.StageEvent{
		RunID:       common.RunIDFromContext(ctx),
		PageIndex:   p.Index,
		Stage:       stage,
		Provider:    t.provider,
		Model:       model,
		Attempts:    attempts,
		Elapsed:     time.Since(start),
		PromptBytes: len(system) + len(user),
		OutputBytes: len(text),
		Usage:       res.Usage,
		Err:         err,
	})
	return StageResult{Stage: stage, Text: text, Err: err, attempts: attempts}
}
