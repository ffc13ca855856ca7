package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pagescribe/pagescribe/constants"
	"github.com/pagescribe/pagescribe/internal/common"
	"github.com/pagescribe/pagescribe/internal/obs"
	"github.com/pagescribe/pagescribe/internal/pages"
	"github.com/pagescribe/pagescribe/internal/retry"
	"github.com/pagescribe/pagescribe/internal/store"
	"github.com/pagescribe/pagescribe/internal/vision"
)

const defaultConcurrency = 4

// Coordinator fans a discovered folder out over a bounded worker pool and
// assembles the run summary. It owns all artifact writes: the per-page
// processor only produces text.
type Coordinator struct {
	proc        *TwoStage
	store       store.Store
	sink        obs.Sink
	logger      *slog.Logger
	recorder    RunRecorder
	concurrency int
	outFolder   string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConcurrency bounds the number of pages processed at once.
func WithConcurrency(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithForce disables resumption: every page is reprocessed even when its
// artifact already exists.
func WithForce(force bool) Option {
	return func(c *Coordinator) {
		c.proc.force = force
	}
}

// WithRetryPolicy replaces the default per-stage retry policy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Coordinator) {
		c.proc.policy = p
	}
}

// WithSink routes stage and page events to s.
func WithSink(s obs.Sink) Option {
	return func(c *Coordinator) {
		if s != nil {
			c.sink = s
			c.proc.sink = s
		}
	}
}

// WithModels sets the model identifiers for the two stages.
func WithModels(ocrModel, refineModel string) Option {
	return func(c *Coordinator) {
		if ocrModel != "" {
			c.proc.ocrModel = ocrModel
		}
		if refineModel != "" {
			c.proc.refineModel = refineModel
		}
	}
}

// WithProvider labels stage events with the backing provider name.
func WithProvider(name string) Option {
	return func(c *Coordinator) {
		c.proc.provider = name
	}
}

// WithRecorder persists finished summaries to a run ledger.
func WithRecorder(r RunRecorder) Option {
	return func(c *Coordinator) {
		c.recorder = r
	}
}

// WithOutputFolder labels the summary with the artifact directory.
func WithOutputFolder(dir string) Option {
	return func(c *Coordinator) {
		c.outFolder = dir
	}
}

func NewCoordinator(client vision.Client, st store.Store, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		store:       st,
		sink:        obs.NopSink{},
		logger:      logger,
		concurrency: defaultConcurrency,
		proc: &TwoStage{
			client:      client,
			store:       st,
			sink:        obs.NopSink{},
			logger:      logger,
			policy:      retry.DefaultPolicy(),
			provider:    common.ProviderOpenRouter,
			ocrModel:    common.DefaultOCRModel,
			refineModel: common.DefaultRefineModel,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run processes every eligible page under folder and returns the summary.
// The error is non-nil only for run-level failures: an empty source, a
// fatal configuration error surfaced by a provider, or caller cancellation.
// Per-page failures are carried inside the summary instead.
func (c *Coordinator) Run(ctx context.Context, folder string) (RunSummary, error) {
	runID := uuid.New().String()
	ctx = common.WithRunID(ctx, runID)
	started := time.Now()

	summary := RunSummary{
		RunID:        runID,
		Folder:       folder,
		OutputFolder: c.outFolder,
		StartedAt:    started,
	}

	pgs, stats, err := pages.Discover(folder, c.logger)
	if err != nil {
		summary.FinishedAt = time.Now()
		return summary, err
	}

	c.logger.Info("run.start",
		"run_id", runID,
		"folder", folder,
		"pages", len(pgs),
		"scanned", stats.Scanned,
		"concurrency", c.concurrency,
		"force", c.proc.force,
	)

	outcomes := make([]PageOutcome, len(pgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, p := range pgs {
		g.Go(func() error {
			if gctx.Err() != nil {
				outcomes[i] = c.abortedOutcome(ctx, p)
				return nil
			}
			out := c.proc.Process(common.WithPageIndex(gctx, p.Index), p)
			out = c.persist(p, out)
			outcomes[i] = out
			c.sink.PageObserved(obs.PageEvent{
				RunID:     runID,
				PageIndex: out.PageIndex,
				Status:    out.Status,
				Degraded:  out.Degraded,
				Attempts:  out.Attempts,
				Elapsed:   out.Duration,
				Err:       out.Err,
			})
			if common.IsFatal(out.cause) {
				return out.cause
			}
			return nil
		})
	}
	fatal := g.Wait()

	summary.Outcomes = outcomes
	summary.FinishedAt = time.Now()
	summary.tally()

	c.logger.Info("run.done",
		"run_id", runID,
		"pages", summary.TotalPages,
		"completed", summary.Completed,
		"degraded", summary.Degraded,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"elapsed_ms", summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	)

	c.record(ctx, summary)

	if fatal != nil {
		return summary, fatal
	}
	return summary, ctx.Err()
}

// persist writes a completed page's text, retrying the write once. A second
// failure downgrades the page to failed; the model output is dropped rather
// than reported as durable.
func (c *Coordinator) persist(p pages.Page, out PageOutcome) PageOutcome {
	if out.FinalText == nil {
		return out
	}
	err := c.store.Write(p, *out.FinalText)
	if err != nil {
		c.logger.Warn("store.write.retry", "page", p.Index, "error", err)
		err = c.store.Write(p, *out.FinalText)
	}
	if err != nil {
		c.logger.Error("store.write.failed", "page", p.Index, "artifact", c.store.Path(p), "error", err)
		werr := common.StoreWriteError("artifact write failed", err)
		out.Status = constants.PageStatusFailed
		out.FinalText = nil
		out.Degraded = false
		out.Err = werr.Error()
		out.cause = werr
		return out
	}
	c.logger.Info("store.write.ok", "page", p.Index, "artifact", c.store.Path(p), "bytes", len(*out.FinalText))
	return out
}

// abortedOutcome marks a page that was never dispatched because the run was
// cancelled first. It consumed no attempts and produced no artifact.
func (c *Coordinator) abortedOutcome(ctx context.Context, p pages.Page) PageOutcome {
	out := PageOutcome{
		PageIndex: p.Index,
		Stem:      p.Stem,
		Status:    constants.PageStatusFailed,
		Err:       "run aborted before page was processed",
	}
	c.sink.PageObserved(obs.PageEvent{
		RunID:     common.RunIDFromContext(ctx),
		PageIndex: p.Index,
		Status:    out.Status,
		Err:       out.Err,
	})
	return out
}

func (c *Coordinator) record(ctx context.Context, summary RunSummary) {
	if c.recorder == nil {
		return
	}
	// The worker context may already be cancelled; give the ledger its own
	// short deadline so a fatal run still gets recorded.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := c.recorder.RecordRun(rctx, summary); err != nil {
		c.logger.Warn("ledger.record_failed", "run_id", summary.RunID, "error", err)
	}
}
