// Package obs receives pipeline events: one StageEvent per model invocation
// outcome and one PageEvent per page disposition. Sinks see an append-only
// stream and must be safe for concurrent use across workers.
package obs

import (
	"log/slog"
	"sync"
	"time"

	"github.com/pagescribe/pagescribe/constants"
	"github.com/pagescribe/pagescribe/internal/vision"
)

// StageEvent records one stage's final result for one page, including the
// retries it consumed.
type StageEvent struct {
	RunID       string
	PageIndex   int
	Stage       constants.Stage
	Provider    string
	Model       string
	Attempts    int
	Elapsed     time.Duration
	PromptBytes int
	OutputBytes int
	Usage       vision.Usage
	Err         error
}

// PageEvent records the terminal disposition of one page.
type PageEvent struct {
	RunID     string
	PageIndex int
	Status    constants.PageStatus
	Degraded  bool
	Attempts  int
	Elapsed   time.Duration
	Err       string
}

// Sink receives pipeline events.
type Sink interface {
	StageObserved(ev StageEvent)
	PageObserved(ev PageEvent)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) StageObserved(StageEvent) {}
func (NopSink) PageObserved(PageEvent)   {}

// LogSink forwards events to a slog.Logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) StageObserved(ev StageEvent) {
	args := []any{
		"run_id", ev.RunID,
		"page", ev.PageIndex,
		"stage", string(ev.Stage),
		"provider", ev.Provider,
		"model", ev.Model,
		"attempts", ev.Attempts,
		"elapsed_ms", ev.Elapsed.Milliseconds(),
		"prompt_bytes", ev.PromptBytes,
		"output_bytes", ev.OutputBytes,
	}
	if ev.Usage.TotalTokens > 0 {
		args = append(args, "total_tokens", ev.Usage.TotalTokens)
	}
	if ev.Err != nil {
		args = append(args, "error", ev.Err.Error())
		s.Logger.Error("stage.fail", args...)
		return
	}
	s.Logger.Info("stage.ok", args...)
}

func (s LogSink) PageObserved(ev PageEvent) {
	args := []any{
		"run_id", ev.RunID,
		"page", ev.PageIndex,
		"status", string(ev.Status),
		"attempts", ev.Attempts,
		"elapsed_ms", ev.Elapsed.Milliseconds(),
	}
	if ev.Degraded {
		args = append(args, "degraded", true)
	}
	if ev.Err != "" {
		args = append(args, "error", ev.Err)
		s.Logger.Warn("page.done", args...)
		return
	}
	s.Logger.Info("page.done", args...)
}

// CollectorSink appends events under a mutex. Used by tests and anywhere the
// full event stream is needed after a run.
type CollectorSink struct {
	mu     sync.Mutex
	stages []StageEvent
	pages  []PageEvent
}

func (c *CollectorSink) StageObserved(ev StageEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stages = append(c.stages, ev)
}

func (c *CollectorSink) PageObserved(ev PageEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pages = append(c.pages, ev)
}

// Stages returns a copy of the recorded stage events.
func (c *CollectorSink) Stages() []StageEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]StageEvent, len(c.stages))
	copy(out, c.stages)
	return out
}

// Pages returns a copy of the recorded page events.
func (c *CollectorSink) Pages() []PageEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PageEvent, len(c.pages))
	copy(out, c.pages)
	return out
}

// Fanout forwards every event to each sink in order.
type Fanout []Sink

func (f Fanout) StageObserved(ev StageEvent) {
	for _, s := range f {
		s.StageObserved(ev)
	}
}

func (f Fanout) PageObserved(ev PageEvent) {
	for _, s := range f {
		s.PageObserved(ev)
	}
}
