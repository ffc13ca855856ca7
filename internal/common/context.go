package common

import (
	"context"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyRunID     contextKey = "run_id"
	ContextKeyPageIndex contextKey = "page_index"
)

// WithRunID adds a run ID to the context
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ContextKeyRunID, runID)
}

// RunIDFromContext extracts the run ID from context
func RunIDFromContext(ctx context.Context) string {
	if runID, ok := ctx.Value(ContextKeyRunID).(string); ok {
		return runID
	}
	return ""
}

// WithPageIndex adds a page index to the context
func WithPageIndex(ctx context.Context, index int) context.Context {
	return context.WithValue(ctx, ContextKeyPageIndex, index)
}

// PageIndexFromContext extracts the page index from context, -1 when absent
func PageIndexFromContext(ctx context.Context) int {
	if index, ok := ctx.Value(ContextKeyPageIndex).(int); ok {
		return index
	}
	return -1
}
