// Package vision defines the capability the pipeline depends on: one page
// image and one prompt in, extracted text or a classified failure out.
package vision

import "context"

// Request is one model invocation for one page stage.
type Request struct {
	Model     string
	System    string
	Prompt    string
	ImagePath string
}

// Usage carries provider-reported token counts; zero when the provider
// does not report them.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is one call's transcription. Empty text is a valid result for a
// blank page and must not be confused with a rejected or malformed response.
type Result struct {
	Text  string
	Usage Usage
}

// Client is the interface the pipeline depends on. A call is a single atomic
// network/model interaction with no partial results; failures come back as
// classified errors (common.KindOf), never swallowed.
type Client interface {
	Transcribe(ctx context.Context, req Request) (Result, error)
}
