package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"github.com/pagescribe/pagescribe/internal/common"
	"github.com/pagescribe/pagescribe/internal/vision"
)

// Config for the Gemini client.
type Config struct {
	APIKey      string
	Temperature float32
}

type Client struct {
	client *genai.Client
	cfg    Config
	log    *slog.Logger
}

// NewClient dials the Gemini API. Credentials are checked eagerly so a
// missing key surfaces as a fatal error before any page is dispatched.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, common.FatalConfigError("GEMINI_API_KEY is required", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, common.FatalConfigError("create gemini client", err)
	}
	return &Client{client: c, cfg: cfg, log: logger}, nil
}

// Transcribe implements vision.Client with inline image bytes. Model names
// may arrive in the OpenRouter form ("google/gemini-2.5-flash"); the vendor
// prefix is dropped here.
func (c *Client) Transcribe(ctx context.Context, req vision.Request) (vision.Result, error) {
	start := time.Now()
	model := strings.TrimPrefix(req.Model, "google/")

	img, mimeType, err := vision.ReadImage(req.ImagePath)
	if err != nil {
		return vision.Result{}, err
	}

	c.log.Info("vision.transcribe.start",
		"provider", "gemini",
		"model", model,
		"image", filepath.Base(req.ImagePath),
		"image_bytes", len(img),
		"mime", mimeType,
	)

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			{Text: req.Prompt},
			{InlineData: &genai.Blob{MIMEType: mimeType, Data: img}},
		},
	}}
	temp := c.cfg.Temperature
	config := &genai.GenerateContentConfig{Temperature: &temp}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	res, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		if ctx.Err() != nil {
			return vision.Result{}, ctx.Err()
		}
		classified := classify(err)
		c.log.Error("vision.transcribe.api_error",
			"model", model, "error", classified,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return vision.Result{}, classified
	}

	if res.PromptFeedback != nil && res.PromptFeedback.BlockReason != "" {
		return vision.Result{}, common.ContentRejectedError(
			fmt.Sprintf("prompt blocked: %s", res.PromptFeedback.BlockReason), nil)
	}
	if len(res.Candidates) == 0 {
		return vision.Result{}, common.MalformedOutputError("no candidates in gemini response", nil)
	}
	if res.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return vision.Result{}, common.ContentRejectedError("candidate blocked by safety filter", nil)
	}

	// Text() is empty for a blank page; that is a valid result.
	out := vision.Result{Text: res.Text()}
	if um := res.UsageMetadata; um != nil {
		out.Usage = vision.Usage{
			PromptTokens:     int(um.PromptTokenCount),
			CompletionTokens: int(um.CandidatesTokenCount),
			TotalTokens:      int(um.TotalTokenCount),
		}
	}

	c.log.Info("vision.transcribe.ok",
		"model", model,
		"output_bytes", len(out.Text),
		"total_tokens", out.Usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// classify maps Gemini API failures onto the retry taxonomy. Auth, quota
// setup, and bad-model errors recur for every page, so they abort the run;
// rate limits and server errors are worth another attempt.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429 || apiErr.Code == 408 || apiErr.Code >= 500:
			return common.TransientError(fmt.Sprintf("gemini status %d", apiErr.Code), err)
		case apiErr.Code == 400 || apiErr.Code == 401 || apiErr.Code == 403 || apiErr.Code == 404:
			return common.FatalConfigError(fmt.Sprintf("gemini status %d", apiErr.Code), err)
		}
	}
	return common.TransientError("gemini call failed", err)
}
