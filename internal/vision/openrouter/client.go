package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pagescribe/pagescribe/internal/common"
	"github.com/pagescribe/pagescribe/internal/vision"
)

// Transcribe implements vision.Client over the OpenAI-compatible
// chat/completions endpoint, attaching the page image as a base64 data URL.
func (c *Client) Transcribe(ctx context.Context, req vision.Request) (vision.Result, error) {
	rid := uuid.New().String()
	start := time.Now()

	img, mimeType, err := vision.ReadImage(req.ImagePath)
	if err != nil {
		return vision.Result{}, err
	}

	c.log.Info("vision.transcribe.start",
		"req_id", rid,
		"model", req.Model,
		"image", filepath.Base(req.ImagePath),
		"image_bytes", len(img),
		"mime", mimeType,
	)

	body := map[string]any{
		"model":       req.Model,
		"temperature": c.cfg.Temperature,
		"messages": []map[string]any{
			{"role": "system", "content": req.System},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": req.Prompt},
				{"type": "image_url", "image_url": map[string]any{"url": vision.DataURL(img, mimeType)}},
			}},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		c.log.Error("vision.transcribe.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return vision.Result{}, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content *string `json:"content"`
				Refusal string  `json:"refusal"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Usage vision.Usage `json:"usage"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.log.Error("vision.transcribe.decode_error",
			"req_id", rid, "error", err, "raw_bytes", len(raw),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return vision.Result{}, common.MalformedOutputError("decode openrouter response", err)
	}
	if len(cc.Choices) == 0 {
		c.log.Error("vision.transcribe.no_choices",
			"req_id", rid, "raw", truncate(string(raw), 512),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return vision.Result{}, common.MalformedOutputError("no choices in openrouter response", nil)
	}

	choice := cc.Choices[0]
	if choice.Message.Refusal != "" || choice.FinishReason == "content_filter" {
		c.log.Warn("vision.transcribe.rejected",
			"req_id", rid, "finish_reason", choice.FinishReason,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return vision.Result{}, common.ContentRejectedError("model refused the image", nil)
	}
	// Absent content is a malformed response; present-but-empty content is a
	// valid transcription of a blank page.
	if choice.Message.Content == nil {
		return vision.Result{}, common.MalformedOutputError("missing message content", nil)
	}

	c.log.Info("vision.transcribe.ok",
		"req_id", rid,
		"model", req.Model,
		"output_bytes", len(*choice.Message.Content),
		"total_tokens", cc.Usage.TotalTokens,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return vision.Result{Text: *choice.Message.Content, Usage: cc.Usage}, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// transport errors and client timeouts are worth another attempt
		return nil, common.TransientError("openrouter request failed", err)
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.log.Warn("openrouter response body close error", "error", err)
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)

	if resp.StatusCode/100 == 2 {
		return buf.Bytes(), nil
	}
	return nil, classifyStatus(resp.StatusCode, buf.String())
}

// classifyStatus maps an OpenRouter error status onto the failure taxonomy.
// 403 is the moderation-flag status upstream, distinct from 401 auth
// failures; 400/402/404 recur for every page, so they abort the run.
func classifyStatus(status int, body string) error {
	msg := fmt.Sprintf("openrouter status %d: %s", status, truncate(body, 512))
	switch {
	case status == http.StatusUnauthorized,
		status == http.StatusBadRequest,
		status == http.StatusPaymentRequired,
		status == http.StatusNotFound:
		return common.FatalConfigError(msg, nil)
	case status == http.StatusForbidden:
		return common.ContentRejectedError(msg, nil)
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= 500:
		return common.TransientError(msg, nil)
	default:
		return common.TransientError(msg, nil)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
