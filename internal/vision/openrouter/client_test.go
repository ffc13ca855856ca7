package openrouter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pagescribe/pagescribe/internal/common"
	"github.com/pagescribe/pagescribe/internal/vision"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page_0001.png")
	if err := os.WriteFile(path, []byte("not-a-real-png"), 0o644); err != nil {
		t.Fatalf("write test image: %v", err)
	}
	return path
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL, Timeout: 5 * time.Second}, testLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func completion(content string) string {
	quoted, _ := json.Marshal(content)
	return `{"choices":[{"message":{"content":` + string(quoted) + `},"finish_reason":"stop"}],` +
		`"usage":{"prompt_tokens":120,"completion_tokens":45,"total_tokens":165}}`
}

func TestTranscribeSendsVisionPayload(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	var auth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion("# Page 1")))
	})

	res, err := c.Transcribe(context.Background(), vision.Request{
		Model:     "google/gemini-2.5-flash-lite",
		System:    "You are an OCR assistant.",
		Prompt:    "Extract all text:",
		ImagePath: testImage(t),
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "# Page 1" {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Usage.TotalTokens != 165 {
		t.Errorf("TotalTokens = %d, want 165", res.Usage.TotalTokens)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", auth)
	}
	if got.Model != "google/gemini-2.5-flash-lite" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Role != "user" {
		t.Fatalf("unexpected message shape: %+v", got.Messages)
	}
	if !strings.Contains(string(got.Messages[1].Content), "data:image/png;base64,") {
		t.Errorf("user message lacks image data URL: %s", got.Messages[1].Content)
	}
}

func TestTranscribeEmptyContentIsValid(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(completion("")))
	})
	res, err := c.Transcribe(context.Background(), vision.Request{Model: "m", ImagePath: testImage(t)})
	if err != nil {
		t.Fatalf("empty content must be a valid blank-page result, got %v", err)
	}
	if res.Text != "" {
		t.Errorf("Text = %q, want empty", res.Text)
	}
}

func TestTranscribeStatusClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   common.Kind
	}{
		{"rate limited", http.StatusTooManyRequests, common.KindTransient},
		{"server error", http.StatusInternalServerError, common.KindTransient},
		{"gateway timeout", http.StatusGatewayTimeout, common.KindTransient},
		{"bad key", http.StatusUnauthorized, common.KindFatalConfig},
		{"bad model", http.StatusBadRequest, common.KindFatalConfig},
		{"out of credits", http.StatusPaymentRequired, common.KindFatalConfig},
		{"moderation flag", http.StatusForbidden, common.KindContentRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, `{"error":{"message":"nope"}}`, tc.status)
			})
			_, err := c.Transcribe(context.Background(), vision.Request{Model: "m", ImagePath: testImage(t)})
			if err == nil {
				t.Fatal("Transcribe should fail")
			}
			if got := common.KindOf(err); got != tc.want {
				t.Errorf("KindOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTranscribeMalformedResponses(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"not json", "<html>gateway</html>"},
		{"no choices", `{"choices":[]}`},
		{"null content", `{"choices":[{"message":{"content":null},"finish_reason":"stop"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tc.body))
			})
			_, err := c.Transcribe(context.Background(), vision.Request{Model: "m", ImagePath: testImage(t)})
			if got := common.KindOf(err); got != common.KindMalformedOutput {
				t.Errorf("KindOf = %q, want %q (err=%v)", got, common.KindMalformedOutput, err)
			}
		})
	}
}

func TestTranscribeContentFilterIsRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":""},"finish_reason":"content_filter"}]}`))
	})
	_, err := c.Transcribe(context.Background(), vision.Request{Model: "m", ImagePath: testImage(t)})
	if got := common.KindOf(err); got != common.KindContentRejected {
		t.Errorf("KindOf = %q, want %q", got, common.KindContentRejected)
	}
}

func TestTranscribeMissingImageFailsWithoutRetryClass(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made when the image is unreadable")
	})
	_, err := c.Transcribe(context.Background(), vision.Request{Model: "m", ImagePath: filepath.Join(t.TempDir(), "absent.png")})
	if err == nil {
		t.Fatal("Transcribe should fail")
	}
	if got := common.KindOf(err); got != "" {
		t.Errorf("KindOf = %q, want unclassified", got)
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	_, err := NewClient(Config{}, testLogger())
	if got := common.KindOf(err); got != common.KindFatalConfig {
		t.Fatalf("KindOf = %q, want %q", got, common.KindFatalConfig)
	}
}

func TestTranscribeHonorsContextCancellation(t *testing.T) {
	started := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server arms its client-disconnect watcher;
		// otherwise r.Context() is never cancelled and Cleanup deadlocks.
		_, _ = io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err := c.Transcribe(ctx, vision.Request{Model: "m", ImagePath: testImage(t)})
	if err == nil {
		t.Fatal("Transcribe should fail after cancellation")
	}
	if common.KindOf(err) == common.KindTransient {
		t.Error("caller cancellation must not be classified transient")
	}
}
