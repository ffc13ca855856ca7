package openrouter

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/pagescribe/pagescribe/internal/common"
)

// Config for the OpenRouter client.
type Config struct {
	APIKey      string        // if empty, falls back to env OPENROUTER_API_KEY
	BaseURL     string        // default https://openrouter.ai/api/v1
	Temperature float32       // 0..2
	Timeout     time.Duration // http client timeout, bounds one model call
}

type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

// NewClient checks credentials eagerly so a bad configuration surfaces as a
// fatal error before any page is dispatched, not lazily on the first call.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, common.FatalConfigError("OPENROUTER_API_KEY is required", nil)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger,
	}, nil
}
