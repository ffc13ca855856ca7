package common

import (
	"os"
	"strconv"
	"time"
)

// Provider names accepted by PAGESCRIBE_PROVIDER.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Default models for the two pipeline stages.
const (
	DefaultOCRModel    = "google/gemini-2.5-flash-lite"
	DefaultRefineModel = "google/gemini-2.5-flash"
)

// Config holds all application configuration
type Config struct {
	OCR    OCRConfig
	Run    RunConfig
	Ledger LedgerConfig
}

// OCRConfig holds model-provider configuration for both pipeline stages
type OCRConfig struct {
	Provider         string
	OCRModel         string
	RefineModel      string
	OpenRouterAPIKey string
	OpenRouterURL    string
	GeminiAPIKey     string
	Temperature      float32
	Timeout          time.Duration
}

// RunConfig holds batch-run configuration
type RunConfig struct {
	Concurrency int
	MaxAttempts int
	Force       bool
}

// LedgerConfig holds the optional run-manifest configuration
type LedgerConfig struct {
	DSN string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		OCR: OCRConfig{
			Provider:         getEnv("PAGESCRIBE_PROVIDER", ProviderOpenRouter),
			OCRModel:         getEnv("PAGESCRIBE_OCR_MODEL", DefaultOCRModel),
			RefineModel:      getEnv("PAGESCRIBE_REFINE_MODEL", DefaultRefineModel),
			OpenRouterAPIKey: getEnv("OPENROUTER_API_KEY", ""),
			OpenRouterURL:    getEnv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
			Temperature:      getEnvAsFloat32("PAGESCRIBE_TEMPERATURE", 0.0),
			Timeout:          getEnvAsDuration("PAGESCRIBE_LLM_TIMEOUT", 120*time.Second),
		},
		Run: RunConfig{
			Concurrency: getEnvAsInt("PAGESCRIBE_CONCURRENCY", 4),
			MaxAttempts: getEnvAsInt("PAGESCRIBE_RETRY_ATTEMPTS", 3),
			Force:       false,
		},
		Ledger: LedgerConfig{
			DSN: getEnv("PAGESCRIBE_LEDGER", ""),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat32(key string, defaultValue float32) float32 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 32); err == nil {
			return float32(floatVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate checks the loaded configuration before any page is dispatched.
// Credential and bounds problems are fatal for the whole run, so they are
// reported as KindFatalConfig rather than discovered lazily on first call.
func (c *Config) Validate() error {
	switch c.OCR.Provider {
	case ProviderOpenRouter:
		if c.OCR.OpenRouterAPIKey == "" {
			return FatalConfigError("OPENROUTER_API_KEY is required", nil)
		}
		if c.OCR.OpenRouterURL == "" {
			return FatalConfigError("OPENROUTER_BASE_URL is required", nil)
		}
	case ProviderGemini:
		if c.OCR.GeminiAPIKey == "" {
			return FatalConfigError("GEMINI_API_KEY is required", nil)
		}
	default:
		return FatalConfigError("unknown provider "+strconv.Quote(c.OCR.Provider), nil)
	}
	if c.OCR.OCRModel == "" || c.OCR.RefineModel == "" {
		return FatalConfigError("both stage models are required", nil)
	}
	if c.Run.Concurrency < 1 {
		return FatalConfigError("concurrency must be at least 1", nil)
	}
	if c.Run.MaxAttempts < 1 {
		return FatalConfigError("retry attempts must be at least 1", nil)
	}
	return nil
}
