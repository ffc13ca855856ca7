package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pagescribe/pagescribe/internal/common"
	"github.com/pagescribe/pagescribe/internal/ledger"
	"github.com/pagescribe/pagescribe/internal/obs"
	"github.com/pagescribe/pagescribe/internal/pipeline"
	"github.com/pagescribe/pagescribe/internal/retry"
	"github.com/pagescribe/pagescribe/internal/store"
	"github.com/pagescribe/pagescribe/internal/vision"
	"github.com/pagescribe/pagescribe/internal/vision/gemini"
	"github.com/pagescribe/pagescribe/internal/vision/openrouter"
)

func runCmd() *cobra.Command {
	var (
		outDir      string
		concurrency int
		force       bool
		provider    string
		ledgerDSN   string
	)

	cmd := &cobra.Command{
		Use:   "run <folder>",
		Short: "Transcribe every page image in a folder to Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			cfg := common.LoadConfig()
			if provider != "" {
				cfg.OCR.Provider = provider
			}
			if concurrency > 0 {
				cfg.Run.Concurrency = concurrency
			}
			cfg.Run.Force = force
			if ledgerDSN != "" {
				cfg.Ledger.DSN = ledgerDSN
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			folder := filepath.Clean(args[0])
			if outDir == "" {
				outDir = filepath.Join(filepath.Dir(folder), "llm_md")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := store.NewDirStore(outDir)
			if err != nil {
				return err
			}

			client, err := newVisionClient(cmd, cfg, logger)
			if err != nil {
				return err
			}

			opts := []pipeline.Option{
				pipeline.WithConcurrency(cfg.Run.Concurrency),
				pipeline.WithForce(cfg.Run.Force),
				pipeline.WithRetryPolicy(retry.Policy{
					MaxAttempts: cfg.Run.MaxAttempts,
					BaseDelay:   500 * time.Millisecond,
					MaxDelay:    30 * time.Second,
				}),
				pipeline.WithSink(obs.LogSink{Logger: logger}),
				pipeline.WithModels(cfg.OCR.OCRModel, cfg.OCR.RefineModel),
				pipeline.WithProvider(cfg.OCR.Provider),
				pipeline.WithOutputFolder(outDir),
			}

			if dsn := resolveLedgerDSN(cfg.Ledger.DSN, outDir); dsn != "" {
				db, err := ledger.Open(ctx, dsn, logger)
				if err != nil {
					logger.Warn("ledger unavailable, run will not be recorded", "error", err)
				} else {
					defer db.Close()
					opts = append(opts, pipeline.WithRecorder(ledger.NewRunRepository(db, logger)))
				}
			}

			coord := pipeline.NewCoordinator(client, st, logger, opts...)
			summary, err := coord.Run(ctx, folder)
			if summary.TotalPages > 0 || err == nil {
				summary.WriteText(cmd.OutOrStdout())
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output folder for Markdown artifacts (default: <folder>/../llm_md)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "pages processed in parallel (default: PAGESCRIBE_CONCURRENCY or 4)")
	cmd.Flags().BoolVar(&force, "force", false, "reprocess pages whose artifacts already exist")
	cmd.Flags().StringVar(&provider, "provider", "", "vision provider: openrouter|gemini (default: PAGESCRIBE_PROVIDER or openrouter)")
	cmd.Flags().StringVar(&ledgerDSN, "ledger", "", "run ledger: file path, postgres:// URL, or 'off' (default: <out>/.runs.db)")
	return cmd
}

func newVisionClient(cmd *cobra.Command, cfg *common.Config, logger *slog.Logger) (vision.Client, error) {
	switch cfg.OCR.Provider {
	case common.ProviderGemini:
		return gemini.NewClient(cmd.Context(), gemini.Config{
			APIKey:      cfg.OCR.GeminiAPIKey,
			Temperature: cfg.OCR.Temperature,
		}, logger)
	case common.ProviderOpenRouter:
		return openrouter.NewClient(openrouter.Config{
			APIKey:      cfg.OCR.OpenRouterAPIKey,
			BaseURL:     cfg.OCR.OpenRouterURL,
			Temperature: cfg.OCR.Temperature,
			Timeout:     cfg.OCR.Timeout,
		}, logger)
	default:
		return nil, common.FatalConfigError(fmt.Sprintf("unknown provider %q", cfg.OCR.Provider), nil)
	}
}

// resolveLedgerDSN applies the default ledger location next to the
// artifacts. "off" disables recording entirely.
func resolveLedgerDSN(dsn, outDir string) string {
	switch dsn {
	case "off", "none":
		return ""
	case "":
		return filepath.Join(outDir, ".runs.db")
	default:
		return dsn
	}
}
