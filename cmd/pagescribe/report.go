package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pagescribe/pagescribe/internal/common"
	"github.com/pagescribe/pagescribe/internal/export"
	"github.com/pagescribe/pagescribe/internal/ledger"
)

func reportCmd() *cobra.Command {
	var (
		ledgerDSN string
		runID     string
		xlsxPath  string
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export a run report as an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			dsn := ledgerDSN
			if dsn == "" {
				dsn = common.LoadConfig().Ledger.DSN
			}
			if dsn == "" {
				return errors.New("no ledger configured: pass --ledger or set PAGESCRIBE_LEDGER")
			}

			db, err := ledger.Open(cmd.Context(), dsn, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			svc := export.NewService(ledger.NewRunRepository(db, logger), logger)
			b, err := svc.ExportRunXLSX(cmd.Context(), runID)
			if errors.Is(err, ledger.ErrNotFound) {
				return errors.New("no matching run in the ledger")
			}
			if err != nil {
				return err
			}

			if err := os.WriteFile(xlsxPath, b, 0o644); err != nil {
				return fmt.Errorf("writing report: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", xlsxPath, len(b))
			return nil
		},
	}

	cmd.Flags().StringVar(&ledgerDSN, "ledger", "", "run ledger: file path or postgres:// URL (default: PAGESCRIBE_LEDGER)")
	cmd.Flags().StringVar(&runID, "run", "", "run id to export (default: most recent run)")
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "run-report.xlsx", "output workbook path")
	return cmd
}
