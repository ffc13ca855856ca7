package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pagescribe/pagescribe/internal/common"
	"github.com/pagescribe/pagescribe/internal/ledger"
	"github.com/pagescribe/pagescribe/internal/pages"
	"github.com/pagescribe/pagescribe/internal/store"
)

func statusCmd() *cobra.Command {
	var (
		outDir    string
		ledgerDSN string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "status [folder]",
		Short: "Show pending pages for a folder, or recent runs from the ledger",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			if len(args) == 1 {
				return folderStatus(cmd, args[0], outDir, logger)
			}

			dsn := ledgerDSN
			if dsn == "" {
				dsn = common.LoadConfig().Ledger.DSN
			}
			if dsn == "" {
				return errors.New("nothing to show: pass a folder to inspect, or --ledger / PAGESCRIBE_LEDGER for run history")
			}

			db, err := ledger.Open(cmd.Context(), dsn, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			recs, err := ledger.NewRunRepository(db, logger).ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(recs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tSTARTED\tPAGES\tCOMPLETED\tDEGRADED\tSKIPPED\tFAILED\tFOLDER")
			for _, rec := range recs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
					rec.RunID,
					rec.StartedAt.Format("2006-01-02 15:04:05"),
					rec.TotalPages, rec.Completed, rec.Degraded, rec.Skipped, rec.Failed,
					rec.Folder,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "artifact folder to check (default: <folder>/../llm_md)")
	cmd.Flags().StringVar(&ledgerDSN, "ledger", "", "run ledger: file path or postgres:// URL (default: PAGESCRIBE_LEDGER)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum runs to list")
	return cmd
}

// folderStatus reports artifact coverage for one source folder using the same
// discovery and existence checks the run command resumes with. No model calls,
// no ledger.
func folderStatus(cmd *cobra.Command, folder, outDir string, logger *slog.Logger) error {
	folder = filepath.Clean(folder)
	if outDir == "" {
		outDir = filepath.Join(filepath.Dir(folder), "llm_md")
	}

	pgs, _, err := pages.Discover(folder, logger)
	if err != nil {
		return err
	}

	// An absent output folder just means nothing is done yet; status must not
	// create it.
	var st store.Store
	if _, err := os.Stat(outDir); err == nil {
		ds, err := store.NewDirStore(outDir)
		if err != nil {
			return err
		}
		st = ds
	}

	done := 0
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PAGE\tFILE\tSTATE")
	for _, p := range pgs {
		state := "pending"
		if st != nil {
			switch ok, err := st.Exists(p); {
			case err != nil:
				state = "unknown"
			case ok:
				state = "done"
				done++
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", p.Index, p.Stem, state)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d of %d pages have artifacts in %s.\n", done, len(pgs), outDir)
	return nil
}
