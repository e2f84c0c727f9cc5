package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-processor/internal/metrics"
)

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process every unprocessed message in the mailbox once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rec := metrics.NewRecorder()
			orch, src, err := a.orchestrator(ctx, rec)
			if err != nil {
				return err
			}
			defer func() {
				if err := src.Close(); err != nil {
					a.logger.Warn("mailbox.close.failed", "error", err)
				}
			}()

			report, runErr := orch.Run(ctx)

			if err := rec.WriteTextfile(a.cfg.Run.MetricsFile); err != nil {
				a.logger.Error("metrics.write.failed", "path", a.cfg.Run.MetricsFile, "error", err)
			}
			if runErr != nil {
				return runErr
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run %s: fetched=%d processed=%d skipped=%d failed=%d\n",
				report.RunID, report.Fetched, report.Processed, report.Skipped, report.Failed)
			for _, oc := range report.Outcomes {
				line := fmt.Sprintf("  %-9s %-18s %s", oc.Kind, oc.State, oc.MessageID)
				if oc.Document != "" {
					line += " " + oc.Document
				}
				if oc.Reason != "" {
					line += ": " + oc.Reason
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
}
