package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/invoice-processor/internal/common"
)

// flags override the matching environment settings when set.
type flags struct {
	envFile     string
	workers     int
	logLevel    string
	logFormat   string
	metricsFile string
	source      string
}

type app struct {
	flags  flags
	cfg    *common.Config
	logger *slog.Logger
}

func main() {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "invoice-processor",
		Short:         "File invoice emails: extract the PDF, pull fields with an LLM, write CSV per template",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&a.flags.envFile, "env-file", "", "dotenv file to load (default .env if present)")
	pf.IntVar(&a.flags.workers, "workers", 0, "messages processed concurrently (overrides WORKERS)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	pf.StringVar(&a.flags.logFormat, "log-format", "", "json or text (overrides LOG_FORMAT)")
	pf.StringVar(&a.flags.metricsFile, "metrics-file", "", "write Prometheus textfile metrics here after a run (overrides METRICS_FILE)")
	pf.StringVar(&a.flags.source, "source", "", "imap or mbox (overrides MAIL_SOURCE)")

	rootCmd.AddCommand(a.runCmd(), a.extractCmd(), a.checkCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// load reads the env file and environment, applies flag overrides and builds the logger.
func (a *app) load(cmd *cobra.Command) error {
	if err := common.LoadEnvFile(a.flags.envFile, a.flags.envFile != ""); err != nil {
		return err
	}
	cfg := common.LoadConfig()

	f := cmd.Flags()
	if f.Changed("workers") {
		cfg.Run.Workers = a.flags.workers
	}
	if f.Changed("log-level") {
		cfg.Run.LogLevel = a.flags.logLevel
	}
	if f.Changed("log-format") {
		cfg.Run.LogFormat = a.flags.logFormat
	}
	if f.Changed("metrics-file") {
		cfg.Run.MetricsFile = a.flags.metricsFile
	}
	if f.Changed("source") {
		cfg.Mail.Source = a.flags.source
	}

	a.cfg = cfg
	a.logger = common.NewLogger(os.Stderr, cfg.Run.LogLevel, cfg.Run.LogFormat)
	slog.SetDefault(a.logger)
	return nil
}
