package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/use-agent/tietpapers/config"
	"github.com/use-agent/tietpapers/extractor"
	"github.com/use-agent/tietpapers/models"
	"github.com/use-agent/tietpapers/runner"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	headless    bool
	stealth     bool
	downloadDir string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:   "tietpapers [mode value [merge [examFilter]]]",
		Short: "Download old exam papers from the university portal.",
		Long: `tietpapers searches the portal's old question paper archive by course code
or course name and downloads the papers into one folder per course.

Run without arguments for interactive prompts. For unattended use pass:
  mode        1 = course code, 2 = course name
  value       the code or name to search for
  merge       true to merge each course's papers into one PDF (default false)
  examFilter  exact exam type to keep, or "all" (default)`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 || len(args) > 4 {
				return fmt.Errorf("expected no arguments or 2 to 4 arguments, got %d", len(args))
			}
			return nil
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, f)
		},
	}

	cfg := config.Load()
	cmd.Flags().BoolVar(&f.headless, "headless", cfg.Browser.Headless, "run the browser without a window")
	cmd.Flags().BoolVar(&f.stealth, "stealth", cfg.Browser.Stealth, "inject anti-automation-detection evasions")
	cmd.Flags().StringVar(&f.downloadDir, "download-dir", cfg.Output.DownloadRoot, "directory that receives per-course folders")
	cmd.Flags().StringVar(&f.logLevel, "log-level", cfg.Log.Level, "log level: debug, info, warn, error")
	return cmd
}

func run(cmd *cobra.Command, args []string, f flags) error {
	cfg := config.Load()
	cfg.Browser.Headless = f.headless
	cfg.Browser.Stealth = f.stealth
	cfg.Output.DownloadRoot = f.downloadDir
	cfg.Log.Level = f.logLevel

	// stdout carries the run transcript the wrapper returns; logs go to stderr.
	initLogger(cfg.Log, cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Progress redraws go to stderr so the stdout transcript stays line-based.
	out := cmd.OutOrStdout()
	r := runner.New(cfg, runner.ScraperLauncher(cfg, cfg.Output.DownloadRoot), out).
		WithProgress(runner.ProgressPrinter(cmd.ErrOrStderr()))

	interactive := len(args) == 0
	var opts runner.Options
	if interactive {
		p := runner.NewPrompter(cmd.InOrStdin(), out)
		defer p.Close()
		q, err := p.Query(ctx)
		if err != nil {
			return finish(out, err, true)
		}
		opts = runner.Options{Query: q, ExamFilter: extractor.NoFilter, Chooser: p}
	} else {
		var err error
		if opts, err = optionsFromArgs(args); err != nil {
			return finish(out, err, false)
		}
	}

	summary, err := r.Run(ctx, opts)
	if err != nil {
		return finish(out, err, interactive)
	}
	if !summary.NoResults && !summary.NoMatchingExamType {
		fmt.Fprintln(out, summary.Line(cfg.Output.DownloadRoot))
	}
	return nil
}

// optionsFromArgs maps unattended positional arguments to run options.
func optionsFromArgs(args []string) (runner.Options, error) {
	q := models.NewQuery(models.ParseSearchMode(args[0]), args[1])
	if q.Text == "" {
		return runner.Options{}, models.NewRunError(models.ErrCodeInvalidInput, "search value is empty", nil)
	}

	merge := false
	if len(args) > 2 {
		merge = parseBool(args[2])
	}
	filter := extractor.NoFilter
	if len(args) > 3 && strings.TrimSpace(args[3]) != "" {
		filter = strings.TrimSpace(args[3])
	}
	return runner.Options{
		Query:      q,
		ExamFilter: filter,
		Chooser:    runner.StaticChooser{Merge: merge},
	}, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "y":
		return true
	default:
		return false
	}
}

// finish reports a failed run. Interrupts end quietly. Unattended failures
// exit 0 with the diagnostic on stdout so the wrapper's caller can read it;
// interactive failures exit non-zero.
func finish(out io.Writer, err error, interactive bool) error {
	if errors.Is(err, context.Canceled) || (interactive && errors.Is(err, io.EOF)) {
		fmt.Fprintln(out, "\nCancelled.")
		return nil
	}

	var re *models.RunError
	if errors.As(err, &re) {
		fmt.Fprintf(out, "ERROR [%s]: %s\n", re.Code, re.Message)
	} else {
		fmt.Fprintf(out, "ERROR: %v\n", err)
	}
	slog.Debug("run failed", "error", err)

	if interactive {
		return err
	}
	return nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig, w io.Writer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	slog.SetDefault(slog.New(handler))
}
