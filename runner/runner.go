// Package runner sequences one retrieval run: launch, search, extract, filter,
// choose, hand the session to an HTTP client, then download and merge.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/use-agent/tietpapers/config"
	"github.com/use-agent/tietpapers/extractor"
	"github.com/use-agent/tietpapers/models"
	"github.com/use-agent/tietpapers/pipeline"
	"github.com/use-agent/tietpapers/scraper"
	"github.com/use-agent/tietpapers/selection"
	"github.com/use-agent/tietpapers/transfer"
)

// Browser is the automated portal session as the runner sees it.
// *scraper.Scraper implements it.
type Browser interface {
	Search(ctx context.Context, q models.Query) (string, error)
	Cookies() ([]*proto.NetworkCookie, error)
	Close()
}

// LaunchFunc starts a browser for one run.
type LaunchFunc func(ctx context.Context) (Browser, error)

// ScraperLauncher launches a real browser that saves into downloadDir.
func ScraperLauncher(cfg *config.Config, downloadDir string) LaunchFunc {
	return func(context.Context) (Browser, error) {
		s, err := scraper.NewScraper(cfg, downloadDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Chooser decides which records to download and whether to merge. The
// interactive prompt and unattended arguments are both Choosers.
type Chooser interface {
	Choose(ctx context.Context, records []models.PaperRecord) (selection.Plan, error)
}

// StaticChooser always selects every record.
type StaticChooser struct {
	Merge bool
}

func (c StaticChooser) Choose(context.Context, []models.PaperRecord) (selection.Plan, error) {
	return selection.AllRecords(c.Merge), nil
}

// Options describes one run.
type Options struct {
	Query      models.Query
	ExamFilter string
	Chooser    Chooser
}

// Runner executes runs against the configured portal.
type Runner struct {
	cfg      *config.Config
	launch   LaunchFunc
	out      io.Writer
	merger   pipeline.Merger
	progress pipeline.ProgressFunc
}

// New creates a Runner. Human-readable progress is written to out.
func New(cfg *config.Config, launch LaunchFunc, out io.Writer) *Runner {
	return &Runner{cfg: cfg, launch: launch, out: out}
}

// WithMerger overrides the PDF merger.
func (r *Runner) WithMerger(m pipeline.Merger) *Runner {
	r.merger = m
	return r
}

// WithProgress installs a per-chunk download callback.
func (r *Runner) WithProgress(fn pipeline.ProgressFunc) *Runner {
	r.progress = fn
	return r
}

// Run performs one search and download pass. A search that times out or
// yields no rows, and a filter that matches nothing, end the run with an
// empty summary and a nil error. The browser is closed before any file is
// downloaded and on every early return.
func (r *Runner) Run(ctx context.Context, opts Options) (*models.Summary, error) {
	runID := uuid.NewString()
	log := slog.With("run", runID)
	start := time.Now()

	if opts.Chooser == nil {
		opts.Chooser = StaticChooser{}
	}
	q := opts.Query
	if q.Text == "" {
		return nil, models.NewRunError(models.ErrCodeInvalidInput, "empty search value", nil)
	}

	log.Info("run starting", "mode", q.Mode.String(), "query", q.Text, "examFilter", opts.ExamFilter)
	fmt.Fprintf(r.out, "Searching by course %s: %s\n", q.Mode, q.Text)

	b, err := r.launch(ctx)
	if err != nil {
		return nil, err
	}
	browserOpen := true
	closeBrowser := func() {
		if browserOpen {
			b.Close()
			browserOpen = false
		}
	}
	defer closeBrowser()

	summary := &models.Summary{}

	raw, err := b.Search(ctx, q)
	if err != nil {
		var re *models.RunError
		if errors.As(err, &re) && !re.Fatal() && ctx.Err() == nil {
			log.Warn("search produced no results", "reason", re.Message)
			fmt.Fprintf(r.out, "No results found for: %s\n", q.Text)
			summary.NoResults = true
			return summary, nil
		}
		return nil, err
	}

	records, stats, err := extractor.Extract(raw)
	if err != nil {
		return nil, models.NewRunError(models.ErrCodeInternal, "failed to read results page", err)
	}
	log.Info("results extracted", "records", len(records), "tables", stats.TablesSeen, "skipped", stats.RowsSkipped)
	if len(records) == 0 {
		fmt.Fprintf(r.out, "No results found for: %s\n", q.Text)
		summary.NoResults = true
		return summary, nil
	}

	records, err = extractor.FilterExamType(records, opts.ExamFilter)
	if err != nil {
		var re *models.RunError
		if errors.As(err, &re) && !re.Fatal() {
			fmt.Fprintf(r.out, "No results found for exam type: %s\n", opts.ExamFilter)
			summary.NoMatchingExamType = true
			return summary, nil
		}
		return nil, err
	}
	fmt.Fprintf(r.out, "Found %d paper(s)\n", len(records))

	plan, err := opts.Chooser.Choose(ctx, records)
	if err != nil {
		return nil, err
	}
	chosen, err := selection.Choose(records, plan)
	if err != nil {
		return nil, models.NewRunError(models.ErrCodeInvalidInput, err.Error(), err)
	}

	cookies, err := b.Cookies()
	if err != nil {
		return nil, models.NewRunError(models.ErrCodeInternal, "failed to snapshot session cookies", err)
	}
	closeBrowser()
	log.Info("browser session handed off", "cookies", len(cookies), "selected", len(chosen))

	sess, err := transfer.NewSession(cookies, r.cfg.Transfer)
	if err != nil {
		return nil, models.NewRunError(models.ErrCodeInternal, "failed to build download session", err)
	}
	defer sess.Close()

	p, err := pipeline.New(sess, pipeline.Options{
		Root:           r.cfg.Output.DownloadRoot,
		BaseURL:        r.cfg.Portal.RootURL,
		RequestTimeout: r.cfg.Transfer.RequestTimeout,
		Merger:         r.merger,
		Progress:       r.progress,
	})
	if err != nil {
		return nil, models.NewRunError(models.ErrCodeInternal, "invalid portal root", err)
	}

	groups := selection.ByCourse(chosen)
	fmt.Fprintf(r.out, "Downloading %d paper(s) in %d course group(s)\n", len(chosen), len(groups))
	summary = p.Run(ctx, groups, plan.Merge)

	for _, o := range summary.Outcomes {
		if o.Kind == models.Failed {
			fmt.Fprintf(r.out, "  failed: %s (%s)\n", o.Record.FileName(), o.Reason)
			log.Warn("record not downloaded", "file", o.Record.FileName(), "code", o.Code)
		}
	}
	for _, m := range summary.Merged {
		fmt.Fprintf(r.out, "  merged: %s\n", m)
	}

	log.Info("run finished",
		"done", summary.Done,
		"total", summary.Total,
		"ms", time.Since(start).Milliseconds(),
	)
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}
