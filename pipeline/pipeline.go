// Package pipeline downloads the chosen papers into per-course directories
// and optionally merges each course's files into one PDF.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/use-agent/tietpapers/models"
	"github.com/use-agent/tietpapers/selection"
)

// Options configures a Pipeline.
type Options struct {
	// Root is the directory that receives one folder per course group.
	Root string

	// BaseURL resolves relative download links.
	BaseURL string

	// RequestTimeout bounds each file transfer. Zero means no extra bound
	// beyond the caller's context.
	RequestTimeout time.Duration

	// Merger merges a group's files. Defaults to PDFMerger.
	Merger Merger

	// Progress receives streaming byte counts. Optional.
	Progress ProgressFunc
}

// Pipeline downloads groups sequentially, one record at a time.
type Pipeline struct {
	fetcher Fetcher
	opts    Options
	base    *url.URL
}

// New creates a Pipeline that fetches through f.
func New(f Fetcher, opts Options) (*Pipeline, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("pipeline: parse base url: %w", err)
	}
	if opts.Merger == nil {
		opts.Merger = PDFMerger{}
	}
	return &Pipeline{fetcher: f, opts: opts, base: base}, nil
}

// Run downloads every record with a link. A failed record is recorded and the
// run moves on. When merge is set, each group that produced two or more files
// is merged into "{groupKey}_merged.pdf" and the originals are deleted; a
// group with a single file is left alone.
//
// Total counts records with a link; Done counts successful downloads and is
// not affected by the merge step.
func (p *Pipeline) Run(ctx context.Context, groups []selection.Group, merge bool) *models.Summary {
	summary := &models.Summary{}

	for _, g := range groups {
		summary.Total += g.Downloadable()
	}

	for _, g := range groups {
		dir := filepath.Join(p.opts.Root, g.Key)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create course directory", "dir", dir, "error", err)
			for _, rec := range g.Records {
				summary.Outcomes = append(summary.Outcomes, failedOrSkipped(rec, err))
			}
			continue
		}

		var paths []string
		for _, rec := range g.Records {
			out := p.fetchOne(ctx, dir, rec)
			summary.Outcomes = append(summary.Outcomes, out)
			if out.Kind == models.Downloaded {
				paths = append(paths, out.Path)
				summary.Done++
			}
		}

		if merge && len(paths) > 1 {
			if merged, ok := p.mergeGroup(dir, g.Key, paths); ok {
				summary.Merged = append(summary.Merged, merged)
			}
		}
	}

	slog.Info("download pass finished",
		"groups", len(groups),
		"done", summary.Done,
		"total", summary.Total,
		"merged", len(summary.Merged),
	)
	return summary
}

func (p *Pipeline) fetchOne(ctx context.Context, dir string, rec models.PaperRecord) models.Outcome {
	if !rec.Downloadable() {
		return models.Outcome{Record: rec, Kind: models.Skipped, Reason: "no download link"}
	}

	target, err := p.resolve(rec.DownloadHref)
	if err != nil {
		return failedOrSkipped(rec, err)
	}

	name := rec.FileName()
	dest := filepath.Join(dir, name)

	dctx := ctx
	if p.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, p.opts.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	n, err := download(dctx, p.fetcher, target, dest, name, p.opts.Progress)
	if err != nil {
		slog.Warn("download failed", "file", name, "url", target, "error", err)
		return failedOrSkipped(rec, err)
	}

	slog.Debug("downloaded", "file", name, "bytes", n, "ms", time.Since(start).Milliseconds())
	return models.Outcome{Record: rec, Kind: models.Downloaded, Path: dest}
}

// resolve turns a table href into an absolute URL against the portal root.
func (p *Pipeline) resolve(href string) (string, error) {
	u, err := p.base.Parse(href)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", href, err)
	}
	return u.String(), nil
}

// mergeGroup is all-or-nothing: originals are deleted only after the merged
// file has been written.
func (p *Pipeline) mergeGroup(dir, key string, paths []string) (string, bool) {
	merged := filepath.Join(dir, key+"_merged.pdf")
	if err := p.opts.Merger.Merge(paths, merged); err != nil {
		slog.Error("merge failed, keeping individual files", "group", key, "error", err)
		return "", false
	}
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			slog.Warn("failed to remove merged source", "file", path, "error", err)
		}
	}
	slog.Info("merged course files", "group", key, "files", len(paths), "output", merged)
	return merged, true
}

func failedOrSkipped(rec models.PaperRecord, err error) models.Outcome {
	if !rec.Downloadable() {
		return models.Outcome{Record: rec, Kind: models.Skipped, Reason: "no download link"}
	}
	re := models.NewRunError(models.ErrCodeDownload, err.Error(), err)
	return models.Outcome{Record: rec, Kind: models.Failed, Reason: re.Message, Code: re.Code}
}
