package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/tietpapers/cache"
	"github.com/use-agent/tietpapers/models"
	"github.com/use-agent/tietpapers/webhook"
)

// Runs counts in-flight wrapper runs for the health endpoint.
type Runs struct {
	active atomic.Int64
}

// Active returns the number of runs currently executing.
func (r *Runs) Active() int {
	return int(r.active.Load())
}

// RunOptions configures the run-script handler.
type RunOptions struct {
	Timeout time.Duration
	Cache   *cache.Cache
	MaxAge  time.Duration

	// Notifier is told about every spawned run. Optional.
	Notifier *webhook.Notifier
}

// RunScript returns a handler for POST /run-script.
//
// The CLI is spawned in unattended mode with the request's four positional
// values. Its stdout and stderr are returned verbatim with 200, whatever its
// exit status; the caller inspects the text. Only a process that cannot be
// started or outlives the timeout yields 500.
func RunScript(proc ProcessFunc, runs *Runs, opts RunOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewRunError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}
		req.Defaults()

		key := cache.Key(&req)
		if opts.Cache != nil {
			if cached, hit := opts.Cache.Get(key, opts.MaxAge); hit {
				cached.CacheStatus = "hit"
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		runID := uuid.NewString()
		log := slog.With("run", runID)
		log.Info("spawning run", "option", req.Option, "value", req.Value, "merge", req.MergePdfs, "examFilter", req.ExamFilter)

		runs.active.Add(1)
		defer runs.active.Add(-1)

		ctx, cancel := context.WithTimeout(c.Request.Context(), opts.Timeout)
		defer cancel()

		start := time.Now()
		stdout, stderr, err := proc(ctx, req.Args())
		elapsed := time.Since(start)

		data := webhook.RunData{
			Option:     req.Option,
			Value:      req.Value,
			MergePdfs:  req.MergePdfs,
			ExamFilter: req.ExamFilter,
			DurationMs: elapsed.Milliseconds(),
		}

		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			log.Warn("run timed out", "timeout", opts.Timeout)
			runErr := models.NewRunError(models.ErrCodeRunFailed,
				fmt.Sprintf("run timed out after %s", opts.Timeout), ctx.Err())
			notify(opts.Notifier, webhook.RunFailed, runID, data, runErr.Message)
			respondError(c, runErr)
			return
		case err != nil && !errors.As(err, &exitErr):
			log.Error("run could not be started", "error", err)
			notify(opts.Notifier, webhook.RunFailed, runID, data, err.Error())
			respondError(c, models.NewRunError(models.ErrCodeRunFailed, err.Error(), err))
			return
		}
		data.Summary = summaryLine(stdout)

		resp := models.RunResponse{
			RunID:      runID,
			Output:     string(stdout),
			Error:      string(stderr),
			DurationMs: elapsed.Milliseconds(),
		}
		if exitErr != nil {
			log.Warn("run exited with error", "exitCode", exitErr.ExitCode())
			notify(opts.Notifier, webhook.RunFailed, runID, data, exitErr.Error())
		} else {
			notify(opts.Notifier, webhook.RunCompleted, runID, data, "")
		}
		if exitErr == nil && opts.Cache != nil && opts.MaxAge > 0 {
			opts.Cache.Set(key, resp)
			resp.CacheStatus = "miss"
		}

		log.Info("run finished", "ms", resp.DurationMs, "stdoutBytes", len(stdout), "stderrBytes", len(stderr))
		c.JSON(http.StatusOK, resp)
	}
}

func notify(n *webhook.Notifier, typ, runID string, data webhook.RunData, errMsg string) {
	data.Error = errMsg
	n.DeliverAsync(&webhook.Event{
		Type:      typ,
		RunID:     runID,
		Timestamp: time.Now().Unix(),
		Data:      data,
	})
}

// summaryLine returns the last "SUCCESS:" line of the CLI transcript.
func summaryLine(stdout []byte) string {
	lines := strings.Split(strings.TrimRight(string(stdout), "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "SUCCESS:") {
			return strings.TrimSpace(lines[i])
		}
	}
	return ""
}

// respondError writes a FailureResponse with a status derived from the code.
func respondError(c *gin.Context, err error) {
	runErr, ok := err.(*models.RunError)
	if !ok {
		runErr = models.NewRunError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(runErr), models.FailureResponse{
		Error:  runErr.Message,
		Detail: runErr.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.RunError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
