package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// copyBufferSize matches the chunk size the portal serves comfortably.
const copyBufferSize = 64 << 10

// Fetcher issues authenticated GETs. *transfer.Session implements it.
type Fetcher interface {
	Get(ctx context.Context, rawURL string) (*http.Response, error)
}

// ProgressFunc is called as bytes arrive. total is -1 when the server sent no
// Content-Length. Every completed file ends with a call where written equals
// total.
type ProgressFunc func(name string, written, total int64)

// progressWriter reports cumulative bytes written to the wrapped callback.
type progressWriter struct {
	name    string
	total   int64
	written int64
	fn      ProgressFunc
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	if w.fn != nil {
		w.fn(w.name, w.written, w.total)
	}
	return len(p), nil
}

// download streams rawURL into dest. Bytes land in dest+".part" and are
// renamed only after the body has been read completely, so a failed transfer
// never leaves a file under its final name.
func download(ctx context.Context, f Fetcher, rawURL, dest, name string, progress ProgressFunc) (int64, error) {
	resp, err := f.Get(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("HTTP %d for %s", resp.StatusCode, rawURL)
	}

	part := dest + ".part"
	out, err := os.Create(part)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", part, err)
	}

	pw := &progressWriter{name: name, total: resp.ContentLength, fn: progress}
	buf := make([]byte, copyBufferSize)
	n, copyErr := io.CopyBuffer(io.MultiWriter(out, pw), resp.Body, buf)
	closeErr := out.Close()

	if copyErr == nil && closeErr == nil && resp.ContentLength > 0 && n != resp.ContentLength {
		copyErr = fmt.Errorf("short body: got %d of %d bytes", n, resp.ContentLength)
	}
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(part)
		if copyErr != nil {
			return n, fmt.Errorf("read body: %w", copyErr)
		}
		return n, fmt.Errorf("close %s: %w", part, closeErr)
	}

	if progress != nil && pw.total != n {
		progress(name, n, n)
	}

	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return n, fmt.Errorf("promote %s: %w", dest, err)
	}
	return n, nil
}
