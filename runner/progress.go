package runner

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/use-agent/tietpapers/pipeline"
)

// ProgressPrinter renders per-file byte counts on a single rewritten line.
// The line is terminated once the file is complete, so whatever follows on w
// starts on a fresh line.
func ProgressPrinter(w io.Writer) pipeline.ProgressFunc {
	return func(name string, written, total int64) {
		if total < 0 {
			fmt.Fprintf(w, "\r  %s  %s", name, humanize.Bytes(uint64(written)))
			return
		}
		fmt.Fprintf(w, "\r  %s  %s / %s", name, humanize.Bytes(uint64(written)), humanize.Bytes(uint64(total)))
		if written >= total {
			fmt.Fprintln(w)
		}
	}
}
