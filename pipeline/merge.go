package pipeline

import (
	"fmt"
	"os"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Merger concatenates PDFs, in order, into one output file.
type Merger interface {
	Merge(inFiles []string, outFile string) error
}

var disableConfigDir sync.Once

// PDFMerger merges with pdfcpu.
type PDFMerger struct{}

// Merge writes inFiles into outFile. A partially written output is removed
// on failure.
func (PDFMerger) Merge(inFiles []string, outFile string) error {
	// pdfcpu otherwise writes a config directory under the user's home.
	disableConfigDir.Do(api.DisableConfigDir)

	if err := api.MergeCreateFile(inFiles, outFile, false, nil); err != nil {
		_ = os.Remove(outFile)
		return fmt.Errorf("merge %d files into %s: %w", len(inFiles), outFile, err)
	}
	return nil
}
