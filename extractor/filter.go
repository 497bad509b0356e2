package extractor

import (
	"fmt"
	"strings"

	"github.com/use-agent/tietpapers/models"
)

// NoFilter is the exam-type sentinel that keeps every record.
const NoFilter = "all"

// FilterExamType keeps records whose exam type equals filter exactly.
// An empty filter or NoFilter returns the input unchanged. If filtering
// removes every record, an EMPTY_FILTER RunError is returned.
func FilterExamType(records []models.PaperRecord, filter string) ([]models.PaperRecord, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" || filter == NoFilter {
		return records, nil
	}

	kept := make([]models.PaperRecord, 0, len(records))
	for _, r := range records {
		if r.ExamType == filter {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		return nil, models.NewRunError(
			models.ErrCodeEmptyFilter,
			fmt.Sprintf("no results found for exam type: %s", filter),
			nil,
		)
	}
	return kept, nil
}
