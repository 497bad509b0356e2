// Package extractor turns a rendered results page into paper records.
package extractor

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/tietpapers/models"
	"golang.org/x/net/html"
)

// minCells is the number of cells a data row must have.
const minCells = 5

var (
	tableMatcher  = cascadia.MustCompile("table")
	rowMatcher    = cascadia.MustCompile("tr")
	cellMatcher   = cascadia.MustCompile("td")
	anchorMatcher = cascadia.MustCompile("a")
)

// headerLabels are first-cell values that mark a header row rendered with td.
var headerLabels = map[string]struct{}{
	"course code": {},
	"course_code": {},
}

// Stats describes one extraction pass.
type Stats struct {
	TablesSeen  int
	TableUsed   int // 1-based; 0 when no table yielded rows
	RowsSkipped int
}

// Extract walks every table in document order and converts the rows of the
// first table that has structurally valid data rows. Tables before it (layout
// or decoration) are ignored, tables after it are not scanned. The first row
// of each table is treated as its header.
//
// Extract is pure: the same snapshot always yields the same ordered records.
func Extract(rawHTML string) ([]models.PaperRecord, Stats, error) {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, Stats{}, fmt.Errorf("extractor: parse html: %w", err)
	}
	doc := goquery.NewDocumentFromNode(root)

	var (
		stats   Stats
		records []models.PaperRecord
	)

	doc.FindMatcher(tableMatcher).EachWithBreak(func(i int, tbl *goquery.Selection) bool {
		stats.TablesSeen++
		rows := tbl.FindMatcher(rowMatcher)
		if rows.Length() < 2 {
			return true
		}

		rows.Slice(1, rows.Length()).Each(func(_ int, row *goquery.Selection) {
			cells := row.FindMatcher(cellMatcher)
			if cells.Length() < minCells {
				stats.RowsSkipped++
				return
			}
			if isHeaderLabel(cellText(cells.Eq(0))) {
				stats.RowsSkipped++
				return
			}
			records = append(records, rowToRecord(row, cells))
		})

		if len(records) > 0 {
			stats.TableUsed = i + 1
			return false
		}
		return true
	})

	slog.Debug("extraction finished",
		"tables", stats.TablesSeen,
		"tableUsed", stats.TableUsed,
		"rows", len(records),
		"skipped", stats.RowsSkipped,
	)
	return records, stats, nil
}

func rowToRecord(row, cells *goquery.Selection) models.PaperRecord {
	rec := models.PaperRecord{
		CourseCode: cellText(cells.Eq(0)),
		CourseName: cellText(cells.Eq(1)),
		Year:       cellText(cells.Eq(2)),
		Semester:   cellText(cells.Eq(3)),
		ExamType:   cellText(cells.Eq(4)),
	}
	row.FindMatcher(anchorMatcher).EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if strings.EqualFold(cellText(a), "download") {
			rec.DownloadHref, _ = a.Attr("href")
			rec.DownloadHref = strings.TrimSpace(rec.DownloadHref)
			return false
		}
		return true
	})
	return rec
}

// cellText returns the visible text with whitespace runs collapsed.
func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func isHeaderLabel(text string) bool {
	_, ok := headerLabels[strings.ToLower(text)]
	return ok
}
