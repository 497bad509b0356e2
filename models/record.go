package models

import (
	"fmt"
	"strings"
)

// SearchMode selects which search field a query targets.
type SearchMode int

const (
	ByCode SearchMode = iota + 1
	ByName
)

func (m SearchMode) String() string {
	switch m {
	case ByCode:
		return "code"
	case ByName:
		return "name"
	default:
		return fmt.Sprintf("SearchMode(%d)", int(m))
	}
}

// ParseSearchMode maps the CLI selector to a mode. Anything other than "2"
// means a code search.
func ParseSearchMode(s string) SearchMode {
	if strings.TrimSpace(s) == "2" {
		return ByName
	}
	return ByCode
}

// Query is a search against the portal. Build it with NewQuery so the text
// is normalized for its mode.
type Query struct {
	Mode SearchMode
	Text string
}

// NewQuery normalizes raw input for the given mode: codes are uppercased with
// hyphens and spaces stripped, names are only trimmed.
func NewQuery(mode SearchMode, raw string) Query {
	raw = strings.TrimSpace(raw)
	if mode == ByCode {
		return Query{Mode: ByCode, Text: NormalizeCourseCode(raw)}
	}
	return Query{Mode: ByName, Text: raw}
}

// PaperRecord is one row of the portal's results table.
type PaperRecord struct {
	CourseCode   string `json:"course_code"`
	CourseName   string `json:"course_name"`
	Year         string `json:"year"`
	Semester     string `json:"semester"`
	ExamType     string `json:"exam_type"`
	DownloadHref string `json:"download_href,omitempty"`
}

// Downloadable reports whether the row links to a file.
func (r PaperRecord) Downloadable() bool {
	return r.DownloadHref != ""
}

// FileName is the deterministic on-disk name for the record's PDF.
func (r PaperRecord) FileName() string {
	return fmt.Sprintf("%s_%s_%s_%s_%s.pdf",
		PathSegment(r.CourseCode), SanitizeName(r.CourseName),
		PathSegment(r.Year), PathSegment(r.Semester), PathSegment(r.ExamType))
}

// OutcomeKind classifies what happened to one record in the download pass.
type OutcomeKind string

const (
	Downloaded OutcomeKind = "downloaded"
	Skipped    OutcomeKind = "skipped"
	Failed     OutcomeKind = "failed"
)

// Outcome is the per-record download result.
type Outcome struct {
	Record PaperRecord `json:"record"`
	Kind   OutcomeKind `json:"kind"`
	Path   string      `json:"path,omitempty"`
	Reason string      `json:"reason,omitempty"`

	// Code is the RunError code of a failed record.
	Code string `json:"code,omitempty"`
}

// Summary aggregates a run for the caller.
type Summary struct {
	Done     int       `json:"done"`
	Total    int       `json:"total"`
	Outcomes []Outcome `json:"outcomes,omitempty"`

	// Merged lists merged output files, one per merged group.
	Merged []string `json:"merged,omitempty"`

	// NoResults is set when the search produced no rows.
	NoResults bool `json:"no_results,omitempty"`

	// NoMatchingExamType is set when the exam-type filter emptied the set.
	NoMatchingExamType bool `json:"no_matching_exam_type,omitempty"`
}

// Line renders the caller-facing summary line.
func (s *Summary) Line(dir string) string {
	return fmt.Sprintf("SUCCESS: Downloaded %d/%d file(s) to %s", s.Done, s.Total, dir)
}
