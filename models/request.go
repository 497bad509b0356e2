package models

import "strconv"

// RunRequest is the payload for POST /run-script.
type RunRequest struct {
	// Option selects the search field: "1" for course code, "2" for course name.
	Option string `json:"option" binding:"required,oneof=1 2"`

	// Value is the course code or (partial) course name.
	Value string `json:"value" binding:"required"`

	// MergePdfs asks for each course's files to be merged into one PDF.
	MergePdfs bool `json:"mergePdfs"`

	// ExamFilter restricts results to one exam type. Default: "all".
	ExamFilter string `json:"examFilter,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *RunRequest) Defaults() {
	if r.ExamFilter == "" {
		r.ExamFilter = "all"
	}
}

// Args renders the four positional values the CLI expects in unattended mode.
func (r *RunRequest) Args() []string {
	return []string{r.Option, r.Value, strconv.FormatBool(r.MergePdfs), r.ExamFilter}
}
