// Package selection resolves which extracted records a run acts on and
// partitions them into per-course groups.
package selection

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/use-agent/tietpapers/models"
)

// ErrInvalidSelection is returned for malformed or out-of-range selections.
var ErrInvalidSelection = errors.New("invalid selection")

// Plan is the single configuration value that both invocation modes fill in:
// interactive prompts and unattended arguments differ only in how they obtain
// it.
type Plan struct {
	// All selects every record; Indices is ignored when set.
	All bool

	// Indices are 1-based positions into the result set.
	Indices []int

	// Merge concatenates each course's files into one PDF.
	Merge bool
}

// AllRecords returns a plan selecting everything.
func AllRecords(merge bool) Plan {
	return Plan{All: true, Merge: merge}
}

// Parse reads a selection such as "1,3-5" or "all" against a result set of
// size n. Indices are 1-based and must lie in [1, n]. The result is sorted
// and free of duplicates.
func Parse(raw string, n int) ([]int, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	switch raw {
	case "a", "all", "*":
		return allIndices(n), nil
	case "":
		return nil, fmt.Errorf("%w: empty input", ErrInvalidSelection)
	}

	set := make(map[int]struct{})
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if lo, hi, isRange := strings.Cut(part, "-"); isRange {
			l, err := parseIndex(lo, n)
			if err != nil {
				return nil, err
			}
			h, err := parseIndex(hi, n)
			if err != nil {
				return nil, err
			}
			if l > h {
				return nil, fmt.Errorf("%w: range %q is reversed", ErrInvalidSelection, part)
			}
			for k := l; k <= h; k++ {
				set[k] = struct{}{}
			}
			continue
		}
		k, err := parseIndex(part, n)
		if err != nil {
			return nil, err
		}
		set[k] = struct{}{}
	}

	out := make([]int, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Ints(out)
	return out, nil
}

func parseIndex(s string, n int) (int, error) {
	k, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidSelection, s)
	}
	if k < 1 || k > n {
		return 0, fmt.Errorf("%w: %d is outside 1-%d", ErrInvalidSelection, k, n)
	}
	return k, nil
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// Choose applies the plan to records, preserving the original order.
func Choose(records []models.PaperRecord, plan Plan) ([]models.PaperRecord, error) {
	if plan.All {
		return append([]models.PaperRecord(nil), records...), nil
	}

	idx := append([]int(nil), plan.Indices...)
	sort.Ints(idx)
	out := make([]models.PaperRecord, 0, len(idx))
	prev := 0
	for _, k := range idx {
		if k < 1 || k > len(records) {
			return nil, fmt.Errorf("%w: %d is outside 1-%d", ErrInvalidSelection, k, len(records))
		}
		if k == prev {
			continue
		}
		out = append(out, records[k-1])
		prev = k
	}
	return out, nil
}
