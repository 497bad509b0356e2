package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/use-agent/tietpapers/models"
	"github.com/use-agent/tietpapers/selection"
)

// errPrompterClosed is returned by Ask after Close.
var errPrompterClosed = errors.New("prompter closed")

// Prompter asks the interactive questions. Reads honour ctx so an interrupt
// unblocks a pending prompt.
type Prompter struct {
	out       io.Writer
	lines     chan string
	done      chan struct{}
	stop      chan struct{}
	closeOnce sync.Once
	err       error
}

// NewPrompter starts reading lines from in. Call Close when no more answers
// are needed; a reader blocked inside in itself is only released when in
// returns.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{
		out:   out,
		lines: make(chan string),
		done:  make(chan struct{}),
		stop:  make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case p.lines <- sc.Text():
			case <-p.stop:
				p.err = errPrompterClosed
				return
			}
		}
		p.err = sc.Err()
		if p.err == nil {
			p.err = io.EOF
		}
	}()
	return p
}

// Close stops the reader at its next line.
func (p *Prompter) Close() {
	p.closeOnce.Do(func() { close(p.stop) })
}

// Ask prints prompt and returns the next line, trimmed.
func (p *Prompter) Ask(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	select {
	case line := <-p.lines:
		return strings.TrimSpace(line), nil
	case <-p.done:
		return "", p.err
	case <-p.stop:
		return "", errPrompterClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Query asks for the search mode and value, re-prompting until both are valid.
func (p *Prompter) Query(ctx context.Context) (models.Query, error) {
	fmt.Fprintln(p.out, "Search by:")
	fmt.Fprintln(p.out, "  1. Course code")
	fmt.Fprintln(p.out, "  2. Course name")

	var mode models.SearchMode
	for mode == 0 {
		ans, err := p.Ask(ctx, "Enter 1 or 2: ")
		if err != nil {
			return models.Query{}, err
		}
		switch ans {
		case "1":
			mode = models.ByCode
		case "2":
			mode = models.ByName
		default:
			fmt.Fprintln(p.out, "Please enter 1 or 2.")
		}
	}

	for {
		ans, err := p.Ask(ctx, fmt.Sprintf("Enter course %s: ", mode))
		if err != nil {
			return models.Query{}, err
		}
		if q := models.NewQuery(mode, ans); q.Text != "" {
			return q, nil
		}
		fmt.Fprintf(p.out, "Course %s cannot be empty.\n", mode)
	}
}

// Choose lists records and asks which to download and whether to merge.
func (p *Prompter) Choose(ctx context.Context, records []models.PaperRecord) (selection.Plan, error) {
	p.render(records)

	var plan selection.Plan
	for {
		ans, err := p.Ask(ctx, "Select items (e.g., 1,3-5) or 'a' for all: ")
		if err != nil {
			return plan, err
		}
		idx, err := selection.Parse(ans, len(records))
		if errors.Is(err, selection.ErrInvalidSelection) {
			fmt.Fprintf(p.out, "%v. Try again.\n", err)
			continue
		}
		if err != nil {
			return plan, err
		}
		plan.Indices = idx
		break
	}

	for {
		ans, err := p.Ask(ctx, "Merge PDFs per course? (y/n): ")
		if err != nil {
			return plan, err
		}
		switch strings.ToLower(ans) {
		case "y", "yes":
			plan.Merge = true
			return plan, nil
		case "n", "no":
			return plan, nil
		default:
			fmt.Fprintln(p.out, "Please answer y or n.")
		}
	}
}

func (p *Prompter) render(records []models.PaperRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Code", "Name", "Year", "Sem", "Exam", "Link"})
	for i, r := range records {
		link := "yes"
		if !r.Downloadable() {
			link = "-"
		}
		t.AppendRow(table.Row{i + 1, r.CourseCode, r.CourseName, r.Year, r.Semester, r.ExamType, link})
	}
	t.Render()
}
