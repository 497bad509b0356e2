package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/use-agent/tietpapers/models"
	"github.com/use-agent/tietpapers/selection"
)

// clientFetcher adapts a plain http.Client to Fetcher.
type clientFetcher struct{ c *http.Client }

func (f clientFetcher) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return f.c.Do(req)
}

// minimalPDF builds a one-page PDF with a correct xref table.
func minimalPDF() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>",
	}
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func newPortal(t *testing.T) *httptest.Server {
	t.Helper()
	pdf := minimalPDF()
	mux := http.NewServeMux()
	mux.HandleFunc("/papers/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdf)
	})
	mux.HandleFunc("/broken/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	mux.HandleFunc("/truncated/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100000")
		_, _ = w.Write(pdf[:10])
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func rec(year, href string) models.PaperRecord {
	return models.PaperRecord{
		CourseCode:   "UCS503",
		CourseName:   "Software Engineering",
		Year:         year,
		Semester:     "ODD",
		ExamType:     "EST",
		DownloadHref: href,
	}
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read %s: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func newPipeline(t *testing.T, srv *httptest.Server, root string, m Merger) *Pipeline {
	t.Helper()
	p, err := New(clientFetcher{srv.Client()}, Options{Root: root, BaseURL: srv.URL, Merger: m})
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRun_NoMerge(t *testing.T) {
	srv := newPortal(t)
	root := t.TempDir()

	var progressCalls int
	p, err := New(clientFetcher{srv.Client()}, Options{
		Root:     root,
		BaseURL:  srv.URL,
		Progress: func(string, int64, int64) { progressCalls++ },
	})
	if err != nil {
		t.Fatal(err)
	}

	groups := selection.ByCourse([]models.PaperRecord{
		rec("2023", "/papers/a.pdf"),
		rec("2022", srv.URL+"/papers/b.pdf"),
	})
	s := p.Run(context.Background(), groups, false)

	if s.Done != 2 || s.Total != 2 {
		t.Errorf("summary = %d/%d, want 2/2", s.Done, s.Total)
	}
	got := listFiles(t, filepath.Join(root, "UCS503__Software_Engineering"))
	want := []string{
		"UCS503_Software_Engineering_2022_ODD_EST.pdf",
		"UCS503_Software_Engineering_2023_ODD_EST.pdf",
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("files = %v, want %v", got, want)
	}
	if progressCalls == 0 {
		t.Error("progress callback never fired")
	}
	if len(s.Merged) != 0 {
		t.Errorf("nothing should be merged, got %v", s.Merged)
	}
}

func TestRun_MergeReplacesOriginals(t *testing.T) {
	srv := newPortal(t)
	root := t.TempDir()
	p := newPipeline(t, srv, root, PDFMerger{})

	groups := selection.ByCourse([]models.PaperRecord{
		rec("2023", "/papers/a.pdf"),
		rec("2022", "/papers/b.pdf"),
	})
	s := p.Run(context.Background(), groups, true)

	if s.Done != 2 || s.Total != 2 {
		t.Errorf("summary = %d/%d, want 2/2", s.Done, s.Total)
	}
	dir := filepath.Join(root, "UCS503__Software_Engineering")
	got := listFiles(t, dir)
	if len(got) != 1 || got[0] != "UCS503__Software_Engineering_merged.pdf" {
		t.Fatalf("files = %v, want only the merged file", got)
	}

	pages, err := api.PageCountFile(filepath.Join(dir, got[0]))
	if err != nil {
		t.Fatalf("PageCountFile: %v", err)
	}
	if pages != 2 {
		t.Errorf("merged page count = %d, want 2", pages)
	}
}

func TestRun_FailuresAreTallied(t *testing.T) {
	srv := newPortal(t)
	root := t.TempDir()
	p := newPipeline(t, srv, root, PDFMerger{})

	groups := selection.ByCourse([]models.PaperRecord{
		rec("2023", "/papers/a.pdf"),
		rec("2022", "/broken/b.pdf"),
		rec("2021", "/truncated/c.pdf"),
		rec("2020", ""),
	})
	s := p.Run(context.Background(), groups, true)

	if s.Done != 1 || s.Total != 3 {
		t.Errorf("summary = %d/%d, want 1/3", s.Done, s.Total)
	}

	kinds := map[models.OutcomeKind]int{}
	for _, o := range s.Outcomes {
		kinds[o.Kind]++
		if o.Kind == models.Failed && o.Code != models.ErrCodeDownload {
			t.Errorf("failed outcome code = %q, want %s", o.Code, models.ErrCodeDownload)
		}
	}
	if kinds[models.Downloaded] != 1 || kinds[models.Failed] != 2 || kinds[models.Skipped] != 1 {
		t.Errorf("outcome kinds = %v", kinds)
	}

	// One surviving file: no merge, no partial files.
	got := listFiles(t, filepath.Join(root, "UCS503__Software_Engineering"))
	if len(got) != 1 || got[0] != "UCS503_Software_Engineering_2023_ODD_EST.pdf" {
		t.Errorf("files = %v", got)
	}
}

type failingMerger struct{ calls int }

func (m *failingMerger) Merge([]string, string) error {
	m.calls++
	return errors.New("corrupt input")
}

func TestRun_MergeFailureKeepsOriginals(t *testing.T) {
	srv := newPortal(t)
	root := t.TempDir()
	m := &failingMerger{}
	p := newPipeline(t, srv, root, m)

	groups := selection.ByCourse([]models.PaperRecord{
		rec("2023", "/papers/a.pdf"),
		rec("2022", "/papers/b.pdf"),
	})
	s := p.Run(context.Background(), groups, true)

	if m.calls != 1 {
		t.Errorf("merger called %d times, want 1", m.calls)
	}
	if s.Done != 2 {
		t.Errorf("Done = %d, merge failure must not change it", s.Done)
	}
	if got := listFiles(t, filepath.Join(root, "UCS503__Software_Engineering")); len(got) != 2 {
		t.Errorf("files = %v, want both originals", got)
	}
}

func TestRun_SingleFileGroupNeverMerged(t *testing.T) {
	srv := newPortal(t)
	m := &failingMerger{}
	p := newPipeline(t, srv, t.TempDir(), m)

	groups := selection.ByCourse([]models.PaperRecord{rec("2023", "/papers/a.pdf")})
	p.Run(context.Background(), groups, true)

	if m.calls != 0 {
		t.Errorf("merger called for a single-file group")
	}
}

func TestRun_ChunkedBodyFinishesProgress(t *testing.T) {
	pdf := minimalPDF()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(pdf[:20])
		w.(http.Flusher).Flush()
		_, _ = w.Write(pdf[20:])
	}))
	t.Cleanup(srv.Close)

	type call struct{ written, total int64 }
	var calls []call
	p, err := New(clientFetcher{srv.Client()}, Options{
		Root:     t.TempDir(),
		BaseURL:  srv.URL,
		Progress: func(_ string, written, total int64) { calls = append(calls, call{written, total}) },
	})
	if err != nil {
		t.Fatal(err)
	}

	s := p.Run(context.Background(), selection.ByCourse([]models.PaperRecord{rec("2023", "/papers/a.pdf")}), false)
	if s.Done != 1 {
		t.Fatalf("Done = %d, want 1", s.Done)
	}
	if len(calls) < 2 {
		t.Fatalf("progress calls = %v, want streaming calls plus a final one", calls)
	}
	if calls[0].total != -1 {
		t.Errorf("first call total = %d, want -1 for a chunked body", calls[0].total)
	}
	last := calls[len(calls)-1]
	if want := int64(len(pdf)); last.written != want || last.total != want {
		t.Errorf("final call = %+v, want written == total == %d", last, want)
	}
}

func TestRun_SeparatorInCellStaysInGroupDir(t *testing.T) {
	srv := newPortal(t)
	root := t.TempDir()
	p := newPipeline(t, srv, root, PDFMerger{})

	s := p.Run(context.Background(), selection.ByCourse([]models.PaperRecord{rec("2022/23", "/papers/a.pdf")}), false)
	if s.Done != 1 {
		t.Fatalf("Done = %d, want 1 (outcomes %+v)", s.Done, s.Outcomes)
	}
	got := listFiles(t, filepath.Join(root, "UCS503__Software_Engineering"))
	if len(got) != 1 || got[0] != "UCS503_Software_Engineering_2022-23_ODD_EST.pdf" {
		t.Errorf("files = %v", got)
	}
}
