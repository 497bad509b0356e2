package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/go-rod/rod/lib/proto"
	"github.com/google/go-cmp/cmp"
	"github.com/use-agent/tietpapers/config"
	"github.com/use-agent/tietpapers/models"
	"github.com/use-agent/tietpapers/selection"
)

const resultsPage = `<html><body>
<div>These results matches your search criteria</div>
<table>
  <tr><th>Course Code</th><th>Course Name</th><th>Year</th><th>Semester</th><th>Exam</th><th>File</th></tr>
  <tr><td>UCS503</td><td>Software Engineering</td><td>2023</td><td>ODD</td><td>EST</td><td><a href="/papers/a.pdf">Download</a></td></tr>
  <tr><td>UCS503</td><td>Software Engineering</td><td>2022</td><td>EVEN</td><td>MST</td><td><a href="/papers/b.pdf">Download</a></td></tr>
  <tr><td>UCS503</td><td>Software Engineering</td><td>2021</td><td>ODD</td><td>EST</td><td></td></tr>
</table>
</body></html>`

// fakeBrowser replays a canned results page and counts Close calls.
type fakeBrowser struct {
	page    string
	err     error
	cookies []*proto.NetworkCookie
	closed  atomic.Int32
	queries []models.Query
}

func (b *fakeBrowser) Search(_ context.Context, q models.Query) (string, error) {
	b.queries = append(b.queries, q)
	return b.page, b.err
}

func (b *fakeBrowser) Cookies() ([]*proto.NetworkCookie, error) {
	return b.cookies, nil
}

func (b *fakeBrowser) Close() {
	b.closed.Add(1)
}

// newPortal serves papers only to requests carrying the session cookie and
// records whether any download arrived while the browser was still open.
func newPortal(t *testing.T, b *fakeBrowser, openDuringDownload *atomic.Bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.closed.Load() == 0 {
			openDuringDownload.Store(true)
		}
		if c, err := r.Cookie("sid"); err != nil || c.Value != "s3cret" {
			http.Error(w, "login required", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 " + r.URL.Path))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newRunner(t *testing.T, srvURL string, b *fakeBrowser, out *bytes.Buffer) (*Runner, string) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Load()
	cfg.Portal.RootURL = srvURL
	cfg.Output.DownloadRoot = root
	launch := func(context.Context) (Browser, error) { return b, nil }
	return New(cfg, launch, out), root
}

func sessionCookie() []*proto.NetworkCookie {
	return []*proto.NetworkCookie{{Name: "sid", Value: "s3cret", Domain: "127.0.0.1", Path: "/", Session: true}}
}

func TestRun_DownloadsWithBrowserSession(t *testing.T) {
	b := &fakeBrowser{page: resultsPage, cookies: sessionCookie()}
	var openDuringDownload atomic.Bool
	srv := newPortal(t, b, &openDuringDownload)

	var out bytes.Buffer
	r, root := newRunner(t, srv.URL, b, &out)

	s, err := r.Run(context.Background(), Options{
		Query:   models.NewQuery(models.ByCode, "ucs-503"),
		Chooser: StaticChooser{},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if s.Done != 2 || s.Total != 2 {
		t.Errorf("summary = %d/%d, want 2/2", s.Done, s.Total)
	}
	if openDuringDownload.Load() {
		t.Error("download started before the browser was closed")
	}
	if got := b.closed.Load(); got != 1 {
		t.Errorf("browser closed %d times, want 1", got)
	}
	if len(b.queries) != 1 || b.queries[0].Text != "UCS503" {
		t.Errorf("queries = %+v, want one normalized UCS503 search", b.queries)
	}

	dir := filepath.Join(root, "UCS503__Software_Engineering")
	for _, name := range []string{
		"UCS503_Software_Engineering_2023_ODD_EST.pdf",
		"UCS503_Software_Engineering_2022_EVEN_MST.pdf",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}
	if !strings.Contains(out.String(), "Found 3 paper(s)") {
		t.Errorf("progress output missing record count:\n%s", out.String())
	}
}

func TestRun_MissingCookieFailsDownloads(t *testing.T) {
	b := &fakeBrowser{page: resultsPage}
	var open atomic.Bool
	srv := newPortal(t, b, &open)

	var out bytes.Buffer
	r, _ := newRunner(t, srv.URL, b, &out)

	s, err := r.Run(context.Background(), Options{Query: models.NewQuery(models.ByCode, "UCS503")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Done != 0 || s.Total != 2 {
		t.Errorf("summary = %d/%d, want 0/2", s.Done, s.Total)
	}
	if !strings.Contains(out.String(), "failed:") {
		t.Errorf("failures not reported:\n%s", out.String())
	}
}

func TestRun_ExamFilter(t *testing.T) {
	tests := []struct {
		name       string
		filter     string
		wantTotal  int
		noMatching bool
	}{
		{"all keeps everything", "all", 2, false},
		{"exact type", "MST", 1, false},
		{"no match", "Quiz", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBrowser{page: resultsPage, cookies: sessionCookie()}
			var open atomic.Bool
			srv := newPortal(t, b, &open)

			var out bytes.Buffer
			r, _ := newRunner(t, srv.URL, b, &out)
			s, err := r.Run(context.Background(), Options{
				Query:      models.NewQuery(models.ByCode, "UCS503"),
				ExamFilter: tt.filter,
			})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if s.Total != tt.wantTotal {
				t.Errorf("Total = %d, want %d", s.Total, tt.wantTotal)
			}
			if s.NoMatchingExamType != tt.noMatching {
				t.Errorf("NoMatchingExamType = %v, want %v", s.NoMatchingExamType, tt.noMatching)
			}
			if b.closed.Load() != 1 {
				t.Error("browser not closed")
			}
		})
	}
}

func TestRun_NoResults(t *testing.T) {
	tests := []struct {
		name string
		b    *fakeBrowser
	}{
		{"results timeout", &fakeBrowser{err: models.NewRunError(models.ErrCodeTimeout, "no results within 20s", nil)}},
		{"no valid rows", &fakeBrowser{page: `<html><body><table><tr><th>x</th></tr></table></body></html>`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			r, root := newRunner(t, "http://127.0.0.1:1", tt.b, &out)
			s, err := r.Run(context.Background(), Options{Query: models.NewQuery(models.ByName, "Software Engineering")})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !s.NoResults || s.Total != 0 {
				t.Errorf("summary = %+v, want NoResults", s)
			}
			if !strings.Contains(out.String(), "No results found for: Software Engineering") {
				t.Errorf("output = %q", out.String())
			}
			if tt.b.closed.Load() != 1 {
				t.Error("browser not closed")
			}
			entries, err := os.ReadDir(root)
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 0 {
				t.Errorf("download root has %d entries after a run without results, want none", len(entries))
			}
		})
	}
}

func TestRun_ChunkedDownloadsKeepSummaryOnItsOwnLine(t *testing.T) {
	b := &fakeBrowser{page: resultsPage, cookies: sessionCookie()}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 "))
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	r, root := newRunner(t, srv.URL, b, &out)
	r.WithProgress(ProgressPrinter(&out))

	s, err := r.Run(context.Background(), Options{Query: models.NewQuery(models.ByCode, "UCS503")})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	fmt.Fprintln(&out, s.Line(root))

	found := false
	for _, line := range strings.Split(out.String(), "\n") {
		if strings.HasPrefix(line, "SUCCESS:") {
			found = true
		}
	}
	if !found {
		t.Errorf("no line starts with SUCCESS:\n%q", out.String())
	}
}

func TestRun_FatalErrorsPropagate(t *testing.T) {
	b := &fakeBrowser{err: models.NewRunError(models.ErrCodeInputNotFound, "no code search input found", nil)}
	var out bytes.Buffer
	r, _ := newRunner(t, "http://127.0.0.1:1", b, &out)

	_, err := r.Run(context.Background(), Options{Query: models.NewQuery(models.ByCode, "UCS503")})
	if got := models.ErrorCode(err); got != models.ErrCodeInputNotFound {
		t.Errorf("error code = %s, want INPUT_NOT_FOUND (err=%v)", got, err)
	}
	if b.closed.Load() != 1 {
		t.Error("browser not closed after failure")
	}
}

func TestRun_StartupFailure(t *testing.T) {
	cfg := config.Load()
	launch := func(context.Context) (Browser, error) {
		return nil, models.NewRunError(models.ErrCodeStartup, "failed to launch browser", errors.New("exec: not found"))
	}
	_, err := New(cfg, launch, &bytes.Buffer{}).Run(context.Background(), Options{Query: models.NewQuery(models.ByCode, "X1")})
	if got := models.ErrorCode(err); got != models.ErrCodeStartup {
		t.Errorf("error code = %s, want STARTUP_FAILURE", got)
	}
}

// pickSecond selects only the second record and asks for a merge.
type pickSecond struct{ seen []models.PaperRecord }

func (c *pickSecond) Choose(_ context.Context, records []models.PaperRecord) (selection.Plan, error) {
	c.seen = records
	return selection.Plan{Indices: []int{2}, Merge: true}, nil
}

type countingMerger struct{ calls int }

func (m *countingMerger) Merge([]string, string) error {
	m.calls++
	return nil
}

func TestRun_ChooserDecides(t *testing.T) {
	b := &fakeBrowser{page: resultsPage, cookies: sessionCookie()}
	var open atomic.Bool
	srv := newPortal(t, b, &open)

	var out bytes.Buffer
	r, root := newRunner(t, srv.URL, b, &out)
	m := &countingMerger{}
	r.WithMerger(m)

	chooser := &pickSecond{}
	s, err := r.Run(context.Background(), Options{Query: models.NewQuery(models.ByCode, "UCS503"), Chooser: chooser})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(chooser.seen) != 3 {
		t.Errorf("chooser saw %d records, want 3", len(chooser.seen))
	}
	if s.Done != 1 || s.Total != 1 {
		t.Errorf("summary = %d/%d, want 1/1", s.Done, s.Total)
	}
	if m.calls != 0 {
		t.Error("a single downloaded file must not be merged")
	}

	var got []string
	for _, o := range s.Outcomes {
		got = append(got, filepath.Base(o.Path))
	}
	want := []string{"UCS503_Software_Engineering_2022_EVEN_MST.pdf"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(root, "UCS503__Software_Engineering", want[0])); err != nil {
		t.Error(err)
	}
}

func TestRun_CanceledChooser(t *testing.T) {
	b := &fakeBrowser{page: resultsPage}
	var out bytes.Buffer
	r, _ := newRunner(t, "http://127.0.0.1:1", b, &out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewPrompter(strings.NewReader(""), &out)
	_, err := r.Run(ctx, Options{Query: models.NewQuery(models.ByCode, "UCS503"), Chooser: p})
	if err == nil {
		t.Fatal("expected an error from a canceled prompt")
	}
	if b.closed.Load() != 1 {
		t.Error("browser not closed after cancellation")
	}
}
