package scraper

import (
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/use-agent/tietpapers/models"
	"golang.org/x/net/html"
)

func parse(t *testing.T, s string) *html.Node {
	t.Helper()
	doc, err := htmlquery.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

const searchForm = `<html><body>
<form action="/search" method="post">
  <input type="hidden" name="__codeview" value="x">
  <label>Course Code:</label> <input type="text" id="txt1">
  <label>Course Name</label> <input id="txt2">
  <input type="submit" value="Search">
</form>
<input type="text" id="outside">
<input type="submit" value="Submit Feedback">
</body></html>`

func TestInputChain_LabelWins(t *testing.T) {
	doc := parse(t, searchForm)

	tests := []struct {
		mode   models.SearchMode
		wantID string
	}{
		{models.ByCode, "txt1"},
		{models.ByName, "txt2"},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String(), func(t *testing.T) {
			loc, node, ok := InputChain(tt.mode).Match(doc)
			if !ok {
				t.Fatal("no locator matched")
			}
			if loc.Name != "label" {
				t.Errorf("strategy = %q, want label", loc.Name)
			}
			if got := htmlquery.SelectAttr(node, "id"); got != tt.wantID {
				t.Errorf("matched id = %q, want %q", got, tt.wantID)
			}
		})
	}
}

func TestInputChain_Fallbacks(t *testing.T) {
	tests := []struct {
		name     string
		page     string
		mode     models.SearchMode
		strategy string
		wantAttr string
	}{
		{
			name:     "placeholder",
			page:     `<input type="text" placeholder="Enter Course CODE">`,
			mode:     models.ByCode,
			strategy: "placeholder",
			wantAttr: "Enter Course CODE",
		},
		{
			name:     "name attribute skips hidden",
			page:     `<input type="hidden" name="code_state"><input name="subjectCode" placeholder="x">`,
			mode:     models.ByCode,
			strategy: "name",
			wantAttr: "x",
		},
		{
			name:     "id attribute",
			page:     `<input id="ctl00_CourseName" placeholder="y">`,
			mode:     models.ByName,
			strategy: "id",
			wantAttr: "y",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parse(t, "<html><body>"+tt.page+"</body></html>")
			loc, node, ok := InputChain(tt.mode).Match(doc)
			if !ok {
				t.Fatal("no locator matched")
			}
			if loc.Name != tt.strategy {
				t.Errorf("strategy = %q, want %q", loc.Name, tt.strategy)
			}
			if got := htmlquery.SelectAttr(node, "placeholder"); got != tt.wantAttr {
				t.Errorf("matched placeholder = %q, want %q", got, tt.wantAttr)
			}
		})
	}
}

func TestInputChain_NoMatch(t *testing.T) {
	doc := parse(t, `<html><body><input type="text" id="q"><input type="submit"></body></html>`)
	if loc, _, ok := InputChain(models.ByCode).Match(doc); ok {
		t.Errorf("unexpected match via %q", loc.Name)
	}
}

func TestFormSubmitFor(t *testing.T) {
	doc := parse(t, searchForm)

	inForm := htmlquery.FindOne(doc, "//input[@id='txt1']")
	btn := formSubmitFor(inForm)
	if btn == nil {
		t.Fatal("no submit control found in form")
	}
	if got := htmlquery.SelectAttr(btn, "value"); got != "Search" {
		t.Errorf("submit value = %q, want Search", got)
	}

	outside := htmlquery.FindOne(doc, "//input[@id='outside']")
	if formSubmitFor(outside) != nil {
		t.Error("input outside a form should have no form submit control")
	}
}

func TestFormSubmitFor_UntypedButton(t *testing.T) {
	doc := parse(t, `<html><body><form><input id="q"><button>Go</button></form></body></html>`)
	btn := formSubmitFor(htmlquery.FindOne(doc, "//input[@id='q']"))
	if btn == nil || htmlquery.InnerText(btn) != "Go" {
		t.Errorf("untyped button should submit its form, got %v", btn)
	}
}

func TestPageSubmitXPath(t *testing.T) {
	doc := parse(t, `<html><body><a href="/">Home</a><button class="x">SUBMIT</button><button>Reset</button></body></html>`)
	nodes := htmlquery.Find(doc, pageSubmitXPath)
	if len(nodes) != 1 {
		t.Fatalf("page submit matched %d nodes, want exactly 1", len(nodes))
	}
	if htmlquery.SelectAttr(nodes[0], "class") != "x" {
		t.Errorf("matched the wrong control: %s", htmlquery.OutputHTML(nodes[0], true))
	}
}

func TestHistoricalLinkChain(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantID       string
		wantStrategy string
	}{
		{
			name: "exact text preferred over earlier partial match",
			body: `<a id="a" href="/archive">Old Question Papers Archive</a>
				<a id="b" href="#">  Old Question   Papers </a>`,
			wantID:       "b",
			wantStrategy: "exact-text",
		},
		{
			name:         "label inside longer text",
			body:         `<a id="c" href="/old">Old Question Papers (2010 onwards)</a>`,
			wantID:       "c",
			wantStrategy: "partial-text",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := parse(t, "<html><body>"+tt.body+"</body></html>")
			loc, node, ok := HistoricalLinkChain("Old Question Papers").Match(doc)
			if !ok {
				t.Fatal("link not found")
			}
			if loc.Name != tt.wantStrategy {
				t.Errorf("strategy = %q, want %q", loc.Name, tt.wantStrategy)
			}
			if got := htmlquery.SelectAttr(node, "id"); got != tt.wantID {
				t.Errorf("matched link %q, want %q", got, tt.wantID)
			}
		})
	}

	doc := parse(t, `<html><body><a href="/news">Question Bank</a></body></html>`)
	if _, _, ok := HistoricalLinkChain("Old Question Papers").Match(doc); ok {
		t.Error("unrelated link matched")
	}
}

func TestXPathLiteral(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"course code", "'course code'"},
		{"it's", `"it's"`},
		{`a'b"c`, `concat('a', "'", 'b"c')`},
		{`'x"`, `concat("'", 'x"')`},
	}
	for _, tt := range tests {
		if got := xpathLiteral(tt.in); got != tt.want {
			t.Errorf("xpathLiteral(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}

	// The quoted form must round-trip through an XPath engine.
	doc := parse(t, `<html><body><p>a'b"c</p></body></html>`)
	if htmlquery.FindOne(doc, "//p[.="+xpathLiteral(`a'b"c`)+"]") == nil {
		t.Error("concat literal did not match its own text")
	}
}

func TestUsableHref(t *testing.T) {
	tests := []struct {
		href string
		want bool
	}{
		{"https://cl.thapar.edu/oldpapers.php", true},
		{"http://portal.example/x", true},
		{"", false},
		{"javascript:void(0)", false},
		{"#", false},
		{"/relative/only", false},
	}
	for _, tt := range tests {
		if got := usableHref(tt.href); got != tt.want {
			t.Errorf("usableHref(%q) = %v, want %v", tt.href, got, tt.want)
		}
	}
}
