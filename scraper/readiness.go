package scraper

import (
	"context"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Signal is one independent predicate meaning "results have rendered".
type Signal struct {
	Name  string
	Holds func(doc *html.Node) bool
}

// ResultSignals returns the readiness predicates for a submitted query. Any
// one of them is enough.
func ResultSignals(banner, query string) []Signal {
	return []Signal{
		{Name: "banner", Holds: func(doc *html.Node) bool { return hasBanner(doc, banner) }},
		{Name: "query-row", Holds: func(doc *html.Node) bool { return hasQueryRow(doc, query) }},
		{Name: "table-rows", Holds: hasDataRows},
	}
}

// FirstSignal reports the name of the first predicate that holds.
func FirstSignal(doc *html.Node, signals []Signal) (string, bool) {
	for _, s := range signals {
		if s.Holds(doc) {
			return s.Name, true
		}
	}
	return "", false
}

const dataRowXPath = "//table//tr[td]"

func hasBanner(doc *html.Node, banner string) bool {
	if banner == "" {
		return false
	}
	return strings.Contains(collapse(htmlquery.InnerText(doc)), collapse(banner))
}

// hasQueryRow looks for a table row whose first cell equals the query.
func hasQueryRow(doc *html.Node, query string) bool {
	if query == "" {
		return false
	}
	for _, row := range htmlquery.Find(doc, dataRowXPath) {
		first := htmlquery.FindOne(row, "./td[1]")
		if first != nil && collapse(htmlquery.InnerText(first)) == query {
			return true
		}
	}
	return false
}

// hasDataRows is the weakest signal: more than one row with data cells.
func hasDataRows(doc *html.Node) bool {
	return len(htmlquery.Find(doc, dataRowXPath)) > 1
}

// loadingIndicators match spinners and "please wait" placeholders.
var loadingIndicators = []string{
	"//div[contains(@class, 'loading')]",
	"//div[contains(@id, 'loading')]",
	"//*[contains(text(), 'Loading')]",
	"//*[contains(text(), 'Please wait')]",
}

func present(doc *html.Node, xpath string) bool {
	return htmlquery.FindOne(doc, xpath) != nil
}

// classifyTimeout describes a page that produced no results signal.
func classifyTimeout(doc *html.Node) string {
	if doc == nil {
		return "page could not be read"
	}
	text := strings.ToLower(htmlquery.InnerText(doc))
	switch {
	case strings.Contains(text, "no results") || strings.Contains(text, "no data"):
		return "page indicates no results found"
	case strings.Contains(text, "error"):
		return "page shows an error"
	default:
		return "page loaded but no clear results indicator found"
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// snapshotter yields the current serialized DOM. *rod.Page satisfies it.
type snapshotter interface {
	HTML() (string, error)
}

// snapshot is one parsed capture of the page.
type snapshot struct {
	raw string
	doc *html.Node
}

// pollSnapshot captures src every interval until cond holds or ctx ends. Read
// and parse failures are treated as transient: the page may be mid-navigation.
// The last good snapshot is returned together with ctx's error on expiry.
func pollSnapshot(ctx context.Context, src snapshotter, interval time.Duration, cond func(*html.Node) bool) (snapshot, error) {
	var last snapshot
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if raw, err := src.HTML(); err == nil {
			if doc, perr := htmlquery.Parse(strings.NewReader(raw)); perr == nil {
				last = snapshot{raw: raw, doc: doc}
				if cond(doc) {
					return last, nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}
