package scraper

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/use-agent/tietpapers/models"
	"golang.org/x/net/html"
)

const (
	upperAZ = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lowerAZ = "abcdefghijklmnopqrstuvwxyz"
)

// lowerOf wraps an XPath expression in a case-folding translate().
func lowerOf(expr string) string {
	return fmt.Sprintf("translate(%s, '%s', '%s')", expr, upperAZ, lowerAZ)
}

// Locator is one named XPath strategy for finding an element.
type Locator struct {
	Name  string
	XPath string
}

// Chain is an ordered list of locators; the first one that matches wins.
type Chain []Locator

// Match evaluates the chain against a parsed snapshot and returns the first
// locator with at least one hit.
func (c Chain) Match(doc *html.Node) (Locator, *html.Node, bool) {
	for _, loc := range c {
		nodes, err := htmlquery.QueryAll(doc, loc.XPath)
		if err != nil || len(nodes) == 0 {
			continue
		}
		return loc, nodes[0], true
	}
	return Locator{}, nil, false
}

// editableInput excludes inputs that can never hold a typed query.
const editableInput = "not(@type='hidden' or @type='submit' or @type='button' or @type='checkbox' or @type='radio')"

// textInput matches inputs the browser renders as a text box.
const textInput = "(not(@type) or @type='text' or @type='search')"

// inputChain builds the fallback chain for a field described by label text and
// an attribute keyword: the input following a matching label, then inputs
// whose placeholder, name or id contain the keyword.
func inputChain(label, keyword string) Chain {
	kw := xpathLiteral(keyword)
	return Chain{
		{
			Name: "label",
			XPath: fmt.Sprintf("//label[contains(%s, %s)]/following::input[%s][1]",
				lowerOf("normalize-space(.)"), xpathLiteral(label), textInput),
		},
		{
			Name:  "placeholder",
			XPath: fmt.Sprintf("//input[%s][contains(%s, %s)]", editableInput, lowerOf("@placeholder"), kw),
		},
		{
			Name:  "name",
			XPath: fmt.Sprintf("//input[%s][contains(%s, %s)]", editableInput, lowerOf("@name"), kw),
		},
		{
			Name:  "id",
			XPath: fmt.Sprintf("//input[%s][contains(%s, %s)]", editableInput, lowerOf("@id"), kw),
		},
	}
}

var (
	codeInputChain = inputChain("course code", "code")
	nameInputChain = inputChain("course name", "name")
)

// InputChain returns the locator chain for the search field of mode.
func InputChain(mode models.SearchMode) Chain {
	if mode == models.ByName {
		return nameInputChain
	}
	return codeInputChain
}

// submitInput and submitButton match controls that submit a form, either by
// type or because their caption says "submit".
var (
	submitInput  = fmt.Sprintf("input[@type='submit' or contains(%s, 'submit')]", lowerOf("@value"))
	submitButton = fmt.Sprintf("button[@type='submit' or contains(%s, 'submit')]", lowerOf("normalize-space(.)"))

	// formSubmitXPath is evaluated relative to the input's enclosing form. A
	// button without a type attribute submits its form.
	formSubmitXPath = fmt.Sprintf(".//%s | .//button[not(@type)] | .//%s", submitInput, submitButton)

	// pageSubmitXPath is the page-wide fallback.
	pageSubmitXPath = fmt.Sprintf("(//%s | //%s)[1]", submitInput, submitButton)
)

const enclosingFormXPath = "ancestor::form[1]"

// formSubmitFor finds the submit control in the form enclosing input, if any.
func formSubmitFor(input *html.Node) *html.Node {
	form := htmlquery.FindOne(input, enclosingFormXPath)
	if form == nil {
		return nil
	}
	return htmlquery.FindOne(form, formSubmitXPath)
}

// HistoricalLinkChain finds the old-papers anchor: an exact text match first,
// then any anchor whose text contains the label.
func HistoricalLinkChain(text string) Chain {
	lit := xpathLiteral(strings.TrimSpace(text))
	return Chain{
		{Name: "exact-text", XPath: fmt.Sprintf("//a[normalize-space(.)=%s]", lit)},
		{Name: "partial-text", XPath: fmt.Sprintf("//a[contains(normalize-space(.), %s)]", lit)},
	}
}

// xpathLiteral quotes s as an XPath 1.0 string literal. XPath 1.0 has no
// escapes, so strings holding both quote kinds are built with concat().
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		if p != "" {
			quoted = append(quoted, "'"+p+"'")
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
