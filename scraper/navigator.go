package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/use-agent/tietpapers/config"
	"github.com/use-agent/tietpapers/models"
	"golang.org/x/net/html"
)

// State is a position in the navigation sequence.
type State int

const (
	Idle State = iota
	PortalOpen
	SectionOpen
	InputLocated
	Submitted
	ResultsReady
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case PortalOpen:
		return "portal-open"
	case SectionOpen:
		return "section-open"
	case InputLocated:
		return "input-located"
	case Submitted:
		return "submitted"
	case ResultsReady:
		return "results-ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Navigator drives the portal from its start page to a results snapshot.
// Every wait is bounded by NavigatorConfig; any failure moves it to Failed,
// which is terminal.
type Navigator struct {
	s      *Scraper
	portal config.PortalConfig
	cfg    config.NavigatorConfig
	state  State
}

// NewNavigator creates a Navigator on the scraper's current page.
func NewNavigator(s *Scraper, portal config.PortalConfig, cfg config.NavigatorConfig) *Navigator {
	return &Navigator{s: s, portal: portal, cfg: cfg, state: Idle}
}

// State reports where the navigator is.
func (n *Navigator) State() State {
	return n.state
}

// Search runs the whole sequence and returns the serialized results page.
func (n *Navigator) Search(ctx context.Context, q models.Query) (string, error) {
	if err := n.OpenPortal(ctx); err != nil {
		return "", err
	}
	if err := n.OpenHistoricalSection(ctx); err != nil {
		return "", err
	}
	el, err := n.LocateInput(ctx, q.Mode)
	if err != nil {
		return "", err
	}
	if err := n.Submit(ctx, el, q.Text); err != nil {
		return "", err
	}
	return n.WaitResults(ctx, q)
}

// OpenPortal loads the portal root and waits for the document body.
func (n *Navigator) OpenPortal(ctx context.Context) error {
	if err := n.expect(Idle); err != nil {
		return err
	}
	slog.Info("opening portal", "url", n.portal.RootURL)

	p := n.s.Page().Context(ctx)
	if err := p.Navigate(n.portal.RootURL); err != nil {
		return n.fail(categorizeError(err, models.ErrCodeNavigation, "failed to open portal"))
	}
	if err := n.waitBody(ctx, n.s.Page()); err != nil {
		return n.fail(err)
	}
	n.state = PortalOpen
	return nil
}

// OpenHistoricalSection follows the old-papers link. A link with a usable
// href is loaded directly in the current page; otherwise it is clicked and
// the window it opens becomes the active page.
func (n *Navigator) OpenHistoricalSection(ctx context.Context) error {
	if err := n.expect(PortalOpen); err != nil {
		return err
	}

	chain := HistoricalLinkChain(n.portal.HistoricalLinkText)
	lctx, cancel := context.WithTimeout(ctx, n.cfg.LinkTimeout)
	page := n.s.Page()
	var loc Locator
	_, err := pollSnapshot(lctx, page.Context(lctx), n.cfg.PollInterval, func(doc *html.Node) bool {
		var ok bool
		loc, _, ok = chain.Match(doc)
		return ok
	})
	var link *rod.Element
	if err == nil {
		link, err = page.Context(lctx).ElementX(loc.XPath)
	}
	cancel()
	if err != nil {
		return n.fail(categorizeError(err, models.ErrCodeNavigation,
			fmt.Sprintf("link %q not found", n.portal.HistoricalLinkText)))
	}
	slog.Debug("located historical papers link", "strategy", loc.Name)

	target, err := n.resolveTarget(ctx, link)
	if err != nil {
		return n.fail(err)
	}
	n.s.SwitchTo(target)

	if err := n.waitBody(ctx, target); err != nil {
		return n.fail(err)
	}
	n.state = SectionOpen
	return nil
}

func (n *Navigator) resolveTarget(ctx context.Context, link *rod.Element) (*rod.Page, error) {
	page := n.s.Page()
	link = link.Context(ctx)

	if href := linkHref(link); usableHref(href) {
		slog.Info("following historical papers link", "href", href)
		if err := page.Context(ctx).Navigate(href); err != nil {
			return nil, categorizeError(err, models.ErrCodeNavigation, "failed to open historical papers section")
		}
		return page, nil
	}

	before, err := n.pageIDs()
	if err != nil {
		return nil, models.NewRunError(models.ErrCodeNavigation, "failed to list windows", err)
	}
	if err := link.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, categorizeError(err, models.ErrCodeNavigation, "failed to click historical papers link")
	}

	wctx, cancel := context.WithTimeout(ctx, n.cfg.WindowTimeout)
	defer cancel()
	ticker := time.NewTicker(n.cfg.PollInterval)
	defer ticker.Stop()

	for {
		pages, err := n.s.browser.Pages()
		if err == nil {
			for _, p := range pages {
				if _, seen := before[p.TargetID]; !seen {
					slog.Info("switched to new window", "target", p.TargetID)
					if _, aerr := p.Activate(); aerr != nil {
						slog.Debug("activate new window failed", "error", aerr)
					}
					return p, nil
				}
			}
		}
		select {
		case <-wctx.Done():
			return nil, categorizeError(wctx.Err(), models.ErrCodeNavigation, "no new window opened after clicking link")
		case <-ticker.C:
		}
	}
}

func (n *Navigator) pageIDs() (map[proto.TargetTargetID]struct{}, error) {
	pages, err := n.s.browser.Pages()
	if err != nil {
		return nil, err
	}
	ids := make(map[proto.TargetTargetID]struct{}, len(pages))
	for _, p := range pages {
		ids[p.TargetID] = struct{}{}
	}
	return ids, nil
}

// linkHref reads the resolved href property, so relative links come back
// absolute.
func linkHref(link *rod.Element) string {
	prop, err := link.Property("href")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(prop.Str())
}

// usableHref reports whether href can be loaded directly rather than clicked.
func usableHref(href string) bool {
	if href == "" {
		return false
	}
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// LocateInput waits for the search field of mode to render and resolves it
// in the live page using the first matching locator.
func (n *Navigator) LocateInput(ctx context.Context, mode models.SearchMode) (*rod.Element, error) {
	if err := n.expect(SectionOpen); err != nil {
		return nil, err
	}

	chain := InputChain(mode)
	tctx, cancel := context.WithTimeout(ctx, n.cfg.InputTimeout)
	defer cancel()

	page := n.s.Page()
	var loc Locator
	_, err := pollSnapshot(tctx, page.Context(tctx), n.cfg.PollInterval, func(doc *html.Node) bool {
		var ok bool
		loc, _, ok = chain.Match(doc)
		return ok
	})
	if err != nil {
		return nil, n.fail(categorizeError(err, models.ErrCodeInputNotFound,
			fmt.Sprintf("no %s search input found", mode)))
	}

	el, err := page.Context(tctx).ElementX(loc.XPath)
	if err != nil {
		return nil, n.fail(categorizeError(err, models.ErrCodeInputNotFound,
			fmt.Sprintf("%s search input vanished", mode)))
	}
	slog.Info("located search input", "mode", mode.String(), "strategy", loc.Name)
	n.state = InputLocated
	return el, nil
}

// Submit types the query into el and sends the form.
func (n *Navigator) Submit(ctx context.Context, el *rod.Element, text string) error {
	if err := n.expect(InputLocated); err != nil {
		return err
	}
	if err := fillInput(ctx, el, text); err != nil {
		return n.fail(categorizeError(err, models.ErrCodeSubmission, "failed to type query"))
	}

	strategy, err := runSubmitStrategies(ctx, n.s.Page(), el, n.submitStrategies())
	if err != nil {
		return n.fail(categorizeError(err, models.ErrCodeSubmission, "could not submit search form"))
	}
	slog.Info("search submitted", "strategy", strategy, "query", text)
	n.state = Submitted
	return nil
}

// WaitResults waits out any loading indicator, then polls until one results
// signal holds. On expiry the page is classified and RESULTS_TIMEOUT returned.
func (n *Navigator) WaitResults(ctx context.Context, q models.Query) (string, error) {
	if err := n.expect(Submitted); err != nil {
		return "", err
	}
	page := n.s.Page()

	for _, xpath := range loadingIndicators {
		lctx, cancel := context.WithTimeout(ctx, n.cfg.LoadingTimeout)
		_, err := pollSnapshot(lctx, page.Context(lctx), n.cfg.PollInterval, func(doc *html.Node) bool {
			return !present(doc, xpath)
		})
		cancel()
		if err != nil && ctx.Err() != nil {
			return "", n.fail(categorizeError(ctx.Err(), models.ErrCodeTimeout, "canceled while waiting for results"))
		}
	}

	slog.Info("waiting for search results", "query", q.Text)
	signals := ResultSignals(n.portal.ResultsBanner, q.Text)
	var hit string

	rctx, cancel := context.WithTimeout(ctx, n.cfg.ResultsTimeout)
	defer cancel()
	snap, err := pollSnapshot(rctx, page.Context(rctx), n.cfg.PollInterval, func(doc *html.Node) bool {
		var ok bool
		hit, ok = FirstSignal(doc, signals)
		return ok
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", n.fail(categorizeError(ctx.Err(), models.ErrCodeTimeout, "canceled while waiting for results"))
		}
		reason := classifyTimeout(snap.doc)
		slog.Warn("no results signal", "query", q.Text, "reason", reason)
		return "", n.fail(models.NewRunError(models.ErrCodeTimeout,
			fmt.Sprintf("no results within %s: %s", n.cfg.ResultsTimeout, reason), err))
	}

	slog.Info("results ready", "signal", hit)
	n.state = ResultsReady
	return snap.raw, nil
}

// waitBody blocks until page has a <body>, bounded by PageLoadTimeout.
func (n *Navigator) waitBody(ctx context.Context, page *rod.Page) error {
	tctx, cancel := context.WithTimeout(ctx, n.cfg.PageLoadTimeout)
	defer cancel()
	if _, err := page.Context(tctx).Element("body"); err != nil {
		return categorizeError(err, models.ErrCodeNavigation, "page did not finish loading")
	}
	return nil
}

func (n *Navigator) expect(want State) error {
	if n.state != want {
		return models.NewRunError(models.ErrCodeInternal,
			fmt.Sprintf("navigator is %s, expected %s", n.state, want), nil)
	}
	return nil
}

func (n *Navigator) fail(err error) error {
	n.state = Failed
	return err
}

// categorizeError wraps err with code, noting timeouts and cancellation in
// the message.
func categorizeError(err error, code, msg string) *models.RunError {
	var re *models.RunError
	if errors.As(err, &re) {
		return re
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewRunError(code, msg+" (timed out)", err)
	case errors.Is(err, context.Canceled):
		return models.NewRunError(code, msg+" (canceled)", err)
	default:
		return models.NewRunError(code, msg, err)
	}
}
