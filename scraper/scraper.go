package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/tietpapers/config"
	"github.com/use-agent/tietpapers/models"
	"github.com/ysmood/gson"
)

// Scraper owns the controlled browser instance for one run. It is not safe
// for concurrent use: a run drives exactly one page at a time.
type Scraper struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	router   *rod.HijackRouter
	page     *rod.Page

	portal config.PortalConfig
	navCfg config.NavigatorConfig

	closeOnce sync.Once
}

// NewScraper creates downloadDir, launches a browser that saves downloads
// there without prompting, and opens a blank page. Any failure is a
// STARTUP_FAILURE; a missing or incompatible browser is not retried.
func NewScraper(cfg *config.Config, downloadDir string) (*Scraper, error) {
	if err := os.MkdirAll(downloadDir, 0o755); err != nil {
		return nil, models.NewRunError(models.ErrCodeStartup, "failed to create download directory", err)
	}

	l := launcher.New().
		Headless(cfg.Browser.Headless).
		NoSandbox(cfg.Browser.NoSandbox)

	if cfg.Browser.BrowserBin != "" {
		l = l.Bin(cfg.Browser.BrowserBin)
	}

	l.Set(flags.Flag("disable-gpu"))
	l.Set(flags.Flag("disable-software-rasterizer"))
	l.Set(flags.Flag("disable-dev-shm-usage"))
	l.Set(flags.Flag("disable-extensions"))
	l.Set(flags.Flag("disable-background-timer-throttling"))
	l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	l.Set(flags.Flag("disable-renderer-backgrounding"))
	l.Set(flags.Flag("disable-ipc-flooding-protection"))
	l.Set(flags.Flag("disable-features"), "TranslateUI")
	l.Set(flags.Flag("window-size"), "1400,1000")
	l.Set(flags.Flag("log-level"), "3")
	l.Set(flags.Flag("no-first-run"))

	controlURL, err := l.Launch()
	if err != nil {
		return nil, models.NewRunError(models.ErrCodeStartup, "failed to launch browser", err)
	}
	slog.Info("browser launched", "controlURL", controlURL, "headless", cfg.Browser.Headless)

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, models.NewRunError(models.ErrCodeStartup, "failed to connect to browser", err)
	}

	s := &Scraper{
		browser:  browser,
		launcher: l,
		portal:   cfg.Portal,
		navCfg:   cfg.Navigator,
	}

	if err := (proto.BrowserSetDownloadBehavior{
		Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
		DownloadPath: downloadDir,
	}).Call(browser); err != nil {
		s.Close()
		return nil, models.NewRunError(models.ErrCodeStartup, "failed to configure downloads", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		s.Close()
		return nil, models.NewRunError(models.ErrCodeStartup, "failed to open page", err)
	}
	s.page = page

	if cfg.Browser.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		}
	}

	_ = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(map[string]string{"Accept-Language": "en-US,en;q=0.9"}),
	}.Call(page)

	s.router = setupHijack(browser, cfg.Browser.BlockedResourceTypes, cfg.Browser.BlockTrackers)

	return s, nil
}

// Page returns the page the portal currently lives in.
func (s *Scraper) Page() *rod.Page {
	return s.page
}

// SwitchTo makes p the active page, e.g. after the portal opened a new window.
func (s *Scraper) SwitchTo(p *rod.Page) {
	s.page = p
}

// Search drives the portal from its start page to a results snapshot.
func (s *Scraper) Search(ctx context.Context, q models.Query) (string, error) {
	nav := NewNavigator(s, s.portal, s.navCfg)
	raw, err := nav.Search(ctx, q)
	slog.Debug("navigation ended", "state", nav.State().String(), "error", err)
	return raw, err
}

// Cookies snapshots every cookie the browser holds.
func (s *Scraper) Cookies() ([]*proto.NetworkCookie, error) {
	cookies, err := s.browser.GetCookies()
	if err != nil {
		return nil, fmt.Errorf("scraper: read cookies: %w", err)
	}
	return cookies, nil
}

// Close stops request interception, closes the browser and kills its
// process. It is safe to call more than once.
func (s *Scraper) Close() {
	s.closeOnce.Do(func() {
		if s.router != nil {
			_ = s.router.Stop()
		}
		slog.Info("closing browser")
		if err := s.browser.Close(); err != nil {
			slog.Warn("browser close failed, killing process", "error", err)
		}
		s.launcher.Kill()
		s.launcher.Cleanup()
	})
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
