package scraper

import (
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// configToProto maps human-readable config strings to Rod protocol resource types.
var configToProto = map[string]proto.NetworkResourceType{
	"Image":      proto.NetworkResourceTypeImage,
	"Stylesheet": proto.NetworkResourceTypeStylesheet,
	"Font":       proto.NetworkResourceTypeFont,
	"Media":      proto.NetworkResourceTypeMedia,
}

// trackerDomains are analytics hosts the portal pages pull in and that
// contribute nothing to navigation.
var trackerDomains = map[string]struct{}{
	"google-analytics.com":  {},
	"googletagmanager.com":  {},
	"googletagservices.com": {},
	"doubleclick.net":       {},
	"facebook.net":          {},
	"hotjar.com":            {},
	"clarity.ms":            {},
	"scorecardresearch.com": {},
}

// isTrackerDomain checks host and each of its parent domains.
func isTrackerDomain(host string) bool {
	host = strings.ToLower(host)
	for {
		if _, ok := trackerDomains[host]; ok {
			return true
		}
		idx := strings.IndexByte(host, '.')
		if idx < 0 {
			return false
		}
		host = host[idx+1:]
	}
}

// blockRule decides whether a request is dropped before it leaves the browser.
// Scripts and documents are never blocked: the portal builds its search form
// with inline script.
type blockRule struct {
	types    map[proto.NetworkResourceType]struct{}
	trackers bool
}

func newBlockRule(blockedTypes []string, trackers bool) blockRule {
	types := make(map[proto.NetworkResourceType]struct{}, len(blockedTypes))
	for _, name := range blockedTypes {
		if rt, ok := configToProto[name]; ok {
			types[rt] = struct{}{}
		}
	}
	return blockRule{types: types, trackers: trackers}
}

func (r blockRule) empty() bool {
	return len(r.types) == 0 && !r.trackers
}

func (r blockRule) blocks(rt proto.NetworkResourceType, rawURL string) bool {
	if _, ok := r.types[rt]; ok {
		return true
	}
	if r.trackers {
		if u, err := url.Parse(rawURL); err == nil && isTrackerDomain(u.Hostname()) {
			return true
		}
	}
	return false
}

// setupHijack installs a browser-wide interceptor so windows the portal opens
// later are covered too. Returns nil if there is nothing to block; otherwise
// the caller must Stop the returned router.
func setupHijack(browser *rod.Browser, blockedTypes []string, trackers bool) *rod.HijackRouter {
	rule := newBlockRule(blockedTypes, trackers)
	if rule.empty() {
		return nil
	}

	router := browser.HijackRequests()
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if rule.blocks(ctx.Request.Type(), ctx.Request.URL().String()) {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks until Stop.
	go router.Run()

	return router
}
