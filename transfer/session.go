// Package transfer hands the browser's authenticated identity to a plain
// HTTP client so downloads can run after the browser is closed.
package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod/lib/proto"
	tls "github.com/refraction-networking/utls"
	"github.com/use-agent/tietpapers/config"
	"golang.org/x/net/publicsuffix"
)

// chromeH1Spec builds a Chrome-like TLS ClientHello with ALPN forced to
// http/1.1 only. A fresh spec is built per connection because ApplyPreset
// takes ownership of its extensions.
func chromeH1Spec() (*tls.ClientHelloSpec, error) {
	spec, err := tls.UTLSIdToSpec(tls.HelloChrome_Auto)
	if err != nil {
		return nil, err
	}
	// http.Transport cannot speak h2 over a utls conn.
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}
	return &spec, nil
}

// Session is a point-in-time copy of the browser's cookies bound to an HTTP
// client. Cookie changes in the browser after the snapshot are not seen.
type Session struct {
	client    *http.Client
	userAgent string
	cookies   int
}

// NewSession snapshots cookies into a fresh jar and builds the client.
//
// When cfg.InsecureSkipVerify is set the client accepts the portal's invalid
// or self-signed certificate. The setting lives on this client only.
func NewSession(cookies []*proto.NetworkCookie, cfg config.TransferConfig) (*Session, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("transfer: create cookie jar: %w", err)
	}

	n := 0
	for _, c := range cookies {
		if c == nil || c.Domain == "" {
			continue
		}
		u, hc := toHTTPCookie(c)
		jar.SetCookies(u, []*http.Cookie{hc})
		n++
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = config.DefaultUserAgent
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialTLSChrome(ctx, network, addr, cfg.InsecureSkipVerify)
		},
		ForceAttemptHTTP2:   false,
		TLSHandshakeTimeout: 15 * time.Second,
	}

	slog.Debug("transfer session created",
		"cookies", n,
		"insecureSkipVerify", cfg.InsecureSkipVerify,
	)

	return &Session{
		client: &http.Client{
			Jar:       jar,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				req.Header.Set("User-Agent", ua)
				return nil
			},
		},
		userAgent: ua,
		cookies:   n,
	}, nil
}

// toHTTPCookie converts a CDP cookie and returns the URL it should be stored
// under. CDP marks domain cookies with a leading dot; anything else is
// host-only.
func toHTTPCookie(c *proto.NetworkCookie) (*url.URL, *http.Cookie) {
	host := strings.TrimPrefix(c.Domain, ".")
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	path := c.Path
	if path == "" {
		path = "/"
	}

	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     path,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
	if strings.HasPrefix(c.Domain, ".") {
		hc.Domain = host
	}
	if !c.Session && c.Expires > 0 {
		hc.Expires = c.Expires.Time()
	}
	return &url.URL{Scheme: scheme, Host: host, Path: "/"}, hc
}

// Get issues a GET carrying the snapshot cookies and the browser user agent.
func (s *Session) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("transfer: build request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/pdf,application/octet-stream;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transfer: request failed: %w", err)
	}
	return resp, nil
}

// CookieCount is the number of cookies copied from the browser.
func (s *Session) CookieCount() int {
	return s.cookies
}

// Close releases idle connections.
func (s *Session) Close() {
	s.client.CloseIdleConnections()
}

// dialTLSChrome establishes a TLS connection using a Chrome fingerprint via utls.
func dialTLSChrome(ctx context.Context, network, addr string, insecure bool) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	rawConn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}

	host, _, _ := net.SplitHostPort(addr)
	cfg := &tls.Config{
		ServerName:         host,
		InsecureSkipVerify: insecure,
	}

	var tlsConn *tls.UConn
	if spec, specErr := chromeH1Spec(); specErr == nil {
		tlsConn = tls.UClient(rawConn, cfg, tls.HelloCustom)
		if err := tlsConn.ApplyPreset(spec); err != nil {
			rawConn.Close()
			return nil, fmt.Errorf("transfer: apply tls spec: %w", err)
		}
	} else {
		cfg.NextProtos = []string{"http/1.1"}
		tlsConn = tls.UClient(rawConn, cfg, tls.HelloGolang)
	}

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, err
	}
	return tlsConn, nil
}
