package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Portal    PortalConfig
	Browser   BrowserConfig
	Navigator NavigatorConfig
	Transfer  TransferConfig
	Output    OutputConfig
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Webhook   WebhookConfig
	Log       LogConfig
}

// PortalConfig describes the remote portal being automated.
type PortalConfig struct {
	// RootURL is the portal start page and the base for relative links.
	RootURL string // default: "https://cl.thapar.edu"

	// HistoricalLinkText is the visible text of the old-papers link.
	HistoricalLinkText string // default: "Old Question Papers"

	// ResultsBanner is the text the portal renders above matching results.
	ResultsBanner string // default: "These results matches your search criteria"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: true

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// Stealth injects anti-automation-detection evasions before navigation.
	Stealth bool // default: false

	// BlockedResourceTypes lists resource types to block.
	// default: ["Image", "Font", "Media"]
	BlockedResourceTypes []string

	// BlockTrackers drops requests to well-known analytics hosts.
	BlockTrackers bool // default: true
}

// NavigatorConfig bounds every wait inside the navigation state machine.
type NavigatorConfig struct {
	// PageLoadTimeout bounds the wait for <body> after navigation.
	PageLoadTimeout time.Duration // default: 30s

	// LinkTimeout bounds the search for the historical-papers link.
	LinkTimeout time.Duration // default: 20s

	// WindowTimeout bounds the wait for a newly opened window.
	WindowTimeout time.Duration // default: 10s

	// InputTimeout bounds the wait for a search input to appear.
	InputTimeout time.Duration // default: 30s

	// ClickableTimeout bounds the wait for a submit control to become clickable.
	ClickableTimeout time.Duration // default: 10s

	// LoadingTimeout bounds each best-effort wait for a loading indicator to vanish.
	LoadingTimeout time.Duration // default: 5s

	// ResultsTimeout bounds the poll for a results signal.
	ResultsTimeout time.Duration // default: 20s

	// PollInterval is the delay between readiness polls.
	PollInterval time.Duration // default: 250ms
}

// TransferConfig controls the plain HTTP client used for downloads.
type TransferConfig struct {
	// UserAgent is sent on every download request.
	UserAgent string

	// InsecureSkipVerify disables certificate validation for the portal.
	InsecureSkipVerify bool // default: true

	// RequestTimeout bounds a single file transfer.
	RequestTimeout time.Duration // default: 60s
}

// OutputConfig controls where files land.
type OutputConfig struct {
	// DownloadRoot is the directory that receives per-course folders.
	// default: ~/Downloads/ThaparPapers
	DownloadRoot string
}

// ServerConfig controls the HTTP wrapper.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8000
	Mode string // "debug", "release", "test"; default: "release"

	// CLIPath is the tietpapers binary spawned per request.
	CLIPath string // default: "tietpapers"

	// RunTimeout bounds each spawned run.
	RunTimeout time.Duration // default: 120s
}

// AuthConfig controls API key authentication on the wrapper.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-client rate limiting on the wrapper.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per client.
	RequestsPerSecond float64 // default: 0.5

	// Burst is the maximum burst size per client.
	Burst int // default: 2
}

// CacheConfig controls the wrapper's recent-run cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached run outputs.
	MaxEntries int // default: 100

	// MaxAge is how long a cached output is served. Zero disables caching.
	MaxAge time.Duration // default: 0
}

// WebhookConfig controls run-completion notifications from the wrapper.
type WebhookConfig struct {
	// URL receives a signed POST when a run finishes. Empty disables it.
	URL string

	// Secret signs webhook bodies with HMAC-SHA256.
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "text"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Portal: PortalConfig{
			RootURL:            envOr("TIETPAPERS_ROOT_URL", "https://cl.thapar.edu"),
			HistoricalLinkText: envOr("TIETPAPERS_LINK_TEXT", "Old Question Papers"),
			ResultsBanner:      envOr("TIETPAPERS_RESULTS_BANNER", "These results matches your search criteria"),
		},
		Browser: BrowserConfig{
			Headless:   envBoolOr("TIETPAPERS_HEADLESS", true),
			NoSandbox:  envBoolOr("TIETPAPERS_NO_SANDBOX", true),
			BrowserBin: os.Getenv("TIETPAPERS_BROWSER_BIN"),
			Stealth:    envBoolOr("TIETPAPERS_STEALTH", false),
			BlockedResourceTypes: envSliceOr("TIETPAPERS_BLOCKED_RESOURCES", []string{
				"Image", "Font", "Media",
			}),
			BlockTrackers: envBoolOr("TIETPAPERS_BLOCK_TRACKERS", true),
		},
		Navigator: NavigatorConfig{
			PageLoadTimeout:  envDurationOr("TIETPAPERS_PAGE_TIMEOUT", 30*time.Second),
			LinkTimeout:      envDurationOr("TIETPAPERS_LINK_TIMEOUT", 20*time.Second),
			WindowTimeout:    envDurationOr("TIETPAPERS_WINDOW_TIMEOUT", 10*time.Second),
			InputTimeout:     envDurationOr("TIETPAPERS_INPUT_TIMEOUT", 30*time.Second),
			ClickableTimeout: envDurationOr("TIETPAPERS_CLICK_TIMEOUT", 10*time.Second),
			LoadingTimeout:   envDurationOr("TIETPAPERS_LOADING_TIMEOUT", 5*time.Second),
			ResultsTimeout:   envDurationOr("TIETPAPERS_RESULTS_TIMEOUT", 20*time.Second),
			PollInterval:     envDurationOr("TIETPAPERS_POLL_INTERVAL", 250*time.Millisecond),
		},
		Transfer: TransferConfig{
			UserAgent:          envOr("TIETPAPERS_USER_AGENT", DefaultUserAgent),
			InsecureSkipVerify: envBoolOr("TIETPAPERS_INSECURE_TLS", true),
			RequestTimeout:     envDurationOr("TIETPAPERS_REQUEST_TIMEOUT", 60*time.Second),
		},
		Output: OutputConfig{
			DownloadRoot: envOr("TIETPAPERS_DOWNLOAD_DIR", defaultDownloadRoot()),
		},
		Server: ServerConfig{
			Host:       envOr("TIETPAPERS_HOST", "0.0.0.0"),
			Port:       envIntOr("TIETPAPERS_PORT", 8000),
			Mode:       envOr("TIETPAPERS_MODE", "release"),
			CLIPath:    envOr("TIETPAPERS_CLI", "tietpapers"),
			RunTimeout: envDurationOr("TIETPAPERS_RUN_TIMEOUT", 120*time.Second),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("TIETPAPERS_AUTH_ENABLED", false),
			APIKeys: envSliceOr("TIETPAPERS_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("TIETPAPERS_RATE_RPS", 0.5),
			Burst:             envIntOr("TIETPAPERS_RATE_BURST", 2),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("TIETPAPERS_CACHE_MAX_ENTRIES", 100),
			MaxAge:     envDurationOr("TIETPAPERS_CACHE_MAX_AGE", 0),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("TIETPAPERS_WEBHOOK_URL"),
			Secret: os.Getenv("TIETPAPERS_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("TIETPAPERS_LOG_LEVEL", "info"),
			Format: envOr("TIETPAPERS_LOG_FORMAT", "text"),
		},
	}
}

// DefaultUserAgent is a conventional desktop Chrome user agent.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

func defaultDownloadRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "ThaparPapers")
	}
	return filepath.Join(home, "Downloads", "ThaparPapers")
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
