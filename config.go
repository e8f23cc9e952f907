package gemini

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public Gemini API host.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	// DefaultAPIVersion is the API version segment used in endpoint URLs.
	DefaultAPIVersion = "v1beta"
)

// Environment variables read by NewFromEnv.
const (
	EnvAPIKey     = "GEMINI_API_KEY"
	EnvBaseURL    = "GEMINI_BASE_URL"
	EnvAPIVersion = "GEMINI_API_VERSION"
)

// Config holds client configuration.
type Config struct {
	// APIKey is sent as x-goog-api-key (required).
	APIKey string

	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// APIVersion defaults to DefaultAPIVersion.
	APIVersion string

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Headers are added to every request.
	Headers http.Header

	// Timeout bounds unary requests. Streams are bounded by the caller's context only.
	Timeout time.Duration

	// RateLimit and RateBurst throttle outgoing requests when RateLimit > 0.
	RateLimit rate.Limit
	RateBurst int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// LogValue keeps the API key out of logs.
func (c Config) LogValue() slog.Value {
	key := ""
	if c.APIKey != "" {
		key = "[REDACTED]"
	}
	return slog.GroupValue(
		slog.String("api_key", key),
		slog.String("base_url", c.BaseURL),
		slog.String("api_version", c.APIVersion),
		slog.Duration("timeout", c.Timeout),
		slog.Float64("rate_limit", float64(c.RateLimit)),
	)
}

// ClientOption configures a Client.
type ClientOption func(*Config)

// WithBaseURL sets the API base URL.
func WithBaseURL(url string) ClientOption {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithAPIVersion sets the version segment of endpoint URLs.
func WithAPIVersion(version string) ClientOption {
	return func(c *Config) {
		c.APIVersion = version
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Config) {
		c.HTTPClient = client
	}
}

// WithHeader adds an extra header to include in requests.
func WithHeader(key, value string) ClientOption {
	return func(c *Config) {
		if c.Headers == nil {
			c.Headers = make(http.Header)
		}
		c.Headers.Set(key, value)
	}
}

// WithRequestTimeout bounds each unary request.
func WithRequestTimeout(d time.Duration) ClientOption {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithRateLimit throttles requests to r per second with the given burst.
func WithRateLimit(r rate.Limit, burst int) ClientOption {
	return func(c *Config) {
		c.RateLimit = r
		c.RateBurst = burst
	}
}

// WithLogger sets the logger for request diagnostics.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

// NewFromEnv builds a Client from GEMINI_API_KEY, GEMINI_BASE_URL and
// GEMINI_API_VERSION. Options are applied after the environment.
func NewFromEnv(opts ...ClientOption) (*Client, error) {
	var envOpts []ClientOption
	if v := os.Getenv(EnvBaseURL); v != "" {
		envOpts = append(envOpts, WithBaseURL(v))
	}
	if v := os.Getenv(EnvAPIVersion); v != "" {
		envOpts = append(envOpts, WithAPIVersion(v))
	}
	return New(os.Getenv(EnvAPIKey), append(envOpts, opts...)...)
}
