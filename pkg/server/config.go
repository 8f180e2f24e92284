package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/params/pkg/middleware"
	"github.com/vango-dev/params/pkg/params"
	"github.com/vango-dev/params/pkg/session"
)

// Page registers the parameters of the served page. It runs at the start of
// every render pass; registration is idempotent, so only the first pass of a
// session reads the query string.
type Page func(reg *params.Registry) error

// Config holds configuration for the server.
type Config struct {
	// Address is the address to listen on. Default: "localhost:8080".
	Address string

	// Page registers the page's parameters. Nil serves an empty page.
	Page Page

	// Manager owns the sessions. Default: a manager with
	// session.DefaultManagerConfig and no snapshot store.
	Manager *session.Manager

	// Metrics, if set, wraps every request and observes every registry.
	Metrics *middleware.Metrics

	// Gatherer, if set, is served on MetricsPath.
	Gatherer prometheus.Gatherer

	// MetricsPath is where Gatherer is served. Default: "/metrics".
	MetricsPath string

	// Tracer, if set, wraps every request and render pass in a span.
	Tracer *middleware.Tracer

	// CookieName is the session cookie. Default: "params_session".
	CookieName string

	// CookieSecure sets the Secure attribute on the session cookie.
	CookieSecure bool

	// TrustedProxies lists proxy IPs or CIDRs whose Forwarded and
	// X-Forwarded-For headers are honored when resolving the client IP.
	TrustedProxies []string

	// CheckOrigin validates the Origin of live channel upgrades.
	// Default: SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// ShutdownTimeout bounds graceful shutdown in Run. Default: 10 seconds.
	ShutdownTimeout time.Duration

	// ReadHeaderTimeout for the HTTP server. Default: 5 seconds.
	ReadHeaderTimeout time.Duration

	// LiveReadTimeout is how long a live connection may stay silent,
	// pongs included. Default: 60 seconds.
	LiveReadTimeout time.Duration

	// LiveWriteTimeout bounds each write on a live connection.
	// Default: 10 seconds.
	LiveWriteTimeout time.Duration

	// PingInterval is the time between heartbeat pings. Default: 30 seconds.
	PingInterval time.Duration

	// Logger for the server. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Address:           "localhost:8080",
		MetricsPath:       "/metrics",
		CookieName:        "params_session",
		CheckOrigin:       SameOriginCheck,
		ShutdownTimeout:   10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		LiveReadTimeout:   60 * time.Second,
		LiveWriteTimeout:  10 * time.Second,
		PingInterval:      30 * time.Second,
	}
}

// withDefaults fills in defaults for any unset fields.
func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.Address == "" {
		c.Address = defaults.Address
	}
	if c.MetricsPath == "" {
		c.MetricsPath = defaults.MetricsPath
	}
	if c.CookieName == "" {
		c.CookieName = defaults.CookieName
	}
	if c.CheckOrigin == nil {
		c.CheckOrigin = defaults.CheckOrigin
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = defaults.ReadHeaderTimeout
	}
	if c.LiveReadTimeout == 0 {
		c.LiveReadTimeout = defaults.LiveReadTimeout
	}
	if c.LiveWriteTimeout == 0 {
		c.LiveWriteTimeout = defaults.LiveWriteTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = defaults.PingInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// SameOriginCheck accepts requests without an Origin header and requests
// whose Origin host matches the Host header.
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if r.Host == "" {
		return false
	}
	return originURL.Host == r.Host
}

// AllowOrigins returns a CheckOrigin func that accepts same-origin requests
// and requests from any of origins (scheme://host[:port], or "*").
func AllowOrigins(origins ...string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[strings.TrimSuffix(strings.ToLower(o), "/")] = true
	}
	return func(r *http.Request) bool {
		if allowed["*"] || SameOriginCheck(r) {
			return true
		}
		return allowed[strings.ToLower(r.Header.Get("Origin"))]
	}
}
