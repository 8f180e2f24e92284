package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vango-dev/params/internal/errors"
	"github.com/vango-dev/params/pkg/params"
	"github.com/vango-dev/params/pkg/querystring"
	"github.com/vango-dev/params/pkg/session"
)

// ConfigFileNames are the file names Load looks for, in order.
var ConfigFileNames = []string{"paramsd.json", "paramsd.yaml", "paramsd.yml"}

// EnvFileName is the dotenv file read next to the config file.
const EnvFileName = ".env"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PARAMSD_"

// Config represents the paramsd configuration.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `json:"server" yaml:"server"`

	// Log configures the slog handler.
	Log LogConfig `json:"log" yaml:"log"`

	// Session configures the session manager.
	Session SessionConfig `json:"session" yaml:"session"`

	// Store configures where evicted sessions are snapshotted.
	Store StoreConfig `json:"store" yaml:"store"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Tracing configures OpenTelemetry spans.
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`

	// Parameters is the page served by paramsd.
	Parameters []ParameterConfig `json:"parameters,omitempty" yaml:"parameters,omitempty"`

	// configPath is the path to the loaded config file.
	configPath string
}

// ServerConfig contains HTTP listener settings.
type ServerConfig struct {
	// Host to bind to. Default: "localhost".
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Port to listen on. Default: 8080.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout Duration `json:"shutdownTimeout,omitempty" yaml:"shutdownTimeout,omitempty"`

	// AllowedOrigins lists origins allowed to open the live channel.
	// Empty means same-origin only.
	AllowedOrigins []string `json:"allowedOrigins,omitempty" yaml:"allowedOrigins,omitempty"`

	// TrustedProxies lists proxy addresses whose forwarding headers are honored.
	TrustedProxies []string `json:"trustedProxies,omitempty" yaml:"trustedProxies,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Default: "info".
	Level string `json:"level,omitempty" yaml:"level,omitempty"`

	// Format is "text" or "json". Default: "text".
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// SessionConfig mirrors session.ManagerConfig plus cookie settings.
type SessionConfig struct {
	MaxSessions      int      `json:"maxSessions,omitempty" yaml:"maxSessions,omitempty"`
	MaxSessionsPerIP int      `json:"maxSessionsPerIP,omitempty" yaml:"maxSessionsPerIP,omitempty"`
	IdleTimeout      Duration `json:"idleTimeout,omitempty" yaml:"idleTimeout,omitempty"`
	ResumeWindow     Duration `json:"resumeWindow,omitempty" yaml:"resumeWindow,omitempty"`
	CleanupInterval  Duration `json:"cleanupInterval,omitempty" yaml:"cleanupInterval,omitempty"`

	// CookieName is the session cookie. Default: "params_session".
	CookieName string `json:"cookieName,omitempty" yaml:"cookieName,omitempty"`

	// CookieSecure sets the Secure attribute on the session cookie.
	CookieSecure bool `json:"cookieSecure,omitempty" yaml:"cookieSecure,omitempty"`
}

// StoreConfig selects the snapshot store.
type StoreConfig struct {
	// Driver is "memory" or a SQL dialect (sqlite, postgres, mysql).
	// Default: "memory".
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`

	// DSN is the database/sql data source name.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`

	// Table is the snapshot table. Default: "params_sessions".
	Table string `json:"table,omitempty" yaml:"table,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	TracerName string `json:"tracerName,omitempty" yaml:"tracerName,omitempty"`
}

// ParameterConfig declares one parameter of the served page.
type ParameterConfig struct {
	Key     string `json:"key" yaml:"key"`
	Type    string `json:"type" yaml:"type"`
	Default string `json:"default" yaml:"default"`
}

// Duration is a time.Duration written as "30s" or "10m" in config files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Bare numbers are seconds.
		var secs float64
		if err2 := json.Unmarshal(data, &secs); err2 != nil {
			return err
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	return d.set(s)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	return d.set(s)
}

func (d *Duration) set(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// New creates a new Config with default values.
func New() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Metrics.Enabled = true
	return cfg
}

// Load reads configuration from the specified directory. It looks for the
// first of ConfigFileNames; when none exists the defaults are used. The
// directory's .env file and PARAMSD_* variables are applied either way.
func Load(dir string) (*Config, error) {
	for _, name := range ConfigFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}

	cfg := New()
	if err := cfg.applyEnv(filepath.Join(dir, EnvFileName)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads configuration from the specified file path. The format is
// chosen by extension: .yaml and .yml are YAML, anything else is JSON.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CodeConfigRead).
				WithDetail("No config file at " + path).
				WithSuggestion("Create paramsd.json or pass --config")
		}
		return nil, errors.New(errors.CodeConfigRead).Wrap(err)
	}

	cfg := &Config{Metrics: MetricsConfig{Enabled: true}}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, errors.New(errors.CodeConfigParse).
			WithDetail(fmt.Sprintf("Failed to parse %s: %v", filepath.Base(path), err)).
			WithSource(path)
	}

	cfg.configPath = path
	cfg.applyDefaults()
	if err := cfg.applyEnv(filepath.Join(filepath.Dir(path), EnvFileName)); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveTo writes the configuration to the specified path in the format its
// extension names.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return errors.New(errors.CodeConfigRead).Wrap(err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New(errors.CodeConfigRead).Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in zero values.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}

	defaults := session.DefaultManagerConfig()
	if c.Session.MaxSessions == 0 {
		c.Session.MaxSessions = defaults.MaxSessions
	}
	if c.Session.MaxSessionsPerIP == 0 {
		c.Session.MaxSessionsPerIP = defaults.MaxSessionsPerIP
	}
	if c.Session.IdleTimeout == 0 {
		c.Session.IdleTimeout = Duration(defaults.IdleTimeout)
	}
	if c.Session.ResumeWindow == 0 {
		c.Session.ResumeWindow = Duration(defaults.ResumeWindow)
	}
	if c.Session.CleanupInterval == 0 {
		c.Session.CleanupInterval = Duration(defaults.CleanupInterval)
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "params_session"
	}

	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.Table == "" {
		c.Store.Table = "params_sessions"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = "paramsd"
	}
}

// applyEnv overlays the dotenv file at envPath (if any) and then the process
// environment. Process variables win over the file.
func (c *Config) applyEnv(envPath string) error {
	dotenv := map[string]string{}
	if _, err := os.Stat(envPath); err == nil {
		read, err := godotenv.Read(envPath)
		if err != nil {
			return errors.New(errors.CodeConfigParse).
				WithDetail("Failed to parse " + envPath + ": " + err.Error()).
				WithSource(envPath)
		}
		dotenv = read
	}

	lookup := func(name string) (string, bool) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			return v, true
		}
		v, ok := dotenv[EnvPrefix+name]
		return v, ok
	}

	var firstErr error
	fail := func(name string, err error) {
		if firstErr == nil {
			firstErr = errors.New(errors.CodeConfigInvalid).
				WithDetail(fmt.Sprintf("%s%s: %v", EnvPrefix, name, err))
		}
	}
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v, ok := lookup(name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				fail(name, err)
				return
			}
			*dst = n
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				fail(name, err)
				return
			}
			*dst = b
		}
	}
	dur := func(name string, dst *Duration) {
		if v, ok := lookup(name); ok {
			if err := dst.set(v); err != nil {
				fail(name, err)
			}
		}
	}

	str("HOST", &c.Server.Host)
	num("PORT", &c.Server.Port)
	dur("SHUTDOWN_TIMEOUT", &c.Server.ShutdownTimeout)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	num("MAX_SESSIONS", &c.Session.MaxSessions)
	num("MAX_SESSIONS_PER_IP", &c.Session.MaxSessionsPerIP)
	dur("IDLE_TIMEOUT", &c.Session.IdleTimeout)
	dur("RESUME_WINDOW", &c.Session.ResumeWindow)
	flag("COOKIE_SECURE", &c.Session.CookieSecure)
	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_DSN", &c.Store.DSN)
	str("STORE_TABLE", &c.Store.Table)
	flag("METRICS_ENABLED", &c.Metrics.Enabled)
	flag("TRACING_ENABLED", &c.Tracing.Enabled)
	return firstErr
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	invalid := func(detail string) error {
		return errors.New(errors.CodeConfigInvalid).WithDetail(detail)
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return invalid("Port must be between 0 and 65535")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return invalid("Unknown log level " + strconv.Quote(c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return invalid("Log format must be text or json")
	}
	if c.Session.MaxSessions < 0 || c.Session.MaxSessionsPerIP < 0 {
		return invalid("Session limits must not be negative")
	}
	if c.Store.Driver != "memory" {
		if _, err := session.ParseDialect(c.Store.Driver); err != nil {
			return invalid("Unknown store driver " + strconv.Quote(c.Store.Driver))
		}
		if c.Store.DSN == "" {
			return invalid("Store driver " + c.Store.Driver + " needs a dsn")
		}
	}
	return c.validateParameters()
}

// validateParameters registers the declared parameters on a scratch
// registry so bad types and defaults are reported at startup.
func (c *Config) validateParameters() error {
	reg, err := params.New(session.NewState(), querystring.New(nil))
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Parameters))
	for i, p := range c.Parameters {
		if p.Key == "" {
			return errors.New(errors.CodeConfigInvalid).
				WithDetail(fmt.Sprintf("parameters[%d] has no key", i))
		}
		if seen[p.Key] {
			return errors.New(errors.CodeConfigInvalid).
				WithDetail("Duplicate parameter " + strconv.Quote(p.Key))
		}
		seen[p.Key] = true

		kind, err := params.ParseKind(p.Type)
		if err != nil {
			return errors.New(errors.CodeConfigInvalid).
				WithDetail(fmt.Sprintf("Parameter %q: %v", p.Key, err)).
				Wrap(err)
		}
		if _, err := reg.RegisterKind(p.Key, kind, p.Default); err != nil {
			return errors.New(errors.CodeConfigInvalid).
				WithDetail(fmt.Sprintf("Parameter %q: bad default %q", p.Key, p.Default)).
				Wrap(err)
		}
	}
	return nil
}

// Address returns the host:port the server listens on.
func (c *Config) Address() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// ManagerConfig converts the session settings for session.NewManager.
func (c *Config) ManagerConfig() session.ManagerConfig {
	return session.ManagerConfig{
		MaxSessions:      c.Session.MaxSessions,
		MaxSessionsPerIP: c.Session.MaxSessionsPerIP,
		IdleTimeout:      c.Session.IdleTimeout.Std(),
		ResumeWindow:     c.Session.ResumeWindow.Std(),
		CleanupInterval:  c.Session.CleanupInterval.Std(),
	}
}
