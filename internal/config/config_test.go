package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	perrors "github.com/vango-dev/params/internal/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func codeOf(err error) string {
	var coded *perrors.CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Server.Host != "localhost" {
		t.Errorf("Server.Host = %q, want localhost", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Session.CookieName != "params_session" {
		t.Errorf("Session.CookieName = %q", cfg.Session.CookieName)
	}
	if cfg.Session.IdleTimeout.Std() != 30*time.Minute {
		t.Errorf("Session.IdleTimeout = %v, want 30m", cfg.Session.IdleTimeout)
	}
	if cfg.Store.Driver != "memory" || cfg.Store.Table != "params_sessions" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "paramsd.json", `{
		"server": {"host": "0.0.0.0", "port": 9000, "shutdownTimeout": "3s"},
		"log": {"level": "debug", "format": "json"},
		"session": {"maxSessionsPerIP": 5, "idleTimeout": 90},
		"metrics": {"enabled": false},
		"parameters": [
			{"key": "ratio", "type": "float", "default": "5.0"},
			{"key": "dates", "type": "date_range", "default": "2021-11-01,2021-11-03"}
		]
	}`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Address() != "0.0.0.0:9000" {
		t.Errorf("Address() = %q", cfg.Address())
	}
	if cfg.Server.ShutdownTimeout.Std() != 3*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 3s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Session.IdleTimeout.Std() != 90*time.Second {
		t.Errorf("IdleTimeout = %v, want 90s", cfg.Session.IdleTimeout)
	}
	if cfg.Session.MaxSessions != 10000 {
		t.Errorf("MaxSessions = %d, want default 10000", cfg.Session.MaxSessions)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be false")
	}
	want := []ParameterConfig{
		{Key: "ratio", Type: "float", Default: "5.0"},
		{Key: "dates", Type: "date_range", Default: "2021-11-01,2021-11-03"},
	}
	if diff := cmp.Diff(want, cfg.Parameters); diff != "" {
		t.Errorf("Parameters mismatch (-want +got):\n%s", diff)
	}
	if cfg.Path() != filepath.Join(dir, "paramsd.json") {
		t.Errorf("Path() = %q", cfg.Path())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "paramsd.yaml", `
server:
  port: 7070
session:
  resumeWindow: 2h
store:
  driver: sqlite
  dsn: "file:test.db"
parameters:
  - key: tags
    type: string_list
    default: "['a', 'b']"
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Session.ResumeWindow.Std() != 2*time.Hour {
		t.Errorf("ResumeWindow = %v, want 2h", cfg.Session.ResumeWindow)
	}
	if cfg.Store.Driver != "sqlite" || cfg.Store.DSN != "file:test.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should default to true")
	}
	if len(cfg.Parameters) != 1 || cfg.Parameters[0].Key != "tags" {
		t.Errorf("Parameters = %+v", cfg.Parameters)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoadMissingDirUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Path() != "" {
		t.Errorf("Path() = %q, want empty", cfg.Path())
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFile(filepath.Join(dir, "nope.json"))
	if codeOf(err) != perrors.CodeConfigRead {
		t.Errorf("missing file: code %q, err %v", codeOf(err), err)
	}

	bad := writeFile(t, dir, "bad.json", `{"server": `)
	_, err = LoadFile(bad)
	if codeOf(err) != perrors.CodeConfigParse {
		t.Errorf("bad json: code %q, err %v", codeOf(err), err)
	}

	badDur := writeFile(t, dir, "dur.yaml", "session:\n  idleTimeout: soon\n")
	_, err = LoadFile(badDur)
	if codeOf(err) != perrors.CodeConfigParse {
		t.Errorf("bad duration: code %q, err %v", codeOf(err), err)
	}
}

func TestEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "paramsd.json", `{
		"server": {"port": 1000, "host": "file-host"},
		"log": {"level": "warn"},
		"store": {"table": "from_file"}
	}`)
	writeFile(t, dir, ".env", strings.Join([]string{
		"PARAMSD_PORT=2000",
		"PARAMSD_LOG_LEVEL=error",
		"PARAMSD_IDLE_TIMEOUT=5m",
	}, "\n"))
	t.Setenv("PARAMSD_PORT", "3000")
	t.Setenv("PARAMSD_TRACING_ENABLED", "true")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"environment beats .env", cfg.Server.Port, 3000},
		{".env beats file", cfg.Log.Level, "error"},
		{"file beats default", cfg.Server.Host, "file-host"},
		{"file only", cfg.Store.Table, "from_file"},
		{".env only", cfg.Session.IdleTimeout.Std(), 5 * time.Minute},
		{"environment only", cfg.Tracing.Enabled, true},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestEnvInvalid(t *testing.T) {
	t.Setenv("PARAMSD_PORT", "eighty")
	_, err := Load(t.TempDir())
	if codeOf(err) != perrors.CodeConfigInvalid {
		t.Errorf("code %q, err %v; want %s", codeOf(err), err, perrors.CodeConfigInvalid)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 70000 }, "Port"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "format"},
		{"store driver", func(c *Config) { c.Store.Driver = "oracle" }, "store driver"},
		{"dsn", func(c *Config) { c.Store.Driver = "postgres" }, "dsn"},
		{"no key", func(c *Config) {
			c.Parameters = []ParameterConfig{{Type: "int", Default: "1"}}
		}, "no key"},
		{"duplicate", func(c *Config) {
			c.Parameters = []ParameterConfig{
				{Key: "a", Type: "int", Default: "1"},
				{Key: "a", Type: "int", Default: "2"},
			}
		}, "Duplicate"},
		{"type", func(c *Config) {
			c.Parameters = []ParameterConfig{{Key: "a", Type: "complex", Default: "1"}}
		}, `"a"`},
		{"default", func(c *Config) {
			c.Parameters = []ParameterConfig{{Key: "a", Type: "int", Default: "abc"}}
		}, "bad default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if codeOf(err) != perrors.CodeConfigInvalid {
				t.Errorf("code = %q, want %s", codeOf(err), perrors.CodeConfigInvalid)
			}
			var coded *perrors.CodedError
			errors.As(err, &coded)
			if !strings.Contains(coded.Detail, tt.want) {
				t.Errorf("Detail = %q, want it to mention %q", coded.Detail, tt.want)
			}
		})
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := New()
	cfg.Server.Port = 4242
	cfg.Session.IdleTimeout = Duration(45 * time.Second)
	cfg.Parameters = []ParameterConfig{{Key: "foo", Type: "int", Default: "5"}}

	for _, name := range []string{"out.json", "out.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := cfg.SaveTo(path); err != nil {
				t.Fatalf("SaveTo() error: %v", err)
			}
			loaded, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile() error: %v", err)
			}
			if loaded.Server.Port != 4242 || loaded.Session.IdleTimeout != cfg.Session.IdleTimeout {
				t.Errorf("loaded server %+v session %+v", loaded.Server, loaded.Session)
			}
			if diff := cmp.Diff(cfg.Parameters, loaded.Parameters); diff != "" {
				t.Errorf("Parameters mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestManagerConfig(t *testing.T) {
	cfg := New()
	cfg.Session.MaxSessionsPerIP = 3
	cfg.Session.ResumeWindow = Duration(time.Hour)

	mc := cfg.ManagerConfig()
	if mc.MaxSessionsPerIP != 3 || mc.ResumeWindow != time.Hour || mc.MaxSessions != 10000 {
		t.Errorf("ManagerConfig() = %+v", mc)
	}
}
