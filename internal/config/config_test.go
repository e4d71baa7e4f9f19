package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
)

var envNames = []string{
	"POECHAT_CONFIG",
	"POECHAT_EXTRACT_REGEX",
	"EXTRACT_REGEX",
	"POECHAT_TIMEZONE",
	"POECHAT_LOG_FILE",
	"POECHAT_MAX_LOGS",
	"POECHAT_DEBOUNCE_MS",
	"POECHAT_POLL_MS",
	"POECHAT_HTTP_ADDR",
	"POECHAT_HTTP_RATE_RPS",
	"POECHAT_HTTP_RATE_BURST",
	"POECHAT_LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envNames {
		t.Setenv(name, "")
	}
}

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chatwatch.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxLogs != 100 {
		t.Fatalf("expected default max logs 100, got %d", cfg.MaxLogs)
	}
	if cfg.Debounce() != 100*time.Millisecond {
		t.Fatalf("unexpected debounce: %s", cfg.Debounce())
	}
	if cfg.PollInterval() != 0 {
		t.Fatalf("expected polling off, got %s", cfg.PollInterval())
	}
	if cfg.HTTP.Addr != "" || cfg.HTTP.RateRPS != 20 || cfg.HTTP.RateBurst != 40 {
		t.Fatalf("unexpected http defaults: %+v", cfg.HTTP)
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.Local {
		t.Fatalf("expected local timezone, got %v (%v)", loc, err)
	}
	if err := cfg.Validate(); !errors.Is(err, ErrMissingPattern) {
		t.Fatalf("expected ErrMissingPattern, got %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("POECHAT_EXTRACT_REGEX", `^(a)(b)(c)(d)(e)(f)$`)
	t.Setenv("POECHAT_TIMEZONE", "UTC")
	t.Setenv("POECHAT_LOG_FILE", "/games/poe/logs/Client.txt")
	t.Setenv("POECHAT_MAX_LOGS", "0")
	t.Setenv("POECHAT_DEBOUNCE_MS", "250")
	t.Setenv("POECHAT_POLL_MS", "1000")
	t.Setenv("POECHAT_HTTP_ADDR", "127.0.0.1:9190")
	t.Setenv("POECHAT_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.PatternEnv != "POECHAT_EXTRACT_REGEX" {
		t.Fatalf("unexpected pattern env: %q", cfg.PatternEnv)
	}
	if cfg.MaxLogs != 0 {
		t.Fatalf("expected unbounded max logs, got %d", cfg.MaxLogs)
	}
	if cfg.Debounce() != 250*time.Millisecond || cfg.PollInterval() != time.Second {
		t.Fatalf("unexpected timings: debounce=%s poll=%s", cfg.Debounce(), cfg.PollInterval())
	}
	if cfg.LogFile != "/games/poe/logs/Client.txt" {
		t.Fatalf("unexpected log file: %q", cfg.LogFile)
	}
	if loc, _ := cfg.Location(); loc != time.UTC {
		t.Fatalf("expected UTC, got %v", loc)
	}
	if lvl, _ := cfg.SlogLevel(); lvl != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", lvl)
	}
}

func TestLegacyPatternEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("EXTRACT_REGEX", `^legacy$`)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pattern != `^legacy$` || cfg.PatternEnv != "EXTRACT_REGEX" {
		t.Fatalf("legacy env not honored: %+v", cfg)
	}

	t.Setenv("POECHAT_EXTRACT_REGEX", `^preferred$`)
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pattern != `^preferred$` {
		t.Fatalf("prefixed env should win, got %q", cfg.Pattern)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeTOML(t, `
extract_regex = '^(x)(x)(x)(x)(x)(x)$'
timezone = "Europe/Berlin"
log_file = "/from/file/Client.txt"
max_logs = 25
poll_ms = 500
http_addr = "127.0.0.1:9000"
log_level = "warn"
`)
	t.Setenv("POECHAT_MAX_LOGS", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ConfigFile != path {
		t.Fatalf("config file not recorded: %q", cfg.ConfigFile)
	}
	if cfg.Pattern != `^(x)(x)(x)(x)(x)(x)$` {
		t.Fatalf("pattern from file: %q", cfg.Pattern)
	}
	if cfg.MaxLogs != 7 {
		t.Fatalf("env should override file, got %d", cfg.MaxLogs)
	}
	if cfg.PollMS != 500 || cfg.DebounceMS != 100 {
		t.Fatalf("unexpected timings: poll=%d debounce=%d", cfg.PollMS, cfg.DebounceMS)
	}
	if cfg.HTTP.Addr != "127.0.0.1:9000" || cfg.LogLevel != "warn" {
		t.Fatalf("unexpected file values: %+v", cfg)
	}
}

func TestLoadFileFromEnvPath(t *testing.T) {
	clearEnv(t)
	path := writeTOML(t, `max_logs = 3`)
	t.Setenv("POECHAT_CONFIG", path)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxLogs != 3 {
		t.Fatalf("expected max logs from POECHAT_CONFIG file, got %d", cfg.MaxLogs)
	}
}

func TestLoadFileErrors(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	if _, err := Load(writeTOML(t, "max_logs = = 3")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative max logs", func(c *Config) { c.MaxLogs = -1 }},
		{"negative poll", func(c *Config) { c.PollMS = -5 }},
		{"unknown timezone", func(c *Config) { c.Timezone = "Mars/Olympus_Mons" }},
		{"unknown log level", func(c *Config) { c.LogLevel = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Pattern = `^(a)(b)(c)(d)(e)(f)$`
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestInvalidIntFallsBackToDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("POECHAT_MAX_LOGS", "lots")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxLogs != 100 {
		t.Fatalf("expected default on unparsable value, got %d", cfg.MaxLogs)
	}
}

func TestSummaryJSON(t *testing.T) {
	cfg := Default()
	cfg.Pattern = `^p$`
	cfg.HTTP.Addr = ":9190"

	var decoded struct {
		Config struct {
			Pattern string `json:"extract_regex"`
			MaxLogs int    `json:"max_logs"`
			HTTP    struct {
				Enabled bool `json:"enabled"`
			} `json:"http"`
		} `json:"config_summary"`
	}
	if err := json.Unmarshal(cfg.SummaryJSON(), &decoded); err != nil {
		t.Fatalf("unmarshal summary: %v", err)
	}
	if decoded.Config.Pattern != `^p$` || decoded.Config.MaxLogs != 100 || !decoded.Config.HTTP.Enabled {
		t.Fatalf("unexpected summary: %+v", decoded.Config)
	}
}
