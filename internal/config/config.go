package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

var (
	ErrMissingPattern = errors.New("config: extraction pattern is required (POECHAT_EXTRACT_REGEX or EXTRACT_REGEX)")
	ErrInvalid        = errors.New("config: invalid value")
)

type Config struct {
	ConfigFile string
	Pattern    string
	// PatternEnv names the variable the pattern came from when it was read
	// from the environment.
	PatternEnv string
	Timezone   string
	LogFile    string
	MaxLogs    int
	DebounceMS int
	PollMS     int
	LogLevel   string
	HTTP       HTTPConfig
}

type HTTPConfig struct {
	Addr      string
	RateRPS   int
	RateBurst int
}

const (
	defaultTimezone   = "Local"
	defaultMaxLogs    = 100
	defaultDebounceMS = 100
	defaultRateRPS    = 20
	defaultRateBurst  = 40
	defaultLogLevel   = "info"
)

// fileConfig mirrors the TOML keys. Pointers distinguish "absent" from zero.
type fileConfig struct {
	ExtractRegex  *string `toml:"extract_regex"`
	Timezone      *string `toml:"timezone"`
	LogFile       *string `toml:"log_file"`
	MaxLogs       *int    `toml:"max_logs"`
	DebounceMS    *int    `toml:"debounce_ms"`
	PollMS        *int    `toml:"poll_ms"`
	HTTPAddr      *string `toml:"http_addr"`
	HTTPRateRPS   *int    `toml:"http_rate_rps"`
	HTTPRateBurst *int    `toml:"http_rate_burst"`
	LogLevel      *string `toml:"log_level"`
}

func Default() Config {
	return Config{
		Timezone:   defaultTimezone,
		MaxLogs:    defaultMaxLogs,
		DebounceMS: defaultDebounceMS,
		LogLevel:   defaultLogLevel,
		HTTP: HTTPConfig{
			RateRPS:   defaultRateRPS,
			RateBurst: defaultRateBurst,
		},
	}
}

// Load builds the configuration from defaults, then the TOML file at path (or
// POECHAT_CONFIG when path is empty), then the environment. A missing file
// named explicitly is an error.
func Load(path string) (Config, error) {
	cfg := Default()

	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("POECHAT_CONFIG"))
	}
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
		cfg.ConfigFile = path
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "config: read %s", path)
	}
	var raw fileConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return errors.Wrapf(err, "config: parse %s", path)
	}

	if raw.ExtractRegex != nil {
		c.Pattern = *raw.ExtractRegex
	}
	if raw.Timezone != nil {
		c.Timezone = strings.TrimSpace(*raw.Timezone)
	}
	if raw.LogFile != nil {
		c.LogFile = strings.TrimSpace(*raw.LogFile)
	}
	if raw.MaxLogs != nil {
		c.MaxLogs = *raw.MaxLogs
	}
	if raw.DebounceMS != nil {
		c.DebounceMS = *raw.DebounceMS
	}
	if raw.PollMS != nil {
		c.PollMS = *raw.PollMS
	}
	if raw.HTTPAddr != nil {
		c.HTTP.Addr = strings.TrimSpace(*raw.HTTPAddr)
	}
	if raw.HTTPRateRPS != nil {
		c.HTTP.RateRPS = *raw.HTTPRateRPS
	}
	if raw.HTTPRateBurst != nil {
		c.HTTP.RateBurst = *raw.HTTPRateBurst
	}
	if raw.LogLevel != nil {
		c.LogLevel = strings.TrimSpace(*raw.LogLevel)
	}
	return nil
}

func (c *Config) applyEnv() {
	// the pattern is taken verbatim; surrounding spaces may be significant
	if v, ok := os.LookupEnv("POECHAT_EXTRACT_REGEX"); ok && v != "" {
		c.Pattern = v
		c.PatternEnv = "POECHAT_EXTRACT_REGEX"
	} else if v, ok := os.LookupEnv("EXTRACT_REGEX"); ok && v != "" {
		c.Pattern = v
		c.PatternEnv = "EXTRACT_REGEX"
	}

	c.Timezone = readString("POECHAT_TIMEZONE", c.Timezone)
	c.LogFile = readString("POECHAT_LOG_FILE", c.LogFile)
	c.MaxLogs = readInt("POECHAT_MAX_LOGS", c.MaxLogs)
	c.DebounceMS = readInt("POECHAT_DEBOUNCE_MS", c.DebounceMS)
	c.PollMS = readInt("POECHAT_POLL_MS", c.PollMS)
	c.HTTP.Addr = readString("POECHAT_HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.RateRPS = readInt("POECHAT_HTTP_RATE_RPS", c.HTTP.RateRPS)
	c.HTTP.RateBurst = readInt("POECHAT_HTTP_RATE_BURST", c.HTTP.RateBurst)
	c.LogLevel = readString("POECHAT_LOG_LEVEL", c.LogLevel)
}

// Validate reports the first fatal problem with the configuration.
func (c Config) Validate() error {
	if c.Pattern == "" {
		return ErrMissingPattern
	}
	if c.MaxLogs < 0 {
		return errors.Wrapf(ErrInvalid, "max_logs must be >= 0, got %d", c.MaxLogs)
	}
	if c.DebounceMS < 0 {
		return errors.Wrapf(ErrInvalid, "debounce_ms must be >= 0, got %d", c.DebounceMS)
	}
	if c.PollMS < 0 {
		return errors.Wrapf(ErrInvalid, "poll_ms must be >= 0, got %d", c.PollMS)
	}
	if c.HTTP.RateRPS < 0 || c.HTTP.RateBurst < 0 {
		return errors.Wrapf(ErrInvalid, "http rate limits must be >= 0, got rps=%d burst=%d", c.HTTP.RateRPS, c.HTTP.RateBurst)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone. Empty and "Local" mean the host zone.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	if strings.EqualFold(name, "utc") {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalid, "unknown timezone %q: %v", name, err)
	}
	return loc, nil
}

func (c Config) SlogLevel() (slog.Level, error) {
	raw := strings.TrimSpace(c.LogLevel)
	if raw == "" {
		return slog.LevelInfo, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		return slog.LevelInfo, errors.Wrapf(ErrInvalid, "unknown log level %q", raw)
	}
	return lvl, nil
}

func (c Config) Debounce() time.Duration {
	if c.DebounceMS <= 0 {
		return 0
	}
	return time.Duration(c.DebounceMS) * time.Millisecond
}

func (c Config) PollInterval() time.Duration {
	if c.PollMS <= 0 {
		return 0
	}
	return time.Duration(c.PollMS) * time.Millisecond
}

func readString(name, def string) string {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	return raw
}

// readInt keeps zero and negative values so Validate can reject them.
func readInt(name string, def int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

type Summary struct {
	ConfigFile string      `json:"config_file,omitempty"`
	Pattern    string      `json:"extract_regex"`
	PatternEnv string      `json:"extract_regex_env,omitempty"`
	Timezone   string      `json:"timezone"`
	LogFile    string      `json:"log_file,omitempty"`
	MaxLogs    int         `json:"max_logs"`
	DebounceMS int         `json:"debounce_ms"`
	PollMS     int         `json:"poll_ms"`
	LogLevel   string      `json:"log_level"`
	HTTP       HTTPSummary `json:"http"`
}

type HTTPSummary struct {
	Enabled   bool   `json:"enabled"`
	Addr      string `json:"addr,omitempty"`
	RateRPS   int    `json:"rate_rps"`
	RateBurst int    `json:"rate_burst"`
}

func (c Config) Summary() Summary {
	return Summary{
		ConfigFile: c.ConfigFile,
		Pattern:    c.Pattern,
		PatternEnv: c.PatternEnv,
		Timezone:   c.Timezone,
		LogFile:    c.LogFile,
		MaxLogs:    c.MaxLogs,
		DebounceMS: c.DebounceMS,
		PollMS:     c.PollMS,
		LogLevel:   c.LogLevel,
		HTTP: HTTPSummary{
			Enabled:   c.HTTP.Addr != "",
			Addr:      c.HTTP.Addr,
			RateRPS:   c.HTTP.RateRPS,
			RateBurst: c.HTTP.RateBurst,
		},
	}
}

func (c Config) SummaryJSON() []byte {
	summary := struct {
		Config Summary `json:"config_summary"`
	}{Config: c.Summary()}
	data, _ := json.Marshal(summary)
	return data
}
