// Package config holds runtime settings: compiled-in defaults overridden
// by PE_-prefixed environment variables. cmd/server loads .env first and
// lets a few flags override on top.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnv           = "PE_PORT"
	dbPathEnv         = "PE_DB_PATH"
	logLevelEnv       = "PE_LOG_LEVEL"
	geminiKeyEnv      = "PE_GEMINI_API_KEY"
	geminiModelEnv    = "PE_GEMINI_MODEL"
	requestTimeoutEnv = "PE_REQUEST_TIMEOUT_SECONDS"
	scanIntervalEnv   = "PE_SCAN_INTERVAL_SECONDS"
	runOnStartupEnv   = "PE_RUN_ON_STARTUP"
	enabledEnv        = "PE_SCHEDULER_ENABLED"
	startupDelayEnv   = "PE_STARTUP_DELAY_SECONDS"
	cooldownEnv       = "PE_FAILURE_COOLDOWN_SECONDS"
	backoffBaseEnv    = "PE_BACKOFF_BASE_SECONDS"
	retryLimitEnv     = "PE_RETRY_LIMIT"
	feedURLsEnv       = "PE_FEED_URLS"
	pageURLsEnv       = "PE_PAGE_URLS"
)

// Config holds all application configuration.
type Config struct {
	Port     int
	DBPath   string
	LogLevel string

	GeminiAPIKey   string
	GeminiModel    string
	RequestTimeout time.Duration

	// Scheduler knobs. Seconds-granularity in the environment, durations
	// everywhere else.
	ScanInterval    time.Duration
	RunOnStartup    bool
	Enabled         bool
	StartupDelay    time.Duration
	FailureCooldown time.Duration
	BackoffBase     time.Duration
	RetryLimit      int

	// FeedURLs are RSS/Atom feeds, PageURLs are HTML listing pages to
	// harvest headlines from. Comma-separated in the environment.
	FeedURLs []string
	PageURLs []string
}

func defaultConfig() Config {
	return Config{
		Port:     8080,
		DBPath:   "policies.db",
		LogLevel: "info",

		GeminiModel:    "gemini-1.5-flash",
		RequestTimeout: 30 * time.Second,

		ScanInterval:    time.Hour,
		RunOnStartup:    true,
		Enabled:         true,
		StartupDelay:    5 * time.Second,
		FailureCooldown: 5 * time.Minute,
		BackoffBase:     2 * time.Second,
		RetryLimit:      50,

		FeedURLs: []string{
			"https://pib.gov.in/RssMain.aspx?ModId=6&Lang=1&Regid=3",
		},
		PageURLs: []string{
			"https://economictimes.indiatimes.com/news/economy/policy",
			"https://www.business-standard.com/economy-policy",
		},
	}
}

// Load returns the defaults with environment overrides applied.
func Load() Config {
	cfg := defaultConfig()
	cfg.applyEnvOverrides()
	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v, ok := envInt(portEnv); ok {
		c.Port = v
	}
	if v := os.Getenv(dbPathEnv); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.LogLevel = v
	}

	if v := os.Getenv(geminiKeyEnv); v != "" {
		c.GeminiAPIKey = v
	}
	if v := os.Getenv(geminiModelEnv); v != "" {
		c.GeminiModel = v
	}
	if v, ok := envSeconds(requestTimeoutEnv); ok {
		c.RequestTimeout = v
	}

	if v, ok := envSeconds(scanIntervalEnv); ok {
		c.ScanInterval = v
	}
	if v, ok := envBool(runOnStartupEnv); ok {
		c.RunOnStartup = v
	}
	if v, ok := envBool(enabledEnv); ok {
		c.Enabled = v
	}
	if v, ok := envSeconds(startupDelayEnv); ok {
		c.StartupDelay = v
	}
	if v, ok := envSeconds(cooldownEnv); ok {
		c.FailureCooldown = v
	}
	if v, ok := envSeconds(backoffBaseEnv); ok {
		c.BackoffBase = v
	}
	if v, ok := envInt(retryLimitEnv); ok && v > 0 {
		c.RetryLimit = v
	}

	if v := envList(feedURLsEnv); v != nil {
		c.FeedURLs = v
	}
	if v := envList(pageURLsEnv); v != nil {
		c.PageURLs = v
	}
}

// NewLogger builds the application logger at the configured level.
func (c Config) NewLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// envSeconds reads a positive integer number of seconds.
func envSeconds(key string) (time.Duration, bool) {
	n, ok := envInt(key)
	if !ok || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

// envList splits a comma-separated value, dropping empty entries.
// Returns nil when the variable is unset so defaults survive.
func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
