package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/PRYePR/moreyudeals-sub000/internal/normalizer"
)

const (
	BackendFirestore = "firestore"
	BackendSQLite    = "sqlite"
	BackendMemory    = "memory"

	RendererHTTP    = "http"
	RendererBrowser = "browser"
)

// Interval is a jittered scheduling range.
type Interval struct {
	Min time.Duration
	Max time.Duration
}

type SparhamsterConfig struct {
	Enabled     bool
	BaseURL     string
	APIPageSize int
	Precedence  normalizer.Precedence
}

type PreisjaegerConfig struct {
	Enabled        bool
	BaseURL        string
	MaxDetailPages int
	Renderer       string
}

type TranslationConfig struct {
	Enabled    bool
	APIKey     string
	Model      string
	SourceLang string
	TargetLang string
	BatchSize  int
	Interval   Interval
}

type Config struct {
	StoreBackend string
	ProjectID    string
	SQLitePath   string
	Port         string
	LogLevel     string
	LogFormat    string

	UserAgent          string
	AmazonAffiliateTag string
	CloakHosts         []string
	AlertWebhookURL    string

	FetchInterval     Interval
	RequestDelay      Interval
	RequestsPerSecond float64
	HTTPTimeout       time.Duration
	MaxRetries        int

	HealthFailureThreshold int
	HealthDegradedDuration time.Duration
	DedupWindow            time.Duration

	Sparhamster SparhamsterConfig
	Preisjaeger PreisjaegerConfig
	Translation TranslationConfig

	SelectorsPath  string
	MerchantsPath  string
	CategoriesPath string
}

// env collects parse errors so Load can report every bad variable at once.
type env struct {
	errs []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return def
	}
	return n
}

func (e *env) number(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return def
	}
	return f
}

func (e *env) flag(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return def
	}
	return d
}

func (e *env) list(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (e *env) fail(format string, args ...any) {
	e.errs = append(e.errs, fmt.Errorf(format, args...))
}

// Load reads the configuration from the environment, after loading a .env
// file when one exists. Invalid values fail fast instead of being defaulted.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	e := &env{}
	cfg := &Config{
		StoreBackend: strings.ToLower(e.str("STORE_BACKEND", BackendFirestore)),
		ProjectID:    e.str("GOOGLE_CLOUD_PROJECT", ""),
		SQLitePath:   e.str("SQLITE_PATH", "deals.db"),
		Port:         e.str("PORT", "8080"),
		LogLevel:     e.str("LOG_LEVEL", "info"),
		LogFormat:    e.str("LOG_FORMAT", "json"),

		UserAgent:          e.str("USER_AGENT", ""),
		AmazonAffiliateTag: e.str("AMAZON_AFFILIATE_TAG", ""),
		CloakHosts:         e.list("AFFILIATE_CLOAK_HOSTS"),
		AlertWebhookURL:    e.str("ALERT_WEBHOOK_URL", ""),

		FetchInterval: Interval{
			Min: e.duration("FETCH_INTERVAL_MIN", 5*time.Minute),
			Max: e.duration("FETCH_INTERVAL_MAX", 15*time.Minute),
		},
		RequestDelay: Interval{
			Min: e.duration("REQUEST_DELAY_MIN", 2*time.Second),
			Max: e.duration("REQUEST_DELAY_MAX", 8*time.Second),
		},
		RequestsPerSecond: e.number("REQUESTS_PER_SECOND", 1),
		HTTPTimeout:       e.duration("HTTP_TIMEOUT", 20*time.Second),
		MaxRetries:        e.integer("FETCH_MAX_RETRIES", 2),

		HealthFailureThreshold: e.integer("HEALTH_FAILURE_THRESHOLD", 3),
		HealthDegradedDuration: e.duration("HEALTH_DEGRADED_DURATION", 24*time.Hour),
		DedupWindow:            e.duration("DEDUP_WINDOW", 7*24*time.Hour),

		Sparhamster: SparhamsterConfig{
			Enabled:     e.flag("SPARHAMSTER_ENABLED", true),
			BaseURL:     e.str("SPARHAMSTER_BASE_URL", "https://www.sparhamster.at"),
			APIPageSize: e.integer("SPARHAMSTER_API_PAGE_SIZE", 40),
		},
		Preisjaeger: PreisjaegerConfig{
			Enabled:        e.flag("PREISJAEGER_ENABLED", true),
			BaseURL:        e.str("PREISJAEGER_BASE_URL", "https://www.preisjaeger.at"),
			MaxDetailPages: e.integer("PREISJAEGER_MAX_DETAIL_PAGES", 5),
			Renderer:       strings.ToLower(e.str("PREISJAEGER_RENDERER", RendererHTTP)),
		},
		Translation: TranslationConfig{
			Enabled:    e.flag("TRANSLATION_ENABLED", false),
			APIKey:     e.str("GEMINI_API_KEY", ""),
			Model:      e.str("GEMINI_MODEL", "gemini-2.5-flash"),
			SourceLang: e.str("TRANSLATION_SOURCE_LANG", "de"),
			TargetLang: e.str("TRANSLATION_TARGET_LANG", "en"),
			BatchSize:  e.integer("TRANSLATION_BATCH_SIZE", 10),
			Interval: Interval{
				Min: e.duration("TRANSLATION_INTERVAL_MIN", time.Minute),
				Max: e.duration("TRANSLATION_INTERVAL_MAX", 3*time.Minute),
			},
		},

		SelectorsPath:  e.str("SELECTORS_CONFIG_PATH", ""),
		MerchantsPath:  e.str("MERCHANTS_CONFIG_PATH", ""),
		CategoriesPath: e.str("CATEGORIES_CONFIG_PATH", ""),
	}

	prec, err := normalizer.ParsePrecedence(os.Getenv("SPARHAMSTER_FIELD_PRECEDENCE"))
	if err != nil {
		e.fail("invalid SPARHAMSTER_FIELD_PRECEDENCE: %w", err)
	}
	cfg.Sparhamster.Precedence = prec

	cfg.validate(e)
	if len(e.errs) > 0 {
		return nil, errors.Join(e.errs...)
	}

	if cfg.Translation.Enabled && cfg.Translation.APIKey == "" {
		slog.Warn("TRANSLATION_ENABLED is set but GEMINI_API_KEY is empty, translation will be skipped")
	}
	if cfg.AmazonAffiliateTag == "" {
		slog.Warn("AMAZON_AFFILIATE_TAG not set, Amazon links will not be rewritten")
	}
	return cfg, nil
}

func (c *Config) validate(e *env) {
	switch c.StoreBackend {
	case BackendFirestore:
		if c.ProjectID == "" {
			e.fail("GOOGLE_CLOUD_PROJECT environment variable is required for the firestore backend")
		}
	case BackendSQLite, BackendMemory:
	default:
		e.fail("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	checkInterval(e, "FETCH_INTERVAL", c.FetchInterval)
	checkInterval(e, "TRANSLATION_INTERVAL", c.Translation.Interval)
	if c.RequestDelay.Min < 0 || c.RequestDelay.Max < c.RequestDelay.Min {
		e.fail("REQUEST_DELAY_MAX (%s) must be >= REQUEST_DELAY_MIN (%s) >= 0", c.RequestDelay.Max, c.RequestDelay.Min)
	}

	switch c.Preisjaeger.Renderer {
	case RendererHTTP, RendererBrowser:
	default:
		e.fail("unknown PREISJAEGER_RENDERER %q", c.Preisjaeger.Renderer)
	}
	if c.HealthFailureThreshold <= 0 {
		e.fail("HEALTH_FAILURE_THRESHOLD must be positive, got %d", c.HealthFailureThreshold)
	}
	if c.RequestsPerSecond < 0 {
		e.fail("REQUESTS_PER_SECOND must not be negative")
	}
	if c.MaxRetries < 0 {
		e.fail("FETCH_MAX_RETRIES must not be negative")
	}
	if c.Translation.BatchSize <= 0 {
		e.fail("TRANSLATION_BATCH_SIZE must be positive, got %d", c.Translation.BatchSize)
	}
}

func checkInterval(e *env, name string, iv Interval) {
	if iv.Min <= 0 || iv.Max < iv.Min {
		e.fail("%s_MIN (%s) must be positive and not exceed %s_MAX (%s)", name, iv.Min, name, iv.Max)
	}
}
