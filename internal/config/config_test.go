package config

import (
	"strings"
	"testing"
	"time"

	"github.com/PRYePR/moreyudeals-sub000/internal/normalizer"
)

func TestLoad(t *testing.T) {
	t.Setenv("STORE_BACKEND", "firestore")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "test-project")
	t.Setenv("PORT", "9090")
	t.Setenv("AMAZON_AFFILIATE_TAG", "test-tag-21")
	t.Setenv("AFFILIATE_CLOAK_HOSTS", "go.sparhamster.at, , out.preisjaeger.at")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}

	if cfg.ProjectID != "test-project" {
		t.Errorf("Expected test-project, got %s", cfg.ProjectID)
	}
	if cfg.Port != "9090" {
		t.Errorf("Expected 9090, got %s", cfg.Port)
	}
	if cfg.AmazonAffiliateTag != "test-tag-21" {
		t.Errorf("Expected test-tag-21, got %s", cfg.AmazonAffiliateTag)
	}
	if len(cfg.CloakHosts) != 2 || cfg.CloakHosts[1] != "out.preisjaeger.at" {
		t.Errorf("Unexpected cloak hosts %v", cfg.CloakHosts)
	}
	if cfg.FetchInterval.Min != 5*time.Minute || cfg.FetchInterval.Max != 15*time.Minute {
		t.Errorf("Unexpected default fetch interval %+v", cfg.FetchInterval)
	}
	if cfg.HealthFailureThreshold != 3 || cfg.HealthDegradedDuration != 24*time.Hour {
		t.Errorf("Unexpected health defaults %d %s", cfg.HealthFailureThreshold, cfg.HealthDegradedDuration)
	}
	if cfg.DedupWindow != 7*24*time.Hour {
		t.Errorf("Expected default dedup window 168h, got %s", cfg.DedupWindow)
	}
	if cfg.Sparhamster.Precedence != normalizer.PrecedenceHTML {
		t.Errorf("Expected html precedence, got %s", cfg.Sparhamster.Precedence)
	}
	if cfg.Preisjaeger.Renderer != RendererHTTP {
		t.Errorf("Expected http renderer, got %s", cfg.Preisjaeger.Renderer)
	}
}

func TestLoad_MissingProjectID(t *testing.T) {
	t.Setenv("STORE_BACKEND", "firestore")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")

	_, err := Load()
	if err == nil {
		t.Error("Load() should return an error when GOOGLE_CLOUD_PROJECT is not set")
	}
}

func TestLoad_SQLiteNeedsNoProject(t *testing.T) {
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	t.Setenv("SQLITE_PATH", "/tmp/deals.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.StoreBackend != BackendSQLite || cfg.SQLitePath != "/tmp/deals.db" {
		t.Errorf("Unexpected store config %s %s", cfg.StoreBackend, cfg.SQLitePath)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("FETCH_INTERVAL_MIN", "1m")
	t.Setenv("FETCH_INTERVAL_MAX", "1m")
	t.Setenv("SPARHAMSTER_FIELD_PRECEDENCE", "api")
	t.Setenv("PREISJAEGER_ENABLED", "false")
	t.Setenv("PREISJAEGER_RENDERER", "browser")
	t.Setenv("TRANSLATION_ENABLED", "true")
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("REQUESTS_PER_SECOND", "0.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned unexpected error: %v", err)
	}
	if cfg.FetchInterval.Min != time.Minute || cfg.FetchInterval.Max != time.Minute {
		t.Errorf("Expected fixed 1m interval, got %+v", cfg.FetchInterval)
	}
	if cfg.Sparhamster.Precedence != normalizer.PrecedenceAPI {
		t.Errorf("Expected api precedence, got %s", cfg.Sparhamster.Precedence)
	}
	if cfg.Preisjaeger.Enabled {
		t.Error("Expected preisjaeger disabled")
	}
	if cfg.Preisjaeger.Renderer != RendererBrowser {
		t.Errorf("Expected browser renderer, got %s", cfg.Preisjaeger.Renderer)
	}
	if !cfg.Translation.Enabled || cfg.Translation.APIKey != "key" {
		t.Error("Expected translation enabled with key")
	}
	if cfg.RequestsPerSecond != 0.5 {
		t.Errorf("Expected 0.5 rps, got %v", cfg.RequestsPerSecond)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"unknown backend", "STORE_BACKEND", "postgres", "STORE_BACKEND"},
		{"bad duration", "FETCH_INTERVAL_MIN", "soon", "FETCH_INTERVAL_MIN"},
		{"inverted interval", "FETCH_INTERVAL_MIN", "30m", "FETCH_INTERVAL"},
		{"zero interval", "TRANSLATION_INTERVAL_MIN", "0s", "TRANSLATION_INTERVAL"},
		{"bad precedence", "SPARHAMSTER_FIELD_PRECEDENCE", "both", "SPARHAMSTER_FIELD_PRECEDENCE"},
		{"bad renderer", "PREISJAEGER_RENDERER", "playwright", "PREISJAEGER_RENDERER"},
		{"bad bool", "SPARHAMSTER_ENABLED", "maybe", "SPARHAMSTER_ENABLED"},
		{"bad int", "TRANSLATION_BATCH_SIZE", "ten", "TRANSLATION_BATCH_SIZE"},
		{"zero threshold", "HEALTH_FAILURE_THRESHOLD", "0", "HEALTH_FAILURE_THRESHOLD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STORE_BACKEND", "memory")
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			if err == nil {
				t.Fatalf("Load() should fail for %s=%q", tt.key, tt.val)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %s", err, tt.want)
			}
		})
	}
}
