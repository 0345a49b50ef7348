package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"YT_API_KEY", "YT_CLIENT_ID", "YT_CLIENT_SECRET", "YT_SCOPES",
		"YT_REDIRECT_ADDR", "YT_REDIRECT_PATH", "YT_API_BASE_URL",
		"YT_DEFAULT_POLL_INTERVAL", "OAUTH_EXCHANGE_TIMEOUT", "HTTP_ADDR", "ARCHIVE_DSN",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE", "OTEL_SERVICE_NAME", "OTEL_TRACES_SAMPLER_ARG",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.RedirectURL() != "http://127.0.0.1:8085/oauth2callback" {
		t.Errorf("RedirectURL() = %q", cfg.RedirectURL())
	}
	if len(cfg.Scopes) != 1 || cfg.Scopes[0] != DefaultScope {
		t.Errorf("Scopes = %v, want [%s]", cfg.Scopes, DefaultScope)
	}
	if cfg.DefaultPollInterval != 5*time.Second {
		t.Errorf("DefaultPollInterval = %s, want 5s", cfg.DefaultPollInterval)
	}
	if cfg.APIBaseURL != DefaultAPIBaseURL {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.Mode() != AuthAPIKey {
		t.Errorf("Mode() = %s, want apikey", cfg.Mode())
	}
	if cfg.OTLPEndpoint != "" || !cfg.OTLPInsecure || cfg.ServiceName != DefaultServiceName || cfg.TraceSampleRatio != 1 {
		t.Errorf("tracing defaults = %q %v %q %g", cfg.OTLPEndpoint, cfg.OTLPInsecure, cfg.ServiceName, cfg.TraceSampleRatio)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate() error without credentials")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("YT_CLIENT_ID", "cid")
	t.Setenv("YT_SCOPES", "scope1, scope2 scope3")
	t.Setenv("YT_REDIRECT_ADDR", "localhost:9999")
	t.Setenv("YT_REDIRECT_PATH", "cb")
	t.Setenv("YT_API_BASE_URL", "http://127.0.0.1:1234")
	t.Setenv("YT_DEFAULT_POLL_INTERVAL", "250ms")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "false")
	t.Setenv("OTEL_SERVICE_NAME", "chat-overlay")
	t.Setenv("OTEL_TRACES_SAMPLER_ARG", "0.25")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Mode() != AuthOAuth {
		t.Errorf("Mode() = %s, want oauth", cfg.Mode())
	}
	if len(cfg.Scopes) != 3 {
		t.Errorf("Scopes = %v, want 3 entries", cfg.Scopes)
	}
	if cfg.RedirectURL() != "http://localhost:9999/cb" {
		t.Errorf("RedirectURL() = %q", cfg.RedirectURL())
	}
	if cfg.APIBaseURL != "http://127.0.0.1:1234/" {
		t.Errorf("APIBaseURL = %q, want trailing slash", cfg.APIBaseURL)
	}
	if cfg.DefaultPollInterval != 250*time.Millisecond {
		t.Errorf("DefaultPollInterval = %s", cfg.DefaultPollInterval)
	}
	if cfg.OTLPEndpoint != "collector:4317" || cfg.OTLPInsecure || cfg.ServiceName != "chat-overlay" || cfg.TraceSampleRatio != 0.25 {
		t.Errorf("tracing overrides = %q %v %q %g", cfg.OTLPEndpoint, cfg.OTLPInsecure, cfg.ServiceName, cfg.TraceSampleRatio)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"bad redirect addr", "YT_REDIRECT_ADDR", "no-port"},
		{"bad poll interval", "YT_DEFAULT_POLL_INTERVAL", "soon"},
		{"bad exchange timeout", "OAUTH_EXCHANGE_TIMEOUT", "10 parsecs"},
		{"bad otlp insecure", "OTEL_EXPORTER_OTLP_INSECURE", "sometimes"},
		{"bad sample ratio", "OTEL_TRACES_SAMPLER_ARG", "half"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.val)
			}
		})
	}
}

func TestValidateAPIKeyMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("YT_API_KEY", "key")
	cfg, _ := Load()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
	cfg.TraceSampleRatio = 1.5
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for sample ratio above 1")
	}
	cfg.TraceSampleRatio = 1
	cfg.ForceOAuth = true
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when oauth is forced without a client id")
	}
}
