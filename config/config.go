// Package config loads environment variables and provides a typed Config used across the client.
// It applies defaults so the binary can run with only an API key; OAuth needs a client id.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// AuthMode selects how outbound YouTube requests are authorized.
type AuthMode string

const (
	// AuthAPIKey sends a static x-goog-api-key header.
	AuthAPIKey AuthMode = "apikey"
	// AuthOAuth sends a bearer token obtained through the loopback PKCE flow.
	AuthOAuth AuthMode = "oauth"
)

const (
	DefaultScope         = "https://www.googleapis.com/auth/youtube.readonly"
	DefaultRedirectAddr  = "127.0.0.1:8085"
	DefaultRedirectPath  = "/oauth2callback"
	DefaultAPIBaseURL    = "https://youtube.googleapis.com/"
	DefaultPollInterval  = 5 * time.Second
	DefaultExchangeLimit = 30 * time.Second
	DefaultServiceName   = "purple-youtube"
)

type Config struct {
	// YouTube credentials
	APIKey       string
	ClientID     string
	ClientSecret string
	Scopes       []string
	ForceOAuth   bool

	// Loopback redirect listener
	RedirectAddr string
	RedirectPath string

	// API
	APIBaseURL          string
	DefaultPollInterval time.Duration
	ExchangeTimeout     time.Duration

	// Optional surfaces
	HTTPAddr   string
	ArchiveDSN string

	// Tracing; an empty endpoint disables it
	OTLPEndpoint     string
	OTLPInsecure     bool
	ServiceName      string
	TraceSampleRatio float64
}

// Load reads environment variables and applies defaults. It doesn't fail when credentials are
// missing; call Validate once flags have been applied.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.APIKey = strings.TrimSpace(os.Getenv("YT_API_KEY"))
	cfg.ClientID = strings.TrimSpace(os.Getenv("YT_CLIENT_ID"))
	cfg.ClientSecret = strings.TrimSpace(os.Getenv("YT_CLIENT_SECRET"))
	cfg.Scopes = ParseScopes(os.Getenv("YT_SCOPES"))
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{DefaultScope}
	}

	cfg.RedirectAddr = envOr("YT_REDIRECT_ADDR", DefaultRedirectAddr)
	if _, _, err := net.SplitHostPort(cfg.RedirectAddr); err != nil {
		return nil, fmt.Errorf("invalid YT_REDIRECT_ADDR (host:port): %w", err)
	}
	cfg.RedirectPath = envOr("YT_REDIRECT_PATH", DefaultRedirectPath)
	if !strings.HasPrefix(cfg.RedirectPath, "/") {
		cfg.RedirectPath = "/" + cfg.RedirectPath
	}

	cfg.APIBaseURL = envOr("YT_API_BASE_URL", DefaultAPIBaseURL)
	if !strings.HasSuffix(cfg.APIBaseURL, "/") {
		cfg.APIBaseURL += "/"
	}

	var err error
	if cfg.DefaultPollInterval, err = envDuration("YT_DEFAULT_POLL_INTERVAL", DefaultPollInterval); err != nil {
		return nil, err
	}
	if cfg.ExchangeTimeout, err = envDuration("OAUTH_EXCHANGE_TIMEOUT", DefaultExchangeLimit); err != nil {
		return nil, err
	}

	cfg.HTTPAddr = strings.TrimSpace(os.Getenv("HTTP_ADDR"))
	cfg.ArchiveDSN = strings.TrimSpace(os.Getenv("ARCHIVE_DSN"))

	cfg.OTLPEndpoint = strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	cfg.ServiceName = envOr("OTEL_SERVICE_NAME", DefaultServiceName)
	// plaintext gRPC unless told otherwise; collectors usually run as a local sidecar
	if cfg.OTLPInsecure, err = envBool("OTEL_EXPORTER_OTLP_INSECURE", true); err != nil {
		return nil, err
	}
	cfg.TraceSampleRatio = 1
	if v := strings.TrimSpace(os.Getenv("OTEL_TRACES_SAMPLER_ARG")); v != "" {
		if cfg.TraceSampleRatio, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid OTEL_TRACES_SAMPLER_ARG (float): %w", err)
		}
	}

	return cfg, nil
}

// Mode reports the authorization mode implied by the credentials.
func (c *Config) Mode() AuthMode {
	if c.ForceOAuth || c.ClientID != "" {
		return AuthOAuth
	}
	return AuthAPIKey
}

// RedirectURL is the fixed loopback URI registered with the provider.
func (c *Config) RedirectURL() string {
	return "http://" + c.RedirectAddr + c.RedirectPath
}

// Validate checks that the selected mode has the credentials it needs.
func (c *Config) Validate() error {
	switch c.Mode() {
	case AuthOAuth:
		if c.ClientID == "" {
			return errors.New("missing youtube oauth env: require YT_CLIENT_ID (and usually YT_CLIENT_SECRET)")
		}
	default:
		if c.APIKey == "" {
			return errors.New("missing youtube env: set YT_API_KEY to a YouTube Data API key, or YT_CLIENT_ID for oauth")
		}
	}
	if c.DefaultPollInterval < 0 {
		return fmt.Errorf("default poll interval must not be negative, got %s", c.DefaultPollInterval)
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		return fmt.Errorf("trace sample ratio must be within [0,1], got %g", c.TraceSampleRatio)
	}
	return nil
}

// ParseScopes accepts comma or space separated scopes.
func ParseScopes(raw string) []string {
	return strings.Fields(strings.ReplaceAll(raw, ",", " "))
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (duration): %w", key, err)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s (bool): %w", key, err)
	}
	return b, nil
}
