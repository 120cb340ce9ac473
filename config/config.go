// ABOUTME: Application configuration for provider apps, webhooks, storage and logging
// ABOUTME: Loaded from .env, the XDG config file, then CRMSYNC_* environment overrides
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/harperreed/crmsync/crm"
	"github.com/harperreed/crmsync/factory"
	"github.com/harperreed/crmsync/models"
)

const envPrefix = "CRMSYNC_"

// ProviderConfig holds the app registration and tuning for one CRM.
type ProviderConfig struct {
	ClientID          string   `json:"client_id,omitempty"`
	ClientSecret      string   `json:"client_secret,omitempty"`
	RedirectURI       string   `json:"redirect_uri,omitempty"`
	Scopes            []string `json:"scopes,omitempty"`
	AuthURL           string   `json:"auth_url,omitempty"`
	BaseURL           string   `json:"base_url,omitempty"`
	APIKey            string   `json:"api_key,omitempty"`
	RequestsPerSecond float64  `json:"requests_per_second,omitempty"`

	WebhookSecret   string `json:"webhook_secret,omitempty"`
	WebhookUser     string `json:"webhook_user,omitempty"`
	WebhookPassword string `json:"webhook_password,omitempty"`
	AppID           string `json:"app_id,omitempty"`
	DeveloperAPIKey string `json:"developer_api_key,omitempty"`
}

type Config struct {
	DatabasePath string `json:"database_path,omitempty"`
	LogLevel     string `json:"log_level,omitempty"`
	WebhookAddr  string `json:"webhook_addr,omitempty"`
	// PublicURL is where providers reach the webhook server.
	PublicURL string `json:"public_url,omitempty"`

	Providers map[models.Provider]ProviderConfig `json:"providers,omitempty"`
}

// Dir returns $XDG_CONFIG_HOME/crmsync.
func Dir() string {
	return filepath.Join(xdg.ConfigHome, "crmsync")
}

// Path returns the config file location.
func Path() string {
	return filepath.Join(Dir(), "config.json")
}

// Load reads .env from the working directory if present, then the config file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return LoadFile(Path())
}

// LoadFile reads the JSON file at path and applies environment overrides.
// A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{
		LogLevel:    "info",
		WebhookAddr: ":8080",
		Providers:   map[models.Provider]ProviderConfig{},
	}

	f, err := os.Open(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	default:
		defer func() { _ = f.Close() }()
		if err := json.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config: %w", err)
		}
		if cfg.Providers == nil {
			cfg.Providers = map[models.Provider]ProviderConfig{}
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path with owner-only permissions.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv(envPrefix + "DB_PATH"); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv(envPrefix + "WEBHOOK_ADDR"); v != "" {
		cfg.WebhookAddr = v
	}
	if v := os.Getenv(envPrefix + "PUBLIC_URL"); v != "" {
		cfg.PublicURL = v
	}

	for _, p := range models.Providers() {
		pc := cfg.Providers[p]
		prefix := envPrefix + strings.ToUpper(string(p)) + "_"
		changed := false
		set := func(name string, dst *string) {
			if v := os.Getenv(prefix + name); v != "" {
				*dst = v
				changed = true
			}
		}
		set("CLIENT_ID", &pc.ClientID)
		set("CLIENT_SECRET", &pc.ClientSecret)
		set("REDIRECT_URI", &pc.RedirectURI)
		set("AUTH_URL", &pc.AuthURL)
		set("BASE_URL", &pc.BaseURL)
		set("API_KEY", &pc.APIKey)
		set("WEBHOOK_SECRET", &pc.WebhookSecret)
		set("WEBHOOK_USER", &pc.WebhookUser)
		set("WEBHOOK_PASSWORD", &pc.WebhookPassword)
		set("APP_ID", &pc.AppID)
		set("DEVELOPER_API_KEY", &pc.DeveloperAPIKey)

		if v := os.Getenv(prefix + "SCOPES"); v != "" {
			pc.Scopes = splitList(v)
			changed = true
		}
		if v := os.Getenv(prefix + "RPS"); v != "" {
			rps, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid %sRPS %q: %w", prefix, v, err)
			}
			pc.RequestsPerSecond = rps
			changed = true
		}

		if changed {
			cfg.Providers[p] = pc
		}
	}
	return nil
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
}

// Provider returns the settings for p, empty when none are configured.
func (c *Config) Provider(p models.Provider) ProviderConfig {
	return c.Providers[models.ParseProvider(string(p))]
}

// Validate reports every setting missing for connecting to p.
func (c *Config) Validate(p models.Provider) error {
	p = models.ParseProvider(string(p))
	if !factory.Supported(p) {
		return fmt.Errorf("%w: %q", crm.ErrUnsupportedProvider, p)
	}

	pc := c.Provider(p)
	var errs error
	if factory.UsesOAuth(p) {
		if pc.ClientID == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s: client_id is required", p))
		}
		if pc.ClientSecret == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s: client_secret is required", p))
		}
		if pc.RedirectURI == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s: redirect_uri is required", p))
		}
	}
	if pc.RequestsPerSecond < 0 {
		errs = multierr.Append(errs, fmt.Errorf("%s: requests_per_second must not be negative", p))
	}
	if (pc.WebhookUser == "") != (pc.WebhookPassword == "") {
		errs = multierr.Append(errs, fmt.Errorf("%s: webhook_user and webhook_password must be set together", p))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("log_level: %w", err))
	}
	return errs
}

// Credentials seeds a connection with the app registration for p.
func (c *Config) Credentials(p models.Provider) models.Credentials {
	pc := c.Provider(p)
	return models.Credentials{
		ClientID:     pc.ClientID,
		ClientSecret: pc.ClientSecret,
		RedirectURI:  pc.RedirectURI,
		Scopes:       pc.Scopes,
		APIKey:       pc.APIKey,
	}
}

// ClientOptions turns the settings for p into client construction options.
func (c *Config) ClientOptions(p models.Provider, logger *zap.Logger) []crm.Option {
	pc := c.Provider(p)
	opts := []crm.Option{
		crm.WithLogger(logger),
		crm.WithWebhookConfig(c.WebhookConfig(p, "")),
	}
	if pc.RedirectURI != "" {
		opts = append(opts, crm.WithRedirectURI(pc.RedirectURI))
	}
	if len(pc.Scopes) > 0 {
		opts = append(opts, crm.WithScopes(pc.Scopes...))
	}
	if pc.AuthURL != "" {
		opts = append(opts, crm.WithAuthURL(pc.AuthURL))
	}
	if pc.BaseURL != "" {
		opts = append(opts, crm.WithBaseURL(pc.BaseURL))
	}
	if pc.RequestsPerSecond > 0 {
		opts = append(opts, crm.WithRateLimit(pc.RequestsPerSecond))
	}
	return opts
}

// WebhookConfig describes the subscriptions and verification secrets for p.
// The target URL is only set when a public URL and an organization are known.
func (c *Config) WebhookConfig(p models.Provider, orgID string) crm.WebhookConfig {
	p = models.ParseProvider(string(p))
	pc := c.Provider(p)
	w := crm.WebhookConfig{
		Secret:          pc.WebhookSecret,
		AppID:           pc.AppID,
		DeveloperAPIKey: pc.DeveloperAPIKey,
		AuthUser:        pc.WebhookUser,
		AuthPassword:    pc.WebhookPassword,
	}
	if c.PublicURL != "" && orgID != "" {
		w.TargetURL = strings.TrimRight(c.PublicURL, "/") + "/webhooks/" + string(p) + "/" + orgID
	}
	return w
}

// NewLogger builds a production zap logger at the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}
