package app

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/feedbot/core/config"
)

const (
	defaultBackendTimeout = 10 * time.Second
)

// BackendConfig locates the backend API and the bot's service account.
type BackendConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"API_BASE_URL"`
	Email          string `yaml:"email" envconfig:"API_EMAIL"`
	Password       string `yaml:"password" envconfig:"API_PASSWORD"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"API_TIMEOUT_SECONDS"`
	// SkipWarmUp disables the token acquisition at startup.
	SkipWarmUp bool `yaml:"skip_warmup" envconfig:"API_SKIP_WARMUP"`
}

// WebAppConfig holds the mini app opened from /start.
type WebAppConfig struct {
	URL string `yaml:"url" envconfig:"WEB_APP_URL"`
}

// FeedbackConfig controls where reports go and how prompts are cleaned up.
type FeedbackConfig struct {
	ToEmail        string `yaml:"to_email" envconfig:"FEEDBACK_EMAIL"`
	Subject        string `yaml:"subject" envconfig:"FEEDBACK_SUBJECT"`
	CleanupDelayMS int    `yaml:"cleanup_delay_ms" envconfig:"FEEDBACK_CLEANUP_DELAY_MS"`
	// TimeZone is an IANA name used for report timestamps; empty means local.
	TimeZone string `yaml:"time_zone" envconfig:"FEEDBACK_TIME_ZONE"`
}

// Config is the full bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Backend  BackendConfig  `yaml:"backend"`
	WebApp   WebAppConfig   `yaml:"web_app"`
	Feedback FeedbackConfig `yaml:"feedback"`
}

// CoreConfig exposes the embedded core settings.
func (c *Config) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// BackendTimeout is the per-request timeout for backend calls.
func (c *Config) BackendTimeout() time.Duration {
	if c.Backend.TimeoutSeconds <= 0 {
		return defaultBackendTimeout
	}
	return time.Duration(c.Backend.TimeoutSeconds) * time.Second
}

// CleanupDelay is the pause before an answered prompt is deleted; zero
// selects the service default.
func (c *Config) CleanupDelay() time.Duration {
	return time.Duration(c.Feedback.CleanupDelayMS) * time.Millisecond
}

// Location resolves Feedback.TimeZone.
func (c *Config) Location() (*time.Location, error) {
	if c.Feedback.TimeZone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Feedback.TimeZone)
}

// LoadConfig reads the configuration from path (optional) and the environment.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the bot-specific settings and trims them in place.
func (c *Config) Validate() error {
	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
	c.Backend.Email = strings.TrimSpace(c.Backend.Email)
	c.WebApp.URL = strings.TrimSpace(c.WebApp.URL)
	c.Feedback.ToEmail = strings.TrimSpace(c.Feedback.ToEmail)
	c.Feedback.Subject = strings.TrimSpace(c.Feedback.Subject)
	c.Feedback.TimeZone = strings.TrimSpace(c.Feedback.TimeZone)

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required (API_BASE_URL)")
	}
	if u, err := url.Parse(c.Backend.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("backend.base_url %q is not an absolute URL", c.Backend.BaseURL)
	}
	if c.Backend.Email == "" || c.Backend.Password == "" {
		return fmt.Errorf("backend.email and backend.password are required (API_EMAIL, API_PASSWORD)")
	}
	if c.Backend.TimeoutSeconds < 0 {
		return fmt.Errorf("backend.timeout_seconds must be >= 0")
	}
	if c.WebApp.URL == "" {
		return fmt.Errorf("web_app.url is required (WEB_APP_URL)")
	}
	if u, err := url.Parse(c.WebApp.URL); err != nil || u.Scheme != "https" {
		// Telegram only opens web apps over https
		return fmt.Errorf("web_app.url %q must be an https URL", c.WebApp.URL)
	}
	if c.Feedback.ToEmail == "" {
		return fmt.Errorf("feedback.to_email is required (FEEDBACK_EMAIL)")
	}
	if c.Feedback.CleanupDelayMS < 0 {
		return fmt.Errorf("feedback.cleanup_delay_ms must be >= 0")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("feedback.time_zone: %w", err)
	}
	return nil
}
