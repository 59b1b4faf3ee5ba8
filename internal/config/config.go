package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvProduction represents the production environment.
	EnvProduction = "production"
	// EnvDevelopment represents the local development environment.
	EnvDevelopment = "development"

	CSPModeStrict  = "strict"
	CSPModeRelaxed = "relaxed"
)

// ErrMissingCredential is returned when a provider API key is not configured.
var ErrMissingCredential = errors.New("missing provider credential")

// Config holds all application configuration.
type Config struct {
	// Server settings
	Env            string   `envconfig:"ENV" default:"development"`
	Port           string   `envconfig:"PORT" default:"8080"`
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES" default:"10.0.0.0/8,172.16.0.0/12"`

	// Security settings
	HSTSMaxAge     int      `envconfig:"HSTS_MAX_AGE" default:"31536000"`
	CSPMode        string   `envconfig:"CSP_MODE" default:"relaxed"`
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS"`

	// Logging settings
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Provider settings
	AnthropicAPIKey string `envconfig:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	TextModel       string `envconfig:"TEXT_MODEL"`
	ImageModel      string `envconfig:"IMAGE_MODEL"`

	// Sessions idle for longer than this are dropped.
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"2h"`

	// Tracing settings
	OTelEnabled    bool    `envconfig:"OTEL_ENABLED" default:"false"`
	OTelEndpoint   string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	OTelSampleRate float64 `envconfig:"OTEL_SAMPLE_RATE" default:"1.0"`
}

// LoadConfig loads configuration from .env file and environment variables.
// Both provider credentials are required.
func LoadConfig() (*Config, error) {
	// Try to load .env file (optional for development)
	if err := godotenv.Load(); err != nil {
		// Not an error if file doesn't exist (expected in production)
		if !os.IsNotExist(err) {
			log.Printf("Warning: Error loading .env file: %v", err)
		}
	}

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.AnthropicAPIKey) == "" {
		missing = append(missing, "ANTHROPIC_API_KEY")
	}
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s not set", ErrMissingCredential, strings.Join(missing, ", "))
	}

	if c.CSPMode != CSPModeStrict && c.CSPMode != CSPModeRelaxed {
		return fmt.Errorf("invalid CSP_MODE %q: must be %s or %s", c.CSPMode, CSPModeStrict, CSPModeRelaxed)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("invalid SESSION_TTL %s: must be positive", c.SessionTTL)
	}

	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// BuildCSP constructs Content Security Policy based on mode. Both modes allow
// data: images because covers are delivered as data URIs.
func BuildCSP(mode string) string {
	if mode == CSPModeStrict {
		return "default-src 'self'; " +
			"style-src 'self' 'unsafe-inline'; " +
			"script-src 'self'; " +
			"img-src 'self' data:; " +
			"connect-src 'self'; " +
			"object-src 'none'; " +
			"base-uri 'self'; " +
			"form-action 'self'"
	}

	// Development/relaxed CSP
	return "default-src 'self'; " +
		"style-src 'self' 'unsafe-inline'; " +
		"script-src 'self' 'unsafe-inline'; " +
		"img-src 'self' data: blob:"
}
