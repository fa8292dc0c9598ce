// Package config loads and validates the Holocron YAML configuration.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultListenAddr = ":8000"
	DefaultBaseURL    = "https://swapi.info/api"
	DefaultTimeout    = 10 * time.Second
	DefaultMaxPages   = 500
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// DatabasePath is the SQLite file holding the mirrored catalog. A leading
	// "~/" is expanded. Empty means ~/.local/share/holocron/holocron.db.
	DatabasePath string `yaml:"database_path,omitempty"`

	// ListenAddr is the host:port the HTTP API binds to. Defaults to ":8000".
	ListenAddr string `yaml:"listen_addr"`

	Catalog CatalogConfig `yaml:"catalog"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// CatalogConfig controls how the remote catalog is fetched.
type CatalogConfig struct {
	// BaseURL is the catalog API root (e.g. "https://swapi.info/api").
	BaseURL string `yaml:"base_url"`

	// Timeout bounds each page request. Minimum 1s, maximum 1m. Defaults to 10s.
	Timeout time.Duration `yaml:"timeout"`

	// MaxPages caps how many pages one sync may follow. Defaults to 500.
	MaxPages int `yaml:"max_pages"`

	// RequestsPerSecond throttles page requests. 0 disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "holocron".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request. Equivalent to the OTEL_EXPORTER_OTLP_HEADERS environment
	// variable. Use this for authentication tokens, e.g.:
	//   Authorization: "Bearer <token>"
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultPath returns the default config file path: ~/.config/holocron/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "holocron", "config.yaml"), nil
}

// Default returns a validated configuration with every field at its default.
// It is used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	// Defaults always validate.
	_ = cfg.validate()
	return cfg
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Save validates cfg and writes it to path, creating parent directories.
// The file is readable only by the owner since it may carry OTLP headers.
func Save(path string, cfg *Config) error {
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file %q: %w", path, err)
	}
	return nil
}

// validate fills defaults and checks that all fields are well-formed.
func (c *Config) validate() error {
	if strings.HasPrefix(c.DatabasePath, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("expanding database_path: %w", err)
		}
		c.DatabasePath = filepath.Join(home, c.DatabasePath[2:])
	}

	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("listen_addr %q must be host:port", c.ListenAddr)
	}

	if c.Catalog.BaseURL == "" {
		c.Catalog.BaseURL = DefaultBaseURL
	}
	u, err := url.ParseRequestURI(c.Catalog.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("catalog.base_url %q must be a valid http or https URL", c.Catalog.BaseURL)
	}

	if c.Catalog.Timeout == 0 {
		c.Catalog.Timeout = DefaultTimeout
	}
	if c.Catalog.Timeout < time.Second {
		return fmt.Errorf("catalog.timeout %v is too short (minimum 1s)", c.Catalog.Timeout)
	}
	if c.Catalog.Timeout > time.Minute {
		return fmt.Errorf("catalog.timeout %v is too long (maximum 1m)", c.Catalog.Timeout)
	}

	if c.Catalog.MaxPages == 0 {
		c.Catalog.MaxPages = DefaultMaxPages
	}
	if c.Catalog.MaxPages < 1 || c.Catalog.MaxPages > 10000 {
		return fmt.Errorf("catalog.max_pages %d must be between 1 and 10000", c.Catalog.MaxPages)
	}

	if c.Catalog.RequestsPerSecond < 0 {
		return fmt.Errorf("catalog.requests_per_second must not be negative")
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}
