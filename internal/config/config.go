package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	API       APIConfig       `yaml:"api"`
	Storage   StorageConfig   `yaml:"storage"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Render    RenderConfig    `yaml:"render"`
	Mail      MailConfig      `yaml:"mail"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"` // Prometheus metrics configuration
}

// ServerConfig contains server-wide settings
type ServerConfig struct {
	Name      string `yaml:"name"`       // Shown in /health and mail signatures
	PublicURL string `yaml:"public_url"` // Base URL used in download links
}

// APIConfig contains HTTP API settings
type APIConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	APIKey         string        `yaml:"api_key"`
	APIKeyHashes   []string      `yaml:"api_key_hashes"`   // bcrypt hashes accepted in addition to api_key
	MaxUploadBytes int64         `yaml:"max_upload_bytes"` // Max bulk/merge upload size (default: 10MB)
	MaxHeaderBytes int           `yaml:"max_header_bytes"` // Max HTTP header size (default: 1MB)
	ReadTimeout    time.Duration `yaml:"read_timeout"`     // HTTP read timeout (default: 30s)
	WriteTimeout   time.Duration `yaml:"write_timeout"`    // HTTP write timeout (default: 5m)
	IdleTimeout    time.Duration `yaml:"idle_timeout"`     // HTTP idle timeout (default: 60s)
}

// AuthEnabled reports whether any API key is configured
func (a APIConfig) AuthEnabled() bool {
	return a.APIKey != "" || len(a.APIKeyHashes) > 0
}

// StorageConfig contains storage settings
type StorageConfig struct {
	Path string `yaml:"path"`
}

// ArtifactsConfig selects where rendered files are kept
type ArtifactsConfig struct {
	Backend   string          `yaml:"backend"` // fs or s3
	Dir       string          `yaml:"dir"`
	S3        S3Config        `yaml:"s3"`
	Retention RetentionConfig `yaml:"retention"`
}

// S3Config contains S3-compatible object storage settings
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
}

// RetentionConfig contains document retention settings
type RetentionConfig struct {
	MaxAge          time.Duration `yaml:"max_age"`          // Delete documents older than this (0 = keep forever)
	CleanupInterval time.Duration `yaml:"cleanup_interval"` // How often to run cleanup
}

// RenderConfig contains document rendering settings
type RenderConfig struct {
	DefaultFormat  string `yaml:"default_format"`  // pdf or docx
	DateLayout     string `yaml:"date_layout"`     // Go layout for the "Generated on" footer
	OutputTimezone string `yaml:"output_timezone"` // IANA zone for footer dates
}

// Location returns the configured output timezone
func (r RenderConfig) Location() (*time.Location, error) {
	if r.OutputTimezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(r.OutputTimezone)
}

// MailConfig contains outbound email settings
type MailConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Mode               string        `yaml:"mode"`       // production or sandbox
	RelayAddr          string        `yaml:"relay_addr"` // host:port of the submission relay
	Hostname           string        `yaml:"hostname"`   // EHLO name
	From               string        `yaml:"from"`
	FromName           string        `yaml:"from_name"`
	Username           string        `yaml:"username"`
	Password           string        `yaml:"password"`
	StartTLS           bool          `yaml:"starttls"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Timeout            time.Duration `yaml:"timeout"`
	RatePerSecond      float64       `yaml:"rate_per_second"` // 0 = unlimited
	Burst              int           `yaml:"burst"`
	DKIM               DKIMConfig    `yaml:"dkim"`
}

// Mail modes
const (
	MailModeProduction = "production"
	MailModeSandbox    = "sandbox"
)

// DKIMConfig contains DKIM signing settings
type DKIMConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Selector string `yaml:"selector"`
	KeyFile  string `yaml:"key_file"`
	Domain   string `yaml:"domain"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	ListenAddr      string        `yaml:"listen_addr"`      // Default: :9090
	Path            string        `yaml:"path"`             // Default: /metrics
	CollectInterval time.Duration `yaml:"collect_interval"` // Gauge refresh interval (default: 15s)
	AllowedIPs      []string      `yaml:"allowed_ips"`      // IP addresses/CIDRs allowed to access metrics
}

// Load loads configuration from a YAML file. A .env file next to the
// config is loaded first and ${VAR} references are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for configuration
func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "docforge"
	}

	if c.API.ListenAddr == "" {
		c.API.ListenAddr = ":8080"
	}
	if c.API.MaxUploadBytes == 0 {
		c.API.MaxUploadBytes = 10 << 20 // 10 MB
	}
	if c.API.MaxHeaderBytes == 0 {
		c.API.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.API.ReadTimeout == 0 {
		c.API.ReadTimeout = 30 * time.Second
	}
	if c.API.WriteTimeout == 0 {
		// Bulk generation answers only when the whole batch is done
		c.API.WriteTimeout = 5 * time.Minute
	}
	if c.API.IdleTimeout == 0 {
		c.API.IdleTimeout = 60 * time.Second
	}

	if c.Storage.Path == "" {
		c.Storage.Path = "/var/lib/docforge/docforge.db"
	}

	if c.Artifacts.Backend == "" {
		c.Artifacts.Backend = "fs"
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = "/var/lib/docforge/documents"
	}
	if c.Artifacts.S3.Region == "" {
		c.Artifacts.S3.Region = "us-east-1"
	}
	if c.Artifacts.Retention.CleanupInterval == 0 {
		c.Artifacts.Retention.CleanupInterval = time.Hour
	}

	if c.Render.DefaultFormat == "" {
		c.Render.DefaultFormat = "pdf"
	}
	if c.Render.DateLayout == "" {
		c.Render.DateLayout = "January 2, 2006"
	}

	if c.Mail.Mode == "" {
		c.Mail.Mode = MailModeProduction
	}
	if c.Mail.Hostname == "" {
		hostname, _ := os.Hostname()
		c.Mail.Hostname = hostname
	}
	if c.Mail.FromName == "" {
		c.Mail.FromName = c.Server.Name
	}
	if c.Mail.Timeout == 0 {
		c.Mail.Timeout = 30 * time.Second
	}
	if c.Mail.Burst == 0 {
		c.Mail.Burst = 1
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	// Metrics defaults
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.CollectInterval == 0 {
		c.Metrics.CollectInterval = 15 * time.Second
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	if c.API.MaxUploadBytes < 0 {
		return fmt.Errorf("api.max_upload_bytes must not be negative")
	}

	if c.Render.DefaultFormat != "pdf" && c.Render.DefaultFormat != "docx" {
		return fmt.Errorf("invalid render.default_format: %s (must be pdf or docx)", c.Render.DefaultFormat)
	}
	if _, err := c.Render.Location(); err != nil {
		return fmt.Errorf("invalid render.output_timezone: %w", err)
	}

	if err := c.validateArtifacts(); err != nil {
		return err
	}

	if err := c.validateMail(); err != nil {
		return err
	}

	return nil
}

// validateArtifacts validates the artifact backend
func (c *Config) validateArtifacts() error {
	a := c.Artifacts
	switch a.Backend {
	case "fs":
		if a.Dir == "" {
			return fmt.Errorf("artifacts.dir is required for the fs backend")
		}
	case "s3":
		if a.S3.Endpoint == "" {
			return fmt.Errorf("artifacts.s3.endpoint is required for the s3 backend")
		}
		if a.S3.Bucket == "" {
			return fmt.Errorf("artifacts.s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid artifacts.backend: %s (must be fs or s3)", a.Backend)
	}

	if a.Retention.MaxAge < 0 {
		return fmt.Errorf("artifacts.retention.max_age must not be negative")
	}

	return nil
}

// validateMail validates outbound email configuration
func (c *Config) validateMail() error {
	m := c.Mail
	if !m.Enabled {
		return nil
	}

	if m.Mode != MailModeProduction && m.Mode != MailModeSandbox {
		return fmt.Errorf("invalid mail.mode: %s (must be production or sandbox)", m.Mode)
	}
	if m.From == "" {
		return fmt.Errorf("mail.from is required when mail is enabled")
	}
	if m.Mode == MailModeProduction && m.RelayAddr == "" {
		return fmt.Errorf("mail.relay_addr is required when mail is enabled in production mode")
	}
	if m.Password != "" && m.Username == "" {
		return fmt.Errorf("mail.username is required when mail.password is set")
	}
	if m.RatePerSecond < 0 {
		return fmt.Errorf("mail.rate_per_second must not be negative")
	}

	if m.DKIM.Enabled {
		if m.DKIM.Selector == "" {
			return fmt.Errorf("mail.dkim.selector is required when DKIM is enabled")
		}
		if m.DKIM.KeyFile == "" {
			return fmt.Errorf("mail.dkim.key_file is required when DKIM is enabled")
		}
		if m.DKIM.Domain == "" {
			return fmt.Errorf("mail.dkim.domain is required when DKIM is enabled")
		}
	}

	return nil
}
