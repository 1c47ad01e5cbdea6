// Package config provides environment-variable-first configuration loading
// with optional YAML file fallback for the mailer.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

const (
	defaultSMTPPort    = 25
	defaultSMTPTimeout = 30 * time.Second
	defaultHeloName    = "localhost"
	defaultCharset     = "UTF-8"
)

// Config holds the complete application configuration.
type Config struct {
	Provider string        `yaml:"provider"`
	SMTP     SMTPConfig    `yaml:"smtp"`
	SES      SESConfig     `yaml:"ses"`
	Graph    GraphConfig   `yaml:"graph"`
	Message  MessageConfig `yaml:"message"`
	Logging  LoggingConfig `yaml:"logging"`
}

// SMTPConfig holds the outbound SMTP relay configuration.
type SMTPConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	StartTLS    bool          `yaml:"starttls"`
	TLSInsecure bool          `yaml:"tls_insecure"`
	CAFile      string        `yaml:"ca_file"`
	HeloName    string        `yaml:"helo_name"`
	Timeout     time.Duration `yaml:"timeout"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Sender          string `yaml:"sender"`
}

// GraphConfig holds Microsoft Graph API configuration.
type GraphConfig struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Sender       string `yaml:"sender"`
}

// MessageConfig holds the defaults applied to every message.
type MessageConfig struct {
	FromName      string `yaml:"from_name"`
	FromEmail     string `yaml:"from_email"`
	FakeFromName  string `yaml:"fake_from_name"`
	FakeFromEmail string `yaml:"fake_from_email"`
	ReplyToName   string `yaml:"reply_to_name"`
	ReplyToEmail  string `yaml:"reply_to_email"`
	Charset       string `yaml:"charset"`
	Mailer        string `yaml:"x_mailer"`

	// MaxAttachmentSize is a human readable size such as "10MB".
	// Empty means unlimited.
	MaxAttachmentSize string `yaml:"max_attachment_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible defaults.
// Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override YAML values
	cfg.applyEnvVars()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SMTPConfigured returns true if an SMTP relay host is set.
func (c *Config) SMTPConfigured() bool {
	return c.SMTP.Host != ""
}

// SESConfigured returns true if the SES region is set. The sender falls back
// to the message's From address.
func (c *Config) SESConfigured() bool {
	return c.SES.Region != ""
}

// GraphConfigured returns true if the Graph API client credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.Graph.TenantID != "" &&
		c.Graph.ClientID != "" &&
		c.Graph.ClientSecret != ""
}

// AuthEnabled returns true if both SMTP username and password are set.
func (c *Config) AuthEnabled() bool {
	return c.SMTP.Username != "" && c.SMTP.Password != ""
}

// MaxAttachmentBytes returns the attachment size limit in bytes, or 0 when
// no limit is configured. Sizes use binary multiples ("1MB" is 1 MiB).
func (m MessageConfig) MaxAttachmentBytes() (int64, error) {
	if m.MaxAttachmentSize == "" {
		return 0, nil
	}
	size, err := units.RAMInBytes(m.MaxAttachmentSize)
	if err != nil {
		return 0, fmt.Errorf("invalid max_attachment_size %q: %w", m.MaxAttachmentSize, err)
	}
	return size, nil
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.SMTP.Port = defaultSMTPPort
	c.SMTP.Timeout = defaultSMTPTimeout
	c.SMTP.HeloName = defaultHeloName
	c.Message.Charset = defaultCharset
	c.Logging.Level = "info"
}

// validate rejects values that cannot be used.
func (c *Config) validate() error {
	switch c.Provider {
	case "", "smtp", "ses", "graph", "stdout":
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		return fmt.Errorf("invalid smtp port %d", c.SMTP.Port)
	}
	if _, err := c.Message.MaxAttachmentBytes(); err != nil {
		return err
	}
	return nil
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values; values
// that do not parse are ignored.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("PROVIDER"); v != "" {
		c.Provider = strings.ToLower(v)
	}

	setString(&c.SMTP.Host, "SMTP_HOST")
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.SMTP.Port = port
		}
	}
	setString(&c.SMTP.Username, "SMTP_USERNAME")
	setString(&c.SMTP.Password, "SMTP_PASSWORD")
	setBool(&c.SMTP.StartTLS, "SMTP_STARTTLS")
	setBool(&c.SMTP.TLSInsecure, "SMTP_TLS_INSECURE")
	setString(&c.SMTP.CAFile, "SMTP_CA_FILE")
	setString(&c.SMTP.HeloName, "SMTP_HELO_NAME")
	if v := os.Getenv("SMTP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SMTP.Timeout = d
		}
	}

	setString(&c.SES.Region, "SES_REGION")
	setString(&c.SES.AccessKeyID, "SES_ACCESS_KEY_ID")
	setString(&c.SES.SecretAccessKey, "SES_SECRET_ACCESS_KEY")
	setString(&c.SES.Sender, "SES_SENDER")

	setString(&c.Graph.TenantID, "GRAPH_TENANT_ID")
	setString(&c.Graph.ClientID, "GRAPH_CLIENT_ID")
	setString(&c.Graph.ClientSecret, "GRAPH_CLIENT_SECRET")
	setString(&c.Graph.Sender, "GRAPH_SENDER")

	setString(&c.Message.FromName, "MAIL_FROM_NAME")
	setString(&c.Message.FromEmail, "MAIL_FROM")
	setString(&c.Message.FakeFromName, "MAIL_FAKE_FROM_NAME")
	setString(&c.Message.FakeFromEmail, "MAIL_FAKE_FROM")
	setString(&c.Message.ReplyToName, "MAIL_REPLY_TO_NAME")
	setString(&c.Message.ReplyToEmail, "MAIL_REPLY_TO")
	setString(&c.Message.Charset, "MAIL_CHARSET")
	setString(&c.Message.Mailer, "MAIL_X_MAILER")
	setString(&c.Message.MaxAttachmentSize, "MAIL_MAX_ATTACHMENT_SIZE")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
