package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	SMTP     SMTPOutConfig  `yaml:"smtp"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// ServerConfig holds the MCP server identity
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// BackendConfig selects and configures the mailbox the tools operate on
type BackendConfig struct {
	Provider string `yaml:"provider"` // "imap" or "memory"

	// IMAP settings (if provider is "imap")
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	TLS           string `yaml:"tls"` // "tls", "starttls" or "none"
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	SentFolder    string `yaml:"sent_folder"`
	MaxMessages   int    `yaml:"max_messages"`

	// Mailbox owner
	UserAddress string `yaml:"user_address"`
	ManagerName string `yaml:"manager_name"`

	// Fixture file (if provider is "memory")
	Fixture string `yaml:"fixture"`

	// Circuit breaker around connects
	BreakerThreshold uint32 `yaml:"breaker_threshold"`
	BreakerCooldown  int    `yaml:"breaker_cooldown_seconds"`
}

// SMTPOutConfig holds outbound email settings
type SMTPOutConfig struct {
	Provider    string `yaml:"provider"` // "resend", "smtp", or empty for none
	ResendKey   string `yaml:"resend_key"`
	FromAddress string `yaml:"from_address"`
	FromName    string `yaml:"from_name"`
	// SMTP settings (if provider is "smtp")
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      string `yaml:"tls"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// DatabaseConfig holds database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LLMConfig holds LLM provider settings
type LLMConfig struct {
	APIKey        string  `yaml:"api_key"`
	BaseURL       string  `yaml:"base_url"`
	Model         string  `yaml:"model"`
	MaxTokens     int     `yaml:"max_tokens"`
	Temperature   float32 `yaml:"temperature"`
	MaxIterations int     `yaml:"max_iterations"`
	SystemPrompt  string  `yaml:"system_prompt"`
}

// Load reads and parses the configuration file. A missing file yields the
// defaults so the server can run purely from the environment.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		// Expand environment variables
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Set defaults
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadEnv loads KEY=VALUE pairs from the given .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// expandEnvVars expands ${VAR} patterns in the string
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return "${" + key + "}"
	})
}

// setDefaults sets default values for missing configuration
func (c *Config) setDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Name == "" {
		c.Server.Name = "deskmail"
	}
	if c.Server.Version == "" {
		c.Server.Version = "0.1.0"
	}
	if c.Backend.Provider == "" {
		c.Backend.Provider = "imap"
	}
	if c.Backend.Port == 0 {
		c.Backend.Port = 993
	}
	if c.Backend.TLS == "" {
		c.Backend.TLS = "tls"
	}
	if c.Backend.SentFolder == "" {
		c.Backend.SentFolder = "Sent"
	}
	if c.Backend.UserAddress == "" {
		c.Backend.UserAddress = c.Backend.Username
	}
	if c.Backend.BreakerThreshold == 0 {
		c.Backend.BreakerThreshold = 3
	}
	if c.Backend.BreakerCooldown == 0 {
		c.Backend.BreakerCooldown = 30
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 587
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "starttls"
	}
	if c.SMTP.FromAddress == "" {
		c.SMTP.FromAddress = c.Backend.UserAddress
	}
	if c.Database.Path == "" {
		c.Database.Path = "./deskmail.db"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.Temperature == 0 {
		c.LLM.Temperature = 0.2
	}
	if c.LLM.MaxIterations == 0 {
		c.LLM.MaxIterations = 10
	}
}

// Validate rejects configurations that cannot start.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Backend.Provider) {
	case "imap":
		if c.Backend.Host == "" {
			return fmt.Errorf("backend.host is required for the imap provider")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown backend provider %q", c.Backend.Provider)
	}

	switch strings.ToLower(c.SMTP.Provider) {
	case "", "none", "resend", "smtp":
	default:
		return fmt.Errorf("unknown smtp provider %q", c.SMTP.Provider)
	}
	return nil
}
