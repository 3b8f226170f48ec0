// Package config provides YAML-based configuration loading for Instantory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Instantory configuration, loaded from instantory.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Files    FilesConfig    `yaml:"files"`
	Notify   NotifyConfig   `yaml:"notify"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig holds connection settings for the relational store.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// LLMConfig holds settings for the OpenAI-compatible enrichment service.
type LLMConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	ImageModel    string        `yaml:"image_model"`
	DocumentModel string        `yaml:"document_model"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxTokens     int           `yaml:"max_tokens"`
}

// FetchConfig bounds source-file downloads.
type FetchConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	MaxBytes int64         `yaml:"max_bytes"`
}

// JobsConfig controls batch processing and job retention.
type JobsConfig struct {
	ChunkSize     int           `yaml:"chunk_size"`
	TTL           time.Duration `yaml:"ttl"`
	SweepSchedule string        `yaml:"sweep_schedule"`
}

// FilesConfig is the extension allow-list, partitioned by kind.
type FilesConfig struct {
	Images    []string `yaml:"images"`
	Documents []string `yaml:"documents"`
}

// NotifyConfig holds optional webhook targets for job completion notices.
type NotifyConfig struct {
	SlackWebhookURL   string `yaml:"slack_webhook_url"`
	DiscordWebhookURL string `yaml:"discord_webhook_url"`
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default extension lists.
var (
	DefaultImageExtensions    = []string{"png", "jpg", "jpeg", "gif", "webp"}
	DefaultDocumentExtensions = []string{"pdf", "doc", "docx", "txt", "rtf", "html", "htm"}
)

// Load reads a YAML config file from path and returns a validated Config.
// A .env file in the same directory is loaded into the environment first,
// without overriding variables that are already set.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", envPath, err)
		}
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config. Environment
// overrides are applied before defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays well-known environment variables onto the file values.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("DATABASE_URL"); v != "" {
		c.Database.DSN = v
	}
	if v := getenv("DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := getenv("OPENAI_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 10000
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}

	c.Database.Driver = strings.ToLower(c.Database.Driver)
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = 10
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = 1
	}
	if c.Database.MaxConnLifetime == 0 {
		c.Database.MaxConnLifetime = 30 * time.Minute
	}
	if c.Database.DialTimeout == 0 {
		c.Database.DialTimeout = 5 * time.Second
	}

	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.ImageModel == "" {
		c.LLM.ImageModel = "gpt-4o"
	}
	if c.LLM.DocumentModel == "" {
		c.LLM.DocumentModel = "gpt-4o-mini"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2000
	}

	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxBytes == 0 {
		c.Fetch.MaxBytes = 32 << 20
	}

	if c.Jobs.ChunkSize == 0 {
		c.Jobs.ChunkSize = 5
	}
	if c.Jobs.TTL == 0 {
		c.Jobs.TTL = 24 * time.Hour
	}
	if c.Jobs.SweepSchedule == "" {
		c.Jobs.SweepSchedule = "@every 1h"
	}

	if len(c.Files.Images) == 0 {
		c.Files.Images = append([]string(nil), DefaultImageExtensions...)
	}
	if len(c.Files.Documents) == 0 {
		c.Files.Documents = append([]string(nil), DefaultDocumentExtensions...)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not one of postgres, mysql, sqlite", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required (or set DATABASE_URL)")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, "llm.api_key is required (or set OPENAI_API_KEY)")
	}
	if c.Jobs.ChunkSize < 0 {
		errs = append(errs, "jobs.chunk_size must be positive")
	}
	if c.Jobs.TTL < 0 {
		errs = append(errs, "jobs.ttl must be positive")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	seen := make(map[string]string)
	for _, ext := range c.Files.Images {
		seen[normalizeExt(ext)] = "images"
	}
	for _, ext := range c.Files.Documents {
		if kind, ok := seen[normalizeExt(ext)]; ok && kind == "images" {
			errs = append(errs, fmt.Sprintf("files: extension %q listed as both image and document", ext))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
