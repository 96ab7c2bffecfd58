package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Scraping Scraping `yaml:"scraping"`
	LLM      LLM      `yaml:"llm"`
	Email    Email    `yaml:"email"`
	Schedule Schedule `yaml:"schedule"`
	Digest   Digest   `yaml:"digest"`
	Output   Output   `yaml:"output"`
	Logging  Logging  `yaml:"logging"`
}

type Scraping struct {
	UserAgent       string        `yaml:"user_agent"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	MaxRedirects    int           `yaml:"max_redirects"`
	ItemDelay       time.Duration `yaml:"item_delay"`
	ReclassifyDelay time.Duration `yaml:"reclassify_delay"`
}

type LLM struct {
	Providers          []string `yaml:"providers"`
	OllamaURL          string   `yaml:"ollama_url"`
	Model              string   `yaml:"model"`
	OpenAIModel        string   `yaml:"openai_model"`
	OpenAIAPIKeyEnv    string   `yaml:"openai_api_key_env"`
	AnthropicModel     string   `yaml:"anthropic_model"`
	AnthropicAPIKeyEnv string   `yaml:"anthropic_api_key_env"`
	MaxTokens          int      `yaml:"max_tokens"`
}

type Email struct {
	SMTPHost    string   `yaml:"smtp_host"`
	SMTPPort    int      `yaml:"smtp_port"`
	Username    string   `yaml:"username"`
	PasswordEnv string   `yaml:"password_env"`
	From        string   `yaml:"from"`
	To          []string `yaml:"to"`
}

// IsConfigured reports whether enough is set to attempt SMTP delivery.
func (e Email) IsConfigured() bool {
	return e.SMTPHost != "" && e.From != "" && len(e.To) > 0
}

// Password reads the SMTP password from the configured environment variable.
func (e Email) Password() string {
	if e.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(e.PasswordEnv)
}

type Schedule struct {
	Scrape       string `yaml:"scrape"`
	Reclassify   string `yaml:"reclassify"`
	Cleanup      string `yaml:"cleanup"`
	DailyDigest  string `yaml:"daily_digest"`
	WeeklyDigest string `yaml:"weekly_digest"`
	Comparison   string `yaml:"comparison"`
}

type Digest struct {
	Timezone  string `yaml:"timezone"`
	WeekStart string `yaml:"week_start"`
}

// Location resolves the digest timezone, defaulting to UTC.
func (d Digest) Location() (*time.Location, error) {
	if d.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid digest timezone %q: %w", d.Timezone, err)
	}
	return loc, nil
}

// WeekStartDay parses the configured first day of the week. Unknown values
// fall back to Sunday.
func (d Digest) WeekStartDay() time.Weekday {
	switch strings.ToLower(strings.TrimSpace(d.WeekStart)) {
	case "monday":
		return time.Monday
	case "tuesday":
		return time.Tuesday
	case "wednesday":
		return time.Wednesday
	case "thursday":
		return time.Thursday
	case "friday":
		return time.Friday
	case "saturday":
		return time.Saturday
	default:
		return time.Sunday
	}
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for rivalwatch.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "rivalwatch")
}

// DataDir returns the XDG data directory for rivalwatch.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "rivalwatch")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/rivalwatch/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'rivalwatch init' to create a default config",
		xdgConfig,
	)
}

// LoadDotEnv loads KEY=value pairs from the given .env files into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Load reads and parses a config YAML file. A .env file next to the config
// and one in the working directory are loaded first so API keys and SMTP
// credentials can live outside the YAML.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env"); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Scraping: Scraping{
			UserAgent:       "Mozilla/5.0 (compatible; RivalWatch/1.0)",
			Timeout:         30 * time.Second,
			MaxRetries:      3,
			RetryBaseDelay:  2 * time.Second,
			MaxRedirects:    5,
			ItemDelay:       time.Second,
			ReclassifyDelay: 500 * time.Millisecond,
		},
		LLM: LLM{
			Providers:          []string{"anthropic", "openai", "ollama"},
			OllamaURL:          "http://localhost:11434",
			Model:              "qwen2.5:7b",
			OpenAIModel:        "gpt-4o-mini",
			OpenAIAPIKeyEnv:    "OPENAI_API_KEY",
			AnthropicModel:     "claude-3-5-haiku-latest",
			AnthropicAPIKeyEnv: "ANTHROPIC_API_KEY",
			MaxTokens:          2048,
		},
		Email: Email{
			SMTPPort:    587,
			PasswordEnv: "SMTP_PASSWORD",
			From:        "alerts@example.com",
		},
		Schedule: Schedule{
			Scrape:       "*/10 * * * *",
			Reclassify:   "0 * * * *",
			Cleanup:      "0 2 * * *",
			DailyDigest:  "0 8 * * *",
			WeeklyDigest: "0 8 * * 1",
			Comparison:   "0 9 * * *",
		},
		Digest:  Digest{Timezone: "UTC", WeekStart: "sunday"},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if _, err := cfg.Digest.Location(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
