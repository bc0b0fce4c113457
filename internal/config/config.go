// Package config loads chorus settings from the environment, an optional
// .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete chorus configuration
type Config struct {
	OpenAI  OpenAIConfig  `yaml:"openai"`
	Speech  SpeechConfig  `yaml:"speech"`
	Agent   AgentConfig   `yaml:"agent"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
}

// OpenAIConfig holds the chat-completion deployment settings
type OpenAIConfig struct {
	Endpoint     string  `yaml:"endpoint"`
	APIKey       string  `yaml:"api_key"`
	Deployment   string  `yaml:"deployment"`
	SystemPrompt string  `yaml:"system_prompt"`
	MaxTokens    int64   `yaml:"max_tokens"`
	Temperature  float64 `yaml:"temperature"`
}

// SpeechConfig holds speech service credentials and local audio commands
type SpeechConfig struct {
	Provider        string   `yaml:"provider"` // "azure" or "google"
	Key             string   `yaml:"key"`
	Region          string   `yaml:"region"`
	RecordSeconds   int      `yaml:"record_seconds"`
	CaptureCommand  []string `yaml:"capture_command"`
	PlaybackCommand []string `yaml:"playback_command"`
}

// AgentConfig holds the search-grounded agent settings
type AgentConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	Key             string        `yaml:"key"`
	APIVersion      string        `yaml:"api_version"`
	Connection      string        `yaml:"connection"`
	Name            string        `yaml:"name"`
	Instructions    string        `yaml:"instructions"`
	PollInterval    time.Duration `yaml:"-"`
	MaxPollAttempts int           `yaml:"max_poll_attempts"`

	PollIntervalRaw string `yaml:"poll_interval"`
}

// StoreConfig selects where chat history is recorded
type StoreConfig struct {
	Driver        string `yaml:"driver"` // "sqlite", "redis" or "none"
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

const (
	DefaultSystemPrompt = "You are a helpful assistant that answers the user's questions."
	DefaultInstructions = "You are a helpful assistant with live web search. " +
		"When the user asks about recent information, use the Bing Search tool. " +
		"Keep answers short and clear, and cite your sources."
)

// Default returns the configuration used before any file or environment
// variable is applied.
func Default() *Config {
	dataDir := defaultDataDir()
	return &Config{
		OpenAI: OpenAIConfig{
			SystemPrompt: DefaultSystemPrompt,
			MaxTokens:    1000,
			Temperature:  0.7,
		},
		Speech: SpeechConfig{
			Provider:      "azure",
			RecordSeconds: 5,
		},
		Agent: AgentConfig{
			APIVersion:      "v1",
			Name:            "RealTimeSearchAgent",
			Instructions:    DefaultInstructions,
			PollInterval:    time.Second,
			MaxPollAttempts: 60,
		},
		Store: StoreConfig{
			Driver:    "sqlite",
			Path:      filepath.Join(dataDir, "chorus.db"),
			RedisAddr: "localhost:6379",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   filepath.Join(dataDir, "chorus.log"),
		},
	}
}

// Load builds a Config from defaults, an optional YAML file at path and the
// process environment, in that order of precedence (environment wins).
// A .env file in the working directory is loaded first if present.
// Environment variables in the YAML file in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
		if err := parseDurations(cfg); err != nil {
			return nil, fmt.Errorf("parsing durations: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the credentials for every remote service are present,
// that the speech provider and store driver are known, and that agent polling
// is bounded.
func (c *Config) Validate() error {
	if c.OpenAI.Endpoint == "" || c.OpenAI.APIKey == "" {
		return fmt.Errorf("AZURE_OPENAI_ENDPOINT and AZURE_OPENAI_API_KEY must be set")
	}
	if c.OpenAI.Deployment == "" {
		return fmt.Errorf("AZURE_OPENAI_DEPLOYMENT_NAME must be set")
	}
	switch c.Speech.Provider {
	case "azure":
		if c.Speech.Key == "" || c.Speech.Region == "" {
			return fmt.Errorf("AZURE_SPEECH_KEY and AZURE_SPEECH_REGION must be set")
		}
	case "google":
	default:
		return fmt.Errorf("speech.provider %q is not supported (use azure or google)", c.Speech.Provider)
	}
	if c.Agent.Endpoint == "" || c.Agent.Key == "" {
		return fmt.Errorf("AZURE_AI_PROJECT_ENDPOINT and AZURE_AI_PROJECT_KEY must be set")
	}
	if c.Agent.MaxPollAttempts <= 0 {
		return fmt.Errorf("agent.max_poll_attempts must be positive")
	}
	if c.Agent.PollInterval <= 0 {
		return fmt.Errorf("agent.poll_interval must be positive")
	}
	switch c.Store.Driver {
	case "sqlite", "redis", "none":
	default:
		return fmt.Errorf("store.driver %q is not supported (use sqlite, redis or none)", c.Store.Driver)
	}
	return nil
}

var envVarRE = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarRE.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarRE.FindStringSubmatch(match)[1])
	})
}

func parseDurations(cfg *Config) error {
	if cfg.Agent.PollIntervalRaw == "" {
		return nil
	}
	d, err := time.ParseDuration(cfg.Agent.PollIntervalRaw)
	if err != nil {
		return fmt.Errorf("parsing poll_interval %q: %w", cfg.Agent.PollIntervalRaw, err)
	}
	cfg.Agent.PollInterval = d
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.OpenAI.Endpoint, "AZURE_OPENAI_ENDPOINT")
	setString(&cfg.OpenAI.APIKey, "AZURE_OPENAI_API_KEY")
	setString(&cfg.OpenAI.Deployment, "AZURE_OPENAI_DEPLOYMENT_NAME")
	setString(&cfg.Speech.Key, "AZURE_SPEECH_KEY")
	setString(&cfg.Speech.Region, "AZURE_SPEECH_REGION")
	setString(&cfg.Speech.Provider, "CHORUS_SPEECH_PROVIDER")
	setString(&cfg.Agent.Endpoint, "AZURE_AI_PROJECT_ENDPOINT")
	setString(&cfg.Agent.Key, "AZURE_AI_PROJECT_KEY")
	setString(&cfg.Agent.Connection, "BING_CONNECTION_NAME")
	setString(&cfg.Store.Driver, "CHORUS_STORE")
	setString(&cfg.Store.RedisAddr, "REDIS_ADDR")
	setString(&cfg.Logging.Level, "CHORUS_LOG_LEVEL")

	if v := os.Getenv("CHORUS_POLL_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing CHORUS_POLL_INTERVAL %q: %w", v, err)
		}
		cfg.Agent.PollInterval = d
	}
	if v := os.Getenv("CHORUS_MAX_POLL_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing CHORUS_MAX_POLL_ATTEMPTS %q: %w", v, err)
		}
		cfg.Agent.MaxPollAttempts = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func defaultDataDir() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, herr := os.UserHomeDir()
		if herr != nil {
			return "."
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "chorus")
}
