package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"AZURE_OPENAI_ENDPOINT",
	"AZURE_OPENAI_API_KEY",
	"AZURE_OPENAI_DEPLOYMENT_NAME",
	"AZURE_SPEECH_KEY",
	"AZURE_SPEECH_REGION",
	"CHORUS_SPEECH_PROVIDER",
	"AZURE_AI_PROJECT_ENDPOINT",
	"AZURE_AI_PROJECT_KEY",
	"BING_CONNECTION_NAME",
	"CHORUS_STORE",
	"REDIS_ADDR",
	"CHORUS_LOG_LEVEL",
	"CHORUS_POLL_INTERVAL",
	"CHORUS_MAX_POLL_ATTEMPTS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func setFullEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
	t.Setenv("AZURE_OPENAI_API_KEY", "openai-key")
	t.Setenv("AZURE_OPENAI_DEPLOYMENT_NAME", "gpt-4o")
	t.Setenv("AZURE_SPEECH_KEY", "speech-key")
	t.Setenv("AZURE_SPEECH_REGION", "eastus")
	t.Setenv("AZURE_AI_PROJECT_ENDPOINT", "https://example.services.ai.azure.com/api/projects/p")
	t.Setenv("AZURE_AI_PROJECT_KEY", "project-key")
	t.Setenv("BING_CONNECTION_NAME", "bing-conn")
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chorus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_EnvironmentOnly(t *testing.T) {
	clearEnv(t)
	setFullEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://example.openai.azure.com", cfg.OpenAI.Endpoint)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Deployment)
	assert.Equal(t, "eastus", cfg.Speech.Region)
	assert.Equal(t, "bing-conn", cfg.Agent.Connection)
	assert.Equal(t, int64(1000), cfg.OpenAI.MaxTokens)
	assert.InDelta(t, 0.7, cfg.OpenAI.Temperature, 1e-9)
	assert.Equal(t, time.Second, cfg.Agent.PollInterval)
	assert.Equal(t, 60, cfg.Agent.MaxPollAttempts)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_YAMLWithEnvExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_CHORUS_KEY", "from-env")

	path := writeConfig(t, `
openai:
  endpoint: https://yaml.openai.azure.com
  api_key: ${TEST_CHORUS_KEY}
  deployment: gpt-4o-mini
  max_tokens: 256
agent:
  poll_interval: 250ms
  max_poll_attempts: 10
store:
  driver: none
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://yaml.openai.azure.com", cfg.OpenAI.Endpoint)
	assert.Equal(t, "from-env", cfg.OpenAI.APIKey)
	assert.Equal(t, int64(256), cfg.OpenAI.MaxTokens)
	assert.Equal(t, 250*time.Millisecond, cfg.Agent.PollInterval)
	assert.Equal(t, 10, cfg.Agent.MaxPollAttempts)
	assert.Equal(t, "none", cfg.Store.Driver)
	assert.Equal(t, "json", cfg.Logging.Format)
	// untouched defaults survive a partial file
	assert.Equal(t, "RealTimeSearchAgent", cfg.Agent.Name)
	assert.InDelta(t, 0.7, cfg.OpenAI.Temperature, 1e-9)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("AZURE_OPENAI_DEPLOYMENT_NAME", "env-deployment")
	t.Setenv("CHORUS_POLL_INTERVAL", "2s")

	path := writeConfig(t, `
openai:
  deployment: file-deployment
agent:
  poll_interval: 500ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-deployment", cfg.OpenAI.Deployment)
	assert.Equal(t, 2*time.Second, cfg.Agent.PollInterval)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")

	bad := writeConfig(t, "agent:\n  poll_interval: soon\n")
	_, err = Load(bad)
	assert.ErrorContains(t, err, "poll_interval")

	t.Setenv("CHORUS_MAX_POLL_ATTEMPTS", "many")
	_, err = Load("")
	assert.ErrorContains(t, err, "CHORUS_MAX_POLL_ATTEMPTS")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.OpenAI.Endpoint = "https://e"
		cfg.OpenAI.APIKey = "k"
		cfg.OpenAI.Deployment = "d"
		cfg.Speech.Key = "sk"
		cfg.Speech.Region = "eastus"
		cfg.Agent.Endpoint = "https://p"
		cfg.Agent.Key = "pk"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing openai key", func(c *Config) { c.OpenAI.APIKey = "" }, "AZURE_OPENAI_API_KEY"},
		{"missing deployment", func(c *Config) { c.OpenAI.Deployment = "" }, "AZURE_OPENAI_DEPLOYMENT_NAME"},
		{"missing speech region", func(c *Config) { c.Speech.Region = "" }, "AZURE_SPEECH_REGION"},
		{"google speech needs no azure key", func(c *Config) { c.Speech.Provider = "google"; c.Speech.Key = "" }, ""},
		{"unknown speech provider", func(c *Config) { c.Speech.Provider = "acme" }, "speech.provider"},
		{"missing project endpoint", func(c *Config) { c.Agent.Endpoint = "" }, "AZURE_AI_PROJECT_ENDPOINT"},
		{"zero attempts", func(c *Config) { c.Agent.MaxPollAttempts = 0 }, "max_poll_attempts"},
		{"unknown store", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
