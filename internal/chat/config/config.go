package config

import (
	"fmt"
	"time"

	"github.com/longkey1/webchat/internal/chat"
	"github.com/spf13/viper"
)

const (
	DefaultModel           = "gemini:gemini-3-flash-preview"
	DefaultListenAddr      = ":8080"
	DefaultTemperature     = 0.7
	DefaultMaxMessageBytes = 32 * 1024
	DefaultSessionTTL      = "24h"
	DefaultRequestTimeout  = "2m"

	DefaultSystemPrompt = "You are a helpful assistant. Answer clearly and concisely.\n" +
		"If the user asks for code, return it inside ``` fences with the language named.\n" +
		"Reply in the language and dialect the user writes in."
)

// Config holds the configuration for the chat front ends and the LLM providers
type Config struct {
	Model        string   `toml:"model" mapstructure:"model"`   // Format: "provider:model" (e.g., "gemini:gemini-2.5-flash")
	Models       []string `toml:"models" mapstructure:"models"` // Models offered in the web model picker
	Temperature  float64  `toml:"temperature" mapstructure:"temperature"`
	SystemPrompt string   `toml:"system_prompt" mapstructure:"system_prompt"`
	PresetDirs   []string `toml:"preset_dirs" mapstructure:"preset_dirs"`

	GeminiBaseURL    string `toml:"gemini_base_url" mapstructure:"gemini_base_url"`
	GeminiToken      string `toml:"gemini_token" mapstructure:"gemini_token"`
	OpenAIBaseURL    string `toml:"openai_base_url" mapstructure:"openai_base_url"`
	OpenAIToken      string `toml:"openai_token" mapstructure:"openai_token"`
	AnthropicBaseURL string `toml:"anthropic_base_url" mapstructure:"anthropic_base_url"`
	AnthropicToken   string `toml:"anthropic_token" mapstructure:"anthropic_token"`
	RequestTimeout   string `toml:"request_timeout" mapstructure:"request_timeout"` // "0" disables the client timeout

	ListenAddr      string  `toml:"listen_addr" mapstructure:"listen_addr"`
	AppPassword     string  `toml:"app_password" mapstructure:"app_password"`   // Shared password; empty leaves the app open
	PasswordHash    string  `toml:"password_hash" mapstructure:"password_hash"` // bcrypt hash, used instead of app_password when set
	SessionSecret   string  `toml:"session_secret" mapstructure:"session_secret"`
	SessionTTL      string  `toml:"session_ttl" mapstructure:"session_ttl"`
	MaxMessageBytes int     `toml:"max_message_bytes" mapstructure:"max_message_bytes"` // 0 = unlimited
	RateLimit       float64 `toml:"rate_limit" mapstructure:"rate_limit"`               // Messages per second per client, 0 = disabled
	RateBurst       int     `toml:"rate_burst" mapstructure:"rate_burst"`
	RedisAddr       string  `toml:"redis_addr" mapstructure:"redis_addr"` // Shared rate limit store; empty keeps limits in memory
	RedisPassword   string  `toml:"redis_password" mapstructure:"redis_password"`
	RedisDB         int     `toml:"redis_db" mapstructure:"redis_db"`

	TranscriptDir string `toml:"transcript_dir" mapstructure:"transcript_dir"` // Empty = next to the config file

	unresolvedPassword string // app_password reference that expanded to nothing
}

// GetModel returns the default model
func (c *Config) GetModel() string {
	return c.Model
}

// GetProvider extracts provider name from the model string
func (c *Config) GetProvider() (string, error) {
	provider, _, err := chat.ParseModelString(c.Model)
	return provider, err
}

// GetModelName extracts model name from the model string
func (c *Config) GetModelName() (string, error) {
	_, model, err := chat.ParseModelString(c.Model)
	return model, err
}

// GetTemperature returns the default temperature as the providers expect it.
func (c *Config) GetTemperature() *float32 {
	t := float32(c.Temperature)
	return &t
}

// PickerModels returns the models offered to web users. The default model is
// always first.
func (c *Config) PickerModels() []string {
	models := []string{c.Model}
	for _, m := range c.Models {
		if m != c.Model {
			models = append(models, m)
		}
	}
	return models
}

// SessionIdleTTL returns how long an untouched web session is kept.
func (c *Config) SessionIdleTTL() (time.Duration, error) {
	return parseDuration("session_ttl", c.SessionTTL)
}

// GetRequestTimeout returns the HTTP client timeout for provider calls.
func (c *Config) GetRequestTimeout() (time.Duration, error) {
	return parseDuration("request_timeout", c.RequestTimeout)
}

func parseDuration(field, value string) (time.Duration, error) {
	if value == "" || value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", field, value, err)
	}
	return d, nil
}

// NewDefaultConfig returns a new Config with default values
func NewDefaultConfig(presetDir string) *Config {
	return &Config{
		Model: DefaultModel,
		Models: []string{
			DefaultModel,
			"gemini:gemini-2.5-flash",
			"gemini:gemini-2.5-pro",
		},
		Temperature:      DefaultTemperature,
		SystemPrompt:     DefaultSystemPrompt,
		PresetDirs:       []string{presetDir},
		GeminiBaseURL:    "https://generativelanguage.googleapis.com/",
		GeminiToken:      "$GEMINI_API_KEY",
		OpenAIBaseURL:    "https://api.openai.com/v1",
		OpenAIToken:      "$OPENAI_API_KEY",
		AnthropicBaseURL: "https://api.anthropic.com/v1",
		AnthropicToken:   "$ANTHROPIC_API_KEY",
		RequestTimeout:   DefaultRequestTimeout,
		ListenAddr:       DefaultListenAddr,
		SessionTTL:       DefaultSessionTTL,
		MaxMessageBytes:  DefaultMaxMessageBytes,
		RateLimit:        1,
		RateBurst:        5,
	}
}

// CheckAuth fails when app_password names an environment variable that is
// unset or empty. Serving in that state would drop the login gate.
func (c *Config) CheckAuth() error {
	if c.unresolvedPassword != "" {
		return fmt.Errorf("app_password is set to %s, which resolves to an empty value", c.unresolvedPassword)
	}
	return nil
}

// LoadConfig loads configuration from viper
func LoadConfig() (*Config, error) {
	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %v", err)
	}

	if _, _, err := chat.ParseModelString(config.Model); err != nil {
		return nil, fmt.Errorf("invalid default model: %w", err)
	}
	for _, m := range config.Models {
		if _, _, err := chat.ParseModelString(m); err != nil {
			return nil, fmt.Errorf("invalid entry in models: %w", err)
		}
	}

	// Expand $VAR references written in the config file. Values taken from
	// the environment and password_hash are used as they are.
	for key, field := range map[string]*string{
		"gemini_token":    &config.GeminiToken,
		"openai_token":    &config.OpenAIToken,
		"anthropic_token": &config.AnthropicToken,
		"session_secret":  &config.SessionSecret,
		"redis_password":  &config.RedisPassword,
	} {
		*field, _ = resolveSecret(key, *field)
	}
	raw := config.AppPassword
	password, unresolved := resolveSecret("app_password", raw)
	config.AppPassword = password
	if unresolved {
		config.unresolvedPassword = raw
	}

	// Convert preset directories to absolute paths
	for i, presetDir := range config.PresetDirs {
		absPath, err := ResolvePath(presetDir)
		if err != nil {
			return nil, fmt.Errorf("error resolving preset directory path '%s': %v", presetDir, err)
		}
		config.PresetDirs[i] = absPath
	}

	if config.TranscriptDir != "" {
		absPath, err := ResolvePath(config.TranscriptDir)
		if err != nil {
			return nil, fmt.Errorf("error resolving transcript directory path '%s': %v", config.TranscriptDir, err)
		}
		config.TranscriptDir = absPath
	}

	return config, nil
}
