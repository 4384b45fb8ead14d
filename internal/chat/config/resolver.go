package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/longkey1/webchat/internal/chat"
	"github.com/spf13/viper"
)

var envRef = regexp.MustCompile(`^\$(?:\{([A-Za-z_][A-Za-z0-9_]*)\}|([A-Za-z_][A-Za-z0-9_]*))$`)

// EnvAliases lists the variables read for a key besides WEBCHAT_<KEY>.
var EnvAliases = map[string][]string{
	"gemini_token":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"openai_token":    {"OPENAI_API_KEY"},
	"anthropic_token": {"ANTHROPIC_API_KEY"},
	"app_password":    {"APP_PASSWORD"},
	"redis_addr":      {"REDIS_ADDR"},
}

// EnvNames returns the environment variables bound to a config key, in
// priority order.
func EnvNames(key string) []string {
	return append([]string{"WEBCHAT_" + strings.ToUpper(key)}, EnvAliases[key]...)
}

// expandEnvVar replaces a whole-value $VAR or ${VAR} reference with the
// variable's value and reports whether value was a reference. Anything else,
// such as a bcrypt hash, is returned unchanged.
func expandEnvVar(value string) (string, bool) {
	m := envRef.FindStringSubmatch(value)
	if m == nil {
		return value, false
	}
	return os.Getenv(m[1] + m[2]), true
}

// resolveSecret expands a reference only when the value comes from the config
// file. The second result is true when a reference expanded to "".
func resolveSecret(key, value string) (string, bool) {
	if !viper.InConfig(key) {
		return value, false
	}
	for _, name := range EnvNames(key) {
		if os.Getenv(name) != "" {
			return value, false
		}
	}
	expanded, ref := expandEnvVar(value)
	return expanded, ref && expanded == ""
}

// endpoint is the connection data of one remote provider.
type endpoint struct {
	baseURL string
	token   string
}

func (c *Config) endpoint(provider string) (endpoint, error) {
	switch provider {
	case "gemini":
		return endpoint{c.GeminiBaseURL, c.GeminiToken}, nil
	case "openai":
		return endpoint{c.OpenAIBaseURL, c.OpenAIToken}, nil
	case "anthropic":
		return endpoint{c.AnthropicBaseURL, c.AnthropicToken}, nil
	}
	return endpoint{}, fmt.Errorf("unsupported provider: %s", provider)
}

func notConfigured(provider, what string) error {
	return fmt.Errorf("%s %s is not configured: set %s_%s in the config file or WEBCHAT_%s_%s in the environment",
		provider, strings.ReplaceAll(what, "_", " "),
		provider, what,
		strings.ToUpper(provider), strings.ToUpper(what))
}

// GetBaseURL returns the provider's API base URL without a trailing slash.
func (c *Config) GetBaseURL(provider string) (string, error) {
	ep, err := c.endpoint(provider)
	if err != nil {
		return "", err
	}
	if ep.baseURL == "" {
		return "", notConfigured(provider, "base_url")
	}
	return strings.TrimRight(ep.baseURL, "/"), nil
}

// GetToken returns the provider's API key. $VAR references were expanded by
// LoadConfig.
func (c *Config) GetToken(provider string) (string, error) {
	ep, err := c.endpoint(provider)
	if err != nil {
		return "", err
	}
	if ep.token == "" {
		return "", notConfigured(provider, "token")
	}
	return ep.token, nil
}

// CheckCredentials reports whether the provider of the default model has a token.
// Providers that need no credential (echo) always pass.
func (c *Config) CheckCredentials() error {
	return c.CheckCredentialsFor(c.Model)
}

// CheckCredentialsFor is CheckCredentials for any "provider:model" string.
func (c *Config) CheckCredentialsFor(model string) error {
	provider, _, err := chat.ParseModelString(model)
	if err != nil {
		return err
	}
	if _, err := c.endpoint(provider); err != nil {
		return nil
	}
	_, err = c.GetToken(provider)
	return err
}

// ResolvePath makes a relative path absolute against the directory of the
// config file in use, or the working directory when there is none.
func ResolvePath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}

	base := "."
	if used := viper.ConfigFileUsed(); used != "" {
		base = filepath.Dir(used)
	}
	abs, err := filepath.Abs(filepath.Join(base, path))
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", path, err)
	}
	return abs, nil
}
