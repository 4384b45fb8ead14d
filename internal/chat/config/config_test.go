package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

func TestExpandEnvVar(t *testing.T) {
	t.Setenv("WEBCHAT_TEST_KEY", "abc123")

	tests := []struct {
		name    string
		value   string
		want    string
		wantRef bool
	}{
		{"literal", "plain-token", "plain-token", false},
		{"dollar", "$WEBCHAT_TEST_KEY", "abc123", true},
		{"braces", "${WEBCHAT_TEST_KEY}", "abc123", true},
		{"unset", "$WEBCHAT_TEST_UNSET", "", true},
		{"empty", "", "", false},
		{"bcrypt hash", "$2a$10$abcdefghijklmnopqrstuv", "$2a$10$abcdefghijklmnopqrstuv", false},
		{"password with dollar", "$ecret Pass", "$ecret Pass", false},
		{"unbalanced brace", "${WEBCHAT_TEST_KEY", "${WEBCHAT_TEST_KEY", false},
		{"embedded", "x$WEBCHAT_TEST_KEY", "x$WEBCHAT_TEST_KEY", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ref := expandEnvVar(tt.value)
			if got != tt.want || ref != tt.wantRef {
				t.Errorf("expandEnvVar(%q) = %q, %v, want %q, %v", tt.value, got, ref, tt.want, tt.wantRef)
			}
		})
	}
}

// clearBoundEnv blanks the variables bound to secret keys so the host
// environment does not leak into config file tests.
func clearBoundEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"gemini_token", "openai_token", "anthropic_token", "app_password", "session_secret", "redis_password"} {
		for _, name := range EnvNames(key) {
			t.Setenv(name, "")
		}
	}
}

// loadFile reads content as the config file and returns LoadConfig's result.
func loadFile(t *testing.T, content string) (*Config, string) {
	t.Helper()
	dir := t.TempDir()
	file := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(file, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.SetConfigFile(file)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatal(err)
	}

	c, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	return c, dir
}

func TestGetBaseURL(t *testing.T) {
	c := &Config{
		OpenAIBaseURL:    "https://api.openai.com/v1/",
		GeminiBaseURL:    "https://generativelanguage.googleapis.com/",
		AnthropicBaseURL: "",
	}

	tests := []struct {
		provider string
		want     string
		wantErr  string
	}{
		{"openai", "https://api.openai.com/v1", ""},
		{"gemini", "https://generativelanguage.googleapis.com", ""},
		{"anthropic", "", "WEBCHAT_ANTHROPIC_BASE_URL"},
		{"mistral", "", "unsupported provider"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			got, err := c.GetBaseURL(tt.provider)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("GetBaseURL() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("GetBaseURL() = %q, %v, want %q", got, err, tt.want)
			}
		})
	}
}

func TestCheckCredentials(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"gemini with token", Config{Model: "gemini:gemini-2.5-flash", GeminiToken: "k"}, false},
		{"gemini without token", Config{Model: "gemini:gemini-2.5-flash"}, true},
		{"openai without token", Config{Model: "openai:gpt-4o", GeminiToken: "k"}, true},
		{"anthropic with token", Config{Model: "anthropic:claude-sonnet-4-5", AnthropicToken: "k"}, false},
		{"echo needs nothing", Config{Model: "echo:dev"}, false},
		{"malformed model", Config{Model: "gpt-4o"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.CheckCredentials()
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckCredentials() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPickerModels(t *testing.T) {
	c := &Config{
		Model:  "openai:gpt-4o",
		Models: []string{"gemini:gemini-2.5-flash", "openai:gpt-4o", "anthropic:claude-sonnet-4-5"},
	}
	want := []string{"openai:gpt-4o", "gemini:gemini-2.5-flash", "anthropic:claude-sonnet-4-5"}
	if got := c.PickerModels(); !slices.Equal(got, want) {
		t.Errorf("PickerModels() = %v, want %v", got, want)
	}
}

func TestDurations(t *testing.T) {
	tests := []struct {
		value   string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"90s", 90 * time.Second, false},
		{"24h", 24 * time.Hour, false},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			c := &Config{SessionTTL: tt.value, RequestTimeout: tt.value}
			ttl, err := c.SessionIdleTTL()
			if (err != nil) != tt.wantErr || ttl != tt.want {
				t.Errorf("SessionIdleTTL() = %v, %v", ttl, err)
			}
			timeout, err := c.GetRequestTimeout()
			if (err != nil) != tt.wantErr || timeout != tt.want {
				t.Errorf("GetRequestTimeout() = %v, %v", timeout, err)
			}
		})
	}
}

func TestNewDefaultConfig(t *testing.T) {
	c := NewDefaultConfig("/tmp/presets")
	if c.Model != DefaultModel || c.PickerModels()[0] != DefaultModel {
		t.Errorf("default model = %q", c.Model)
	}
	if *c.GetTemperature() != float32(DefaultTemperature) {
		t.Errorf("temperature = %v", *c.GetTemperature())
	}
	if !slices.Equal(c.PresetDirs, []string{"/tmp/presets"}) {
		t.Errorf("preset dirs = %v", c.PresetDirs)
	}
}

func TestLoadConfig(t *testing.T) {
	clearBoundEnv(t)
	t.Setenv("WEBCHAT_TEST_OPENAI", "sk-test")
	t.Setenv("WEBCHAT_TEST_PASSWORD", "hunter2")

	c, dir := loadFile(t, `
model = "openai:gpt-4o"
models = ["gemini:gemini-2.5-flash"]
temperature = 0.3
openai_token = "$WEBCHAT_TEST_OPENAI"
app_password = "${WEBCHAT_TEST_PASSWORD}"
preset_dirs = ["presets", "/abs/presets"]
transcript_dir = "transcripts"
max_message_bytes = 100
`)

	if c.OpenAIToken != "sk-test" || c.AppPassword != "hunter2" {
		t.Errorf("secrets not expanded: token %q password %q", c.OpenAIToken, c.AppPassword)
	}
	if err := c.CheckAuth(); err != nil {
		t.Errorf("CheckAuth() error = %v", err)
	}
	if c.Temperature != 0.3 || c.MaxMessageBytes != 100 {
		t.Errorf("temperature %v max bytes %d", c.Temperature, c.MaxMessageBytes)
	}
	wantDirs := []string{filepath.Join(dir, "presets"), "/abs/presets"}
	if !slices.Equal(c.PresetDirs, wantDirs) {
		t.Errorf("preset dirs = %v, want %v", c.PresetDirs, wantDirs)
	}
	if c.TranscriptDir != filepath.Join(dir, "transcripts") {
		t.Errorf("transcript dir = %q", c.TranscriptDir)
	}
}

func TestLoadConfigKeepsPasswordHash(t *testing.T) {
	clearBoundEnv(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	c, _ := loadFile(t, fmt.Sprintf("model = \"echo:dev\"\npassword_hash = %q\napp_password = \"$ecret Pass!\"\n", hash))

	if c.PasswordHash != string(hash) {
		t.Errorf("PasswordHash = %q, want %q", c.PasswordHash, hash)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte("s3cret")); err != nil {
		t.Errorf("loaded hash does not verify: %v", err)
	}
	if c.AppPassword != "$ecret Pass!" {
		t.Errorf("AppPassword = %q, want literal value", c.AppPassword)
	}
}

func TestLoadConfigEnvValuesAreLiteral(t *testing.T) {
	clearBoundEnv(t)
	t.Setenv("APP_PASSWORD", "$ecretPass")

	file := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(file, []byte("model = \"echo:dev\"\napp_password = \"$APP_PASSWORD\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.SetEnvPrefix("WEBCHAT")
	viper.AutomaticEnv()
	if err := viper.BindEnv(append([]string{"app_password"}, EnvNames("app_password")...)...); err != nil {
		t.Fatal(err)
	}
	viper.SetConfigFile(file)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatal(err)
	}

	c, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if c.AppPassword != "$ecretPass" {
		t.Errorf("AppPassword = %q, want the environment value unchanged", c.AppPassword)
	}
	if err := c.CheckAuth(); err != nil {
		t.Errorf("CheckAuth() error = %v", err)
	}
}

func TestCheckAuthUnresolvedPassword(t *testing.T) {
	clearBoundEnv(t)

	c, _ := loadFile(t, "model = \"echo:dev\"\napp_password = \"$WEBCHAT_TEST_MISSING_PASSWORD\"\n")

	if c.AppPassword != "" {
		t.Errorf("AppPassword = %q, want empty", c.AppPassword)
	}
	err := c.CheckAuth()
	if err == nil || !strings.Contains(err.Error(), "$WEBCHAT_TEST_MISSING_PASSWORD") {
		t.Errorf("CheckAuth() error = %v, want unresolved reference named", err)
	}
}

func TestLoadConfigRejectsBadModel(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("model", "gemini:gemini-2.5-flash")
	viper.Set("models", []string{"no-provider"})

	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() accepted a model without provider prefix")
	}
}
