package cmd

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/longkey1/webchat/internal/chat/config"
	"github.com/longkey1/webchat/internal/logging"
	"github.com/longkey1/webchat/internal/web"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configFields maps a field name to how it is printed. Secrets are masked.
var configFields = map[string]func(c *config.Config) string{
	"configfile":         func(*config.Config) string { return viper.ConfigFileUsed() },
	"model":              func(c *config.Config) string { return c.Model },
	"models":             func(c *config.Config) string { return strings.Join(c.PickerModels(), ",") },
	"temperature":        func(c *config.Config) string { return fmt.Sprint(c.Temperature) },
	"system_prompt":      func(c *config.Config) string { return c.SystemPrompt },
	"preset_dirs":        func(c *config.Config) string { return strings.Join(c.PresetDirs, ",") },
	"gemini_base_url":    func(c *config.Config) string { return c.GeminiBaseURL },
	"gemini_token":       func(c *config.Config) string { return logging.MaskToken(c.GeminiToken) },
	"openai_base_url":    func(c *config.Config) string { return c.OpenAIBaseURL },
	"openai_token":       func(c *config.Config) string { return logging.MaskToken(c.OpenAIToken) },
	"anthropic_base_url": func(c *config.Config) string { return c.AnthropicBaseURL },
	"anthropic_token":    func(c *config.Config) string { return logging.MaskToken(c.AnthropicToken) },
	"request_timeout":    func(c *config.Config) string { return c.RequestTimeout },
	"listen_addr":        func(c *config.Config) string { return c.ListenAddr },
	"app_password":       func(c *config.Config) string { return logging.MaskToken(c.AppPassword) },
	"password_hash":      func(c *config.Config) string { return setOrUnset(c.PasswordHash) },
	"session_secret":     func(c *config.Config) string { return setOrUnset(c.SessionSecret) },
	"session_ttl":        func(c *config.Config) string { return c.SessionTTL },
	"max_message_bytes":  func(c *config.Config) string { return fmt.Sprint(c.MaxMessageBytes) },
	"rate_limit":         func(c *config.Config) string { return fmt.Sprint(c.RateLimit) },
	"rate_burst":         func(c *config.Config) string { return fmt.Sprint(c.RateBurst) },
	"redis_addr":         func(c *config.Config) string { return c.RedisAddr },
	"transcript_dir":     func(c *config.Config) string { return c.TranscriptDir },
}

func configFieldNames() []string {
	names := make([]string, 0, len(configFields))
	for name := range configFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func setOrUnset(s string) string {
	if s == "" {
		return "(unset)"
	}
	return "(set)"
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config [field]",
	Short: "Display current configuration",
	Long: `Display the current configuration values.
This command shows all configuration values loaded from the config file,
the .env file and environment variables. Tokens and passwords are masked.

If a field name is specified, only that field's value is displayed.

Examples:
  webchat config                  # Show all configuration
  webchat config model            # Show only the default model
  webchat config gemini_token     # Show the masked Gemini token
  webchat config preset_dirs      # Show preset directories`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if len(args) > 0 {
			show, ok := configFields[strings.ToLower(args[0])]
			if !ok {
				return fmt.Errorf("unknown field: %s (available: %s)", args[0], strings.Join(configFieldNames(), ", "))
			}
			fmt.Println(show(cfg))
			return nil
		}

		for _, name := range configFieldNames() {
			fmt.Printf("%s: %s\n", name, configFields[name](cfg))
		}
		if err := cfg.CheckCredentials(); err != nil {
			fmt.Fprintf(os.Stderr, "\nWarning: %v\n", err)
		}
		return nil
	},
}

// hashPasswordCmd prints a bcrypt hash for the password_hash setting.
var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Print a bcrypt hash for password_hash",
	Long: `Read a password from standard input and print its bcrypt hash.
Put the result in password_hash so the plain password need not be stored.

Example:
  echo -n 'secret' | webchat config hash-password`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(cmd.InOrStdin())
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading password: %w", err)
		}
		password := strings.TrimRight(line, "\r\n")
		if password == "" {
			return fmt.Errorf("password is empty")
		}
		hash, err := web.HashPassword(password)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(hashPasswordCmd)
}
