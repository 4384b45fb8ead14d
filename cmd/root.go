package cmd

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/longkey1/webchat/internal/chat/config"
	"github.com/longkey1/webchat/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile   string
	envFile   string
	verbose   bool
	logFormat string

	log = logrus.StandardLogger()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "webchat",
	Short: "A small chat front end for hosted LLM APIs",
	Long: `webchat serves a browser chat page that forwards your messages to a hosted
large language model (Gemini, OpenAI or Anthropic) and shows the replies, with
fenced code blocks rendered separately from prose. An optional shared password
protects the page.

The same conversation engine is available in the terminal with 'webchat chat'.
You can configure the tool using a TOML configuration file.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogging, initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/webchat/config.toml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
}

func initLogging() {
	logger, err := logging.New(logging.Options{
		Format:  logFormat,
		Level:   os.Getenv("WEBCHAT_LOG_LEVEL"),
		Verbose: verbose,
		Output:  os.Stderr,
	})
	cobra.CheckErr(err)
	log = logger
}

func userConfigDir() string {
	home, err := os.UserHomeDir()
	cobra.CheckErr(err)
	return filepath.Join(home, ".config", "webchat")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.WithError(err).WithField("file", envFile).Warn("could not load env file")
			}
		} else {
			log.WithField("file", envFile).Debug("loaded env file")
		}
	}

	viper.SetEnvPrefix("WEBCHAT")
	viper.AutomaticEnv()

	userDir := userConfigDir()
	setDefaults(userDir)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			log.WithError(err).Fatal("could not read config file")
		}
		log.WithField("file", viper.ConfigFileUsed()).Debug("using config file")
		return
	}

	// System-wide config first, user config merged on top
	viper.SetConfigType("toml")
	viper.SetConfigName("config")
	for _, path := range []string{"/etc/webchat", "/usr/local/etc/webchat"} {
		viper.AddConfigPath(path)
	}

	systemConfigLoaded := false
	if err := viper.ReadInConfig(); err == nil {
		systemConfigLoaded = true
		log.WithField("file", viper.ConfigFileUsed()).Debug("loaded system-wide config")
	}

	userFile := filepath.Join(userDir, "config.toml")
	if _, err := os.Stat(userFile); err != nil {
		return
	}
	viper.SetConfigFile(userFile)
	var err error
	if systemConfigLoaded {
		err = viper.MergeInConfig()
	} else {
		err = viper.ReadInConfig()
	}
	if err != nil {
		log.WithError(err).WithField("file", userFile).Error("error reading config file")
		return
	}
	log.WithField("file", userFile).Debug("using config file")
}

// setDefaults registers every config key with viper, so each one can also be
// set through WEBCHAT_<KEY>. Secrets default to empty and are read from the
// environment names in config.EnvAliases.
func setDefaults(userDir string) {
	d := config.NewDefaultConfig(filepath.Join(userDir, "presets"))

	defaults := map[string]any{
		"model":              d.Model,
		"models":             d.Models,
		"temperature":        d.Temperature,
		"system_prompt":      d.SystemPrompt,
		"gemini_base_url":    d.GeminiBaseURL,
		"gemini_token":       "",
		"openai_base_url":    d.OpenAIBaseURL,
		"openai_token":       "",
		"anthropic_base_url": d.AnthropicBaseURL,
		"anthropic_token":    "",
		"request_timeout":    d.RequestTimeout,
		"listen_addr":        d.ListenAddr,
		"app_password":       "",
		"password_hash":      "",
		"session_secret":     "",
		"session_ttl":        d.SessionTTL,
		"max_message_bytes":  d.MaxMessageBytes,
		"rate_limit":         d.RateLimit,
		"rate_burst":         d.RateBurst,
		"redis_addr":         "",
		"redis_password":     "",
		"redis_db":           0,
		"transcript_dir":     "",
		// Later preset directories take precedence over earlier ones
		"preset_dirs": []string{
			"/usr/share/webchat/presets",
			"/usr/local/share/webchat/presets",
			filepath.Join(userDir, "presets"),
		},
	}
	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
	for key := range config.EnvAliases {
		_ = viper.BindEnv(append([]string{key}, config.EnvNames(key)...)...)
	}
}

// loadConfig returns the resolved configuration for a command.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"model":       cfg.Model,
		"preset_dirs": cfg.PresetDirs,
	}).Debug("configuration loaded")
	return cfg, nil
}
