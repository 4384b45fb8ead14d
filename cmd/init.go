package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/longkey1/webchat/internal/chat/config"
	"github.com/longkey1/webchat/internal/chat/preset"
	"github.com/spf13/cobra"
)

const examplePresetName = "translator"

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the configuration file",
	Long: `Initialize the configuration file with default settings.
The config file will be created at $HOME/.config/webchat/config.toml by default.
You can specify a different location using the --config option.

A presets directory with one example preset is created next to it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile := filepath.Join(userConfigDir(), "config.toml")
		if cfgFile != "" {
			configFile = cfgFile
		}

		configDir := filepath.Dir(configFile)
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}

		if _, err := os.Stat(configFile); err == nil {
			return fmt.Errorf("config file already exists at: %s", configFile)
		}

		presetsDir := filepath.Join(configDir, "presets")
		cfg := config.NewDefaultConfig(presetsDir)

		if err := writeTOML(configFile, cfg, 0600); err != nil {
			return err
		}

		if err := os.MkdirAll(presetsDir, 0755); err != nil {
			return fmt.Errorf("failed to create presets directory: %w", err)
		}
		examplePath := filepath.Join(presetsDir, examplePresetName+".toml")
		if _, err := os.Stat(examplePath); os.IsNotExist(err) {
			temp := 0.2
			example := &preset.Preset{
				Description: "Translate between English and Japanese",
				System: "Translate the user's text. English becomes Japanese, anything else becomes English.\n" +
					"Reply with the translation only.",
				Temperature: &temp,
			}
			if err := writeTOML(examplePath, example, 0644); err != nil {
				return err
			}
		}

		fmt.Printf("Configuration file created at: %s\n", configFile)
		fmt.Printf("Presets directory created at: %s\n", presetsDir)
		return nil
	},
}

// writeTOML creates path exclusively and encodes v into it.
func writeTOML(path string, v any, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(initCmd)
}
