package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/longkey1/webchat/internal/chat/preset"
	"github.com/spf13/cobra"
)

var withDir bool

// presetsCmd represents the presets command
var presetsCmd = &cobra.Command{
	Use:   "presets [name]",
	Short: "List available presets or show one",
	Long: `List all presets from the configured preset directories, or show the
contents of a single preset.

A preset is a TOML file that sets the starting point of a conversation:
description = "Short text shown in listings"
system = "System prompt"
model = "provider:model"   # Optional
temperature = 0.2          # Optional, 0-2

Preset names are relative paths from the preset directory root, so a file at
${preset_dir}/code/review.toml is called "code/review". When the same name
exists in several directories, the later directory wins.

Presets are offered in the web sidebar and with 'webchat chat --preset <name>'.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		if len(args) == 1 {
			p, err := preset.Find(args[0], cfg.PresetDirs)
			if err != nil {
				return err
			}
			fmt.Printf("Preset: %s\n", p.Name)
			if p.Description != "" {
				fmt.Printf("Description: %s\n", p.Description)
			}
			if p.Model != nil {
				fmt.Printf("Model: %s\n", *p.Model)
			}
			if p.Temperature != nil {
				fmt.Printf("Temperature: %.1f\n", *p.Temperature)
			}
			fmt.Printf("System prompt:\n%s\n", p.System)
			return nil
		}

		entries, err := preset.List(cfg.PresetDirs)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No presets found.")
			fmt.Println("Create .toml files in the following directories:")
			for _, dir := range cfg.PresetDirs {
				fmt.Printf("  - %s\n", dir)
			}
			return nil
		}

		fmt.Printf("Available presets (%d found):\n\n", len(entries))
		for _, e := range entries {
			line := "  " + e.Name
			if p, err := preset.Load(e.Path); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			} else if p.Description != "" {
				line += " - " + p.Description
			}
			if withDir {
				line += fmt.Sprintf(" (from %s)", e.Dir)
			}
			fmt.Println(strings.TrimRight(line, " "))
		}

		fmt.Printf("\nUse a preset with: webchat chat --preset <name>\n")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(presetsCmd)
	presetsCmd.Flags().BoolVar(&withDir, "with-dir", false, "Show the directory each preset was found in")
}
