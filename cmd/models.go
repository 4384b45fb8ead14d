package cmd

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/longkey1/webchat/internal/chat"
	"github.com/spf13/cobra"
)

// modelsCmd represents the models command
var modelsCmd = &cobra.Command{
	Use:   "models [provider]",
	Short: "List available models for the specified provider(s)",
	Long: `List all available models for the specified provider.
Fetches the latest model information directly from the provider's API.

Supported providers: gemini, openai, anthropic, echo

If no provider is specified, lists models from all providers. Providers without
a configured token are skipped with a warning.

Example:
  webchat models           # List models from all providers
  webchat models gemini    # List Gemini models`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		router, err := newRouter(cfg)
		if err != nil {
			return fmt.Errorf("creating providers: %w", err)
		}

		providers := router.Names()
		if len(args) > 0 {
			if !slices.Contains(providers, args[0]) {
				return fmt.Errorf("unsupported provider '%s'\nSupported providers: %s", args[0], strings.Join(providers, ", "))
			}
			providers = []string{args[0]}
		}

		type providerResult struct {
			provider string
			models   []chat.ModelInfo
			err      error
		}
		var results []providerResult

		for _, name := range providers {
			log.WithField("provider", name).Debug("listing models")
			p, _ := router.Lookup(chat.FormatModelString(name, "any"))
			models, err := p.ListModels(cmd.Context())
			switch {
			case err != nil:
				err = fmt.Errorf("failed to list models: %w", err)
			case len(models) == 0:
				err = fmt.Errorf("no models returned from API")
			}
			results = append(results, providerResult{provider: name, models: models, err: err})
		}

		picker := cfg.PickerModels()
		successCount := 0
		for _, result := range results {
			if result.err != nil {
				continue
			}
			if successCount > 0 {
				fmt.Println()
			}
			successCount++
			printModels(result.provider, result.models, cfg.Model, picker)
		}
		if successCount > 0 {
			fmt.Printf("\nUse a model with: webchat chat --model <model>, or add it to 'models' for the web picker\n")
		}

		for _, result := range results {
			if result.err != nil {
				fmt.Fprintf(os.Stderr, "Warning: Skipping %s - %v\n", result.provider, result.err)
			}
		}
		return nil
	},
}

func printModels(provider string, models []chat.ModelInfo, defaultModel string, picker []string) {
	fmt.Printf("Available models for %s:\n\n", provider)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tDEFAULT\tPICKER\tDESCRIPTION")
	fmt.Fprintln(w, "-----\t-------\t------\t-----------")
	for _, m := range models {
		name := chat.FormatModelString(provider, m.ID)
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			name,
			yesIf(name == defaultModel || m.IsDefault),
			yesIf(slices.Contains(picker, name)),
			m.Description,
		)
	}
	w.Flush()
}

func yesIf(b bool) string {
	if b {
		return "yes"
	}
	return ""
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
