package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/longkey1/webchat/internal/chat/session"
	"github.com/longkey1/webchat/internal/term"
	"github.com/spf13/cobra"
)

const defaultRetentionDays = 30

var assumeYes bool

// transcriptsCmd represents the transcripts command
var transcriptsCmd = &cobra.Command{
	Use:     "transcripts",
	Aliases: []string{"transcript", "t"},
	Short:   "Manage saved terminal conversations",
	Long: `Manage conversations saved from 'webchat chat' with /save or --autosave.

IDs can be a short ID (minimum 4 characters), full UUID, or "latest" for the
most recently updated transcript.`,
}

// transcriptsListCmd represents the transcripts list command
var transcriptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved transcripts",
	Long:  `List all saved transcripts sorted by most recently updated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := transcriptDirFromConfig()
		if err != nil {
			return err
		}
		transcripts, err := session.ListTranscripts(dir)
		if err != nil {
			return fmt.Errorf("listing transcripts: %w", err)
		}

		if len(transcripts) == 0 {
			fmt.Println("No transcripts found.")
			fmt.Println("\nSave a conversation with /save inside:")
			fmt.Println("  webchat chat")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMODEL\tUPDATED\tMESSAGES\tNAME")
		fmt.Fprintln(w, "--\t-----\t-------\t--------\t----")
		for _, t := range transcripts {
			name := t.Name
			if name == "" {
				name = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				t.GetShortID(),
				t.Model,
				t.UpdatedAt.Format("2006-01-02 15:04"),
				t.MessageCount(),
				name,
			)
		}
		w.Flush()

		fmt.Println("\nUse 'webchat transcripts show <id>' to read one.")
		return nil
	},
}

// transcriptsShowCmd represents the transcripts show command
var transcriptsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := transcriptDirFromConfig()
		if err != nil {
			return err
		}
		t, err := session.FindTranscript(dir, args[0])
		if err != nil {
			return fmt.Errorf("finding transcript: %w", err)
		}

		plain, _ := cmd.Flags().GetBool("plain")
		renderer, err := term.NewRenderer(80, plain)
		if err != nil {
			return err
		}

		fmt.Printf("Transcript: %s\n", t.ID)
		if t.Name != "" {
			fmt.Printf("Name: %s\n", t.Name)
		}
		fmt.Printf("Model: %s\n", t.Model)
		if t.Preset != "" {
			fmt.Printf("Preset: %s\n", t.Preset)
		}
		if t.SystemPrompt != "" {
			fmt.Printf("System Prompt: %s\n", t.SystemPrompt)
		}
		fmt.Printf("Created: %s\n", t.CreatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Updated: %s\n", t.UpdatedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Messages: %d\n\n", t.MessageCount())

		if t.MessageCount() == 0 {
			fmt.Println("No messages in this transcript.")
			return nil
		}
		for _, msg := range t.Messages {
			fmt.Printf("%s %s\n\n", renderer.Message(msg), term.Dim(msg.Timestamp.Format("15:04")))
		}

		fmt.Printf("Continue this conversation with:\n  webchat chat --resume %s\n", t.GetShortID())
		return nil
	},
}

// transcriptsDeleteCmd represents the transcripts delete command
var transcriptsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a transcript",
	Long: `Delete a saved transcript permanently.

Warning: This action cannot be undone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := transcriptDirFromConfig()
		if err != nil {
			return err
		}
		t, err := session.FindTranscript(dir, args[0])
		if err != nil {
			return fmt.Errorf("finding transcript: %w", err)
		}

		if !confirm(fmt.Sprintf("Are you sure you want to delete transcript %s?", t.GetShortID())) {
			fmt.Println("Deletion cancelled.")
			return nil
		}
		if err := session.DeleteTranscript(dir, t.ID); err != nil {
			return fmt.Errorf("deleting transcript: %w", err)
		}
		fmt.Printf("Transcript %s deleted.\n", t.GetShortID())
		return nil
	},
}

// transcriptsRenameCmd represents the transcripts rename command
var transcriptsRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a transcript",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := transcriptDirFromConfig()
		if err != nil {
			return err
		}
		t, err := session.FindTranscript(dir, args[0])
		if err != nil {
			return fmt.Errorf("finding transcript: %w", err)
		}

		t.Name = args[1]
		if err := session.SaveTranscript(dir, t); err != nil {
			return fmt.Errorf("saving transcript: %w", err)
		}
		fmt.Printf("Transcript %s renamed to %q.\n", t.GetShortID(), t.Name)
		return nil
	},
}

// transcriptsClearCmd represents the transcripts clear command
var transcriptsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete old transcripts",
	Long: `Delete old transcripts permanently.

By default, deletes transcripts last updated more than 30 days ago.
Use --before to specify a different date, or --all to delete everything.

Examples:
  webchat transcripts clear                      # Older than 30 days
  webchat transcripts clear --before 2025-01-01  # Updated before 2025-01-01
  webchat transcripts clear --before 2025-06     # Updated before 2025-06-01
  webchat transcripts clear --all                # Delete all transcripts`,
	RunE: func(cmd *cobra.Command, args []string) error {
		beforeStr, _ := cmd.Flags().GetString("before")
		deleteAll, _ := cmd.Flags().GetBool("all")

		dir, err := transcriptDirFromConfig()
		if err != nil {
			return err
		}
		transcripts, err := session.ListTranscripts(dir)
		if err != nil {
			return fmt.Errorf("listing transcripts: %w", err)
		}

		before := time.Now().AddDate(0, 0, -defaultRetentionDays)
		if beforeStr != "" {
			if before, err = parseDate(beforeStr); err != nil {
				return fmt.Errorf("parsing date: %w", err)
			}
		}

		var targets []session.Transcript
		for _, t := range transcripts {
			if deleteAll || t.UpdatedAt.Before(before) {
				targets = append(targets, t)
			}
		}
		if len(targets) == 0 {
			fmt.Println("No transcripts to delete.")
			return nil
		}

		question := fmt.Sprintf("Are you sure you want to delete %d transcripts updated before %s?", len(targets), before.Format("2006-01-02"))
		if deleteAll {
			question = fmt.Sprintf("Are you sure you want to delete all %d transcripts?", len(targets))
		}
		if !confirm(question) {
			fmt.Println("Deletion cancelled.")
			return nil
		}

		deleted, failed := 0, 0
		for _, t := range targets {
			if err := session.DeleteTranscript(dir, t.ID); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to delete transcript %s: %v\n", t.GetShortID(), err)
				failed++
				continue
			}
			deleted++
		}

		fmt.Printf("Deleted %d transcripts", deleted)
		if failed > 0 {
			fmt.Printf(" (%d failed)", failed)
		}
		fmt.Println(".")
		return nil
	},
}

func transcriptDirFromConfig() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", fmt.Errorf("loading config: %w", err)
	}
	return transcriptDir(cfg)
}

// confirm asks a yes/no question on the terminal. --yes answers for the user.
func confirm(question string) bool {
	if assumeYes {
		return true
	}
	fmt.Printf("%s [y/N]: ", question)
	var response string
	fmt.Scanln(&response)
	return response == "y" || response == "Y"
}

// parseDate parses a date string in various formats and returns a time.Time
// Supported formats: YYYY-MM-DD, YYYY-MM, YYYY
func parseDate(dateStr string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.ParseInLocation(layout, dateStr, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date format: %s (use YYYY-MM-DD, YYYY-MM, or YYYY)", dateStr)
}

func init() {
	rootCmd.AddCommand(transcriptsCmd)
	transcriptsCmd.AddCommand(transcriptsListCmd)
	transcriptsCmd.AddCommand(transcriptsShowCmd)
	transcriptsCmd.AddCommand(transcriptsDeleteCmd)
	transcriptsCmd.AddCommand(transcriptsRenameCmd)
	transcriptsCmd.AddCommand(transcriptsClearCmd)

	transcriptsCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "Do not ask for confirmation")
	transcriptsShowCmd.Flags().Bool("plain", false, "Print messages without formatting")
	transcriptsClearCmd.Flags().String("before", "", "Delete only transcripts updated before this date (format: YYYY-MM-DD, YYYY-MM, or YYYY)")
	transcriptsClearCmd.Flags().Bool("all", false, "Delete all transcripts")
}
