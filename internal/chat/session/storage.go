package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/longkey1/webchat/internal/chat"
	"github.com/spf13/viper"
)

var ErrTranscriptNotFound = errors.New("transcript not found")

// Transcript is a saved conversation from the terminal front end.
type Transcript struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Preset       string         `json:"preset"`        // Preset name (reference info, can be empty)
	SystemPrompt string         `json:"system_prompt"` // System prompt snapshot (can be empty)
	Model        string         `json:"model"`         // Format: "provider:model"
	Temperature  *float32       `json:"temperature,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Messages     []chat.Message `json:"messages"`
}

// GetShortID returns the shortened transcript ID (first 8 characters)
func (t *Transcript) GetShortID() string {
	if len(t.ID) >= 8 {
		return t.ID[:8]
	}
	return t.ID
}

// GetDisplayName returns the name if set, otherwise the short ID.
func (t *Transcript) GetDisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.GetShortID()
}

// MessageCount returns the number of messages in the transcript
func (t *Transcript) MessageCount() int {
	return len(t.Messages)
}

// AmbiguousIDError is returned when multiple transcripts match a prefix
type AmbiguousIDError struct {
	Prefix  string
	Matches []Transcript
}

func (e *AmbiguousIDError) Error() string {
	var lines []string
	lines = append(lines, fmt.Sprintf("Ambiguous transcript ID %q. Multiple matches found:", e.Prefix))
	for _, match := range e.Matches {
		lines = append(lines, fmt.Sprintf("- %s (%s, %s, %d messages)",
			match.GetShortID(),
			match.Model,
			match.CreatedAt.Format("2006-01-02"),
			match.MessageCount()))
	}
	lines = append(lines, "")
	lines = append(lines, "Please use a longer prefix or run 'webchat transcripts list'.")
	return strings.Join(lines, "\n")
}

// DefaultDir returns the directory where transcripts are stored.
// If a config file is used, transcripts live next to it.
// Otherwise, defaults to $HOME/.config/webchat/transcripts
func DefaultDir() (string, error) {
	configFile := viper.ConfigFileUsed()

	if configFile != "" {
		configDir := filepath.Dir(configFile)
		if !filepath.IsAbs(configDir) {
			cwd, err := os.Getwd()
			if err != nil {
				return "", fmt.Errorf("failed to get current working directory: %w", err)
			}
			configDir = filepath.Join(cwd, configDir)
		}
		return filepath.Join(configDir, "transcripts"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, ".config", "webchat", "transcripts"), nil
}

// SaveTranscript writes t to dir as <id>.json
func SaveTranscript(dir string, t *Transcript) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create transcript directory: %w", err)
	}

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize transcript: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, t.ID+".json"), data, 0644); err != nil {
		return fmt.Errorf("failed to write transcript file: %w", err)
	}
	return nil
}

// LoadTranscript loads a transcript by full ID
func LoadTranscript(dir, id string) (*Transcript, error) {
	data, err := os.ReadFile(filepath.Join(dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTranscriptNotFound, id)
		}
		return nil, fmt.Errorf("failed to read transcript file: %w", err)
	}

	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse transcript file %s: %w", id, err)
	}
	return &t, nil
}

// DeleteTranscript removes a transcript by full ID
func DeleteTranscript(dir, id string) error {
	if err := os.Remove(filepath.Join(dir, id+".json")); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrTranscriptNotFound, id)
		}
		return fmt.Errorf("failed to delete transcript file: %w", err)
	}
	return nil
}

// ListTranscripts returns all transcripts in dir, newest first.
// A missing directory yields an empty list.
func ListTranscripts(dir string) ([]Transcript, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read transcript directory: %w", err)
	}

	var transcripts []Transcript
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		t, err := LoadTranscript(dir, strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			// Skip corrupted files
			continue
		}
		transcripts = append(transcripts, *t)
	}

	sort.Slice(transcripts, func(i, j int) bool {
		return transcripts[i].UpdatedAt.After(transcripts[j].UpdatedAt)
	})
	return transcripts, nil
}

// FindTranscript finds a transcript by ID prefix (minimum 4 characters).
// "latest" returns the most recently updated transcript.
func FindTranscript(dir, prefix string) (*Transcript, error) {
	if prefix == "latest" {
		return LatestTranscript(dir)
	}

	if len(prefix) < 4 {
		return nil, fmt.Errorf("transcript ID prefix must be at least 4 characters (got %d)", len(prefix))
	}

	// Full UUID
	if len(prefix) == 36 && strings.Count(prefix, "-") == 4 {
		return LoadTranscript(dir, prefix)
	}

	transcripts, err := ListTranscripts(dir)
	if err != nil {
		return nil, err
	}

	var matches []Transcript
	for _, t := range transcripts {
		if strings.HasPrefix(t.ID, prefix) {
			matches = append(matches, t)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrTranscriptNotFound, prefix)
	case 1:
		return &matches[0], nil
	default:
		return nil, &AmbiguousIDError{Prefix: prefix, Matches: matches}
	}
}

// LatestTranscript returns the most recently updated transcript
func LatestTranscript(dir string) (*Transcript, error) {
	transcripts, err := ListTranscripts(dir)
	if err != nil {
		return nil, err
	}
	if len(transcripts) == 0 {
		return nil, fmt.Errorf("%w: no transcripts saved yet", ErrTranscriptNotFound)
	}
	return &transcripts[0], nil
}
