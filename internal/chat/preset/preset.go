// Package preset loads named chat presets (system prompt, model, temperature)
// from TOML files.
package preset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/longkey1/webchat/internal/chat"
	"github.com/longkey1/webchat/internal/chat/session"
)

// Preset represents the structure of a TOML preset file
type Preset struct {
	Name        string   `toml:"-"`
	Description string   `toml:"description,omitempty"`
	System      string   `toml:"system"`
	Model       *string  `toml:"model,omitempty"`
	Temperature *float64 `toml:"temperature,omitempty"`
}

// Entry is a preset found on disk.
type Entry struct {
	Name string // Relative path without extension, forward slashes (e.g., "code/review")
	Dir  string // Preset directory the file was found in
	Path string
}

// Load reads a preset file and validates it
func Load(filePath string) (*Preset, error) {
	var p Preset
	if _, err := toml.DecodeFile(filePath, &p); err != nil {
		return nil, fmt.Errorf("error decoding preset file: %w", err)
	}

	if p.Model != nil {
		if _, _, err := chat.ParseModelString(*p.Model); err != nil {
			return nil, fmt.Errorf("invalid model format in preset %s: %w", filePath, err)
		}
	}
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		return nil, fmt.Errorf("temperature in preset %s must be between 0 and 2 (got %g)", filePath, *p.Temperature)
	}
	return &p, nil
}

// Find loads the preset called name. When several directories contain it,
// later directories take precedence.
func Find(name string, dirs []string) (*Preset, error) {
	file := name
	if !strings.HasSuffix(file, ".toml") {
		file = file + ".toml"
	}

	var path string
	for _, dir := range dirs {
		candidate := filepath.Join(dir, file)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	if path == "" {
		return nil, fmt.Errorf("preset '%s' not found in any of the preset directories: %v", name, dirs)
	}

	p, err := Load(path)
	if err != nil {
		return nil, err
	}
	p.Name = strings.TrimSuffix(name, ".toml")
	return p, nil
}

// List returns every preset in dirs sorted by name. A name present in
// several directories is reported once, from the directory Find would use.
// Missing directories are skipped.
func List(dirs []string) ([]Entry, error) {
	found := make(map[string]Entry)

	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			continue
		}

		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() || !strings.HasSuffix(info.Name(), ".toml") {
				return nil
			}

			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return nil
			}
			name := filepath.ToSlash(strings.TrimSuffix(rel, ".toml"))
			found[name] = Entry{Name: name, Dir: dir, Path: path}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("error walking preset directory %s: %w", dir, err)
		}
	}

	entries := make([]Entry, 0, len(found))
	for _, e := range found {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Apply returns s with the preset's values laid over it. Fields the preset
// leaves unset keep their current value.
func (p *Preset) Apply(s session.Settings) session.Settings {
	s.Preset = p.Name
	if p.System != "" {
		s.SystemPrompt = p.System
	}
	if p.Model != nil {
		s.Model = *p.Model
	}
	if p.Temperature != nil {
		t := float32(*p.Temperature)
		s.Temperature = &t
	}
	return s
}
