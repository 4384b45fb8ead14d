package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		wantLevel logrus.Level
		wantErr   bool
	}{
		{name: "defaults", opts: Options{}, wantLevel: logrus.InfoLevel},
		{name: "verbose", opts: Options{Verbose: true, Level: "warn"}, wantLevel: logrus.DebugLevel},
		{name: "explicit level", opts: Options{Level: "error"}, wantLevel: logrus.ErrorLevel},
		{name: "json", opts: Options{Format: "json"}, wantLevel: logrus.InfoLevel},
		{name: "bad format", opts: Options{Format: "xml"}, wantErr: true},
		{name: "bad level", opts: Options{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && logger.GetLevel() != tt.wantLevel {
				t.Errorf("level = %v, want %v", logger.GetLevel(), tt.wantLevel)
			}
		})
	}
}

func TestNewJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: "json", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	logger.WithField("session", "abc").Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %q", buf.String())
	}
	if entry["msg"] != "hello" || entry["session"] != "abc" {
		t.Errorf("entry = %v", entry)
	}
}

func TestMaskToken(t *testing.T) {
	tests := map[string]string{
		"":                 "(not set)",
		"short":            "****",
		"sk-1234567890abc": "sk-1****0abc",
	}
	for in, want := range tests {
		if got := MaskToken(in); got != want {
			t.Errorf("MaskToken(%q) = %q, want %q", in, got, want)
		}
	}
}
