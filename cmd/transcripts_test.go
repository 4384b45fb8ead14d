package cmd

import (
	"bytes"
	"slices"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Time
		wantErr bool
	}{
		{"2025-06-15", time.Date(2025, 6, 15, 0, 0, 0, 0, time.Local), false},
		{"2025-06", time.Date(2025, 6, 1, 0, 0, 0, 0, time.Local), false},
		{"2025", time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local), false},
		{"15/06/2025", time.Time{}, true},
		{"", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestConfigFieldNames(t *testing.T) {
	names := configFieldNames()
	if !slices.IsSorted(names) {
		t.Errorf("field names not sorted: %v", names)
	}
	for _, want := range []string{"model", "gemini_token", "app_password", "rate_limit", "transcript_dir"} {
		if !slices.Contains(names, want) {
			t.Errorf("missing field %q", want)
		}
	}
}

func TestHashPassword(t *testing.T) {
	var out bytes.Buffer
	hashPasswordCmd.SetIn(strings.NewReader("s3cret\n"))
	hashPasswordCmd.SetOut(&out)
	t.Cleanup(func() {
		hashPasswordCmd.SetIn(nil)
		hashPasswordCmd.SetOut(nil)
	})

	if err := hashPasswordCmd.RunE(hashPasswordCmd, nil); err != nil {
		t.Fatalf("hash-password error = %v", err)
	}
	hash := strings.TrimSpace(out.String())
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")); err != nil {
		t.Errorf("printed hash does not match password: %v", err)
	}

	hashPasswordCmd.SetIn(strings.NewReader("\n"))
	if err := hashPasswordCmd.RunE(hashPasswordCmd, nil); err == nil {
		t.Error("empty password accepted")
	}
}
