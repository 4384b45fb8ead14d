package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseModelString(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{
			name:         "valid gemini model",
			input:        "gemini:gemini-2.5-flash",
			wantProvider: "gemini",
			wantModel:    "gemini-2.5-flash",
		},
		{
			name:         "valid openai model",
			input:        "openai:gpt-4.1",
			wantProvider: "openai",
			wantModel:    "gpt-4.1",
		},
		{
			name:         "model with colon",
			input:        "openai:o1:2024-12-17",
			wantProvider: "openai",
			wantModel:    "o1:2024-12-17",
		},
		{
			name:         "with whitespace",
			input:        " gemini : gemini-2.5-pro ",
			wantProvider: "gemini",
			wantModel:    "gemini-2.5-pro",
		},
		{
			name:    "missing colon",
			input:   "gemini-2.5-flash",
			wantErr: true,
		},
		{
			name:    "empty provider",
			input:   ":gpt-4",
			wantErr: true,
		},
		{
			name:    "empty model",
			input:   "openai:",
			wantErr: true,
		},
		{
			name:    "empty string",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, model, err := ParseModelString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseModelString() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if provider != tt.wantProvider {
				t.Errorf("ParseModelString() provider = %v, want %v", provider, tt.wantProvider)
			}
			if model != tt.wantModel {
				t.Errorf("ParseModelString() model = %v, want %v", model, tt.wantModel)
			}
		})
	}
}

func TestFormatModelString(t *testing.T) {
	got := FormatModelString("anthropic", "claude-sonnet-4-5")
	if got != "anthropic:claude-sonnet-4-5" {
		t.Errorf("FormatModelString() = %q", got)
	}

	p, m, err := ParseModelString(got)
	if err != nil || p != "anthropic" || m != "claude-sonnet-4-5" {
		t.Errorf("ParseModelString(FormatModelString()) = %q, %q, %v", p, m, err)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{Provider: "openai", StatusCode: 429, Body: "quota exceeded\n"}
	if got := err.Error(); got != "openai API error (HTTP 429): quota exceeded" {
		t.Errorf("Error() = %q", got)
	}
}

type fakeProvider struct {
	name   string
	reply  string
	err    error
	models []ModelInfo
	got    Request
}

func (f *fakeProvider) Generate(ctx context.Context, req Request) (string, error) {
	f.got = req
	return f.reply, f.err
}

func (f *fakeProvider) ListModels(ctx context.Context) ([]ModelInfo, error) {
	return f.models, f.err
}

type fakeStreamer struct {
	fakeProvider
	chunks []string
}

func (f *fakeStreamer) GenerateStream(ctx context.Context, req Request, onChunk func(string) error) (string, error) {
	f.got = req
	for _, c := range f.chunks {
		if err := onChunk(c); err != nil {
			return "", err
		}
	}
	return strings.Join(f.chunks, ""), nil
}

func TestRouterDispatch(t *testing.T) {
	gem := &fakeProvider{name: "gemini", reply: "from gemini"}
	oai := &fakeProvider{name: "openai", reply: "from openai"}

	r := NewRouter()
	r.Register("gemini", gem)
	r.Register("openai", oai)

	tests := []struct {
		model   string
		want    string
		wantErr bool
	}{
		{model: "gemini:gemini-2.5-flash", want: "from gemini"},
		{model: "openai:gpt-4.1", want: "from openai"},
		{model: "anthropic:claude", wantErr: true},
		{model: "no-provider", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			got, err := r.Generate(context.Background(), Request{Model: tt.model, Text: "hi"})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Generate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Generate() = %q, want %q", got, tt.want)
			}
		})
	}

	if names := r.Names(); strings.Join(names, ",") != "gemini,openai" {
		t.Errorf("Names() = %v", names)
	}
}

func TestRouterStreamFallback(t *testing.T) {
	plain := &fakeProvider{reply: "whole reply"}
	streaming := &fakeStreamer{chunks: []string{"a", "b", "c"}}

	r := NewRouter()
	r.Register("plain", plain)
	r.Register("stream", streaming)

	var chunks []string
	collect := func(c string) error {
		chunks = append(chunks, c)
		return nil
	}

	got, err := r.GenerateStream(context.Background(), Request{Model: "plain:x"}, collect)
	if err != nil || got != "whole reply" {
		t.Fatalf("GenerateStream(plain) = %q, %v", got, err)
	}
	if len(chunks) != 1 || chunks[0] != "whole reply" {
		t.Errorf("plain chunks = %v", chunks)
	}

	chunks = nil
	got, err = r.GenerateStream(context.Background(), Request{Model: "stream:x"}, collect)
	if err != nil || got != "abc" {
		t.Fatalf("GenerateStream(stream) = %q, %v", got, err)
	}
	if strings.Join(chunks, "|") != "a|b|c" {
		t.Errorf("stream chunks = %v", chunks)
	}

	// An empty reply produces no chunk.
	plain.reply = ""
	chunks = nil
	if _, err := r.GenerateStream(context.Background(), Request{Model: "plain:x"}, collect); err != nil {
		t.Fatalf("GenerateStream(empty) error = %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("empty reply chunks = %v", chunks)
	}
}

func TestRouterListModels(t *testing.T) {
	failing := &fakeProvider{err: errors.New("no token")}
	ok := &fakeProvider{models: []ModelInfo{{Provider: "openai", ID: "gpt-4.1"}}}

	r := NewRouter()
	r.Register("gemini", failing)
	r.Register("openai", ok)

	models, err := r.ListModels(context.Background())
	if err == nil {
		t.Error("ListModels() expected error from failing provider")
	}
	if len(models) != 1 || models[0].ID != "gpt-4.1" {
		t.Errorf("ListModels() = %v", models)
	}
}
