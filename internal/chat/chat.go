// Package chat provides the core abstractions shared by the web and terminal front ends.
// It defines the conversation Message, the Request handed to a model backend and the
// Provider interface that every backend (gemini, openai, anthropic, echo) implements.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Role is the origin of a message in a conversation.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single message in a conversation
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ModelInfo represents information about an available model from a provider.
type ModelInfo struct {
	Provider    string `json:"provider"`              // Provider name (e.g., "gemini")
	ID          string `json:"id"`                    // Model identifier (e.g., "gemini-2.5-flash")
	Description string `json:"description,omitempty"` // Human-readable description of the model
	IsDefault   bool   `json:"is_default,omitempty"`  // Whether this is the configured default model
}

// Request is one remote model call: the prior conversation plus the new user text.
type Request struct {
	Model        string // "provider:model"
	SystemPrompt string
	Temperature  *float32 // nil leaves the provider default
	History      []Message
	Text         string
}

// Provider defines the interface for LLM providers.
//
// Generate returns an empty string with a nil error when the model answered
// without any text; callers decide how to present that.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// Streamer is implemented by providers that can deliver a reply incrementally.
// onChunk is called for every non-empty fragment; the full reply is returned at the end.
type Streamer interface {
	GenerateStream(ctx context.Context, req Request, onChunk func(chunk string) error) (string, error)
}

// APIError is returned by REST providers when the remote API answers with a non-2xx status.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (HTTP %d): %s", e.Provider, e.StatusCode, strings.TrimSpace(e.Body))
}

// ParseModelString parses a model string in "provider:model" format.
// Returns (provider, model, error).
//
// Example:
//
//	provider, model, err := ParseModelString("gemini:gemini-2.5-flash")
//	// provider = "gemini", model = "gemini-2.5-flash"
func ParseModelString(modelStr string) (string, string, error) {
	parts := strings.SplitN(modelStr, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid model format: %s (expected format: provider:model, e.g., gemini:gemini-2.5-flash)", modelStr)
	}

	provider := strings.TrimSpace(parts[0])
	model := strings.TrimSpace(parts[1])

	if provider == "" || model == "" {
		return "", "", fmt.Errorf("provider and model cannot be empty")
	}

	return provider, model, nil
}

// FormatModelString formats provider and model into "provider:model" format.
func FormatModelString(provider, model string) string {
	return fmt.Sprintf("%s:%s", provider, model)
}
