// Package echo is an offline provider that answers by repeating the user's
// text. It needs no credential and is used for local development and tests.
package echo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/longkey1/webchat/internal/chat"
)

const ProviderName = "echo"

// Provider implements chat.Provider and chat.Streamer.
type Provider struct {
	delay time.Duration
}

type Option func(*Provider)

// WithDelay waits d between streamed words.
func WithDelay(d time.Duration) Option {
	return func(p *Provider) {
		p.delay = d
	}
}

func NewProvider(opts ...Option) *Provider {
	p := &Provider{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Reply builds the deterministic answer for req.
func Reply(req chat.Request) string {
	_, model, _ := chat.ParseModelString(req.Model)
	text := strings.TrimSpace(req.Text)

	switch {
	case strings.HasPrefix(text, "/empty"):
		return ""
	case strings.HasPrefix(text, "/code"):
		return fmt.Sprintf("Here is your code:\n```go\n%s\n```\nTurn %d.", strings.TrimSpace(strings.TrimPrefix(text, "/code")), len(req.History)/2+1)
	}
	return fmt.Sprintf("[%s] You said: %s (turn %d)", model, text, len(req.History)/2+1)
}

// Generate returns Reply(req). Text starting with "/fail" produces an error
// and "/empty" a reply without text.
func (p *Provider) Generate(ctx context.Context, req chat.Request) (string, error) {
	if strings.HasPrefix(strings.TrimSpace(req.Text), "/fail") {
		return "", &chat.APIError{Provider: ProviderName, StatusCode: 500, Body: "simulated failure"}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return Reply(req), nil
}

// GenerateStream delivers Generate's reply word by word.
func (p *Provider) GenerateStream(ctx context.Context, req chat.Request, onChunk func(chunk string) error) (string, error) {
	reply, err := p.Generate(ctx, req)
	if err != nil || reply == "" {
		return "", err
	}

	var sent strings.Builder
	for _, word := range strings.SplitAfter(reply, " ") {
		if p.delay > 0 {
			select {
			case <-ctx.Done():
				return sent.String(), ctx.Err()
			case <-time.After(p.delay):
			}
		}
		sent.WriteString(word)
		if err := onChunk(word); err != nil {
			return sent.String(), err
		}
	}
	return sent.String(), nil
}

func (p *Provider) ListModels(ctx context.Context) ([]chat.ModelInfo, error) {
	return []chat.ModelInfo{
		{Provider: ProviderName, ID: "echo", Description: "Repeats your message (offline)"},
	}, nil
}
