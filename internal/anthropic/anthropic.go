package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/longkey1/webchat/internal/chat"
)

const (
	ProviderName     = "anthropic"
	DefaultBaseURL   = "https://api.anthropic.com/v1"
	AnthropicVersion = "2023-06-01"
	DefaultMaxTokens = 8192
)

// ModelsAPIResponse represents the response from Anthropic's models endpoint
type ModelsAPIResponse struct {
	Data []ModelData `json:"data"`
}

// ModelData represents a single model in the API response
type ModelData struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// MessagesAPIRequest represents the request body for Anthropic's Messages API
type MessagesAPIRequest struct {
	Model       string         `json:"model"`
	MaxTokens   int            `json:"max_tokens"`
	System      string         `json:"system,omitempty"`
	Messages    []MessageInput `json:"messages"`
	Temperature *float32       `json:"temperature,omitempty"`
	Stream      bool           `json:"stream,omitempty"`
}

// MessageInput represents a message in the conversation
type MessageInput struct {
	Role    string    `json:"role"` // "user" or "assistant"
	Content []Content `json:"content"`
}

// Content represents a content block
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// MessagesAPIResponse represents the response from Anthropic's Messages API
type MessagesAPIResponse struct {
	ID         string    `json:"id"`
	Content    []Content `json:"content"`
	StopReason string    `json:"stop_reason"`
	Error      *APIError `json:"error,omitempty"`
}

// StreamEvent is the data payload of one streaming event
type StreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error *APIError `json:"error,omitempty"`
}

// APIError represents an error in the API response
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Config defines the configuration interface for Anthropic provider
type Config interface {
	GetBaseURL(provider string) (string, error)
	GetToken(provider string) (string, error)
}

// Provider implements chat.Provider and chat.Streamer for Anthropic
type Provider struct {
	config    Config
	client    *http.Client
	maxTokens int
}

type Option func(*Provider)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// WithMaxTokens sets max_tokens, which the Messages API requires.
func WithMaxTokens(n int) Option {
	return func(p *Provider) {
		p.maxTokens = n
	}
}

// NewProvider creates a new Anthropic provider instance
func NewProvider(config Config, opts ...Option) *Provider {
	p := &Provider{
		config:    config,
		client:    http.DefaultClient,
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func textContent(text string) []Content {
	return []Content{{Type: "text", Text: text}}
}

func (p *Provider) messagesRequest(req chat.Request, stream bool) (MessagesAPIRequest, error) {
	_, modelName, err := chat.ParseModelString(req.Model)
	if err != nil {
		return MessagesAPIRequest{}, fmt.Errorf("invalid model format: %w", err)
	}

	messages := make([]MessageInput, 0, len(req.History)+1)
	for _, msg := range req.History {
		messages = append(messages, MessageInput{Role: string(msg.Role), Content: textContent(msg.Content)})
	}
	messages = append(messages, MessageInput{Role: "user", Content: textContent(req.Text)})

	return MessagesAPIRequest{
		Model:       modelName,
		MaxTokens:   p.maxTokens,
		System:      req.SystemPrompt,
		Messages:    messages,
		Temperature: clampTemperature(req.Temperature),
		Stream:      stream,
	}, nil
}

// clampTemperature maps the 0-2 range used elsewhere onto Anthropic's 0-1.
func clampTemperature(t *float32) *float32 {
	if t == nil || *t <= 1 {
		return t
	}
	one := float32(1)
	return &one
}

func (p *Provider) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	token, err := p.config.GetToken(ProviderName)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	baseURL, err := p.config.GetBaseURL(ProviderName)
	if err != nil {
		return nil, fmt.Errorf("failed to get base URL: %w", err)
	}

	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error marshaling request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("x-api-key", token)
	req.Header.Set("anthropic-version", AnthropicVersion)
	return req, nil
}

func (p *Provider) do(req *http.Request) (*http.Response, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	msg := string(body)
	var errResp MessagesAPIResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != nil {
		msg = fmt.Sprintf("[%s] %s", errResp.Error.Type, errResp.Error.Message)
	}
	return nil, &chat.APIError{Provider: ProviderName, StatusCode: resp.StatusCode, Body: msg}
}

// Generate sends the conversation and returns the text blocks of the reply.
// A reply without text yields "" and no error.
func (p *Provider) Generate(ctx context.Context, req chat.Request) (string, error) {
	body, err := p.messagesRequest(req, false)
	if err != nil {
		return "", err
	}
	httpReq, err := p.newRequest(ctx, http.MethodPost, "/messages", body)
	if err != nil {
		return "", err
	}
	resp, err := p.do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result MessagesAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to parse API response: %w", err)
	}
	if result.Error != nil {
		return "", fmt.Errorf("API error [%s]: %s", result.Error.Type, result.Error.Message)
	}

	var textBlocks []string
	for _, content := range result.Content {
		if content.Type == "text" && content.Text != "" {
			textBlocks = append(textBlocks, content.Text)
		}
	}
	return strings.Join(textBlocks, "\n"), nil
}

// GenerateStream streams the reply; onChunk receives each text delta.
func (p *Provider) GenerateStream(ctx context.Context, req chat.Request, onChunk func(chunk string) error) (string, error) {
	body, err := p.messagesRequest(req, true)
	if err != nil {
		return "", err
	}
	httpReq, err := p.newRequest(ctx, http.MethodPost, "/messages", body)
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		var event StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &event); err != nil {
			return full.String(), fmt.Errorf("error parsing stream event: %w", err)
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta.Type != "text_delta" || event.Delta.Text == "" {
				continue
			}
			full.WriteString(event.Delta.Text)
			if err := onChunk(event.Delta.Text); err != nil {
				return full.String(), err
			}
		case "error":
			if event.Error != nil {
				return full.String(), fmt.Errorf("API error [%s]: %s", event.Error.Type, event.Error.Message)
			}
			return full.String(), fmt.Errorf("API error during streaming")
		case "message_stop":
			return full.String(), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("error reading stream: %w", err)
	}
	return full.String(), nil
}

// ListModels returns the list of supported models from the API
func (p *Provider) ListModels(ctx context.Context) ([]chat.ModelInfo, error) {
	httpReq, err := p.newRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result ModelsAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse API response: %w", err)
	}

	models := make([]chat.ModelInfo, 0, len(result.Data))
	for _, m := range result.Data {
		models = append(models, chat.ModelInfo{
			Provider:    ProviderName,
			ID:          m.ID,
			Description: m.DisplayName,
		})
	}

	sort.Slice(models, func(i, j int) bool {
		return models[i].ID > models[j].ID
	})
	return models, nil
}
