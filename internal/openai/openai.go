package openai

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

	"github.com/longkey1/webchat/internal/chat"
)

const (
	ProviderName   = "openai"
	DefaultBaseURL = "https://api.openai.com/v1"
)

// ChatCompletionRequest represents the request body for the Chat Completions API
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// ChatMessage is one message of the conversation ("system", "user" or "assistant")
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse represents a non-streaming response
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// ChatCompletionChunk represents one SSE chunk of a streaming response
type ChatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// ModelsAPIResponse represents the response from the models endpoint
type ModelsAPIResponse struct {
	Data []struct {
		ID      string `json:"id"`
		OwnedBy string `json:"owned_by"`
	} `json:"data"`
}

// Config defines the configuration interface for the OpenAI provider
type Config interface {
	GetBaseURL(provider string) (string, error)
	GetToken(provider string) (string, error)
}

// Provider implements chat.Provider and chat.Streamer for OpenAI
type Provider struct {
	config Config
	client *http.Client
}

type Option func(*Provider)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// NewProvider creates a new OpenAI provider instance
func NewProvider(config Config, opts ...Option) *Provider {
	p := &Provider{
		config: config,
		client: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// buildMessages converts the conversation to the Chat Completions shape
func buildMessages(req chat.Request) []ChatMessage {
	messages := make([]ChatMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, msg := range req.History {
		messages = append(messages, ChatMessage{Role: string(msg.Role), Content: msg.Content})
	}
	return append(messages, ChatMessage{Role: "user", Content: req.Text})
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
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func (p *Provider) do(req *http.Request) (*http.Response, error) {
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &chat.APIError{Provider: ProviderName, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return resp, nil
}

func (p *Provider) completionRequest(req chat.Request, stream bool) (ChatCompletionRequest, error) {
	_, modelName, err := chat.ParseModelString(req.Model)
	if err != nil {
		return ChatCompletionRequest{}, fmt.Errorf("invalid model format: %w", err)
	}
	return ChatCompletionRequest{
		Model:       modelName,
		Messages:    buildMessages(req),
		Temperature: req.Temperature,
		Stream:      stream,
	}, nil
}

// Generate sends the conversation and returns the reply text.
// A reply without text yields "" and no error.
func (p *Provider) Generate(ctx context.Context, req chat.Request) (string, error) {
	body, err := p.completionRequest(req, false)
	if err != nil {
		return "", err
	}
	httpReq, err := p.newRequest(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return "", err
	}
	resp, err := p.do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var result ChatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("error parsing response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", nil
	}
	return result.Choices[0].Message.Content, nil
}

// GenerateStream is Generate with server-sent events; onChunk receives each
// content delta.
func (p *Provider) GenerateStream(ctx context.Context, req chat.Request, onChunk func(chunk string) error) (string, error) {
	body, err := p.completionRequest(req, true)
	if err != nil {
		return "", err
	}
	httpReq, err := p.newRequest(ctx, http.MethodPost, "/chat/completions", body)
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
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk ChatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return full.String(), fmt.Errorf("error parsing stream chunk: %w", err)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}

		content := chunk.Choices[0].Delta.Content
		full.WriteString(content)
		if err := onChunk(content); err != nil {
			return full.String(), err
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), fmt.Errorf("error reading stream: %w", err)
	}
	return full.String(), nil
}

// ListModels returns the chat-capable models from the API
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
		if !isChatModel(m.ID) {
			continue
		}
		models = append(models, chat.ModelInfo{
			Provider:    ProviderName,
			ID:          m.ID,
			Description: "Owned by " + m.OwnedBy,
		})
	}

	// Sort models by ID (descending order)
	sort.Slice(models, func(i, j int) bool {
		return models[i].ID > models[j].ID
	})
	return models, nil
}

// isChatModel filters out embedding, audio, image and moderation models
func isChatModel(id string) bool {
	if !strings.HasPrefix(id, "gpt-") && !strings.HasPrefix(id, "o") && !strings.HasPrefix(id, "chatgpt-") {
		return false
	}
	for _, skip := range []string{"embedding", "tts", "whisper", "dall-e", "audio", "realtime", "transcribe", "image", "moderation"} {
		if strings.Contains(id, skip) {
			return false
		}
	}
	return true
}
