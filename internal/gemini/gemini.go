package gemini

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/longkey1/webchat/internal/chat"
	"google.golang.org/genai"
)

const (
	ProviderName   = "gemini"
	DefaultBaseURL = "https://generativelanguage.googleapis.com/"
)

// Config defines the configuration interface for Gemini provider
type Config interface {
	GetBaseURL(provider string) (string, error)
	GetToken(provider string) (string, error)
}

// Provider implements chat.Provider and chat.Streamer on top of the genai SDK
type Provider struct {
	config     Config
	httpClient *http.Client

	mu     sync.Mutex
	client *genai.Client
}

type Option func(*Provider)

func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// NewProvider creates a new Gemini provider instance. The SDK client is
// created on first use so that a missing token only fails the calls that need it.
func NewProvider(config Config, opts ...Option) *Provider {
	p := &Provider{config: config}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) genaiClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	token, err := p.config.GetToken(ProviderName)
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	cc := &genai.ClientConfig{
		APIKey:     token,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if baseURL, err := p.config.GetBaseURL(ProviderName); err == nil && baseURL != "" {
		cc.HTTPOptions.BaseURL = strings.TrimRight(baseURL, "/") + "/"
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	p.client = client
	return client, nil
}

// toContents converts the history plus the new text into genai contents.
// Assistant messages take Gemini's "model" role.
func toContents(history []chat.Message, text string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, msg := range history {
		var role genai.Role = genai.RoleUser
		if msg.Role == chat.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	return append(contents, genai.NewContentFromText(text, genai.RoleUser))
}

func generateConfig(req chat.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: req.Temperature,
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	return cfg
}

func modelName(req chat.Request) (string, error) {
	_, name, err := chat.ParseModelString(req.Model)
	if err != nil {
		return "", fmt.Errorf("invalid model format: %w", err)
	}
	return name, nil
}

// Generate sends the conversation and returns the reply text.
// A reply without text (for example a blocked prompt) yields "" and no error.
func (p *Provider) Generate(ctx context.Context, req chat.Request) (string, error) {
	name, err := modelName(req)
	if err != nil {
		return "", err
	}
	client, err := p.genaiClient(ctx)
	if err != nil {
		return "", err
	}

	res, err := client.Models.GenerateContent(ctx, name, toContents(req.History, req.Text), generateConfig(req))
	if err != nil {
		return "", fmt.Errorf("gemini generate content: %w", err)
	}
	return res.Text(), nil
}

// GenerateStream streams the reply; onChunk receives each text piece.
func (p *Provider) GenerateStream(ctx context.Context, req chat.Request, onChunk func(chunk string) error) (string, error) {
	name, err := modelName(req)
	if err != nil {
		return "", err
	}
	client, err := p.genaiClient(ctx)
	if err != nil {
		return "", err
	}

	var full strings.Builder
	for res, err := range client.Models.GenerateContentStream(ctx, name, toContents(req.History, req.Text), generateConfig(req)) {
		if err != nil {
			return full.String(), fmt.Errorf("gemini stream: %w", err)
		}
		text := res.Text()
		if text == "" {
			continue
		}
		full.WriteString(text)
		if err := onChunk(text); err != nil {
			return full.String(), err
		}
	}
	return full.String(), nil
}

// ListModels returns the models that support generateContent
func (p *Provider) ListModels(ctx context.Context) ([]chat.ModelInfo, error) {
	client, err := p.genaiClient(ctx)
	if err != nil {
		return nil, err
	}

	var models []chat.ModelInfo
	for m, err := range client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("listing gemini models: %w", err)
		}
		if info, ok := modelInfo(m); ok {
			models = append(models, info)
		}
	}

	// Sort models by ID (descending order)
	sort.Slice(models, func(i, j int) bool {
		return models[i].ID > models[j].ID
	})
	return models, nil
}

func modelInfo(m *genai.Model) (chat.ModelInfo, bool) {
	if !slices.Contains(m.SupportedActions, "generateContent") {
		return chat.ModelInfo{}, false
	}
	description := m.Description
	if description == "" {
		description = m.DisplayName
	}
	return chat.ModelInfo{
		Provider:    ProviderName,
		ID:          strings.TrimPrefix(m.Name, "models/"),
		Description: description,
	}, true
}
