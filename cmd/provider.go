package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/longkey1/webchat/internal/anthropic"
	"github.com/longkey1/webchat/internal/chat"
	"github.com/longkey1/webchat/internal/chat/config"
	"github.com/longkey1/webchat/internal/chat/session"
	"github.com/longkey1/webchat/internal/echo"
	"github.com/longkey1/webchat/internal/gemini"
	"github.com/longkey1/webchat/internal/openai"
)

// newRouter registers every supported provider. Credentials are checked
// lazily, so a provider without a token only fails when it is used.
func newRouter(cfg *config.Config) (*chat.Router, error) {
	timeout, err := cfg.GetRequestTimeout()
	if err != nil {
		return nil, err
	}
	httpClient := newHTTPClient(timeout)

	router := chat.NewRouter()
	router.Register(gemini.ProviderName, gemini.NewProvider(cfg, gemini.WithHTTPClient(httpClient)))
	router.Register(openai.ProviderName, openai.NewProvider(cfg, openai.WithHTTPClient(httpClient)))
	router.Register(anthropic.ProviderName, anthropic.NewProvider(cfg, anthropic.WithHTTPClient(httpClient)))
	router.Register(echo.ProviderName, echo.NewProvider())

	if _, err := router.Lookup(cfg.Model); err != nil {
		return nil, fmt.Errorf("default model: %w", err)
	}
	return router, nil
}

// newHTTPClient bounds the wait for a provider's response headers, not the
// whole response, so long streamed replies are not cut off. Non-streaming
// APIs send their headers with the finished reply and stay bounded.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: transport}
}

// defaultSettings returns the settings new conversations start with.
func defaultSettings(cfg *config.Config) session.Settings {
	return session.Settings{
		Model:        cfg.Model,
		SystemPrompt: cfg.SystemPrompt,
		Temperature:  cfg.GetTemperature(),
	}
}
