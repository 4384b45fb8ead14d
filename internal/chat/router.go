package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Router dispatches requests to the provider named by the model prefix.
// It implements both Provider and Streamer; providers without streaming
// support deliver their reply as a single chunk.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{providers: make(map[string]Provider)}
}

// Register adds or replaces the provider for name.
func (r *Router) Register(name string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Names returns the registered provider names in sorted order.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the provider serving model (format: provider:model).
func (r *Router) Lookup(model string) (Provider, error) {
	providerName, _, err := ParseModelString(model)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	p, ok := r.providers[providerName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", providerName)
	}
	return p, nil
}

// Generate implements Provider.
func (r *Router) Generate(ctx context.Context, req Request) (string, error) {
	p, err := r.Lookup(req.Model)
	if err != nil {
		return "", err
	}
	return p.Generate(ctx, req)
}

// GenerateStream implements Streamer.
func (r *Router) GenerateStream(ctx context.Context, req Request, onChunk func(string) error) (string, error) {
	p, err := r.Lookup(req.Model)
	if err != nil {
		return "", err
	}
	if s, ok := p.(Streamer); ok {
		return s.GenerateStream(ctx, req, onChunk)
	}

	reply, err := p.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	if reply != "" {
		if err := onChunk(reply); err != nil {
			return reply, err
		}
	}
	return reply, nil
}

// ListModels collects the models of every registered provider. Providers that
// fail are skipped; the first failure is returned alongside the partial list.
func (r *Router) ListModels(ctx context.Context) ([]ModelInfo, error) {
	var (
		models   []ModelInfo
		firstErr error
	)
	for _, name := range r.Names() {
		r.mu.RLock()
		p := r.providers[name]
		r.mu.RUnlock()

		list, err := p.ListModels(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("listing %s models: %w", name, err)
			}
			continue
		}
		models = append(models, list...)
	}
	return models, firstErr
}
