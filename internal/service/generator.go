package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/timmy/appforge/internal/config"
	"github.com/timmy/appforge/internal/domain"
)

// Generator is the contract every generation backend satisfies: wrap the
// prompt with the fixed instruction template, call the remote model, and
// return its raw text output. No streaming; one string per call.
type Generator interface {
	// Name returns the provider identifier used in API requests.
	Name() string

	// Generate produces raw model output for the prompt. Errors wrap
	// domain.ErrGenerationFailed or domain.ErrGenerationTimeout.
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorRegistry holds the configured backends keyed by provider name and
// knows which one serves as the default.
type GeneratorRegistry struct {
	generators      map[string]Generator
	defaultProvider string
}

// NewGeneratorRegistry builds the registry from configuration. Backends with
// no API key configured are left out, so provider validation at submit time
// also reflects what is actually usable.
func NewGeneratorRegistry(cfg *config.GenerationConfig) *GeneratorRegistry {
	reg := &GeneratorRegistry{
		generators:      make(map[string]Generator),
		defaultProvider: cfg.Provider,
	}

	if cfg.OpenAI.APIKey != "" {
		reg.Register(NewOpenAIGenerator(&cfg.OpenAI, cfg.MaxTokens, cfg.Timeout))
	}
	if cfg.Assistant.APIKey != "" && cfg.Assistant.AssistantID != "" {
		reg.Register(NewAssistantGenerator(&cfg.Assistant, cfg.Timeout))
	}
	if cfg.Claude.APIKey != "" {
		reg.Register(NewClaudeGenerator(&cfg.Claude, cfg.MaxTokens, cfg.Timeout))
	}

	return reg
}

// Register adds a backend to the registry.
func (r *GeneratorRegistry) Register(g Generator) {
	r.generators[g.Name()] = g
}

// Resolve returns the backend for provider, falling back to the default when
// provider is empty. Unknown or unconfigured providers are an invalid request.
func (r *GeneratorRegistry) Resolve(provider string) (Generator, error) {
	if provider == "" {
		provider = r.defaultProvider
	}
	g, ok := r.generators[provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown or unconfigured provider %q (available: %v)",
			domain.ErrInvalidRequest, provider, r.Providers())
	}
	return g, nil
}

// Providers lists the configured provider names, sorted for stable output.
func (r *GeneratorRegistry) Providers() []string {
	names := make([]string, 0, len(r.generators))
	for name := range r.generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
