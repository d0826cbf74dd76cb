package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/appforge/internal/config"
	"github.com/timmy/appforge/internal/domain"
	"github.com/timmy/appforge/internal/prompts"
)

// ClaudeGenerator is the single-shot Anthropic messages backend.
type ClaudeGenerator struct {
	client    *resty.Client
	model     string
	maxTokens int
	endpoint  string
}

// NewClaudeGenerator creates the Anthropic backend.
func NewClaudeGenerator(cfg *config.ClaudeConfig, maxTokens int, timeout time.Duration) *ClaudeGenerator {
	client := resty.New()
	client.SetHeader("x-api-key", cfg.APIKey)
	client.SetHeader("anthropic-version", "2023-06-01")
	client.SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	return &ClaudeGenerator{
		client:    client,
		model:     cfg.Model,
		maxTokens: maxTokens,
		endpoint:  baseURL + "/v1/messages",
	}
}

// Name returns the provider identifier.
func (g *ClaudeGenerator) Name() string {
	return "claude"
}

type claudeRequest struct {
	Model     string          `json:"model"`
	System    string          `json:"system"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *apiError `json:"error,omitempty"`
}

// Generate sends one messages request and concatenates the text parts.
func (g *ClaudeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := claudeRequest{
		Model:     g.model,
		System:    prompts.GenerationSystemPrompt,
		MaxTokens: g.maxTokens,
		Messages: []claudeMessage{
			{Role: "user", Content: prompts.WrapUserPrompt(prompt)},
		},
	}

	var resp claudeResponse
	httpResp, err := g.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(g.endpoint)

	if err != nil {
		return "", fmt.Errorf("%w: messages request: %v", domain.ErrGenerationFailed, err)
	}

	if httpResp.IsError() {
		return "", fmt.Errorf("%w: messages API returned %s", domain.ErrGenerationFailed,
			apiErrorText(httpResp.StatusCode(), resp.Error))
	}

	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: no text content in messages response", domain.ErrGenerationFailed)
	}

	return strings.Join(parts, "\n"), nil
}
