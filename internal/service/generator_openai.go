package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/appforge/internal/config"
	"github.com/timmy/appforge/internal/domain"
	"github.com/timmy/appforge/internal/prompts"
)

// OpenAIGenerator is the single-shot chat-completions backend.
type OpenAIGenerator struct {
	client    *resty.Client
	model     string
	maxTokens int
	endpoint  string
}

// NewOpenAIGenerator creates the chat-completions backend.
// Parameters:
//   - cfg: OpenAI configuration including API key and base URL.
//   - maxTokens: completion token budget.
//   - timeout: HTTP client timeout for the single request.
//
// Returns:
//   - *OpenAIGenerator: initialized backend.
func NewOpenAIGenerator(cfg *config.OpenAIConfig, maxTokens int, timeout time.Duration) *OpenAIGenerator {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &OpenAIGenerator{
		client:    client,
		model:     cfg.Model,
		maxTokens: maxTokens,
		endpoint:  baseURL + "/chat/completions",
	}
}

// Name returns the provider identifier.
func (g *OpenAIGenerator) Name() string {
	return "openai"
}

// OpenAI Chat Completion API request/response structures
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Generate sends one chat-completion request and returns the model text.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: prompts.GenerationSystemPrompt},
			{Role: "user", Content: prompts.WrapUserPrompt(prompt)},
		},
		MaxTokens: g.maxTokens,
	}

	var resp chatResponse
	httpResp, err := g.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(g.endpoint)

	if err != nil {
		return "", fmt.Errorf("%w: chat completion request: %v", domain.ErrGenerationFailed, err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		} else if len(httpResp.Body()) > 0 {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return "", fmt.Errorf("%w: chat completion API returned %s", domain.ErrGenerationFailed, errorMsg)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("%w: chat completion API error: %s", domain.ErrGenerationFailed, resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in chat completion response", domain.ErrGenerationFailed)
	}

	return resp.Choices[0].Message.Content, nil
}
