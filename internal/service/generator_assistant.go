package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/appforge/internal/config"
	"github.com/timmy/appforge/internal/domain"
	"github.com/timmy/appforge/internal/logger"
	"github.com/timmy/appforge/internal/prompts"
)

// AssistantGenerator is the OpenAI Assistants backend. Unlike the single-shot
// variants it is a create-thread/create-run/poll-until-terminal protocol with
// a bounded attempt count: roughly maxPolls * pollInterval of wall clock.
type AssistantGenerator struct {
	client       *resty.Client
	baseURL      string
	assistantID  string
	pollInterval time.Duration
	maxPolls     int
}

// NewAssistantGenerator creates the Assistants backend.
func NewAssistantGenerator(cfg *config.AssistantConfig, timeout time.Duration) *AssistantGenerator {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("OpenAI-Beta", "assistants=v2")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	maxPolls := cfg.MaxPolls
	if maxPolls <= 0 {
		maxPolls = 60
	}

	return &AssistantGenerator{
		client:       client,
		baseURL:      baseURL,
		assistantID:  cfg.AssistantID,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
	}
}

// Name returns the provider identifier.
func (g *AssistantGenerator) Name() string {
	return "assistant"
}

type assistantThread struct {
	ID    string    `json:"id"`
	Error *apiError `json:"error,omitempty"`
}

type assistantRun struct {
	ID     string    `json:"id"`
	Status string    `json:"status"`
	Error  *apiError `json:"error,omitempty"`
}

type assistantMessageList struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

// Generate drives the full thread lifecycle: create thread with the wrapped
// prompt, start a run, poll until a terminal status, then read the first
// assistant message. A run that asks for a mid-run action (requires_action)
// is treated as a failure since this pipeline supports no tool calls.
func (g *AssistantGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	threadID, err := g.createThread(ctx, prompts.WrapUserPrompt(prompt))
	if err != nil {
		return "", err
	}

	runID, err := g.createRun(ctx, threadID)
	if err != nil {
		return "", err
	}

	if err := g.waitForRun(ctx, threadID, runID); err != nil {
		return "", err
	}

	return g.firstAssistantMessage(ctx, threadID)
}

func (g *AssistantGenerator) createThread(ctx context.Context, content string) (string, error) {
	body := map[string]interface{}{
		"messages": []map[string]string{
			{"role": "user", "content": content},
		},
	}

	var thread assistantThread
	httpResp, err := g.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&thread).
		Post(g.baseURL + "/threads")
	if err != nil {
		return "", fmt.Errorf("%w: creating thread: %v", domain.ErrGenerationFailed, err)
	}
	if httpResp.IsError() || thread.ID == "" {
		return "", fmt.Errorf("%w: creating thread: %s", domain.ErrGenerationFailed, apiErrorText(httpResp.StatusCode(), thread.Error))
	}
	return thread.ID, nil
}

func (g *AssistantGenerator) createRun(ctx context.Context, threadID string) (string, error) {
	body := map[string]interface{}{
		"assistant_id": g.assistantID,
		"instructions": prompts.AssistantRunInstructions,
	}

	var run assistantRun
	httpResp, err := g.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&run).
		Post(fmt.Sprintf("%s/threads/%s/runs", g.baseURL, threadID))
	if err != nil {
		return "", fmt.Errorf("%w: creating run: %v", domain.ErrGenerationFailed, err)
	}
	if httpResp.IsError() || run.ID == "" {
		return "", fmt.Errorf("%w: creating run: %s", domain.ErrGenerationFailed, apiErrorText(httpResp.StatusCode(), run.Error))
	}
	return run.ID, nil
}

// waitForRun polls the run at a fixed interval up to maxPolls attempts.
func (g *AssistantGenerator) waitForRun(ctx context.Context, threadID, runID string) error {
	for attempt := 0; attempt < g.maxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", domain.ErrGenerationFailed, ctx.Err())
		case <-time.After(g.pollInterval):
		}

		var run assistantRun
		httpResp, err := g.client.R().
			SetContext(ctx).
			SetResult(&run).
			Get(fmt.Sprintf("%s/threads/%s/runs/%s", g.baseURL, threadID, runID))
		if err != nil {
			return fmt.Errorf("%w: polling run: %v", domain.ErrGenerationFailed, err)
		}
		if httpResp.IsError() {
			return fmt.Errorf("%w: polling run: %s", domain.ErrGenerationFailed, apiErrorText(httpResp.StatusCode(), run.Error))
		}

		logger.CtxDebug(ctx, "Assistant run %s status: %s (attempt %d/%d)", runID, run.Status, attempt+1, g.maxPolls)

		switch run.Status {
		case "completed":
			return nil
		case "failed", "cancelled", "expired":
			return fmt.Errorf("%w: run reached status %q", domain.ErrGenerationFailed, run.Status)
		case "requires_action":
			// Tool calls are not supported by this pipeline.
			return fmt.Errorf("%w: run requested an unsupported mid-run action", domain.ErrGenerationFailed)
		}
	}

	return fmt.Errorf("%w: run %s still not terminal after %d polls", domain.ErrGenerationTimeout, runID, g.maxPolls)
}

func (g *AssistantGenerator) firstAssistantMessage(ctx context.Context, threadID string) (string, error) {
	var list assistantMessageList
	httpResp, err := g.client.R().
		SetContext(ctx).
		SetResult(&list).
		Get(fmt.Sprintf("%s/threads/%s/messages", g.baseURL, threadID))
	if err != nil {
		return "", fmt.Errorf("%w: listing messages: %v", domain.ErrGenerationFailed, err)
	}
	if httpResp.IsError() {
		return "", fmt.Errorf("%w: listing messages: %s", domain.ErrGenerationFailed, apiErrorText(httpResp.StatusCode(), list.Error))
	}

	for _, msg := range list.Data {
		if msg.Role != "assistant" {
			continue
		}
		for _, part := range msg.Content {
			if part.Type == "text" && part.Text.Value != "" {
				return part.Text.Value, nil
			}
		}
	}

	return "", fmt.Errorf("%w: thread %s contains no assistant text message", domain.ErrGenerationFailed, threadID)
}

func apiErrorText(status int, apiErr *apiError) string {
	if apiErr != nil && apiErr.Message != "" {
		return fmt.Sprintf("HTTP %d: %s", status, apiErr.Message)
	}
	return fmt.Sprintf("HTTP %d", status)
}
