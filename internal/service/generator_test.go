package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/timmy/appforge/internal/config"
	"github.com/timmy/appforge/internal/domain"
)

func TestGeneratorRegistry(t *testing.T) {
	cfg := &config.GenerationConfig{
		Provider: "openai",
		OpenAI:   config.OpenAIConfig{APIKey: "sk-test"},
		Claude:   config.ClaudeConfig{APIKey: "sk-ant-test"},
		// Assistant is missing its assistant id and must not register.
		Assistant: config.AssistantConfig{APIKey: "sk-test"},
	}
	reg := NewGeneratorRegistry(cfg)

	if got, want := reg.Providers(), []string{"claude", "openai"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Providers() = %v, want %v", got, want)
	}

	tests := []struct {
		name     string
		provider string
		want     string
		wantErr  bool
	}{
		{name: "explicit provider", provider: "claude", want: "claude"},
		{name: "empty falls back to default", provider: "", want: "openai"},
		{name: "unknown provider", provider: "gemini", wantErr: true},
		{name: "configured but incomplete backend", provider: "assistant", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, err := reg.Resolve(tt.provider)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrInvalidRequest) {
					t.Errorf("Resolve(%q) error = %v, want ErrInvalidRequest", tt.provider, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q) error = %v", tt.provider, err)
			}
			if gen.Name() != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.provider, gen.Name(), tt.want)
			}
		})
	}
}

func TestOpenAIGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v, want system then user", req.Messages)
		}
		if !strings.Contains(req.Messages[1].Content, "a todo app") {
			t.Errorf("user message does not carry the prompt: %q", req.Messages[1].Content)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "```jsx\n// filename: src/App.jsx\nok\n```"}},
			},
		})
	}))
	defer server.Close()

	gen := NewOpenAIGenerator(&config.OpenAIConfig{
		APIKey:  "sk-test",
		BaseURL: server.URL,
		Model:   "gpt-4o",
	}, 4096, 5*time.Second)

	got, err := gen.Generate(context.Background(), "a todo app")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if !strings.Contains(got, "src/App.jsx") {
		t.Errorf("Generate() = %q", got)
	}
}

func TestOpenAIGenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"error": map[string]string{"message": "overloaded", "type": "server_error"},
				})
			},
		},
		{
			name: "empty choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]interface{}{"choices": []interface{}{}})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			gen := NewOpenAIGenerator(&config.OpenAIConfig{
				APIKey:  "sk-test",
				BaseURL: server.URL,
			}, 0, 5*time.Second)

			_, err := gen.Generate(context.Background(), "an app")
			if !errors.Is(err, domain.ErrGenerationFailed) {
				t.Errorf("Generate() error = %v, want ErrGenerationFailed", err)
			}
		})
	}
}

func TestClaudeGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("x-api-key"); got != "sk-ant-test" {
			t.Errorf("x-api-key = %q", got)
		}
		if got := r.Header.Get("anthropic-version"); got == "" {
			t.Error("anthropic-version header missing")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{
				{"type": "text", "text": "part one"},
				{"type": "tool_use", "text": "ignored"},
				{"type": "text", "text": "part two"},
			},
		})
	}))
	defer server.Close()

	gen := NewClaudeGenerator(&config.ClaudeConfig{
		APIKey:  "sk-ant-test",
		BaseURL: server.URL,
	}, 4096, 5*time.Second)

	got, err := gen.Generate(context.Background(), "an app")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "part one\npart two" {
		t.Errorf("Generate() = %q, want text parts joined", got)
	}
}

func TestClaudeGenerateError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"message": "invalid api key"},
		})
	}))
	defer server.Close()

	gen := NewClaudeGenerator(&config.ClaudeConfig{
		APIKey:  "bad",
		BaseURL: server.URL,
	}, 4096, 5*time.Second)

	_, err := gen.Generate(context.Background(), "an app")
	if !errors.Is(err, domain.ErrGenerationFailed) {
		t.Errorf("Generate() error = %v, want ErrGenerationFailed", err)
	}
}

// assistantServer simulates the thread/run/poll protocol. runStatuses is the
// sequence of statuses returned by successive run polls; the last one repeats.
func assistantServer(t *testing.T, runStatuses []string) *httptest.Server {
	t.Helper()
	poll := 0
	mux := http.NewServeMux()

	mux.HandleFunc("/threads", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "thread_1"})
	})
	mux.HandleFunc("/threads/thread_1/runs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": "queued"})
	})
	mux.HandleFunc("/threads/thread_1/runs/run_1", func(w http.ResponseWriter, r *http.Request) {
		status := runStatuses[len(runStatuses)-1]
		if poll < len(runStatuses) {
			status = runStatuses[poll]
		}
		poll++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": "run_1", "status": status})
	})
	mux.HandleFunc("/threads/thread_1/messages", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{
					"role": "assistant",
					"content": []map[string]interface{}{
						{"type": "text", "text": map[string]string{"value": "assistant output"}},
					},
				},
			},
		})
	})

	return httptest.NewServer(mux)
}

func newAssistantGenerator(baseURL string) *AssistantGenerator {
	return NewAssistantGenerator(&config.AssistantConfig{
		APIKey:       "sk-test",
		BaseURL:      baseURL,
		AssistantID:  "asst_1",
		PollInterval: time.Millisecond,
		MaxPolls:     5,
	}, 5*time.Second)
}

func TestAssistantGenerate(t *testing.T) {
	server := assistantServer(t, []string{"in_progress", "completed"})
	defer server.Close()

	got, err := newAssistantGenerator(server.URL).Generate(context.Background(), "an app")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "assistant output" {
		t.Errorf("Generate() = %q", got)
	}
}

func TestAssistantGenerateTerminalFailures(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		wantErr  error
	}{
		{name: "run failed", statuses: []string{"failed"}, wantErr: domain.ErrGenerationFailed},
		{name: "run expired", statuses: []string{"in_progress", "expired"}, wantErr: domain.ErrGenerationFailed},
		{name: "tool call requested", statuses: []string{"requires_action"}, wantErr: domain.ErrGenerationFailed},
		{name: "never terminal", statuses: []string{"in_progress"}, wantErr: domain.ErrGenerationTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := assistantServer(t, tt.statuses)
			defer server.Close()

			_, err := newAssistantGenerator(server.URL).Generate(context.Background(), "an app")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Generate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
