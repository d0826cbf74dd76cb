package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/timmy/appforge/internal/config"
	"github.com/timmy/appforge/internal/domain"
	"github.com/timmy/appforge/internal/execx"
	"github.com/timmy/appforge/internal/service"
)

type stubGenerator struct{}

func (stubGenerator) Name() string { return "stub" }

func (stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return "```jsx\n// filename: src/App.jsx\nexport default () => null;\n```", nil
}

type stubRunner struct{}

func (stubRunner) Run(ctx context.Context, cmd execx.Command) (execx.Result, error) {
	return execx.Result{}, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *service.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := service.NewGeneratorRegistry(&config.GenerationConfig{Provider: "stub"})
	registry.Register(stubGenerator{})

	runner := stubRunner{}
	scaffold := service.NewScaffoldService(runner, time.Minute)
	deploy := service.NewDeployService(runner, scaffold, &config.DeployConfig{})

	orchestrator := service.NewOrchestrator(
		registry,
		service.NewExtractService(),
		scaffold,
		deploy,
		service.NewArtifactService(nil),
		nil,
		&config.WorkspaceConfig{OutputRoot: t.TempDir(), ContentCeiling: 256 * 1024},
	)

	h := NewProjectHandler(orchestrator)
	r := gin.New()
	r.POST("/generateProject", h.GenerateProject)
	r.GET("/getDeploymentStatus", h.GetDeploymentStatus)
	return r, orchestrator
}

func doRequest(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestGenerateProject(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantCode    int
		wantSuccess bool
	}{
		{
			name:        "valid request",
			body:        `{"prompt": "build a todo app"}`,
			wantCode:    http.StatusOK,
			wantSuccess: true,
		},
		{
			name:        "explicit provider",
			body:        `{"prompt": "build a todo app", "apiProvider": "stub"}`,
			wantCode:    http.StatusOK,
			wantSuccess: true,
		},
		{
			name:     "empty prompt",
			body:     `{"prompt": ""}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown provider",
			body:     `{"prompt": "an app", "apiProvider": "nope"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "malformed json",
			body:     `{"prompt": `,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestRouter(t)
			w := doRequest(r, http.MethodPost, "/generateProject", tt.body)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}

			resp := decodeBody(t, w)
			if success, _ := resp["success"].(bool); success != tt.wantSuccess {
				t.Errorf("success = %v, want %v", resp["success"], tt.wantSuccess)
			}
			if !tt.wantSuccess {
				if resp["error"] == "" {
					t.Error("failed response carries no error message")
				}
				return
			}
			if resp["jobId"] == "" {
				t.Error("success response carries no jobId")
			}
			if resp["status"] != string(domain.JobStatusPending) {
				t.Errorf("status = %v, want pending", resp["status"])
			}
			statusURL, _ := resp["statusUrl"].(string)
			if !strings.HasPrefix(statusURL, "/getDeploymentStatus?jobId=") {
				t.Errorf("statusUrl = %q", statusURL)
			}
		})
	}
}

func TestGetDeploymentStatus(t *testing.T) {
	r, orchestrator := newTestRouter(t)

	t.Run("missing jobId", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/getDeploymentStatus", "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", w.Code)
		}
	})

	t.Run("unknown job", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/getDeploymentStatus?jobId=missing", "")
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", w.Code)
		}
		resp := decodeBody(t, w)
		if success, _ := resp["success"].(bool); success {
			t.Error("success = true for unknown job")
		}
	})

	t.Run("terminal job with files", func(t *testing.T) {
		job, err := orchestrator.Submit(context.Background(), "an app", "")
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		waitTerminal(t, orchestrator, job.ID)

		w := doRequest(r, http.MethodGet, "/getDeploymentStatus?jobId="+job.ID, "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
		}
		resp := decodeBody(t, w)
		if resp["status"] != string(domain.JobStatusCompletedNoDeploy) {
			t.Errorf("status = %v, want completed_without_deployment", resp["status"])
		}
		if resp["files"] == nil {
			t.Error("terminal response carries no file listing")
		}
		if resp["fileContents"] != nil {
			t.Error("fileContents returned without includeFiles")
		}
	})

	t.Run("terminal job with file contents", func(t *testing.T) {
		job, err := orchestrator.Submit(context.Background(), "an app", "")
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		waitTerminal(t, orchestrator, job.ID)

		w := doRequest(r, http.MethodGet, "/getDeploymentStatus?jobId="+job.ID+"&includeFiles=true", "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", w.Code)
		}
		resp := decodeBody(t, w)
		contents, _ := resp["fileContents"].(map[string]interface{})
		if len(contents) == 0 {
			t.Error("includeFiles=true returned no fileContents")
		}
	})
}

func waitTerminal(t *testing.T, o *service.Orchestrator, id string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := o.Query(context.Background(), id, false)
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if job.Status.IsTerminal() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal status")
}
