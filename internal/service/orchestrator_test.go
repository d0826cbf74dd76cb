package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/timmy/appforge/internal/config"
	"github.com/timmy/appforge/internal/domain"
	"github.com/timmy/appforge/internal/execx"
)

const sampleOutput = "Here is your app:\n```jsx\n// filename: src/App.jsx\nexport default () => null;\n```"

// fakeGenerator returns canned output, optionally blocking until released.
type fakeGenerator struct {
	output  string
	err     error
	release chan struct{} // nil means return immediately
}

func (g *fakeGenerator) Name() string { return "fake" }

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if g.release != nil {
		<-g.release
	}
	return g.output, g.err
}

func newTestOrchestrator(t *testing.T, gen Generator, runner execx.Runner, token string) *Orchestrator {
	t.Helper()

	registry := NewGeneratorRegistry(&config.GenerationConfig{Provider: "fake"})
	registry.Register(gen)

	scaffold := NewScaffoldService(runner, time.Minute)
	deploy := NewDeployService(runner, scaffold, &config.DeployConfig{
		Token:          token,
		CommandTimeout: time.Minute,
	})

	return NewOrchestrator(
		registry,
		NewExtractService(),
		scaffold,
		deploy,
		NewArtifactService(nil),
		nil,
		&config.WorkspaceConfig{
			OutputRoot:     t.TempDir(),
			ContentCeiling: 256 * 1024,
		},
	)
}

// waitForTerminal polls until the job reaches a terminal status.
func waitForTerminal(t *testing.T, o *Orchestrator, id string) *domain.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := o.Query(context.Background(), id, true)
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if job.Status.IsTerminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job never reached a terminal status")
	return nil
}

func TestSubmitReturnsImmediately(t *testing.T) {
	gen := &fakeGenerator{output: sampleOutput, release: make(chan struct{})}
	o := newTestOrchestrator(t, gen, okRunner(), "")

	job, err := o.Submit(context.Background(), "build me a todo app", "")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Errorf("Submit() status = %q, want pending", job.Status)
	}
	if job.ID == "" || job.OutputDir == "" {
		t.Errorf("Submit() job = %+v, want id and output dir set", job)
	}

	// The job is queryable while generation is still blocked.
	queried, err := o.Query(context.Background(), job.ID, false)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if queried.Status.IsTerminal() {
		t.Errorf("Query() status = %q before generation finished", queried.Status)
	}

	close(gen.release)
	waitForTerminal(t, o, job.ID)
}

func TestSubmitValidation(t *testing.T) {
	o := newTestOrchestrator(t, &fakeGenerator{output: sampleOutput}, okRunner(), "")

	tests := []struct {
		name     string
		prompt   string
		provider string
	}{
		{name: "empty prompt", prompt: "", provider: ""},
		{name: "whitespace prompt", prompt: "   \n\t", provider: ""},
		{name: "unknown provider", prompt: "an app", provider: "no-such-provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := o.Submit(context.Background(), tt.prompt, tt.provider)
			if !errors.Is(err, domain.ErrInvalidRequest) {
				t.Errorf("Submit() error = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestGenerationFailureIsTerminal(t *testing.T) {
	gen := &fakeGenerator{err: fmt.Errorf("%w: upstream 500", domain.ErrGenerationFailed)}
	runner := okRunner()
	o := newTestOrchestrator(t, gen, runner, "")

	job, err := o.Submit(context.Background(), "an app", "")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	final := waitForTerminal(t, o, job.ID)
	if final.Status != domain.JobStatusFailed {
		t.Errorf("status = %q, want failed", final.Status)
	}
	if final.Error == "" {
		t.Error("failed job carries no error description")
	}
	if len(runner.recorded()) != 0 {
		t.Error("scaffolding ran despite generation failure")
	}
}

func TestNoExtractedFilesFails(t *testing.T) {
	gen := &fakeGenerator{output: "Sorry, I cannot write code for that."}
	runner := okRunner()
	o := newTestOrchestrator(t, gen, runner, "")

	job, err := o.Submit(context.Background(), "an app", "")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	final := waitForTerminal(t, o, job.ID)
	if final.Status != domain.JobStatusFailed {
		t.Errorf("status = %q, want failed", final.Status)
	}
	if !strings.Contains(final.Error, "no files") {
		t.Errorf("error = %q, want a no-files description", final.Error)
	}
	if len(runner.recorded()) != 0 {
		t.Error("scaffolding ran despite zero extracted files")
	}
}

func TestCompletesWithoutDeploymentWhenNoCredential(t *testing.T) {
	gen := &fakeGenerator{output: sampleOutput}
	o := newTestOrchestrator(t, gen, okRunner(), "")

	job, err := o.Submit(context.Background(), "an app", "")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	final := waitForTerminal(t, o, job.ID)
	if final.Status != domain.JobStatusCompletedNoDeploy {
		t.Errorf("status = %q, want completed_without_deployment", final.Status)
	}
	if !strings.Contains(final.Error, "deployment skipped") {
		t.Errorf("error = %q, want a deployment-skipped description", final.Error)
	}
	var found bool
	for _, f := range final.Files {
		if f == "src/App.jsx" {
			found = true
		}
	}
	if !found {
		t.Errorf("files = %v, want src/App.jsx listed", final.Files)
	}
	if final.DeploymentURL != "" {
		t.Errorf("deployment url = %q, want empty", final.DeploymentURL)
	}
}

func TestDeploymentSuccessCompletes(t *testing.T) {
	gen := &fakeGenerator{output: sampleOutput}
	runner := &fakeRunner{script: func(cmd execx.Command) (execx.Result, error) {
		if cmd.Name == "npx" && cmd.Args[0] == "vercel" {
			return execx.Result{Stdout: "https://deployed.vercel.app\n"}, nil
		}
		return execx.Result{}, nil
	}}
	o := newTestOrchestrator(t, gen, runner, "tok")

	job, err := o.Submit(context.Background(), "an app", "")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	final := waitForTerminal(t, o, job.ID)
	if final.Status != domain.JobStatusCompleted {
		t.Errorf("status = %q, want completed", final.Status)
	}
	if final.DeploymentURL == "" {
		t.Error("completed job carries no deployment url")
	}
}

func TestDeploymentFailureIsItsOwnStatus(t *testing.T) {
	gen := &fakeGenerator{output: sampleOutput}
	runner := &fakeRunner{script: func(cmd execx.Command) (execx.Result, error) {
		if cmd.Name == "npx" && cmd.Args[0] == "vercel" {
			return execx.Result{ExitCode: 1, Stderr: "Error! invalid token"}, nil
		}
		return execx.Result{}, nil
	}}
	o := newTestOrchestrator(t, gen, runner, "tok")

	job, err := o.Submit(context.Background(), "an app", "")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	final := waitForTerminal(t, o, job.ID)
	if final.Status != domain.JobStatusDeploymentFailed {
		t.Errorf("status = %q, want deployment_failed", final.Status)
	}
	if !strings.Contains(final.DeploymentOutput, "invalid token") {
		t.Errorf("deployment output = %q, want CLI error preserved", final.DeploymentOutput)
	}
	// Build artifacts survive a failed deployment.
	if len(final.Files) == 0 {
		t.Error("deployment_failed job lost its file listing")
	}
}

func TestQueryUnknownJob(t *testing.T) {
	o := newTestOrchestrator(t, &fakeGenerator{output: sampleOutput}, okRunner(), "")

	_, err := o.Query(context.Background(), "no-such-job", false)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Query() error = %v, want ErrNotFound", err)
	}
}

func TestQueryIncludeFilesGating(t *testing.T) {
	gen := &fakeGenerator{output: sampleOutput}
	o := newTestOrchestrator(t, gen, okRunner(), "")

	job, err := o.Submit(context.Background(), "an app", "")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitForTerminal(t, o, job.ID)

	withFiles, err := o.Query(context.Background(), job.ID, true)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(withFiles.FileContents) == 0 {
		t.Error("includeFiles=true returned no file contents")
	}
	if content := withFiles.FileContents["src/App.jsx"]; !strings.Contains(content, "export default") {
		t.Errorf("file contents for src/App.jsx = %q", content)
	}

	withoutFiles, err := o.Query(context.Background(), job.ID, false)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if withoutFiles.FileContents != nil {
		t.Error("includeFiles=false still returned file contents")
	}
}
