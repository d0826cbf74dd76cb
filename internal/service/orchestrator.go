package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/timmy/appforge/internal/config"
	"github.com/timmy/appforge/internal/domain"
	"github.com/timmy/appforge/internal/logger"
	"github.com/timmy/appforge/internal/repository"
)

// Orchestrator owns the job store and drives the generation pipeline. Each
// submitted job gets exactly one background goroutine that advances it
// through generating, scaffolding and deploying to a terminal state; the
// submission call never waits on it. The in-memory map is the authoritative
// store, guarded by one mutex; the repository is a best-effort write-through
// so finished jobs survive a restart.
type Orchestrator struct {
	registry *GeneratorRegistry
	extract  *ExtractService
	scaffold *ScaffoldService
	deploy   *DeployService
	artifact *ArtifactService
	repo     *repository.JobRepository // nil disables persistence

	outputRoot     string
	contentCeiling int64

	mu   sync.RWMutex
	jobs map[string]*domain.Job
}

// NewOrchestrator wires the pipeline components together.
func NewOrchestrator(
	registry *GeneratorRegistry,
	extract *ExtractService,
	scaffold *ScaffoldService,
	deploy *DeployService,
	artifact *ArtifactService,
	repo *repository.JobRepository,
	cfg *config.WorkspaceConfig,
) *Orchestrator {
	return &Orchestrator{
		registry:       registry,
		extract:        extract,
		scaffold:       scaffold,
		deploy:         deploy,
		artifact:       artifact,
		repo:           repo,
		outputRoot:     cfg.OutputRoot,
		contentCeiling: cfg.ContentCeiling,
		jobs:           make(map[string]*domain.Job),
	}
}

// Providers exposes the configured backend names for API validation output.
func (o *Orchestrator) Providers() []string {
	return o.registry.Providers()
}

// Submit validates the request, creates the job in pending state with its
// output directory, schedules background processing, and returns a snapshot
// immediately. Validation failures wrap domain.ErrInvalidRequest and create
// no job.
func (o *Orchestrator) Submit(ctx context.Context, prompt, provider string) (*domain.Job, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("%w: prompt must not be empty", domain.ErrInvalidRequest)
	}

	gen, err := o.registry.Resolve(provider)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	outputDir := filepath.Join(o.outputRoot, id)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:          id,
		Prompt:      prompt,
		Provider:    gen.Name(),
		Status:      domain.JobStatusPending,
		OutputDir:   outputDir,
		Created:     now,
		LastUpdated: now,
	}

	o.mu.Lock()
	o.jobs[id] = job
	o.mu.Unlock()

	if o.repo != nil {
		if err := o.repo.Create(ctx, job.Clone()); err != nil {
			logger.CtxWarn(ctx, "Persisting new job %s: %v", id, err)
		}
	}

	logger.With(logger.Fields{logger.FieldJobID: id, logger.FieldProvider: gen.Name()}).
		Info(ctx, "Job submitted")

	// One background task per job, scheduled here and never re-triggered.
	go o.process(id, gen)

	return job.Clone(), nil
}

// Query returns a snapshot of the job's externally visible fields. File
// contents are included only when includeFiles is set, the job is completed,
// and contents were captured.
func (o *Orchestrator) Query(ctx context.Context, id string, includeFiles bool) (*domain.Job, error) {
	o.mu.RLock()
	job, ok := o.jobs[id]
	var snapshot *domain.Job
	if ok {
		snapshot = job.Clone()
	}
	o.mu.RUnlock()

	if snapshot == nil {
		if o.repo == nil {
			return nil, domain.ErrNotFound
		}
		persisted, err := o.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		snapshot = persisted
	}

	if !includeFiles || !snapshot.Completed {
		snapshot.FileContents = nil
	}
	return snapshot, nil
}

// RecoverInterrupted marks persisted jobs that never reached a terminal
// state as failed. Called once at startup; a crashed process cannot resume a
// half-finished pipeline.
func (o *Orchestrator) RecoverInterrupted(ctx context.Context) error {
	if o.repo == nil {
		return nil
	}
	jobs, err := o.repo.ListUnfinished(ctx)
	if err != nil {
		return err
	}
	for i := range jobs {
		job := &jobs[i]
		job.Status = domain.JobStatusFailed
		job.Completed = true
		job.Error = "processing interrupted by service restart"
		job.LastUpdated = time.Now().UTC()
		if err := o.repo.Save(ctx, job); err != nil {
			logger.CtxWarn(ctx, "Marking interrupted job %s failed: %v", job.ID, err)
		}
	}
	if len(jobs) > 0 {
		logger.With(logger.Fields{logger.FieldCount: len(jobs)}).
			Warn(ctx, "Marked interrupted jobs as failed")
	}
	return nil
}

// mutate applies fn to the job under the store lock, bumps LastUpdated, and
// writes the new snapshot through to the repository.
func (o *Orchestrator) mutate(id string, fn func(*domain.Job)) {
	o.mu.Lock()
	job, ok := o.jobs[id]
	if !ok {
		o.mu.Unlock()
		return
	}
	fn(job)
	job.LastUpdated = time.Now().UTC()
	snapshot := job.Clone()
	o.mu.Unlock()

	if o.repo != nil {
		if err := o.repo.Save(context.Background(), snapshot); err != nil {
			logger.Warn("Persisting job %s: %v", id, err)
		}
	}
}

// setStatus advances the state machine. Status is updated before the stage's
// external calls begin so a concurrent query always observes a stage that is
// in progress or later.
func (o *Orchestrator) setStatus(id string, status domain.JobStatus) {
	o.mutate(id, func(job *domain.Job) {
		job.Status = status
	})
}

// fail resolves a job to the failed terminal state.
func (o *Orchestrator) fail(ctx context.Context, id string, err error) {
	logger.CtxError(ctx, "Job failed: %v", err)
	o.mutate(id, func(job *domain.Job) {
		job.Status = domain.JobStatusFailed
		job.Completed = true
		job.Error = err.Error()
	})
}

// process is the background task driving one job through the pipeline. Every
// error is caught here and converted into a terminal status; nothing
// propagates to the submission call, which has already returned.
func (o *Orchestrator) process(id string, gen Generator) {
	ctx := logger.WithFields(context.Background(), logger.Fields{
		logger.FieldJobID:    id,
		logger.FieldProvider: gen.Name(),
	})

	defer func() {
		if r := recover(); r != nil {
			o.fail(ctx, id, fmt.Errorf("unrecovered panic while processing job: %v", r))
		}
	}()

	o.mu.RLock()
	job := o.jobs[id]
	prompt := job.Prompt
	outputDir := job.OutputDir
	o.mu.RUnlock()

	// Stage 1: generation.
	o.setStatus(id, domain.JobStatusGenerating)
	rawText, err := gen.Generate(ctx, prompt)
	if err != nil {
		o.fail(ctx, id, err)
		return
	}

	result := o.extract.Extract(rawText)
	if len(result.Files) == 0 {
		o.fail(ctx, id, domain.ErrNoFilesExtracted)
		return
	}
	logger.With(logger.Fields{logger.FieldCount: len(result.Files)}).
		Info(ctx, "Extracted files (framework=%s, language=%s)", result.Info.Framework, result.Info.Language)

	// Stage 2: scaffold and materialize.
	o.setStatus(id, domain.JobStatusScaffolding)
	if err := o.scaffold.Materialize(ctx, outputDir, result); err != nil {
		o.fail(ctx, id, err)
		return
	}

	files, contents, err := o.captureTree(outputDir)
	if err != nil {
		logger.CtxWarn(ctx, "Listing output directory: %v", err)
	}
	o.mutate(id, func(job *domain.Job) {
		job.Files = files
		job.FileContents = contents
	})

	if o.artifact.Enabled() {
		if _, archiveErr := o.artifact.Archive(ctx, outputDir, id); archiveErr != nil {
			logger.CtxWarn(ctx, "Archiving project: %v", archiveErr)
		}
	}

	// Stage 3: deployment, or a descriptive skip.
	if !o.deploy.Enabled() {
		o.mutate(id, func(job *domain.Job) {
			job.Status = domain.JobStatusCompletedNoDeploy
			job.Completed = true
			job.Error = "deployment skipped: no deployment credential configured"
		})
		logger.CtxInfo(ctx, "Job completed without deployment")
		return
	}

	o.setStatus(id, domain.JobStatusDeploying)
	deployURL, deployOutput, err := o.deploy.Deploy(ctx, outputDir, id)
	if err != nil {
		o.mutate(id, func(job *domain.Job) {
			job.Status = domain.JobStatusDeploymentFailed
			job.Completed = true
			job.DeploymentOutput = deployOutput
			job.Error = err.Error()
		})
		logger.CtxError(ctx, "Deployment failed: %v", err)
		return
	}

	o.mutate(id, func(job *domain.Job) {
		job.Status = domain.JobStatusCompleted
		job.Completed = true
		job.DeploymentURL = deployURL
		job.DeploymentOutput = deployOutput
	})
	logger.CtxInfo(ctx, "Job completed, deployed to %s", deployURL)
}

// skippedDirs are tree entries excluded from the captured file listing.
var skippedDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	".next":        true,
	".vercel":      true,
	"dist":         true,
}

// captureTree lists the materialized project's files and captures the
// contents of those under the size ceiling that look like text.
func (o *Orchestrator) captureTree(outputDir string) ([]string, map[string]string, error) {
	var files []string
	contents := make(map[string]string)

	err := filepath.Walk(outputDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if skippedDirs[info.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(outputDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		files = append(files, rel)

		if info.Size() > o.contentCeiling {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if isText(data) {
			contents[rel] = string(data)
		}
		return nil
	})
	if err != nil {
		return files, contents, err
	}

	sort.Strings(files)
	return files, contents, nil
}

// isText reports whether data looks like UTF-8 text without NUL bytes.
func isText(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	for _, b := range data {
		if b == 0 {
			return false
		}
	}
	return true
}
