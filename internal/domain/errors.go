package domain

import "errors"

// Pipeline error classes. Stage errors wrap one of these sentinels so the
// orchestrator can map a failure to the right terminal status, and so the
// API layer can distinguish client errors from pipeline errors.
var (
	// ErrInvalidRequest rejects bad input synchronously; no job is created.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound is returned when a job id is unknown.
	ErrNotFound = errors.New("job not found")

	// ErrGenerationTimeout is returned when a polling-style backend exceeds
	// its bounded attempt count.
	ErrGenerationTimeout = errors.New("generation timed out")

	// ErrGenerationFailed is returned when a backend run reaches a failed,
	// cancelled or expired terminal status, or requests an unsupported
	// mid-run action.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrNoFilesExtracted is returned when model output contains no code
	// blocks. An empty extraction is a hard failure, not an empty project.
	ErrNoFilesExtracted = errors.New("no files could be extracted from the generated output")

	// ErrScaffoldFailed is returned when the external scaffold tool exits
	// non-zero. Fatal for the job.
	ErrScaffoldFailed = errors.New("project scaffolding failed")

	// ErrDeploymentFailed is returned when the deployment CLI exits non-zero
	// or its output contains no URL. The job resolves to deployment_failed
	// rather than failed because the materialized project is still valid.
	ErrDeploymentFailed = errors.New("deployment failed")
)
