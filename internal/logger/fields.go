package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// ============================================
// Standard Tracing Fields (Context level)
// These fields are propagated through the call chain
// ============================================

const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the generation job ID
	FieldJobID = "job_id"

	// FieldProvider is the generation backend identifier
	FieldProvider = "provider"

	// FieldStage is the pipeline stage currently executing
	FieldStage = "stage"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// ============================================
// Standard Metric Fields (Entry level)
// These fields are used for aggregation and alerting
// ============================================

const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldExitCode is the exit code of an external command
	FieldExitCode = "exit_code"

	// FieldStatus is the operation status
	FieldStatus = "status"
)
