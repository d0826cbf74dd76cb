package domain

import "time"

// JobStatus represents the lifecycle state of a generation job.
// A job advances monotonically through the pipeline states and ends in
// exactly one of the terminal states.
type JobStatus string

const (
	JobStatusPending     JobStatus = "pending"
	JobStatusGenerating  JobStatus = "generating"
	JobStatusScaffolding JobStatus = "scaffolding"
	JobStatusDeploying   JobStatus = "deploying"

	// Terminal states.
	JobStatusCompleted         JobStatus = "completed"
	JobStatusCompletedNoDeploy JobStatus = "completed_without_deployment"
	JobStatusDeploymentFailed  JobStatus = "deployment_failed"
	JobStatusFailed            JobStatus = "failed"
)

// IsTerminal reports whether no further automatic transition occurs from s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCompletedNoDeploy, JobStatusDeploymentFailed, JobStatusFailed:
		return true
	}
	return false
}

// Job represents one end-to-end request to turn a prompt into a deployed
// (or at least materialized) project. The ID doubles as the external handle
// and as the output directory name.
type Job struct {
	ID               string            `gorm:"type:text;primaryKey" json:"id"`
	Prompt           string            `gorm:"type:text;not null" json:"prompt"`
	Provider         string            `gorm:"type:text;not null" json:"provider"`
	Status           JobStatus         `gorm:"default:pending;index" json:"status"`
	Completed        bool              `gorm:"default:false" json:"completed"`
	OutputDir        string            `json:"output_dir,omitempty"`
	Files            []string          `gorm:"serializer:json" json:"files,omitempty"`
	FileContents     map[string]string `gorm:"serializer:json" json:"file_contents,omitempty"`
	DeploymentURL    string            `json:"deployment_url,omitempty"`
	DeploymentOutput string            `gorm:"type:text" json:"deployment_output,omitempty"`
	Error            string            `gorm:"type:text" json:"error,omitempty"`
	Created          time.Time         `json:"created"`
	LastUpdated      time.Time         `json:"last_updated"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string {
	return "generation_jobs"
}

// Clone returns a deep copy of the job so snapshots handed to API callers
// never alias the store's mutable slices and maps.
func (j *Job) Clone() *Job {
	c := *j
	if j.Files != nil {
		c.Files = append([]string(nil), j.Files...)
	}
	if j.FileContents != nil {
		c.FileContents = make(map[string]string, len(j.FileContents))
		for k, v := range j.FileContents {
			c.FileContents[k] = v
		}
	}
	return &c
}
