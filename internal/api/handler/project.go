package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/timmy/appforge/internal/domain"
	"github.com/timmy/appforge/internal/service"
)

// ProjectHandler exposes the job submission and status endpoints.
type ProjectHandler struct {
	orchestrator *service.Orchestrator
}

// NewProjectHandler creates a new project handler.
// Parameters:
//   - orchestrator: job orchestrator instance.
//
// Returns:
//   - *ProjectHandler: initialized handler.
func NewProjectHandler(orchestrator *service.Orchestrator) *ProjectHandler {
	return &ProjectHandler{orchestrator: orchestrator}
}

// GenerateRequest represents the project generation API request.
type GenerateRequest struct {
	Prompt      string `json:"prompt"`
	APIProvider string `json:"apiProvider"`
}

// GenerateProject handles POST /generateProject. It returns the job id
// immediately; all pipeline work happens in the background.
func (h *ProjectHandler) GenerateProject(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
		return
	}

	job, err := h.orchestrator.Submit(c.Request.Context(), req.Prompt, req.APIProvider)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInvalidRequest) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"jobId":     job.ID,
		"status":    job.Status,
		"statusUrl": "/getDeploymentStatus?jobId=" + job.ID,
	})
}

// GetDeploymentStatus handles GET /getDeploymentStatus. Completed jobs carry
// the output listing and, when includeFiles=true, the captured file contents.
func (h *ProjectHandler) GetDeploymentStatus(c *gin.Context) {
	jobID := c.Query("jobId")
	if jobID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Query parameter 'jobId' is required",
		})
		return
	}

	includeFiles, _ := strconv.ParseBool(c.Query("includeFiles"))

	job, err := h.orchestrator.Query(c.Request.Context(), jobID, includeFiles)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error":   "Job not found: " + jobID,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to query job: " + err.Error(),
		})
		return
	}

	resp := gin.H{
		"success":     true,
		"jobId":       job.ID,
		"status":      job.Status,
		"created":     job.Created,
		"lastUpdated": job.LastUpdated,
	}

	if job.Completed {
		resp["outputDir"] = job.OutputDir
		if job.Error != "" {
			resp["error"] = job.Error
		}
		if len(job.Files) > 0 {
			resp["files"] = job.Files
		}
		if job.DeploymentURL != "" {
			resp["deploymentUrl"] = job.DeploymentURL
		}
		if includeFiles && len(job.FileContents) > 0 {
			resp["fileContents"] = job.FileContents
		}
	}

	c.JSON(http.StatusOK, resp)
}
