package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dubwise/dubwise-backend/internal/http/middleware"
	"github.com/dubwise/dubwise-backend/internal/http/response"
	"github.com/dubwise/dubwise-backend/internal/services"
)

type JobHandler struct {
	jobs *services.JobService
}

func NewJobHandler(jobs *services.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

type createJobRequest struct {
	AssetID     string            `json:"assetId" binding:"required"`
	TargetLangs []string          `json:"targetLangs"`
	Presets     map[string]string `json:"presets"`
	ResumeFrom  string            `json:"resumeFrom"`
}

type retryJobRequest struct {
	ResumeFrom string `json:"resumeFrom"`
}

// GET /v1/jobs?page&pageSize
func (h *JobHandler) ListJobs(c *gin.Context) {
	page := intQuery(c, "page", 1)
	pageSize := intQuery(c, "pageSize", 20)
	views, total, err := h.jobs.List(c.Request.Context(), page, pageSize)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, gin.H{
		"jobs":     views,
		"total":    total,
		"page":     page,
		"pageSize": pageSize,
	})
}

// POST /v1/jobs/translate
func (h *JobHandler) CreateTranslationJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	view, err := h.jobs.Create(c.Request.Context(), services.CreateJobRequest{
		AssetID:     req.AssetID,
		TargetLangs: req.TargetLangs,
		Presets:     req.Presets,
		ResumeFrom:  req.ResumeFrom,
		ClientID:    middleware.ClientID(c),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondCreated(c, view)
}

// GET /v1/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	view, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, view)
}

// POST /v1/jobs/:id/retry
func (h *JobHandler) RetryJob(c *gin.Context) {
	var req retryJobRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
			return
		}
	}
	view, err := h.jobs.Retry(c.Request.Context(), c.Param("id"), req.ResumeFrom, middleware.ClientID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.RespondOK(c, view)
}

// DELETE /v1/jobs/:id
func (h *JobHandler) CancelJob(c *gin.Context) {
	if err := h.jobs.Cancel(c.Request.Context(), c.Param("id"), middleware.ClientID(c)); err != nil {
		respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func intQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
