package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/examsync/exam-bridge-api/internal/dto"
	"github.com/examsync/exam-bridge-api/internal/models"
	appErrors "github.com/examsync/exam-bridge-api/pkg/errors"
	"github.com/examsync/exam-bridge-api/pkg/response"
)

type artifactService interface {
	Get(ctx context.Context, id string) (*models.Artifact, error)
	Content(ctx context.Context, id string) ([]byte, *models.Artifact, error)
	List(ctx context.Context, filter models.ArtifactFilter) ([]models.Artifact, int, error)
	Stats(ctx context.Context) (*models.ArtifactStats, error)
	Replace(ctx context.Context, id string, req dto.ReplaceArtifactRequest, actor models.Actor) (*models.Artifact, error)
	Delete(ctx context.Context, id, reason string, actor models.Actor) error
	Reset(ctx context.Context, id string, actor models.Actor) (*models.Artifact, error)
	ClearTransactionID(ctx context.Context, id string, actor models.Actor) (*models.Artifact, error)
	UnlockSecondAttempt(ctx context.Context, id string, actor models.Actor) (*models.Artifact, error)
	RecordStudentSubmit(ctx context.Context, id string, actor models.Actor) (*models.Artifact, error)
}

// ArtifactHandler exposes artifact lifecycle endpoints.
type ArtifactHandler struct {
	artifacts artifactService
}

// NewArtifactHandler constructs ArtifactHandler.
func NewArtifactHandler(artifacts artifactService) *ArtifactHandler {
	return &ArtifactHandler{artifacts: artifacts}
}

// List godoc
// @Summary List artifacts
// @Tags Artifacts
// @Produce json
// @Param status query string false "Comma separated workflow states"
// @Param registerNumber query string false "Filter by register number"
// @Param subjectCode query string false "Filter by subject code"
// @Param examRound query string false "Filter by exam round"
// @Param includeDeleted query bool false "Include DELETED and SUPERSEDED rows"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /artifacts [get]
func (h *ArtifactHandler) List(c *gin.Context) {
	filter := artifactFilterFromQuery(c)
	artifacts, total, err := h.artifacts.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, artifacts, &models.Pagination{
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

// Get godoc
// @Summary Get artifact detail
// @Tags Artifacts
// @Produce json
// @Param id path string true "Artifact ID"
// @Success 200 {object} response.Envelope
// @Router /artifacts/{id} [get]
func (h *ArtifactHandler) Get(c *gin.Context) {
	artifact, err := h.artifacts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, artifact, nil)
}

// Content godoc
// @Summary Download the stored scan
// @Tags Artifacts
// @Produce octet-stream
// @Param id path string true "Artifact ID"
// @Success 200 {file} binary
// @Router /artifacts/{id}/content [get]
func (h *ArtifactHandler) Content(c *gin.Context) {
	data, artifact, err := h.artifacts.Content(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, artifact.OriginalFilename, artifact.MimeType, data)
}

// Stats godoc
// @Summary Workflow statistics
// @Tags Artifacts
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /artifacts/stats [get]
func (h *ArtifactHandler) Stats(c *gin.Context) {
	stats, err := h.artifacts.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Replace godoc
// @Summary Replace an artifact with corrected metadata
// @Tags Artifacts
// @Accept json
// @Produce json
// @Param id path string true "Artifact ID"
// @Param payload body dto.ReplaceArtifactRequest true "Correction payload"
// @Success 201 {object} response.Envelope
// @Router /artifacts/{id}/replace [post]
func (h *ArtifactHandler) Replace(c *gin.Context) {
	var req dto.ReplaceArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	replacement, err := h.artifacts.Replace(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, replacement)
}

// Delete godoc
// @Summary Soft-delete an artifact
// @Tags Artifacts
// @Accept json
// @Produce json
// @Param id path string true "Artifact ID"
// @Param payload body dto.DeleteArtifactRequest false "Reason"
// @Success 204
// @Router /artifacts/{id} [delete]
func (h *ArtifactHandler) Delete(c *gin.Context) {
	var req dto.DeleteArtifactRequest
	_ = c.ShouldBindJSON(&req)
	if err := h.artifacts.Delete(c.Request.Context(), c.Param("id"), req.Reason, actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Reset godoc
// @Summary Return a QUEUED or FAILED artifact to PENDING_REVIEW
// @Tags Artifacts
// @Produce json
// @Param id path string true "Artifact ID"
// @Success 200 {object} response.Envelope
// @Router /artifacts/{id}/reset [post]
func (h *ArtifactHandler) Reset(c *gin.Context) {
	artifact, err := h.artifacts.Reset(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, artifact, nil)
}

// ClearTransaction godoc
// @Summary Clear the student transaction id
// @Tags Artifacts
// @Produce json
// @Param id path string true "Artifact ID"
// @Success 200 {object} response.Envelope
// @Router /artifacts/{id}/clear-transaction [post]
func (h *ArtifactHandler) ClearTransaction(c *gin.Context) {
	artifact, err := h.artifacts.ClearTransactionID(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, artifact, nil)
}

// UnlockAttempt godoc
// @Summary Reopen the second attempt slot
// @Tags Artifacts
// @Produce json
// @Param id path string true "Artifact ID"
// @Success 200 {object} response.Envelope
// @Router /artifacts/{id}/unlock-attempt [post]
func (h *ArtifactHandler) UnlockAttempt(c *gin.Context) {
	artifact, err := h.artifacts.UnlockSecondAttempt(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, artifact, nil)
}

// StudentSubmit godoc
// @Summary Record the student's LMS confirmation
// @Tags Artifacts
// @Produce json
// @Param id path string true "Artifact ID"
// @Success 200 {object} response.Envelope
// @Router /artifacts/{id}/transaction [post]
func (h *ArtifactHandler) StudentSubmit(c *gin.Context) {
	artifact, err := h.artifacts.RecordStudentSubmit(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, artifact, nil)
}

func artifactFilterFromQuery(c *gin.Context) models.ArtifactFilter {
	var filter models.ArtifactFilter
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if status := strings.ToUpper(strings.TrimSpace(part)); status != "" {
				filter.Status = append(filter.Status, models.WorkflowStatus(status))
			}
		}
	}
	filter.RegisterNumber = strings.ToUpper(strings.TrimSpace(c.Query("registerNumber")))
	filter.SubjectCode = strings.ToUpper(strings.TrimSpace(c.Query("subjectCode")))
	filter.ExamRound = strings.ToUpper(strings.TrimSpace(c.Query("examRound")))
	filter.UploadedBy = strings.TrimSpace(c.Query("uploadedBy"))
	filter.IncludeDeleted = c.Query("includeDeleted") == "true"
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		filter.Offset = offset
	}
	return filter
}
