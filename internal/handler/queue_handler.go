package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/examsync/exam-bridge-api/internal/dto"
	"github.com/examsync/exam-bridge-api/internal/models"
	"github.com/examsync/exam-bridge-api/internal/service"
	appErrors "github.com/examsync/exam-bridge-api/pkg/errors"
	"github.com/examsync/exam-bridge-api/pkg/response"
)

type queueService interface {
	Enqueue(ctx context.Context, artifactID string, actor models.Actor) (*models.QueueEntry, error)
	Drain(ctx context.Context, maxItems int, actor models.Actor) (*models.DrainResult, error)
	Status(ctx context.Context, limit int) (*models.QueueSnapshot, error)
	ActiveEntry(ctx context.Context, artifactID string) (*models.QueueEntry, error)
}

// QueueHandler exposes the submission queue.
type QueueHandler struct {
	queue   queueService
	metrics *service.MetricsService
}

// NewQueueHandler constructs QueueHandler.
func NewQueueHandler(queue queueService, metrics *service.MetricsService) *QueueHandler {
	return &QueueHandler{queue: queue, metrics: metrics}
}

// Enqueue godoc
// @Summary Queue an artifact for LMS delivery
// @Tags Queue
// @Produce json
// @Param id path string true "Artifact ID"
// @Success 201 {object} response.Envelope
// @Router /artifacts/{id}/enqueue [post]
func (h *QueueHandler) Enqueue(c *gin.Context) {
	entry, err := h.queue.Enqueue(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// Drain godoc
// @Summary Run one manual drain pass
// @Tags Queue
// @Accept json
// @Produce json
// @Param payload body dto.DrainRequest false "Batch bound"
// @Success 200 {object} response.Envelope
// @Router /queue/drain [post]
func (h *QueueHandler) Drain(c *gin.Context) {
	var req dto.DrainRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}
	result, err := h.queue.Drain(c.Request.Context(), req.MaxItems, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.QueueDrained()
	for _, item := range result.Items {
		switch item.Outcome {
		case models.DrainDelivered:
			h.metrics.SubmissionDelivered()
		case models.DrainRequeued:
			h.metrics.SubmissionFailed("retryable")
		case models.DrainDead:
			h.metrics.SubmissionFailed("terminal")
		}
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Status godoc
// @Summary Queue snapshot
// @Tags Queue
// @Produce json
// @Param limit query int false "Max entries to list"
// @Success 200 {object} response.Envelope
// @Router /queue [get]
func (h *QueueHandler) Status(c *gin.Context) {
	limit := 50
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		limit = v
	}
	snapshot, err := h.queue.Status(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot, nil)
}

// ActiveEntry godoc
// @Summary Get the in-flight queue entry for an artifact
// @Tags Queue
// @Produce json
// @Param id path string true "Artifact ID"
// @Success 200 {object} response.Envelope
// @Router /artifacts/{id}/queue-entry [get]
func (h *QueueHandler) ActiveEntry(c *gin.Context) {
	entry, err := h.queue.ActiveEntry(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if entry == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "artifact has no in-flight queue entry"))
		return
	}
	response.JSON(c, http.StatusOK, entry, nil)
}
