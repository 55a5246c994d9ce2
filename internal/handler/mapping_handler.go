package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/examsync/exam-bridge-api/internal/dto"
	"github.com/examsync/exam-bridge-api/internal/models"
	appErrors "github.com/examsync/exam-bridge-api/pkg/errors"
	"github.com/examsync/exam-bridge-api/pkg/response"
)

type mappingService interface {
	UpsertSubject(ctx context.Context, req dto.UpsertSubjectMappingRequest, actor models.Actor) (*models.SubjectMapping, error)
	ListSubjects(ctx context.Context, activeOnly bool) ([]models.SubjectMapping, error)
	DeactivateSubject(ctx context.Context, id string, actor models.Actor) error
	MarkSubjectVerified(ctx context.Context, id string, actor models.Actor) error
	UpsertStudent(ctx context.Context, req dto.UpsertStudentMappingRequest, actor models.Actor) (*models.StudentMapping, error)
	ListStudents(ctx context.Context, limit, offset int) ([]models.StudentMapping, error)
	DeleteStudent(ctx context.Context, id string, actor models.Actor) error
	Coverage(ctx context.Context, items []dto.ProbeItem) ([]models.MappingCoverage, error)
}

// MappingHandler administers subject and student mappings.
type MappingHandler struct {
	mappings mappingService
}

// NewMappingHandler constructs MappingHandler.
func NewMappingHandler(mappings mappingService) *MappingHandler {
	return &MappingHandler{mappings: mappings}
}

// UpsertSubject godoc
// @Summary Create or update a subject mapping
// @Tags Mappings
// @Accept json
// @Produce json
// @Param payload body dto.UpsertSubjectMappingRequest true "Mapping payload"
// @Success 201 {object} response.Envelope
// @Router /mappings/subjects [post]
func (h *MappingHandler) UpsertSubject(c *gin.Context) {
	var req dto.UpsertSubjectMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	mapping, err := h.mappings.UpsertSubject(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, mapping)
}

// ListSubjects godoc
// @Summary List subject mappings
// @Tags Mappings
// @Produce json
// @Param activeOnly query bool false "Only active mappings"
// @Success 200 {object} response.Envelope
// @Router /mappings/subjects [get]
func (h *MappingHandler) ListSubjects(c *gin.Context) {
	mappings, err := h.mappings.ListSubjects(c.Request.Context(), c.Query("activeOnly") == "true")
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, mappings, nil)
}

// DeactivateSubject godoc
// @Summary Deactivate a subject mapping
// @Tags Mappings
// @Produce json
// @Param id path string true "Mapping ID"
// @Success 204
// @Router /mappings/subjects/{id} [delete]
func (h *MappingHandler) DeactivateSubject(c *gin.Context) {
	if err := h.mappings.DeactivateSubject(c.Request.Context(), c.Param("id"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// VerifySubject godoc
// @Summary Mark a subject mapping as verified against the LMS
// @Tags Mappings
// @Produce json
// @Param id path string true "Mapping ID"
// @Success 204
// @Router /mappings/subjects/{id}/verify [post]
func (h *MappingHandler) VerifySubject(c *gin.Context) {
	if err := h.mappings.MarkSubjectVerified(c.Request.Context(), c.Param("id"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// UpsertStudent godoc
// @Summary Create or update a student mapping
// @Tags Mappings
// @Accept json
// @Produce json
// @Param payload body dto.UpsertStudentMappingRequest true "Mapping payload"
// @Success 201 {object} response.Envelope
// @Router /mappings/students [post]
func (h *MappingHandler) UpsertStudent(c *gin.Context) {
	var req dto.UpsertStudentMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	mapping, err := h.mappings.UpsertStudent(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, mapping)
}

// ListStudents godoc
// @Summary List student mappings
// @Tags Mappings
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /mappings/students [get]
func (h *MappingHandler) ListStudents(c *gin.Context) {
	limit, offset := 50, 0
	if v, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		limit = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("offset", "0")); err == nil {
		offset = v
	}
	mappings, err := h.mappings.ListStudents(c.Request.Context(), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, mappings, nil)
}

// DeleteStudent godoc
// @Summary Delete a student mapping
// @Tags Mappings
// @Produce json
// @Param id path string true "Mapping ID"
// @Success 204
// @Router /mappings/students/{id} [delete]
func (h *MappingHandler) DeleteStudent(c *gin.Context) {
	if err := h.mappings.DeleteStudent(c.Request.Context(), c.Param("id"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Coverage godoc
// @Summary Check mapping coverage for planned uploads
// @Tags Mappings
// @Accept json
// @Produce json
// @Param payload body dto.ProbeRequest true "Rows to check"
// @Success 200 {object} response.Envelope
// @Router /mappings/coverage [post]
func (h *MappingHandler) Coverage(c *gin.Context) {
	var req dto.ProbeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	coverage, err := h.mappings.Coverage(c.Request.Context(), req.Items)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, coverage, nil)
}
