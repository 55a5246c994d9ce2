package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/examsync/exam-bridge-api/internal/dto"
	"github.com/examsync/exam-bridge-api/internal/models"
	"github.com/examsync/exam-bridge-api/internal/service"
	appErrors "github.com/examsync/exam-bridge-api/pkg/errors"
	"github.com/examsync/exam-bridge-api/pkg/response"
)

type reportService interface {
	Issue(ctx context.Context, artifactID, description string, actor models.Actor) (*models.Report, error)
	Resolve(ctx context.Context, reportID, note string, actor models.Actor) error
	Withdraw(ctx context.Context, reportID, reason string, actor models.Actor) error
	ListForArtifact(ctx context.Context, artifactID string) ([]models.Report, error)
	ActiveCount(ctx context.Context, artifactID string) (int, error)
}

// ReportHandler exposes the student report lifecycle.
type ReportHandler struct {
	reports reportService
	metrics *service.MetricsService
}

// NewReportHandler constructs ReportHandler.
func NewReportHandler(reports reportService, metrics *service.MetricsService) *ReportHandler {
	return &ReportHandler{reports: reports, metrics: metrics}
}

// Issue godoc
// @Summary Open a report against an artifact
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Artifact ID"
// @Param payload body dto.IssueReportRequest true "Report description"
// @Success 201 {object} response.Envelope
// @Router /artifacts/{id}/reports [post]
func (h *ReportHandler) Issue(c *gin.Context) {
	var req dto.IssueReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	report, err := h.reports.Issue(c.Request.Context(), c.Param("id"), req.Description, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.ReportOpened()
	response.Created(c, report)
}

// ListForArtifact godoc
// @Summary List reports on an artifact
// @Tags Reports
// @Produce json
// @Param id path string true "Artifact ID"
// @Success 200 {object} response.Envelope
// @Router /artifacts/{id}/reports [get]
func (h *ReportHandler) ListForArtifact(c *gin.Context) {
	reports, err := h.reports.ListForArtifact(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	active, err := h.reports.ActiveCount(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, nil, map[string]interface{}{"activeCount": active})
}

// Resolve godoc
// @Summary Resolve an open report
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body dto.ResolveReportRequest false "Resolution note"
// @Success 204
// @Router /reports/{id}/resolve [post]
func (h *ReportHandler) Resolve(c *gin.Context) {
	var req dto.ResolveReportRequest
	_ = c.ShouldBindJSON(&req)
	if err := h.reports.Resolve(c.Request.Context(), c.Param("id"), req.Note, actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Withdraw godoc
// @Summary Withdraw a report
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body dto.WithdrawReportRequest false "Withdrawal reason"
// @Success 204
// @Router /reports/{id}/withdraw [post]
func (h *ReportHandler) Withdraw(c *gin.Context) {
	var req dto.WithdrawReportRequest
	_ = c.ShouldBindJSON(&req)
	if err := h.reports.Withdraw(c.Request.Context(), c.Param("id"), req.Reason, actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
