package handler

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/examsync/exam-bridge-api/internal/dto"
	"github.com/examsync/exam-bridge-api/internal/models"
	"github.com/examsync/exam-bridge-api/internal/service"
	appErrors "github.com/examsync/exam-bridge-api/pkg/errors"
	"github.com/examsync/exam-bridge-api/pkg/response"
)

type intakeService interface {
	Intake(ctx context.Context, params service.IntakeParams) (*dto.IntakeResult, error)
	BulkIntake(ctx context.Context, files []service.IntakeParams, actor models.Actor) (*dto.BulkIntakeResult, error)
	CheckDuplicates(ctx context.Context, items []dto.ProbeItem) ([]models.DuplicateProbe, error)
}

// UploadHandler receives scanned answer scripts.
type UploadHandler struct {
	intake  intakeService
	metrics *service.MetricsService
}

// NewUploadHandler constructs UploadHandler.
func NewUploadHandler(intake intakeService, metrics *service.MetricsService) *UploadHandler {
	return &UploadHandler{intake: intake, metrics: metrics}
}

// Single godoc
// @Summary Upload one scanned answer script
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Scanned script"
// @Param examRound formData string false "Exam round (CIA1, CIA2, SEM)"
// @Success 201 {object} response.Envelope
// @Router /uploads [post]
func (h *UploadHandler) Single(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	params, err := intakeParamsFromHeader(header)
	if err != nil {
		response.Error(c, err)
		return
	}
	params.ExamRound = strings.TrimSpace(c.PostForm("examRound"))
	params.Actor = actorFromContext(c)

	result, err := h.intake.Intake(c.Request.Context(), *params)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.ArtifactIngested()
	response.Created(c, result)
}

// Bulk godoc
// @Summary Upload a batch of scanned answer scripts
// @Tags Uploads
// @Accept multipart/form-data
// @Produce json
// @Param files formData file true "Scanned scripts"
// @Param examRound formData string false "Exam round applied to every file"
// @Success 200 {object} response.Envelope
// @Router /uploads/bulk [post]
func (h *UploadHandler) Bulk(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "multipart form is required"))
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "no files supplied"))
		return
	}
	round := strings.TrimSpace(c.PostForm("examRound"))

	batch := make([]service.IntakeParams, 0, len(headers))
	for _, header := range headers {
		params, err := intakeParamsFromHeader(header)
		if err != nil {
			response.Error(c, err)
			return
		}
		params.ExamRound = round
		batch = append(batch, *params)
	}

	result, err := h.intake.BulkIntake(c.Request.Context(), batch, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	for i := 0; i < result.Successful; i++ {
		h.metrics.ArtifactIngested()
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Probe godoc
// @Summary Check whether upload slots are already occupied
// @Tags Uploads
// @Accept json
// @Produce json
// @Param payload body dto.ProbeRequest true "Slots to probe"
// @Success 200 {object} response.Envelope
// @Router /uploads/probe [post]
func (h *UploadHandler) Probe(c *gin.Context) {
	var req dto.ProbeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	probes, err := h.intake.CheckDuplicates(c.Request.Context(), req.Items)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, probes, nil)
}

func intakeParamsFromHeader(header *multipart.FileHeader) (*service.IntakeParams, error) {
	file, err := header.Open()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "could not open uploaded file")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "could not read uploaded file")
	}
	return &service.IntakeParams{
		Filename: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Data:     data,
	}, nil
}
