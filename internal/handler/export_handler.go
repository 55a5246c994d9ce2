package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/examsync/exam-bridge-api/internal/models"
	"github.com/examsync/exam-bridge-api/pkg/response"
)

type exportService interface {
	Register(ctx context.Context, filter models.ArtifactFilter, format string) ([]byte, string, error)
}

// ExportHandler renders the upload register for the examination office.
type ExportHandler struct {
	exports exportService
}

// NewExportHandler constructs ExportHandler.
func NewExportHandler(exports exportService) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Register godoc
// @Summary Export the upload register
// @Tags Exports
// @Produce octet-stream
// @Param format query string false "csv or pdf (default csv)"
// @Param status query string false "Comma separated workflow states"
// @Param examRound query string false "Filter by exam round"
// @Success 200 {file} binary
// @Router /exports/register [get]
func (h *ExportHandler) Register(c *gin.Context) {
	filter := artifactFilterFromQuery(c)
	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "csv")))

	data, contentType, err := h.exports.Register(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("upload-register-%s.%s", time.Now().UTC().Format("20060102-150405"), format)
	response.File(c, filename, contentType, data)
}
