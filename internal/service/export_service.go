package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/examsync/exam-bridge-api/internal/models"
	appErrors "github.com/examsync/exam-bridge-api/pkg/errors"
	"github.com/examsync/exam-bridge-api/pkg/export"
)

type exportArtifacts interface {
	List(ctx context.Context, filter models.ArtifactFilter) ([]models.Artifact, error)
}

// ExportService renders the artifact register as CSV or PDF for the
// examination office.
type ExportService struct {
	artifacts exportArtifacts
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	logger    *zap.Logger
}

// NewExportService constructs the service.
func NewExportService(artifacts exportArtifacts, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		artifacts: artifacts,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		logger:    logger,
	}
}

var registerHeaders = []string{
	"Register", "Subject", "Round", "Attempt", "Status", "Uploaded By", "Uploaded At", "Submitted At", "Retries",
}

// Register renders the artifact register in the requested format ("csv" or
// "pdf"), capped at one page-sized batch per call.
func (s *ExportService) Register(ctx context.Context, filter models.ArtifactFilter, format string) ([]byte, string, error) {
	if filter.Limit <= 0 {
		filter.Limit = 200
	}
	artifacts, err := s.artifacts.List(ctx, filter)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load artifacts for export")
	}

	dataset := export.Dataset{Title: "Examination Artifact Register", Headers: registerHeaders}
	for _, artifact := range artifacts {
		row := map[string]string{
			"Register":    artifact.Register(),
			"Subject":     artifact.Subject(),
			"Round":       artifact.ExamRound,
			"Attempt":     fmt.Sprintf("%d", artifact.AttemptNumber),
			"Status":      string(artifact.Status),
			"Uploaded By": artifact.UploadedBy,
			"Uploaded At": artifact.UploadedAt.Format(time.RFC3339),
			"Retries":     fmt.Sprintf("%d", artifact.RetryCount),
		}
		if artifact.SubmittedAt != nil {
			row["Submitted At"] = artifact.SubmittedAt.Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	switch strings.ToLower(format) {
	case "", "csv":
		data, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return data, "text/csv", nil
	case "pdf":
		data, err := s.pdf.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return data, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}
