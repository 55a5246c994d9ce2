package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/examsync/exam-bridge-api/internal/models"
	appErrors "github.com/examsync/exam-bridge-api/pkg/errors"
)

type stubExportArtifacts struct {
	artifacts []models.Artifact
}

func (s *stubExportArtifacts) List(context.Context, models.ArtifactFilter) ([]models.Artifact, error) {
	return s.artifacts, nil
}

func TestExportServiceRegisterCSV(t *testing.T) {
	register, subject := "21BCA042", "CS301"
	store := &stubExportArtifacts{artifacts: []models.Artifact{{
		RegisterNumber: &register,
		SubjectCode:    &subject,
		ExamRound:      models.RoundCIA1,
		AttemptNumber:  1,
		Status:         models.StatusSubmitted,
		UploadedBy:     "clerk",
		UploadedAt:     time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
	}}}
	svc := NewExportService(store, zap.NewNop())

	data, contentType, err := svc.Register(context.Background(), models.ArtifactFilter{}, "csv")
	require.NoError(t, err)
	require.Equal(t, "text/csv", contentType)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], "Register")
	require.Contains(t, lines[1], "21BCA042")
	require.Contains(t, lines[1], "SUBMITTED")
}

func TestExportServiceRegisterPDF(t *testing.T) {
	svc := NewExportService(&stubExportArtifacts{}, zap.NewNop())

	data, contentType, err := svc.Register(context.Background(), models.ArtifactFilter{}, "pdf")
	require.NoError(t, err)
	require.Equal(t, "application/pdf", contentType)
	require.True(t, strings.HasPrefix(string(data), "%PDF"))
}

func TestExportServiceRegisterUnknownFormat(t *testing.T) {
	svc := NewExportService(&stubExportArtifacts{}, zap.NewNop())

	_, _, err := svc.Register(context.Background(), models.ArtifactFilter{}, "xlsx")
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
