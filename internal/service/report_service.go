package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/examsync/exam-bridge-api/internal/models"
	appErrors "github.com/examsync/exam-bridge-api/pkg/errors"
)

type reportLedger interface {
	Insert(ctx context.Context, entry *models.LedgerEntry) error
	GetByID(ctx context.Context, id string) (*models.LedgerEntry, error)
	ListByArtifact(ctx context.Context, artifactID string) ([]models.LedgerEntry, error)
	HasActionTargeting(ctx context.Context, action, targetID string) (bool, error)
}

type reportArtifacts interface {
	GetByID(ctx context.Context, id string) (*models.Artifact, error)
}

// ReportService manages student reports. A report is not a row of its own:
// issuing one appends a ledger entry, and resolution or withdrawal append
// entries targeting it. State is always derived by folding.
type ReportService struct {
	ledger    reportLedger
	artifacts reportArtifacts
	logger    *zap.Logger
}

// NewReportService constructs the service.
func NewReportService(ledger reportLedger, artifacts reportArtifacts, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{ledger: ledger, artifacts: artifacts, logger: logger}
}

// Issue opens a report against a live artifact.
func (s *ReportService) Issue(ctx context.Context, artifactID, description string, actor models.Actor) (*models.Report, error) {
	artifact, err := s.artifacts.GetByID(ctx, artifactID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load artifact")
	}
	if !artifact.Status.Live() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot report a deleted or superseded artifact")
	}

	entry := ledgerEntryFor(actor, models.ActionReportIssue, models.CategoryReport, &artifact.ID, description)
	if err := s.ledger.Insert(ctx, entry); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record report")
	}
	s.logger.Info("report issued",
		zap.String("reportId", entry.ID),
		zap.String("artifactId", artifact.ID),
		zap.String("by", actor.Username))
	return &models.Report{
		ID:          entry.ID,
		ArtifactID:  artifact.ID,
		Description: description,
		State:       models.ReportOpen,
		IssuedBy:    actor.Username,
		IssuedAt:    entry.CreatedAt,
	}, nil
}

// Resolve closes an open report. A withdrawn report can never be resolved; a
// resolved one cannot be resolved twice.
func (s *ReportService) Resolve(ctx context.Context, reportID, note string, actor models.Actor) error {
	issue, err := s.loadIssue(ctx, reportID)
	if err != nil {
		return err
	}
	withdrawn, err := s.ledger.HasActionTargeting(ctx, models.ActionReportDeleted, reportID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check report state")
	}
	if withdrawn {
		return appErrors.ErrWithdrawnReport
	}
	resolved, err := s.ledger.HasActionTargeting(ctx, models.ActionReportResolved, reportID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check report state")
	}
	if resolved {
		return appErrors.Clone(appErrors.ErrConflict, "report is already resolved")
	}

	description := "report resolved"
	if note != "" {
		description = fmt.Sprintf("report resolved: %s", note)
	}
	entry := ledgerEntryFor(actor, models.ActionReportResolved, models.CategoryReport, issue.ArtifactID, description)
	entry.TargetType = strPtr("report")
	entry.TargetID = &reportID
	if err := s.ledger.Insert(ctx, entry); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record resolution")
	}
	return nil
}

// Withdraw retracts a report. Withdrawal is terminal and beats a later or
// concurrent resolution in the fold.
func (s *ReportService) Withdraw(ctx context.Context, reportID, reason string, actor models.Actor) error {
	issue, err := s.loadIssue(ctx, reportID)
	if err != nil {
		return err
	}
	withdrawn, err := s.ledger.HasActionTargeting(ctx, models.ActionReportDeleted, reportID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check report state")
	}
	if withdrawn {
		return appErrors.Clone(appErrors.ErrConflict, "report is already withdrawn")
	}

	description := "report withdrawn"
	if reason != "" {
		description = fmt.Sprintf("report withdrawn: %s", reason)
	}
	entry := ledgerEntryFor(actor, models.ActionReportDeleted, models.CategoryReport, issue.ArtifactID, description)
	entry.TargetType = strPtr("report")
	entry.TargetID = &reportID
	if err := s.ledger.Insert(ctx, entry); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record withdrawal")
	}
	return nil
}

// ListForArtifact folds the artifact's ledger into report projections.
func (s *ReportService) ListForArtifact(ctx context.Context, artifactID string) ([]models.Report, error) {
	entries, err := s.ledger.ListByArtifact(ctx, artifactID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report history")
	}
	return models.ProjectReports(entries), nil
}

// ActiveCount reports how many reports on the artifact are still open.
func (s *ReportService) ActiveCount(ctx context.Context, artifactID string) (int, error) {
	entries, err := s.ledger.ListByArtifact(ctx, artifactID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report history")
	}
	return models.CountActiveReports(entries), nil
}

func (s *ReportService) loadIssue(ctx context.Context, reportID string) (*models.LedgerEntry, error) {
	entry, err := s.ledger.GetByID(ctx, reportID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report")
	}
	if entry.Action != models.ActionReportIssue {
		return nil, appErrors.Clone(appErrors.ErrValidation, "referenced entry is not a report")
	}
	return entry, nil
}
