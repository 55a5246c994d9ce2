package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/examsync/exam-bridge-api/internal/dto"
	"github.com/examsync/exam-bridge-api/internal/models"
	appErrors "github.com/examsync/exam-bridge-api/pkg/errors"
)

type mappingStore interface {
	UpsertSubject(ctx context.Context, mapping *models.SubjectMapping) error
	GetSubject(ctx context.Context, subjectCode, examRound string) (*models.SubjectMapping, error)
	ListSubjects(ctx context.Context, activeOnly bool) ([]models.SubjectMapping, error)
	DeactivateSubject(ctx context.Context, id string) error
	TouchSubjectVerified(ctx context.Context, id string, at time.Time) error
	UpsertStudent(ctx context.Context, mapping *models.StudentMapping) error
	GetStudentByRegister(ctx context.Context, registerNumber string) (*models.StudentMapping, error)
	GetStudentByUsername(ctx context.Context, username string) (*models.StudentMapping, error)
	ListStudents(ctx context.Context, limit, offset int) ([]models.StudentMapping, error)
	DeleteStudent(ctx context.Context, id string) error
}

type mappingLedger interface {
	Insert(ctx context.Context, entry *models.LedgerEntry) error
}

// MappingService administers subject→assignment and student→register
// mappings.
type MappingService struct {
	repo   mappingStore
	ledger mappingLedger
	logger *zap.Logger
}

// NewMappingService constructs the service.
func NewMappingService(repo mappingStore, ledger mappingLedger, logger *zap.Logger) *MappingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MappingService{repo: repo, ledger: ledger, logger: logger}
}

// UpsertSubject binds a (subject, round) pair to a delivery destination.
func (s *MappingService) UpsertSubject(ctx context.Context, req dto.UpsertSubjectMappingRequest, actor models.Actor) (*models.SubjectMapping, error) {
	round := strings.ToUpper(strings.TrimSpace(req.ExamRound))
	mapping := &models.SubjectMapping{
		SubjectCode:  strings.ToUpper(strings.TrimSpace(req.SubjectCode)),
		ExamRound:    round,
		CourseID:     req.CourseID,
		AssignmentID: req.AssignmentID,
		IsActive:     true,
	}
	if mapping.SubjectCode == "" || round == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject code and exam round are required")
	}
	if err := s.repo.UpsertSubject(ctx, mapping); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save subject mapping")
	}
	s.recordAdmin(ctx, actor, fmt.Sprintf("mapped subject %s/%s to assignment %d", mapping.SubjectCode, round, req.AssignmentID))
	return mapping, nil
}

// ListSubjects returns subject mappings.
func (s *MappingService) ListSubjects(ctx context.Context, activeOnly bool) ([]models.SubjectMapping, error) {
	mappings, err := s.repo.ListSubjects(ctx, activeOnly)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subject mappings")
	}
	return mappings, nil
}

// DeactivateSubject retires a subject mapping.
func (s *MappingService) DeactivateSubject(ctx context.Context, id string, actor models.Actor) error {
	if err := s.repo.DeactivateSubject(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "subject mapping not found or already inactive")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate subject mapping")
	}
	s.recordAdmin(ctx, actor, fmt.Sprintf("deactivated subject mapping %s", id))
	return nil
}

// MarkSubjectVerified stamps a mapping after an operator confirmed the
// destination exists in the LMS.
func (s *MappingService) MarkSubjectVerified(ctx context.Context, id string, actor models.Actor) error {
	if err := s.repo.TouchSubjectVerified(ctx, id, time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stamp subject mapping")
	}
	s.recordAdmin(ctx, actor, fmt.Sprintf("verified subject mapping %s against the LMS", id))
	return nil
}

// UpsertStudent binds an LMS username to a register number.
func (s *MappingService) UpsertStudent(ctx context.Context, req dto.UpsertStudentMappingRequest, actor models.Actor) (*models.StudentMapping, error) {
	mapping := &models.StudentMapping{
		Username:       strings.ToLower(strings.TrimSpace(req.Username)),
		RegisterNumber: strings.ToUpper(strings.TrimSpace(req.RegisterNumber)),
	}
	if mapping.Username == "" || mapping.RegisterNumber == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "username and register number are required")
	}
	if err := s.repo.UpsertStudent(ctx, mapping); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save student mapping")
	}
	s.recordAdmin(ctx, actor, fmt.Sprintf("mapped student %s to register %s", mapping.Username, mapping.RegisterNumber))
	return mapping, nil
}

// ListStudents pages through student mappings.
func (s *MappingService) ListStudents(ctx context.Context, limit, offset int) ([]models.StudentMapping, error) {
	mappings, err := s.repo.ListStudents(ctx, limit, offset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list student mappings")
	}
	return mappings, nil
}

// DeleteStudent removes a student mapping.
func (s *MappingService) DeleteStudent(ctx context.Context, id string, actor models.Actor) error {
	if err := s.repo.DeleteStudent(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student mapping not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete student mapping")
	}
	s.recordAdmin(ctx, actor, fmt.Sprintf("deleted student mapping %s", id))
	return nil
}

// Coverage answers, per intake row, whether the subject and the student are
// both mapped. Intake staff run this before scanning a batch.
func (s *MappingService) Coverage(ctx context.Context, items []dto.ProbeItem) ([]models.MappingCoverage, error) {
	coverage := make([]models.MappingCoverage, 0, len(items))
	for _, item := range items {
		register := strings.ToUpper(strings.TrimSpace(item.RegisterNumber))
		subject := strings.ToUpper(strings.TrimSpace(item.SubjectCode))
		round := strings.ToUpper(strings.TrimSpace(item.ExamRound))
		if round == "" {
			round = models.RoundCIA1
		}
		entry := models.MappingCoverage{
			RegisterNumber: register,
			SubjectCode:    subject,
			ExamRound:      round,
		}
		subjectMapping, err := s.repo.GetSubject(ctx, subject, round)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check subject mapping")
		}
		entry.SubjectMapped = subjectMapping != nil

		studentMapping, err := s.repo.GetStudentByRegister(ctx, register)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check student mapping")
		}
		entry.StudentMapped = studentMapping != nil
		coverage = append(coverage, entry)
	}
	return coverage, nil
}

func (s *MappingService) recordAdmin(ctx context.Context, actor models.Actor, description string) {
	if s.ledger == nil {
		return
	}
	entry := ledgerEntryFor(actor, models.ActionStatusChange, models.CategoryAdmin, nil, description)
	if err := s.ledger.Insert(ctx, entry); err != nil {
		s.logger.Warn("failed to record mapping change", zap.Error(err))
	}
}
