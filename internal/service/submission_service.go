package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/examsync/exam-bridge-api/internal/models"
	appErrors "github.com/examsync/exam-bridge-api/pkg/errors"
	"github.com/examsync/exam-bridge-api/pkg/idempotency"
	"github.com/examsync/exam-bridge-api/pkg/lms"
)

type destinationResolver interface {
	GetSubject(ctx context.Context, subjectCode, examRound string) (*models.SubjectMapping, error)
	GetStudentByRegister(ctx context.Context, registerNumber string) (*models.StudentMapping, error)
}

type lmsGateway interface {
	Submit(ctx context.Context, dest lms.Destination, contentRef, idempotencyKey string) (*lms.SubmissionReceipt, error)
	ResolveUser(ctx context.Context, username string) (*lms.UserInfo, error)
}

// DeliveryResult carries the external identifiers recorded on success.
type DeliveryResult struct {
	ExternalUserID       string
	ExternalAssignmentID string
	ExternalSubmissionID string
}

// SubmissionService performs one delivery attempt to the LMS. It decides
// nothing about retries; it only classifies its own failures as retryable or
// terminal through the error it returns.
type SubmissionService struct {
	mappings destinationResolver
	lms      lmsGateway
	logger   *zap.Logger
}

// NewSubmissionService constructs the executor.
func NewSubmissionService(mappings destinationResolver, gateway lmsGateway, logger *zap.Logger) *SubmissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{mappings: mappings, lms: gateway, logger: logger}
}

// Deliver hands one artifact to the LMS. Missing mappings and missing LMS
// accounts are terminal: no number of retries fixes configuration. Transport
// failures keep the classification the client assigned.
func (s *SubmissionService) Deliver(ctx context.Context, artifact *models.Artifact) (*DeliveryResult, error) {
	subject, err := s.mappings.GetSubject(ctx, artifact.Subject(), artifact.ExamRound)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrRetryableDelivery.Code, appErrors.ErrRetryableDelivery.Status,
			"failed to load subject mapping")
	}
	if subject == nil {
		return nil, appErrors.Clone(appErrors.ErrTerminalDelivery,
			fmt.Sprintf("no active mapping for subject %s round %s", artifact.Subject(), artifact.ExamRound))
	}

	student, err := s.mappings.GetStudentByRegister(ctx, artifact.Register())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrRetryableDelivery.Code, appErrors.ErrRetryableDelivery.Status,
			"failed to load student mapping")
	}
	if student == nil {
		return nil, appErrors.Clone(appErrors.ErrTerminalDelivery,
			fmt.Sprintf("register number %s is not mapped to an LMS account", artifact.Register()))
	}

	user, err := s.lms.ResolveUser(ctx, student.Username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, appErrors.Clone(appErrors.ErrTerminalDelivery,
			fmt.Sprintf("LMS account %s not found", student.Username))
	}

	// The delivery token is the transaction id held since intake; deriving it
	// again covers artifacts whose id was cleared by an admin mid-flight.
	key := idempotency.AttemptKey(artifact.Register(), artifact.Subject(), artifact.AttemptNumber)
	if artifact.TransactionID != nil && *artifact.TransactionID != "" {
		key = *artifact.TransactionID
	}
	receipt, err := s.lms.Submit(ctx, lms.Destination{
		CourseID:     subject.CourseID,
		AssignmentID: subject.AssignmentID,
	}, artifact.ContentRef, key)
	if err != nil {
		return nil, err
	}

	result := &DeliveryResult{
		ExternalUserID:       receipt.ExternalUserID,
		ExternalAssignmentID: fmt.Sprintf("%d", subject.AssignmentID),
		ExternalSubmissionID: receipt.ExternalSubmissionID,
	}
	if result.ExternalUserID == "" {
		result.ExternalUserID = student.Username
	}
	s.logger.Info("artifact delivered",
		zap.String("artifactId", artifact.ID),
		zap.String("submissionId", result.ExternalSubmissionID))
	return result, nil
}
