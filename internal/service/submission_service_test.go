package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/examsync/exam-bridge-api/internal/models"
	appErrors "github.com/examsync/exam-bridge-api/pkg/errors"
	"github.com/examsync/exam-bridge-api/pkg/idempotency"
	"github.com/examsync/exam-bridge-api/pkg/lms"
)

type stubDestinations struct {
	subjects map[string]*models.SubjectMapping
	students map[string]*models.StudentMapping
}

func (s *stubDestinations) GetSubject(_ context.Context, subjectCode, examRound string) (*models.SubjectMapping, error) {
	return s.subjects[subjectCode+"/"+examRound], nil
}

func (s *stubDestinations) GetStudentByRegister(_ context.Context, registerNumber string) (*models.StudentMapping, error) {
	return s.students[registerNumber], nil
}

type stubGateway struct {
	user       *lms.UserInfo
	userErr    error
	receipt    *lms.SubmissionReceipt
	submitErr  error
	lastDest   lms.Destination
	lastKey    string
	lastRef    string
	submitHits int
}

func (s *stubGateway) Submit(_ context.Context, dest lms.Destination, contentRef, idempotencyKey string) (*lms.SubmissionReceipt, error) {
	s.submitHits++
	s.lastDest = dest
	s.lastRef = contentRef
	s.lastKey = idempotencyKey
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return s.receipt, nil
}

func (s *stubGateway) ResolveUser(context.Context, string) (*lms.UserInfo, error) {
	if s.userErr != nil {
		return nil, s.userErr
	}
	return s.user, nil
}

func deliverableArtifact() *models.Artifact {
	register, subject := "21BCA042", "CS301"
	return &models.Artifact{
		ID:             "a-1",
		RegisterNumber: &register,
		SubjectCode:    &subject,
		ExamRound:      models.RoundCIA1,
		AttemptNumber:  1,
		ContentRef:     "ref-1",
		Status:         models.StatusQueued,
	}
}

func mappedDestinations() *stubDestinations {
	return &stubDestinations{
		subjects: map[string]*models.SubjectMapping{
			"CS301/CIA1": {ID: "sm-1", SubjectCode: "CS301", ExamRound: "CIA1", CourseID: 12, AssignmentID: 340, IsActive: true},
		},
		students: map[string]*models.StudentMapping{
			"21BCA042": {ID: "stm-1", Username: "jdoe", RegisterNumber: "21BCA042"},
		},
	}
}

func TestSubmissionServiceDeliver(t *testing.T) {
	gateway := &stubGateway{
		user:    &lms.UserInfo{Username: "jdoe", Email: "jdoe@example.edu"},
		receipt: &lms.SubmissionReceipt{ExternalUserID: "u-9", ExternalSubmissionID: "sub-55"},
	}
	svc := NewSubmissionService(mappedDestinations(), gateway, nil)

	result, err := svc.Deliver(context.Background(), deliverableArtifact())
	require.NoError(t, err)
	require.Equal(t, "u-9", result.ExternalUserID)
	require.Equal(t, "340", result.ExternalAssignmentID)
	require.Equal(t, "sub-55", result.ExternalSubmissionID)

	require.Equal(t, int64(12), gateway.lastDest.CourseID)
	require.Equal(t, int64(340), gateway.lastDest.AssignmentID)
	require.Equal(t, "ref-1", gateway.lastRef)
	require.Equal(t, idempotency.Key("21BCA042", "CS301"), gateway.lastKey)
}

func TestSubmissionServiceDeliverPrefersHeldTransactionID(t *testing.T) {
	gateway := &stubGateway{
		user:    &lms.UserInfo{Username: "jdoe"},
		receipt: &lms.SubmissionReceipt{ExternalSubmissionID: "sub-56"},
	}
	svc := NewSubmissionService(mappedDestinations(), gateway, nil)

	artifact := deliverableArtifact()
	held := idempotency.AttemptKey("21BCA042", "CS301", 2)
	artifact.AttemptNumber = 2
	artifact.TransactionID = &held

	_, err := svc.Deliver(context.Background(), artifact)
	require.NoError(t, err)
	require.Equal(t, held, gateway.lastKey)
}

func TestSubmissionServiceUnmappedSubjectIsTerminal(t *testing.T) {
	dests := mappedDestinations()
	delete(dests.subjects, "CS301/CIA1")
	svc := NewSubmissionService(dests, &stubGateway{}, nil)

	_, err := svc.Deliver(context.Background(), deliverableArtifact())
	require.True(t, appErrors.Is(err, appErrors.ErrTerminalDelivery))
}

func TestSubmissionServiceUnmappedStudentIsTerminal(t *testing.T) {
	dests := mappedDestinations()
	delete(dests.students, "21BCA042")
	svc := NewSubmissionService(dests, &stubGateway{}, nil)

	_, err := svc.Deliver(context.Background(), deliverableArtifact())
	require.True(t, appErrors.Is(err, appErrors.ErrTerminalDelivery))
}

func TestSubmissionServiceMissingLMSAccountIsTerminal(t *testing.T) {
	gateway := &stubGateway{user: nil}
	svc := NewSubmissionService(mappedDestinations(), gateway, nil)

	_, err := svc.Deliver(context.Background(), deliverableArtifact())
	require.True(t, appErrors.Is(err, appErrors.ErrTerminalDelivery))
	require.Zero(t, gateway.submitHits)
}

func TestSubmissionServiceTransportFailureKeepsClassification(t *testing.T) {
	gateway := &stubGateway{
		user:      &lms.UserInfo{Username: "jdoe"},
		submitErr: appErrors.Clone(appErrors.ErrRetryableDelivery, "gateway timeout"),
	}
	svc := NewSubmissionService(mappedDestinations(), gateway, nil)

	_, err := svc.Deliver(context.Background(), deliverableArtifact())
	require.True(t, appErrors.Is(err, appErrors.ErrRetryableDelivery))
}
