package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/examsync/exam-bridge-api/internal/models"
	"github.com/examsync/exam-bridge-api/pkg/config"
	"github.com/examsync/exam-bridge-api/pkg/jobs"
	"github.com/examsync/exam-bridge-api/pkg/lms"
	"github.com/examsync/exam-bridge-api/pkg/notify"
)

type mailSender interface {
	Notify(msg notify.Message) bool
	Enabled() bool
}

type notifyStudentResolver interface {
	GetStudentByRegister(ctx context.Context, registerNumber string) (*models.StudentMapping, error)
}

type notifyAccountResolver interface {
	ResolveUser(ctx context.Context, username string) (*lms.UserInfo, error)
}

type notifyLedger interface {
	Insert(ctx context.Context, entry *models.LedgerEntry) error
}

type submittedPayload struct {
	ArtifactID     string
	RegisterNumber string
	SubjectCode    string
	ExamRound      string
}

// NotificationService tells students their paper reached the LMS. Sends run
// post-commit on a background worker pool and are strictly best-effort: the
// only durable trace of a failed send is its ledger entry.
type NotificationService struct {
	sender   mailSender
	students notifyStudentResolver
	accounts notifyAccountResolver
	ledger   notifyLedger
	logger   *zap.Logger
	queue    *jobs.Queue
	metrics  *MetricsService
}

// SetMetrics attaches the metrics sink.
func (s *NotificationService) SetMetrics(m *MetricsService) { s.metrics = m }

// NewNotificationService constructs the service and its worker queue.
func NewNotificationService(
	sender mailSender,
	students notifyStudentResolver,
	accounts notifyAccountResolver,
	ledger notifyLedger,
	cfg config.NotifierConfig,
	logger *zap.Logger,
) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		sender:   sender,
		students: students,
		accounts: accounts,
		ledger:   ledger,
		logger:   logger,
	}
	s.queue = jobs.NewQueue("student-notifications", s.handle, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return s
}

// Start launches the notification workers.
func (s *NotificationService) Start(ctx context.Context) { s.queue.Start(ctx) }

// Stop drains the workers.
func (s *NotificationService) Stop() { s.queue.Stop() }

// NotifySubmitted enqueues a submitted-paper notification. Called after the
// delivery transaction committed; a full buffer just drops the notification
// with a log line.
func (s *NotificationService) NotifySubmitted(artifact *models.Artifact) {
	s.enqueue("submitted", artifact)
}

// NotifyReceived enqueues an intake receipt mail after a scan was accepted.
func (s *NotificationService) NotifyReceived(artifact *models.Artifact) {
	s.enqueue("received", artifact)
}

func (s *NotificationService) enqueue(kind string, artifact *models.Artifact) {
	payload := submittedPayload{
		ArtifactID:     artifact.ID,
		RegisterNumber: artifact.Register(),
		SubjectCode:    artifact.Subject(),
		ExamRound:      artifact.ExamRound,
	}
	if err := s.queue.Enqueue(jobs.Job{Type: kind, Payload: payload}); err != nil {
		s.logger.Warn("notification dropped", zap.String("artifactId", artifact.ID), zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(submittedPayload)
	if !ok {
		s.logger.Error("unexpected notification payload", zap.String("type", job.Type))
		return nil
	}

	if !s.sender.Enabled() {
		s.record(ctx, payload, models.ActionNotificationSkipped, "notifier disabled")
		return nil
	}

	student, err := s.students.GetStudentByRegister(ctx, payload.RegisterNumber)
	if err != nil {
		return err
	}
	if student == nil {
		s.record(ctx, payload, models.ActionNotificationSkipped,
			fmt.Sprintf("no student mapping for %s", payload.RegisterNumber))
		return nil
	}

	user, err := s.accounts.ResolveUser(ctx, student.Username)
	if err != nil {
		return err
	}
	if user == nil || user.Email == "" {
		s.record(ctx, payload, models.ActionNotificationSkipped,
			fmt.Sprintf("no reachable LMS account for %s", student.Username))
		return nil
	}

	sent := s.sender.Notify(composeMessage(job.Type, user, payload))
	if sent {
		s.record(ctx, payload, models.ActionNotificationSent, fmt.Sprintf("notified %s", user.Email))
	} else {
		s.record(ctx, payload, models.ActionNotificationFailed, fmt.Sprintf("send to %s failed", user.Email))
	}
	return nil
}

func composeMessage(kind string, user *lms.UserInfo, payload submittedPayload) notify.Message {
	if kind == "received" {
		return notify.Message{
			To:      user.Email,
			Subject: fmt.Sprintf("Your %s answer script for %s was received", payload.ExamRound, payload.SubjectCode),
			Body: fmt.Sprintf(
				"Hello %s,\n\nYour scanned answer script for %s (%s) has been received by the examination office and is awaiting review.\n",
				user.DisplayName, payload.SubjectCode, payload.ExamRound),
		}
	}
	return notify.Message{
		To:      user.Email,
		Subject: fmt.Sprintf("Your %s answer script for %s was submitted", payload.ExamRound, payload.SubjectCode),
		Body: fmt.Sprintf(
			"Hello %s,\n\nYour scanned answer script for %s (%s) has been submitted to the LMS on your behalf.\n\nIf this does not look right, please raise a report with the examination office.\n",
			user.DisplayName, payload.SubjectCode, payload.ExamRound),
	}
}

func (s *NotificationService) record(ctx context.Context, payload submittedPayload, action, description string) {
	switch action {
	case models.ActionNotificationSent:
		s.metrics.NotificationOutcome("sent")
	case models.ActionNotificationFailed:
		s.metrics.NotificationOutcome("failed")
	case models.ActionNotificationSkipped:
		s.metrics.NotificationOutcome("skipped")
	}
	entry := ledgerEntryFor(models.SystemActor(), action, models.CategoryNotification, &payload.ArtifactID, description)
	if err := s.ledger.Insert(ctx, entry); err != nil {
		s.logger.Warn("failed to record notification outcome",
			zap.String("artifactId", payload.ArtifactID), zap.Error(err))
	}
}
