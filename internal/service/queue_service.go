package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/examsync/exam-bridge-api/internal/models"
	"github.com/examsync/exam-bridge-api/internal/repository"
	"github.com/examsync/exam-bridge-api/pkg/config"
	appErrors "github.com/examsync/exam-bridge-api/pkg/errors"
)

type queueStore interface {
	Enqueue(ctx context.Context, artifact *models.Artifact, from []models.WorkflowStatus, entry *models.LedgerEntry) (*models.QueueEntry, error)
	ListQueued(ctx context.Context, limit int) ([]models.QueueEntry, error)
	Claim(ctx context.Context, entryID string) (bool, error)
	MarkDelivered(ctx context.Context, params repository.DeliveredParams) error
	MarkRetry(ctx context.Context, params repository.RetryParams) error
	MarkDead(ctx context.Context, params repository.DeadParams) error
	ReleaseClaim(ctx context.Context, entryID, note string) error
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error)
	GetActiveByArtifact(ctx context.Context, artifactID string) (*models.QueueEntry, error)
	Snapshot(ctx context.Context, limit int) (*models.QueueSnapshot, error)
}

type queueArtifacts interface {
	GetByID(ctx context.Context, id string) (*models.Artifact, error)
}

type deliverer interface {
	Deliver(ctx context.Context, artifact *models.Artifact) (*DeliveryResult, error)
}

type deliveryNotifier interface {
	NotifySubmitted(artifact *models.Artifact)
}

// QueueService owns enqueue and the manual drain loop. Nothing drains the
// queue on its own: an operator (or a cron hitting the endpoint) triggers a
// pass, which claims entries one by one and walks each through delivery.
type QueueService struct {
	queue     queueStore
	artifacts queueArtifacts
	executor  deliverer
	notifier  deliveryNotifier
	cfg       config.QueueConfig
	logger    *zap.Logger

	// sleep is swapped in tests so retry pauses do not slow them down.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewQueueService constructs the service.
func NewQueueService(queue queueStore, artifacts queueArtifacts, executor deliverer, notifier deliveryNotifier, cfg config.QueueConfig, logger *zap.Logger) *QueueService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.DrainBatch <= 0 {
		cfg.DrainBatch = 25
	}
	return &QueueService{
		queue:     queue,
		artifacts: artifacts,
		executor:  executor,
		notifier:  notifier,
		cfg:       cfg,
		logger:    logger,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Enqueue stages a PENDING_REVIEW or FAILED artifact for delivery. The queue
// guard guarantees at most one in-flight entry per artifact.
func (s *QueueService) Enqueue(ctx context.Context, artifactID string, actor models.Actor) (*models.QueueEntry, error) {
	artifact, err := s.artifacts.GetByID(ctx, artifactID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load artifact")
	}
	if artifact.Status != models.StatusPendingReview && artifact.Status != models.StatusFailed {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition,
			fmt.Sprintf("artifact in state %s cannot be queued", artifact.Status))
	}

	artifact.AppendLog(models.ActionStatusChange, map[string]interface{}{
		"from": string(artifact.Status),
		"to":   string(models.StatusQueued),
	})
	entry := ledgerEntryFor(actor, models.ActionStatusChange, models.CategoryWorkflow, &artifact.ID,
		fmt.Sprintf("queued for delivery from %s", artifact.Status))

	queueEntry, err := s.queue.Enqueue(ctx, artifact,
		[]models.WorkflowStatus{models.StatusPendingReview, models.StatusFailed}, entry)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrActiveQueueEntry):
			return nil, appErrors.ErrAlreadyQueued
		case errors.Is(err, repository.ErrStaleState):
			return nil, appErrors.Clone(appErrors.ErrConflict, "artifact changed while queuing it")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue artifact")
		}
	}
	return queueEntry, nil
}

// Drain claims up to maxItems queued entries and attempts delivery for each.
// A retryable failure is re-attempted within the pass, with the configured
// pause in between, until the retry ceiling retires the entry. Terminal
// failures dead-letter immediately.
func (s *QueueService) Drain(ctx context.Context, maxItems int, actor models.Actor) (*models.DrainResult, error) {
	if maxItems <= 0 {
		maxItems = s.cfg.DrainBatch
	}
	if s.cfg.StaleClaimAfter > 0 {
		reclaimed, err := s.queue.ReclaimStale(ctx, s.cfg.StaleClaimAfter)
		if err != nil {
			s.logger.Warn("failed to reclaim stale claims", zap.Error(err))
		} else if reclaimed > 0 {
			s.logger.Warn("requeued entries orphaned by an earlier drain", zap.Int("count", reclaimed))
		}
	}
	entries, err := s.queue.ListQueued(ctx, maxItems)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list queue")
	}

	result := &models.DrainResult{}
	for i := range entries {
		if ctx.Err() != nil {
			break
		}
		item, ok := s.drainOne(ctx, &entries[i], actor)
		if !ok {
			continue
		}
		result.Claimed++
		switch item.Outcome {
		case models.DrainDelivered:
			result.Delivered++
		case models.DrainRequeued:
			result.Requeued++
		case models.DrainDead:
			result.Dead++
		}
		result.Items = append(result.Items, item)
	}
	s.logger.Info("queue drained",
		zap.Int("claimed", result.Claimed),
		zap.Int("delivered", result.Delivered),
		zap.Int("requeued", result.Requeued),
		zap.Int("dead", result.Dead),
		zap.String("by", actor.Username))
	return result, nil
}

// drainOne walks a single entry through delivery attempts. The second return
// is false when the entry could not be claimed at all.
func (s *QueueService) drainOne(ctx context.Context, entry *models.QueueEntry, actor models.Actor) (models.DrainItemResult, bool) {
	artifact, err := s.artifacts.GetByID(ctx, entry.ArtifactID)
	if err != nil {
		s.logger.Warn("skipping entry, artifact unavailable",
			zap.String("entryId", entry.ID), zap.String("artifactId", entry.ArtifactID), zap.Error(err))
		return models.DrainItemResult{}, false
	}

	claimed, err := s.queue.Claim(ctx, entry.ID)
	if err != nil || !claimed {
		if err != nil {
			s.logger.Warn("claim failed", zap.String("entryId", entry.ID), zap.Error(err))
		}
		return models.DrainItemResult{}, false
	}

	for {
		deliveryResult, err := s.executor.Deliver(ctx, artifact)
		if err == nil {
			return s.finishDelivered(ctx, entry, artifact, deliveryResult, actor), true
		}

		retryable := appErrors.Is(err, appErrors.ErrRetryableDelivery)
		item := s.retireOrRequeue(ctx, entry, artifact, actor, appErrors.FromError(err).Error(), retryable)
		if item.Outcome != models.DrainRequeued {
			return item, true
		}

		if err := s.sleep(ctx, s.cfg.RetryBackoff); err != nil {
			return item, true
		}
		claimed, err := s.queue.Claim(ctx, entry.ID)
		if err != nil || !claimed {
			return item, true
		}
	}
}

func (s *QueueService) finishDelivered(ctx context.Context, entry *models.QueueEntry, artifact *models.Artifact, deliveryResult *DeliveryResult, actor models.Actor) models.DrainItemResult {
	artifact.ExternalUserID = &deliveryResult.ExternalUserID
	artifact.ExternalAssignmentID = &deliveryResult.ExternalAssignmentID
	artifact.ExternalSubmissionID = &deliveryResult.ExternalSubmissionID
	artifact.AppendLog(models.ActionSubmittedToLMS, map[string]interface{}{
		"submission_id": deliveryResult.ExternalSubmissionID,
	})
	ledger := ledgerEntryFor(actor, models.ActionSubmittedToLMS, models.CategorySubmission, &artifact.ID,
		fmt.Sprintf("delivered to LMS as submission %s", deliveryResult.ExternalSubmissionID))

	err := s.queue.MarkDelivered(ctx, repository.DeliveredParams{
		EntryID:  entry.ID,
		Artifact: artifact,
		Entries:  []*models.LedgerEntry{ledger},
	})
	if err != nil {
		// Delivery happened; only local bookkeeping failed. Put the entry back
		// in the queue so the next pass re-delivers, which the idempotency key
		// makes harmless, and records the outcome again.
		s.logger.Error("delivered but failed to record", zap.String("artifactId", artifact.ID), zap.Error(err))
		if releaseErr := s.queue.ReleaseClaim(ctx, entry.ID, "delivered to LMS; local record still pending"); releaseErr != nil {
			s.logger.Error("failed to release claim after record failure",
				zap.String("entryId", entry.ID), zap.Error(releaseErr))
		}
		return models.DrainItemResult{
			ArtifactID: artifact.ID,
			Outcome:    models.DrainRequeued,
			RetryCount: entry.RetryCount,
			Error:      err.Error(),
		}
	}
	if s.notifier != nil {
		s.notifier.NotifySubmitted(artifact)
	}
	return models.DrainItemResult{
		ArtifactID: artifact.ID,
		Outcome:    models.DrainDelivered,
		RetryCount: artifact.RetryCount,
	}
}

func (s *QueueService) retireOrRequeue(ctx context.Context, entry *models.QueueEntry, artifact *models.Artifact, actor models.Actor, cause string, retryable bool) models.DrainItemResult {
	next := entry.RetryCount + 1
	exhausted := next > s.cfg.MaxRetries

	if retryable && !exhausted {
		if artifact != nil {
			artifact.AppendLog(models.ActionSubmissionRetry, map[string]interface{}{
				"retry": next,
				"cause": cause,
			})
		}
		ledger := ledgerEntryFor(actor, models.ActionSubmissionRetry, models.CategorySubmission, &entry.ArtifactID,
			fmt.Sprintf("delivery retry %d/%d: %s", next, s.cfg.MaxRetries, cause))
		err := s.queue.MarkRetry(ctx, repository.RetryParams{
			EntryID:    entry.ID,
			Artifact:   artifact,
			RetryCount: next,
			LastError:  cause,
			Entry:      ledger,
		})
		if err != nil {
			s.logger.Error("failed to requeue entry", zap.String("entryId", entry.ID), zap.Error(err))
		}
		entry.RetryCount = next
		return models.DrainItemResult{
			ArtifactID: entry.ArtifactID,
			Outcome:    models.DrainRequeued,
			RetryCount: next,
			Error:      cause,
		}
	}

	reason := cause
	if retryable && exhausted {
		reason = fmt.Sprintf("retry ceiling of %d reached: %s", s.cfg.MaxRetries, cause)
	}
	if artifact != nil {
		artifact.AppendLog(models.ActionSubmissionDead, map[string]interface{}{"cause": reason})
	}
	ledger := ledgerEntryFor(actor, models.ActionSubmissionDead, models.CategorySubmission, &entry.ArtifactID,
		fmt.Sprintf("delivery abandoned: %s", reason))
	err := s.queue.MarkDead(ctx, repository.DeadParams{
		EntryID:    entry.ID,
		Artifact:   artifact,
		RetryCount: entry.RetryCount,
		LastError:  reason,
		Entry:      ledger,
	})
	if err != nil {
		s.logger.Error("failed to dead-letter entry", zap.String("entryId", entry.ID), zap.Error(err))
	}
	return models.DrainItemResult{
		ArtifactID: entry.ArtifactID,
		Outcome:    models.DrainDead,
		RetryCount: entry.RetryCount,
		Error:      reason,
	}
}

// Status summarises the queue for operators.
func (s *QueueService) Status(ctx context.Context, limit int) (*models.QueueSnapshot, error) {
	snapshot, err := s.queue.Snapshot(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot queue")
	}
	return snapshot, nil
}

// ActiveEntry returns the in-flight queue entry for an artifact, if any.
func (s *QueueService) ActiveEntry(ctx context.Context, artifactID string) (*models.QueueEntry, error) {
	entry, err := s.queue.GetActiveByArtifact(ctx, artifactID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load queue entry")
	}
	return entry, nil
}
