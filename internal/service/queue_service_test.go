package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/examsync/exam-bridge-api/internal/models"
	"github.com/examsync/exam-bridge-api/internal/repository"
	"github.com/examsync/exam-bridge-api/pkg/config"
	appErrors "github.com/examsync/exam-bridge-api/pkg/errors"
)

type stubQueueStore struct {
	entries       map[string]*models.QueueEntry
	active        map[string]bool
	stale         map[string]bool
	enqueueErr    error
	deliveredErr  error
	delivered     []repository.DeliveredParams
	retries       []repository.RetryParams
	dead          []repository.DeadParams
	released      []string
	reclaims      int
	claimRefusals int
}

func newStubQueueStore() *stubQueueStore {
	return &stubQueueStore{
		entries: make(map[string]*models.QueueEntry),
		active:  make(map[string]bool),
		stale:   make(map[string]bool),
	}
}

func (s *stubQueueStore) Enqueue(_ context.Context, artifact *models.Artifact, _ []models.WorkflowStatus, _ *models.LedgerEntry) (*models.QueueEntry, error) {
	if s.enqueueErr != nil {
		return nil, s.enqueueErr
	}
	if s.active[artifact.ID] {
		return nil, repository.ErrActiveQueueEntry
	}
	entry := &models.QueueEntry{
		ID:         "q-" + artifact.ID,
		ArtifactID: artifact.ID,
		Status:     models.QueueStatusQueued,
		QueuedAt:   time.Now().UTC(),
	}
	s.entries[entry.ID] = entry
	s.active[artifact.ID] = true
	artifact.Status = models.StatusQueued
	return entry, nil
}

func (s *stubQueueStore) ListQueued(_ context.Context, limit int) ([]models.QueueEntry, error) {
	out := make([]models.QueueEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if entry.Status == models.QueueStatusQueued && len(out) < limit {
			out = append(out, *entry)
		}
	}
	return out, nil
}

func (s *stubQueueStore) Claim(_ context.Context, entryID string) (bool, error) {
	if s.claimRefusals > 0 {
		s.claimRefusals--
		return false, nil
	}
	entry, ok := s.entries[entryID]
	if !ok || entry.Status != models.QueueStatusQueued {
		return false, nil
	}
	entry.Status = models.QueueStatusInProgress
	return true, nil
}

func (s *stubQueueStore) MarkDelivered(_ context.Context, params repository.DeliveredParams) error {
	if s.deliveredErr != nil {
		return s.deliveredErr
	}
	s.delivered = append(s.delivered, params)
	s.entries[params.EntryID].Status = models.QueueStatusDelivered
	s.active[params.Artifact.ID] = false
	params.Artifact.Status = models.StatusSubmitted
	now := time.Now().UTC()
	params.Artifact.SubmittedAt = &now
	return nil
}

func (s *stubQueueStore) MarkRetry(_ context.Context, params repository.RetryParams) error {
	s.retries = append(s.retries, params)
	entry := s.entries[params.EntryID]
	entry.Status = models.QueueStatusQueued
	entry.RetryCount = params.RetryCount
	params.Artifact.RetryCount = params.RetryCount
	params.Artifact.LastError = &params.LastError
	return nil
}

func (s *stubQueueStore) MarkDead(_ context.Context, params repository.DeadParams) error {
	s.dead = append(s.dead, params)
	s.entries[params.EntryID].Status = models.QueueStatusDead
	s.active[params.Artifact.ID] = false
	params.Artifact.Status = models.StatusFailed
	params.Artifact.LastError = &params.LastError
	return nil
}

func (s *stubQueueStore) ReleaseClaim(_ context.Context, entryID, note string) error {
	entry, ok := s.entries[entryID]
	if !ok || entry.Status != models.QueueStatusInProgress {
		return repository.ErrStaleState
	}
	entry.Status = models.QueueStatusQueued
	entry.LastError = &note
	s.released = append(s.released, entryID)
	return nil
}

func (s *stubQueueStore) ReclaimStale(_ context.Context, _ time.Duration) (int, error) {
	s.reclaims++
	count := 0
	for id, entry := range s.entries {
		if entry.Status == models.QueueStatusInProgress && s.stale[id] {
			entry.Status = models.QueueStatusQueued
			delete(s.stale, id)
			count++
		}
	}
	return count, nil
}

func (s *stubQueueStore) GetActiveByArtifact(_ context.Context, artifactID string) (*models.QueueEntry, error) {
	for _, entry := range s.entries {
		if entry.ArtifactID == artifactID && entry.Status.InFlight() {
			return entry, nil
		}
	}
	return nil, nil
}

func (s *stubQueueStore) Snapshot(context.Context, int) (*models.QueueSnapshot, error) {
	snapshot := &models.QueueSnapshot{ByStatus: make(map[string]int)}
	for _, entry := range s.entries {
		snapshot.ByStatus[string(entry.Status)]++
		snapshot.Total++
	}
	return snapshot, nil
}

type stubQueueArtifacts struct {
	artifacts map[string]*models.Artifact
}

func (s *stubQueueArtifacts) GetByID(_ context.Context, id string) (*models.Artifact, error) {
	if artifact, ok := s.artifacts[id]; ok {
		return artifact, nil
	}
	return nil, sql.ErrNoRows
}

type stubDeliverer struct {
	outcomes []error
	result   *DeliveryResult
	calls    int
}

func (s *stubDeliverer) Deliver(context.Context, *models.Artifact) (*DeliveryResult, error) {
	defer func() { s.calls++ }()
	if s.calls < len(s.outcomes) && s.outcomes[s.calls] != nil {
		return nil, s.outcomes[s.calls]
	}
	return s.result, nil
}

type stubNotifier struct {
	notified []string
}

func (s *stubNotifier) NotifySubmitted(artifact *models.Artifact) {
	s.notified = append(s.notified, artifact.ID)
}

func newQueueServiceForTest(store *stubQueueStore, artifacts *stubQueueArtifacts, executor *stubDeliverer, notifier *stubNotifier) *QueueService {
	svc := NewQueueService(store, artifacts, executor, notifier,
		config.QueueConfig{MaxRetries: 3, RetryBackoff: 0, DrainBatch: 10, StaleClaimAfter: time.Minute}, zap.NewNop())
	svc.sleep = func(context.Context, time.Duration) error { return nil }
	return svc
}

func pendingArtifact(id string) *models.Artifact {
	register := "21BCA042"
	subject := "CS301"
	return &models.Artifact{
		ID:             id,
		RegisterNumber: &register,
		SubjectCode:    &subject,
		ExamRound:      models.RoundCIA1,
		AttemptNumber:  1,
		Status:         models.StatusPendingReview,
		ContentRef:     "2026/08/26/x.bin",
	}
}

func TestQueueServiceEnqueueRejectsWrongState(t *testing.T) {
	store := newStubQueueStore()
	artifact := pendingArtifact("a-1")
	artifact.Status = models.StatusSubmitted
	artifacts := &stubQueueArtifacts{artifacts: map[string]*models.Artifact{"a-1": artifact}}
	svc := newQueueServiceForTest(store, artifacts, &stubDeliverer{}, &stubNotifier{})

	_, err := svc.Enqueue(context.Background(), "a-1", models.SystemActor())
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestQueueServiceEnqueueMutualExclusion(t *testing.T) {
	store := newStubQueueStore()
	artifact := pendingArtifact("a-1")
	artifacts := &stubQueueArtifacts{artifacts: map[string]*models.Artifact{"a-1": artifact}}
	svc := newQueueServiceForTest(store, artifacts, &stubDeliverer{}, &stubNotifier{})

	entry, err := svc.Enqueue(context.Background(), "a-1", models.SystemActor())
	require.NoError(t, err)
	require.Equal(t, models.QueueStatusQueued, entry.Status)
	require.Equal(t, models.StatusQueued, artifact.Status)

	// A second enqueue for the same artifact is refused while the first entry
	// is in flight, even from FAILED.
	artifact.Status = models.StatusFailed
	_, err = svc.Enqueue(context.Background(), "a-1", models.SystemActor())
	require.True(t, appErrors.Is(err, appErrors.ErrAlreadyQueued))
}

func TestQueueServiceDrainDeliversAfterRetryableFailures(t *testing.T) {
	store := newStubQueueStore()
	artifact := pendingArtifact("a-1")
	artifacts := &stubQueueArtifacts{artifacts: map[string]*models.Artifact{"a-1": artifact}}
	executor := &stubDeliverer{
		outcomes: []error{
			appErrors.Clone(appErrors.ErrRetryableDelivery, "lms down"),
			appErrors.Clone(appErrors.ErrRetryableDelivery, "lms still down"),
			nil,
		},
		result: &DeliveryResult{
			ExternalUserID:       "901",
			ExternalAssignmentID: "3005",
			ExternalSubmissionID: "sub-77",
		},
	}
	notifier := &stubNotifier{}
	svc := newQueueServiceForTest(store, artifacts, executor, notifier)

	_, err := svc.Enqueue(context.Background(), "a-1", models.SystemActor())
	require.NoError(t, err)

	result, err := svc.Drain(context.Background(), 10, models.SystemActor())
	require.NoError(t, err)
	require.Equal(t, 1, result.Claimed)
	require.Equal(t, 1, result.Delivered)
	require.Equal(t, 0, result.Dead)

	require.Equal(t, models.StatusSubmitted, artifact.Status)
	require.Equal(t, 2, artifact.RetryCount)
	require.NotNil(t, artifact.ExternalSubmissionID)
	require.Equal(t, "sub-77", *artifact.ExternalSubmissionID)
	require.Len(t, store.retries, 2)
	require.Equal(t, []string{"a-1"}, notifier.notified)
}

func TestQueueServiceDrainTerminalFailureDeadLetters(t *testing.T) {
	store := newStubQueueStore()
	artifact := pendingArtifact("a-1")
	artifacts := &stubQueueArtifacts{artifacts: map[string]*models.Artifact{"a-1": artifact}}
	executor := &stubDeliverer{
		outcomes: []error{appErrors.Clone(appErrors.ErrTerminalDelivery, "subject not mapped")},
	}
	svc := newQueueServiceForTest(store, artifacts, executor, &stubNotifier{})

	_, err := svc.Enqueue(context.Background(), "a-1", models.SystemActor())
	require.NoError(t, err)

	result, err := svc.Drain(context.Background(), 10, models.SystemActor())
	require.NoError(t, err)
	require.Equal(t, 1, result.Dead)
	require.Equal(t, models.StatusFailed, artifact.Status)
	require.Equal(t, 1, executor.calls)
	require.Empty(t, store.retries)
	require.Len(t, store.dead, 1)
}

func TestQueueServiceDrainRetryCeiling(t *testing.T) {
	store := newStubQueueStore()
	artifact := pendingArtifact("a-1")
	artifacts := &stubQueueArtifacts{artifacts: map[string]*models.Artifact{"a-1": artifact}}
	failure := appErrors.Clone(appErrors.ErrRetryableDelivery, "lms down")
	executor := &stubDeliverer{
		outcomes: []error{failure, failure, failure, failure, failure},
	}
	svc := newQueueServiceForTest(store, artifacts, executor, &stubNotifier{})

	_, err := svc.Enqueue(context.Background(), "a-1", models.SystemActor())
	require.NoError(t, err)

	result, err := svc.Drain(context.Background(), 10, models.SystemActor())
	require.NoError(t, err)
	require.Equal(t, 1, result.Dead)
	require.Equal(t, models.StatusFailed, artifact.Status)
	// MaxRetries of 3: the initial attempt plus three retries, then retired.
	require.Equal(t, 4, executor.calls)
	require.Len(t, store.retries, 3)
	require.Len(t, store.dead, 1)

	// A FAILED artifact can be queued again by an operator.
	_, err = svc.Enqueue(context.Background(), "a-1", models.SystemActor())
	require.NoError(t, err)
}

func TestQueueServiceDrainReleasesClaimWhenRecordingFails(t *testing.T) {
	store := newStubQueueStore()
	artifact := pendingArtifact("a-1")
	artifacts := &stubQueueArtifacts{artifacts: map[string]*models.Artifact{"a-1": artifact}}
	executor := &stubDeliverer{result: &DeliveryResult{ExternalSubmissionID: "sub-77"}}
	svc := newQueueServiceForTest(store, artifacts, executor, &stubNotifier{})

	entry, err := svc.Enqueue(context.Background(), "a-1", models.SystemActor())
	require.NoError(t, err)
	store.deliveredErr = fmt.Errorf("ledger write failed")

	result, err := svc.Drain(context.Background(), 10, models.SystemActor())
	require.NoError(t, err)
	require.Equal(t, 1, result.Requeued)
	require.Equal(t, 0, result.Delivered)

	// The entry is back in the queue, not stranded in_progress, so the next
	// pass re-delivers under the same idempotency key and records the outcome.
	require.Equal(t, []string{entry.ID}, store.released)
	require.Equal(t, models.QueueStatusQueued, store.entries[entry.ID].Status)

	store.deliveredErr = nil
	result, err = svc.Drain(context.Background(), 10, models.SystemActor())
	require.NoError(t, err)
	require.Equal(t, 1, result.Delivered)
	require.Equal(t, models.StatusSubmitted, artifact.Status)
}

func TestQueueServiceDrainReclaimsOrphanedClaims(t *testing.T) {
	store := newStubQueueStore()
	artifact := pendingArtifact("a-1")
	artifacts := &stubQueueArtifacts{artifacts: map[string]*models.Artifact{"a-1": artifact}}
	executor := &stubDeliverer{result: &DeliveryResult{ExternalSubmissionID: "sub-77"}}
	svc := newQueueServiceForTest(store, artifacts, executor, &stubNotifier{})

	entry, err := svc.Enqueue(context.Background(), "a-1", models.SystemActor())
	require.NoError(t, err)

	// Simulate a drain pass that died after claiming: the entry sits
	// in_progress with an old claim timestamp.
	store.entries[entry.ID].Status = models.QueueStatusInProgress
	store.stale[entry.ID] = true

	result, err := svc.Drain(context.Background(), 10, models.SystemActor())
	require.NoError(t, err)
	require.Equal(t, 1, store.reclaims)
	require.Equal(t, 1, result.Delivered)
	require.Equal(t, models.StatusSubmitted, artifact.Status)
}

func TestQueueServiceDrainSkipsUnclaimableEntries(t *testing.T) {
	store := newStubQueueStore()
	artifact := pendingArtifact("a-1")
	artifacts := &stubQueueArtifacts{artifacts: map[string]*models.Artifact{"a-1": artifact}}
	svc := newQueueServiceForTest(store, artifacts, &stubDeliverer{result: &DeliveryResult{ExternalSubmissionID: "s"}}, &stubNotifier{})

	_, err := svc.Enqueue(context.Background(), "a-1", models.SystemActor())
	require.NoError(t, err)
	store.claimRefusals = 1

	result, err := svc.Drain(context.Background(), 10, models.SystemActor())
	require.NoError(t, err)
	require.Equal(t, 0, result.Claimed)
}
