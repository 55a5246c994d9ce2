package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/examsync/exam-bridge-api/internal/models"
)

func TestQueueRepositoryEnqueue(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	artifact := &models.Artifact{ID: "a-1", Status: models.StatusPendingReview}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submission_queue")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET status = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_ledger")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry, err := repo.Enqueue(context.Background(), artifact,
		[]models.WorkflowStatus{models.StatusPendingReview, models.StatusFailed},
		intakeEntry("a-1"))
	require.NoError(t, err)
	require.Equal(t, models.QueueStatusQueued, entry.Status)
	require.Equal(t, models.StatusQueued, artifact.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryEnqueueBlockedByActiveEntry(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	artifact := &models.Artifact{ID: "a-1", Status: models.StatusPendingReview}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO submission_queue")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.Enqueue(context.Background(), artifact,
		[]models.WorkflowStatus{models.StatusPendingReview}, intakeEntry("a-1"))
	require.ErrorIs(t, err, ErrActiveQueueEntry)
	require.Equal(t, models.StatusPendingReview, artifact.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryClaim(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submission_queue SET status = $1, claimed_at = $2")).
		WithArgs(models.QueueStatusInProgress, sqlmock.AnyArg(), "q-1", models.QueueStatusQueued).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := repo.Claim(context.Background(), "q-1")
	require.NoError(t, err)
	require.True(t, claimed)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE submission_queue SET status = $1, claimed_at = $2")).
		WithArgs(models.QueueStatusInProgress, sqlmock.AnyArg(), "q-1", models.QueueStatusQueued).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err = repo.Claim(context.Background(), "q-1")
	require.NoError(t, err)
	require.False(t, claimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryMarkDelivered(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	artifact := &models.Artifact{
		ID:                   "a-1",
		Status:               models.StatusQueued,
		ExternalUserID:       strPtr("901"),
		ExternalAssignmentID: strPtr("3005"),
		ExternalSubmissionID: strPtr("sub-77"),
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submission_queue SET status = $1 WHERE id = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET status = $1, submitted_at = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_ledger")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.MarkDelivered(context.Background(), DeliveredParams{
		EntryID:  "q-1",
		Artifact: artifact,
		Entries:  []*models.LedgerEntry{intakeEntry("a-1")},
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusSubmitted, artifact.Status)
	require.NotNil(t, artifact.SubmittedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryMarkRetry(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	artifact := &models.Artifact{ID: "a-1", Status: models.StatusQueued}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submission_queue SET status = $1, retry_count = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET retry_count = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_ledger")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.MarkRetry(context.Background(), RetryParams{
		EntryID:    "q-1",
		Artifact:   artifact,
		RetryCount: 2,
		LastError:  "lms unavailable",
		Entry:      intakeEntry("a-1"),
	})
	require.NoError(t, err)
	require.Equal(t, 2, artifact.RetryCount)
	require.Equal(t, models.StatusQueued, artifact.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryMarkDead(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	artifact := &models.Artifact{ID: "a-1", Status: models.StatusQueued}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submission_queue SET status = $1, retry_count = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET status = $1, retry_count = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_ledger")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.MarkDead(context.Background(), DeadParams{
		EntryID:    "q-1",
		Artifact:   artifact,
		RetryCount: 3,
		LastError:  "assignment not found",
		Entry:      intakeEntry("a-1"),
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusFailed, artifact.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryReleaseClaim(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submission_queue SET status = $1, claimed_at = NULL, last_error = $2")).
		WithArgs(models.QueueStatusQueued, "record pending", "q-1", models.QueueStatusInProgress).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ReleaseClaim(context.Background(), "q-1", "record pending"))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE submission_queue SET status = $1, claimed_at = NULL, last_error = $2")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ReleaseClaim(context.Background(), "q-1", "record pending")
	require.ErrorIs(t, err, ErrStaleState)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryReclaimStale(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submission_queue SET status = $1, claimed_at = NULL")).
		WithArgs(models.QueueStatusQueued, models.QueueStatusInProgress, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	reclaimed, err := repo.ReclaimStale(context.Background(), 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, reclaimed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryAbortForReset(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	artifact := &models.Artifact{ID: "a-1", Status: models.StatusQueued}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE submission_queue SET status = $1, claimed_at = NULL, last_error = $2")).
		WithArgs(models.QueueStatusDead, "delivery aborted: artifact reset by clerk", "a-1",
			models.QueueStatusQueued, models.QueueStatusInProgress).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET status = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_ledger")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.AbortForReset(context.Background(), artifact,
		[]models.WorkflowStatus{models.StatusQueued, models.StatusFailed},
		"delivery aborted: artifact reset by clerk", intakeEntry("a-1"))
	require.NoError(t, err)
	require.Equal(t, models.StatusPendingReview, artifact.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryListQueuedFIFO(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	rows := sqlmock.NewRows([]string{"id", "artifact_id", "status", "retry_count", "queued_at", "claimed_at", "last_error"}).
		AddRow("q-1", "a-1", "queued", 0, time.Now().Add(-time.Hour), nil, nil).
		AddRow("q-2", "a-2", "queued", 1, time.Now(), nil, "timeout")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, artifact_id, status")).
		WithArgs(models.QueueStatusQueued, 50).
		WillReturnRows(rows)

	entries, err := repo.ListQueued(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "q-1", entries[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueRepositoryGetActiveByArtifactMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewQueueRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, artifact_id, status")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "artifact_id", "status", "retry_count", "queued_at", "claimed_at", "last_error"}))

	entry, err := repo.GetActiveByArtifact(context.Background(), "a-1")
	require.NoError(t, err)
	require.Nil(t, entry)
	require.NoError(t, mock.ExpectationsWereMet())
}
