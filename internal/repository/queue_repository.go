package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/examsync/exam-bridge-api/internal/models"
)

const queueColumns = `id, artifact_id, status, retry_count, queued_at, claimed_at, last_error`

// QueueRepository persists the submission queue. Every outcome mutation also
// moves the owning artifact and appends the audit entry in one transaction.
type QueueRepository struct {
	db *sqlx.DB
}

// NewQueueRepository constructs the repository.
func NewQueueRepository(db *sqlx.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Enqueue inserts a queue entry and moves the artifact to QUEUED atomically.
// The insert is guarded so at most one queued-or-in-progress entry exists per
// artifact; a blocked insert surfaces as ErrActiveQueueEntry.
func (r *QueueRepository) Enqueue(ctx context.Context, artifact *models.Artifact, from []models.WorkflowStatus, entry *models.LedgerEntry) (*models.QueueEntry, error) {
	queueEntry := &models.QueueEntry{
		ID:         uuid.NewString(),
		ArtifactID: artifact.ID,
		Status:     models.QueueStatusQueued,
		QueuedAt:   time.Now().UTC(),
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enqueue: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx,
		`INSERT INTO submission_queue (id, artifact_id, status, retry_count, queued_at)
		 SELECT $1, $2, $3, 0, $4
		 WHERE NOT EXISTS (
		   SELECT 1 FROM submission_queue WHERE artifact_id = $2 AND status IN ($5, $6)
		 )`,
		queueEntry.ID, queueEntry.ArtifactID, queueEntry.Status, queueEntry.QueuedAt,
		models.QueueStatusQueued, models.QueueStatusInProgress)
	if err != nil {
		return nil, fmt.Errorf("insert queue entry: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("check enqueue rows: %w", err)
	}
	if rowsAffected == 0 {
		return nil, ErrActiveQueueEntry
	}

	if err := transitionTx(ctx, tx, artifact, from, models.StatusQueued); err != nil {
		return nil, err
	}
	if err := insertLedgerTx(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit enqueue: %w", err)
	}
	artifact.Status = models.StatusQueued
	return queueEntry, nil
}

// ListQueued returns up to limit queued entries, oldest first.
func (r *QueueRepository) ListQueued(ctx context.Context, limit int) ([]models.QueueEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	query := `SELECT ` + queueColumns + ` FROM submission_queue WHERE status = $1 ORDER BY queued_at ASC LIMIT $2`
	var entries []models.QueueEntry
	if err := r.db.SelectContext(ctx, &entries, query, models.QueueStatusQueued, limit); err != nil {
		return nil, fmt.Errorf("list queued entries: %w", err)
	}
	return entries, nil
}

// Claim moves a queued entry to in_progress, stamping the claim time so a
// crashed drain pass can be detected later. A false return means another
// drain pass claimed it first.
func (r *QueueRepository) Claim(ctx context.Context, entryID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE submission_queue SET status = $1, claimed_at = $2 WHERE id = $3 AND status = $4`,
		models.QueueStatusInProgress, time.Now().UTC(), entryID, models.QueueStatusQueued)
	if err != nil {
		return false, fmt.Errorf("claim queue entry: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check claim rows: %w", err)
	}
	return rowsAffected > 0, nil
}

// ReleaseClaim returns a claimed entry to the queue without touching the
// artifact. Used when delivery succeeded but recording it locally did not:
// the next pass re-delivers under the same idempotency key and records again.
func (r *QueueRepository) ReleaseClaim(ctx context.Context, entryID, note string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE submission_queue SET status = $1, claimed_at = NULL, last_error = $2 WHERE id = $3 AND status = $4`,
		models.QueueStatusQueued, note, entryID, models.QueueStatusInProgress)
	if err != nil {
		return fmt.Errorf("release queue claim: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check release rows: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// ReclaimStale requeues in_progress entries whose claim is older than the
// cutoff. Those are orphans from a drain pass that died mid-delivery.
func (r *QueueRepository) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := r.db.ExecContext(ctx,
		`UPDATE submission_queue SET status = $1, claimed_at = NULL
		 WHERE status = $2 AND claimed_at IS NOT NULL AND claimed_at < $3`,
		models.QueueStatusQueued, models.QueueStatusInProgress, cutoff)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale entries: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check reclaim rows: %w", err)
	}
	return int(rowsAffected), nil
}

// AbortForReset retires any open queue entry for the artifact and returns the
// artifact to PENDING_REVIEW in one transaction, mirroring how Enqueue couples
// the two tables. Artifacts with no open entry (FAILED ones) just transition.
func (r *QueueRepository) AbortForReset(ctx context.Context, artifact *models.Artifact, from []models.WorkflowStatus, note string, entry *models.LedgerEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`UPDATE submission_queue SET status = $1, claimed_at = NULL, last_error = $2
		 WHERE artifact_id = $3 AND status IN ($4, $5)`,
		models.QueueStatusDead, note, artifact.ID,
		models.QueueStatusQueued, models.QueueStatusInProgress); err != nil {
		return fmt.Errorf("retire queue entry: %w", err)
	}

	if err := transitionTx(ctx, tx, artifact, from, models.StatusPendingReview); err != nil {
		return err
	}
	if err := insertLedgerTx(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	artifact.Status = models.StatusPendingReview
	return nil
}

// DeliveredParams records a successful hand-off to the LMS.
type DeliveredParams struct {
	EntryID  string
	Artifact *models.Artifact
	Entries  []*models.LedgerEntry
}

// MarkDelivered finalises a claimed entry: the queue row becomes delivered and
// the artifact becomes SUBMITTED with the external identifiers the LMS
// returned.
func (r *QueueRepository) MarkDelivered(ctx context.Context, params DeliveredParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark delivered: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := casQueueStatus(ctx, tx, params.EntryID, models.QueueStatusInProgress, models.QueueStatusDelivered, nil); err != nil {
		return err
	}

	submittedAt := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`UPDATE artifacts SET status = $1, submitted_at = $2, external_user_id = $3,
		        external_assignment_id = $4, external_submission_id = $5,
		        last_error = NULL, transaction_log = $6
		 WHERE id = $7 AND status = $8`,
		models.StatusSubmitted, submittedAt,
		params.Artifact.ExternalUserID, params.Artifact.ExternalAssignmentID, params.Artifact.ExternalSubmissionID,
		params.Artifact.TransactionLog, params.Artifact.ID, models.StatusQueued)
	if err != nil {
		return fmt.Errorf("mark artifact submitted: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check submitted rows: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStaleState
	}

	for _, entry := range params.Entries {
		if err := insertLedgerTx(ctx, tx, entry); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark delivered: %w", err)
	}
	params.Artifact.Status = models.StatusSubmitted
	params.Artifact.SubmittedAt = &submittedAt
	return nil
}

// RetryParams re-queues a claimed entry after a retryable delivery failure.
type RetryParams struct {
	EntryID    string
	Artifact   *models.Artifact
	RetryCount int
	LastError  string
	Entry      *models.LedgerEntry
}

// MarkRetry returns a claimed entry to the queue, bumping counters on both the
// entry and the artifact. The artifact stays QUEUED.
func (r *QueueRepository) MarkRetry(ctx context.Context, params RetryParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark retry: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := casQueueStatus(ctx, tx, params.EntryID, models.QueueStatusInProgress, models.QueueStatusQueued, &params); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE artifacts SET retry_count = $1, last_error = $2, transaction_log = $3 WHERE id = $4`,
		params.RetryCount, params.LastError, params.Artifact.TransactionLog, params.Artifact.ID); err != nil {
		return fmt.Errorf("record artifact retry: %w", err)
	}
	if err := insertLedgerTx(ctx, tx, params.Entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark retry: %w", err)
	}
	params.Artifact.RetryCount = params.RetryCount
	params.Artifact.LastError = &params.LastError
	return nil
}

// DeadParams retires a claimed entry after a terminal failure or exhausted
// retries.
type DeadParams struct {
	EntryID    string
	Artifact   *models.Artifact
	RetryCount int
	LastError  string
	Entry      *models.LedgerEntry
}

// MarkDead retires a claimed entry and fails the artifact, which keeps it
// eligible for a later manual re-enqueue.
func (r *QueueRepository) MarkDead(ctx context.Context, params DeadParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark dead: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	retry := RetryParams{RetryCount: params.RetryCount, LastError: params.LastError}
	if err := casQueueStatus(ctx, tx, params.EntryID, models.QueueStatusInProgress, models.QueueStatusDead, &retry); err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE artifacts SET status = $1, retry_count = $2, last_error = $3, transaction_log = $4
		 WHERE id = $5 AND status = $6`,
		models.StatusFailed, params.RetryCount, params.LastError,
		params.Artifact.TransactionLog, params.Artifact.ID, models.StatusQueued)
	if err != nil {
		return fmt.Errorf("mark artifact failed: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check failed rows: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStaleState
	}
	if err := insertLedgerTx(ctx, tx, params.Entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark dead: %w", err)
	}
	params.Artifact.Status = models.StatusFailed
	params.Artifact.RetryCount = params.RetryCount
	params.Artifact.LastError = &params.LastError
	return nil
}

// casQueueStatus flips a queue entry status with a compare-and-set guard,
// optionally recording retry bookkeeping.
func casQueueStatus(ctx context.Context, tx *sqlx.Tx, entryID string, from, to models.QueueStatus, retry *RetryParams) error {
	var (
		result sql.Result
		err    error
	)
	if retry != nil {
		result, err = tx.ExecContext(ctx,
			`UPDATE submission_queue SET status = $1, retry_count = $2, last_error = $3 WHERE id = $4 AND status = $5`,
			to, retry.RetryCount, retry.LastError, entryID, from)
	} else {
		result, err = tx.ExecContext(ctx,
			`UPDATE submission_queue SET status = $1 WHERE id = $2 AND status = $3`,
			to, entryID, from)
	}
	if err != nil {
		return fmt.Errorf("update queue entry status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check queue status rows: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// GetActiveByArtifact returns the in-flight entry for an artifact, or nil.
func (r *QueueRepository) GetActiveByArtifact(ctx context.Context, artifactID string) (*models.QueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM submission_queue
	 WHERE artifact_id = $1 AND status IN ($2, $3) ORDER BY queued_at DESC LIMIT 1`
	var entry models.QueueEntry
	err := r.db.GetContext(ctx, &entry, query, artifactID, models.QueueStatusQueued, models.QueueStatusInProgress)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active queue entry: %w", err)
	}
	return &entry, nil
}

// Snapshot summarises queue health with the most recent entries.
func (r *QueueRepository) Snapshot(ctx context.Context, limit int) (*models.QueueSnapshot, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	snapshot := &models.QueueSnapshot{ByStatus: make(map[string]int)}

	type bucket struct {
		Key   string `db:"key"`
		Total int    `db:"total"`
	}
	var byStatus []bucket
	if err := r.db.SelectContext(ctx, &byStatus,
		`SELECT status AS key, COUNT(*) AS total FROM submission_queue GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count queue entries: %w", err)
	}
	for _, b := range byStatus {
		snapshot.ByStatus[b.Key] = b.Total
		snapshot.Total += b.Total
	}

	query := `SELECT ` + queueColumns + ` FROM submission_queue ORDER BY queued_at DESC LIMIT $1`
	if err := r.db.SelectContext(ctx, &snapshot.Entries, query, limit); err != nil {
		return nil, fmt.Errorf("list recent queue entries: %w", err)
	}
	return snapshot, nil
}
