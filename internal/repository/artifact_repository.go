package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/examsync/exam-bridge-api/internal/models"
)

const artifactColumns = `id, seq, register_number, subject_code, exam_round, attempt_number, transaction_id,
       content_ref, content_hash, original_filename, raw_filename, size_bytes, mime_type,
       status, attempt_2_locked, external_user_id, external_assignment_id, external_submission_id,
       retry_count, last_error, transaction_log, uploaded_by, uploaded_at, submitted_at`

const artifactInsertQuery = `INSERT INTO artifacts
	(id, register_number, subject_code, exam_round, attempt_number, transaction_id,
	 content_ref, content_hash, original_filename, raw_filename, size_bytes, mime_type,
	 status, attempt_2_locked, retry_count, last_error, transaction_log, uploaded_by, uploaded_at)
	VALUES (:id, :register_number, :subject_code, :exam_round, :attempt_number, :transaction_id,
	 :content_ref, :content_hash, :original_filename, :raw_filename, :size_bytes, :mime_type,
	 :status, :attempt_2_locked, :retry_count, :last_error, :transaction_log, :uploaded_by, :uploaded_at)`

// Partial unique index names; creation maps duplicate-key errors onto
// sentinels by constraint.
const (
	constraintLiveSlot = "ux_artifacts_live_slot"
	constraintLiveTxid = "ux_artifacts_live_txid"
)

// ArtifactRepository persists artifact rows. State-changing operations pair
// the row mutation with its ledger entries in one transaction.
type ArtifactRepository struct {
	db *sqlx.DB
}

// NewArtifactRepository constructs the repository.
func NewArtifactRepository(db *sqlx.DB) *ArtifactRepository {
	return &ArtifactRepository{db: db}
}

// Create inserts a new artifact together with its intake ledger entries.
//
// Inside the same transaction it also self-heals stale identifier holds: a
// DELETED or SUPERSEDED row still carrying the incoming transaction id gets
// its identifying columns cleared (with a ledger record), so history never
// blocks a legitimate re-upload. A second attempt additionally consumes the
// attempt-2 gate on the live attempt-1 row.
func (r *ArtifactRepository) Create(ctx context.Context, artifact *models.Artifact, entries []*models.LedgerEntry) error {
	if artifact.ID == "" {
		artifact.ID = uuid.NewString()
	}
	if artifact.Status == "" {
		artifact.Status = models.StatusPendingReview
	}
	if artifact.UploadedAt.IsZero() {
		artifact.UploadedAt = time.Now().UTC()
	}
	if artifact.TransactionLog == nil {
		artifact.TransactionLog = models.TransactionLog{}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create artifact: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if artifact.TransactionID != nil {
		if err := healStaleTransactionHolds(ctx, tx, *artifact.TransactionID, artifact.UploadedBy); err != nil {
			return err
		}
	}

	if artifact.AttemptNumber == models.MaxAttemptNumber {
		if err := consumeSecondAttemptGate(ctx, tx, artifact); err != nil {
			return err
		}
	}

	if _, err := tx.NamedExecContext(ctx, artifactInsertQuery, artifact); err != nil {
		switch constraint, ok := uniqueViolation(err); {
		case ok && constraint == constraintLiveSlot:
			return ErrDuplicateSlot
		case ok && constraint == constraintLiveTxid:
			return ErrDuplicateTransaction
		default:
			return fmt.Errorf("insert artifact: %w", err)
		}
	}

	for _, entry := range entries {
		if err := insertLedgerTx(ctx, tx, entry); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create artifact: %w", err)
	}
	return nil
}

// healStaleTransactionHolds clears identifiers on dead rows that still hold
// the incoming transaction id, recording each clearance in the ledger.
func healStaleTransactionHolds(ctx context.Context, tx *sqlx.Tx, transactionID, actorUsername string) error {
	rows, err := tx.QueryContext(ctx,
		`UPDATE artifacts SET register_number = NULL, subject_code = NULL, transaction_id = NULL
		 WHERE transaction_id = $1 AND status IN ($2, $3) RETURNING id`,
		transactionID, models.StatusDeleted, models.StatusSuperseded)
	if err != nil {
		return fmt.Errorf("clear stale transaction holds: %w", err)
	}
	var healed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan healed artifact id: %w", err)
		}
		healed = append(healed, id)
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close healed rows: %w", err)
	}
	for i := range healed {
		id := healed[i]
		entry := &models.LedgerEntry{
			Action:        models.ActionClearedIdentifier,
			Category:      models.CategoryAdmin,
			ActorType:     models.ActorSystem,
			ActorID:       "system",
			ActorUsername: actorUsername,
			ArtifactID:    &id,
			Description:   fmt.Sprintf("cleared identifiers held by dead artifact for transaction %s", transactionID),
		}
		if err := insertLedgerTx(ctx, tx, entry); err != nil {
			return err
		}
	}
	return nil
}

// consumeSecondAttemptGate flips attempt_2_locked on the live attempt-1 row.
// Matching zero rows means there is no live first attempt or the gate was
// already consumed.
func consumeSecondAttemptGate(ctx context.Context, tx *sqlx.Tx, artifact *models.Artifact) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE artifacts SET attempt_2_locked = TRUE
		 WHERE register_number = $1 AND subject_code = $2 AND exam_round = $3
		   AND attempt_number = 1 AND status NOT IN ($4, $5) AND attempt_2_locked = FALSE`,
		artifact.Register(), artifact.Subject(), artifact.ExamRound,
		models.StatusDeleted, models.StatusSuperseded)
	if err != nil {
		return fmt.Errorf("consume second attempt gate: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check second attempt gate rows: %w", err)
	}
	if rowsAffected == 0 {
		return ErrSecondAttemptLocked
	}
	return nil
}

// GetByID fetches an artifact by identifier.
func (r *ArtifactRepository) GetByID(ctx context.Context, id string) (*models.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts WHERE id = $1`
	var artifact models.Artifact
	if err := r.db.GetContext(ctx, &artifact, query, id); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// FindLiveByTuple returns live artifacts occupying the (register, subject,
// round) slot ordered by attempt number.
func (r *ArtifactRepository) FindLiveByTuple(ctx context.Context, registerNumber, subjectCode, examRound string) ([]models.Artifact, error) {
	query := `SELECT ` + artifactColumns + ` FROM artifacts
	 WHERE register_number = $1 AND subject_code = $2 AND exam_round = $3 AND status NOT IN ($4, $5)
	 ORDER BY attempt_number ASC`
	var artifacts []models.Artifact
	if err := r.db.SelectContext(ctx, &artifacts, query, registerNumber, subjectCode, examRound,
		models.StatusDeleted, models.StatusSuperseded); err != nil {
		return nil, fmt.Errorf("find live artifacts: %w", err)
	}
	return artifacts, nil
}

func artifactFilterConditions(filter models.ArtifactFilter, args *[]interface{}) []string {
	conditions := make([]string, 0, 5)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			*args = append(*args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(*args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	} else if !filter.IncludeDeleted {
		*args = append(*args, models.StatusDeleted, models.StatusSuperseded)
		conditions = append(conditions, fmt.Sprintf("status NOT IN ($%d, $%d)", len(*args)-1, len(*args)))
	}
	if filter.RegisterNumber != "" {
		*args = append(*args, filter.RegisterNumber)
		conditions = append(conditions, fmt.Sprintf("register_number = $%d", len(*args)))
	}
	if filter.SubjectCode != "" {
		*args = append(*args, filter.SubjectCode)
		conditions = append(conditions, fmt.Sprintf("subject_code = $%d", len(*args)))
	}
	if filter.ExamRound != "" {
		*args = append(*args, filter.ExamRound)
		conditions = append(conditions, fmt.Sprintf("exam_round = $%d", len(*args)))
	}
	if filter.UploadedBy != "" {
		*args = append(*args, filter.UploadedBy)
		conditions = append(conditions, fmt.Sprintf("uploaded_by = $%d", len(*args)))
	}
	return conditions
}

// List returns artifacts matching the filter, newest first.
func (r *ArtifactRepository) List(ctx context.Context, filter models.ArtifactFilter) ([]models.Artifact, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 8)
	builder.WriteString(`SELECT ` + artifactColumns + ` FROM artifacts`)

	if conditions := artifactFilterConditions(filter, &args); len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY seq DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var artifacts []models.Artifact
	if err := r.db.SelectContext(ctx, &artifacts, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return artifacts, nil
}

// Count returns the number of artifacts matching the filter.
func (r *ArtifactRepository) Count(ctx context.Context, filter models.ArtifactFilter) (int, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 8)
	builder.WriteString(`SELECT COUNT(*) FROM artifacts`)
	if conditions := artifactFilterConditions(filter, &args); len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	var total int
	if err := r.db.GetContext(ctx, &total, builder.String(), args...); err != nil {
		return 0, fmt.Errorf("count artifacts: %w", err)
	}
	return total, nil
}

// Stats aggregates workflow counts for the dashboard.
func (r *ArtifactRepository) Stats(ctx context.Context) (*models.ArtifactStats, error) {
	stats := &models.ArtifactStats{
		ByStatus: make(map[string]int),
		ByRound:  make(map[string]int),
	}

	type bucket struct {
		Key   string `db:"key"`
		Total int    `db:"total"`
	}

	var byStatus []bucket
	if err := r.db.SelectContext(ctx, &byStatus,
		`SELECT status AS key, COUNT(*) AS total FROM artifacts GROUP BY status`); err != nil {
		return nil, fmt.Errorf("count artifacts by status: %w", err)
	}
	for _, b := range byStatus {
		stats.ByStatus[b.Key] = b.Total
		stats.Total += b.Total
	}

	var byRound []bucket
	if err := r.db.SelectContext(ctx, &byRound,
		`SELECT exam_round AS key, COUNT(*) AS total FROM artifacts WHERE status NOT IN ($1, $2) GROUP BY exam_round`,
		models.StatusDeleted, models.StatusSuperseded); err != nil {
		return nil, fmt.Errorf("count artifacts by round: %w", err)
	}
	for _, b := range byRound {
		stats.ByRound[b.Key] = b.Total
	}

	if err := r.db.GetContext(ctx, &stats.LockedAttempts,
		`SELECT COUNT(*) FROM artifacts WHERE attempt_2_locked = TRUE`); err != nil {
		return nil, fmt.Errorf("count locked attempts: %w", err)
	}
	return stats, nil
}

// Transition moves the artifact between workflow states with a compare-and-set
// guard, persists its updated transaction log, and appends the ledger entry in
// the same transaction. A CAS miss surfaces as ErrStaleState.
func (r *ArtifactRepository) Transition(ctx context.Context, artifact *models.Artifact, from []models.WorkflowStatus, to models.WorkflowStatus, entry *models.LedgerEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := transitionTx(ctx, tx, artifact, from, to); err != nil {
		return err
	}
	if entry != nil {
		if err := insertLedgerTx(ctx, tx, entry); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transition: %w", err)
	}
	artifact.Status = to
	return nil
}

func transitionTx(ctx context.Context, tx *sqlx.Tx, artifact *models.Artifact, from []models.WorkflowStatus, to models.WorkflowStatus) error {
	args := []interface{}{to, artifact.TransactionLog, artifact.ID}
	placeholders := make([]string, 0, len(from))
	for _, status := range from {
		args = append(args, status)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}
	query := fmt.Sprintf(
		`UPDATE artifacts SET status = $1, transaction_log = $2 WHERE id = $3 AND status IN (%s)`,
		strings.Join(placeholders, ","))
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition artifact: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check transition rows: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStaleState
	}
	return nil
}

// ReplaceParams describes a copy-on-write metadata edit. The old artifact is
// superseded, the replacement inserted, and report-lifecycle ledger rows are
// rehomed so open reports follow the content they complain about.
type ReplaceParams struct {
	Old            *models.Artifact
	New            *models.Artifact
	MigrateReports bool
	Entries        []*models.LedgerEntry
}

// Replace atomically supersedes one artifact with another.
func (r *ArtifactRepository) Replace(ctx context.Context, params ReplaceParams) error {
	if params.New.ID == "" {
		params.New.ID = uuid.NewString()
	}
	if params.New.UploadedAt.IsZero() {
		params.New.UploadedAt = time.Now().UTC()
	}
	if params.New.TransactionLog == nil {
		params.New.TransactionLog = models.TransactionLog{}
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// Supersede first so the replacement does not trip the live-slot index.
	if err := transitionTx(ctx, tx, params.Old,
		[]models.WorkflowStatus{models.StatusPendingReview, models.StatusFailed},
		models.StatusSuperseded); err != nil {
		return err
	}

	if _, err := tx.NamedExecContext(ctx, artifactInsertQuery, params.New); err != nil {
		switch constraint, ok := uniqueViolation(err); {
		case ok && constraint == constraintLiveSlot:
			return ErrDuplicateSlot
		case ok && constraint == constraintLiveTxid:
			return ErrDuplicateTransaction
		default:
			return fmt.Errorf("insert replacement artifact: %w", err)
		}
	}

	if params.MigrateReports {
		if _, err := tx.ExecContext(ctx,
			`UPDATE audit_ledger SET artifact_id = $1
			 WHERE artifact_id = $2 AND action IN ($3, $4, $5)`,
			params.New.ID, params.Old.ID,
			models.ActionReportIssue, models.ActionReportResolved, models.ActionReportDeleted); err != nil {
			return fmt.Errorf("migrate report entries: %w", err)
		}
	}

	for _, entry := range params.Entries {
		if err := insertLedgerTx(ctx, tx, entry); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	params.Old.Status = models.StatusSuperseded
	return nil
}

// ClearTransactionID detaches the student transaction id from a live artifact
// so the student can submit through the LMS again.
func (r *ArtifactRepository) ClearTransactionID(ctx context.Context, artifact *models.Artifact, entry *models.LedgerEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear transaction id: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx,
		`UPDATE artifacts SET transaction_id = NULL, transaction_log = $1 WHERE id = $2 AND transaction_id IS NOT NULL`,
		artifact.TransactionLog, artifact.ID)
	if err != nil {
		return fmt.Errorf("clear transaction id: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check clear transaction rows: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStaleState
	}
	if err := insertLedgerTx(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit clear transaction id: %w", err)
	}
	artifact.TransactionID = nil
	return nil
}

// UnlockSecondAttempt reopens the attempt-2 gate on an artifact.
func (r *ArtifactRepository) UnlockSecondAttempt(ctx context.Context, artifact *models.Artifact, entry *models.LedgerEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unlock attempt: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx,
		`UPDATE artifacts SET attempt_2_locked = FALSE, transaction_log = $1 WHERE id = $2 AND attempt_2_locked = TRUE`,
		artifact.TransactionLog, artifact.ID)
	if err != nil {
		return fmt.Errorf("unlock second attempt: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check unlock rows: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStaleState
	}
	if err := insertLedgerTx(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unlock attempt: %w", err)
	}
	artifact.Attempt2Locked = false
	return nil
}

// RecordStudentSubmit attaches the student transaction id at the moment the
// student confirms the paper through the LMS flow.
func (r *ArtifactRepository) RecordStudentSubmit(ctx context.Context, artifact *models.Artifact, transactionID string, entry *models.LedgerEntry) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record student submit: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	result, err := tx.ExecContext(ctx,
		`UPDATE artifacts SET transaction_id = $1, transaction_log = $2 WHERE id = $3 AND transaction_id IS NULL AND status NOT IN ($4, $5)`,
		transactionID, artifact.TransactionLog, artifact.ID,
		models.StatusDeleted, models.StatusSuperseded)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == constraintLiveTxid {
			return ErrDuplicateTransaction
		}
		return fmt.Errorf("record student submit: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check student submit rows: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStaleState
	}
	if err := insertLedgerTx(ctx, tx, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record student submit: %w", err)
	}
	artifact.TransactionID = &transactionID
	return nil
}
