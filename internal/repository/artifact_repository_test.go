package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/examsync/exam-bridge-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func strPtr(s string) *string { return &s }

func intakeEntry(artifactID string) *models.LedgerEntry {
	return &models.LedgerEntry{
		Action:        models.ActionFileUploaded,
		Category:      models.CategoryUpload,
		ActorType:     models.ActorStaff,
		ActorID:       "staff-1",
		ActorUsername: "clerk",
		ArtifactID:    &artifactID,
		Description:   "uploaded scan",
	}
}

func TestArtifactRepositoryCreateFirstAttempt(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewArtifactRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO artifacts")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_ledger")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	artifact := &models.Artifact{
		RegisterNumber:   strPtr("21BCA042"),
		SubjectCode:      strPtr("CS301"),
		ExamRound:        models.RoundCIA1,
		AttemptNumber:    1,
		ContentRef:       "2026/08/26/abc.bin",
		ContentHash:      "deadbeef",
		OriginalFilename: "21BCA042_CS301.pdf",
		RawFilename:      "scan0001.pdf",
		SizeBytes:        1024,
		MimeType:         "application/pdf",
		UploadedBy:       "clerk",
	}
	err := repo.Create(context.Background(), artifact, []*models.LedgerEntry{intakeEntry("a-1")})
	require.NoError(t, err)
	require.NotEmpty(t, artifact.ID)
	require.Equal(t, models.StatusPendingReview, artifact.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactRepositoryCreateSecondAttemptConsumesGate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewArtifactRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET attempt_2_locked = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO artifacts")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_ledger")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	artifact := &models.Artifact{
		RegisterNumber: strPtr("21BCA042"),
		SubjectCode:    strPtr("CS301"),
		ExamRound:      models.RoundCIA1,
		AttemptNumber:  2,
		UploadedBy:     "clerk",
	}
	err := repo.Create(context.Background(), artifact, []*models.LedgerEntry{intakeEntry("a-2")})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactRepositoryCreateSecondAttemptLocked(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewArtifactRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET attempt_2_locked = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	artifact := &models.Artifact{
		RegisterNumber: strPtr("21BCA042"),
		SubjectCode:    strPtr("CS301"),
		ExamRound:      models.RoundCIA1,
		AttemptNumber:  2,
		UploadedBy:     "clerk",
	}
	err := repo.Create(context.Background(), artifact, nil)
	require.ErrorIs(t, err, ErrSecondAttemptLocked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactRepositoryCreateDuplicateSlot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewArtifactRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO artifacts")).
		WillReturnError(&pq.Error{Code: pgUniqueViolation, Constraint: constraintLiveSlot})
	mock.ExpectRollback()

	artifact := &models.Artifact{
		RegisterNumber: strPtr("21BCA042"),
		SubjectCode:    strPtr("CS301"),
		ExamRound:      models.RoundCIA1,
		AttemptNumber:  1,
		UploadedBy:     "clerk",
	}
	err := repo.Create(context.Background(), artifact, nil)
	require.ErrorIs(t, err, ErrDuplicateSlot)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactRepositoryCreateHealsStaleTransactionHold(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewArtifactRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE artifacts SET register_number = NULL")).
		WithArgs("txn-9", models.StatusDeleted, models.StatusSuperseded).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("old-dead"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_ledger")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO artifacts")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	artifact := &models.Artifact{
		RegisterNumber: strPtr("21BCA042"),
		SubjectCode:    strPtr("CS301"),
		ExamRound:      models.RoundCIA1,
		AttemptNumber:  1,
		TransactionID:  strPtr("txn-9"),
		UploadedBy:     "clerk",
	}
	err := repo.Create(context.Background(), artifact, nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactRepositoryTransition(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewArtifactRepository(db)
	artifact := &models.Artifact{ID: "a-1", Status: models.StatusPendingReview}
	artifact.AppendLog("admin_delete", nil)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET status = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_ledger")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Transition(context.Background(), artifact,
		[]models.WorkflowStatus{models.StatusPendingReview, models.StatusFailed},
		models.StatusDeleted, intakeEntry("a-1"))
	require.NoError(t, err)
	require.Equal(t, models.StatusDeleted, artifact.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactRepositoryTransitionStale(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewArtifactRepository(db)
	artifact := &models.Artifact{ID: "a-1", Status: models.StatusPendingReview}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET status = $1")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Transition(context.Background(), artifact,
		[]models.WorkflowStatus{models.StatusPendingReview},
		models.StatusQueued, nil)
	require.ErrorIs(t, err, ErrStaleState)
	require.Equal(t, models.StatusPendingReview, artifact.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactRepositoryReplaceMigratesReports(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewArtifactRepository(db)
	old := &models.Artifact{ID: "a-old", Status: models.StatusPendingReview}
	replacement := &models.Artifact{
		ID:             "a-new",
		RegisterNumber: strPtr("21BCA043"),
		SubjectCode:    strPtr("CS301"),
		ExamRound:      models.RoundCIA1,
		AttemptNumber:  1,
		UploadedBy:     "admin",
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET status = $1")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO artifacts")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audit_ledger SET artifact_id = $1")).
		WithArgs("a-new", "a-old", models.ActionReportIssue, models.ActionReportResolved, models.ActionReportDeleted).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_ledger")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Replace(context.Background(), ReplaceParams{
		Old:            old,
		New:            replacement,
		MigrateReports: true,
		Entries:        []*models.LedgerEntry{intakeEntry("a-new")},
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusSuperseded, old.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactRepositoryClearTransactionID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewArtifactRepository(db)
	artifact := &models.Artifact{ID: "a-1", TransactionID: strPtr("txn-1")}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET transaction_id = NULL")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_ledger")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.ClearTransactionID(context.Background(), artifact, intakeEntry("a-1"))
	require.NoError(t, err)
	require.Nil(t, artifact.TransactionID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactRepositoryUnlockSecondAttempt(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewArtifactRepository(db)
	artifact := &models.Artifact{ID: "a-1", Attempt2Locked: true}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE artifacts SET attempt_2_locked = FALSE")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_ledger")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.UnlockSecondAttempt(context.Background(), artifact, intakeEntry("a-1"))
	require.NoError(t, err)
	require.False(t, artifact.Attempt2Locked)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestArtifactRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewArtifactRepository(db)
	rows := sqlmock.NewRows([]string{
		"id", "seq", "register_number", "subject_code", "exam_round", "attempt_number", "transaction_id",
		"content_ref", "content_hash", "original_filename", "raw_filename", "size_bytes", "mime_type",
		"status", "attempt_2_locked", "external_user_id", "external_assignment_id", "external_submission_id",
		"retry_count", "last_error", "transaction_log", "uploaded_by", "uploaded_at", "submitted_at",
	}).AddRow(
		"a-1", 7, "21BCA042", "CS301", "CIA1", 1, nil,
		"2026/08/26/abc.bin", "deadbeef", "21BCA042_CS301.pdf", "scan0001.pdf", 1024, "application/pdf",
		"PENDING_REVIEW", false, nil, nil, nil,
		0, nil, "[]", "clerk", time.Now(), nil,
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, seq, register_number")).
		WithArgs("a-1").
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), "a-1")
	require.NoError(t, err)
	require.Equal(t, "21BCA042", found.Register())
	require.Equal(t, models.StatusPendingReview, found.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
