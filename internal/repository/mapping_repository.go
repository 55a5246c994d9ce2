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

const subjectMappingColumns = `id, subject_code, exam_round, subject_name, course_id, assignment_id,
       assignment_name, is_active, created_at, last_verified_at`

const studentMappingColumns = `id, username, register_number, created_at, updated_at`

// MappingRepository persists subject→assignment and username→register
// mappings.
type MappingRepository struct {
	db *sqlx.DB
}

// NewMappingRepository constructs the repository.
func NewMappingRepository(db *sqlx.DB) *MappingRepository {
	return &MappingRepository{db: db}
}

// UpsertSubject creates or refreshes the mapping for a (subject, round) pair.
func (r *MappingRepository) UpsertSubject(ctx context.Context, mapping *models.SubjectMapping) error {
	if mapping.ID == "" {
		mapping.ID = uuid.NewString()
	}
	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO subject_mappings
	(id, subject_code, exam_round, subject_name, course_id, assignment_id, assignment_name, is_active, created_at, last_verified_at)
	VALUES (:id, :subject_code, :exam_round, :subject_name, :course_id, :assignment_id, :assignment_name, :is_active, :created_at, :last_verified_at)
	ON CONFLICT (subject_code, exam_round) DO UPDATE SET
	  subject_name = EXCLUDED.subject_name,
	  course_id = EXCLUDED.course_id,
	  assignment_id = EXCLUDED.assignment_id,
	  assignment_name = EXCLUDED.assignment_name,
	  is_active = EXCLUDED.is_active,
	  last_verified_at = EXCLUDED.last_verified_at`
	if _, err := r.db.NamedExecContext(ctx, query, mapping); err != nil {
		return fmt.Errorf("upsert subject mapping: %w", err)
	}
	return nil
}

// GetSubject returns the active mapping for a (subject, round) pair, or nil
// when the subject is unmapped.
func (r *MappingRepository) GetSubject(ctx context.Context, subjectCode, examRound string) (*models.SubjectMapping, error) {
	query := `SELECT ` + subjectMappingColumns + ` FROM subject_mappings
	 WHERE subject_code = $1 AND exam_round = $2 AND is_active = TRUE`
	var mapping models.SubjectMapping
	err := r.db.GetContext(ctx, &mapping, query, subjectCode, examRound)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subject mapping: %w", err)
	}
	return &mapping, nil
}

// ListSubjects returns all subject mappings, optionally only active ones.
func (r *MappingRepository) ListSubjects(ctx context.Context, activeOnly bool) ([]models.SubjectMapping, error) {
	query := `SELECT ` + subjectMappingColumns + ` FROM subject_mappings`
	if activeOnly {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY subject_code ASC, exam_round ASC`
	var mappings []models.SubjectMapping
	if err := r.db.SelectContext(ctx, &mappings, query); err != nil {
		return nil, fmt.Errorf("list subject mappings: %w", err)
	}
	return mappings, nil
}

// DeactivateSubject retires a mapping without losing its history.
func (r *MappingRepository) DeactivateSubject(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE subject_mappings SET is_active = FALSE WHERE id = $1 AND is_active = TRUE`, id)
	if err != nil {
		return fmt.Errorf("deactivate subject mapping: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deactivate rows: %w", err)
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// TouchSubjectVerified stamps a successful destination check against the LMS.
func (r *MappingRepository) TouchSubjectVerified(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE subject_mappings SET last_verified_at = $1 WHERE id = $2`, at, id); err != nil {
		return fmt.Errorf("touch subject mapping: %w", err)
	}
	return nil
}

// UpsertStudent creates or refreshes the username→register binding.
func (r *MappingRepository) UpsertStudent(ctx context.Context, mapping *models.StudentMapping) error {
	if mapping.ID == "" {
		mapping.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = now
	}
	mapping.UpdatedAt = now
	const query = `INSERT INTO student_mappings (id, username, register_number, created_at, updated_at)
	VALUES (:id, :username, :register_number, :created_at, :updated_at)
	ON CONFLICT (username) DO UPDATE SET
	  register_number = EXCLUDED.register_number,
	  updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, mapping); err != nil {
		return fmt.Errorf("upsert student mapping: %w", err)
	}
	return nil
}

// GetStudentByRegister resolves a register number to its LMS username, or nil
// when the student is unmapped.
func (r *MappingRepository) GetStudentByRegister(ctx context.Context, registerNumber string) (*models.StudentMapping, error) {
	query := `SELECT ` + studentMappingColumns + ` FROM student_mappings WHERE register_number = $1`
	var mapping models.StudentMapping
	err := r.db.GetContext(ctx, &mapping, query, registerNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student mapping by register: %w", err)
	}
	return &mapping, nil
}

// GetStudentByUsername resolves an LMS username to its register number, or nil
// when unmapped.
func (r *MappingRepository) GetStudentByUsername(ctx context.Context, username string) (*models.StudentMapping, error) {
	query := `SELECT ` + studentMappingColumns + ` FROM student_mappings WHERE username = $1`
	var mapping models.StudentMapping
	err := r.db.GetContext(ctx, &mapping, query, username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get student mapping by username: %w", err)
	}
	return &mapping, nil
}

// ListStudents returns all student mappings ordered by register number.
func (r *MappingRepository) ListStudents(ctx context.Context, limit, offset int) ([]models.StudentMapping, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + studentMappingColumns + ` FROM student_mappings ORDER BY register_number ASC LIMIT $1 OFFSET $2`
	var mappings []models.StudentMapping
	if err := r.db.SelectContext(ctx, &mappings, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list student mappings: %w", err)
	}
	return mappings, nil
}

// DeleteStudent removes a username→register binding.
func (r *MappingRepository) DeleteStudent(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM student_mappings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student mapping: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check delete rows: %w", err)
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
