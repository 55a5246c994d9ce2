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

const ledgerColumns = `id, action, category, actor_type, actor_id, actor_username, actor_ip,
       artifact_id, target_type, target_id, description, request_data, response_data, created_at`

const ledgerInsertQuery = `INSERT INTO audit_ledger
	(id, action, category, actor_type, actor_id, actor_username, actor_ip, artifact_id, target_type, target_id, description, request_data, response_data, created_at)
	VALUES (:id, :action, :category, :actor_type, :actor_id, :actor_username, :actor_ip, :artifact_id, :target_type, :target_id, :description, :request_data, :response_data, :created_at)`

// LedgerRepository persists the append-only audit ledger. Rows are never
// updated or deleted here except for the artifact-id rehoming done by
// ArtifactRepository.Replace.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func prepareLedgerEntry(entry *models.LedgerEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
}

// insertLedgerTx appends an entry within a caller-owned transaction. The
// state-changing repositories use it so a mutation and its audit fact commit
// as one unit.
func insertLedgerTx(ctx context.Context, tx *sqlx.Tx, entry *models.LedgerEntry) error {
	prepareLedgerEntry(entry)
	if _, err := tx.NamedExecContext(ctx, ledgerInsertQuery, entry); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// Insert appends a standalone entry outside any mutation transaction, e.g.
// notification outcomes.
func (r *LedgerRepository) Insert(ctx context.Context, entry *models.LedgerEntry) error {
	prepareLedgerEntry(entry)
	if _, err := r.db.NamedExecContext(ctx, ledgerInsertQuery, entry); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}
	return nil
}

// GetByID fetches a single entry.
func (r *LedgerRepository) GetByID(ctx context.Context, id string) (*models.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM audit_ledger WHERE id = $1`
	var entry models.LedgerEntry
	if err := r.db.GetContext(ctx, &entry, query, id); err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns entries matching the filter, newest first.
func (r *LedgerRepository) List(ctx context.Context, filter models.LedgerFilter) ([]models.LedgerEntry, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + ledgerColumns + ` FROM audit_ledger`)

	conditions := make([]string, 0, 6)
	if filter.ArtifactID != "" {
		args = append(args, filter.ArtifactID)
		conditions = append(conditions, fmt.Sprintf("artifact_id = $%d", len(args)))
	}
	if filter.ActorUsername != "" {
		args = append(args, filter.ActorUsername)
		conditions = append(conditions, fmt.Sprintf("actor_username = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return entries, nil
}

// ListByArtifact returns every entry for one artifact in insertion order,
// which is the order report projection folds over.
func (r *LedgerRepository) ListByArtifact(ctx context.Context, artifactID string) ([]models.LedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM audit_ledger WHERE artifact_id = $1 ORDER BY created_at ASC, id ASC`
	var entries []models.LedgerEntry
	if err := r.db.SelectContext(ctx, &entries, query, artifactID); err != nil {
		return nil, fmt.Errorf("list ledger entries for artifact: %w", err)
	}
	return entries, nil
}

// HasActionTargeting reports whether an entry with the given action already
// points at the target entry. Used to refuse resolving a withdrawn report.
func (r *LedgerRepository) HasActionTargeting(ctx context.Context, action, targetID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM audit_ledger WHERE action = $1 AND target_id = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, action, targetID); err != nil {
		return false, fmt.Errorf("check ledger target: %w", err)
	}
	return exists, nil
}
