package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// WorkflowStatus enumerates the artifact lifecycle states.
type WorkflowStatus string

const (
	StatusPendingReview WorkflowStatus = "PENDING_REVIEW"
	StatusQueued        WorkflowStatus = "QUEUED"
	StatusSubmitted     WorkflowStatus = "SUBMITTED"
	StatusFailed        WorkflowStatus = "FAILED"
	StatusDeleted       WorkflowStatus = "DELETED"
	StatusSuperseded    WorkflowStatus = "SUPERSEDED"
)

// legalTransitions is the workflow state graph. SUBMITTED and DELETED are
// terminal; FAILED re-enters QUEUED on retry; reset returns QUEUED/FAILED to
// PENDING_REVIEW.
var legalTransitions = map[WorkflowStatus][]WorkflowStatus{
	StatusPendingReview: {StatusQueued, StatusDeleted, StatusSuperseded},
	StatusQueued:        {StatusSubmitted, StatusFailed, StatusPendingReview, StatusDeleted},
	StatusFailed:        {StatusQueued, StatusPendingReview, StatusDeleted, StatusSuperseded},
	StatusSubmitted:     {},
	StatusDeleted:       {},
	StatusSuperseded:    {},
}

// CanTransitionTo reports whether the state graph allows moving to next.
func (s WorkflowStatus) CanTransitionTo(next WorkflowStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s WorkflowStatus) Terminal() bool {
	return len(legalTransitions[s]) == 0
}

// Live reports whether the artifact still occupies its dedup slot. DELETED
// and SUPERSEDED rows are kept for history but no longer block new uploads.
func (s WorkflowStatus) Live() bool {
	return s != StatusDeleted && s != StatusSuperseded
}

// Exam round tags.
const (
	RoundCIA1     = "CIA1"
	RoundCIA2     = "CIA2"
	RoundSemester = "SEM"
)

// MaxAttemptNumber is the current hard ceiling on resubmission slots. Only a
// single second-attempt gate exists, so anything above 2 is a policy change.
const MaxAttemptNumber = 2

// TransactionLogEntry is one record of the artifact-local log, distinct from
// the global audit ledger.
type TransactionLogEntry struct {
	Action  string                 `json:"action"`
	Details map[string]interface{} `json:"details,omitempty"`
	At      time.Time              `json:"at"`
}

// TransactionLog is stored as a jsonb column.
type TransactionLog []TransactionLogEntry

// Value implements driver.Valuer.
func (l TransactionLog) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *TransactionLog) Scan(src interface{}) error {
	if src == nil {
		*l = TransactionLog{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("unsupported transaction log source %T", src)
	}
}

// Artifact is one physical scanned examination paper instance.
type Artifact struct {
	ID               string         `db:"id" json:"id"`
	Seq              int64          `db:"seq" json:"-"`
	RegisterNumber   *string        `db:"register_number" json:"registerNumber,omitempty"`
	SubjectCode      *string        `db:"subject_code" json:"subjectCode,omitempty"`
	ExamRound        string         `db:"exam_round" json:"examRound"`
	AttemptNumber    int            `db:"attempt_number" json:"attemptNumber"`
	TransactionID    *string        `db:"transaction_id" json:"transactionId,omitempty"`
	ContentRef       string         `db:"content_ref" json:"contentRef"`
	ContentHash      string         `db:"content_hash" json:"contentHash"`
	OriginalFilename string         `db:"original_filename" json:"originalFilename"`
	RawFilename      string         `db:"raw_filename" json:"rawFilename"`
	SizeBytes        int64          `db:"size_bytes" json:"sizeBytes"`
	MimeType         string         `db:"mime_type" json:"mimeType"`
	Status           WorkflowStatus `db:"status" json:"status"`
	Attempt2Locked   bool           `db:"attempt_2_locked" json:"attempt2Locked"`

	// Delivery metadata, assigned only after the LMS accepts the submission.
	ExternalUserID       *string `db:"external_user_id" json:"externalUserId,omitempty"`
	ExternalAssignmentID *string `db:"external_assignment_id" json:"externalAssignmentId,omitempty"`
	ExternalSubmissionID *string `db:"external_submission_id" json:"externalSubmissionId,omitempty"`

	RetryCount     int            `db:"retry_count" json:"retryCount"`
	LastError      *string        `db:"last_error" json:"lastError,omitempty"`
	TransactionLog TransactionLog `db:"transaction_log" json:"transactionLog"`

	UploadedBy  string     `db:"uploaded_by" json:"uploadedBy"`
	UploadedAt  time.Time  `db:"uploaded_at" json:"uploadedAt"`
	SubmittedAt *time.Time `db:"submitted_at" json:"submittedAt,omitempty"`
}

// AppendLog adds an entry to the artifact-local transaction log.
func (a *Artifact) AppendLog(action string, details map[string]interface{}) {
	a.TransactionLog = append(a.TransactionLog, TransactionLogEntry{
		Action:  action,
		Details: details,
		At:      time.Now().UTC(),
	})
}

// Register returns the register number or an empty string.
func (a *Artifact) Register() string {
	if a.RegisterNumber == nil {
		return ""
	}
	return *a.RegisterNumber
}

// Subject returns the subject code or an empty string.
func (a *Artifact) Subject() string {
	if a.SubjectCode == nil {
		return ""
	}
	return *a.SubjectCode
}

// ArtifactFilter constrains listing queries.
type ArtifactFilter struct {
	Status         []WorkflowStatus
	RegisterNumber string
	SubjectCode    string
	ExamRound      string
	UploadedBy     string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// ArtifactStats aggregates workflow counts for the dashboard.
type ArtifactStats struct {
	Total          int            `json:"total"`
	ByStatus       map[string]int `json:"byStatus"`
	ByRound        map[string]int `json:"byRound"`
	LockedAttempts int            `json:"lockedAttempts"`
}

// DuplicateProbe describes whether a (register, subject, round) slot is
// already taken and whether it could still accept a second attempt.
type DuplicateProbe struct {
	RegisterNumber      string          `json:"registerNumber"`
	SubjectCode         string          `json:"subjectCode"`
	ExamRound           string          `json:"examRound"`
	Exists              bool            `json:"exists"`
	Status              *WorkflowStatus `json:"status,omitempty"`
	UploadedAt          *time.Time      `json:"uploadedAt,omitempty"`
	MaxAttempt          int             `json:"maxAttempt"`
	Attempt2Locked      bool            `json:"attempt2Locked"`
	CanUploadAsAttempt2 bool            `json:"canUploadAsAttempt2"`
}
