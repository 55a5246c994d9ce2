package models

import "time"

// Ledger action names. Report lifecycle actions double as the storage
// substrate for derived reports.
const (
	ActionFileUploaded      = "file_uploaded"
	ActionBulkUpload        = "bulk_upload"
	ActionStatusChange      = "status_change"
	ActionStudentSubmit     = "student_submit"
	ActionSubmissionRetry   = "submission_retry"
	ActionSubmissionDead    = "submission_dead"
	ActionSubmittedToLMS    = "submitted_to_lms"
	ActionAdminReplace      = "admin_replace"
	ActionAdminDelete       = "admin_delete"
	ActionAdminReset        = "admin_reset"
	ActionClearTransaction  = "clear_transaction_id"
	ActionClearedIdentifier = "cleared_identifiers_for_reuse"
	ActionUnlockAttempt     = "unlock_attempt_2"

	ActionReportIssue    = "report_issue"
	ActionReportResolved = "report_resolved"
	ActionReportDeleted  = "report_deleted"

	ActionNotificationSent    = "student_notification_sent"
	ActionNotificationFailed  = "student_notification_failed"
	ActionNotificationSkipped = "student_notification_skipped"
)

// Ledger categories.
const (
	CategoryUpload       = "upload"
	CategoryWorkflow     = "workflow"
	CategorySubmission   = "submission"
	CategoryAdmin        = "admin"
	CategoryReport       = "report"
	CategoryNotification = "notification"
)

// Actor types recorded on ledger entries.
const (
	ActorStaff   = "staff"
	ActorStudent = "student"
	ActorSystem  = "system"
)

// Actor identifies who performed a ledger-worthy action.
type Actor struct {
	Type     string `json:"type"`
	ID       string `json:"id"`
	Username string `json:"username"`
	IP       string `json:"ip,omitempty"`
}

// SystemActor is used for actions the service performs on its own behalf.
func SystemActor() Actor {
	return Actor{Type: ActorSystem, ID: "system", Username: "system"}
}

// LedgerEntry is one immutable audit fact. Entries are never mutated or
// deleted once written; corrections are new entries referencing the original
// via TargetID.
type LedgerEntry struct {
	ID            string    `db:"id" json:"id"`
	Action        string    `db:"action" json:"action"`
	Category      string    `db:"category" json:"category"`
	ActorType     string    `db:"actor_type" json:"actorType"`
	ActorID       string    `db:"actor_id" json:"actorId"`
	ActorUsername string    `db:"actor_username" json:"actorUsername"`
	ActorIP       *string   `db:"actor_ip" json:"actorIp,omitempty"`
	ArtifactID    *string   `db:"artifact_id" json:"artifactId,omitempty"`
	TargetType    *string   `db:"target_type" json:"targetType,omitempty"`
	TargetID      *string   `db:"target_id" json:"targetId,omitempty"`
	Description   string    `db:"description" json:"description"`
	RequestData   []byte    `db:"request_data" json:"requestData,omitempty"`
	ResponseData  []byte    `db:"response_data" json:"responseData,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// LedgerFilter constrains ledger listing queries.
type LedgerFilter struct {
	ArtifactID    string
	ActorUsername string
	Action        string
	Category      string
	From          *time.Time
	To            *time.Time
	Limit         int
	Offset        int
}
