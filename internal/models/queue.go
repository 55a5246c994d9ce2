package models

import "time"

// QueueStatus enumerates submission queue entry states.
type QueueStatus string

const (
	QueueStatusQueued     QueueStatus = "queued"
	QueueStatusInProgress QueueStatus = "in_progress"
	QueueStatusDelivered  QueueStatus = "delivered"
	QueueStatusDead       QueueStatus = "dead"
)

// InFlight reports whether the entry still blocks a new enqueue for the same
// artifact. At most one in-flight entry may exist per artifact.
func (s QueueStatus) InFlight() bool {
	return s == QueueStatusQueued || s == QueueStatusInProgress
}

// QueueEntry is one artifact awaiting delivery to the LMS.
type QueueEntry struct {
	ID         string      `db:"id" json:"id"`
	ArtifactID string      `db:"artifact_id" json:"artifactId"`
	Status     QueueStatus `db:"status" json:"status"`
	RetryCount int         `db:"retry_count" json:"retryCount"`
	QueuedAt   time.Time   `db:"queued_at" json:"queuedAt"`
	ClaimedAt  *time.Time  `db:"claimed_at" json:"claimedAt,omitempty"`
	LastError  *string     `db:"last_error" json:"lastError,omitempty"`
}

// QueueSnapshot summarises queue health for operators.
type QueueSnapshot struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"byStatus"`
	Entries  []QueueEntry   `json:"entries"`
}

// DrainOutcome classifies what happened to one claimed entry during a drain.
type DrainOutcome string

const (
	DrainDelivered DrainOutcome = "delivered"
	DrainRequeued  DrainOutcome = "requeued"
	DrainDead      DrainOutcome = "dead"
)

// DrainItemResult reports the fate of a single entry.
type DrainItemResult struct {
	ArtifactID string       `json:"artifactId"`
	Outcome    DrainOutcome `json:"outcome"`
	RetryCount int          `json:"retryCount"`
	Error      string       `json:"error,omitempty"`
}

// DrainResult summarises one manual drain pass.
type DrainResult struct {
	Claimed   int               `json:"claimed"`
	Delivered int               `json:"delivered"`
	Requeued  int               `json:"requeued"`
	Dead      int               `json:"dead"`
	Items     []DrainItemResult `json:"items"`
}
