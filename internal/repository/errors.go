package repository

import (
	"errors"

	"github.com/lib/pq"
)

// Sentinels surfaced to the service layer, which maps them onto API error
// codes. They deliberately carry no request detail.
var (
	// ErrDuplicateSlot means a live artifact already occupies the
	// (register, subject, round, attempt) tuple.
	ErrDuplicateSlot = errors.New("slot already occupied by a live artifact")

	// ErrDuplicateTransaction means the transaction id is held by a live
	// artifact and could not be self-healed.
	ErrDuplicateTransaction = errors.New("transaction id already in use")

	// ErrSecondAttemptLocked means the attempt-2 slot was already consumed,
	// or no live attempt-1 row exists to attach it to.
	ErrSecondAttemptLocked = errors.New("second attempt slot unavailable")

	// ErrStaleState means a compare-and-set update matched no row: the
	// artifact moved to another state between read and write.
	ErrStaleState = errors.New("artifact state changed concurrently")

	// ErrActiveQueueEntry means the artifact already has a queued or
	// in-progress queue entry.
	ErrActiveQueueEntry = errors.New("artifact already has an in-flight queue entry")
)

const pgUniqueViolation = "23505"

// uniqueViolation extracts the violated constraint name from a postgres
// duplicate-key error.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}
