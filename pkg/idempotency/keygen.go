// Package idempotency derives the stable transaction identifier used to
// correlate an examination artifact across retried deliveries to the LMS.
package idempotency

import (
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Key maps (register number, subject code) onto a deterministic 32-character
// hex token. The same physical paper always yields the same key, which is what
// lets the LMS recognise a retried submission instead of duplicating it. The
// key doubles as the uniqueness guard on non-deleted artifacts.
func Key(registerNumber, subjectCode string) string {
	return digest(normalize(registerNumber) + ":" + normalize(subjectCode))
}

// AttemptKey derives the key for a specific attempt slot. The first attempt
// keeps the bare Key so historical tokens stay valid; a retake folds the
// attempt number in, letting both live rows hold distinct tokens.
func AttemptKey(registerNumber, subjectCode string, attempt int) string {
	if attempt <= 1 {
		return Key(registerNumber, subjectCode)
	}
	return digest(normalize(registerNumber) + ":" + normalize(subjectCode) + ":" + strconv.Itoa(attempt))
}

func normalize(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

func digest(normalized string) string {
	sum := sha3.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}
