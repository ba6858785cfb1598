package persistence

import "strings"

// isUniqueViolation detects primary-key violations from the SQLite and
// Postgres drivers without depending on driver-specific error types.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value")
}
