package storage

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TimeFormat is how timestamps are stored; fixed width so text columns sort lexically
const TimeFormat = "2006-01-02T15:04:05.000000Z"

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

func now() time.Time {
	return time.Now().UTC()
}

// normalizeAddress lowercases hex so lookups ignore checksum casing
func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// isUniqueViolation matches both drivers' duplicate key errors
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
