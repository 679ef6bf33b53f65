package database

import (
	"strings"
	"time"
)

// isUniqueConstraintError reports whether err is a unique/primary key
// violation, the signal CRUD methods use to map a raw SQL error onto a
// typed apierr.KindConflict instead of a generic failure.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "violates unique")
}

func nullableString(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func nullableInt(i *int) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

func nullableInt64(i *int64) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

func durationMsToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
