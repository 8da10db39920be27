package database

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sectorwars/gameserver/internal/domain/shared"
)

const (
	txMaxAttempts = 3
	txBackoffBase = 50 * time.Millisecond
	txBackoffCap  = time.Second
)

// ExecuteInTransaction runs fn inside a transaction on the given shard,
// retrying serialization conflicts with capped exponential backoff and
// jitter. Exhausted retries surface as a Conflict so callers can ask the
// client to retry.
func ExecuteInTransaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var lastErr error

	for attempt := 0; attempt < txMaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := txBackoffBase << (attempt - 1)
			if backoff > txBackoffCap {
				backoff = txBackoffCap
			}
			jitter := time.Duration(rand.Int63n(int64(backoff) / 2))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff + jitter):
			}
		}

		lastErr = db.WithContext(ctx).Transaction(fn)
		if lastErr == nil {
			return nil
		}
		if !isRetryable(lastErr) {
			return lastErr
		}
	}

	return shared.NewConflictError("transaction kept conflicting, try again")
}

// isRetryable recognizes transient serialization and lock errors across
// postgres and sqlite.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "deadlock"),
		strings.Contains(msg, "could not serialize"),
		strings.Contains(msg, "serialization failure"),
		strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "database table is locked"):
		return true
	}
	return false
}

