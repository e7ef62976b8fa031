package util

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE classes
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgClassConnection     = "08"
	pgSerializationFail   = "40001"
	pgDeadlockDetected    = "40P01"
)

// IsRetryableError reports whether a consumer failure is worth redelivering, with a short label
// for logs and metrics.
func IsRetryableError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return false, "json_decode_error"
	}

	if errors.Is(err, context.Canceled) {
		return false, "context_canceled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true, "timeout"
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return false, "not_found"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == pgUniqueViolation:
			return false, "duplicate_key"
		case pgErr.Code == pgForeignKeyViolation:
			return false, "foreign_key_violation"
		case pgErr.Code == pgSerializationFail || pgErr.Code == pgDeadlockDetected:
			return true, "db_contention"
		case strings.HasPrefix(pgErr.Code, pgClassConnection):
			return true, "db_connection_error"
		}
		return false, "db_error"
	}
	if pgconn.SafeToRetry(err) {
		return true, "db_connection_error"
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return true, "network_timeout"
		}
		return true, "network_error"
	}

	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "connection reset") {
		return true, "connection_error"
	}

	return false, "unknown_error"
}

// ShouldRetry reports whether attempt number retryCount may still be redelivered.
func ShouldRetry(retryCount int64, maxRetries int64, isRetryable bool) bool {
	if !isRetryable {
		return false
	}
	return retryCount <= maxRetries
}
