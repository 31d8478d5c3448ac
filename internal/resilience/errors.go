package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// TransientError marks an error as safe to retry (connection loss, timeout,
// control-plane hiccup). Store backends wrap infrastructure failures with it
// so the retry layer can tell them apart from terminal errors.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// MarkTransient wraps err as retryable. Returns nil for a nil err.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// pgTransientCodes are PostgreSQL SQLSTATE codes worth retrying: connection
// exceptions (08xxx), operator shutdown/startup (57P01-57P03), connection
// slots exhausted (53300) and serialization/deadlock rollbacks (40001,
// 40P01).
var pgTransientCodes = map[string]bool{
	"08000": true,
	"08003": true,
	"08006": true,
	"57P01": true,
	"57P02": true,
	"57P03": true,
	"53300": true,
	"40001": true,
	"40P01": true,
}

// IsTransient reports whether the error chain indicates a transient
// infrastructure failure: an explicit TransientError, a network timeout or
// connection fault, a retryable PostgreSQL SQLSTATE, or a busy/locked
// SQLite database. Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgTransientCodes[pgErr.Code]
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	// Driver errors often arrive as wrapped strings; match the common
	// connection and lock-contention messages from pgx and sqlite.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"i/o timeout",
		"unexpected eof",
		"conn closed",
		"failed to connect",
		"database is locked",
		"database table is locked",
		"sqlite_busy",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}
