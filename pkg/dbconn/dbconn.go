package dbconn

import (
	"context"
	"database/sql"
	"fmt"
)

// ConnectionError means an endpoint could not be reached at all.
// It is always fatal: no decision or migration step proceeds on a
// guess about an unreachable server.
type ConnectionError struct {
	Role Role
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s (%s) failed: %v", e.Role, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// QueryError means a specific SQL operation failed on an otherwise
// reachable endpoint.
type QueryError struct {
	Role Role
	Err  error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query on %s failed: %v", e.Role, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Handle is one open connection pool to one endpoint. Each component
// opens its own handle for the duration of one operation and closes it
// on every exit path; handles are never shared across components.
type Handle struct {
	db       *sql.DB
	endpoint *Endpoint
}

// Connect opens a handle to the endpoint and verifies it with a ping.
// A failure here is a ConnectionError, not a QueryError.
func Connect(ctx context.Context, e *Endpoint, config *DBConfig) (*Handle, error) {
	db, err := sql.Open("mysql", e.newDSN(config))
	if err != nil {
		return nil, &ConnectionError{Role: e.Role, Addr: e.Addr(), Err: err}
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Role: e.Role, Addr: e.Addr(), Err: err}
	}
	db.SetMaxOpenConns(config.MaxOpenConnections)
	return &Handle{db: db, endpoint: e}, nil
}

func (h *Handle) Close() error {
	return h.db.Close()
}

func (h *Handle) Endpoint() *Endpoint {
	return h.endpoint
}

// Exec runs a statement, discarding any result. There are no retries at
// this layer; the caller decides whether a failure is disqualifying or
// fatal.
func (h *Handle) Exec(ctx context.Context, stmt string, args ...any) error {
	if _, err := h.db.ExecContext(ctx, stmt, args...); err != nil {
		return &QueryError{Role: h.endpoint.Role, Err: err}
	}
	return nil
}

// Query runs a query and returns the rows. The caller owns closing them.
func (h *Handle) Query(ctx context.Context, stmt string, args ...any) (*sql.Rows, error) {
	rows, err := h.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, &QueryError{Role: h.endpoint.Role, Err: err}
	}
	return rows, nil
}

// QueryRow scans a single-row result into dest.
func (h *Handle) QueryRow(ctx context.Context, stmt string, dest ...any) error {
	if err := h.db.QueryRowContext(ctx, stmt).Scan(dest...); err != nil {
		return &QueryError{Role: h.endpoint.Role, Err: err}
	}
	return nil
}

// SelectGlobalVar reads a global system variable as a string. The name
// is interpolated directly and must come from a trusted caller.
func (h *Handle) SelectGlobalVar(ctx context.Context, name string) (string, error) {
	var value string
	if err := h.QueryRow(ctx, fmt.Sprintf("SELECT @@GLOBAL.%s", name), &value); err != nil {
		return "", err
	}
	return value, nil
}
