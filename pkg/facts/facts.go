// Package facts builds an immutable snapshot of the server state the
// precondition checks need. A snapshot is gathered fresh for each
// validation pass and never mutated afterward.
package facts

import (
	"context"
	"strings"

	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/dbconn"
	"github.com/pingcap/errors"
)

// SystemSchemas are MySQL-internal databases that are never user data.
// They are excluded from migration regardless of any filter.
var SystemSchemas = []string{"information_schema", "mysql", "performance_schema", "sys"}

// ServerFacts is a per-endpoint snapshot of everything the validator
// inspects. Rebuild it rather than updating it.
type ServerFacts struct {
	Role            dbconn.Role
	Version         string
	GTIDMode        string
	BinlogFormat    string
	ServerID        string
	ExecutedGtidSet string

	// Databases are the non-system, non-filtered schemas on the server.
	Databases []string

	// NonInnoDBEngines are the distinct storage engines other than
	// InnoDB in use by the databases above.
	NonInnoDBEngines []string

	// Grants are the global (ON *.*) grants held by the connecting user.
	Grants []string

	// TotalSizeBytes is data + index size across all non-excluded schemas.
	TotalSizeBytes int64
}

// Gather builds a ServerFacts snapshot over a single handle. ignoreDBs
// is the full exclusion set (system schemas plus operator filters). Any
// query failure is fatal: the validator never guesses facts it could
// not observe.
func Gather(ctx context.Context, h *dbconn.Handle, ignoreDBs []string) (*ServerFacts, error) {
	f := &ServerFacts{Role: h.Endpoint().Role}

	var err error
	if f.Version, err = h.SelectGlobalVar(ctx, "version"); err != nil {
		return nil, err
	}
	if f.GTIDMode, err = h.SelectGlobalVar(ctx, "gtid_mode"); err != nil {
		return nil, err
	}
	if f.BinlogFormat, err = h.SelectGlobalVar(ctx, "binlog_format"); err != nil {
		return nil, err
	}
	if f.ServerID, err = h.SelectGlobalVar(ctx, "server_id"); err != nil {
		return nil, err
	}
	if f.ExecutedGtidSet, err = h.SelectGlobalVar(ctx, "gtid_executed"); err != nil {
		return nil, err
	}
	if f.Databases, err = listDatabases(ctx, h, ignoreDBs); err != nil {
		return nil, err
	}
	if f.NonInnoDBEngines, err = listNonInnoDBEngines(ctx, h, f.Databases); err != nil {
		return nil, err
	}
	if f.Grants, err = globalGrants(ctx, h); err != nil {
		return nil, err
	}
	if f.TotalSizeBytes, err = totalSize(ctx, h, ignoreDBs); err != nil {
		return nil, err
	}
	return f, nil
}

// HasGlobalGrant reports whether the connecting user holds the given
// global privilege, directly or via ALL PRIVILEGES.
func (f *ServerFacts) HasGlobalGrant(grant string) bool {
	for _, g := range f.Grants {
		if g == grant || g == "ALL PRIVILEGES" {
			return true
		}
	}
	return false
}

func listDatabases(ctx context.Context, h *dbconn.Handle, ignoreDBs []string) ([]string, error) {
	stmt := "SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME NOT IN (" +
		placeholders(len(ignoreDBs)) + ") ORDER BY SCHEMA_NAME"
	rows, err := h.Query(ctx, stmt, asAny(ignoreDBs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var dbs []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Trace(err)
		}
		dbs = append(dbs, name)
	}
	return dbs, errors.Trace(rows.Err())
}

func listNonInnoDBEngines(ctx context.Context, h *dbconn.Handle, databases []string) ([]string, error) {
	if len(databases) == 0 {
		return nil, nil
	}
	stmt := "SELECT DISTINCT(ENGINE) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA IN (" +
		placeholders(len(databases)) + ") AND ENGINE IS NOT NULL AND UPPER(ENGINE) != 'INNODB'"
	rows, err := h.Query(ctx, stmt, asAny(databases)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var engines []string
	for rows.Next() {
		var engine string
		if err := rows.Scan(&engine); err != nil {
			return nil, errors.Trace(err)
		}
		engines = append(engines, engine)
	}
	return engines, errors.Trace(rows.Err())
}

func totalSize(ctx context.Context, h *dbconn.Handle, ignoreDBs []string) (int64, error) {
	stmt := "SELECT COALESCE(SUM(DATA_LENGTH + INDEX_LENGTH), 0) FROM INFORMATION_SCHEMA.TABLES " +
		"WHERE TABLE_SCHEMA NOT IN (" + placeholders(len(ignoreDBs)) + ")"
	var size int64
	rows, err := h.Query(ctx, stmt, asAny(ignoreDBs)...)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&size); err != nil {
			return 0, errors.Trace(err)
		}
	}
	return size, errors.Trace(rows.Err())
}

// globalGrants parses SHOW GRANTS output for privileges granted ON *.*,
// the only scope that matters for replication setup.
func globalGrants(ctx context.Context, h *dbconn.Handle) ([]string, error) {
	rows, err := h.Query(ctx, "SHOW GRANTS FOR CURRENT_USER")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []string
	for rows.Next() {
		var grant string
		if err := rows.Scan(&grant); err != nil {
			return nil, errors.Trace(err)
		}
		grants = append(grants, ParseGlobalGrants(grant)...)
	}
	return grants, errors.Trace(rows.Err())
}

// ParseGlobalGrants extracts the privilege list from one line of SHOW
// GRANTS output, returning it upper-cased, or nil if the line does not
// grant at the *.* scope.
func ParseGlobalGrants(grant string) []string {
	const prefix = "GRANT "
	if !strings.HasPrefix(grant, prefix) {
		return nil
	}
	rest := grant[len(prefix):]
	idx := strings.Index(rest, " ON ")
	if idx < 0 {
		return nil
	}
	scope := rest[idx+len(" ON "):]
	if !strings.HasPrefix(scope, "*.*") {
		return nil
	}
	var grants []string
	for _, g := range strings.Split(rest[:idx], ",") {
		grants = append(grants, strings.ToUpper(strings.TrimSpace(g)))
	}
	return grants
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func asAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
