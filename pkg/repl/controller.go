package repl

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/dbconn"
	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/facts"
	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/metrics"
	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/utils"
	"github.com/google/uuid"
	"github.com/pingcap/errors"
)

// These are really consts, but set to var for testing.
var (
	monitorInterval        = 2 * time.Second
	replicaStartupInterval = 2 * time.Second
	replicaStartupRetries  = 30
)

// ReplicationUser is the dedicated user provisioned on the source for
// the replica connection, so the admin credential never leaves the
// operator's hands.
const ReplicationUser = "migration_repl"

// SetupError means replication configuration failed. The controller
// never retries setup automatically.
type SetupError struct {
	Err error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("replication setup failed: %v", e.Err)
}

func (e *SetupError) Unwrap() error { return e.Err }

// StopError means the stop-replica command failed.
type StopError struct {
	Err error
}

func (e *StopError) Error() string {
	return fmt.Sprintf("stopping replication failed: %v", e.Err)
}

func (e *StopError) Unwrap() error { return e.Err }

// Controller owns the replication lifecycle on the target: user
// provisioning, GTID positioning, start, lag monitoring and stop.
type Controller struct {
	source       *dbconn.Endpoint
	target       *dbconn.Endpoint
	targetMaster *dbconn.Endpoint

	// ignoreDBs are replicated-statement filters: system schemas plus
	// operator-filtered databases, ignored as wildcard table patterns.
	ignoreDBs []string

	// privilegeCheckUser, when set, is the restricted account the
	// target authenticates replicated statements through.
	privilegeCheckUser string

	dbConfig *dbconn.DBConfig
	sink     metrics.Sink
	logger   *slog.Logger
	state    *State
}

func NewController(source, target, targetMaster *dbconn.Endpoint, ignoreDBs []string,
	privilegeCheckUser string, sink metrics.Sink, logger *slog.Logger) *Controller {
	if sink == nil {
		sink = &metrics.NoopSink{}
	}
	return &Controller{
		source:             source,
		target:             target,
		targetMaster:       targetMaster,
		ignoreDBs:          ignoreDBs,
		privilegeCheckUser: privilegeCheckUser,
		dbConfig:           dbconn.NewDBConfig(),
		sink:               sink,
		logger:             logger,
	}
}

// State returns the controller's replication state for reporting. The
// controller remains the sole writer.
func (c *Controller) State() *State {
	if c.state == nil {
		c.state = NewState()
	}
	return c.state
}

// Setup provisions the replication user on the source, positions the
// target at the dump's GTID and starts the replica threads. gtid is the
// opaque position captured from the dump header.
func (c *Controller) Setup(ctx context.Context, gtid string) error {
	state := c.State()
	state.status.Set(StatusStarting)
	c.logger.Info("setting up replication",
		"source", c.source.Redacted(), "target", c.target.Redacted())

	password, err := c.createReplicationUser(ctx)
	if err != nil {
		return c.setupFailed(err)
	}
	if err := c.configureTargetMaster(ctx, gtid, password); err != nil {
		return c.setupFailed(err)
	}
	if err := c.ensureReplicaRunning(ctx); err != nil {
		return c.setupFailed(err)
	}
	state.status.Set(StatusRunning)
	c.logger.Info("replication is running")
	return nil
}

func (c *Controller) setupFailed(err error) error {
	wrapped := &SetupError{Err: err}
	c.State().fail(wrapped)
	return wrapped
}

// createReplicationUser provisions the dedicated user on the source and
// returns its freshly generated password. ALTER USER resets the
// password in case the user survived an earlier run.
func (c *Controller) createReplicationUser(ctx context.Context) (string, error) {
	handle, err := dbconn.Connect(ctx, c.source, c.dbConfig)
	if err != nil {
		return "", err
	}
	defer utils.CloseAndLog(handle)

	// uuid hex is 32 characters, exactly the CHANGE REPLICATION SOURCE
	// password limit.
	password := strings.ReplaceAll(uuid.NewString(), "-", "")
	account := fmt.Sprintf("'%s'@'%%'", ReplicationUser)
	stmts := []string{
		fmt.Sprintf("CREATE USER IF NOT EXISTS %s IDENTIFIED BY ?", account),
		fmt.Sprintf("ALTER USER %s IDENTIFIED BY ?", account),
	}
	for _, stmt := range stmts {
		if err := handle.Exec(ctx, stmt, password); err != nil {
			return "", err
		}
	}
	if err := handle.Exec(ctx, fmt.Sprintf("GRANT REPLICATION SLAVE ON *.* TO %s", account)); err != nil {
		return "", err
	}
	c.logger.Info("created replication user on the source", "user", ReplicationUser)
	return password, nil
}

// configureTargetMaster applies the GTID position from the dump, points
// the target at the source and starts the replica threads.
func (c *Controller) configureTargetMaster(ctx context.Context, gtid, password string) error {
	handle, err := dbconn.Connect(ctx, c.targetMaster, c.dbConfig)
	if err != nil {
		return err
	}
	defer utils.CloseAndLog(handle)

	version, err := handle.SelectGlobalVar(ctx, "version")
	if err != nil {
		return err
	}
	if err := c.applyGtidPurged(ctx, handle, gtid); err != nil {
		return err
	}
	if err := handle.Exec(ctx, c.changeSourceStatement(version), c.changeSourceArgs(password)...); err != nil {
		return err
	}
	if err := c.configureReplicationFilters(ctx, handle); err != nil {
		return err
	}
	return handle.Exec(ctx, startReplicaStatement(version))
}

// applyGtidPurged adds the dump's GTID set to the target. Only the
// subset not yet in GTID_EXECUTED is added, so running a migration on
// top of a finished one works.
func (c *Controller) applyGtidPurged(ctx context.Context, handle *dbconn.Handle, gtid string) error {
	var diff sql.NullString
	rows, err := handle.Query(ctx, "SELECT GTID_SUBTRACT(?, @@GLOBAL.GTID_EXECUTED)", gtid)
	if err != nil {
		return err
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&diff); err != nil {
			return errors.Trace(err)
		}
	}
	if err := rows.Err(); err != nil {
		return errors.Trace(err)
	}
	if !diff.Valid || diff.String == "" {
		c.logger.Info("GTID_EXECUTED already contains the GTID set from the dump, skipping GTID_PURGED")
		return nil
	}
	c.logger.Info("adding new GTID set on the target", "gtid", diff.String)
	return handle.Exec(ctx, "SET @@GLOBAL.GTID_PURGED = ?", "+"+diff.String)
}

// changeSourceStatement builds the CHANGE REPLICATION SOURCE TO (or,
// for older targets, CHANGE MASTER TO) statement. Certificate
// verification is off: ssl-mode REQUIRED means encryption only.
func (c *Controller) changeSourceStatement(targetVersion string) string {
	modern := facts.VersionAtLeast(targetVersion, 8, 0, 22)
	kw := changeSourceKeywords(modern)

	ssl := 0
	if c.source.SSLRequired() {
		ssl = 1
	}
	stmt := fmt.Sprintf("CHANGE %s TO %s_HOST = ?, %s_PORT = ?, %s_USER = ?, %s_PASSWORD = ?, "+
		"%s_AUTO_POSITION = 1, %s_SSL = %d, %s_SSL_VERIFY_SERVER_CERT = 0, %s_SSL_CA = '', %s_SSL_CAPATH = ''",
		kw.clause, kw.prefix, kw.prefix, kw.prefix, kw.prefix, kw.prefix, kw.prefix, ssl, kw.prefix, kw.prefix, kw.prefix)
	if facts.VersionAtLeast(targetVersion, 8, 0, 19) {
		stmt += ", REQUIRE_ROW_FORMAT = 1"
	}
	if facts.VersionAtLeast(targetVersion, 8, 0, 20) {
		stmt += ", REQUIRE_TABLE_PRIMARY_KEY_CHECK = OFF"
	}
	if c.privilegeCheckUser != "" {
		if _, host := splitAccount(c.privilegeCheckUser); host != "" {
			stmt += ", PRIVILEGE_CHECKS_USER = ?@?"
		} else {
			stmt += ", PRIVILEGE_CHECKS_USER = ?"
		}
	}
	return stmt
}

func (c *Controller) changeSourceArgs(password string) []any {
	args := []any{c.source.Host, c.source.Port, ReplicationUser, password}
	if c.privilegeCheckUser != "" {
		user, host := splitAccount(c.privilegeCheckUser)
		args = append(args, user)
		if host != "" {
			args = append(args, host)
		}
	}
	return args
}

// configureReplicationFilters ignores the excluded databases on the
// replica. REPLICATE_IGNORE_DB does not filter statements executed from
// the context of another database, so wildcard table patterns are used
// instead.
func (c *Controller) configureReplicationFilters(ctx context.Context, handle *dbconn.Handle) error {
	if len(c.ignoreDBs) == 0 {
		return nil
	}
	patterns := make([]any, len(c.ignoreDBs))
	marks := make([]string, len(c.ignoreDBs))
	for i, db := range c.ignoreDBs {
		patterns[i] = db + ".%"
		marks[i] = "?"
	}
	stmt := fmt.Sprintf("CHANGE REPLICATION FILTER REPLICATE_WILD_IGNORE_TABLE = (%s)",
		strings.Join(marks, ", "))
	return handle.Exec(ctx, stmt, patterns...)
}

// ensureReplicaRunning polls the target until both replica threads are
// up, within a bounded number of retries.
func (c *Controller) ensureReplicaRunning(ctx context.Context) error {
	handle, err := dbconn.Connect(ctx, c.target, c.dbConfig)
	if err != nil {
		return err
	}
	defer utils.CloseAndLog(handle)

	for attempt := 0; attempt < replicaStartupRetries; attempt++ {
		status, err := c.replicaStatus(ctx, handle)
		if err != nil {
			return err
		}
		if status != nil && status.ioRunning && status.sqlRunning {
			return nil
		}
		c.logger.Info("waiting for replica threads to start", "attempt", attempt+1)
		if err := sleepCtx(ctx, replicaStartupInterval); err != nil {
			return err
		}
	}
	return errors.New("replica threads did not start")
}

// Monitor polls the replica until its lag is within maxSecondsBehind.
// A negative threshold means no waiting: a single status read is taken
// and the call returns. The status toggles between running and lagging
// based on each measurement.
func (c *Controller) Monitor(ctx context.Context, maxSecondsBehind int) error {
	state := c.State()
	handle, err := dbconn.Connect(ctx, c.target, c.dbConfig)
	if err != nil {
		state.fail(err)
		return err
	}
	defer utils.CloseAndLog(handle)

	return c.monitorLag(ctx, maxSecondsBehind, func() (int64, error) {
		return c.readLag(ctx, handle)
	})
}

// monitorLag is the polling loop behind Monitor, split from the
// connection handling so the loop itself can be driven in tests.
func (c *Controller) monitorLag(ctx context.Context, maxSecondsBehind int, readLag func() (int64, error)) error {
	state := c.State()
	for {
		lag, err := readLag()
		if err != nil {
			state.fail(err)
			return err
		}
		state.setSecondsBehind(lag)
		_ = metrics.Gauge(ctx, c.sink, metrics.ReplicationLagMetricName, float64(lag))
		if maxSecondsBehind < 0 {
			return nil
		}
		c.logger.Info("current replication lag", "seconds", lag, "max", maxSecondsBehind)
		if lag <= int64(maxSecondsBehind) {
			state.status.Set(StatusRunning)
			return nil
		}
		state.status.Set(StatusLagging)
		if err := sleepCtx(ctx, monitorInterval); err != nil {
			state.fail(err)
			return err
		}
	}
}

// Stop halts replication on the target. Calling it when already stopped
// is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	state := c.State()
	if state.Status() == StatusStopped {
		return nil
	}
	handle, err := dbconn.Connect(ctx, c.targetMaster, c.dbConfig)
	if err != nil {
		wrapped := &StopError{Err: err}
		state.fail(wrapped)
		return wrapped
	}
	defer utils.CloseAndLog(handle)

	version, err := handle.SelectGlobalVar(ctx, "version")
	if err != nil {
		wrapped := &StopError{Err: err}
		state.fail(wrapped)
		return wrapped
	}
	c.logger.Info("stopping replication on the target")
	for _, stmt := range stopReplicaStatements(version) {
		if err := handle.Exec(ctx, stmt); err != nil {
			wrapped := &StopError{Err: err}
			state.fail(wrapped)
			return wrapped
		}
	}
	state.status.Set(StatusStopped)
	return nil
}

type replicaThreadStatus struct {
	ioRunning  bool
	sqlRunning bool
	lag        sql.NullInt64
}

// replicaStatus reads SHOW REPLICA STATUS and picks the row for this
// migration's source, since the target may have other channels.
func (c *Controller) replicaStatus(ctx context.Context, handle *dbconn.Handle) (*replicaThreadStatus, error) {
	version, err := handle.SelectGlobalVar(ctx, "version")
	if err != nil {
		return nil, err
	}
	modern := facts.VersionAtLeast(version, 8, 0, 22)
	stmt := "SHOW SLAVE STATUS"
	if modern {
		stmt = "SHOW REPLICA STATUS"
	}
	rows, err := handle.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	maps, err := rowsToMaps(rows)
	if err != nil {
		return nil, err
	}
	hostCol, portCol := "Source_Host", "Source_Port"
	ioCol, sqlCol, lagCol := "Replica_IO_Running", "Replica_SQL_Running", "Seconds_Behind_Source"
	if !modern {
		hostCol, portCol = "Master_Host", "Master_Port"
		ioCol, sqlCol, lagCol = "Slave_IO_Running", "Slave_SQL_Running", "Seconds_Behind_Master"
	}
	for _, row := range maps {
		if row[hostCol] != c.source.Host || row[portCol] != fmt.Sprint(c.source.Port) {
			continue
		}
		status := &replicaThreadStatus{
			ioRunning:  row[ioCol] == "Yes",
			sqlRunning: row[sqlCol] == "Yes",
		}
		if lag, ok := row[lagCol]; ok && lag != "" {
			if n, err := strconv.ParseInt(lag, 10, 64); err == nil {
				status.lag = sql.NullInt64{Int64: n, Valid: true}
			}
		}
		return status, nil
	}
	return nil, nil
}

// readLag returns the replica's measured delay behind the source. A
// missing row or NULL lag means the replica is not applying, which the
// monitor treats as an error rather than zero.
func (c *Controller) readLag(ctx context.Context, handle *dbconn.Handle) (int64, error) {
	status, err := c.replicaStatus(ctx, handle)
	if err != nil {
		return 0, err
	}
	if status == nil {
		return 0, errors.New("no replica status row for the migration source")
	}
	if !status.lag.Valid {
		return 0, errors.New("replica lag is not measurable, replication may have stopped")
	}
	return status.lag.Int64, nil
}

type sourceKeywords struct {
	clause string // "REPLICATION SOURCE" or "MASTER"
	prefix string // "SOURCE" or "MASTER"
}

func changeSourceKeywords(modern bool) sourceKeywords {
	if modern {
		return sourceKeywords{clause: "REPLICATION SOURCE", prefix: "SOURCE"}
	}
	return sourceKeywords{clause: "MASTER", prefix: "MASTER"}
}

func startReplicaStatement(version string) string {
	if facts.VersionAtLeast(version, 8, 0, 22) {
		return "START REPLICA"
	}
	return "START SLAVE"
}

func stopReplicaStatements(version string) []string {
	if facts.VersionAtLeast(version, 8, 0, 22) {
		return []string{"STOP REPLICA", "RESET REPLICA ALL"}
	}
	return []string{"STOP SLAVE", "RESET SLAVE ALL"}
}

// splitAccount splits "user@host" into its parts; host may be empty.
func splitAccount(account string) (user, host string) {
	user, host, _ = strings.Cut(account, "@")
	return user, host
}

// rowsToMaps scans every row into a column-name-keyed map of strings.
// SHOW REPLICA STATUS has dozens of columns and we only care about a
// handful, so positional scanning is not practical.
func rowsToMaps(rows *sql.Rows) ([]map[string]string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Trace(err)
	}
	var out []map[string]string
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Trace(err)
		}
		row := make(map[string]string, len(cols))
		for i, col := range cols {
			if values[i].Valid {
				row[col] = values[i].String
			}
		}
		out = append(out, row)
	}
	return out, errors.Trace(rows.Err())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
