package migration

import (
	"context"
	"log/slog"
	"time"

	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/check"
	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/dbconn"
	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/dump"
	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/facts"
	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/metrics"
	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/repl"
	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/report"
	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/utils"
)

// Runner drives one migration end to end: gather facts, decide the
// method, move the data, and report. A single control flow owns the
// whole run; the only concurrency is the subprocess pair inside the
// dump pipeline.
type Runner struct {
	migration    *Migration
	source       *dbconn.Endpoint
	target       *dbconn.Endpoint
	targetMaster *dbconn.Endpoint
	ignoreDBs    []string
	dbConfig     *dbconn.DBConfig
	reporter     *report.Writer
	sink         metrics.Sink
	logger       *slog.Logger

	startTime time.Time
}

func NewRunner(m *Migration) (*Runner, error) {
	source, target, targetMaster, err := m.normalizeOptions()
	if err != nil {
		return nil, err
	}
	ignoreDBs := append([]string{}, facts.SystemSchemas...)
	ignoreDBs = append(ignoreDBs, m.filterList()...)
	var sink metrics.Sink = &metrics.NoopSink{}
	if m.LogMetrics {
		sink = metrics.NewLogSink(slog.Default())
	}
	return &Runner{
		migration:    m,
		source:       source,
		target:       target,
		targetMaster: targetMaster,
		ignoreDBs:    ignoreDBs,
		dbConfig:     dbconn.NewDBConfig(),
		reporter:     report.NewWriter(m.OutputMetaFile),
		sink:         sink,
		logger:       slog.Default(),
	}, nil
}

func (r *Runner) SetMetricsSink(sink metrics.Sink) {
	r.sink = sink
}

func (r *Runner) SetLogger(logger *slog.Logger) {
	r.logger = logger
}

// Run performs the migration. Every fatal error is rendered through the
// reporter before it propagates, so consumers never have to scrape logs
// to learn why a run died.
func (r *Runner) Run(ctx context.Context) error {
	r.startTime = time.Now()
	r.logger.Info("starting migration",
		"source", r.source.Redacted(), "target", r.target.Redacted())

	sourceFacts, targetFacts, err := r.gatherFacts(ctx)
	if err != nil {
		return r.failed("", err)
	}

	// Pre-checks orthogonal to method selection.
	if n := len(sourceFacts.Databases); n > MaxDatabases {
		return r.failed("", &TooManyDatabasesError{Count: n, Limit: MaxDatabases})
	}
	if r.migration.DBsMaxTotalSize >= 0 && sourceFacts.TotalSizeBytes > r.migration.DBsMaxTotalSize {
		return r.failed("", &dump.SizeLimitExceededError{
			Size:  sourceFacts.TotalSizeBytes,
			Limit: r.migration.DBsMaxTotalSize,
		})
	}
	if len(sourceFacts.Databases) == 0 {
		if !r.migration.AllowSourceWithoutDBs {
			return r.failed("", ErrNothingToMigrate)
		}
		r.logger.Warn("no databases to migrate")
		return r.reporter.Write(report.ForSuccess(check.MethodDump, "no databases to migrate", ""))
	}

	forced, _ := check.ParseMethod(r.migration.ForceMethod)
	decision := check.Validate(check.Resources{
		Source:            sourceFacts,
		Target:            targetFacts,
		HasMasterEndpoint: r.targetMaster != nil,
	}, forced)
	for _, result := range decision.Satisfied {
		if result.Passed {
			r.logger.Debug("pre-check passed", "check", result.Name)
		} else {
			r.logger.Info("pre-check failed", "check", result.Name, "detail", result.Detail)
		}
	}
	r.logger.Info("method decided", "method", decision.Method, "reason", decision.Reason)

	if r.migration.ValidateOnly {
		return r.reporter.Write(report.ForValidation(decision))
	}

	outcome, err := r.transfer(ctx, sourceFacts, targetFacts, decision.Method)
	if err != nil {
		return r.failed(decision.Method, err)
	}

	if decision.Method == check.MethodReplication {
		if err := r.replicate(ctx, outcome.GtidPosition); err != nil {
			return r.failed(decision.Method, err)
		}
	}

	_ = metrics.Gauge(ctx, r.sink, metrics.MigrationDurationMetricName, time.Since(r.startTime).Seconds())
	message := "migration finished"
	if decision.Method == check.MethodReplication && !r.migration.StopReplication {
		message = "migration finished, replication is still running: stop it after switching to the target"
		r.logger.Info("replication is still running, make sure to stop it after switching to the target")
	}
	return r.reporter.Write(report.ForSuccess(decision.Method, message, outcome.GtidPosition))
}

// gatherFacts connects to both servers and snapshots their state. The
// connections are not reused: the pipeline and the controller each open
// their own.
func (r *Runner) gatherFacts(ctx context.Context) (*facts.ServerFacts, *facts.ServerFacts, error) {
	sourceHandle, err := dbconn.Connect(ctx, r.source, r.dbConfig)
	if err != nil {
		return nil, nil, err
	}
	defer utils.CloseAndLog(sourceHandle)
	targetHandle, err := dbconn.Connect(ctx, r.target, r.dbConfig)
	if err != nil {
		return nil, nil, err
	}
	defer utils.CloseAndLog(targetHandle)

	sourceFacts, err := facts.Gather(ctx, sourceHandle, r.ignoreDBs)
	if err != nil {
		return nil, nil, err
	}
	targetFacts, err := facts.Gather(ctx, targetHandle, r.ignoreDBs)
	if err != nil {
		return nil, nil, err
	}
	return sourceFacts, targetFacts, nil
}

func (r *Runner) transfer(ctx context.Context, sourceFacts, targetFacts *facts.ServerFacts,
	method check.Method) (*dump.Outcome, error) {
	var maxTotalSize int64
	if r.migration.DBsMaxTotalSize >= 0 {
		maxTotalSize = r.migration.DBsMaxTotalSize
	}
	skipColumnStats := sourceFacts.VersionBefore(8, 0, 0) || targetFacts.VersionBefore(8, 0, 0)
	spec := dump.NewSpec(sourceFacts.Databases, sourceFacts.TotalSizeBytes, maxTotalSize, skipColumnStats)
	pipeline := dump.NewPipeline(spec, r.source, r.target, r.sink, r.logger)
	return pipeline.Run(ctx, method)
}

func (r *Runner) replicate(ctx context.Context, gtid string) error {
	controller := repl.NewController(r.source, r.target, r.targetMaster, r.ignoreDBs,
		r.migration.PrivilegeCheckUser, r.sink, r.logger)
	if err := controller.Setup(ctx, gtid); err != nil {
		return err
	}
	if err := controller.Monitor(ctx, r.migration.SecondsBehindMaster); err != nil {
		return err
	}
	if r.migration.StopReplication {
		return controller.Stop(ctx)
	}
	return nil
}

// failed reports a fatal error in the structured format and passes it
// through unchanged. A reporting failure is logged, never masks err.
func (r *Runner) failed(method check.Method, err error) error {
	if reportErr := r.reporter.Write(report.ForFailure(method, err)); reportErr != nil {
		r.logger.Error("could not write failure report", "error", reportErr)
	}
	return err
}
