package dump

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/check"
	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/dbconn"
	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/metrics"
	"github.com/pingcap/errors"
	"golang.org/x/sync/errgroup"
)

// stderrTailSize bounds how much subprocess stderr is kept for error
// reporting.
const stderrTailSize = 4096

// Outcome is what the pipeline hands back to the caller.
type Outcome struct {
	// GtidPosition is the source's executed GTID set at the dump's
	// consistency point, captured from the dump header. Empty for the
	// dump method.
	GtidPosition string

	// BytesWritten counts the filtered bytes streamed into the restore.
	BytesWritten int64
}

// Pipeline wires a dump subprocess on the source to a restore
// subprocess on the target. The pipe between them provides the
// backpressure: the dump blocks whenever the restore cannot keep up.
type Pipeline struct {
	spec     *Spec
	source   *dbconn.Endpoint
	target   *dbconn.Endpoint
	dbConfig *dbconn.DBConfig
	sink     metrics.Sink
	logger   *slog.Logger
}

func NewPipeline(spec *Spec, source, target *dbconn.Endpoint, sink metrics.Sink, logger *slog.Logger) *Pipeline {
	if sink == nil {
		sink = &metrics.NoopSink{}
	}
	return &Pipeline{
		spec:     spec,
		source:   source,
		target:   target,
		dbConfig: dbconn.NewDBConfig(),
		sink:     sink,
		logger:   logger,
	}
}

// Run executes the transfer. For the replication method the GTID
// position is captured from the dump header and returned in the
// outcome. A nonzero exit from either subprocess fails the whole
// pipeline; no partial success is modeled.
func (p *Pipeline) Run(ctx context.Context, method check.Method) (*Outcome, error) {
	if p.spec.MaxTotalSize > 0 && p.spec.SourceSize > p.spec.MaxTotalSize {
		return nil, &SizeLimitExceededError{Size: p.spec.SourceSize, Limit: p.spec.MaxTotalSize}
	}

	preamble, err := p.restorePreamble(ctx)
	if err != nil {
		return nil, err
	}
	return p.runProcesses(ctx, method, preamble)
}

func (p *Pipeline) runProcesses(ctx context.Context, method check.Method, preamble string) (*Outcome, error) {
	// Both subprocesses hang off the errgroup's context: when the pump
	// fails (the restore died and its pipe broke), the dump must be
	// killed too, or it blocks forever writing into a pipe nobody reads.
	g, gctx := errgroup.WithContext(ctx)
	dumpCmd := exec.CommandContext(gctx, dumpBinary, dumpArgs(p.source, p.spec, method)...)
	restoreCmd := exec.CommandContext(gctx, restoreBinary, restoreArgs(p.target)...)

	dumpOut, err := dumpCmd.StdoutPipe()
	if err != nil {
		return nil, errors.Trace(err)
	}
	dumpErr, err := dumpCmd.StderrPipe()
	if err != nil {
		return nil, errors.Trace(err)
	}
	restoreIn, err := restoreCmd.StdinPipe()
	if err != nil {
		return nil, errors.Trace(err)
	}
	restoreErr, err := restoreCmd.StderrPipe()
	if err != nil {
		return nil, errors.Trace(err)
	}

	p.logger.Info("starting dump/restore pipeline",
		"databases", p.spec.Databases,
		"source", p.source.Redacted(),
		"target", p.target.Redacted(),
		"method", string(method))

	if err := dumpCmd.Start(); err != nil {
		return nil, &PipelineError{Stage: "dump", Err: err}
	}
	if err := restoreCmd.Start(); err != nil {
		_ = dumpCmd.Process.Kill()
		_ = dumpCmd.Wait()
		return nil, &PipelineError{Stage: "restore", Err: err}
	}

	processor := &Processor{}
	outcome := &Outcome{}
	var dumpTail, restoreTail tailBuffer

	g.Go(func() error {
		defer restoreIn.Close()
		return p.pump(dumpOut, restoreIn, preamble, processor, &outcome.BytesWritten)
	})
	g.Go(func() error {
		return p.drainStderr("mysqldump", dumpErr, &dumpTail)
	})
	g.Go(func() error {
		return p.drainStderr("mysql", restoreErr, &restoreTail)
	})
	pumpErr := g.Wait()

	dumpExit := dumpCmd.Wait()
	restoreExit := restoreCmd.Wait()

	// The restore's exit is checked first: when it dies the dump gets
	// killed through the group context, and reporting the kill would
	// hide the actual failure.
	if restoreExit != nil {
		return nil, &PipelineError{Stage: "restore", Err: restoreExit, StderrTail: restoreTail.String()}
	}
	if dumpExit != nil {
		return nil, &PipelineError{Stage: "dump", Err: dumpExit, StderrTail: dumpTail.String()}
	}
	if pumpErr != nil {
		return nil, &PipelineError{Stage: "restore", Err: pumpErr, StderrTail: restoreTail.String()}
	}

	outcome.GtidPosition = processor.GTID()
	_ = metrics.Counter(ctx, p.sink, metrics.DumpBytesMetricName, float64(outcome.BytesWritten))
	p.logger.Info("dump/restore pipeline finished", "bytes", outcome.BytesWritten)
	return outcome, nil
}

// restorePreamble inspects the target before the transfer starts. If
// sql_require_primary_key is enabled globally, tables without a primary
// key could not be imported, so it is disabled for the restore session.
func (p *Pipeline) restorePreamble(ctx context.Context) (string, error) {
	handle, err := dbconn.Connect(ctx, p.target, p.dbConfig)
	if err != nil {
		return "", err
	}
	defer handle.Close()
	requirePK, err := handle.SelectGlobalVar(ctx, "sql_require_primary_key")
	if err != nil {
		return "", err
	}
	if requirePK == "1" {
		return "SET SESSION sql_require_primary_key = 0;\n", nil
	}
	return "", nil
}

// pump copies the dump stream into the restore, one line at a time,
// through the processor. Lines in a dump can be very large (extended
// INSERTs), so this reads unbounded lines rather than using a scanner.
func (p *Pipeline) pump(out io.Reader, in io.WriteCloser, preamble string, processor *Processor, bytesWritten *int64) error {
	writer := bufio.NewWriter(in)
	if preamble != "" {
		if _, err := writer.WriteString(preamble); err != nil {
			return errors.Trace(err)
		}
	}
	reader := bufio.NewReader(out)
	for {
		line, readErr := reader.ReadString('\n')
		if line != "" {
			processed := processor.ProcessLine(strings.TrimRight(line, "\r\n"))
			if processed != "" {
				n, err := writer.WriteString(processed + "\n")
				if err != nil {
					return errors.Trace(err)
				}
				*bytesWritten += int64(n)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return errors.Trace(readErr)
		}
	}
	return errors.Trace(writer.Flush())
}

// drainStderr logs subprocess stderr as it arrives and keeps the tail
// for the error report.
func (p *Pipeline) drainStderr(name string, r io.Reader, tail *tailBuffer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		tail.Write(line)
		p.logger.Warn("subprocess output", "binary", name, "line", line)
	}
	// A closed pipe at process exit is the normal end of stream.
	return nil
}

// tailBuffer keeps the last stderrTailSize bytes of what was written.
type tailBuffer struct {
	data []byte
}

func (t *tailBuffer) Write(line string) {
	t.data = append(t.data, line...)
	t.data = append(t.data, '\n')
	if len(t.data) > stderrTailSize {
		t.data = t.data[len(t.data)-stderrTailSize:]
	}
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.data))
}
