// Package dump streams a consistent snapshot from the source to the
// target as a mysqldump/mysql subprocess pair connected by a pipe.
package dump

import (
	"fmt"
	"strconv"

	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/check"
	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/dbconn"
	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/facts"
)

// These are really consts, but set to var for testing.
var (
	dumpBinary    = "mysqldump"
	restoreBinary = "mysql"
)

// Spec says what to transfer. It is derived from server facts and
// operator filters and validated before the pipeline starts.
type Spec struct {
	// Databases to include. System schemas are dropped here no matter
	// how the caller assembled the list.
	Databases []string

	// SourceSize is the measured aggregate size of the non-excluded
	// schemas, in bytes.
	SourceSize int64

	// MaxTotalSize refuses the transfer up front when the source is
	// bigger than this. Zero means unlimited.
	MaxTotalSize int64

	// SkipColumnStats is needed when either side runs MySQL < 8.0,
	// which does not support dumping column statistics.
	SkipColumnStats bool
}

// NewSpec builds a Spec, filtering out system schemas from the included
// databases regardless of what the caller passed.
func NewSpec(databases []string, sourceSize, maxTotalSize int64, skipColumnStats bool) *Spec {
	system := make(map[string]struct{}, len(facts.SystemSchemas))
	for _, s := range facts.SystemSchemas {
		system[s] = struct{}{}
	}
	included := make([]string, 0, len(databases))
	for _, db := range databases {
		if _, ok := system[db]; ok {
			continue
		}
		included = append(included, db)
	}
	return &Spec{
		Databases:       included,
		SourceSize:      sourceSize,
		MaxTotalSize:    maxTotalSize,
		SkipColumnStats: skipColumnStats,
	}
}

// SizeLimitExceededError is a pre-flight refusal, raised before any
// subprocess is spawned.
type SizeLimitExceededError struct {
	Size  int64
	Limit int64
}

func (e *SizeLimitExceededError) Error() string {
	return fmt.Sprintf("total size of databases to migrate (%d bytes) exceeds the limit (%d bytes)", e.Size, e.Limit)
}

// PipelineError means the dump or restore subprocess failed. The target
// is left in an undefined, non-usable state and the run aborts.
type PipelineError struct {
	Stage      string // "dump" or "restore"
	Err        error
	StderrTail string
}

func (e *PipelineError) Error() string {
	if e.StderrTail != "" {
		return fmt.Sprintf("%s subprocess failed: %v: %s", e.Stage, e.Err, e.StderrTail)
	}
	return fmt.Sprintf("%s subprocess failed: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// dumpArgs builds the mysqldump invocation. --flush-logs and
// --master-data would be nice to have but require FLUSH TABLES WITH
// READ LOCK permissions that managed-cloud admin users do not hold.
func dumpArgs(source *dbconn.Endpoint, spec *Spec, method check.Method) []string {
	args := []string{
		"-h", source.Host,
		"-P", strconv.Itoa(source.Port),
		"-u", source.Username,
		"-p" + source.Password,
		"--compress",
		"--skip-lock-tables",
		"--single-transaction",
		"--hex-blob",
		"--routines",
		"--triggers",
		"--events",
	}
	if method == check.MethodReplication {
		args = append(args, "--set-gtid-purged=ON")
	} else {
		args = append(args, "--set-gtid-purged=OFF")
	}
	if source.SSLRequired() {
		args = append(args, "--ssl-mode=REQUIRED")
	}
	if spec.SkipColumnStats {
		args = append(args, "--skip-column-statistics")
	}
	args = append(args, "--databases", "--")
	args = append(args, spec.Databases...)
	return args
}

// restoreArgs builds the mysql invocation that consumes the dump.
func restoreArgs(target *dbconn.Endpoint) []string {
	args := []string{
		"-h", target.Host,
		"-P", strconv.Itoa(target.Port),
		"-u", target.Username,
		"-p" + target.Password,
		"--compress",
	}
	if target.SSLRequired() {
		args = append(args, "--ssl-mode=REQUIRED")
	}
	return args
}
