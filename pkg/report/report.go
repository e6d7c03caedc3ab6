// Package report renders the outcome of a migration run in a structured,
// machine-parseable form. Exactly one destination receives the structured
// document per invocation: stdout by default, or a file when an output
// path is configured, never both.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pingcap/errors"

	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/check"
)

// Report status values.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Report is the structured outcome of one run. Field names are part of the
// external interface and must not change: consumers parse them.
type Report struct {
	Method string `json:"method"`
	// Reason is set in validate-only mode: empty when every check passed,
	// otherwise the first failing check and why.
	Reason string `json:"reason,omitempty"`
	// Status and Message are set after an actual migration attempt.
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
	DumpGtids string `json:"dump_gtids,omitempty"`
}

// ForValidation builds the report for a validate-only run.
func ForValidation(decision check.MethodDecision) *Report {
	return &Report{
		Method: string(decision.Method),
		Reason: decision.Reason,
	}
}

// ForSuccess builds the report for a completed migration. dumpGtids is the
// GTID position captured from the dump header, empty for the dump method.
func ForSuccess(method check.Method, message, dumpGtids string) *Report {
	return &Report{
		Method:    string(method),
		Status:    StatusCompleted,
		Message:   message,
		DumpGtids: dumpGtids,
	}
}

// ForFailure builds the report for a run that ended with a fatal error.
// The error is rendered in the same structured format as success so that
// consumers never have to scrape a stack trace.
func ForFailure(method check.Method, err error) *Report {
	return &Report{
		Method:  string(method),
		Status:  StatusFailed,
		Message: err.Error(),
	}
}

// String renders the report as plain text for humans. The structured form
// is what Write emits; this is only used in log messages.
func (r *Report) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "method=%s", r.Method)
	if r.Status != "" {
		fmt.Fprintf(&sb, " status=%s", r.Status)
	}
	if r.Reason != "" {
		fmt.Fprintf(&sb, " reason=%q", r.Reason)
	}
	if r.Message != "" {
		fmt.Fprintf(&sb, " message=%q", r.Message)
	}
	if r.DumpGtids != "" {
		fmt.Fprintf(&sb, " dump_gtids=%s", r.DumpGtids)
	}
	return sb.String()
}

// Writer sends the structured report to its single destination.
type Writer struct {
	path   string
	stdout io.Writer
}

// NewWriter returns a Writer. An empty path selects stdout.
func NewWriter(path string) *Writer {
	return &Writer{path: path, stdout: os.Stdout}
}

// Write marshals the report and emits it as a single JSON document followed
// by a newline. When a file path is configured the file is created or
// truncated and stdout receives nothing.
func (w *Writer) Write(r *Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Annotate(err, "marshaling report")
	}
	data = append(data, '\n')
	if w.path != "" {
		if err := os.WriteFile(w.path, data, 0o644); err != nil {
			return errors.Annotatef(err, "writing report to %s", w.path)
		}
		return nil
	}
	_, err = w.stdout.Write(data)
	return errors.Annotate(err, "writing report to stdout")
}
