package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/check"
)

func TestForValidation(t *testing.T) {
	r := ForValidation(check.MethodDecision{Method: check.MethodDump, Reason: "engine-support: only InnoDB is supported"})
	assert.Equal(t, "dump", r.Method)
	assert.Equal(t, "engine-support: only InnoDB is supported", r.Reason)
	assert.Empty(t, r.Status)
}

func TestForSuccessAndFailure(t *testing.T) {
	r := ForSuccess(check.MethodReplication, "migration finished", "uuid:1-5")
	assert.Equal(t, StatusCompleted, r.Status)
	assert.Equal(t, "uuid:1-5", r.DumpGtids)

	r = ForFailure(check.MethodDump, assert.AnError)
	assert.Equal(t, StatusFailed, r.Status)
	assert.Contains(t, r.Message, assert.AnError.Error())
}

func TestWriteToStdout(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter("")
	w.stdout = &buf

	require.NoError(t, w.Write(ForSuccess(check.MethodReplication, "migration finished", "uuid:1-5")))

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "replication", decoded["method"])
	assert.Equal(t, "completed", decoded["status"])
	assert.Equal(t, "uuid:1-5", decoded["dump_gtids"])
	assert.NotContains(t, decoded, "reason")
}

func TestWriteToFileNotStdout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta.json")
	var buf bytes.Buffer
	w := NewWriter(path)
	w.stdout = &buf

	require.NoError(t, w.Write(ForValidation(check.MethodDecision{Method: check.MethodReplication})))

	// The file gets the document; stdout stays silent.
	assert.Zero(t, buf.Len())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "replication", decoded["method"])
}

func TestWriteSingleDocument(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter("")
	w.stdout = &buf
	require.NoError(t, w.Write(ForFailure(check.MethodDump, assert.AnError)))

	assert.Equal(t, byte('\n'), buf.Bytes()[buf.Len()-1])
	assert.Equal(t, 1, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestReportString(t *testing.T) {
	r := ForSuccess(check.MethodReplication, "migration finished", "uuid:1-5")
	s := r.String()
	assert.Contains(t, s, "method=replication")
	assert.Contains(t, s, "status=completed")
	assert.Contains(t, s, "dump_gtids=uuid:1-5")
}
