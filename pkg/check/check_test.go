package check

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/facts"
)

const gtidSet = "0ede210b-7b27-11eb-9e0b-0242ac180002:1-5"

func replicableResources() Resources {
	return Resources{
		Source: &facts.ServerFacts{
			Role:            "source",
			Version:         "5.7.44",
			GTIDMode:        "ON",
			BinlogFormat:    "ROW",
			ServerID:        "1",
			ExecutedGtidSet: gtidSet,
			Databases:       []string{"app"},
			Grants:          []string{"SELECT", "REPLICATION SLAVE"},
		},
		Target: &facts.ServerFacts{
			Role:     "target",
			Version:  "8.0.30",
			GTIDMode: "ON",
			ServerID: "2",
		},
		HasMasterEndpoint: true,
	}
}

func TestNamesOrder(t *testing.T) {
	assert.Equal(t, []string{
		"version-support",
		"engine-support",
		"gtid-mode",
		"master-endpoint",
		"replication-grants",
		"server-id",
		"binlog-format",
	}, Names())
}

func TestValidateAllChecksPass(t *testing.T) {
	decision := Validate(replicableResources(), "")
	assert.Equal(t, MethodReplication, decision.Method)
	assert.Empty(t, decision.Reason)
	require.Len(t, decision.Satisfied, len(Names()))
	for _, result := range decision.Satisfied {
		assert.True(t, result.Passed, result.Name)
	}
}

func TestValidateReasonNamesFirstFailure(t *testing.T) {
	// Break two checks at once: the earlier one must own the reason.
	r := replicableResources()
	r.Source.NonInnoDBEngines = []string{"MYISAM"}
	r.Source.ServerID = "2"

	decision := Validate(r, "")
	assert.Equal(t, MethodDump, decision.Method)
	assert.Contains(t, decision.Reason, "engine-support:")
	assert.Contains(t, decision.Reason, "MYISAM")
}

func TestValidateEngineFailureAlone(t *testing.T) {
	r := replicableResources()
	r.Source.NonInnoDBEngines = []string{"MyISAM"}

	decision := Validate(r, "")
	assert.Equal(t, MethodDump, decision.Method)
	assert.Contains(t, decision.Reason, "engine-support")
}

func TestValidateNoMasterEndpoint(t *testing.T) {
	r := replicableResources()
	r.HasMasterEndpoint = false

	decision := Validate(r, "")
	assert.Equal(t, MethodDump, decision.Method)
	assert.Contains(t, decision.Reason, "master-endpoint")
}

func TestValidateUnsupportedVersions(t *testing.T) {
	tests := []struct {
		name            string
		source, target  string
		wantReplication bool
	}{
		{"5.7 to 8.0", "5.7.44", "8.0.30", true},
		{"8.0 to 8.0", "8.0.28", "8.0.30", true},
		{"5.6 source", "5.6.51", "8.0.30", false},
		{"8.1 source", "8.1.0", "8.0.30", false},
		{"5.7 target", "5.7.44", "5.7.44", false},
		{"8.1 target", "8.0.30", "8.1.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := replicableResources()
			r.Source.Version = tt.source
			r.Target.Version = tt.target
			decision := Validate(r, "")
			if tt.wantReplication {
				assert.Equal(t, MethodReplication, decision.Method)
			} else {
				assert.Equal(t, MethodDump, decision.Method)
				assert.Contains(t, decision.Reason, "version-support")
			}
		})
	}
}

func TestValidateGtid(t *testing.T) {
	r := replicableResources()
	r.Source.GTIDMode = "OFF"
	decision := Validate(r, "")
	assert.Equal(t, MethodDump, decision.Method)
	assert.Contains(t, decision.Reason, "gtid-mode")

	r = replicableResources()
	r.Source.ExecutedGtidSet = ""
	decision = Validate(r, "")
	assert.Contains(t, decision.Reason, "gtid-mode")

	r = replicableResources()
	r.Source.ExecutedGtidSet = "not a gtid set"
	decision = Validate(r, "")
	assert.Contains(t, decision.Reason, "gtid-mode")
}

func TestValidateGrants(t *testing.T) {
	r := replicableResources()
	r.Source.Grants = []string{"SELECT"}
	decision := Validate(r, "")
	assert.Contains(t, decision.Reason, "replication-grants")

	r = replicableResources()
	r.Source.Grants = []string{"ALL PRIVILEGES"}
	decision = Validate(r, "")
	assert.Equal(t, MethodReplication, decision.Method)
}

func TestValidateServerID(t *testing.T) {
	r := replicableResources()
	r.Target.ServerID = "1"
	decision := Validate(r, "")
	assert.Contains(t, decision.Reason, "server-id")
}

func TestValidateBinlogFormat(t *testing.T) {
	r := replicableResources()
	r.Source.BinlogFormat = "STATEMENT"
	decision := Validate(r, "")
	assert.Contains(t, decision.Reason, "binlog-format")
	assert.Contains(t, decision.Reason, "STATEMENT")
}

func TestValidateForcedMethod(t *testing.T) {
	// A forced method wins regardless of the facts, even broken ones.
	r := replicableResources()
	r.Source.NonInnoDBEngines = []string{"MyISAM"}
	r.HasMasterEndpoint = false

	first := Validate(r, MethodReplication)
	assert.Equal(t, MethodReplication, first.Method)
	assert.Equal(t, "forced by operator", first.Reason)
	assert.Empty(t, first.Satisfied)

	// Deterministic: same inputs, same decision.
	second := Validate(r, MethodReplication)
	assert.Equal(t, first, second)

	forced := Validate(replicableResources(), MethodDump)
	assert.Equal(t, MethodDump, forced.Method)
	assert.Equal(t, "forced by operator", forced.Reason)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("replication")
	require.NoError(t, err)
	assert.Equal(t, MethodReplication, m)

	m, err = ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, Method(""), m)

	_, err = ParseMethod("rsync")
	assert.Error(t, err)
}
