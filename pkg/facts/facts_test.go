package facts

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseGlobalGrants(t *testing.T) {
	grants := ParseGlobalGrants("GRANT SELECT, replication slave ON *.* TO `admin`@`%`")
	assert.Equal(t, []string{"SELECT", "REPLICATION SLAVE"}, grants)

	grants = ParseGlobalGrants("GRANT ALL PRIVILEGES ON *.* TO `root`@`localhost` WITH GRANT OPTION")
	assert.Equal(t, []string{"ALL PRIVILEGES"}, grants)

	// Schema-scoped grants never count as global.
	assert.Nil(t, ParseGlobalGrants("GRANT SELECT ON `mydb`.* TO `admin`@`%`"))
	assert.Nil(t, ParseGlobalGrants("REVOKE SELECT ON *.* FROM `admin`@`%`"))
	assert.Nil(t, ParseGlobalGrants("GRANT PROXY"))
}

func TestHasGlobalGrant(t *testing.T) {
	f := &ServerFacts{Grants: []string{"SELECT", "REPLICATION SLAVE"}}
	assert.True(t, f.HasGlobalGrant("REPLICATION SLAVE"))
	assert.False(t, f.HasGlobalGrant("SUPER"))

	all := &ServerFacts{Grants: []string{"ALL PRIVILEGES"}}
	assert.True(t, all.HasGlobalGrant("REPLICATION SLAVE"))
	assert.True(t, all.HasGlobalGrant("SUPER"))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}
