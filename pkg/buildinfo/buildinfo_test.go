package buildinfo

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func resetForTest() {
	once = sync.Once{}
	ldflagsVersion = ""
	ldflagsCommit = ""
	ldflagsDate = ""
}

func TestBuildInfoDefaultsWithoutLdflags(t *testing.T) {
	resetForTest()

	info := Get()
	assert.NotEmpty(t, info.GoVer, "GoVer should always be set")
	// Version should be "dev" since we didn't inject via ldflags
	// and test binaries don't have a module version tag.
	assert.Equal(t, "dev", info.Version)
}

func TestBuildInfoLdflagsOverridesVCS(t *testing.T) {
	resetForTest()

	Set("v1.2.3", "abc123def456", "2026-02-25T00:00:00Z")
	info := Get()

	assert.Equal(t, "v1.2.3", info.Version)
	assert.Equal(t, "abc123def456", info.Commit)
	assert.Equal(t, "2026-02-25T00:00:00Z", info.Date)
	assert.NotEmpty(t, info.GoVer)
}

func TestBuildInfoString(t *testing.T) {
	resetForTest()

	Set("v2.0.0", "0123456789abcdef0123", "2026-02-25T00:00:00Z")
	info := Get()
	info.Modified = true

	assert.Equal(t, "v2.0.0 (commit 0123456789ab-dirty, built 2026-02-25T00:00:00Z, "+info.GoVer+")", info.String())
}
