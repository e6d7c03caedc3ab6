package facts

import (
	"strconv"
	"strings"
)

// parseVersion extracts the leading numeric components from a MySQL
// version string such as "8.0.30" or "8.0.30-debug". Missing or
// non-numeric components parse as zero.
func parseVersion(version string) (major, minor, patch int) {
	// Strip build suffixes like "-log" or "-0ubuntu0.22.04.1".
	if idx := strings.IndexAny(version, "-+~ "); idx >= 0 {
		version = version[:idx]
	}
	parts := strings.SplitN(version, ".", 3)
	read := func(i int) int {
		if i >= len(parts) {
			return 0
		}
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return 0
		}
		return n
	}
	return read(0), read(1), read(2)
}

// VersionAtLeast reports whether a MySQL version string is
// >= major.minor.patch.
func VersionAtLeast(version string, major, minor, patch int) bool {
	a, b, c := parseVersion(version)
	if a != major {
		return a > major
	}
	if b != minor {
		return b > minor
	}
	return c >= patch
}

// VersionAtLeast reports whether the server version is >= major.minor.patch.
func (f *ServerFacts) VersionAtLeast(major, minor, patch int) bool {
	return VersionAtLeast(f.Version, major, minor, patch)
}

// VersionBefore reports whether the server version is < major.minor.patch.
func (f *ServerFacts) VersionBefore(major, minor, patch int) bool {
	return !f.VersionAtLeast(major, minor, patch)
}
