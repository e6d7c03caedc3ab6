package check

import "fmt"

func init() {
	registerCheck(1, "version-support", versionCheck)
}

// The replication method supports 5.7.x -> 8.0.x and 8.0.x -> 8.0.x.
func versionCheck(r Resources) error {
	sourceOK := r.Source.VersionAtLeast(5, 7, 0) && r.Source.VersionBefore(8, 1, 0)
	targetOK := r.Target.VersionAtLeast(8, 0, 0) && r.Target.VersionBefore(8, 1, 0)
	if !sourceOK || !targetOK {
		return fmt.Errorf("replication is not supported between MySQL versions: source %s, target %s",
			r.Source.Version, r.Target.Version)
	}
	return nil
}
