package check

import "errors"

func init() {
	registerCheck(4, "master-endpoint", masterCheck)
}

// Replication is configured through the target's master, so a
// master-capable endpoint has to be supplied up front.
func masterCheck(r Resources) error {
	if !r.HasMasterEndpoint {
		return errors.New("no target master endpoint was supplied")
	}
	return nil
}
