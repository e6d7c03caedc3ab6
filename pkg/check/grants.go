package check

import "errors"

func init() {
	registerCheck(5, "replication-grants", grantsCheck)
}

// The connecting source user must be able to act as a replication
// source and to provision the dedicated replication user.
func grantsCheck(r Resources) error {
	if !r.Source.HasGlobalGrant("REPLICATION SLAVE") {
		return errors.New("the source user does not have replication permissions")
	}
	return nil
}
