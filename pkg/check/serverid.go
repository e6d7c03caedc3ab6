package check

import "fmt"

func init() {
	registerCheck(6, "server-id", serverIDCheck)
}

func serverIDCheck(r Resources) error {
	if r.Source.ServerID == r.Target.ServerID {
		return fmt.Errorf("source and target have the same server_id (%s)", r.Source.ServerID)
	}
	return nil
}
