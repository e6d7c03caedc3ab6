package check

import (
	"fmt"
	"strings"
)

func init() {
	registerCheck(2, "engine-support", engineCheck)
}

// A single non-InnoDB table disqualifies replication entirely, not just
// that table: replicated DML against other engines is not safe.
func engineCheck(r Resources) error {
	if len(r.Source.NonInnoDBEngines) > 0 {
		return fmt.Errorf("only the InnoDB engine is supported, source also uses: %s",
			strings.Join(r.Source.NonInnoDBEngines, ", "))
	}
	return nil
}
