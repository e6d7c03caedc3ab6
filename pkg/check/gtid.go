package check

import (
	"fmt"
	"strings"

	gomysql "github.com/go-mysql-org/go-mysql/mysql"
)

func init() {
	registerCheck(3, "gtid-mode", gtidCheck)
}

// gtid_mode must be ON on both sides, and the source must already have
// a well-formed executed GTID set for auto-positioning to resume from.
func gtidCheck(r Resources) error {
	if !strings.EqualFold(r.Source.GTIDMode, "ON") {
		return fmt.Errorf("gtid_mode must be ON on the source, got %s", r.Source.GTIDMode)
	}
	if !strings.EqualFold(r.Target.GTIDMode, "ON") {
		return fmt.Errorf("gtid_mode must be ON on the target, got %s", r.Target.GTIDMode)
	}
	if r.Source.ExecutedGtidSet == "" {
		return fmt.Errorf("the source's executed GTID set is empty")
	}
	if _, err := gomysql.ParseMysqlGTIDSet(r.Source.ExecutedGtidSet); err != nil {
		return fmt.Errorf("the source's executed GTID set is not valid: %v", err)
	}
	return nil
}
