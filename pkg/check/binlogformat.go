package check

import (
	"fmt"
	"strings"
)

func init() {
	registerCheck(7, "binlog-format", binlogFormatCheck)
}

func binlogFormatCheck(r Resources) error {
	if !strings.EqualFold(r.Source.BinlogFormat, "ROW") {
		return fmt.Errorf("unsupported binary log format %s, only ROW is supported", r.Source.BinlogFormat)
	}
	return nil
}
