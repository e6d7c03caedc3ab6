package dump

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcessorSingleLineGtid(t *testing.T) {
	p := &Processor{}
	out := p.ProcessLine("SET @@GLOBAL.GTID_PURGED=/*!80000 '+'*/ '0ede210b-7b27-11eb-9e0b-0242ac180002:1-361';")
	assert.Empty(t, out)
	assert.Equal(t, "0ede210b-7b27-11eb-9e0b-0242ac180002:1-361", p.GTID())
}

func TestProcessorMultiLineGtid(t *testing.T) {
	lines := []string{
		"SET @@GLOBAL.GTID_PURGED=/*!80000 '+'*/ '0ede210b-7b27-11eb-9e0b-0242ac180002:1-361,",
		"27b268e4-7b27-11eb-bbf1-0242ac180003:1-20,",
		"3efb3d2b-7b27-11eb-a27b-0242ac180004:1-9';",
	}
	p := &Processor{}
	for _, line := range lines {
		assert.Empty(t, p.ProcessLine(line))
	}
	assert.Equal(t,
		"0ede210b-7b27-11eb-9e0b-0242ac180002:1-361,"+
			"27b268e4-7b27-11eb-bbf1-0242ac180003:1-20,"+
			"3efb3d2b-7b27-11eb-a27b-0242ac180004:1-9",
		p.GTID())
}

func TestProcessorGtidCapturedOnlyOnce(t *testing.T) {
	p := &Processor{}
	p.ProcessLine("SET @@GLOBAL.GTID_PURGED=/*!80000 '+'*/ 'first:1-5';")
	// A later INSERT that happens to embed the same shape passes through.
	passthrough := "INSERT INTO t VALUES ('SET @@GLOBAL.GTID_PURGED=1');"
	assert.Equal(t, passthrough, p.ProcessLine(passthrough))
	assert.Equal(t, "first:1-5", p.GTID())
}

func TestProcessorStripsSQLLogBin(t *testing.T) {
	p := &Processor{}
	assert.Empty(t, p.ProcessLine("SET @@SESSION.SQL_LOG_BIN= 0;"))
	assert.Empty(t, p.ProcessLine("SET @@SESSION.SQL_LOG_BIN = @MYSQLDUMP_TEMP_LOG_BIN;"))
}

func TestProcessorStripsDefiners(t *testing.T) {
	p := &Processor{}

	out := p.ProcessLine("CREATE DEFINER=`admin`@`%` PROCEDURE `proc1`()")
	assert.Equal(t, "CREATE PROCEDURE `proc1`()", out)

	out = p.ProcessLine("/*!50013 DEFINER=`admin`@`%` SQL SECURITY DEFINER */")
	assert.Empty(t, out)

	// The definer comment goes away; the surrounding spacing is kept as is.
	out = p.ProcessLine("/*!50003 CREATE*/ /*!50017 DEFINER=`admin`@`%`*/ /*!50003 TRIGGER `trg` BEFORE INSERT ON `t` FOR EACH ROW SET @a = 1 */;;")
	assert.Equal(t, "/*!50003 CREATE*/  /*!50003 TRIGGER `trg` BEFORE INSERT ON `t` FOR EACH ROW SET @a = 1 */;;", out)
}

func TestProcessorPassesDataThrough(t *testing.T) {
	p := &Processor{}
	lines := []string{
		"-- MySQL dump 10.13  Distrib 8.0.30, for Linux (x86_64)",
		"CREATE DATABASE /*!32312 IF NOT EXISTS*/ `app` /*!40100 DEFAULT CHARACTER SET utf8mb4 */;",
		"INSERT INTO `t1` VALUES (1,'a'),(2,'b');",
		"",
	}
	for _, line := range lines {
		assert.Equal(t, line, p.ProcessLine(line))
	}
}
