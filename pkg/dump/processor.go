package dump

import "regexp"

// The dump stream is rewritten line by line before it reaches the
// restore side:
//   - the SET @@GLOBAL.GTID_PURGED header is captured as the
//     replication start position and removed (GTID_PURGED is set
//     explicitly on the target master later, after de-duplication);
//   - SET @@SESSION.SQL_LOG_BIN lines are removed, because the target
//     may have replicas of its own that need this data;
//   - DEFINER clauses are stripped so routines fall back to the default
//     definer instead of a user that may not exist on the target.
var (
	gtidStartRE = regexp.MustCompile(`^SET +@@GLOBAL\.GTID_PURGED *= */\*!80000 +'\+'\*/ *'([^']*)`)
	gtidEndRE   = regexp.MustCompile(`^(.*?)' *;`)

	logBinRE = regexp.MustCompile(`^SET +@@SESSION\.SQL_LOG_BIN *= *.*?;$`)

	routineDefinerRE = regexp.MustCompile("^CREATE DEFINER *= *(`.*?`@`.*?`) +(.*$)")
	importDefinerRE  = regexp.MustCompile("^/\\*!50013 DEFINER *= *`.*?`@`.*?` +SQL SECURITY DEFINER \\*/$")
	extraDefinerRE   = regexp.MustCompile("^(/\\*!(?:50003|50106) CREATE *\\*/ *)(/\\*!(?:50017|50117) +DEFINER *= *`.*?`@`.*?`\\*/)(.*$)")
)

// Processor filters one dump stream. It is not safe for concurrent use;
// the pipeline owns exactly one per run.
type Processor struct {
	gtid      string
	gtidBlock string
	inGtid    bool
}

// ProcessLine returns the line to forward to the restore side, or ""
// when the line is consumed or removed. Lines are passed without their
// trailing newline.
func (p *Processor) ProcessLine(line string) string {
	if line != "" && p.gtid == "" {
		if p.inGtid {
			// Continuation of a multi-line GTID_PURGED header.
			if end := gtidEndRE.FindStringSubmatch(line); end != nil {
				p.gtid = p.gtidBlock + end[1]
			} else {
				p.gtidBlock += line
			}
			return ""
		}
		if start := gtidStartRE.FindStringSubmatch(line); start != nil {
			if gtidEndRE.MatchString(line) {
				p.gtid = start[1]
			} else {
				p.gtidBlock = start[1]
				p.inGtid = true
			}
			return ""
		}
	}

	if logBinRE.MatchString(line) {
		return ""
	}
	if importDefinerRE.MatchString(line) {
		return ""
	}
	if extraDefinerRE.MatchString(line) {
		return extraDefinerRE.ReplaceAllString(line, "$1$3")
	}
	return routineDefinerRE.ReplaceAllString(line, "CREATE $2")
}

// GTID returns the captured position from the dump header, an opaque
// token that is only ever forwarded, never interpreted.
func (p *Processor) GTID() string {
	return p.gtid
}
