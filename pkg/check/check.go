// Package check decides the migration method. Each precondition is a
// named predicate over an immutable pair of server snapshots; the
// ordered results form an auditable decision rather than ad-hoc
// branching.
package check

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/facts"
)

// Method is the migration strategy selected for a run.
type Method string

const (
	MethodReplication Method = "replication"
	MethodDump        Method = "dump"
)

// ParseMethod validates an operator-supplied method name. The empty
// string means no forced method.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case "", MethodDump, MethodReplication:
		return Method(s), nil
	}
	return "", fmt.Errorf("unknown migration method %q", s)
}

// Resources is everything a check may inspect. Checks read facts that
// were already gathered; they never touch the servers themselves.
type Resources struct {
	Source            *facts.ServerFacts
	Target            *facts.ServerFacts
	HasMasterEndpoint bool
}

// Result records one evaluated check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// MethodDecision is produced exactly once per run and drives all
// subsequent branching; it is never revisited after data starts moving.
type MethodDecision struct {
	Method    Method
	Reason    string
	Satisfied []Result
}

type check struct {
	order    int
	name     string
	callback func(Resources) error
}

var (
	checks []check
	lock   sync.Mutex
)

// registerCheck adds a named check at a fixed position in the check
// order. The order determines which failure names the decision reason,
// so it is explicit rather than derived from registration sequence.
func registerCheck(order int, name string, callback func(Resources) error) {
	lock.Lock()
	defer lock.Unlock()
	checks = append(checks, check{order: order, name: name, callback: callback})
	sort.SliceStable(checks, func(i, j int) bool {
		return checks[i].order < checks[j].order
	})
}

// Names returns the registered check names in evaluation order.
func Names() []string {
	names := make([]string, len(checks))
	for i, c := range checks {
		names[i] = c.name
	}
	return names
}

// Validate evaluates every registered check against the snapshots and
// returns the method decision. All checks are recorded even after a
// failure, but the reason always names the first failing check. A
// forced method short-circuits everything.
func Validate(r Resources, forced Method) MethodDecision {
	if forced != "" {
		return MethodDecision{Method: forced, Reason: "forced by operator"}
	}
	decision := MethodDecision{Method: MethodReplication}
	for _, c := range checks {
		result := Result{Name: c.name, Passed: true}
		if err := c.callback(r); err != nil {
			result.Passed = false
			result.Detail = err.Error()
			if decision.Method != MethodDump {
				decision.Method = MethodDump
				decision.Reason = fmt.Sprintf("%s: %s", c.name, err)
			}
		}
		decision.Satisfied = append(decision.Satisfied, result)
	}
	return decision
}
