// Package repl establishes GTID-based replication from the source to
// the target and monitors it until it catches up.
package repl

import (
	"sync"
	"sync/atomic"
)

//nolint:recvcheck // String() uses value receiver (called on Status values), Get/Set use pointer receivers (atomic ops)
type Status int32

const (
	StatusNotStarted Status = iota
	StatusStarting
	StatusRunning
	StatusLagging
	StatusStopped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "not-started"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusLagging:
		return "lagging"
	case StatusStopped:
		return "stopped"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

func (s *Status) Get() Status {
	return Status(atomic.LoadInt32((*int32)(s)))
}

func (s *Status) Set(newStatus Status) {
	atomic.StoreInt32((*int32)(s), int32(newStatus))
}

// State is the controller's view of the replica. It is created when the
// controller is and owned solely by it; stopped and failed are terminal.
type State struct {
	status        Status // must use atomic helpers to change.
	secondsBehind atomic.Int64

	mu        sync.Mutex
	lastError error
}

func NewState() *State {
	s := &State{}
	s.secondsBehind.Store(-1)
	return s
}

func (s *State) Status() Status {
	return s.status.Get()
}

// SecondsBehind is the last measured replica lag, or -1 when it has
// never been measured.
func (s *State) SecondsBehind() int64 {
	return s.secondsBehind.Load()
}

func (s *State) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

func (s *State) setSecondsBehind(lag int64) {
	s.secondsBehind.Store(lag)
}

// fail records err and moves to the terminal failed status. A
// half-configured replica is unsafe to repair blindly, so there is no
// way back out of failed.
func (s *State) fail(err error) {
	s.mu.Lock()
	s.lastError = err
	s.mu.Unlock()
	s.status.Set(StatusFailed)
}
