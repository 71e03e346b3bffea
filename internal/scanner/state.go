package scanner

import (
	"sync"
	"time"
)

// State is a step of the scan loop.
type State int

const (
	StateIdle State = iota
	StateFetchingLatest
	StateComputingRange
	StateFetchingTransfers
	StateClassifying
	StatePersisting
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetchingLatest:
		return "fetching_latest"
	case StateComputingRange:
		return "computing_range"
	case StateFetchingTransfers:
		return "fetching_transfers"
	case StateClassifying:
		return "classifying"
	case StatePersisting:
		return "persisting"
	case StateSleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}

// Status is a snapshot of a runner.
type Status struct {
	Chain      string    `json:"chain"`
	State      string    `json:"state"`
	Head       uint64    `json:"head"`
	Checkpoint uint64    `json:"checkpoint"`
	Cycles     uint64    `json:"cycles"`
	LastCycle  time.Time `json:"last_cycle,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// scannerState is owned by one runner; the mutex guards reads from the API.
type scannerState struct {
	mu         sync.Mutex
	state      State
	head       uint64
	checkpoint uint64
	cycles     uint64
	lastCycle  time.Time
	lastErr    string
}

func (s *scannerState) set(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *scannerState) get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *scannerState) finish(at time.Time, head, checkpoint uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	s.lastCycle = at
	if head > s.head {
		s.head = head
	}
	if checkpoint > s.checkpoint {
		s.checkpoint = checkpoint
	}
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
}

func (s *scannerState) snapshot(chain string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Chain:      chain,
		State:      s.state.String(),
		Head:       s.head,
		Checkpoint: s.checkpoint,
		Cycles:     s.cycles,
		LastCycle:  s.lastCycle,
		LastError:  s.lastErr,
	}
}
