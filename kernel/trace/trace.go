// Package trace is an in-kernel lifecycle audit trail: every fork, exec,
// exit, stop/continue and signal-raise appends an Operation to a fixed-
// size in-memory ring, the in-kernel analogue of dmesg/audit. This is
// additive instrumentation only — Record never blocks or fails the
// operation it describes.
//
// Adapted from lxd/operations/linux.go's DB-operation bookkeeping shape
// (a UUID-identified record with a Class, CreatedAt/UpdatedAt, a Status
// and a JSON-shaped Metadata bag), repurposed from a clustered DB row
// into a single-process ring buffer: kernel/process and kernel/signal
// have no cluster, no transaction, and nothing to replicate.
package trace

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Class is the kind of lifecycle event an Operation records, mirroring
// the role lxd/operations' dbOpType plays for its DB-backed operations.
type Class int

const (
	ClassFork Class = iota
	ClassVfork
	ClassClone
	ClassExec
	ClassExit
	ClassSignalRaise
	ClassStop
	ClassContinue
)

func (c Class) String() string {
	switch c {
	case ClassFork:
		return "fork"
	case ClassVfork:
		return "vfork"
	case ClassClone:
		return "clone"
	case ClassExec:
		return "exec"
	case ClassExit:
		return "exit"
	case ClassSignalRaise:
		return "signal-raise"
	case ClassStop:
		return "stop"
	case ClassContinue:
		return "continue"
	default:
		return "unknown"
	}
}

// Operation is one recorded lifecycle event. Metadata is a free-form bag
// the caller supplies (e.g. {"ppid": ..., "sig": ...}), mirroring
// lxd/operations' json.Marshal(op.metadata) treatment, kept here as a
// plain map rather than a marshaled string since there is no DB column
// it needs to fit into.
type Operation struct {
	ID        uuid.UUID
	Class     Class
	PID       uint32
	CreatedAt time.Time
	UpdatedAt time.Time
	Status    string
	Metadata  map[string]any
}

// ringSize bounds how many events Recent can ever return; older entries
// are overwritten, matching a real dmesg buffer's behavior rather than
// original_source's unbounded-growth debug log.
const ringSize = 4096

var (
	mu    sync.Mutex
	ring  [ringSize]Operation
	next  int
	count int
)

// Record appends a new Operation and returns it. The timestamp is taken
// once, so CreatedAt and UpdatedAt start equal; nothing in this package
// updates an Operation after the fact (no multi-step operation ever
// lives in the ring, unlike lxd's in-flight DB operations).
func Record(class Class, pid uint32, metadata map[string]any) Operation {
	now := time.Now()

	op := Operation{
		ID:        uuid.New(),
		Class:     class,
		PID:       pid,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    "success",
		Metadata:  metadata,
	}

	mu.Lock()
	ring[next] = op
	next = (next + 1) % ringSize
	if count < ringSize {
		count++
	}
	mu.Unlock()

	return op
}

// Recent returns up to the last n recorded operations, most recent
// first, the in-kernel analogue of `dmesg | tail -n`.
func Recent(n int) []Operation {
	mu.Lock()
	defer mu.Unlock()

	if n > count {
		n = count
	}

	out := make([]Operation, n)
	for i := 0; i < n; i++ {
		idx := (next - 1 - i + ringSize) % ringSize
		out[i] = ring[idx]
	}

	return out
}

// Reset empties the ring. Exercised by tests that need a clean slate;
// no kernel code path calls this.
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	ring = [ringSize]Operation{}
	next = 0
	count = 0
}
