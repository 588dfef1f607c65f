package trace_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/eonix-go/eonix/kernel/trace"
)

func TestRecordAndRecent(t *testing.T) {
	trace.Reset()

	trace.Record(trace.ClassFork, 2, map[string]any{"ppid": uint32(1)})
	trace.Record(trace.ClassExec, 2, nil)
	op := trace.Record(trace.ClassExit, 2, map[string]any{"exitCode": 0})

	recent := trace.Recent(2)
	require.Len(t, recent, 2)
	require.Equal(t, op.ID, recent[0].ID)
	require.Equal(t, trace.ClassExit, recent[0].Class)
	require.Equal(t, trace.ClassExec, recent[1].Class)
}

func TestRecentCapsAtAvailableCount(t *testing.T) {
	trace.Reset()

	trace.Record(trace.ClassFork, 3, nil)

	require.Len(t, trace.Recent(10), 1)
	require.Empty(t, trace.Recent(0))
}

func TestRingWraps(t *testing.T) {
	trace.Reset()

	// ringCap is trace's ring size; recording past it overwrites the
	// oldest entries.
	const ringCap = 4096
	const overflow = ringCap + 16
	for i := 0; i < overflow; i++ {
		trace.Record(trace.ClassSignalRaise, uint32(i), nil)
	}

	recent := trace.Recent(overflow)
	require.Len(t, recent, ringCap)
	require.Equal(t, uint32(overflow-1), recent[0].PID)
	require.Equal(t, uint32(overflow-ringCap), recent[ringCap-1].PID)
}

func TestClassString(t *testing.T) {
	require.Equal(t, "fork", trace.ClassFork.String())
	require.Equal(t, "exit", trace.ClassExit.String())
	require.Equal(t, "unknown", trace.Class(99).String())
}
