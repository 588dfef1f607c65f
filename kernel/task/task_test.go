package task_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eonix-go/eonix/kernel/task"
)

func TestSpawnRunsToCompletion(t *testing.T) {
	sched := task.New(2, nil)
	sched.Start(context.Background())
	defer func() { require.NoError(t, sched.Shutdown()) }()

	var ran atomic.Bool
	done := make(chan struct{})

	sched.Spawn(0, func(tk *task.Task) {
		ran.Store(true)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}

	require.True(t, ran.Load())
}

func TestYieldNowReturnsOnce(t *testing.T) {
	sched := task.New(1, nil)
	sched.Start(context.Background())
	defer func() { require.NoError(t, sched.Shutdown()) }()

	var yields atomic.Int32
	done := make(chan struct{})

	sched.Spawn(0, func(tk *task.Task) {
		for i := 0; i < 3; i++ {
			sched.YieldNow(tk)
			yields.Add(1)
		}
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never completed")
	}

	require.EqualValues(t, 3, yields.Load())
}

func TestBlockOnWakesViaWaker(t *testing.T) {
	sched := task.New(1, nil)
	sched.Start(context.Background())
	defer func() { require.NoError(t, sched.Shutdown()) }()

	var ready atomic.Bool
	var waker *task.Waker
	result := make(chan int, 1)

	sched.Spawn(0, func(tk *task.Task) {
		v, ok := task.BlockOn(sched, tk, task.Poller[int]{
			Poll: func() (int, bool) {
				if ready.Load() {
					return 42, true
				}
				return 0, false
			},
			Register: func(w *task.Waker) { waker = w },
		}, nil)
		if ok {
			result <- v
		} else {
			result <- -1
		}
	})

	// Give the spawned task a moment to reach BlockOn and register its waker.
	deadline := time.Now().Add(time.Second)
	for waker == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.NotNil(t, waker)

	ready.Store(true)
	waker.Wake()

	select {
	case v := <-result:
		require.Equal(t, 42, v)
	case <-time.After(2 * time.Second):
		t.Fatal("block_on never woke")
	}
}

func TestPreemptEnableWithoutDisablePanics(t *testing.T) {
	sched := task.New(1, nil)
	sched.Start(context.Background())
	defer func() { require.NoError(t, sched.Shutdown()) }()

	paniced := make(chan any, 1)
	done := make(chan struct{})

	sched.Spawn(0, func(tk *task.Task) {
		defer close(done)
		defer func() { paniced <- recover() }()
		sched.PreemptEnable(tk)
	})

	<-done
	require.NotNil(t, <-paniced)
}
