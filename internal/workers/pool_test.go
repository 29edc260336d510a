package workers

import (
	"errors"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
)

func TestPoolRunsAllTasks(t *testing.T) {
	pool := NewPool(zap.NewNop(), &PoolConfig{Name: "test", NumWorkers: 4, QueueSize: 16, PanicRecovery: true})
	pool.Start()

	var counter atomic.Int64
	for i := 0; i < 50; i++ {
		if err := pool.Submit(TaskFunc(func() error {
			counter.Add(1)
			return nil
		})); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}
	pool.Drain()

	if counter.Load() != 50 {
		t.Fatalf("ran %d tasks, want 50", counter.Load())
	}
	stats := pool.GetStats()
	if stats.TasksCompleted != 50 || stats.TasksFailed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestPoolCountsFailures(t *testing.T) {
	pool := NewPool(zap.NewNop(), &PoolConfig{Name: "test", NumWorkers: 2, QueueSize: 8, PanicRecovery: true})
	pool.Start()

	pool.Submit(TaskFunc(func() error { return errors.New("boom") }))
	pool.Submit(TaskFunc(func() error { return nil }))
	pool.Drain()

	stats := pool.GetStats()
	if stats.TasksFailed != 1 || stats.TasksCompleted != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestPoolRecoversPanic(t *testing.T) {
	pool := NewPool(zap.NewNop(), &PoolConfig{Name: "test", NumWorkers: 1, QueueSize: 4, PanicRecovery: true})
	pool.Start()

	pool.Submit(TaskFunc(func() error { panic("kaboom") }))
	pool.Submit(TaskFunc(func() error { return nil }))
	pool.Drain()

	stats := pool.GetStats()
	if stats.PanicRecovered != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.TasksCompleted != 1 {
		t.Fatalf("pool must survive a panicking task, stats = %+v", stats)
	}
}

func TestSubmitAfterDrainFails(t *testing.T) {
	pool := NewPool(zap.NewNop(), nil)
	pool.Start()
	pool.Drain()

	if err := pool.Submit(TaskFunc(func() error { return nil })); err == nil {
		t.Fatal("submit after drain should fail")
	}
}
