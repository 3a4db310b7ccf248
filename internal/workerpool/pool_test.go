package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPool_SubmitRunsTask(t *testing.T) {
	pool := New(2, 4, zerolog.Nop())
	pool.Start(context.Background())
	defer pool.Stop()

	done := make(chan struct{})
	err := pool.Submit(func(ctx context.Context) { close(done) })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestPool_SubmitReturnsErrorWhenQueueFull(t *testing.T) {
	pool := New(1, 1, zerolog.Nop())
	pool.Start(context.Background())
	defer pool.Stop()

	block := make(chan struct{})
	release := make(chan struct{})

	if err := pool.Submit(func(ctx context.Context) {
		close(block)
		<-release
	}); err != nil {
		t.Fatalf("unexpected error on first submit: %v", err)
	}
	<-block // worker is now occupied

	// Fill the single queue slot.
	if err := pool.Submit(func(ctx context.Context) {}); err != nil {
		t.Fatalf("unexpected error filling queue: %v", err)
	}

	// Queue is full and the only worker is busy: this submit must fail.
	err := pool.Submit(func(ctx context.Context) {})
	if err == nil {
		t.Fatal("expected saturation error, got nil")
	}
	if pool.DroppedTasks() != 1 {
		t.Errorf("expected 1 dropped task, got %d", pool.DroppedTasks())
	}

	close(release)
}

func TestPool_PanicRecoveredWithoutKillingWorker(t *testing.T) {
	pool := New(1, 4, zerolog.Nop())
	pool.Start(context.Background())
	defer pool.Stop()

	if err := pool.Submit(func(ctx context.Context) { panic("boom") }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var ran int32
	done := make(chan struct{})
	if err := pool.Submit(func(ctx context.Context) {
		atomic.StoreInt32(&ran, 1)
		close(done)
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not process task after a prior panic")
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Error("expected follow-up task to run")
	}
}

func TestPool_StopWaitsForInFlightTasks(t *testing.T) {
	pool := New(4, 16, zerolog.Nop())
	pool.Start(context.Background())

	var wg sync.WaitGroup
	var completed int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		err := pool.Submit(func(ctx context.Context) {
			defer wg.Done()
			atomic.AddInt32(&completed, 1)
		})
		if err != nil {
			wg.Done()
			t.Fatalf("unexpected submit error: %v", err)
		}
	}

	pool.Stop()
	wg.Wait()

	if atomic.LoadInt32(&completed) != 8 {
		t.Errorf("expected all 8 tasks to complete before Stop returned, got %d", completed)
	}
}

func TestPool_QueueDepthAndCapacity(t *testing.T) {
	pool := New(1, 5, zerolog.Nop())
	if pool.QueueCapacity() != 5 {
		t.Errorf("expected capacity 5, got %d", pool.QueueCapacity())
	}
	if pool.QueueDepth() != 0 {
		t.Errorf("expected depth 0 before start, got %d", pool.QueueDepth())
	}
}
