// Package workerpool is a bounded concurrent executor: a fixed number
// of worker goroutines draining a bounded task queue, with panic
// recovery so one bad task never takes a worker down.
package workerpool

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/thgg666/seckill-core/internal/domain"
)

// Task is a unit of work submitted to the pool. It carries a context
// for deadline-aware work (cache refresh-ahead reloads, write-behind
// drains). Tasks that need to report failure do so through their own
// closure state — a channel, a logger call — since Submit only reports
// admission, not outcome.
type Task func(ctx context.Context)

// Pool is a fixed-size worker pool with a bounded task queue.
type Pool struct {
	workerCount int
	taskQueue   chan Task
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	dropped     int64
	logger      zerolog.Logger
}

// New creates a pool with workerCount workers and a queue of queueSize.
func New(workerCount, queueSize int, logger zerolog.Logger) *Pool {
	return &Pool{
		workerCount: workerCount,
		taskQueue:   make(chan Task, queueSize),
		logger:      logger,
	}
}

// Start launches the worker goroutines. ctx governs graceful shutdown:
// when canceled, workers finish their current task and exit.
func (p *Pool) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.run(task)
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Interface("panic_value", r).
				Str("stack_trace", string(debug.Stack())).
				Msg("worker panic recovered — task failed but worker continues")
		}
	}()
	task(p.ctx)
}

// Submit enqueues task for asynchronous execution. On a full queue it
// returns a Saturated error rather than silently dropping, so an HTTP
// handler can translate it into a 503.
func (p *Pool) Submit(task Task) error {
	select {
	case p.taskQueue <- task:
		return nil
	default:
		atomic.AddInt64(&p.dropped, 1)
		return domain.New(domain.KindSaturated, "worker pool queue full")
	}
}

// Stop gracefully shuts down the pool: closes the queue, lets workers
// drain what's already queued, and waits for them to exit. The pool
// context is canceled only after the drain so queued tasks run with a
// live context.
func (p *Pool) Stop() {
	close(p.taskQueue)
	p.wg.Wait()
	p.cancel()
}

func (p *Pool) DroppedTasks() int64 { return atomic.LoadInt64(&p.dropped) }
func (p *Pool) QueueDepth() int     { return len(p.taskQueue) }
func (p *Pool) QueueCapacity() int  { return cap(p.taskQueue) }
