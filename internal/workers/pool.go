package workers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nastyazhadan/trading-hub/shared/interceptors/recovery"
	zapLogger "github.com/nastyazhadan/trading-hub/shared/logger/zap"
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrQueueFull  = errors.New("worker pool queue is full")
)

type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool runs background tasks on a fixed number of goroutines, apart from
// request handling. Submit never blocks the caller.
type Pool struct {
	name    string
	workers int
	queue   chan Task

	mu      sync.RWMutex
	closed  bool
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	observer func(name string, err error)
}

func NewPool(name string, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers
	}

	return &Pool{
		name:    name,
		workers: workers,
		queue:   make(chan Task, queueSize),
	}
}

// OnDone registers a callback invoked after every task with its result.
func (p *Pool) OnDone(observer func(name string, err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.observer = observer
}

func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.closed {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.loop(ctx)
	}

	zapLogger.Info(ctx, "worker pool started",
		zap.String("pool", p.name),
		zap.Int("workers", p.workers),
	)
}

func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return fmt.Errorf("%s: %w", p.name, ErrPoolClosed)
	}

	select {
	case p.queue <- task:
		return nil
	default:
		return fmt.Errorf("%s: %w", p.name, ErrQueueFull)
	}
}

// Stop refuses new tasks, drains the queue and waits for running tasks until
// ctx expires, after which running tasks see their context cancelled.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return fmt.Errorf("%s: stop: %w", p.name, ctx.Err())
	}
}

func (p *Pool) loop(ctx context.Context) {
	defer p.wg.Done()

	for task := range p.queue {
		err := recovery.Run(ctx, task.Name, task.Run)
		if err != nil {
			zapLogger.Error(ctx, "background task failed",
				zap.String("pool", p.name),
				zap.String("task", task.Name),
				zap.Error(err),
			)
		}

		p.mu.RLock()
		observer := p.observer
		p.mu.RUnlock()
		if observer != nil {
			observer(task.Name, err)
		}
	}
}

func (p *Pool) Pending() int {
	return len(p.queue)
}
