package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Result is the outcome of one submitted job.
type Result[T any] struct {
	Value T
	Err   error
}

type job struct {
	ctx context.Context
	run func(context.Context)
}

// Pool runs submitted jobs on a fixed set of goroutines.
type Pool struct {
	size  int
	jobs  chan job
	log   *slog.Logger
	wg    sync.WaitGroup
	mu    sync.RWMutex
	start sync.Once
	stop  sync.Once
	done  bool
}

func NewPool(size, queue int, log *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if queue < 0 {
		queue = 0
	}
	return &Pool{
		size: size,
		jobs: make(chan job, queue),
		log:  log,
	}
}

func (p *Pool) Start() {
	p.start.Do(func() {
		for i := range p.size {
			p.wg.Add(1)
			go p.loop(i)
		}
		p.log.Info("worker pool started", "workers", p.size, "queue", cap(p.jobs))
	})
}

// Stop refuses new work, drains queued jobs and waits for the workers.
func (p *Pool) Stop() {
	p.stop.Do(func() {
		p.Start()
		p.mu.Lock()
		p.done = true
		close(p.jobs)
		p.mu.Unlock()
		p.wg.Wait()
		p.log.Info("worker pool stopped")
	})
}

func (p *Pool) loop(id int) {
	defer p.wg.Done()
	for j := range p.jobs {
		j.run(j.ctx)
	}
	p.log.Debug("worker exited", "worker", id)
}

func (p *Pool) enqueue(ctx context.Context, j job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.done {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues fn on the pool. The returned channel receives exactly one
// Result. A job whose context is done before a worker picks it up is not
// run; once running, fn sees a context that is never cancelled.
func Submit[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) <-chan Result[T] {
	out := make(chan Result[T], 1)
	err := p.enqueue(ctx, job{
		ctx: ctx,
		run: func(ctx context.Context) {
			if err := ctx.Err(); err != nil {
				out <- Result[T]{Err: err}
				return
			}
			v, err := fn(context.WithoutCancel(ctx))
			out <- Result[T]{Value: v, Err: err}
		},
	})
	if err != nil {
		out <- Result[T]{Err: err}
	}
	return out
}
