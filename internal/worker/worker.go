package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/mockmate-judge/internal/observability"
)

// ErrQueueFull indicates the pool cannot accept more work right now.
var ErrQueueFull = errors.New("evaluation queue is full")

// ErrPoolStopped indicates the pool no longer accepts work.
var ErrPoolStopped = errors.New("evaluation pool stopped")

// Handler processes one submission.
type Handler func(ctx context.Context, submissionID uint) error

// Dispatcher hands a submission to whatever evaluates it.
type Dispatcher interface {
	Dispatch(ctx context.Context, submissionID uint) error
}

// Inline evaluates on the caller's goroutine.
type Inline struct {
	handler Handler
}

// NewInline constructs a synchronous dispatcher.
func NewInline(handler Handler) *Inline {
	return &Inline{handler: handler}
}

// Dispatch runs the handler and waits for it. Cancellation of the caller does not
// interrupt an evaluation that already started.
func (d *Inline) Dispatch(ctx context.Context, submissionID uint) error {
	return d.handler(context.WithoutCancel(ctx), submissionID)
}

// PoolConfig controls pool sizing.
type PoolConfig struct {
	Workers   int
	QueueSize int
	Logger    zerolog.Logger
}

// Pool runs submissions on a fixed set of goroutines fed by a bounded queue.
type Pool struct {
	handler Handler
	jobs    chan uint
	workers int
	logger  zerolog.Logger

	mu      sync.RWMutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool constructs a pool. Call Start before dispatching.
func NewPool(handler Handler, cfg PoolConfig) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 16
	}
	return &Pool{
		handler: handler,
		jobs:    make(chan uint, cfg.QueueSize),
		workers: cfg.Workers,
		logger:  cfg.Logger.With().Str("component", "evaluation_pool").Logger(),
	}
}

// Start launches the workers. Evaluations run under ctx; cancelling it interrupts them.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
	p.logger.Info().Int("workers", p.workers).Int("queue_size", cap(p.jobs)).Msg("evaluation pool started")
}

// Dispatch enqueues a submission without blocking.
func (p *Pool) Dispatch(_ context.Context, submissionID uint) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobs <- submissionID:
		observability.EvaluationQueueDepth().Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new work, lets queued submissions finish and waits for the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	started := p.started
	p.mu.Unlock()

	if started {
		p.wg.Wait()
		p.cancel()
	}
}

func (p *Pool) work(ctx context.Context, index int) {
	defer p.wg.Done()
	for id := range p.jobs {
		observability.EvaluationQueueDepth().Dec()
		if err := p.handler(ctx, id); err != nil {
			p.logger.Error().Err(err).Int("worker", index).Uint("submission_id", id).Msg("evaluation failed")
		}
	}
}
