package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

var ErrPoolStopped = errors.New("worker pool stopped")

// Pool steps executions on a fixed number of goroutines.
type Pool struct {
	stepper Stepper
	logger  *slog.Logger
	size    int
	queue   chan string

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
	done   chan struct{}
}

func NewPool(stepper Stepper, logger *slog.Logger, size, buffer int) *Pool {
	if size <= 0 {
		size = 1
	}

	return &Pool{
		stepper: stepper,
		logger:  logger.With("module", "worker_pool"),
		size:    size,
		queue:   make(chan string, buffer),
		done:    make(chan struct{}),
	}
}

// Enqueue queues an execution. It blocks while the queue is full.
func (p *Pool) Enqueue(ctx context.Context, executionID string) error {
	select {
	case <-p.done:
		return ErrPoolStopped
	default:
	}

	select {
	case p.queue <- executionID:
		return nil
	case <-p.done:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.group != nil {
		return
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.group, ctx = errgroup.WithContext(ctx)

	for i := range p.size {
		logger := p.logger.With("worker", i)

		p.group.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case id := <-p.queue:
					p.step(ctx, logger, id)
				}
			}
		})
	}

	p.logger.InfoContext(ctx, "Worker pool started", "size", p.size)
}

func (p *Pool) step(ctx context.Context, logger *slog.Logger, executionID string) {
	err := p.stepper.Step(ctx, executionID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to step execution", "execution_id", executionID, "error", err)
	}
}

// Stop stops accepting work and waits for the steps in progress. Executions
// still queued stay running in storage until recovery picks them up.
func (p *Pool) Stop() error {
	p.mu.Lock()
	cancel, group := p.cancel, p.group

	select {
	case <-p.done:
	default:
		close(p.done)
	}
	p.mu.Unlock()

	if group == nil {
		return nil
	}

	cancel()

	err := group.Wait()

	if dropped := p.drain(); len(dropped) > 0 {
		p.logger.Warn("Queued executions left for recovery", "count", len(dropped), "execution_ids", dropped)
	}

	return err
}

func (p *Pool) drain() []string {
	var ids []string

	for {
		select {
		case id := <-p.queue:
			ids = append(ids, id)
		default:
			return ids
		}
	}
}
