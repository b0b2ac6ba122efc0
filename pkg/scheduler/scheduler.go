// Package scheduler persists timer resumptions and delivers them when due.
// Delivery is at least once; the engine discards stale or repeated ones.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// Resumer is called for every due record.
type Resumer interface {
	Resume(ctx context.Context, executionID string, epoch int64) error
}

// Recoverer re-drives running executions not advanced since before. The
// engine implements it; the scheduler calls it on every poll.
type Recoverer interface {
	Recover(ctx context.Context, before time.Time) (int, error)
}

type Option func(*Scheduler)

// WithInterval sets how often due records are polled.
func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = interval
	}
}

// WithLease sets how long a claimed record stays invisible to other pollers.
func WithLease(lease time.Duration) Option {
	return func(s *Scheduler) {
		s.lease = lease
	}
}

// WithRecoveryAfter sets how long an execution may stay running without
// progress before it is handed to a worker again.
func WithRecoveryAfter(after time.Duration) Option {
	return func(s *Scheduler) {
		s.recoverAfter = after
	}
}

func WithBatchSize(size int) Option {
	return func(s *Scheduler) {
		s.batch = size
	}
}

func WithOwner(owner string) Option {
	return func(s *Scheduler) {
		s.owner = owner
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

type Scheduler struct {
	repo     persistence.ScheduleRepository
	logger   *slog.Logger
	interval time.Duration
	lease    time.Duration
	batch    int
	owner    string
	now      func() time.Time

	recoverAfter time.Duration

	mu      sync.Mutex
	resumer Resumer
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(repo persistence.ScheduleRepository, logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		repo:     repo,
		logger:   logger.With("module", "scheduler"),
		interval: time.Second,
		lease:    time.Minute,
		batch:    100,
		owner:    uuid.NewString(),
		now:      time.Now,

		recoverAfter: 2 * time.Minute,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// SetResumer wires the engine. It must be called before Poll or Start.
func (s *Scheduler) SetResumer(resumer Resumer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resumer = resumer
}

// ScheduleResume persists a request to resume executionID at dueAt.
func (s *Scheduler) ScheduleResume(ctx context.Context, executionID string, epoch int64, dueAt time.Time) error {
	resume := &models.ScheduledResume{
		ExecutionID: executionID,
		Epoch:       epoch,
		DueAt:       dueAt.UTC(),
	}

	err := s.repo.Schedule(ctx, resume)
	if err != nil {
		return fmt.Errorf("failed to schedule resume of %s: %w", executionID, err)
	}

	s.logger.DebugContext(ctx, "Scheduled resume", "execution_id", executionID, "epoch", epoch, "due_at", resume.DueAt)

	return nil
}

// Cancel drops every pending resume of executionID.
func (s *Scheduler) Cancel(ctx context.Context, executionID string) error {
	err := s.repo.CancelByExecution(ctx, executionID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to cancel resumes of %s: %w", executionID, err)
	}

	return nil
}

// Poll claims the records due now and delivers them. A record whose delivery
// fails keeps its lease and is claimed again once the lease expires.
func (s *Scheduler) Poll(ctx context.Context) (int, error) {
	s.mu.Lock()
	resumer := s.resumer
	s.mu.Unlock()

	if resumer == nil {
		return 0, errNoResumer
	}

	due, err := s.repo.ClaimDue(ctx, s.now().UTC(), s.owner, s.lease, s.batch)
	if err != nil {
		return 0, fmt.Errorf("failed to claim due resumes: %w", err)
	}

	delivered := 0

	for _, resume := range due {
		logger := s.logger.With("execution_id", resume.ExecutionID, "epoch", resume.Epoch, "resume_id", resume.ID)

		err := resumer.Resume(ctx, resume.ExecutionID, resume.Epoch)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to resume execution", "error", err)

			continue
		}

		err = s.repo.MarkDelivered(ctx, resume.ID, s.now().UTC())
		if err != nil {
			logger.ErrorContext(ctx, "Failed to mark resume delivered", "error", err)

			continue
		}

		delivered++
	}

	if len(due) > 0 {
		s.logger.DebugContext(ctx, "Delivered due resumes", "claimed", len(due), "delivered", delivered)
	}

	return delivered, nil
}

// Recover asks the resumer, when it is a Recoverer, to re-drive the
// executions left running for longer than the recovery period.
func (s *Scheduler) Recover(ctx context.Context) (int, error) {
	s.mu.Lock()
	recoverer, ok := s.resumer.(Recoverer)
	s.mu.Unlock()

	if !ok {
		return 0, nil
	}

	recovered, err := recoverer.Recover(ctx, s.now().UTC().Add(-s.recoverAfter))
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale executions: %w", err)
	}

	return recovered, nil
}

// Start polls every interval until Stop. A poll still running when the
// next one is due is skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.resumer == nil {
		return errNoResumer
	}

	s.logger.InfoContext(ctx, "Starting scheduler", "interval", s.interval, "owner", s.owner)

	s.ctx, s.cancel = context.WithCancel(ctx)

	logger := cronLogger{logger: s.logger}

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(logger),
		cron.Recover(logger),
	), cron.WithLogger(logger))

	_, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		_, err := s.Poll(s.ctx)
		if err != nil {
			s.logger.ErrorContext(s.ctx, "Poll failed", "error", err)
		}

		_, err = s.Recover(s.ctx)
		if err != nil {
			s.logger.ErrorContext(s.ctx, "Recovery failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to add poll job: %w", err)
	}

	s.cron.Start()

	return nil
}

// Stop cancels the running poll and waits for it to return.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel, scheduler := s.cancel, s.cron
	s.cancel, s.cron = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	s.logger.InfoContext(ctx, "Stopped scheduler")
}
