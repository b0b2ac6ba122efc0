package scheduler_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/dukex/chatflow/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	executionID string
	epoch       int64
}

type recorder struct {
	mu       sync.Mutex
	got      []delivery
	failures int
}

func (r *recorder) Resume(_ context.Context, executionID string, epoch int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failures > 0 {
		r.failures--

		return errors.New("engine unavailable")
	}

	r.got = append(r.got, delivery{executionID, epoch})

	return nil
}

func (r *recorder) deliveries() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]delivery(nil), r.got...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPoll_DeliversDueOnce(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	s := scheduler.New(store.ScheduleRepository(), testLogger(), scheduler.WithClock(func() time.Time { return now }))
	rec := &recorder{}
	s.SetResumer(rec)

	require.NoError(t, s.ScheduleResume(t.Context(), "exec-1", 2, now.Add(-time.Second)))
	require.NoError(t, s.ScheduleResume(t.Context(), "exec-2", 5, now.Add(time.Hour)))

	delivered, err := s.Poll(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
	assert.Equal(t, []delivery{{"exec-1", 2}}, rec.deliveries())

	delivered, err = s.Poll(t.Context())
	require.NoError(t, err)
	assert.Zero(t, delivered, "delivered records are not claimed again")
}

func TestPoll_FailedDeliveryIsRetriedAfterLease(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := now

	s := scheduler.New(store.ScheduleRepository(), testLogger(),
		scheduler.WithLease(time.Minute),
		scheduler.WithClock(func() time.Time { return clock }),
	)
	rec := &recorder{failures: 1}
	s.SetResumer(rec)

	require.NoError(t, s.ScheduleResume(t.Context(), "exec-1", 1, now))

	delivered, err := s.Poll(t.Context())
	require.NoError(t, err)
	assert.Zero(t, delivered)

	delivered, err = s.Poll(t.Context())
	require.NoError(t, err)
	assert.Zero(t, delivered, "record is leased")

	clock = now.Add(2 * time.Minute)

	delivered, err = s.Poll(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, delivered)
}

type recoveringRecorder struct {
	recorder

	mu     sync.Mutex
	before []time.Time
}

func (r *recoveringRecorder) Recover(_ context.Context, before time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.before = append(r.before, before)

	return 1, nil
}

func TestRecover_UsesRecoveryPeriod(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	s := scheduler.New(file.NewPersistence(t.TempDir()).ScheduleRepository(), testLogger(),
		scheduler.WithClock(func() time.Time { return now }),
		scheduler.WithRecoveryAfter(5*time.Minute),
	)
	rec := &recoveringRecorder{}
	s.SetResumer(rec)

	recovered, err := s.Recover(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)
	assert.Equal(t, []time.Time{now.Add(-5 * time.Minute)}, rec.before)
}

func TestRecover_PlainResumer(t *testing.T) {
	t.Parallel()

	s := scheduler.New(file.NewPersistence(t.TempDir()).ScheduleRepository(), testLogger())
	s.SetResumer(&recorder{})

	recovered, err := s.Recover(t.Context())
	require.NoError(t, err)
	assert.Zero(t, recovered)
}

func TestStart_RecoversInBackground(t *testing.T) {
	t.Parallel()

	s := scheduler.New(file.NewPersistence(t.TempDir()).ScheduleRepository(), testLogger(), scheduler.WithInterval(time.Second))
	rec := &recoveringRecorder{}
	s.SetResumer(rec)

	require.NoError(t, s.Start(t.Context()))

	defer s.Stop(t.Context())

	assert.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()

		return len(rec.before) > 0
	}, 5*time.Second, 50*time.Millisecond)
}

func TestCancel(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	s := scheduler.New(store.ScheduleRepository(), testLogger())
	rec := &recorder{}
	s.SetResumer(rec)

	require.NoError(t, s.ScheduleResume(t.Context(), "exec-1", 1, time.Now().Add(-time.Minute)))
	require.NoError(t, s.Cancel(t.Context(), "exec-1"))

	delivered, err := s.Poll(t.Context())
	require.NoError(t, err)
	assert.Zero(t, delivered)
	assert.Empty(t, rec.deliveries())
}

func TestPoll_WithoutResumer(t *testing.T) {
	t.Parallel()

	s := scheduler.New(file.NewPersistence(t.TempDir()).ScheduleRepository(), testLogger())

	_, err := s.Poll(t.Context())
	require.Error(t, err)
	require.Error(t, s.Start(t.Context()))
}

func TestStart_PollsInBackground(t *testing.T) {
	t.Parallel()

	store := file.NewPersistence(t.TempDir())
	s := scheduler.New(store.ScheduleRepository(), testLogger(), scheduler.WithInterval(time.Second))
	rec := &recorder{}
	s.SetResumer(rec)

	require.NoError(t, s.ScheduleResume(t.Context(), "exec-1", 1, time.Now()))
	require.NoError(t, s.Start(t.Context()))

	defer s.Stop(t.Context())

	assert.Eventually(t, func() bool {
		return len(rec.deliveries()) == 1
	}, 5*time.Second, 50*time.Millisecond)
}
