package file_test

import (
	"sync"
	"testing"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlow() *models.Flow {
	return &models.Flow{
		OrganizationID: "org-1",
		Name:           "Order confirmation",
		Status:         models.FlowStatusActive,
		IsActive:       true,
		Trigger:        models.FlowTrigger{Type: "trigger:button_click"},
	}
}

func TestFlowRepository_SaveAndGet(t *testing.T) {
	t.Parallel()

	p := file.NewPersistence("file://" + t.TempDir())
	repo := p.FlowRepository()

	flow := newFlow()
	require.NoError(t, repo.Save(t.Context(), flow))
	require.NotEmpty(t, flow.ID)

	require.NoError(t, repo.IncrementCounters(t.Context(), flow.ID, models.ExecutionStatusCompleted, time.Now()))

	flow.Name = "Renamed"
	require.NoError(t, repo.Save(t.Context(), flow))

	stored, err := repo.GetByID(t.Context(), flow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, int64(1), stored.TotalExecutions, "save keeps counters")
	assert.Equal(t, int64(1), stored.SucceededExecutions)
	assert.NotNil(t, stored.LastExecutedAt)

	_, err = repo.GetByID(t.Context(), "missing")
	require.ErrorIs(t, err, models.ErrFlowNotFound)
}

func TestFlowRepository_ListAndActiveByTrigger(t *testing.T) {
	t.Parallel()

	repo := file.NewPersistence(t.TempDir()).FlowRepository()

	active := newFlow()
	require.NoError(t, repo.Save(t.Context(), active))

	paused := newFlow()
	paused.Status = models.FlowStatusPaused
	require.NoError(t, repo.Save(t.Context(), paused))

	other := newFlow()
	other.OrganizationID = "org-2"
	require.NoError(t, repo.Save(t.Context(), other))

	flows, err := repo.List(t.Context(), "org-1")
	require.NoError(t, err)
	assert.Len(t, flows, 2)

	all, err := repo.List(t.Context(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	runnable, err := repo.ActiveByTrigger(t.Context(), "org-1", "trigger:button_click")
	require.NoError(t, err)
	require.Len(t, runnable, 1)
	assert.Equal(t, active.ID, runnable[0].ID)

	require.NoError(t, repo.Delete(t.Context(), paused.ID))
	require.ErrorIs(t, repo.Delete(t.Context(), paused.ID), models.ErrFlowNotFound)
}

func TestFlowRepository_GraphRoundTrip(t *testing.T) {
	t.Parallel()

	repo := file.NewPersistence(t.TempDir()).FlowRepository()

	flow := newFlow()
	require.NoError(t, repo.Save(t.Context(), flow))

	nodes := []*models.Node{
		{ID: "start", Type: "trigger:button_click", Name: "Start", Config: map[string]any{"button_text": "Go"}, PositionX: 10},
		{ID: "end", Type: "action:end", Name: "End", Config: map[string]any{}},
	}
	edges := []*models.Edge{{ID: "e1", SourceNodeID: "start", TargetNodeID: "end", SourceHandle: "default"}}

	version, err := repo.SaveGraph(t.Context(), flow.ID, nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	loadedNodes, loadedEdges, err := repo.LoadGraph(t.Context(), flow.ID)
	require.NoError(t, err)
	assert.Equal(t, nodes, loadedNodes)
	assert.Equal(t, edges, loadedEdges)
	assert.Equal(t, flow.ID, loadedEdges[0].FlowID)

	version, err = repo.SaveGraph(t.Context(), flow.ID, nodes[:1], nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)

	loadedNodes, loadedEdges, err = repo.LoadGraph(t.Context(), flow.ID)
	require.NoError(t, err)
	assert.Len(t, loadedNodes, 1)
	assert.Empty(t, loadedEdges)

	_, err = repo.SaveGraph(t.Context(), "missing", nodes, edges)
	require.ErrorIs(t, err, models.ErrFlowNotFound)
}

func TestExecutionRepository_CreateIfAbsentIsExclusive(t *testing.T) {
	t.Parallel()

	repo := file.NewPersistence(t.TempDir()).ExecutionRepository()

	const attempts = 10

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		ids     = map[string]bool{}
	)

	for range attempts {
		wg.Add(1)

		go func() {
			defer wg.Done()

			ec, ok, err := repo.CreateIfAbsent(t.Context(), &models.ExecutionContext{
				FlowID:    "flow-1",
				ContactID: "contact-1",
				Status:    models.ExecutionStatusRunning,
			})
			assert.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()

			if ok {
				created++
			}

			ids[ec.ID] = true
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, ids, 1)
}

func TestExecutionRepository_UpdateDetectsConflicts(t *testing.T) {
	t.Parallel()

	repo := file.NewPersistence(t.TempDir()).ExecutionRepository()

	ec, _, err := repo.CreateIfAbsent(t.Context(), &models.ExecutionContext{
		FlowID:    "flow-1",
		ContactID: "contact-1",
		Status:    models.ExecutionStatusRunning,
	})
	require.NoError(t, err)

	first, err := repo.GetByID(t.Context(), ec.ID)
	require.NoError(t, err)

	second, err := repo.GetByID(t.Context(), ec.ID)
	require.NoError(t, err)

	first.Status = models.ExecutionStatusWaitingExternal
	require.NoError(t, repo.Update(t.Context(), first))
	assert.Equal(t, int64(2), first.Version)

	second.Status = models.ExecutionStatusCancelled
	require.ErrorIs(t, repo.Update(t.Context(), second), models.ErrStorageConflict)

	waiting, err := repo.Waiting(t.Context(), "contact-1")
	require.NoError(t, err)
	require.Len(t, waiting, 1)

	first.Status = models.ExecutionStatusCompleted
	require.NoError(t, repo.Update(t.Context(), first))

	next, created, err := repo.CreateIfAbsent(t.Context(), &models.ExecutionContext{
		FlowID:    "flow-1",
		ContactID: "contact-1",
		Status:    models.ExecutionStatusRunning,
	})
	require.NoError(t, err)
	assert.True(t, created, "terminal contexts do not block a new run")

	latest, err := repo.Latest(t.Context(), "flow-1", "contact-1")
	require.NoError(t, err)
	assert.Equal(t, next.ID, latest.ID)
}

func TestExecutionRepository_Stale(t *testing.T) {
	t.Parallel()

	repo := file.NewPersistence(t.TempDir()).ExecutionRepository()

	first, _, err := repo.CreateIfAbsent(t.Context(), &models.ExecutionContext{
		FlowID: "flow-1", ContactID: "contact-1", Status: models.ExecutionStatusRunning,
	})
	require.NoError(t, err)

	second, _, err := repo.CreateIfAbsent(t.Context(), &models.ExecutionContext{
		FlowID: "flow-2", ContactID: "contact-1", Status: models.ExecutionStatusRunning,
	})
	require.NoError(t, err)

	_, _, err = repo.CreateIfAbsent(t.Context(), &models.ExecutionContext{
		FlowID: "flow-3", ContactID: "contact-1", Status: models.ExecutionStatusRunning, FlowPaused: true,
	})
	require.NoError(t, err)

	_, _, err = repo.CreateIfAbsent(t.Context(), &models.ExecutionContext{
		FlowID: "flow-4", ContactID: "contact-1", Status: models.ExecutionStatusWaitingTimer,
	})
	require.NoError(t, err)

	none, err := repo.Stale(t.Context(), time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	stale, err := repo.Stale(t.Context(), time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 2)
	assert.Equal(t, first.ID, stale[0].ID)
	assert.Equal(t, second.ID, stale[1].ID)

	limited, err := repo.Stale(t.Context(), time.Now().Add(time.Minute), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestScheduleRepository_ClaimLease(t *testing.T) {
	t.Parallel()

	repo := file.NewPersistence(t.TempDir()).ScheduleRepository()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	due := &models.ScheduledResume{ExecutionID: "exec-1", Epoch: 3, DueAt: now.Add(-time.Minute)}
	later := &models.ScheduledResume{ExecutionID: "exec-2", Epoch: 1, DueAt: now.Add(time.Hour)}

	require.NoError(t, repo.Schedule(t.Context(), due))
	require.NoError(t, repo.Schedule(t.Context(), later))

	claimed, err := repo.ClaimDue(t.Context(), now, "poller-a", time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, due.ID, claimed[0].ID)
	assert.Equal(t, "poller-a", claimed[0].ClaimedBy)

	claimed, err = repo.ClaimDue(t.Context(), now.Add(30*time.Second), "poller-b", time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed, "lease still held")

	claimed, err = repo.ClaimDue(t.Context(), now.Add(2*time.Minute), "poller-b", time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1, "expired lease is reclaimed")

	require.NoError(t, repo.MarkDelivered(t.Context(), due.ID, now.Add(2*time.Minute)))
	require.NoError(t, repo.CancelByExecution(t.Context(), "exec-2", now))

	claimed, err = repo.ClaimDue(t.Context(), now.Add(2*time.Hour), "poller-c", time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}

func TestContactRepository_OptimisticSave(t *testing.T) {
	t.Parallel()

	repo := file.NewPersistence(t.TempDir()).ContactRepository()

	contact := &models.Contact{ID: "contact-1", OrganizationID: "org-1", Phone: "+5581999990000"}
	require.NoError(t, repo.Save(t.Context(), contact))
	assert.Equal(t, int64(1), contact.Version)

	duplicate := &models.Contact{ID: "contact-1"}
	require.ErrorIs(t, repo.Save(t.Context(), duplicate), models.ErrStorageConflict)

	stale, err := repo.GetByID(t.Context(), "contact-1")
	require.NoError(t, err)

	contact.AddTag("vip")
	require.NoError(t, repo.Save(t.Context(), contact))

	stale.AddTag("other")
	require.ErrorIs(t, repo.Save(t.Context(), stale), models.ErrStorageConflict)

	stored, err := repo.GetByID(t.Context(), "contact-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"vip"}, stored.Tags)

	_, err = repo.GetByID(t.Context(), "missing")
	require.ErrorIs(t, err, models.ErrContactNotFound)
}

func TestLogRepository_AppendOnly(t *testing.T) {
	t.Parallel()

	repo := file.NewPersistence(t.TempDir()).LogRepository()

	for _, node := range []string{"start", "choice", "end"} {
		require.NoError(t, repo.Append(t.Context(), &models.ExecutionLogEntry{
			ExecutionID: "exec-1",
			NodeID:      node,
			Kind:        models.LogKindStep,
			Status:      models.LogStatusSuccess,
		}))
	}

	entries, err := repo.ListByExecution(t.Context(), "exec-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "choice", entries[1].NodeID)
	assert.NotEmpty(t, entries[0].ID)

	empty, err := repo.ListByExecution(t.Context(), "exec-2")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
