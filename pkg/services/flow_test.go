package services_test

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/dukex/chatflow/pkg/graph"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/nodes"
	"github.com/dukex/chatflow/pkg/nodes/action"
	"github.com/dukex/chatflow/pkg/nodes/condition"
	"github.com/dukex/chatflow/pkg/nodes/message"
	"github.com/dukex/chatflow/pkg/nodes/trigger"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type releaser struct {
	released []string
}

func (r *releaser) Release(_ context.Context, flowID string) (int, error) {
	r.released = append(r.released, flowID)

	return 0, nil
}

func setup(t *testing.T) (*services.Flow, *file.Persistence, *releaser) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := file.NewPersistence(t.TempDir())

	reg := registry.NewRegistry(logger)
	require.NoError(t, reg.Register(nodes.Defaults()...))

	rel := &releaser{}

	return services.NewFlow(store, reg, rel, logger), store, rel
}

func validGraph() ([]*models.Node, []*models.Edge) {
	return []*models.Node{
			{ID: "start", Type: trigger.TypeButtonClick, Config: map[string]any{}},
			{ID: "check", Type: condition.TypeTagPresent, Config: map[string]any{"tag": "vip"}},
			{ID: "vip", Type: message.TypeSendText, Config: map[string]any{"text": "Welcome back"}},
			{ID: "end", Type: action.TypeEnd, Config: map[string]any{}},
		}, []*models.Edge{
			{ID: "e1", SourceNodeID: "start", TargetNodeID: "check"},
			{ID: "e2", SourceNodeID: "check", TargetNodeID: "vip", SourceHandle: "true"},
			{ID: "e3", SourceNodeID: "check", TargetNodeID: "end", SourceHandle: "false"},
			{ID: "e4", SourceNodeID: "vip", TargetNodeID: "end"},
		}
}

func create(t *testing.T, svc *services.Flow) *models.Flow {
	t.Helper()

	flow, err := svc.Create(t.Context(), &models.Flow{
		OrganizationID: "org-1",
		Name:           "Welcome",
		Trigger:        models.FlowTrigger{Type: trigger.TypeButtonClick},
	})
	require.NoError(t, err)

	return flow
}

func TestFlow_CreateValidates(t *testing.T) {
	t.Parallel()

	svc, _, _ := setup(t)

	_, err := svc.Create(t.Context(), &models.Flow{OrganizationID: "org-1", Name: "  "})
	require.ErrorIs(t, err, services.ErrNameRequired)
	assert.True(t, services.IsValidationError(err))

	_, err = svc.Create(t.Context(), &models.Flow{Name: "Welcome"})
	require.ErrorIs(t, err, services.ErrOrgRequired)

	flow := create(t, svc)
	assert.NotEmpty(t, flow.ID)
	assert.Equal(t, models.FlowStatusDraft, flow.Status)
	assert.False(t, flow.Runnable())
}

func TestFlow_SaveAndLoadGraph(t *testing.T) {
	t.Parallel()

	svc, _, _ := setup(t)
	flow := create(t, svc)

	nodes, edges := validGraph()

	version, err := svc.SaveGraph(t.Context(), flow.ID, nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	loadedNodes, loadedEdges, err := svc.LoadGraph(t.Context(), flow.ID)
	require.NoError(t, err)
	require.Len(t, loadedNodes, 4)
	require.Len(t, loadedEdges, 4)
	assert.Equal(t, "vip", loadedNodes[1].Config["tag"])
	assert.Equal(t, "true", loadedEdges[1].SourceHandle)
}

func TestFlow_ActivateRejectsInvalidGraph(t *testing.T) {
	t.Parallel()

	svc, _, rel := setup(t)
	flow := create(t, svc)

	nodes, edges := validGraph()
	_, err := svc.SaveGraph(t.Context(), flow.ID, nodes, edges[:2])
	require.NoError(t, err, "drafts may hold incomplete graphs")

	_, err = svc.Activate(t.Context(), flow.ID)
	require.ErrorIs(t, err, models.ErrGraphInvalid)

	var graphErr *graph.Error
	require.ErrorAs(t, err, &graphErr)
	assert.NotEmpty(t, graphErr.Problems)

	stored, err := svc.FetchByID(t.Context(), flow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusDraft, stored.Status)
	assert.Empty(t, rel.released)
}

func TestFlow_Lifecycle(t *testing.T) {
	t.Parallel()

	svc, _, rel := setup(t)
	flow := create(t, svc)

	nodes, edges := validGraph()
	_, err := svc.SaveGraph(t.Context(), flow.ID, nodes, edges)
	require.NoError(t, err)

	active, err := svc.Activate(t.Context(), flow.ID)
	require.NoError(t, err)
	assert.True(t, active.Runnable())
	assert.Equal(t, []string{flow.ID}, rel.released)

	err = svc.Delete(t.Context(), flow.ID)
	require.ErrorIs(t, err, services.ErrFlowActive)
	assert.True(t, services.IsConflictError(err))

	nodes, edges = validGraph()
	_, err = svc.SaveGraph(t.Context(), flow.ID, nodes, edges[1:])
	require.ErrorIs(t, err, models.ErrGraphInvalid, "an active flow keeps a valid graph")

	paused, err := svc.Pause(t.Context(), flow.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusPaused, paused.Status)

	_, err = svc.Pause(t.Context(), flow.ID)
	require.ErrorIs(t, err, models.ErrFlowNotActive)

	require.NoError(t, svc.Delete(t.Context(), flow.ID))

	_, err = svc.FetchByID(t.Context(), flow.ID)
	require.ErrorIs(t, err, models.ErrFlowNotFound)
	assert.True(t, services.IsNotFound(err))
}

func TestFlow_Duplicate(t *testing.T) {
	t.Parallel()

	svc, _, _ := setup(t)
	flow := create(t, svc)

	nodes, edges := validGraph()
	_, err := svc.SaveGraph(t.Context(), flow.ID, nodes, edges)
	require.NoError(t, err)

	_, err = svc.Activate(t.Context(), flow.ID)
	require.NoError(t, err)

	copied, err := svc.Duplicate(t.Context(), flow.ID, "")
	require.NoError(t, err)
	assert.NotEqual(t, flow.ID, copied.ID)
	assert.Equal(t, "Welcome (copy)", copied.Name)
	assert.Equal(t, models.FlowStatusDraft, copied.Status)
	assert.Zero(t, copied.TotalExecutions)

	copiedNodes, copiedEdges, err := svc.LoadGraph(t.Context(), copied.ID)
	require.NoError(t, err)
	require.Len(t, copiedNodes, len(nodes))

	ids := make(map[string]bool, len(copiedNodes))
	for _, node := range copiedNodes {
		assert.NotContains(t, []string{"start", "check", "vip", "end"}, node.ID)
		ids[node.ID] = true
	}

	for _, edge := range copiedEdges {
		assert.True(t, ids[edge.SourceNodeID])
		assert.True(t, ids[edge.TargetNodeID])
	}

	require.NoError(t, svc.Validate(t.Context(), copied.ID))
}

func TestFlow_UpdateDefinition(t *testing.T) {
	t.Parallel()

	svc, _, _ := setup(t)
	flow := create(t, svc)

	nodes, edges := validGraph()
	_, err := svc.SaveGraph(t.Context(), flow.ID, nodes, edges)
	require.NoError(t, err)

	_, err = svc.Activate(t.Context(), flow.ID)
	require.NoError(t, err)

	_, err = svc.UpdateDefinition(t.Context(), flow.ID, func(f *models.Flow) {
		f.Trigger = models.FlowTrigger{Type: trigger.TypeKeyword, Config: map[string]any{"keywords": []any{"hi"}}}
	})
	require.ErrorIs(t, err, models.ErrGraphInvalid, "no keyword node starts the flow")

	updated, err := svc.UpdateDefinition(t.Context(), flow.ID, func(f *models.Flow) {
		f.Trigger.Config = map[string]any{"button_text": "Start"}
		f.Reentry = models.Reentry{Policy: models.ReentryNever}
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReentryNever, updated.Reentry.Policy)
}
