package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/chatflow/pkg/graph"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/google/uuid"
)

// Releaser continues the executions held while a flow was paused.
type Releaser interface {
	Release(ctx context.Context, flowID string) (int, error)
}

type Flow struct {
	persistence persistence.Persistence
	decoder     graph.Decoder
	releaser    Releaser
	logger      *slog.Logger
}

// NewFlow creates the flow service. releaser may be nil when no engine runs
// in the process; held executions are then released by the next resume.
func NewFlow(persistence persistence.Persistence, decoder graph.Decoder, releaser Releaser, logger *slog.Logger) *Flow {
	return &Flow{
		persistence: persistence,
		decoder:     decoder,
		releaser:    releaser,
		logger:      logger.With("module", "flow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Flow) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// Create stores a new flow as a draft.
func (s *Flow) Create(ctx context.Context, flow *models.Flow) (*models.Flow, error) {
	if flow == nil {
		return nil, ErrFlowNil
	}

	flow.Name = strings.TrimSpace(flow.Name)
	if flow.Name == "" {
		return nil, NewValidationError("Create", "NAME_REQUIRED", "flow name is required", ErrNameRequired)
	}

	if flow.OrganizationID == "" {
		return nil, NewValidationError("Create", "ORGANIZATION_REQUIRED", "organization_id is required", ErrOrgRequired)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate flow ID: %w", err)
	}

	flow.ID = id.String()
	flow.Status = models.FlowStatusDraft
	flow.IsActive = true
	flow.TotalExecutions, flow.SucceededExecutions, flow.FailedExecutions = 0, 0, 0
	flow.LastExecutedAt = nil
	flow.GraphVersion = 0

	err = s.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to create flow: %w", err)
	}

	return flow, nil
}

func (s *Flow) List(ctx context.Context, orgID string) ([]*models.Flow, error) {
	return s.persistence.FlowRepository().List(ctx, orgID)
}

func (s *Flow) FetchByID(ctx context.Context, id string) (*models.Flow, error) {
	return s.persistence.FlowRepository().GetByID(ctx, id)
}

// UpdateDefinition replaces the editable fields of a flow: name,
// description, trigger and re-entry policy. The trigger of an active flow is
// checked against its graph before it is stored.
func (s *Flow) UpdateDefinition(ctx context.Context, id string, update func(*models.Flow)) (*models.Flow, error) {
	flow, err := s.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	update(flow)

	if strings.TrimSpace(flow.Name) == "" {
		return nil, NewValidationError("UpdateDefinition", "NAME_REQUIRED", "flow name is required", ErrNameRequired)
	}

	if flow.Status == models.FlowStatusActive {
		_, err = s.compile(ctx, flow, nil, nil)
		if err != nil {
			return nil, err
		}
	}

	err = s.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to update flow: %w", err)
	}

	return flow, nil
}

// Delete removes a flow that is not active.
func (s *Flow) Delete(ctx context.Context, id string) error {
	flow, err := s.FetchByID(ctx, id)
	if err != nil {
		return err
	}

	if flow.Status == models.FlowStatusActive {
		return fmt.Errorf("pause flow %s before deleting it: %w", id, ErrFlowActive)
	}

	return s.persistence.FlowRepository().Delete(ctx, id)
}

// SaveGraph replaces the graph of a flow. The graph of an active flow must
// stay valid, otherwise the stored graph is kept.
func (s *Flow) SaveGraph(ctx context.Context, flowID string, nodes []*models.Node, edges []*models.Edge) (int64, error) {
	flow, err := s.FetchByID(ctx, flowID)
	if err != nil {
		return 0, err
	}

	assignIDs(nodes, edges)

	if flow.Status == models.FlowStatusActive {
		_, err = graph.Compile(flow, nodes, edges, s.decoder)
		if err != nil {
			return 0, err
		}
	}

	version, err := s.persistence.FlowRepository().SaveGraph(ctx, flowID, nodes, edges)
	if err != nil {
		return 0, err
	}

	s.logger.InfoContext(ctx, "Graph saved", "flow_id", flowID, "graph_version", version, "nodes", len(nodes), "edges", len(edges))

	return version, nil
}

func (s *Flow) LoadGraph(ctx context.Context, flowID string) ([]*models.Node, []*models.Edge, error) {
	return s.persistence.FlowRepository().LoadGraph(ctx, flowID)
}

// Validate compiles the stored graph of a flow. The returned error lists
// every problem found.
func (s *Flow) Validate(ctx context.Context, flowID string) error {
	flow, err := s.FetchByID(ctx, flowID)
	if err != nil {
		return err
	}

	_, err = s.compile(ctx, flow, nil, nil)

	return err
}

// compile validates flow with the given graph, or its stored graph when
// nodes is nil.
func (s *Flow) compile(ctx context.Context, flow *models.Flow, nodes []*models.Node, edges []*models.Edge) (*graph.Graph, error) {
	if nodes == nil {
		var err error

		nodes, edges, err = s.LoadGraph(ctx, flow.ID)
		if err != nil {
			return nil, err
		}
	}

	return graph.Compile(flow, nodes, edges, s.decoder)
}

// Activate validates the graph and puts the flow in service. Executions held
// while the flow was paused continue.
func (s *Flow) Activate(ctx context.Context, id string) (*models.Flow, error) {
	flow, err := s.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	_, err = s.compile(ctx, flow, nil, nil)
	if err != nil {
		return nil, err
	}

	flow.Status = models.FlowStatusActive
	flow.IsActive = true

	err = s.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to activate flow: %w", err)
	}

	s.logger.InfoContext(ctx, "Flow activated", "flow_id", id)

	if s.releaser != nil {
		_, err = s.releaser.Release(ctx, id)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to release held executions", "flow_id", id, "error", err)
		}
	}

	return flow, nil
}

// Pause stops new triggers and holds the running executions of the flow at
// their next step.
func (s *Flow) Pause(ctx context.Context, id string) (*models.Flow, error) {
	flow, err := s.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if flow.Status != models.FlowStatusActive {
		return nil, fmt.Errorf("flow %s is %s: %w", id, flow.Status, models.ErrFlowNotActive)
	}

	flow.Status = models.FlowStatusPaused

	err = s.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to pause flow: %w", err)
	}

	s.logger.InfoContext(ctx, "Flow paused", "flow_id", id)

	return flow, nil
}

// SetEnabled toggles the is_active gate without changing the status.
func (s *Flow) SetEnabled(ctx context.Context, id string, enabled bool) (*models.Flow, error) {
	flow, err := s.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	flow.IsActive = enabled

	err = s.persistence.FlowRepository().Save(ctx, flow)
	if err != nil {
		return nil, fmt.Errorf("failed to update flow: %w", err)
	}

	if enabled && flow.Runnable() && s.releaser != nil {
		_, err = s.releaser.Release(ctx, id)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to release held executions", "flow_id", id, "error", err)
		}
	}

	return flow, nil
}

// Duplicate copies a flow and its graph into a new draft. Nodes and edges
// get fresh ids.
func (s *Flow) Duplicate(ctx context.Context, id, name string) (*models.Flow, error) {
	source, err := s.FetchByID(ctx, id)
	if err != nil {
		return nil, err
	}

	nodes, edges, err := s.LoadGraph(ctx, id)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = source.Name + " (copy)"
	}

	copied, err := s.Create(ctx, &models.Flow{
		OrganizationID: source.OrganizationID,
		Name:           name,
		Description:    source.Description,
		Trigger:        source.Trigger,
		Reentry:        source.Reentry,
	})
	if err != nil {
		return nil, err
	}

	newNodes, newEdges := copyGraph(nodes, edges)

	version, err := s.persistence.FlowRepository().SaveGraph(ctx, copied.ID, newNodes, newEdges)
	if err != nil {
		return nil, err
	}

	copied.GraphVersion = version

	s.logger.InfoContext(ctx, "Flow duplicated", "flow_id", id, "copy_id", copied.ID)

	return copied, nil
}

// Logs returns the execution log of an execution.
func (s *Flow) Logs(ctx context.Context, executionID string) ([]*models.ExecutionLogEntry, error) {
	_, err := s.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	return s.persistence.LogRepository().ListByExecution(ctx, executionID)
}

// Execution returns one execution context.
func (s *Flow) Execution(ctx context.Context, executionID string) (*models.ExecutionContext, error) {
	return s.persistence.ExecutionRepository().GetByID(ctx, executionID)
}

func assignIDs(nodes []*models.Node, edges []*models.Edge) {
	for _, node := range nodes {
		if node.ID == "" {
			node.ID = uuid.NewString()
		}
	}

	for _, edge := range edges {
		if edge.ID == "" {
			edge.ID = uuid.NewString()
		}
	}
}

func copyGraph(nodes []*models.Node, edges []*models.Edge) ([]*models.Node, []*models.Edge) {
	ids := make(map[string]string, len(nodes))
	newNodes := make([]*models.Node, 0, len(nodes))

	for _, node := range nodes {
		copied := *node
		copied.ID = uuid.NewString()
		copied.Config = cloneMap(node.Config)
		ids[node.ID] = copied.ID
		newNodes = append(newNodes, &copied)
	}

	newEdges := make([]*models.Edge, 0, len(edges))

	for _, edge := range edges {
		copied := *edge
		copied.ID = uuid.NewString()
		copied.SourceNodeID = ids[edge.SourceNodeID]
		copied.TargetNodeID = ids[edge.TargetNodeID]
		newEdges = append(newEdges, &copied)
	}

	return newNodes, newEdges
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))

	for k, v := range m {
		switch typed := v.(type) {
		case map[string]any:
			out[k] = cloneMap(typed)
		case []any:
			out[k] = append([]any(nil), typed...)
		default:
			out[k] = v
		}
	}

	return out
}

// IsNotFound reports errors answered with 404.
func IsNotFound(err error) bool {
	return errors.Is(err, models.ErrFlowNotFound) ||
		errors.Is(err, models.ErrExecutionNotFound) ||
		errors.Is(err, models.ErrContactNotFound)
}
