package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/google/uuid"
)

// flowDocument keeps a flow and its graph in one file so SaveGraph is a
// single atomic rename.
type flowDocument struct {
	Flow  *models.Flow   `json:"flow"`
	Nodes []*models.Node `json:"nodes"`
	Edges []*models.Edge `json:"edges"`
}

// FlowRepository handles flow-related file operations.
type FlowRepository struct {
	store *store
}

func (r *FlowRepository) load(id string) (*flowDocument, error) {
	doc := &flowDocument{}

	found, err := r.store.read(flowsDir, id, doc)
	if err != nil {
		return nil, err
	}

	if !found || doc.Flow == nil {
		return nil, models.ErrFlowNotFound
	}

	return doc, nil
}

func (r *FlowRepository) Save(_ context.Context, flow *models.Flow) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now().UTC()

	if flow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate flow ID: %w", err)
		}

		flow.ID = id.String()
	}

	doc := &flowDocument{}

	found, err := r.store.read(flowsDir, flow.ID, doc)
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	if found && doc.Flow != nil {
		flow.CreatedAt = doc.Flow.CreatedAt
		flow.TotalExecutions = doc.Flow.TotalExecutions
		flow.SucceededExecutions = doc.Flow.SucceededExecutions
		flow.FailedExecutions = doc.Flow.FailedExecutions
		flow.LastExecutedAt = doc.Flow.LastExecutedAt
		flow.GraphVersion = doc.Flow.GraphVersion
	}

	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	stored := *flow
	doc.Flow = &stored

	err = r.store.write(flowsDir, flow.ID, doc)
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	return nil
}

func (r *FlowRepository) GetByID(_ context.Context, id string) (*models.Flow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc, err := r.load(id)
	if err != nil {
		return nil, persistence.NewFlowError("GetByID", id, err)
	}

	return doc.Flow, nil
}

func (r *FlowRepository) list(match func(*models.Flow) bool) ([]*models.Flow, error) {
	flows := make([]*models.Flow, 0)

	err := each(r.store, flowsDir, func(doc *flowDocument) error {
		if doc.Flow != nil && match(doc.Flow) {
			flows = append(flows, doc.Flow)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(flows, func(i, j int) bool {
		return flows[i].CreatedAt.After(flows[j].CreatedAt)
	})

	return flows, nil
}

func (r *FlowRepository) List(_ context.Context, orgID string) ([]*models.Flow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.list(func(f *models.Flow) bool {
		return orgID == "" || f.OrganizationID == orgID
	})
}

func (r *FlowRepository) ActiveByTrigger(_ context.Context, orgID, triggerType string) ([]*models.Flow, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	return r.list(func(f *models.Flow) bool {
		return f.OrganizationID == orgID && f.Runnable() && f.Trigger.Type == triggerType
	})
}

func (r *FlowRepository) Delete(_ context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	removed, err := r.store.remove(flowsDir, id)
	if err != nil {
		return persistence.NewFlowError("Delete", id, err)
	}

	if !removed {
		return persistence.NewFlowError("Delete", id, models.ErrFlowNotFound)
	}

	return nil
}

func (r *FlowRepository) SaveGraph(_ context.Context, flowID string, nodes []*models.Node, edges []*models.Edge) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc, err := r.load(flowID)
	if err != nil {
		return 0, persistence.NewFlowError("SaveGraph", flowID, err)
	}

	for _, node := range nodes {
		node.FlowID = flowID
	}

	for _, edge := range edges {
		edge.FlowID = flowID
	}

	doc.Nodes = nodes
	doc.Edges = edges
	doc.Flow.GraphVersion++
	doc.Flow.UpdatedAt = time.Now().UTC()

	err = r.store.write(flowsDir, flowID, doc)
	if err != nil {
		return 0, persistence.NewFlowError("SaveGraph", flowID, err)
	}

	return doc.Flow.GraphVersion, nil
}

func (r *FlowRepository) LoadGraph(_ context.Context, flowID string) ([]*models.Node, []*models.Edge, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc, err := r.load(flowID)
	if err != nil {
		return nil, nil, persistence.NewFlowError("LoadGraph", flowID, err)
	}

	if doc.Nodes == nil {
		doc.Nodes = make([]*models.Node, 0)
	}

	if doc.Edges == nil {
		doc.Edges = make([]*models.Edge, 0)
	}

	return doc.Nodes, doc.Edges, nil
}

func (r *FlowRepository) IncrementCounters(_ context.Context, flowID string, status models.ExecutionStatus, at time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	doc, err := r.load(flowID)
	if err != nil {
		return persistence.NewFlowError("IncrementCounters", flowID, err)
	}

	doc.Flow.TotalExecutions++

	switch status {
	case models.ExecutionStatusCompleted:
		doc.Flow.SucceededExecutions++
	case models.ExecutionStatusFailed:
		doc.Flow.FailedExecutions++
	}

	doc.Flow.LastExecutedAt = &at

	err = r.store.write(flowsDir, flowID, doc)
	if err != nil {
		return persistence.NewFlowError("IncrementCounters", flowID, err)
	}

	return nil
}
