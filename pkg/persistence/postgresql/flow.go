package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/google/uuid"
)

// FlowRepository handles flow and graph database operations.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const flowColumns = `
	id
  , organization_id
  , name
  , description
  , status
  , is_active
  , trigger_type
  , trigger_config
  , reentry
  , total_executions
  , succeeded_executions
  , failed_executions
  , last_executed_at
  , graph_version
  , created_at
  , updated_at
`

func (r *FlowRepository) scanFlow(row scanner) (*models.Flow, error) {
	var (
		flow           models.Flow
		triggerConfig  []byte
		reentry        []byte
		lastExecutedAt sql.NullTime
	)

	err := row.Scan(
		&flow.ID,
		&flow.OrganizationID,
		&flow.Name,
		&flow.Description,
		&flow.Status,
		&flow.IsActive,
		&flow.Trigger.Type,
		&triggerConfig,
		&reentry,
		&flow.TotalExecutions,
		&flow.SucceededExecutions,
		&flow.FailedExecutions,
		&lastExecutedAt,
		&flow.GraphVersion,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = jsonColumn(triggerConfig, &flow.Trigger.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger config: %w", err)
	}

	err = jsonColumn(reentry, &flow.Reentry)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal reentry: %w", err)
	}

	if lastExecutedAt.Valid {
		flow.LastExecutedAt = &lastExecutedAt.Time
	}

	return &flow, nil
}

func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	now := time.Now().UTC()

	if flow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate flow ID: %w", err)
		}

		flow.ID = id.String()
	}

	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	triggerConfig, err := jsonParam(flow.Trigger.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger config: %w", err)
	}

	reentry, err := jsonParam(flow.Reentry)
	if err != nil {
		return fmt.Errorf("failed to marshal reentry: %w", err)
	}

	// Counters and graph_version are only written by IncrementCounters and SaveGraph.
	query := `
		INSERT INTO flows (id, organization_id, name, description, status, is_active,
			trigger_type, trigger_config, reentry, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			is_active = EXCLUDED.is_active,
			trigger_type = EXCLUDED.trigger_type,
			trigger_config = EXCLUDED.trigger_config,
			reentry = EXCLUDED.reentry,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, total_executions, succeeded_executions, failed_executions, graph_version
	`

	err = r.db.QueryRowContext(ctx, query,
		flow.ID,
		flow.OrganizationID,
		flow.Name,
		flow.Description,
		flow.Status,
		flow.IsActive,
		flow.Trigger.Type,
		triggerConfig,
		reentry,
		flow.CreatedAt,
		flow.UpdatedAt,
	).Scan(&flow.CreatedAt, &flow.TotalExecutions, &flow.SucceededExecutions, &flow.FailedExecutions, &flow.GraphVersion)
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	return nil
}

func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+flowColumns+" FROM flows WHERE id = $1", id)

	flow, err := r.scanFlow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewFlowError("GetByID", id, models.ErrFlowNotFound)
		}

		return nil, persistence.NewFlowError("GetByID", id, err)
	}

	return flow, nil
}

func (r *FlowRepository) query(ctx context.Context, query string, args ...any) ([]*models.Flow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := r.scanFlow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}

		flows = append(flows, flow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return flows, nil
}

func (r *FlowRepository) List(ctx context.Context, orgID string) ([]*models.Flow, error) {
	return r.query(ctx, `
		SELECT `+flowColumns+`
		FROM flows
		WHERE $1 = '' OR organization_id = $1
		ORDER BY created_at DESC
	`, orgID)
}

func (r *FlowRepository) ActiveByTrigger(ctx context.Context, orgID, triggerType string) ([]*models.Flow, error) {
	return r.query(ctx, `
		SELECT `+flowColumns+`
		FROM flows
		WHERE organization_id = $1
		  AND trigger_type = $2
		  AND status = 'active'
		  AND is_active
		ORDER BY created_at
	`, orgID, triggerType)
}

func (r *FlowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM flows WHERE id = $1", id)
	if err != nil {
		return persistence.NewFlowError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewFlowError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewFlowError("Delete", id, models.ErrFlowNotFound)
	}

	return nil
}

// SaveGraph replaces the graph in one transaction: the flow row is locked,
// edges and nodes are deleted and the new ones inserted.
func (r *FlowRepository) SaveGraph(ctx context.Context, flowID string, nodes []*models.Node, edges []*models.Edge) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	var version int64

	err = tx.QueryRowContext(ctx, "SELECT graph_version FROM flows WHERE id = $1 FOR UPDATE", flowID).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, persistence.NewFlowError("SaveGraph", flowID, models.ErrFlowNotFound)
		}

		return 0, persistence.NewFlowError("SaveGraph", flowID, err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM flow_edges WHERE flow_id = $1", flowID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete existing edges: %w", err)
	}

	_, err = tx.ExecContext(ctx, "DELETE FROM flow_nodes WHERE flow_id = $1", flowID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete existing nodes: %w", err)
	}

	for i, node := range nodes {
		node.FlowID = flowID

		config := node.Config
		if config == nil {
			config = map[string]any{}
		}

		configJSON, err := jsonParam(config)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal node %s config: %w", node.ID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO flow_nodes (flow_id, id, node_type, name, config, position_x, position_y, ordinal)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, flowID, node.ID, node.Type, node.Name, configJSON, node.PositionX, node.PositionY, i)
		if err != nil {
			return 0, persistence.NewFlowError("SaveGraph", flowID, fmt.Errorf("failed to insert node %s: %w", node.ID, err))
		}
	}

	for i, edge := range edges {
		edge.FlowID = flowID

		_, err = tx.ExecContext(ctx, `
			INSERT INTO flow_edges (flow_id, id, source_node_id, target_node_id, source_handle, label, ordinal)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, flowID, edge.ID, edge.SourceNodeID, edge.TargetNodeID, edge.SourceHandle, edge.Label, i)
		if err != nil {
			return 0, persistence.NewFlowError("SaveGraph", flowID, fmt.Errorf("failed to insert edge %s: %w", edge.ID, err))
		}
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE flows SET graph_version = graph_version + 1, updated_at = $2
		WHERE id = $1
		RETURNING graph_version
	`, flowID, time.Now().UTC()).Scan(&version)
	if err != nil {
		return 0, persistence.NewFlowError("SaveGraph", flowID, err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit graph: %w", err)
	}

	return version, nil
}

func (r *FlowRepository) LoadGraph(ctx context.Context, flowID string) ([]*models.Node, []*models.Edge, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM flows WHERE id = $1)", flowID).Scan(&exists)
	if err != nil {
		return nil, nil, persistence.NewFlowError("LoadGraph", flowID, err)
	}

	if !exists {
		return nil, nil, persistence.NewFlowError("LoadGraph", flowID, models.ErrFlowNotFound)
	}

	nodes, err := r.loadNodes(ctx, flowID)
	if err != nil {
		return nil, nil, err
	}

	edges, err := r.loadEdges(ctx, flowID)
	if err != nil {
		return nil, nil, err
	}

	return nodes, edges, nil
}

func (r *FlowRepository) loadNodes(ctx context.Context, flowID string) ([]*models.Node, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, node_type, name, config, position_x, position_y
		FROM flow_nodes
		WHERE flow_id = $1
		ORDER BY ordinal
	`, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query flow nodes: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	nodes := make([]*models.Node, 0)

	for rows.Next() {
		var (
			node   = &models.Node{FlowID: flowID}
			config []byte
		)

		err := rows.Scan(&node.ID, &node.Type, &node.Name, &config, &node.PositionX, &node.PositionY)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}

		err = jsonColumn(config, &node.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal node %s config: %w", node.ID, err)
		}

		nodes = append(nodes, node)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating nodes: %w", err)
	}

	return nodes, nil
}

func (r *FlowRepository) loadEdges(ctx context.Context, flowID string) ([]*models.Edge, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source_node_id, target_node_id, source_handle, label
		FROM flow_edges
		WHERE flow_id = $1
		ORDER BY ordinal
	`, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query flow edges: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	edges := make([]*models.Edge, 0)

	for rows.Next() {
		edge := &models.Edge{FlowID: flowID}

		err := rows.Scan(&edge.ID, &edge.SourceNodeID, &edge.TargetNodeID, &edge.SourceHandle, &edge.Label)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}

		edges = append(edges, edge)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}

	return edges, nil
}

func (r *FlowRepository) IncrementCounters(ctx context.Context, flowID string, status models.ExecutionStatus, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE flows SET
			total_executions = total_executions + 1,
			succeeded_executions = succeeded_executions + CASE WHEN $2 = 'completed' THEN 1 ELSE 0 END,
			failed_executions = failed_executions + CASE WHEN $2 = 'failed' THEN 1 ELSE 0 END,
			last_executed_at = $3
		WHERE id = $1
	`, flowID, string(status), at)
	if err != nil {
		return persistence.NewFlowError("IncrementCounters", flowID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewFlowError("IncrementCounters", flowID, err)
	}

	if affected == 0 {
		return persistence.NewFlowError("IncrementCounters", flowID, models.ErrFlowNotFound)
	}

	return nil
}
