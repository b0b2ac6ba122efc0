// Package web provides the HTTP API of the flow engine.
package web

import (
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

// CreateFlowRequest represents the request body for creating a flow.
type CreateFlowRequest struct {
	OrganizationID string             `json:"organization_id" validate:"required"`
	Name           string             `json:"name"            validate:"required,min=3"`
	Description    string             `json:"description"`
	Trigger        models.FlowTrigger `json:"trigger"         validate:"required"`
	Reentry        models.Reentry     `json:"reentry"`
}

// UpdateFlowRequest carries a partial update of the flow definition.
type UpdateFlowRequest struct {
	Name        *string             `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string             `json:"description,omitempty"`
	Trigger     *models.FlowTrigger `json:"trigger,omitempty"`
	Reentry     *models.Reentry     `json:"reentry,omitempty"`
	IsActive    *bool               `json:"is_active,omitempty"`
}

// GraphRequest replaces the whole graph of a flow.
type GraphRequest struct {
	Nodes []*models.Node `json:"nodes" validate:"dive"`
	Edges []*models.Edge `json:"edges" validate:"dive"`
}

type GraphResponse struct {
	FlowID       string         `json:"flow_id"`
	GraphVersion int64          `json:"graph_version"`
	Nodes        []*models.Node `json:"nodes"`
	Edges        []*models.Edge `json:"edges"`
}

type DuplicateFlowRequest struct {
	Name string `json:"name" validate:"omitempty,min=3"`
}

// TriggerRequest starts a flow for one contact by hand.
type TriggerRequest struct {
	ContactID string         `json:"contact_id" validate:"required"`
	Variables map[string]any `json:"variables"`
}

// HookRequest is the body of a webhook trigger call.
type HookRequest struct {
	ContactID string         `json:"contact_id" validate:"required"`
	Event     string         `json:"event"`
	Payload   map[string]any `json:"payload"`
}

type ExecutionsResponse struct {
	Executions []*models.ExecutionContext `json:"executions"`
	Queued     bool                       `json:"queued"`
}

// NodeTypeResponse describes one registered node type.
type NodeTypeResponse struct {
	Type        string            `json:"type"`
	Category    protocol.Category `json:"category"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Schema      map[string]any    `json:"schema"`
}

// TransformNodeType builds the public description of a node type.
func TransformNodeType(nodeType protocol.NodeType) NodeTypeResponse {
	return NodeTypeResponse{
		Type:        nodeType.Type(),
		Category:    nodeType.Category(),
		Name:        nodeType.Name(),
		Description: nodeType.Description(),
		Schema:      nodeType.Schema(),
	}
}
