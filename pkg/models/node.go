package models

// Node is one typed step inside a flow. Config is the type-specific document
// validated by the node type registry.
type Node struct {
	ID        string         `json:"id"         validate:"required"`
	FlowID    string         `json:"flow_id"`
	Type      string         `json:"type"       validate:"required"`
	Name      string         `json:"name"`
	Config    map[string]any `json:"config"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// Edge is a directed connection between two nodes of the same flow,
// optionally leaving from a named output handle of the source node.
type Edge struct {
	ID           string `json:"id"`
	FlowID       string `json:"flow_id"`
	SourceNodeID string `json:"source_node_id"          validate:"required"`
	TargetNodeID string `json:"target_node_id"          validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
	Label        string `json:"label,omitempty"`
}
