// Package protocol defines the contracts between the engine, the node types
// and the external collaborators.
package protocol

import (
	"context"
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

type Category string

const (
	CategoryTrigger   Category = "trigger"
	CategoryCondition Category = "condition"
	CategoryMessage   Category = "message"
	CategoryAction    Category = "action"
)

// Reserved handle names.
const (
	HandleDefault = "default"
	HandleTrue    = "true"
	HandleFalse   = "false"
	HandleNoMatch = "no_match"
)

// NodeType describes one entry of the closed node type set and decodes
// stored configuration documents into typed configs.
type NodeType interface {
	// Type returns the identifier stored on nodes, e.g. "action:add_tag".
	Type() string
	Category() Category
	Name() string
	Description() string
	// Schema returns the JSON schema the raw config must satisfy.
	Schema() map[string]any
	Decode(config map[string]any) (NodeConfig, error)
}

// NodeConfig is a decoded, validated node configuration.
type NodeConfig interface {
	// Handles lists every output the node may leave through.
	Handles() []string
	// RequiredHandles lists the outputs that must be connected before activation.
	RequiredHandles() []string
	// Suspends reports whether evaluation always suspends the execution,
	// which makes the node a legal cycle boundary.
	Suspends() bool
	Evaluate(ctx context.Context, in EvalContext) (Outcome, error)
}

// Resumer is implemented by configs whose evaluation suspends. Resume maps
// the signal that woke the execution to the outgoing handle.
type Resumer interface {
	Resume(ctx context.Context, in EvalContext, event models.InboundEvent) (Outcome, error)
}

// HandleMatcher is implemented by Resumers whose output depends on the event
// alone. ResumeHandle returns HandleNoMatch when the event fits no output.
type HandleMatcher interface {
	ResumeHandle(event models.InboundEvent) string
}

// TriggerConfig is implemented by trigger configs.
type TriggerConfig interface {
	NodeConfig
	Matches(event models.InboundEvent) bool
}

// EvalContext is the read-only view a node gets of the execution.
type EvalContext struct {
	ExecutionID string
	FlowID      string
	NodeID      string
	Epoch       int64
	Contact     *models.Contact
	Variables   map[string]any
	Now         time.Time
}

// TemplateData is the data message and webhook templates render against.
func (in EvalContext) TemplateData() map[string]any {
	return map[string]any{
		"contact": in.Contact.TemplateData(),
		"vars":    in.Variables,
		"execution": map[string]any{
			"id":      in.ExecutionID,
			"flow_id": in.FlowID,
		},
	}
}

// Outcome is the result of evaluating a node.
type Outcome struct {
	NextHandle   string
	SideEffect   *SideEffect
	ContextPatch map[string]any
	Suspend      *Suspend
	Terminal     bool
}

// Suspend parks the execution until one of Events arrives or, when Delay is
// positive, until the delay elapses.
type Suspend struct {
	Events []models.EventKind
	Delay  time.Duration
}

// Next is the outcome of a node that always leaves through handle.
func Next(handle string) Outcome {
	return Outcome{NextHandle: handle}
}
