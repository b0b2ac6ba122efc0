// Package graph validates flow graphs and compiles them into an id-indexed
// adjacency structure for branch resolution.
package graph

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

// Decoder resolves a node type and decodes its configuration.
type Decoder interface {
	Decode(nodeType string, config map[string]any) (protocol.NodeType, protocol.NodeConfig, error)
}

// Problem is one violated rule. Kind is models.ErrGraphInvalid or
// models.ErrConfigInvalid.
type Problem struct {
	Kind    error  `json:"-"`
	NodeID  string `json:"node_id,omitempty"`
	EdgeID  string `json:"edge_id,omitempty"`
	Message string `json:"message"`
}

func (p Problem) String() string {
	switch {
	case p.NodeID != "":
		return fmt.Sprintf("node %s: %s", p.NodeID, p.Message)
	case p.EdgeID != "":
		return fmt.Sprintf("edge %s: %s", p.EdgeID, p.Message)
	default:
		return p.Message
	}
}

// Error lists every problem found in a flow graph.
type Error struct {
	FlowID   string
	Problems []Problem
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.String())
	}

	return fmt.Sprintf("flow %s is invalid: %s", e.FlowID, strings.Join(msgs, "; "))
}

// Is matches models.ErrGraphInvalid and, when any node config is invalid,
// models.ErrConfigInvalid.
func (e *Error) Is(target error) bool {
	if target == models.ErrGraphInvalid {
		return true
	}

	return slices.ContainsFunc(e.Problems, func(p Problem) bool {
		return errors.Is(p.Kind, target)
	})
}

// Node is a node with its decoded configuration.
type Node struct {
	*models.Node

	NodeType protocol.NodeType
	Config   protocol.NodeConfig
}

type handleKey struct {
	nodeID string
	handle string
}

// Graph is a validated flow graph.
type Graph struct {
	FlowID       string
	Version      int64
	TriggerType  string
	entryNodeID  string
	trigger      protocol.TriggerConfig
	nodes        map[string]*Node
	next         map[handleKey]string
	incoming     map[string]int
	orderedNodes []string
}

// Node returns the compiled node by id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]

	return n, ok
}

// Next resolves the target of the edge leaving nodeID through handle.
func (g *Graph) Next(nodeID, handle string) (string, bool) {
	target, ok := g.next[handleKey{nodeID: nodeID, handle: handle}]

	return target, ok
}

// EntryNodeID returns the trigger node new executions start at.
func (g *Graph) EntryNodeID() string {
	return g.entryNodeID
}

// Trigger returns the decoded flow trigger used to match inbound events.
func (g *Graph) Trigger() protocol.TriggerConfig {
	return g.trigger
}

// NodeIDs returns the node ids in declaration order.
func (g *Graph) NodeIDs() []string {
	return g.orderedNodes
}

// NormalizeHandle maps an empty handle to the only output of a single
// output node.
func NormalizeHandle(cfg protocol.NodeConfig, handle string) string {
	if handle != "" || cfg == nil {
		return handle
	}

	if handles := cfg.Handles(); len(handles) == 1 {
		return handles[0]
	}

	return handle
}
