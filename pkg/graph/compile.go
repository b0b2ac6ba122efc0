package graph

import (
	"fmt"
	"slices"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
)

type compiler struct {
	flow     *models.Flow
	graph    *Graph
	problems []Problem
}

func (c *compiler) graphProblem(nodeID, edgeID, format string, args ...any) {
	c.problems = append(c.problems, Problem{
		Kind:    models.ErrGraphInvalid,
		NodeID:  nodeID,
		EdgeID:  edgeID,
		Message: fmt.Sprintf(format, args...),
	})
}

// Compile validates a flow graph and builds its handle index. It reports
// every problem found rather than stopping at the first one.
func Compile(flow *models.Flow, nodes []*models.Node, edges []*models.Edge, dec Decoder) (*Graph, error) {
	c := &compiler{
		flow: flow,
		graph: &Graph{
			FlowID:      flow.ID,
			Version:     flow.GraphVersion,
			TriggerType: flow.Trigger.Type,
			nodes:       make(map[string]*Node, len(nodes)),
			next:        make(map[handleKey]string, len(edges)),
			incoming:    make(map[string]int, len(nodes)),
		},
	}

	if len(nodes) == 0 {
		c.graphProblem("", "", "flow has no nodes")

		return nil, &Error{FlowID: flow.ID, Problems: c.problems}
	}

	c.decodeNodes(nodes, dec)
	c.indexEdges(edges)
	c.checkConnectivity()
	c.checkTrigger(dec)
	c.checkCycles()

	if len(c.problems) > 0 {
		return nil, &Error{FlowID: flow.ID, Problems: c.problems}
	}

	return c.graph, nil
}

func (c *compiler) decodeNodes(nodes []*models.Node, dec Decoder) {
	for _, node := range nodes {
		if node.ID == "" {
			c.graphProblem("", "", "node without id")

			continue
		}

		if _, exists := c.graph.nodes[node.ID]; exists {
			c.graphProblem(node.ID, "", "duplicate node id")

			continue
		}

		if node.FlowID != "" && node.FlowID != c.flow.ID {
			c.graphProblem(node.ID, "", "node belongs to flow %s", node.FlowID)
		}

		compiled := &Node{Node: node}

		nodeType, cfg, err := dec.Decode(node.Type, node.Config)
		if err != nil {
			c.problems = append(c.problems, Problem{
				Kind:    models.ErrConfigInvalid,
				NodeID:  node.ID,
				Message: err.Error(),
			})
		} else {
			compiled.NodeType = nodeType
			compiled.Config = cfg
		}

		c.graph.nodes[node.ID] = compiled
		c.graph.orderedNodes = append(c.graph.orderedNodes, node.ID)
	}
}

func (c *compiler) indexEdges(edges []*models.Edge) {
	for _, edge := range edges {
		if edge.FlowID != "" && edge.FlowID != c.flow.ID {
			c.graphProblem("", edge.ID, "edge belongs to flow %s", edge.FlowID)

			continue
		}

		source, ok := c.graph.nodes[edge.SourceNodeID]
		if !ok {
			c.graphProblem("", edge.ID, "source node %q is not part of the flow", edge.SourceNodeID)

			continue
		}

		target, ok := c.graph.nodes[edge.TargetNodeID]
		if !ok {
			c.graphProblem("", edge.ID, "target node %q is not part of the flow", edge.TargetNodeID)

			continue
		}

		if target.NodeType != nil && target.NodeType.Category() == protocol.CategoryTrigger {
			c.graphProblem("", edge.ID, "trigger node %s cannot have incoming edges", target.ID)
		}

		c.graph.incoming[target.ID]++

		// Handles of a node with an invalid config are unknown; its config
		// problem is already reported.
		if source.Config == nil {
			continue
		}

		handles := source.Config.Handles()
		if len(handles) == 0 {
			c.graphProblem(source.ID, edge.ID, "node has no outputs")

			continue
		}

		handle := NormalizeHandle(source.Config, edge.SourceHandle)
		if !slices.Contains(handles, handle) {
			c.graphProblem(source.ID, edge.ID, "unknown output %q", edge.SourceHandle)

			continue
		}

		key := handleKey{nodeID: source.ID, handle: handle}
		if existing, taken := c.graph.next[key]; taken {
			c.graphProblem(source.ID, edge.ID, "output %q already connected to %s", handle, existing)

			continue
		}

		c.graph.next[key] = target.ID
	}
}

func (c *compiler) checkConnectivity() {
	for _, id := range c.graph.orderedNodes {
		node := c.graph.nodes[id]
		if node.Config == nil {
			continue
		}

		if node.NodeType.Category() != protocol.CategoryTrigger && c.graph.incoming[id] == 0 {
			c.graphProblem(id, "", "node is unreachable: no incoming edge")
		}

		for _, handle := range node.Config.RequiredHandles() {
			if _, ok := c.graph.next[handleKey{nodeID: id, handle: handle}]; !ok {
				c.graphProblem(id, "", "output %q is not connected", handle)
			}
		}
	}
}

func (c *compiler) checkTrigger(dec Decoder) {
	if c.flow.Trigger.Type == "" {
		c.graphProblem("", "", "flow has no trigger")

		return
	}

	var entry *Node

	for _, id := range c.graph.orderedNodes {
		node := c.graph.nodes[id]
		if node.Type == c.flow.Trigger.Type && node.Config != nil {
			entry = node

			break
		}
	}

	if entry == nil {
		c.graphProblem("", "", "no %s node starts the flow", c.flow.Trigger.Type)

		return
	}

	c.graph.entryNodeID = entry.ID

	cfg := entry.Config
	if c.flow.Trigger.Config != nil {
		_, decoded, err := dec.Decode(c.flow.Trigger.Type, c.flow.Trigger.Config)
		if err != nil {
			c.problems = append(c.problems, Problem{Kind: models.ErrConfigInvalid, Message: "flow trigger: " + err.Error()})

			return
		}

		cfg = decoded
	}

	trigger, ok := cfg.(protocol.TriggerConfig)
	if !ok {
		c.graphProblem(entry.ID, "", "%s is not a trigger type", c.flow.Trigger.Type)

		return
	}

	c.graph.trigger = trigger
}

const (
	unvisited = iota
	visiting
	done
)

// checkCycles rejects cycles an execution could run through without
// suspending. Edges leaving a suspending node break a cycle.
func (c *compiler) checkCycles() {
	state := make(map[string]int, len(c.graph.nodes))

	var visit func(id string) bool

	visit = func(id string) bool {
		state[id] = visiting

		node := c.graph.nodes[id]
		if node.Config == nil || !node.Config.Suspends() {
			for _, handle := range c.outputs(node) {
				target, ok := c.graph.next[handleKey{nodeID: id, handle: handle}]
				if !ok {
					continue
				}

				switch state[target] {
				case visiting:
					c.graphProblem(target, "", "cycle through %s does not pass a waiting node", id)

					return true
				case unvisited:
					if visit(target) {
						return true
					}
				}
			}
		}

		state[id] = done

		return false
	}

	for _, id := range c.graph.orderedNodes {
		if state[id] == unvisited && visit(id) {
			return
		}
	}
}

func (c *compiler) outputs(node *Node) []string {
	if node.Config == nil {
		return nil
	}

	return node.Config.Handles()
}
