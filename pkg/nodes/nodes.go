// Package nodes assembles the built-in node types.
package nodes

import (
	"github.com/dukex/chatflow/pkg/nodes/action"
	"github.com/dukex/chatflow/pkg/nodes/condition"
	"github.com/dukex/chatflow/pkg/nodes/message"
	"github.com/dukex/chatflow/pkg/nodes/trigger"
	"github.com/dukex/chatflow/pkg/protocol"
)

// Defaults returns every built-in node type.
func Defaults() []protocol.NodeType {
	types := trigger.Types()
	types = append(types, condition.Types()...)
	types = append(types, message.Types()...)

	return append(types, action.Types()...)
}
