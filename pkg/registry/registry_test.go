package registry_test

import (
	"log/slog"
	"testing"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/nodes"
	"github.com/dukex/chatflow/pkg/nodes/action"
	"github.com/dukex/chatflow/pkg/nodes/trigger"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/dukex/chatflow/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	reg := registry.NewRegistry(slog.Default())
	require.NoError(t, reg.Register(nodes.Defaults()...))

	return reg
}

func TestRegistry_Types(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t)
	types := reg.Types()

	require.Len(t, types, 25)

	counts := map[protocol.Category]int{}
	for i, nt := range types {
		counts[nt.Category()]++

		if i > 0 {
			assert.Less(t, types[i-1].Type(), nt.Type(), "types are sorted")
		}
	}

	assert.Equal(t, 5, counts[protocol.CategoryTrigger])
	assert.Equal(t, 6, counts[protocol.CategoryCondition])
	assert.Equal(t, 6, counts[protocol.CategoryMessage])
	assert.Equal(t, 8, counts[protocol.CategoryAction])
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t)

	err := reg.Register(action.Types()[0])
	require.ErrorIs(t, err, registry.ErrDuplicateType)
}

func TestRegistry_Decode(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t)

	nodeType, cfg, err := reg.Decode(action.TypeAddTag, map[string]any{"tag": "confirmed"})
	require.NoError(t, err)
	assert.Equal(t, action.TypeAddTag, nodeType.Type())
	assert.Equal(t, []string{protocol.HandleDefault}, cfg.Handles())
}

func TestRegistry_DecodeSchemaViolation(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t)

	_, _, err := reg.Decode(trigger.TypeKeyword, map[string]any{"match": "fuzzy"})
	require.ErrorIs(t, err, models.ErrConfigInvalid)

	var configErr *registry.ConfigError
	require.ErrorAs(t, err, &configErr)
	assert.Equal(t, trigger.TypeKeyword, configErr.NodeType)
	assert.Len(t, configErr.Problems, 2, "missing keywords and invalid match")
}

func TestRegistry_DecodeUnknownType(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t)

	_, _, err := reg.Decode("action:teleport", nil)
	require.ErrorIs(t, err, models.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "unknown node type")
}

func TestRegistry_Lookup(t *testing.T) {
	t.Parallel()

	reg := newRegistry(t)

	nt, ok := reg.Lookup(action.TypeEnd)
	require.True(t, ok)
	assert.Equal(t, "End", nt.Name())

	_, ok = reg.Lookup("nope")
	assert.False(t, ok)
}

func TestRegistry_HealthCheck(t *testing.T) {
	t.Parallel()

	_, ok := registry.NewRegistry(slog.Default()).HealthCheck()
	assert.False(t, ok)

	msg, ok := newRegistry(t).HealthCheck()
	assert.True(t, ok)
	assert.Equal(t, "25 node types registered", msg)
}
