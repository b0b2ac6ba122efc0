package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/chatflow/pkg/cmd"
	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/dukex/chatflow/pkg/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func welcomeDocument() *Document {
	return &Document{
		Flow: &models.Flow{
			OrganizationID: "org-1",
			Name:           "Welcome",
			Trigger:        models.FlowTrigger{Type: "trigger:contact_created"},
		},
		Nodes: []*models.Node{
			{ID: "start", Type: "trigger:contact_created", Config: map[string]any{}},
			{ID: "hello", Type: "message:send_text", Config: map[string]any{"text": "Hi {{.contact.name}}"}},
			{ID: "end", Type: "action:end", Config: map[string]any{}},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceNodeID: "start", TargetNodeID: "hello"},
			{ID: "e2", SourceNodeID: "hello", TargetNodeID: "end"},
		},
	}
}

func writeDocument(t *testing.T, doc *Document) string {
	t.Helper()

	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "flow.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	return path
}

func TestValidateFiles(t *testing.T) {
	t.Parallel()

	valid := writeDocument(t, welcomeDocument())

	broken := welcomeDocument()
	broken.Edges = broken.Edges[:1]
	invalid := writeDocument(t, broken)

	var out bytes.Buffer

	require.NoError(t, validateFiles(&out, []string{valid}))
	assert.Contains(t, out.String(), "ok")

	out.Reset()

	err := validateFiles(&out, []string{valid, invalid})
	require.ErrorIs(t, err, errInvalidFlow)
	assert.Contains(t, out.String(), invalid+": invalid")
}

func TestReadDocument_MissingFlow(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"nodes":[]}`), 0o600))

	_, err := readDocument(path)
	require.Error(t, err)
}

func TestImportExport(t *testing.T) {
	t.Parallel()

	logger := slog.Default()
	flowService := services.NewFlow(file.NewPersistence(t.TempDir()), cmd.NewRegistry(logger), nil, logger)

	flow, err := importDocument(t.Context(), flowService, welcomeDocument(), true)
	require.NoError(t, err)
	assert.Equal(t, models.FlowStatusActive, flow.Status)

	doc, err := exportDocument(t.Context(), flowService, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Welcome", doc.Flow.Name)
	assert.Len(t, doc.Nodes, 3)
	assert.Len(t, doc.Edges, 2)
}

func TestReadDocument_YAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "welcome.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
flow:
  organization_id: org-1
  name: Welcome
  trigger:
    type: trigger:contact_created
nodes:
  - id: start
    type: trigger:contact_created
    config: {}
  - id: hello
    type: message:send_text
    config:
      text: Hi there
  - id: end
    type: action:end
    config: {}
edges:
  - source_node_id: start
    target_node_id: hello
  - source_node_id: hello
    target_node_id: end
`), 0o600))

	doc, err := readDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "Welcome", doc.Flow.Name)
	assert.Equal(t, "trigger:contact_created", doc.Flow.Trigger.Type)
	require.Len(t, doc.Nodes, 3)
	assert.Equal(t, "Hi there", doc.Nodes[1].Config["text"])

	var out bytes.Buffer
	require.NoError(t, validateFiles(&out, []string{path}))
}
