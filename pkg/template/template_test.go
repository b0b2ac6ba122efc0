package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_SimpleExpression(t *testing.T) {
	data := map[string]any{
		"name":  "John",
		"age":   30,
		"isNew": true,
	}

	result, err := Render("{{ .name }}", data)
	require.NoError(t, err)
	assert.Equal(t, "John", result)

	result, err = Render("{{ .isNew }}", data)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	// numbers always come back as float64
	result, err = Render("{{ .age }}", data)
	require.NoError(t, err)
	assert.Equal(t, 30.0, result)
}

func TestRender_JSONDocument(t *testing.T) {
	data := map[string]any{
		"contact": map[string]any{"name": "Alice"},
		"vars":    map[string]any{"plan": "gold"},
	}

	result, err := Render(`{"name": "{{ .contact.name }}", "plan": "{{ .vars.plan }}"}`, data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "Alice", "plan": "gold"}, result)
}

func TestRenderString_MissingKeysAreEmpty(t *testing.T) {
	data := map[string]any{
		"contact": map[string]any{"name": "Bob"},
		"vars":    map[string]any{},
	}

	result, err := RenderString("Hi {{ .contact.name }}{{ .vars.suffix }}!", data)
	require.NoError(t, err)
	assert.Equal(t, "Hi Bob!", result)
}

func TestRenderString_PlainTextUntouched(t *testing.T) {
	result, err := RenderString("100", nil)
	require.NoError(t, err)
	assert.Equal(t, "100", result)
}

func TestRenderString_Functions(t *testing.T) {
	data := map[string]any{"vars": map[string]any{"name": ""}}

	result, err := RenderString(`{{ default "friend" .vars.name | upper }}`, data)
	require.NoError(t, err)
	assert.Equal(t, "FRIEND", result)
}

func TestRender_InvalidTemplate(t *testing.T) {
	_, err := Render("{{ .name", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse template")
}

func TestRenderValue_Nested(t *testing.T) {
	data := map[string]any{"vars": map[string]any{"order": "A-1"}}

	result, err := RenderValue(map[string]any{
		"order": "{{ .vars.order }}",
		"items": []any{"{{ .vars.order }}-x", 2},
		"count": 3,
	}, data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"order": "A-1",
		"items": []any{"A-1-x", 2},
		"count": 3,
	}, result)
}
