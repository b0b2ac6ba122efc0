package protocol

import (
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
)

// Definition is the NodeType implementation shared by the built-in nodes.
type Definition struct {
	ID           string
	Label        string
	Summary      string
	Kind         Category
	ConfigSchema map[string]any
	DecodeFunc   func(config map[string]any) (NodeConfig, error)
}

func (d *Definition) Type() string {
	return d.ID
}

func (d *Definition) Category() Category {
	return d.Kind
}

func (d *Definition) Name() string {
	return d.Label
}

func (d *Definition) Description() string {
	return d.Summary
}

func (d *Definition) Schema() map[string]any {
	return d.ConfigSchema
}

func (d *Definition) Decode(config map[string]any) (NodeConfig, error) {
	return d.DecodeFunc(config)
}

// Validator is implemented by configs with rules struct tags cannot express.
type Validator interface {
	Validate() error
}

// DecodeAs decodes config into T and runs its Validate method when present.
func DecodeAs[T any, PT interface {
	*T
	NodeConfig
}](config map[string]any) (NodeConfig, error) {
	cfg, err := DecodeConfig[T](config)
	if err != nil {
		return nil, err
	}

	node := PT(cfg)

	if v, ok := any(node).(Validator); ok {
		err := v.Validate()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrConfigInvalid, err)
		}
	}

	return node, nil
}

// SingleOutput is embedded by configs that always leave through the default handle.
type SingleOutput struct{}

func (SingleOutput) Handles() []string {
	return []string{HandleDefault}
}

func (SingleOutput) RequiredHandles() []string {
	return nil
}

// Boolean is embedded by conditions with true and false outputs.
type Boolean struct{}

func (Boolean) Handles() []string {
	return []string{HandleTrue, HandleFalse}
}

func (Boolean) RequiredHandles() []string {
	return []string{HandleTrue, HandleFalse}
}

// Pure is embedded by configs whose evaluation never suspends.
type Pure struct{}

func (Pure) Suspends() bool {
	return false
}

// BoolHandle maps a condition result to its handle.
func BoolHandle(ok bool) string {
	if ok {
		return HandleTrue
	}

	return HandleFalse
}
