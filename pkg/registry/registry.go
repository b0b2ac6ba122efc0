// Package registry holds the closed set of node types and validates node
// configurations against their schemas.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/dukex/chatflow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var ErrDuplicateType = errors.New("node type already registered")

// ConfigError lists the problems found in one node configuration.
type ConfigError struct {
	NodeType string
	Problems []string
	Err      error
}

func (e *ConfigError) Error() string {
	if len(e.Problems) > 0 {
		return fmt.Sprintf("invalid config for %s: %s", e.NodeType, strings.Join(e.Problems, "; "))
	}

	return fmt.Sprintf("invalid config for %s: %v", e.NodeType, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func (e *ConfigError) Is(target error) bool {
	return target == models.ErrConfigInvalid || errors.Is(e.Err, target)
}

type entry struct {
	nodeType protocol.NodeType
	schema   *gojsonschema.Schema
}

type Registry struct {
	logger *slog.Logger
	types  map[string]entry
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger.With("module", "registry"),
		types:  make(map[string]entry),
	}
}

// Register compiles the schema of every node type and adds it to the registry.
func (r *Registry) Register(nodeTypes ...protocol.NodeType) error {
	for _, nodeType := range nodeTypes {
		if _, exists := r.types[nodeType.Type()]; exists {
			return fmt.Errorf("%w: %s", ErrDuplicateType, nodeType.Type())
		}

		schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(nodeType.Schema()))
		if err != nil {
			return fmt.Errorf("failed to compile schema for %s: %w", nodeType.Type(), err)
		}

		r.types[nodeType.Type()] = entry{nodeType: nodeType, schema: schema}

		r.logger.Debug("Registered node type", "type", nodeType.Type(), "category", nodeType.Category())
	}

	return nil
}

func (r *Registry) Lookup(nodeType string) (protocol.NodeType, bool) {
	e, ok := r.types[nodeType]

	return e.nodeType, ok
}

// Types returns every registered node type ordered by identifier.
func (r *Registry) Types() []protocol.NodeType {
	types := make([]protocol.NodeType, 0, len(r.types))

	for _, e := range r.types {
		types = append(types, e.nodeType)
	}

	sort.Slice(types, func(i, j int) bool {
		return types[i].Type() < types[j].Type()
	})

	return types
}

// ValidateConfig checks config against the JSON schema of nodeType.
func (r *Registry) ValidateConfig(nodeType string, config map[string]any) error {
	e, ok := r.types[nodeType]
	if !ok {
		return &ConfigError{NodeType: nodeType, Problems: []string{"unknown node type"}}
	}

	if config == nil {
		config = map[string]any{}
	}

	result, err := e.schema.Validate(gojsonschema.NewGoLoader(config))
	if err != nil {
		return &ConfigError{NodeType: nodeType, Err: err}
	}

	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	return &ConfigError{NodeType: nodeType, Problems: problems}
}

// Decode validates config and returns the typed configuration.
func (r *Registry) Decode(nodeType string, config map[string]any) (protocol.NodeType, protocol.NodeConfig, error) {
	err := r.ValidateConfig(nodeType, config)
	if err != nil {
		return nil, nil, err
	}

	e := r.types[nodeType]

	cfg, err := e.nodeType.Decode(config)
	if err != nil {
		return nil, nil, &ConfigError{NodeType: nodeType, Err: err}
	}

	return e.nodeType, cfg, nil
}

// HealthCheck reports whether any node type is registered.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.types) == 0 {
		return "No node types registered", false
	}

	return fmt.Sprintf("%d node types registered", len(r.types)), true
}
