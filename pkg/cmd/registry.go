// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/chatflow/pkg/nodes"
	"github.com/dukex/chatflow/pkg/registry"
)

// NewRegistry returns a registry holding every built-in node type.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	err := reg.Register(nodes.Defaults()...)
	if err != nil {
		panic(err)
	}

	return reg
}
