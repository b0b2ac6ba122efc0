package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukex/chatflow/pkg/models"
	"gopkg.in/yaml.v3"
)

// Document is a flow with its graph as exchanged by import and export.
// Files ending in .yaml or .yml are read as YAML, anything else as JSON.
type Document struct {
	Flow  *models.Flow   `json:"flow"`
	Nodes []*models.Node `json:"nodes"`
	Edges []*models.Edge `json:"edges"`
}

func readDocument(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		raw, err = yamlToJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML in %s: %w", path, err)
		}
	}

	var doc Document

	err = json.Unmarshal(raw, &doc)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if doc.Flow == nil {
		return nil, fmt.Errorf("%s has no flow", path)
	}

	return &doc, nil
}

// yamlToJSON lets YAML documents reuse the json tags of the models.
func yamlToJSON(raw []byte) ([]byte, error) {
	var value any

	err := yaml.Unmarshal(raw, &value)
	if err != nil {
		return nil, err
	}

	return json.Marshal(value)
}
