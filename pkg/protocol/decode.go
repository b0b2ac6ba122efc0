package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dukex/chatflow/pkg/models"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeConfig converts a raw config document into T and validates its
// struct tags. Failures wrap models.ErrConfigInvalid.
func DecodeConfig[T any](config map[string]any) (*T, error) {
	var out T

	if config == nil {
		config = map[string]any{}
	}

	raw, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrConfigInvalid, err)
	}

	err = json.Unmarshal(raw, &out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrConfigInvalid, err)
	}

	err = validate.Struct(&out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrConfigInvalid, err)
	}

	return &out, nil
}
