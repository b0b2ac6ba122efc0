package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

// ContactRepository is a minimal contact store for single-deployment use.
type ContactRepository struct {
	db *sql.DB
}

func (r *ContactRepository) GetByID(ctx context.Context, id string) (*models.Contact, error) {
	var (
		contact      models.Contact
		tags, fields []byte
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, phone, name, tags, fields, current_flow_id, current_node_id, version, created_at, updated_at
		FROM contacts
		WHERE id = $1
	`, id).Scan(
		&contact.ID,
		&contact.OrganizationID,
		&contact.Phone,
		&contact.Name,
		&tags,
		&fields,
		&contact.CurrentFlowID,
		&contact.CurrentNodeID,
		&contact.Version,
		&contact.CreatedAt,
		&contact.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("contact %s: %w", id, models.ErrContactNotFound)
		}

		return nil, fmt.Errorf("failed to load contact %s: %w", id, err)
	}

	err = errors.Join(jsonColumn(tags, &contact.Tags), jsonColumn(fields, &contact.Fields))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal contact %s: %w", id, err)
	}

	return &contact, nil
}

func (r *ContactRepository) Save(ctx context.Context, contact *models.Contact) error {
	tags := contact.Tags
	if tags == nil {
		tags = []string{}
	}

	fields := contact.Fields
	if fields == nil {
		fields = map[string]any{}
	}

	tagsJSON, err := jsonParam(tags)
	if err != nil {
		return fmt.Errorf("failed to marshal contact tags: %w", err)
	}

	fieldsJSON, err := jsonParam(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal contact fields: %w", err)
	}

	now := time.Now().UTC()

	var result sql.Result

	if contact.Version == 0 {
		result, err = r.db.ExecContext(ctx, `
			INSERT INTO contacts (id, organization_id, phone, name, tags, fields, current_flow_id, current_node_id, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $9)
			ON CONFLICT (id) DO NOTHING
		`, contact.ID, contact.OrganizationID, contact.Phone, contact.Name, tagsJSON, fieldsJSON,
			contact.CurrentFlowID, contact.CurrentNodeID, now)
	} else {
		result, err = r.db.ExecContext(ctx, `
			UPDATE contacts SET
				organization_id = $3,
				phone = $4,
				name = $5,
				tags = $6,
				fields = $7,
				current_flow_id = $8,
				current_node_id = $9,
				updated_at = $10,
				version = version + 1
			WHERE id = $1 AND version = $2
		`, contact.ID, contact.Version, contact.OrganizationID, contact.Phone, contact.Name, tagsJSON, fieldsJSON,
			contact.CurrentFlowID, contact.CurrentNodeID, now)
	}

	if err != nil {
		return fmt.Errorf("failed to save contact %s: %w", contact.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save contact %s: %w", contact.ID, err)
	}

	if affected == 0 {
		return fmt.Errorf("contact %s changed: %w", contact.ID, models.ErrStorageConflict)
	}

	if contact.Version == 0 {
		contact.CreatedAt = now
	}

	contact.Version++
	contact.UpdatedAt = now

	return nil
}
