package file

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/chatflow/pkg/models"
)

// ContactRepository stores one file per contact.
type ContactRepository struct {
	store *store
}

func (r *ContactRepository) GetByID(_ context.Context, id string) (*models.Contact, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	contact := &models.Contact{}

	found, err := r.store.read(contactsDir, id, contact)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, fmt.Errorf("contact %s: %w", id, models.ErrContactNotFound)
	}

	return contact, nil
}

func (r *ContactRepository) Save(_ context.Context, contact *models.Contact) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	stored := &models.Contact{}

	found, err := r.store.read(contactsDir, contact.ID, stored)
	if err != nil {
		return err
	}

	now := time.Now().UTC()

	switch {
	case contact.Version == 0 && found:
		return fmt.Errorf("contact %s already exists: %w", contact.ID, models.ErrStorageConflict)
	case contact.Version == 0:
		contact.CreatedAt = now
	case !found:
		return fmt.Errorf("contact %s: %w", contact.ID, models.ErrContactNotFound)
	case stored.Version != contact.Version:
		return fmt.Errorf("contact %s changed: %w", contact.ID, models.ErrStorageConflict)
	}

	next := *contact
	next.Version++
	next.UpdatedAt = now

	err = r.store.write(contactsDir, contact.ID, &next)
	if err != nil {
		return err
	}

	contact.Version = next.Version
	contact.UpdatedAt = now

	return nil
}
