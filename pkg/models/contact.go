package models

import (
	"slices"
	"time"
)

// Contact is the engine's view of a CRM contact. Version guards
// read-modify-write updates.
type Contact struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	Phone          string         `json:"phone,omitempty"`
	Name           string         `json:"name,omitempty"`
	Tags           []string       `json:"tags"`
	Fields         map[string]any `json:"fields"`
	CurrentFlowID  string         `json:"current_flow_id,omitempty"`
	CurrentNodeID  string         `json:"current_node_id,omitempty"`
	Version        int64          `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (c *Contact) HasTag(tag string) bool {
	return slices.Contains(c.Tags, tag)
}

// AddTag returns false when the tag was already present.
func (c *Contact) AddTag(tag string) bool {
	if c.HasTag(tag) {
		return false
	}

	c.Tags = append(c.Tags, tag)

	return true
}

// RemoveTag returns false when the tag was absent.
func (c *Contact) RemoveTag(tag string) bool {
	idx := slices.Index(c.Tags, tag)
	if idx < 0 {
		return false
	}

	c.Tags = slices.Delete(c.Tags, idx, idx+1)

	return true
}

func (c *Contact) SetField(name string, value any) {
	if c.Fields == nil {
		c.Fields = make(map[string]any)
	}

	c.Fields[name] = value
}

// TemplateData exposes the contact to message templates as .contact.
func (c *Contact) TemplateData() map[string]any {
	if c == nil {
		return map[string]any{}
	}

	return map[string]any{
		"id":     c.ID,
		"name":   c.Name,
		"phone":  c.Phone,
		"tags":   c.Tags,
		"fields": c.Fields,
	}
}
