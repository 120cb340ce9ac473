// ABOUTME: Local contact operations
// ABOUTME: The contacts table is the application-side record source a sync run reads and writes back
package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/crmsync/models"
)

const contactColumns = `id, first_name, last_name, email, phone, company, title, tags, custom_fields, created_at, updated_at`

// CreateContact assigns an id and timestamps unless the contact already has them.
func CreateContact(db *sql.DB, orgID string, contact *models.Contact) error {
	if contact.ID == "" {
		contact.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = now
	}
	if contact.UpdatedAt.IsZero() {
		contact.UpdatedAt = contact.CreatedAt
	}

	if err := upsertContact(db, orgID, contact); err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}
	return nil
}

// UpdateContact saves a local edit and stamps it with the current time.
func UpdateContact(db *sql.DB, orgID string, contact *models.Contact) error {
	tags, custom, err := encodeContactJSON(contact)
	if err != nil {
		return err
	}
	contact.UpdatedAt = time.Now().UTC()

	res, err := db.Exec(`
		UPDATE contacts
		SET first_name = ?, last_name = ?, email = ?, phone = ?, company = ?, title = ?, tags = ?, custom_fields = ?, updated_at = ?
		WHERE id = ? AND org_id = ?
	`, contact.FirstName, contact.LastName, contact.Email, contact.Phone, contact.Company, contact.Title,
		tags, custom, contact.UpdatedAt, contact.ID, orgID)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	return requireRow(res, "contact", contact.ID)
}

// GetContact returns nil, nil for an unknown id.
func GetContact(db *sql.DB, orgID, id string) (*models.Contact, error) {
	row := db.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE id = ? AND org_id = ?`, id, orgID)
	contact, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return contact, nil
}

// ListContacts returns the organization's contacts oldest first.
func ListContacts(db *sql.DB, orgID string) ([]*models.Contact, error) {
	rows, err := db.Query(`SELECT `+contactColumns+` FROM contacts WHERE org_id = ? ORDER BY created_at, id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()

	var contacts []*models.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// ApplyContactUpdates writes contacts produced by a sync run in one
// transaction. Timestamps are kept as given so the sync states stay valid.
func ApplyContactUpdates(db *sql.DB, orgID string, contacts []*models.Contact) error {
	if len(contacts) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range contacts {
		if err := upsertContact(tx, orgID, c); err != nil {
			return fmt.Errorf("failed to apply contact %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit contact updates: %w", err)
	}
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func upsertContact(db execer, orgID string, c *models.Contact) error {
	tags, custom, err := encodeContactJSON(c)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		INSERT INTO contacts (id, org_id, first_name, last_name, email, phone, company, title, tags, custom_fields, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			email = excluded.email,
			phone = excluded.phone,
			company = excluded.company,
			title = excluded.title,
			tags = excluded.tags,
			custom_fields = excluded.custom_fields,
			updated_at = excluded.updated_at
	`, c.ID, orgID, c.FirstName, c.LastName, c.Email, c.Phone, c.Company, c.Title, tags, custom,
		c.CreatedAt.UTC(), c.UpdatedAt.UTC())
	return err
}

func encodeContactJSON(c *models.Contact) (string, string, error) {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	tb, err := json.Marshal(tags)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode tags: %w", err)
	}

	custom := c.CustomFields
	if custom == nil {
		custom = map[string]any{}
	}
	cb, err := json.Marshal(custom)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode custom fields: %w", err)
	}
	return string(tb), string(cb), nil
}

func scanContact(s scanner) (*models.Contact, error) {
	var c models.Contact
	var tags, custom string

	if err := s.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Company, &c.Title,
		&tags, &custom, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags: %w", err)
	}
	if len(c.Tags) == 0 {
		c.Tags = nil
	}
	if err := json.Unmarshal([]byte(custom), &c.CustomFields); err != nil {
		return nil, fmt.Errorf("failed to decode custom fields: %w", err)
	}
	if len(c.CustomFields) == 0 {
		c.CustomFields = nil
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}
