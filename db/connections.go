// ABOUTME: Connection records: one per organization and CRM provider
// ABOUTME: Stores the provider credentials and the result of the last connection check
package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/crmsync/models"
)

// ErrNotFound is returned by updates that matched no row.
var ErrNotFound = errors.New("record not found")

// Connection owns the credentials for one organization and provider pair.
type Connection struct {
	OrgID           string
	Provider        models.Provider
	Credentials     models.Credentials
	Status          string
	Account         string
	InstanceURL     string
	LastError       string
	LastValidatedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// UpsertConnection creates the connection or replaces its credentials and status.
func UpsertConnection(db *sql.DB, conn *Connection) error {
	creds, err := json.Marshal(conn.Credentials)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	now := time.Now().UTC()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now
	if conn.Status == "" {
		conn.Status = models.StatusConnected
	}

	_, err = db.Exec(`
		INSERT INTO connections (org_id, provider, credentials, status, account, instance_url, last_error, last_validated_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(org_id, provider) DO UPDATE SET
			credentials = excluded.credentials,
			status = excluded.status,
			account = excluded.account,
			instance_url = excluded.instance_url,
			last_error = excluded.last_error,
			last_validated_at = excluded.last_validated_at,
			updated_at = excluded.updated_at
	`, conn.OrgID, string(conn.Provider), string(creds), conn.Status, conn.Account, conn.InstanceURL, conn.LastError,
		nullTime(conn.LastValidatedAt), conn.CreatedAt, conn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

// GetConnection returns nil, nil when the organization has no connection to provider.
func GetConnection(db *sql.DB, orgID string, provider models.Provider) (*Connection, error) {
	row := db.QueryRow(`
		SELECT org_id, provider, credentials, status, account, instance_url, last_error, last_validated_at, created_at, updated_at
		FROM connections WHERE org_id = ? AND provider = ?
	`, orgID, string(provider))

	conn, err := scanConnection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return conn, nil
}

// ListConnections returns every connection of an organization ordered by provider.
func ListConnections(db *sql.DB, orgID string) ([]*Connection, error) {
	rows, err := db.Query(`
		SELECT org_id, provider, credentials, status, account, instance_url, last_error, last_validated_at, created_at, updated_at
		FROM connections WHERE org_id = ? ORDER BY provider
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*Connection
	for rows.Next() {
		conn, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

// SaveCredentials replaces only the stored credentials, e.g. after a token refresh.
func SaveCredentials(db *sql.DB, orgID string, provider models.Provider, creds models.Credentials) error {
	b, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	res, err := db.Exec(`UPDATE connections SET credentials = ?, updated_at = ? WHERE org_id = ? AND provider = ?`,
		string(b), time.Now().UTC(), orgID, string(provider))
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return requireRow(res, "connection", orgID+"/"+string(provider))
}

// UpdateConnectionStatus records the outcome of a connection check.
func UpdateConnectionStatus(db *sql.DB, orgID string, status models.ConnectionStatus) error {
	state := models.StatusConnected
	if !status.Connected {
		state = models.StatusError
	}
	checked := status.CheckedAt.UTC()

	res, err := db.Exec(`
		UPDATE connections
		SET status = ?, account = CASE WHEN ? = '' THEN account ELSE ? END,
			instance_url = CASE WHEN ? = '' THEN instance_url ELSE ? END,
			last_error = ?, last_validated_at = ?, updated_at = ?
		WHERE org_id = ? AND provider = ?
	`, state, status.Account, status.Account, status.InstanceURL, status.InstanceURL,
		status.Error, checked, time.Now().UTC(), orgID, string(status.Provider))
	if err != nil {
		return fmt.Errorf("failed to update connection status: %w", err)
	}
	return requireRow(res, "connection", orgID+"/"+string(status.Provider))
}

// MarkDisconnected clears the credentials but keeps the row and its sync history.
func MarkDisconnected(db *sql.DB, orgID string, provider models.Provider) error {
	res, err := db.Exec(`
		UPDATE connections SET credentials = '{}', status = ?, last_error = '', updated_at = ?
		WHERE org_id = ? AND provider = ?
	`, models.StatusDisconnected, time.Now().UTC(), orgID, string(provider))
	if err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return requireRow(res, "connection", orgID+"/"+string(provider))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(s scanner) (*Connection, error) {
	var conn Connection
	var provider, creds string
	var validated sql.NullTime

	if err := s.Scan(&conn.OrgID, &provider, &creds, &conn.Status, &conn.Account, &conn.InstanceURL,
		&conn.LastError, &validated, &conn.CreatedAt, &conn.UpdatedAt); err != nil {
		return nil, err
	}

	conn.Provider = models.Provider(provider)
	if err := json.Unmarshal([]byte(creds), &conn.Credentials); err != nil {
		return nil, fmt.Errorf("failed to decode credentials: %w", err)
	}
	if validated.Valid {
		t := validated.Time.UTC()
		conn.LastValidatedAt = &t
	}
	conn.CreatedAt = conn.CreatedAt.UTC()
	conn.UpdatedAt = conn.UpdatedAt.UTC()
	return &conn, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func requireRow(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return nil
}
