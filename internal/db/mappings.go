package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// RecordMapping upserts the mapping for (source account, external id).
//
// Recording the same mapping twice leaves one row. On conflict the internal
// task id and external timestamp are replaced; created_at is kept.
func (db *DB) RecordMapping(ctx context.Context, m schema.SyncMapping) error {
	if err := m.Validate(); err != nil {
		return fmt.Errorf("invalid mapping: %w", err)
	}

	now := db.now()
	query := `
	INSERT INTO sync_mappings (
		source_account_id, external_id, internal_task_id,
		external_modified_at, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(source_account_id, external_id) DO UPDATE SET
		internal_task_id = excluded.internal_task_id,
		external_modified_at = excluded.external_modified_at,
		updated_at = excluded.updated_at
	`

	_, err := db.conn.ExecContext(ctx, query,
		m.SourceAccountID,
		m.ExternalID,
		m.InternalTaskID,
		timeToNullString(m.ExternalModifiedAt),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("failed to record mapping %s/%s: %w", m.SourceAccountID, m.ExternalID, err)
	}
	return nil
}

// LookupInternalID returns the internal task id mapped to an external id.
// The bool is false when no mapping exists.
func (db *DB) LookupInternalID(ctx context.Context, sourceID, externalID string) (string, bool, error) {
	var id string
	err := db.conn.QueryRowContext(ctx, `
	SELECT internal_task_id FROM sync_mappings
	WHERE source_account_id = ? AND external_id = ?`,
		sourceID, externalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up mapping %s/%s: %w", sourceID, externalID, err)
	}
	return id, true, nil
}

// MappingsForSource returns every mapping of one source account.
func (db *DB) MappingsForSource(ctx context.Context, sourceID string) ([]schema.SyncMapping, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT source_account_id, external_id, internal_task_id,
	       external_modified_at, created_at, updated_at
	FROM sync_mappings
	WHERE source_account_id = ?
	ORDER BY created_at ASC, external_id ASC`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	var out []schema.SyncMapping
	for rows.Next() {
		var (
			m                    schema.SyncMapping
			modified             sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&m.SourceAccountID, &m.ExternalID, &m.InternalTaskID,
			&modified, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		m.ExternalModifiedAt = nullStringToTime(modified)
		if m.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at: %w", err)
		}
		if m.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, fmt.Errorf("failed to parse updated_at: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mappings: %w", err)
	}
	return out, nil
}

// AssignmentsForSource returns the internal task ids created from a source,
// for display.
func (db *DB) AssignmentsForSource(ctx context.Context, sourceID string) ([]string, error) {
	mappings, err := db.MappingsForSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(mappings))
	for _, m := range mappings {
		ids = append(ids, m.InternalTaskID)
	}
	return ids, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// deleteMappings removes every mapping of one source account.
func deleteMappings(ctx context.Context, ex execer, sourceID string) error {
	if _, err := ex.ExecContext(ctx,
		`DELETE FROM sync_mappings WHERE source_account_id = ?`, sourceID); err != nil {
		return fmt.Errorf("failed to delete mappings for %s: %w", sourceID, err)
	}
	return nil
}
