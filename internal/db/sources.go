package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

const sourceColumns = `id, owner, source_type, source_name, details, status,
	last_error, last_sync_at, created_at, updated_at`

// CreateSource stores a new source account.
func (db *DB) CreateSource(ctx context.Context, acct *schema.SourceAccount) error {
	if err := acct.Validate(); err != nil {
		return fmt.Errorf("invalid source account: %w", err)
	}

	details, err := json.Marshal(acct.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}
	if acct.Details == nil {
		details = []byte("{}")
	}

	query := `INSERT INTO source_accounts (` + sourceColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = db.conn.ExecContext(ctx, query,
		acct.ID,
		acct.Owner,
		string(acct.Type),
		acct.Name,
		string(details),
		string(acct.Status),
		nullIfEmpty(acct.LastError),
		timeToNullString(acct.LastSyncAt),
		formatTime(acct.CreatedAt),
		formatTime(acct.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert source account %s: %w", acct.ID, err)
	}
	return nil
}

// GetSource returns one source account, or ErrNotFound.
func (db *DB) GetSource(ctx context.Context, id string) (*schema.SourceAccount, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM source_accounts WHERE id = ?`, id)

	acct, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source account %s: %w", id, err)
	}
	return acct, nil
}

// ListSources returns the owner's source accounts, oldest first.
func (db *DB) ListSources(ctx context.Context, owner string) ([]*schema.SourceAccount, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM source_accounts WHERE owner = ? ORDER BY created_at ASC, id ASC`,
		owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list source accounts: %w", err)
	}
	defer rows.Close()

	var out []*schema.SourceAccount
	for rows.Next() {
		acct, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source account: %w", err)
		}
		out = append(out, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source accounts: %w", err)
	}
	return out, nil
}

// UpdateSourceStatus records the outcome of a reconciliation run. Details are
// never touched here.
func (db *DB) UpdateSourceStatus(ctx context.Context, id string, status schema.SourceStatus, lastErr string, syncedAt time.Time) error {
	res, err := db.conn.ExecContext(ctx, `
	UPDATE source_accounts
	SET status = ?, last_error = ?, last_sync_at = ?, updated_at = ?
	WHERE id = ?`,
		string(status),
		nullIfEmpty(lastErr),
		formatTime(syncedAt),
		formatTime(db.now()),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to update status of source account %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("source account %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteSource removes a source account and all of its mappings in one
// transaction. Returns nil if the account doesn't exist. The foreign key
// also cascades, so a mapping can never outlive its account.
func (db *DB) DeleteSource(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteMappings(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM source_accounts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete source account %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*schema.SourceAccount, error) {
	var (
		acct                 schema.SourceAccount
		typ, status, details string
		lastErr, lastSync    sql.NullString
		createdAt, updatedAt string
	)
	if err := row.Scan(&acct.ID, &acct.Owner, &typ, &acct.Name, &details, &status,
		&lastErr, &lastSync, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	acct.Type = schema.SourceType(typ)
	acct.Status = schema.SourceStatus(status)
	acct.LastError = lastErr.String
	acct.LastSyncAt = nullStringToTime(lastSync)

	if err := json.Unmarshal([]byte(details), &acct.Details); err != nil {
		return nil, fmt.Errorf("failed to unmarshal details: %w", err)
	}

	var err error
	if acct.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if acct.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}
	return &acct, nil
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
