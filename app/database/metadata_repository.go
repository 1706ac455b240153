package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ MetadataRepository = (*MetadataRepo)(nil)

// Fixed primary key of the singleton shelter_metadata row
const metadataRowID = 1

// MetadataRepo handles the singleton shelter_metadata row
type MetadataRepo struct {
	db *DB
}

// NewMetadataRepository creates a new metadata repository
func NewMetadataRepository(db *DB) *MetadataRepo {
	return &MetadataRepo{db: db}
}

// TouchLastRefreshed overwrites last_refreshed, creating the row on first use
func (r *MetadataRepo) TouchLastRefreshed(ctx context.Context, at time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO shelter_metadata (id, last_refreshed)
		VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET last_refreshed = excluded.last_refreshed
	`), metadataRowID, at.UTC())

	if err != nil {
		return fmt.Errorf("failed to update last refreshed: %w", err)
	}

	return nil
}

// GetLastRefreshed returns nil when no run has completed yet
func (r *MetadataRepo) GetLastRefreshed(ctx context.Context) (*time.Time, error) {
	var lastRefreshed sql.NullTime
	err := r.db.GetContext(ctx, &lastRefreshed, r.db.Rebind(`
		SELECT last_refreshed FROM shelter_metadata WHERE id = ?
	`), metadataRowID)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last refreshed: %w", err)
	}
	if !lastRefreshed.Valid {
		return nil, nil
	}

	return &lastRefreshed.Time, nil
}
