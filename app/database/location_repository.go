package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var _ LocationRepository = (*LocationRepo)(nil)

const locationColumns = `id, identity_key, location_name, address, postal_code, city, province,
	latitude, longitude, created_at, updated_at`

// LocationRepo handles database operations for shelter locations
type LocationRepo struct {
	db *DB
}

// NewLocationRepository creates a new location repository
func NewLocationRepository(db *DB) *LocationRepo {
	return &LocationRepo{db: db}
}

// InsertLocation creates the row for a new identity key. A conflicting key
// leaves the existing row untouched and returns inserted=false.
func (r *LocationRepo) InsertLocation(ctx context.Context, location Location) (int64, bool, error) {
	var id int64
	err := r.db.QueryRowxContext(ctx, r.db.Rebind(`
		INSERT INTO locations (
			identity_key, location_name, address, postal_code, city, province, latitude, longitude
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (identity_key) DO NOTHING
		RETURNING id
	`), location.IdentityKey, location.LocationName, location.Address, location.PostalCode,
		location.City, location.Province, location.Latitude, location.Longitude).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to insert location: %w", err)
	}

	return id, true, nil
}

// FindLocationID looks up an existing location by its folded identity key
func (r *LocationRepo) FindLocationID(ctx context.Context, identityKey string) (int64, bool, error) {
	var id int64
	err := r.db.GetContext(ctx, &id, r.db.Rebind(`
		SELECT id FROM locations WHERE identity_key = ?
	`), identityKey)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to find location: %w", err)
	}

	return id, true, nil
}

// FillLocation sets columns that are still NULL; non-null values are never replaced
func (r *LocationRepo) FillLocation(ctx context.Context, id int64, location Location) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE locations
		SET postal_code = COALESCE(postal_code, ?),
		    city = COALESCE(city, ?),
		    province = COALESCE(province, ?),
		    latitude = COALESCE(latitude, ?),
		    longitude = COALESCE(longitude, ?),
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`), location.PostalCode, location.City, location.Province, location.Latitude, location.Longitude, id)

	if err != nil {
		return fmt.Errorf("failed to fill location: %w", err)
	}

	return nil
}

// GetLocations returns locations with an address, optionally restricted to one city
func (r *LocationRepo) GetLocations(ctx context.Context, city string) ([]Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE address IS NOT NULL`
	var args []any

	if city != "" {
		query += ` AND LOWER(city) = LOWER(?)`
		args = append(args, city)
	}
	query += ` ORDER BY id`

	var locations []Location
	if err := r.db.SelectContext(ctx, &locations, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get locations: %w", err)
	}

	return locations, nil
}

// GetLocation retrieves a location by id, returning nil when it does not exist
func (r *LocationRepo) GetLocation(ctx context.Context, id int64) (*Location, error) {
	var location Location
	err := r.db.GetContext(ctx, &location, r.db.Rebind(`
		SELECT `+locationColumns+` FROM locations WHERE id = ?
	`), id)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get location: %w", err)
	}

	return &location, nil
}

// GetLocationCount returns the total number of locations
func (r *LocationRepo) GetLocationCount(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM locations"); err != nil {
		return 0, fmt.Errorf("failed to get location count: %w", err)
	}
	return count, nil
}
