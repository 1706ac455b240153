package shelter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/shelter-sync/app/database"
)

// Resolution maps every resolved LocationKey to its persisted id.
type Resolution struct {
	IDs        map[LocationKey]int64
	Inserted   int
	Existing   int
	Unresolved int
	Skips      []Skip
}

// Resolver assigns durable identifiers to canonical locations using an
// insert-or-find protocol: insert first, and on an identity-key conflict look
// the row up and coalesce-fill its NULL columns.
type Resolver struct {
	locationRepo database.LocationRepository
}

func NewResolver(locationRepo database.LocationRepository) *Resolver {
	return &Resolver{locationRepo: locationRepo}
}

// Resolve never fails because of a single location that cannot be found
// after a conflict; such locations are left out of the id map. It returns
// an error only when the store rejects an insert outright or ctx is done.
func (r *Resolver) Resolve(ctx context.Context, locations []*CanonicalLocation) (*Resolution, error) {
	resolution := &Resolution{
		IDs: make(map[LocationKey]int64, len(locations)),
	}

	for _, location := range locations {
		if err := ctx.Err(); err != nil {
			return resolution, err
		}

		row := toDatabaseLocation(location)

		id, inserted, err := r.locationRepo.InsertLocation(ctx, row)
		if err != nil {
			return resolution, fmt.Errorf("failed to resolve location %q: %w", location.LocationName, err)
		}
		if inserted {
			resolution.IDs[location.Key] = id
			resolution.Inserted++
			continue
		}

		id, err = r.findAndFill(ctx, row)
		if err != nil {
			slog.Warn("Location could not be resolved",
				"location", location.LocationName,
				"address", location.Address,
				"identity_key", row.IdentityKey,
				"error", err)

			resolution.Unresolved++
			resolution.Skips = append(resolution.Skips, Skip{
				Reason: SkipUnresolvedLocation,
				Detail: fmt.Sprintf("%s (%s): %v", location.LocationName, location.Address, err),
			})
			continue
		}

		resolution.IDs[location.Key] = id
		resolution.Existing++
	}

	return resolution, nil
}

func (r *Resolver) findAndFill(ctx context.Context, row database.Location) (int64, error) {
	id, found, err := r.locationRepo.FindLocationID(ctx, row.IdentityKey)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("identity key conflicted on insert but no row matched on lookup")
	}

	if err := r.locationRepo.FillLocation(ctx, id, row); err != nil {
		return 0, err
	}

	return id, nil
}

func toDatabaseLocation(location *CanonicalLocation) database.Location {
	return database.Location{
		IdentityKey:  location.Key.String(),
		LocationName: location.LocationName,
		Address:      location.Address,
		PostalCode:   location.PostalCode,
		City:         location.City,
		Province:     location.Province,
		Latitude:     location.Latitude,
		Longitude:    location.Longitude,
	}
}
