package shelter

type MergeResult struct {
	Locations []*CanonicalLocation
	Skipped   int
	Skips     []Skip
}

// MergeLocations folds records into one CanonicalLocation per LocationKey,
// ordered by first appearance. Scalar fields are coalesce-filled; program
// entries are appended as-is and deduplicated later by ReconcilePrograms.
func MergeLocations(records []NormalizedRecord) MergeResult {
	var result MergeResult
	byKey := make(map[LocationKey]*CanonicalLocation)

	for _, record := range records {
		if record.LocationName == nil || record.Address == nil {
			result.Skipped++
			result.Skips = append(result.Skips, Skip{
				Reason:   SkipMissingLocation,
				RecordID: record.RecordID,
			})
			continue
		}

		key := NewLocationKey(record.LocationName, record.Address, record.City, record.Province)

		location, ok := byKey[key]
		if !ok {
			location = &CanonicalLocation{
				Key:          key,
				LocationName: *record.LocationName,
				Address:      *record.Address,
			}
			byKey[key] = location
			result.Locations = append(result.Locations, location)
		}

		coalesceFillLocation(location, record)
		location.Programs = append(location.Programs, record.Program)
	}

	return result
}

// coalesceFillLocation fills only the fields of dst that are still nil.
func coalesceFillLocation(dst *CanonicalLocation, record NormalizedRecord) {
	dst.PostalCode = coalesce(dst.PostalCode, record.PostalCode)
	dst.City = coalesce(dst.City, record.City)
	dst.Province = coalesce(dst.Province, record.Province)
	dst.Latitude = coalesce(dst.Latitude, record.Latitude)
	dst.Longitude = coalesce(dst.Longitude, record.Longitude)
}

func coalesce[T any](current, incoming *T) *T {
	if current != nil {
		return current
	}
	return incoming
}

func latest[T any](current, incoming *T) *T {
	if incoming != nil {
		return incoming
	}
	return current
}
