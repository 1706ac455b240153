package shelter

import (
	"context"
	"iter"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// RawRecord is one upstream datastore row as decoded from JSON.
type RawRecord map[string]any

// Upstream field names (CKAN datastore columns)
const (
	FieldRecordID             = "_id"
	FieldLocationName         = "LOCATION_NAME"
	FieldAddress              = "LOCATION_ADDRESS"
	FieldPostalCode           = "LOCATION_POSTAL_CODE"
	FieldCity                 = "LOCATION_CITY"
	FieldProvince             = "LOCATION_PROVINCE"
	FieldLatitude             = "LATITUDE"
	FieldLongitude            = "LONGITUDE"
	FieldProgramName          = "PROGRAM_NAME"
	FieldSector               = "SECTOR"
	FieldOvernightServiceType = "OVERNIGHT_SERVICE_TYPE"
	FieldServiceUserCount     = "SERVICE_USER_COUNT"
	FieldCapacityActualBed    = "CAPACITY_ACTUAL_BED"
	FieldOccupiedBeds         = "OCCUPIED_BEDS"
	FieldUnoccupiedBeds       = "UNOCCUPIED_BEDS"
	FieldCapacityActualRoom   = "CAPACITY_ACTUAL_ROOM"
	FieldOccupiedRooms        = "OCCUPIED_ROOMS"
	FieldUnoccupiedRooms      = "UNOCCUPIED_ROOMS"
	FieldOccupancyDate        = "OCCUPANCY_DATE"
)

// Source produces the raw records of one run. The sequence ends early
// with a non-nil error when the upstream cannot be read completely.
type Source interface {
	Records(ctx context.Context) iter.Seq2[RawRecord, error]
}

// NormalizedRecord is the typed projection of a RawRecord. A nil pointer
// means the upstream value was absent, blank or not numeric.
type NormalizedRecord struct {
	RecordID     string
	LocationName *string
	Address      *string
	PostalCode   *string
	City         *string
	Province     *string
	Latitude     *float64
	Longitude    *float64
	Program      ProgramEntry
}

// ProgramEntry is the program payload carried by a single record.
type ProgramEntry struct {
	RecordID             string
	ProgramName          *string
	Sector               *string
	OvernightServiceType *string
	ServiceUserCount     *int64
	CapacityActualBed    *int64
	OccupiedBeds         *int64
	UnoccupiedBeds       *int64
	CapacityActualRoom   *int64
	OccupiedRooms        *int64
	UnoccupiedRooms      *int64
	OccupancyDate        *string
}

// LocationKey identifies a physical location independent of case and
// whitespace. City and province are empty when the upstream omits them.
type LocationKey struct {
	Name     string
	Address  string
	City     string
	Province string
}

func NewLocationKey(name, address, city, province *string) LocationKey {
	return LocationKey{
		Name:     foldKeyPart(name),
		Address:  foldKeyPart(address),
		City:     foldKeyPart(city),
		Province: foldKeyPart(province),
	}
}

// keySeparator never occurs inside a folded part: foldKeyPart replaces
// control characters with spaces.
const keySeparator = "\x1f"

// String renders the key in the form stored in locations.identity_key.
func (k LocationKey) String() string {
	return strings.Join([]string{k.Name, k.Address, k.City, k.Province}, keySeparator)
}

func foldKeyPart(s *string) string {
	if s == nil {
		return ""
	}
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, *s)
	collapsed := strings.Join(strings.Fields(cleaned), " ")
	return cases.Fold().String(norm.NFC.String(collapsed))
}

// CanonicalLocation is the single merged view of every record sharing a LocationKey.
type CanonicalLocation struct {
	Key          LocationKey
	LocationName string
	Address      string
	PostalCode   *string
	City         *string
	Province     *string
	Latitude     *float64
	Longitude    *float64
	Programs     []ProgramEntry
}

// ProgramRow is a deduplicated program ready for persistence.
type ProgramRow struct {
	LocationID           int64
	ProgramName          string
	Sector               *string
	OvernightServiceType *string
	ServiceUserCount     *int64
	CapacityActualBed    *int64
	OccupiedBeds         *int64
	UnoccupiedBeds       *int64
	CapacityActualRoom   *int64
	OccupiedRooms        *int64
	UnoccupiedRooms      *int64
	OccupancyDate        *string
}

type SkipReason string

const (
	SkipMissingRecordID    SkipReason = "missing_record_id"
	SkipMissingLocation    SkipReason = "missing_location_name_or_address"
	SkipMissingProgramName SkipReason = "missing_program_name"
	SkipUnresolvedLocation SkipReason = "unresolved_location"
)

// Skip describes one input that a stage recovered from locally.
type Skip struct {
	Reason   SkipReason
	RecordID string
	Detail   string
}

// Summary aggregates the outcome of one synchronization run.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	RecordsFetched int
	RecordsDropped int
	RecordsSkipped int

	LocationsInserted   int
	LocationsExisting   int
	LocationsUnresolved int

	ProgramsInserted int
	ProgramsUpdated  int
	ProgramsSkipped  int

	Batches int
	Skips   []Skip
}

func (s *Summary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Observer receives every finished run, successful or not.
type Observer interface {
	ObserveRun(summary *Summary, err error)
}
