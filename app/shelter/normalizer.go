package shelter

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Normalize converts a raw upstream record into its typed form. The second
// return value is false when the record has no upstream id and must be dropped.
func Normalize(raw RawRecord) (NormalizedRecord, bool) {
	id := cleanString(raw[FieldRecordID])
	if id == nil {
		return NormalizedRecord{}, false
	}

	return NormalizedRecord{
		RecordID:     *id,
		LocationName: cleanString(raw[FieldLocationName]),
		Address:      cleanString(raw[FieldAddress]),
		PostalCode:   cleanString(raw[FieldPostalCode]),
		City:         cleanString(raw[FieldCity]),
		Province:     cleanString(raw[FieldProvince]),
		Latitude:     toFloat(raw[FieldLatitude]),
		Longitude:    toFloat(raw[FieldLongitude]),
		Program: ProgramEntry{
			RecordID:             *id,
			ProgramName:          cleanString(raw[FieldProgramName]),
			Sector:               cleanString(raw[FieldSector]),
			OvernightServiceType: cleanString(raw[FieldOvernightServiceType]),
			ServiceUserCount:     toInt(raw[FieldServiceUserCount]),
			CapacityActualBed:    toInt(raw[FieldCapacityActualBed]),
			OccupiedBeds:         toInt(raw[FieldOccupiedBeds]),
			UnoccupiedBeds:       toInt(raw[FieldUnoccupiedBeds]),
			CapacityActualRoom:   toInt(raw[FieldCapacityActualRoom]),
			OccupiedRooms:        toInt(raw[FieldOccupiedRooms]),
			UnoccupiedRooms:      toInt(raw[FieldUnoccupiedRooms]),
			OccupancyDate:        cleanString(raw[FieldOccupancyDate]),
		},
	}, true
}

// NormalizeAll normalizes every record, keeping input order.
func NormalizeAll(raws []RawRecord) ([]NormalizedRecord, []Skip) {
	records := make([]NormalizedRecord, 0, len(raws))
	var skips []Skip

	for i, raw := range raws {
		record, ok := Normalize(raw)
		if !ok {
			skips = append(skips, Skip{
				Reason: SkipMissingRecordID,
				Detail: fmt.Sprintf("record at position %d", i),
			})
			continue
		}
		records = append(records, record)
	}

	return records, skips
}

func cleanString(v any) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	default:
		s = fmt.Sprint(t)
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func toInt(v any) *int64 {
	switch t := v.(type) {
	case int:
		n := int64(t)
		return &n
	case int64:
		return &t
	case float64:
		return truncate(t)
	}

	s := cleanString(v)
	if s == nil {
		return nil
	}
	if n, err := strconv.ParseInt(*s, 10, 64); err == nil {
		return &n
	}
	if f, err := strconv.ParseFloat(*s, 64); err == nil {
		return truncate(f)
	}
	return nil
}

func toFloat(v any) *float64 {
	if f, ok := v.(float64); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return &f
	}

	s := cleanString(v)
	if s == nil {
		return nil
	}
	f, err := strconv.ParseFloat(*s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func truncate(f float64) *int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return nil
	}
	n := int64(f)
	return &n
}
