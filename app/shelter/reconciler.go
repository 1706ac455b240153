package shelter

import (
	"strings"
)

type ReconcileResult struct {
	Rows    []ProgramRow
	Skipped int
	Skips   []Skip
}

type programKey struct {
	locationID  int64
	programName string
}

// ReconcilePrograms flattens the program entries of every resolved location
// into one row per (location id, trimmed program name). Names are compared
// case-sensitively, matching the store's unique constraint. Entries of
// locations missing from ids are skipped.
func ReconcilePrograms(locations []*CanonicalLocation, ids map[LocationKey]int64) ReconcileResult {
	var result ReconcileResult
	index := make(map[programKey]int)

	for _, location := range locations {
		locationID, ok := ids[location.Key]
		if !ok {
			result.Skipped += len(location.Programs)
			for _, entry := range location.Programs {
				result.Skips = append(result.Skips, Skip{
					Reason:   SkipUnresolvedLocation,
					RecordID: entry.RecordID,
					Detail:   location.LocationName,
				})
			}
			continue
		}

		for _, entry := range location.Programs {
			if entry.ProgramName == nil || strings.TrimSpace(*entry.ProgramName) == "" {
				result.Skipped++
				result.Skips = append(result.Skips, Skip{
					Reason:   SkipMissingProgramName,
					RecordID: entry.RecordID,
					Detail:   location.LocationName,
				})
				continue
			}

			key := programKey{locationID: locationID, programName: strings.TrimSpace(*entry.ProgramName)}

			if i, seen := index[key]; seen {
				lastWriteWinsProgram(&result.Rows[i], entry)
				continue
			}

			row := ProgramRow{LocationID: locationID, ProgramName: key.programName}
			lastWriteWinsProgram(&row, entry)
			index[key] = len(result.Rows)
			result.Rows = append(result.Rows, row)
		}
	}

	return result
}

// lastWriteWinsProgram replaces every held value for which entry carries a non-nil value.
func lastWriteWinsProgram(dst *ProgramRow, entry ProgramEntry) {
	dst.Sector = latest(dst.Sector, entry.Sector)
	dst.OvernightServiceType = latest(dst.OvernightServiceType, entry.OvernightServiceType)
	dst.ServiceUserCount = latest(dst.ServiceUserCount, entry.ServiceUserCount)
	dst.CapacityActualBed = latest(dst.CapacityActualBed, entry.CapacityActualBed)
	dst.OccupiedBeds = latest(dst.OccupiedBeds, entry.OccupiedBeds)
	dst.UnoccupiedBeds = latest(dst.UnoccupiedBeds, entry.UnoccupiedBeds)
	dst.CapacityActualRoom = latest(dst.CapacityActualRoom, entry.CapacityActualRoom)
	dst.OccupiedRooms = latest(dst.OccupiedRooms, entry.OccupiedRooms)
	dst.UnoccupiedRooms = latest(dst.UnoccupiedRooms, entry.UnoccupiedRooms)
	dst.OccupancyDate = latest(dst.OccupancyDate, entry.OccupancyDate)
}
