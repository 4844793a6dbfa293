package repairmap

import "fmt"

// RunRecord is one persisted (range, state) record.
type RunRecord struct {
	Start  int64
	Length int64
	State  State
}

// Snapshot is a self-contained copy of a Map, suitable for persistence and
// for consistent reads by background progress reporting.
type Snapshot struct {
	SectorCount int64
	Runs        []RunRecord
}

// Snapshot copies the current map state.
func (m *Map) Snapshot() Snapshot {
	records := make([]RunRecord, len(m.runs))
	for i, r := range m.runs {
		records[i] = RunRecord{Start: r.start, Length: r.length, State: r.state}
	}
	return Snapshot{SectorCount: m.sectorCount, Runs: records}
}

// FromSnapshot rebuilds a Map, validating that the records partition the
// sector range exactly once.
func FromSnapshot(snap Snapshot) (*Map, error) {
	if snap.SectorCount <= 0 {
		return nil, fmt.Errorf("snapshot has non-positive sector count %d", snap.SectorCount)
	}
	runs := make([]run, 0, len(snap.Runs))
	for _, rec := range snap.Runs {
		if !rec.State.Valid() {
			return nil, fmt.Errorf("snapshot record at sector %d has unknown state %q", rec.Start, rec.State)
		}
		if rec.Length <= 0 {
			return nil, fmt.Errorf("snapshot record at sector %d has non-positive length %d", rec.Start, rec.Length)
		}
		runs = append(runs, run{start: rec.Start, length: rec.Length, state: rec.State})
	}
	runs = normalizeRuns(runs)

	cursor := int64(0)
	for _, r := range runs {
		if r.start != cursor {
			return nil, fmt.Errorf("snapshot does not cover sectors [%d,%d)", cursor, r.start)
		}
		cursor = r.end()
	}
	if cursor != snap.SectorCount {
		return nil, fmt.Errorf("snapshot covers %d of %d sectors", cursor, snap.SectorCount)
	}

	return &Map{sectorCount: snap.SectorCount, runs: runs}, nil
}

// Restore replaces the map contents with the snapshot.
func (m *Map) Restore(snap Snapshot) error {
	rebuilt, err := FromSnapshot(snap)
	if err != nil {
		return err
	}
	*m = *rebuilt
	return nil
}
