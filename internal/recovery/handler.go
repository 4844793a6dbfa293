package recovery

import (
	"context"

	"discrescue/internal/repairmap"
)

// SectorSink receives the data of successfully read sectors as the stages
// confirm them. data is always a whole number of sectors.
type SectorSink interface {
	WriteSectors(start int64, data []byte) error
}

// Stage describes the contract the orchestrator needs from each recovery
// stage. Execute mutates the shared repair map and returns only on fatal
// errors; ordinary read failures are recorded in the map. Stages are
// idempotent: running one against a map it has nothing left to do on is a
// no-op.
type Stage interface {
	Name() string
	// Applicable reports whether the map holds work for this stage.
	Applicable(m *repairmap.Map) bool
	Execute(ctx context.Context, m *repairmap.Map) error
}

// ProgressFunc receives a progress event after every probe.
type ProgressFunc func(Progress)

// clampRun returns the run starting at cursor of at most want sectors,
// bounded by limit.
func clampRun(cursor, want, limit int64) repairmap.Range {
	length := want
	if cursor+length > limit {
		length = limit - cursor
	}
	return repairmap.Range{Start: cursor, Length: length}
}
