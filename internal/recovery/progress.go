package recovery

import "discrescue/internal/repairmap"

// Progress describes the state of the recovery after a probe. Percent is
// relative to the work the current stage started with, so each stage runs
// its own 0 to 100 range.
type Progress struct {
	Stage   string
	Percent float64
	Counts  repairmap.Counts
}
