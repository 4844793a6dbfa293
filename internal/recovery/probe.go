package recovery

import (
	"context"

	"discrescue/internal/device"
	"discrescue/internal/repairmap"
)

// probeOutcome reports what one run read established.
type probeOutcome struct {
	// failed is set when the read stopped short of the requested run.
	failed bool
	// failAt is the absolute index of the first failing sector, valid only
	// when failed is set.
	failAt int64
}

// probeRun reads one run from the medium. Sectors read successfully are
// written to the sink and marked good before the outcome is returned, so
// recovered data survives even if the caller aborts afterward. The error
// return carries only fatal conditions (cancellation, device gone, sink
// write failures).
func probeRun(ctx context.Context, reader device.SectorReader, sink SectorSink, m *repairmap.Map, rng repairmap.Range) (probeOutcome, error) {
	res, err := reader.ReadSectors(ctx, rng.Start, rng.Length)
	if err != nil {
		return probeOutcome{}, err
	}
	if res.SectorsRead > 0 {
		if err := sink.WriteSectors(rng.Start, res.Data); err != nil {
			return probeOutcome{}, err
		}
		good := repairmap.Range{Start: rng.Start, Length: res.SectorsRead}
		if err := m.Set(good, repairmap.StateGood); err != nil {
			return probeOutcome{}, err
		}
	}
	if res.Failed {
		return probeOutcome{failed: true, failAt: rng.Start + res.SectorsRead}, nil
	}
	return probeOutcome{}, nil
}
