package recovery

import (
	"context"
	"log/slog"

	"discrescue/internal/device"
	"discrescue/internal/logging"
	"discrescue/internal/repairmap"
)

// halvingRounds is how many times the probe granularity is halved before
// falling back to per-sector bisection.
const halvingRounds = 3

// IsolationRefiner is the second recovery stage. It narrows each suspect run
// to the exact bad sectors: three rounds of halved probe granularity shrink
// the search space cheaply, then a per-sector bisection from both ends of
// each residual run confirms the readable edges and condemns the interior.
type IsolationRefiner struct {
	reader         device.SectorReader
	sink           SectorSink
	sequenceLength int64
	logger         *slog.Logger
	notify         func(m *repairmap.Map)
}

// NewIsolationRefiner builds the isolation stage. notify may be nil.
func NewIsolationRefiner(reader device.SectorReader, sink SectorSink, sequenceLength int64, logger *slog.Logger, notify func(*repairmap.Map)) *IsolationRefiner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notify == nil {
		notify = func(*repairmap.Map) {}
	}
	return &IsolationRefiner{
		reader:         reader,
		sink:           sink,
		sequenceLength: sequenceLength,
		logger:         logger.With(logging.String(logging.FieldStage, repairmap.StageIsolation)),
		notify:         notify,
	}
}

// Name implements Stage.
func (r *IsolationRefiner) Name() string { return repairmap.StageIsolation }

// Applicable reports whether any suspect sectors remain.
func (r *IsolationRefiner) Applicable(m *repairmap.Map) bool {
	return m.Counts().Suspect > 0
}

// Execute refines suspect runs largest-first until none remain. Each
// refinement leaves its run fully classified as good or bad, so the loop
// terminates.
func (r *IsolationRefiner) Execute(ctx context.Context, m *repairmap.Map) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		run, ok := m.LargestRun(repairmap.StateSuspect)
		if !ok {
			return nil
		}
		if err := r.refineRun(ctx, m, run); err != nil {
			return err
		}
	}
}

// refineRun narrows one suspect run. Halving rounds probe at
// sequence_length/2, /4, and /8 (clamped to one sector); sub-runs that fail
// carry their unread remainder into the next round. Residual runs then go
// through per-sector bisection.
func (r *IsolationRefiner) refineRun(ctx context.Context, m *repairmap.Map, run repairmap.Range) error {
	r.logger.Debug("refining suspect run",
		logging.Int64(logging.FieldStart, run.Start),
		logging.Int64(logging.FieldLength, run.Length))

	residual := []repairmap.Range{run}
	granularity := r.sequenceLength
	for round := 0; round < halvingRounds && len(residual) > 0; round++ {
		granularity /= 2
		if granularity < 1 {
			granularity = 1
		}
		var carried []repairmap.Range
		for _, sub := range residual {
			for cursor := sub.Start; cursor < sub.End(); {
				if err := ctx.Err(); err != nil {
					return err
				}
				chunk := clampRun(cursor, granularity, sub.End())
				cursor = chunk.End()
				outcome, err := probeRun(ctx, r.reader, r.sink, m, chunk)
				if err != nil {
					return err
				}
				if outcome.failed {
					carried = append(carried, repairmap.Range{
						Start:  outcome.failAt,
						Length: chunk.End() - outcome.failAt,
					})
				}
				r.notify(m)
			}
		}
		residual = carried
		if granularity == 1 {
			break
		}
	}

	for _, sub := range residual {
		if err := r.bisect(ctx, m, sub); err != nil {
			return err
		}
	}
	return nil
}

// bisect confirms the readable edges of a residual run one sector at a time
// and marks the interior bad.
func (r *IsolationRefiner) bisect(ctx context.Context, m *repairmap.Map, run repairmap.Range) error {
	lo := run.Start
	hi := run.End()
	for lo < hi {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome, err := probeRun(ctx, r.reader, r.sink, m, repairmap.Range{Start: lo, Length: 1})
		if err != nil {
			return err
		}
		r.notify(m)
		if outcome.failed {
			break
		}
		lo++
	}
	if lo >= hi {
		return nil
	}
	for hi-1 > lo {
		if err := ctx.Err(); err != nil {
			return err
		}
		outcome, err := probeRun(ctx, r.reader, r.sink, m, repairmap.Range{Start: hi - 1, Length: 1})
		if err != nil {
			return err
		}
		r.notify(m)
		if outcome.failed {
			break
		}
		hi--
	}
	bad := repairmap.Range{Start: lo, Length: hi - lo}
	r.logger.Debug("condemning sectors",
		logging.Int64(logging.FieldStart, bad.Start),
		logging.Int64(logging.FieldLength, bad.Length))
	return m.Set(bad, repairmap.StateBad)
}
