package recovery

import (
	"context"
	"log/slog"

	"discrescue/internal/device"
	"discrescue/internal/logging"
	"discrescue/internal/repairmap"
)

// TrialScanner is the first recovery stage. It reads the medium in runs of
// sequenceLength sectors in four passes: forward from the front, backward
// from the back, forward from the center, and finally striped probing of the
// largest remaining unknown run. Every probe either confirms sectors good or
// demotes the unread remainder of the probe to suspect, so the stage always
// finishes with no unknown sectors.
type TrialScanner struct {
	reader         device.SectorReader
	sink           SectorSink
	sequenceLength int64
	logger         *slog.Logger
	notify         func(m *repairmap.Map)
}

// NewTrialScanner builds the trial stage. notify may be nil.
func NewTrialScanner(reader device.SectorReader, sink SectorSink, sequenceLength int64, logger *slog.Logger, notify func(*repairmap.Map)) *TrialScanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notify == nil {
		notify = func(*repairmap.Map) {}
	}
	return &TrialScanner{
		reader:         reader,
		sink:           sink,
		sequenceLength: sequenceLength,
		logger:         logger.With(logging.String(logging.FieldStage, repairmap.StageTrial)),
		notify:         notify,
	}
}

// Name implements Stage.
func (s *TrialScanner) Name() string { return repairmap.StageTrial }

// Applicable reports whether any unknown sectors remain.
func (s *TrialScanner) Applicable(m *repairmap.Map) bool {
	return m.Counts().Unknown > 0
}

// Execute runs the four trial passes.
func (s *TrialScanner) Execute(ctx context.Context, m *repairmap.Map) error {
	if !s.Applicable(m) {
		return nil
	}
	passes := []struct {
		name string
		run  func(context.Context, *repairmap.Map) error
	}{
		{"forward", s.forwardPass},
		{"backward", s.backwardPass},
		{"center", s.centerPass},
		{"striped", s.stripedPass},
	}
	for _, pass := range passes {
		counts := m.Counts()
		if counts.Unknown == 0 {
			break
		}
		s.logger.Debug("starting trial pass",
			logging.String("pass", pass.name),
			logging.Int64("unknown", counts.Unknown))
		if err := pass.run(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// probe reads rng and classifies every sector in it: the readable prefix
// becomes good, everything from the failure point on becomes suspect.
func (s *TrialScanner) probe(ctx context.Context, m *repairmap.Map, rng repairmap.Range) (bool, error) {
	outcome, err := probeRun(ctx, s.reader, s.sink, m, rng)
	if err != nil {
		return false, err
	}
	if outcome.failed {
		rest := repairmap.Range{Start: outcome.failAt, Length: rng.End() - outcome.failAt}
		if err := m.Set(rest, repairmap.StateSuspect); err != nil {
			return false, err
		}
		s.logger.Debug("probe failed",
			logging.Int64(logging.FieldSector, outcome.failAt),
			logging.Int64("suspect", rest.Length))
	}
	s.notify(m)
	return outcome.failed, nil
}

// forwardPass reads from the front of the unknown domain until the first
// failure.
func (s *TrialScanner) forwardPass(ctx context.Context, m *repairmap.Map) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		runs := m.Runs(repairmap.StateUnknown)
		if len(runs) == 0 {
			return nil
		}
		domain := runs[0]
		failed, err := s.probe(ctx, m, clampRun(domain.Start, s.sequenceLength, domain.End()))
		if err != nil || failed {
			return err
		}
	}
}

// backwardPass reads from the back of the unknown domain until the first
// failure.
func (s *TrialScanner) backwardPass(ctx context.Context, m *repairmap.Map) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		runs := m.Runs(repairmap.StateUnknown)
		if len(runs) == 0 {
			return nil
		}
		domain := runs[len(runs)-1]
		length := s.sequenceLength
		if length > domain.Length {
			length = domain.Length
		}
		failed, err := s.probe(ctx, m, repairmap.Range{Start: domain.End() - length, Length: length})
		if err != nil || failed {
			return err
		}
	}
}

// centerPass reads forward from the midpoint of the remaining unknown domain
// until the first failure or until it meets the domain's known boundary.
func (s *TrialScanner) centerPass(ctx context.Context, m *repairmap.Map) error {
	runs := m.Runs(repairmap.StateUnknown)
	if len(runs) == 0 {
		return nil
	}
	first := runs[0].Start
	last := runs[len(runs)-1].End()
	mid := first + (last-first)/2
	// The midpoint may land on an already classified sector when resuming;
	// advance to the next unknown run. Its end is the known boundary the
	// pass stops at.
	domain, ok := unknownRunAtOrAfter(m, mid)
	if !ok {
		return nil
	}
	cursor := mid
	if domain.Start > cursor {
		cursor = domain.Start
	}
	for cursor < domain.End() {
		if err := ctx.Err(); err != nil {
			return err
		}
		rng := clampRun(cursor, s.sequenceLength, domain.End())
		failed, err := s.probe(ctx, m, rng)
		if err != nil || failed {
			return err
		}
		cursor = rng.End()
	}
	return nil
}

// stripedPass repeatedly probes the largest remaining unknown run until no
// unknown sectors are left. Each probe classifies at least one sector, so the
// pass terminates.
func (s *TrialScanner) stripedPass(ctx context.Context, m *repairmap.Map) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		run, ok := m.LargestRun(repairmap.StateUnknown)
		if !ok {
			return nil
		}
		cursor := run.Start
		for cursor < run.End() {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := clampRun(cursor, s.sequenceLength, run.End())
			failed, err := s.probe(ctx, m, rng)
			if err != nil {
				return err
			}
			if failed {
				// The remainder of the probe is now suspect; re-pick the
				// largest unknown run.
				break
			}
			cursor = rng.End()
		}
	}
}

// unknownRunAtOrAfter finds the unknown run containing cursor, or the first
// unknown run after it.
func unknownRunAtOrAfter(m *repairmap.Map, cursor int64) (repairmap.Range, bool) {
	for _, run := range m.Runs(repairmap.StateUnknown) {
		if run.Contains(cursor) || run.Start > cursor {
			return run, true
		}
	}
	return repairmap.Range{}, false
}
