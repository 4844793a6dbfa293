package recovery

import (
	"context"
	"log/slog"

	"discrescue/internal/device"
	"discrescue/internal/logging"
	"discrescue/internal/repairmap"
)

// BruteForcer is the third recovery stage. Optical read failures are often
// transient, so it retries every bad sector individually for up to
// brutePasses passes. Sectors that read back transition to good and leave
// the retry set; a pass that recovers nothing ends the stage early.
type BruteForcer struct {
	reader      device.SectorReader
	sink        SectorSink
	brutePasses int64
	logger      *slog.Logger
	notify      func(m *repairmap.Map)
}

// NewBruteForcer builds the brute-force stage. notify may be nil.
func NewBruteForcer(reader device.SectorReader, sink SectorSink, brutePasses int64, logger *slog.Logger, notify func(*repairmap.Map)) *BruteForcer {
	if logger == nil {
		logger = logging.NewNop()
	}
	if notify == nil {
		notify = func(*repairmap.Map) {}
	}
	return &BruteForcer{
		reader:      reader,
		sink:        sink,
		brutePasses: brutePasses,
		logger:      logger.With(logging.String(logging.FieldStage, repairmap.StageBrute)),
		notify:      notify,
	}
}

// Name implements Stage.
func (b *BruteForcer) Name() string { return repairmap.StageBrute }

// Applicable reports whether retry passes are configured and bad sectors
// remain.
func (b *BruteForcer) Applicable(m *repairmap.Map) bool {
	return b.brutePasses > 0 && m.Counts().Bad > 0
}

// Execute runs up to brutePasses retry passes over the bad set.
func (b *BruteForcer) Execute(ctx context.Context, m *repairmap.Map) error {
	for pass := int64(1); pass <= b.brutePasses; pass++ {
		runs := m.Runs(repairmap.StateBad)
		if len(runs) == 0 {
			return nil
		}
		var recovered int64
		for _, run := range runs {
			for sector := run.Start; sector < run.End(); sector++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				outcome, err := probeRun(ctx, b.reader, b.sink, m, repairmap.Range{Start: sector, Length: 1})
				if err != nil {
					return err
				}
				if !outcome.failed {
					recovered++
				}
				b.notify(m)
			}
		}
		b.logger.Info("brute pass complete",
			logging.Int64("pass", pass),
			logging.Int64("recovered", recovered),
			logging.Int64("remaining", m.Counts().Bad))
		if recovered == 0 {
			return nil
		}
	}
	return nil
}
