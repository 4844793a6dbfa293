package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"discrescue/internal/device"
	"discrescue/internal/logging"
	"discrescue/internal/repairmap"
)

// Options configures an Orchestrator.
type Options struct {
	Reader device.SectorReader
	Sink   SectorSink
	// Store and Session enable snapshot persistence after each stage. Both
	// nil disables persistence.
	Store   *repairmap.Store
	Session *repairmap.Session
	// SequenceLength is the trial-scan probe granularity in sectors.
	SequenceLength int64
	// BrutePasses is the retry pass count for the brute-force stage.
	BrutePasses int64
	Logger      *slog.Logger
	// Progress, when set, receives an event after every probe.
	Progress ProgressFunc
}

// Orchestrator owns the repair map for one recovery run and drives the
// stages over it in strict order. Exactly one stage touches the map and the
// medium at a time; after each stage a snapshot is persisted so the run can
// resume where it stopped.
type Orchestrator struct {
	reader         device.SectorReader
	sink           SectorSink
	store          *repairmap.Store
	session        *repairmap.Session
	sequenceLength int64
	brutePasses    int64
	logger         *slog.Logger
	progress       ProgressFunc
	sampler        *logging.ProgressSampler
}

// New validates opts and builds an orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Reader == nil {
		return nil, errors.New("orchestrator requires a sector reader")
	}
	if opts.Sink == nil {
		return nil, errors.New("orchestrator requires a sector sink")
	}
	if opts.SequenceLength < 1 {
		return nil, fmt.Errorf("sequence length must be at least 1, got %d", opts.SequenceLength)
	}
	if opts.BrutePasses < 0 {
		return nil, fmt.Errorf("brute passes must not be negative, got %d", opts.BrutePasses)
	}
	if (opts.Store == nil) != (opts.Session == nil) {
		return nil, errors.New("store and session must be provided together")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Session != nil {
		logger = logger.With(logging.String(logging.FieldSessionID, opts.Session.ID))
	}
	return &Orchestrator{
		reader:         opts.Reader,
		sink:           opts.Sink,
		store:          opts.Store,
		session:        opts.Session,
		sequenceLength: opts.SequenceLength,
		brutePasses:    opts.BrutePasses,
		logger:         logger,
		progress:       opts.Progress,
		sampler:        logging.NewProgressSampler(10),
	}, nil
}

// Run drives the stages over m until the medium is fully classified or a
// fatal error stops the run. The map always reflects exactly what has been
// established so far: on cancellation or device loss the latest snapshot is
// persisted before returning, so a later run resumes from it.
func (o *Orchestrator) Run(ctx context.Context, m *repairmap.Map) (repairmap.Counts, error) {
	builders := []struct {
		name  string
		build func(notify func(*repairmap.Map)) Stage
	}{
		{repairmap.StageTrial, func(notify func(*repairmap.Map)) Stage {
			return NewTrialScanner(o.reader, o.sink, o.sequenceLength, o.logger, notify)
		}},
		{repairmap.StageIsolation, func(notify func(*repairmap.Map)) Stage {
			return NewIsolationRefiner(o.reader, o.sink, o.sequenceLength, o.logger, notify)
		}},
		{repairmap.StageBrute, func(notify func(*repairmap.Map)) Stage {
			return NewBruteForcer(o.reader, o.sink, o.brutePasses, o.logger, notify)
		}},
	}

	for _, builder := range builders {
		base := stagePending(builder.name, m.Counts())
		stage := builder.build(o.notifier(builder.name, base))
		if !stage.Applicable(m) {
			o.logger.Debug("skipping stage",
				logging.String(logging.FieldStage, builder.name))
			continue
		}
		o.logger.Info("starting stage",
			logging.String(logging.FieldStage, builder.name),
			logging.Int64("pending", base))
		o.sampler.Reset()

		execErr := stage.Execute(ctx, m)
		if persistErr := o.persist(builder.name, m); persistErr != nil {
			if execErr != nil {
				o.logger.Error("snapshot save failed after stage error",
					logging.String(logging.FieldStage, builder.name),
					logging.Error(persistErr))
			} else {
				execErr = persistErr
			}
		}
		if execErr != nil {
			return m.Counts(), fmt.Errorf("%s stage: %w", builder.name, execErr)
		}
		counts := m.Counts()
		o.logger.Info("stage complete",
			logging.String(logging.FieldStage, builder.name),
			logging.Int64("good", counts.Good),
			logging.Int64("suspect", counts.Suspect),
			logging.Int64("bad", counts.Bad))
	}

	if err := o.persist(repairmap.StageDone, m); err != nil {
		return m.Counts(), err
	}
	return m.Counts(), nil
}

// persist saves the current map under the session with the given stage
// marker. It deliberately ignores run cancellation so an interrupted run
// still leaves a snapshot behind.
func (o *Orchestrator) persist(stage string, m *repairmap.Map) error {
	if o.store == nil {
		return nil
	}
	if err := o.store.SaveSnapshot(context.Background(), o.session.ID, stage, m.Snapshot()); err != nil {
		return fmt.Errorf("persist repair map: %w", err)
	}
	o.session.Stage = stage
	return nil
}

// notifier builds the per-probe callback for one stage. Percent measures how
// much of the stage's starting workload has been classified.
func (o *Orchestrator) notifier(stage string, base int64) func(*repairmap.Map) {
	return func(m *repairmap.Map) {
		counts := m.Counts()
		percent := 100.0
		if base > 0 {
			percent = 100 * float64(base-stagePending(stage, counts)) / float64(base)
		}
		if o.progress != nil {
			o.progress(Progress{Stage: stage, Percent: percent, Counts: counts})
		}
		if o.sampler.ShouldLog(percent, stage) {
			o.logger.Info("recovery progress",
				logging.String(logging.FieldStage, stage),
				logging.Float64("percent", percent),
				logging.Int64("good", counts.Good),
				logging.Int64("suspect", counts.Suspect),
				logging.Int64("bad", counts.Bad))
		}
	}
}

// stagePending returns the count of sectors a stage still has to classify.
func stagePending(stage string, counts repairmap.Counts) int64 {
	switch stage {
	case repairmap.StageTrial:
		return counts.Unknown
	case repairmap.StageIsolation:
		return counts.Suspect
	case repairmap.StageBrute:
		return counts.Bad
	default:
		return 0
	}
}
