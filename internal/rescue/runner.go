package rescue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"discrescue/internal/config"
	"discrescue/internal/device"
	"discrescue/internal/image"
	"discrescue/internal/logging"
	"discrescue/internal/recovery"
	"discrescue/internal/repairmap"
)

// Options configures one recovery run.
type Options struct {
	Config *config.Config
	// InputPath is the medium to read. Empty uses the configured device path.
	InputPath string
	// OutputPath is the image under construction. Empty derives it from the
	// input path.
	OutputPath string
	// MapPath is the map database. Empty derives it from the input path.
	MapPath string
	// WaitForDisc blocks until a disc is inserted before reading.
	WaitForDisc bool
	Logger      *slog.Logger
	Progress    recovery.ProgressFunc
}

// Result summarizes a finished run.
type Result struct {
	Session   *repairmap.Session
	Counts    repairmap.Counts
	ImagePath string
	MapPath   string
	Resumed   bool
	Elapsed   time.Duration
}

// DefaultArtifactPaths derives the image and map database paths for an input
// medium. Device paths produce artifacts in the working directory.
func DefaultArtifactPaths(input string) (imagePath, mapPath string) {
	base := input
	if strings.HasPrefix(input, "/dev/") {
		base = filepath.Base(input)
	}
	return base + ".iso", base + ".map.db"
}

// Run performs a complete recovery: lock, open, resume or start a session,
// drive the stages, and finalize the image. The map database always holds
// the latest snapshot when Run returns, including on cancellation.
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("rescue requires a config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	input := strings.TrimSpace(opts.InputPath)
	if input == "" {
		input = cfg.Device.Path
	}
	defaultImage, defaultMap := DefaultArtifactPaths(input)
	imagePath := opts.OutputPath
	if imagePath == "" {
		imagePath = defaultImage
	}
	mapPath := opts.MapPath
	if mapPath == "" {
		mapPath = defaultMap
	}
	logger = logger.With(logging.String(logging.FieldDevice, input))

	if opts.WaitForDisc {
		if err := device.WaitForDisc(ctx, logger, input); err != nil {
			return nil, err
		}
	}

	lock := flock.New(mapPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another recovery run already holds %s", lock.Path())
	}
	defer func() {
		if unlockErr := lock.Unlock(); unlockErr != nil {
			logger.Warn("failed to release run lock", logging.Error(unlockErr))
		}
	}()

	reader, err := device.Open(input, device.Options{
		SectorSize:  int64(cfg.Recovery.SectorSize),
		ReadTimeout: time.Duration(cfg.Device.ReadTimeout) * time.Second,
		DirectIO:    cfg.Device.DirectIO,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := reader.Close(); closeErr != nil {
			logger.Warn("failed to close medium", logging.Error(closeErr))
		}
	}()

	store, err := repairmap.OpenStore(mapPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Warn("failed to close map database", logging.Error(closeErr))
		}
	}()

	session, m, resumed, err := resolveSession(ctx, store, reader, cfg, input)
	if err != nil {
		return nil, err
	}
	logger = logger.With(logging.String(logging.FieldSessionID, session.ID))
	if resumed {
		counts := m.Counts()
		logger.Info("resuming recovery session",
			logging.String(logging.FieldStage, session.Stage),
			logging.Int64("classified", counts.Classified()),
			logging.Int64("total", counts.Total()))
	} else {
		logger.Info("starting recovery session",
			logging.Int64("sectors", reader.SectorCount()),
			logging.Int64("sector_size", reader.SectorSize()))
	}

	writer, err := image.Create(imagePath, reader.SectorSize(), reader.SectorCount())
	if err != nil {
		return nil, err
	}

	// The session carries the tuning it was created with. A resumed run keeps
	// it so halving granularities line up with the earlier passes, even when
	// the config has changed since.
	if resumed &&
		(session.SequenceLength != int64(cfg.Recovery.SequenceLength) ||
			session.BrutePasses != int64(cfg.Recovery.BrutePasses)) {
		logger.Warn("keeping tuning recorded with the session",
			logging.Int64("sequence_length", session.SequenceLength),
			logging.Int64("brute_passes", session.BrutePasses))
	}

	started := time.Now()
	orch, err := recovery.New(recovery.Options{
		Reader:         reader,
		Sink:           writer,
		Store:          store,
		Session:        session,
		SequenceLength: session.SequenceLength,
		BrutePasses:    session.BrutePasses,
		Logger:         logger,
		Progress:       opts.Progress,
	})
	if err != nil {
		_ = writer.Close()
		return nil, err
	}

	counts, runErr := orch.Run(ctx, m)
	if closeErr := writer.Close(); closeErr != nil && runErr == nil {
		runErr = fmt.Errorf("finalize image: %w", closeErr)
	}
	if runErr != nil {
		return nil, runErr
	}

	if cfg.Device.EjectOnCompletion && isBlockDevice(input) {
		if ejectErr := device.NewEjector().Eject(ctx, input); ejectErr != nil {
			logger.Warn("failed to eject disc", logging.Error(ejectErr))
		}
	}

	return &Result{
		Session:   session,
		Counts:    counts,
		ImagePath: writer.Path(),
		MapPath:   store.Path(),
		Resumed:   resumed,
		Elapsed:   time.Since(started),
	}, nil
}

// resolveSession resumes the latest incomplete session for this medium or
// starts a fresh one. A map database recorded against different medium
// geometry is rejected rather than silently restarted.
func resolveSession(ctx context.Context, store *repairmap.Store, reader *device.Reader, cfg *config.Config, input string) (*repairmap.Session, *repairmap.Map, bool, error) {
	latest, err := store.LatestSession(ctx)
	if err != nil && !errors.Is(err, repairmap.ErrNoSession) {
		return nil, nil, false, err
	}

	if latest != nil && latest.Stage != repairmap.StageDone {
		if latest.SectorSize != reader.SectorSize() || latest.SectorCount != reader.SectorCount() {
			return nil, nil, false, fmt.Errorf(
				"map database %s was recorded for %d sectors of %d bytes, medium has %d sectors of %d bytes",
				store.Path(), latest.SectorCount, latest.SectorSize, reader.SectorCount(), reader.SectorSize())
		}
		snap, err := store.LoadSnapshot(ctx, latest.ID)
		if err != nil {
			return nil, nil, false, err
		}
		m, err := repairmap.FromSnapshot(snap)
		if err != nil {
			return nil, nil, false, err
		}
		return latest, m, true, nil
	}

	session, err := store.CreateSession(ctx, input,
		reader.SectorSize(), reader.SectorCount(),
		int64(cfg.Recovery.SequenceLength), int64(cfg.Recovery.BrutePasses))
	if err != nil {
		return nil, nil, false, err
	}
	m, err := repairmap.New(reader.SectorCount())
	if err != nil {
		return nil, nil, false, err
	}
	return session, m, false, nil
}

func isBlockDevice(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeDevice != 0
}
