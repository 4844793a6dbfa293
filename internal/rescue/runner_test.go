package rescue_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofrs/flock"

	"discrescue/internal/recovery"
	"discrescue/internal/repairmap"
	"discrescue/internal/rescue"
	"discrescue/internal/testsupport"
)

// interruptRun cancels a run after a few progress events, leaving behind an
// incomplete session with a partial snapshot.
func interruptRun(t *testing.T, opts rescue.Options) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := 0
	opts.Progress = func(recovery.Progress) {
		events++
		if events == 3 {
			cancel()
		}
	}
	if _, err := rescue.Run(ctx, opts); !errors.Is(err, context.Canceled) {
		t.Fatalf("interrupted Run error = %v, want context.Canceled", err)
	}
}

func writeMedium(t *testing.T, dir string, sectors, sectorSize int) (string, []byte) {
	t.Helper()
	content := make([]byte, sectors*sectorSize)
	for i := range content {
		content[i] = byte(i % 251)
	}
	path := filepath.Join(dir, "medium.bin")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write medium: %v", err)
	}
	return path, content
}

func TestRunRecoversFileMedium(t *testing.T) {
	dir := t.TempDir()
	mediumPath, content := writeMedium(t, dir, 20, 512)

	cfg := testsupport.NewConfig(t, testsupport.WithSequenceLength(4))
	cfg.Device.Path = mediumPath
	cfg.Recovery.SectorSize = 512

	opts := rescue.Options{
		Config:     cfg,
		OutputPath: filepath.Join(dir, "out.iso"),
		MapPath:    filepath.Join(dir, "out.map.db"),
	}
	result, err := rescue.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Resumed {
		t.Fatal("first run must not resume")
	}
	if result.Counts.Good != 20 || result.Counts.Bad != 0 {
		t.Fatalf("counts = %+v, want all good", result.Counts)
	}
	if result.Session.Stage != repairmap.StageDone {
		t.Fatalf("session stage = %q, want %q", result.Session.Stage, repairmap.StageDone)
	}

	img, err := os.ReadFile(result.ImagePath)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if !bytes.Equal(img, content) {
		t.Fatal("image content does not match medium content")
	}

	store, err := repairmap.OpenStore(result.MapPath)
	if err != nil {
		t.Fatalf("open map database: %v", err)
	}
	defer store.Close()
	session, err := store.SessionByID(context.Background(), result.Session.ID)
	if err != nil {
		t.Fatalf("SessionByID: %v", err)
	}
	if session.Stage != repairmap.StageDone {
		t.Fatalf("stored stage = %q, want %q", session.Stage, repairmap.StageDone)
	}
}

func TestRunResumesInterruptedRun(t *testing.T) {
	dir := t.TempDir()
	mediumPath, content := writeMedium(t, dir, 64, 512)

	cfg := testsupport.NewConfig(t, testsupport.WithSequenceLength(4))
	cfg.Device.Path = mediumPath
	cfg.Recovery.SectorSize = 512

	opts := rescue.Options{
		Config:     cfg,
		OutputPath: filepath.Join(dir, "out.iso"),
		MapPath:    filepath.Join(dir, "out.map.db"),
	}
	interruptRun(t, opts)

	result, err := rescue.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	if !result.Resumed {
		t.Fatal("second run must resume the interrupted session")
	}
	if result.Session.Stage != repairmap.StageDone {
		t.Fatalf("session stage = %q, want %q", result.Session.Stage, repairmap.StageDone)
	}
	if result.Counts.Good != 64 || result.Counts.Bad != 0 {
		t.Fatalf("counts = %+v, want all good", result.Counts)
	}

	img, err := os.ReadFile(result.ImagePath)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if !bytes.Equal(img, content) {
		t.Fatal("image content does not match medium content after resume")
	}
}

func TestRunResumeKeepsSessionTuning(t *testing.T) {
	dir := t.TempDir()
	mediumPath, _ := writeMedium(t, dir, 64, 512)

	cfg := testsupport.NewConfig(t, testsupport.WithSequenceLength(4))
	cfg.Device.Path = mediumPath
	cfg.Recovery.SectorSize = 512

	opts := rescue.Options{
		Config:     cfg,
		OutputPath: filepath.Join(dir, "out.iso"),
		MapPath:    filepath.Join(dir, "out.map.db"),
	}
	interruptRun(t, opts)

	// Changing the config between runs must not reshape the passes of an
	// in-flight session.
	cfg.Recovery.SequenceLength = 16
	result, err := rescue.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	if !result.Resumed {
		t.Fatal("second run must resume the interrupted session")
	}
	if result.Session.SequenceLength != 4 {
		t.Fatalf("session sequence length = %d, want the recorded 4", result.Session.SequenceLength)
	}
	if result.Session.Stage != repairmap.StageDone {
		t.Fatalf("session stage = %q, want %q", result.Session.Stage, repairmap.StageDone)
	}
}

func TestRunRejectsGeometryMismatch(t *testing.T) {
	dir := t.TempDir()
	mediumPath, _ := writeMedium(t, dir, 64, 512)

	cfg := testsupport.NewConfig(t, testsupport.WithSequenceLength(4))
	cfg.Device.Path = mediumPath
	cfg.Recovery.SectorSize = 512

	opts := rescue.Options{
		Config:     cfg,
		OutputPath: filepath.Join(dir, "out.iso"),
		MapPath:    filepath.Join(dir, "out.map.db"),
	}
	interruptRun(t, opts)

	cfg.Recovery.SectorSize = 1024
	_, err := rescue.Run(context.Background(), opts)
	if err == nil {
		t.Fatal("Run must refuse a map database recorded for different geometry")
	}
	if !strings.Contains(err.Error(), "recorded for") {
		t.Fatalf("error = %v, want geometry mismatch", err)
	}
}

func TestRunStartsFreshSessionAfterCompletion(t *testing.T) {
	dir := t.TempDir()
	mediumPath, _ := writeMedium(t, dir, 8, 512)

	cfg := testsupport.NewConfig(t, testsupport.WithSequenceLength(4))
	cfg.Device.Path = mediumPath
	cfg.Recovery.SectorSize = 512

	opts := rescue.Options{
		Config:     cfg,
		OutputPath: filepath.Join(dir, "out.iso"),
		MapPath:    filepath.Join(dir, "out.map.db"),
	}
	first, err := rescue.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("first Run: %v", err)
	}
	second, err := rescue.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if second.Resumed {
		t.Fatal("a completed session must not be resumed")
	}
	if first.Session.ID == second.Session.ID {
		t.Fatal("second run must create a fresh session")
	}
}

func TestRunRefusesConcurrentRuns(t *testing.T) {
	dir := t.TempDir()
	mediumPath, _ := writeMedium(t, dir, 8, 512)

	cfg := testsupport.NewConfig(t)
	cfg.Device.Path = mediumPath
	cfg.Recovery.SectorSize = 512

	mapPath := filepath.Join(dir, "out.map.db")
	other := flock.New(mapPath + ".lock")
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("pre-acquire lock: locked=%v err=%v", locked, err)
	}
	defer other.Unlock()

	_, err = rescue.Run(context.Background(), rescue.Options{
		Config:     cfg,
		OutputPath: filepath.Join(dir, "out.iso"),
		MapPath:    mapPath,
	})
	if err == nil {
		t.Fatal("Run must refuse to start while the lock is held")
	}
}

func TestDefaultArtifactPaths(t *testing.T) {
	cases := []struct {
		input     string
		wantImage string
		wantMap   string
	}{
		{"/dev/sr0", "sr0.iso", "sr0.map.db"},
		{"disc.bin", "disc.bin.iso", "disc.bin.map.db"},
		{"/data/rip/disc.bin", "/data/rip/disc.bin.iso", "/data/rip/disc.bin.map.db"},
	}
	for _, tc := range cases {
		gotImage, gotMap := rescue.DefaultArtifactPaths(tc.input)
		if gotImage != tc.wantImage || gotMap != tc.wantMap {
			t.Fatalf("DefaultArtifactPaths(%q) = (%q, %q), want (%q, %q)",
				tc.input, gotImage, gotMap, tc.wantImage, tc.wantMap)
		}
	}
}
