package device_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"discrescue/internal/device"
)

func writeMedium(t *testing.T, sectors int, sectorSize int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "medium.bin")
	data := make([]byte, sectors*sectorSize)
	for i := range data {
		data[i] = byte(i % 251)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write medium: %v", err)
	}
	return path
}

func TestOpenRegularFile(t *testing.T) {
	path := writeMedium(t, 16, 512)

	r, err := device.Open(path, device.Options{SectorSize: 512, ReadTimeout: time.Second})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.SectorSize() != 512 {
		t.Errorf("SectorSize = %d", r.SectorSize())
	}
	if r.SectorCount() != 16 {
		t.Errorf("SectorCount = %d, want 16", r.SectorCount())
	}
}

func TestSectorCountRoundsUp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medium.bin")
	if err := os.WriteFile(path, make([]byte, 2048*3+100), 0o644); err != nil {
		t.Fatalf("write medium: %v", err)
	}

	r, err := device.Open(path, device.Options{SectorSize: 2048})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if r.SectorCount() != 4 {
		t.Errorf("SectorCount = %d, want 4 (ceil)", r.SectorCount())
	}
}

func TestReadSectorsFullRun(t *testing.T) {
	path := writeMedium(t, 16, 512)
	r, err := device.Open(path, device.Options{SectorSize: 512})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	res, err := r.ReadSectors(context.Background(), 2, 4)
	if err != nil {
		t.Fatalf("ReadSectors: %v", err)
	}
	if res.Failed {
		t.Fatal("read of intact medium should not fail")
	}
	if res.SectorsRead != 4 {
		t.Fatalf("SectorsRead = %d", res.SectorsRead)
	}

	want := make([]byte, 4*512)
	for i := range want {
		want[i] = byte((2*512 + i) % 251)
	}
	if !bytes.Equal(res.Data, want) {
		t.Fatal("data mismatch")
	}
}

func TestReadSectorsBounds(t *testing.T) {
	path := writeMedium(t, 8, 512)
	r, err := device.Open(path, device.Options{SectorSize: 512})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	ctx := context.Background()
	if _, err := r.ReadSectors(ctx, 6, 4); err == nil {
		t.Error("read past end should error")
	}
	if _, err := r.ReadSectors(ctx, -1, 2); err == nil {
		t.Error("negative start should error")
	}
	if _, err := r.ReadSectors(ctx, 0, 0); err == nil {
		t.Error("zero count should error")
	}
}

func TestReadSectorsCancelledContext(t *testing.T) {
	path := writeMedium(t, 8, 512)
	r, err := device.Open(path, device.Options{SectorSize: 512})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.ReadSectors(ctx, 0, 2); err == nil {
		t.Fatal("cancelled context should surface as an error")
	}
}

func TestReadTrailingPartialSectorFails(t *testing.T) {
	// 3 full sectors plus 100 trailing bytes; the padded final sector cannot
	// be read in full and must be reported as a failure, not an error.
	path := filepath.Join(t.TempDir(), "medium.bin")
	if err := os.WriteFile(path, make([]byte, 2048*3+100), 0o644); err != nil {
		t.Fatalf("write medium: %v", err)
	}
	r, err := device.Open(path, device.Options{SectorSize: 2048})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	res, err := r.ReadSectors(context.Background(), 0, 4)
	if err != nil {
		t.Fatalf("ReadSectors: %v", err)
	}
	if !res.Failed {
		t.Fatal("expected failure on the padded final sector")
	}
	if res.SectorsRead != 3 {
		t.Fatalf("SectorsRead = %d, want 3", res.SectorsRead)
	}
	if len(res.Data) != 3*2048 {
		t.Fatalf("Data length = %d", len(res.Data))
	}
}

func TestOpenMissingPath(t *testing.T) {
	if _, err := device.Open(filepath.Join(t.TempDir(), "nope"), device.Options{}); err == nil {
		t.Fatal("expected error for missing path")
	}
}
