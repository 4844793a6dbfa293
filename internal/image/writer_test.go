package image_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"discrescue/internal/image"
)

func TestCreateExtendsToMediumSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.iso")

	w, err := image.Create(path, 512, 8)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != 512*8 {
		t.Fatalf("image size = %d, want %d", info.Size(), 512*8)
	}
}

func TestWriteSectorsPlacesDataAtOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.iso")
	w, err := image.Create(path, 512, 8)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	payload := bytes.Repeat([]byte{0xAB}, 2*512)
	if err := w.WriteSectors(3, payload); err != nil {
		t.Fatalf("WriteSectors: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if !bytes.Equal(content[3*512:5*512], payload) {
		t.Fatal("payload not written at sector offset")
	}
	for i, b := range content[:3*512] {
		if b != 0 {
			t.Fatalf("unwritten sector byte %d = %#x, want zero fill", i, b)
		}
	}
}

func TestWriteSectorsValidates(t *testing.T) {
	w, err := image.Create(filepath.Join(t.TempDir(), "out.iso"), 512, 4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()

	if err := w.WriteSectors(0, make([]byte, 100)); err == nil {
		t.Error("unaligned write should error")
	}
	if err := w.WriteSectors(3, make([]byte, 2*512)); err == nil {
		t.Error("write past image end should error")
	}
	if err := w.WriteSectors(0, nil); err != nil {
		t.Errorf("empty write should be a no-op: %v", err)
	}
}

func TestCreateKeepsExistingData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.iso")

	w, err := image.Create(path, 512, 4)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.WriteSectors(1, bytes.Repeat([]byte{0x7F}, 512)); err != nil {
		t.Fatalf("WriteSectors: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen as a resumed run would.
	w2, err := image.Create(path, 512, 4)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer w2.Close()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if content[512] != 0x7F {
		t.Fatal("existing data lost on reopen")
	}
}
