package image

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Writer persists recovered sectors into an ISO image at their medium
// offsets. Sectors never recovered remain zero-filled.
type Writer struct {
	path       string
	file       *os.File
	sectorSize int64
	sectors    int64
}

// Create opens or creates the output image and extends it to cover the whole
// medium. An existing image from an earlier run keeps its contents so a
// resumed run only writes newly recovered sectors.
func Create(path string, sectorSize, sectorCount int64) (*Writer, error) {
	if sectorSize <= 0 || sectorCount <= 0 {
		return nil, fmt.Errorf("image geometry %dx%d is invalid", sectorCount, sectorSize)
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure image directory: %w", err)
		}
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}

	size := sectorSize * sectorCount
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("stat image: %w", err)
	}
	if info.Size() < size {
		if err := file.Truncate(size); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("extend image to %d bytes: %w", size, err)
		}
	}

	return &Writer{path: path, file: file, sectorSize: sectorSize, sectors: sectorCount}, nil
}

// Path returns the image file path.
func (w *Writer) Path() string { return w.path }

// WriteSectors stores data at the given sector offset. data must be a whole
// number of sectors.
func (w *Writer) WriteSectors(start int64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if int64(len(data))%w.sectorSize != 0 {
		return fmt.Errorf("write of %d bytes is not sector aligned", len(data))
	}
	count := int64(len(data)) / w.sectorSize
	if start < 0 || start+count > w.sectors {
		return fmt.Errorf("write [%d,%d) outside image of %d sectors", start, start+count, w.sectors)
	}

	offset := start * w.sectorSize
	for written := 0; written < len(data); {
		n, err := unix.Pwrite(int(w.file.Fd()), data[written:], offset+int64(written))
		if err != nil {
			return fmt.Errorf("write image at sector %d: %w", start, err)
		}
		written += n
	}
	return nil
}

// Sync flushes written data to stable storage.
func (w *Writer) Sync() error {
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync image: %w", err)
	}
	return nil
}

// Close syncs and releases the image file.
func (w *Writer) Close() error {
	if w == nil || w.file == nil {
		return nil
	}
	syncErr := w.file.Sync()
	closeErr := w.file.Close()
	w.file = nil
	if syncErr != nil {
		return fmt.Errorf("sync image: %w", syncErr)
	}
	return closeErr
}
