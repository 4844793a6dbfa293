package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"discrescue/internal/logging"
)

// ReadResult reports the outcome of a single run read.
type ReadResult struct {
	// Data holds SectorsRead full sectors of recovered content.
	Data []byte
	// SectorsRead counts sectors successfully read from the start of the run.
	SectorsRead int64
	// Failed reports a read failure at run offset SectorsRead. When false,
	// SectorsRead equals the requested count.
	Failed bool
}

// SectorReader is the read contract the recovery stages consume. Exactly one
// read may be outstanding at a time; implementations are not required to be
// safe for concurrent use.
type SectorReader interface {
	// ReadSectors attempts to read count sectors starting at start. Ordinary
	// read failures (bad sectors, timeouts) are reported in the result; the
	// error return is reserved for context cancellation and for the device
	// disappearing entirely.
	ReadSectors(ctx context.Context, start, count int64) (ReadResult, error)
	SectorSize() int64
	SectorCount() int64
}

// Options configures a Reader.
type Options struct {
	// SectorSize in bytes; zero uses the optical default of 2048.
	SectorSize int64
	// ReadTimeout bounds one device read. Zero disables the watchdog.
	ReadTimeout time.Duration
	// DirectIO opens block devices with O_DIRECT so reads are served by the
	// medium rather than the page cache. Ignored for regular files.
	DirectIO bool
	Logger   *slog.Logger
}

// Reader reads sectors from a block device or regular file.
type Reader struct {
	path        string
	file        *os.File
	sectorSize  int64
	sectorCount int64
	timeout     time.Duration
	logger      *slog.Logger
}

// Open prepares path for sector reads and determines the medium length.
func Open(path string, opts Options) (*Reader, error) {
	sectorSize := opts.SectorSize
	if sectorSize <= 0 {
		sectorSize = 2048
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	isBlock := info.Mode()&os.ModeDevice != 0 && info.Mode()&os.ModeCharDevice == 0

	flags := os.O_RDONLY
	if opts.DirectIO && isBlock {
		flags |= unix.O_DIRECT
	}
	file, err := os.OpenFile(path, flags, 0)
	if err != nil && opts.DirectIO && isBlock {
		// Some drivers reject O_DIRECT outright; fall back to buffered reads.
		file, err = os.OpenFile(path, os.O_RDONLY, 0)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	var byteSize int64
	if isBlock {
		byteSize, err = blockDeviceSize(int(file.Fd()))
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("query size of %s: %w", path, err)
		}
	} else {
		byteSize = info.Size()
	}
	if byteSize <= 0 {
		_ = file.Close()
		return nil, fmt.Errorf("medium %s reports no data", path)
	}

	return &Reader{
		path:        path,
		file:        file,
		sectorSize:  sectorSize,
		sectorCount: (byteSize + sectorSize - 1) / sectorSize,
		timeout:     opts.ReadTimeout,
		logger:      logging.NewComponentLogger(opts.Logger, "device"),
	}, nil
}

func blockDeviceSize(fd int) (int64, error) {
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, errno
	}
	return int64(size), nil
}

// Path returns the medium path.
func (r *Reader) Path() string { return r.path }

// SectorSize returns the sector size in bytes.
func (r *Reader) SectorSize() int64 { return r.sectorSize }

// SectorCount returns ceil(medium bytes / sector size).
func (r *Reader) SectorCount() int64 { return r.sectorCount }

// Close releases the underlying file descriptor.
func (r *Reader) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	return r.file.Close()
}

// ReadSectors reads a run of sectors. On a run-level failure it walks the
// run sector by sector so the failure offset is attributable, per the read
// contract.
func (r *Reader) ReadSectors(ctx context.Context, start, count int64) (ReadResult, error) {
	if count <= 0 {
		return ReadResult{}, fmt.Errorf("read of %d sectors", count)
	}
	if start < 0 || start+count > r.sectorCount {
		return ReadResult{}, fmt.Errorf("read [%d,%d) outside medium of %d sectors", start, start+count, r.sectorCount)
	}
	if err := ctx.Err(); err != nil {
		return ReadResult{}, err
	}

	buf := alignedBuffer(count*r.sectorSize, 4096)
	n, err := r.preadWithTimeout(ctx, buf, start*r.sectorSize)
	if err == nil && int64(n) == count*r.sectorSize {
		return ReadResult{Data: buf, SectorsRead: count}, nil
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ReadResult{}, ctxErr
		}
		if isFatalReadError(err) {
			return ReadResult{}, &GoneError{Path: r.path, Err: err}
		}
	}

	// The run failed somewhere. Re-read sector by sector from the front to
	// find the failure point; the cost is bounded because we stop at the
	// first failing sector.
	data := make([]byte, 0, count*r.sectorSize)
	for i := int64(0); i < count; i++ {
		if err := ctx.Err(); err != nil {
			return ReadResult{}, err
		}
		sector := alignedBuffer(r.sectorSize, 4096)
		n, err := r.preadWithTimeout(ctx, sector, (start+i)*r.sectorSize)
		if err != nil || int64(n) != r.sectorSize {
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ReadResult{}, ctxErr
				}
				if isFatalReadError(err) {
					return ReadResult{}, &GoneError{Path: r.path, Err: err}
				}
			}
			r.logger.Debug("sector read failed",
				logging.Int64(logging.FieldSector, start+i),
				logging.Error(err),
			)
			return ReadResult{Data: data, SectorsRead: i, Failed: true}, nil
		}
		data = append(data, sector...)
	}
	return ReadResult{Data: data, SectorsRead: count}, nil
}

type preadResult struct {
	n   int
	err error
}

// preadWithTimeout performs one pread bounded by the configured timeout. A
// blocked read syscall cannot be interrupted; on timeout its goroutine is
// abandoned and finishes whenever the drive gives up, which is why every
// call gets a fresh buffer.
func (r *Reader) preadWithTimeout(ctx context.Context, buf []byte, offset int64) (int, error) {
	fd := int(r.file.Fd())

	if r.timeout <= 0 {
		return readFull(fd, buf, offset)
	}

	ch := make(chan preadResult, 1)
	go func() {
		n, err := readFull(fd, buf, offset)
		ch <- preadResult{n: n, err: err}
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.n, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-timer.C:
		return 0, ErrReadTimeout
	}
}

// readFull retries short preads until the buffer is full, EOF, or an error.
func readFull(fd int, buf []byte, offset int64) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := unix.Pread(fd, buf[total:], offset+int64(total))
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return total, err
		}
		if n == 0 {
			return total, io.ErrUnexpectedEOF
		}
		total += n
	}
	return total, nil
}

// alignedBuffer allocates size bytes aligned for O_DIRECT reads.
func alignedBuffer(size int64, align int64) []byte {
	buf := make([]byte, size+align)
	offset := int64(uintptr(unsafe.Pointer(&buf[0])) % uintptr(align))
	if offset != 0 {
		offset = align - offset
	}
	return buf[offset : offset+size : offset+size]
}
