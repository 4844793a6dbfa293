package testsupport

import (
	"context"
	"fmt"

	"discrescue/internal/device"
)

// FakeMedium is a scripted in-memory sector medium. Individual sectors can be
// made to fail permanently or for a fixed number of attempts, which models a
// marginal disc that yields data after retries. Sector content is
// deterministic so tests can verify what ended up in the image.
type FakeMedium struct {
	sectorSize  int64
	sectorCount int64

	// failures maps sector index to remaining failed attempts. A negative
	// value means the sector never reads.
	failures map[int64]int
	attempts map[int64]int
	reads    []ReadCall
}

// ReadCall records one ReadSectors invocation.
type ReadCall struct {
	Start int64
	Count int64
}

// NewFakeMedium returns a medium of sectorCount sectors that reads cleanly.
func NewFakeMedium(sectorCount, sectorSize int64) *FakeMedium {
	return &FakeMedium{
		sectorSize:  sectorSize,
		sectorCount: sectorCount,
		failures:    make(map[int64]int),
		attempts:    make(map[int64]int),
	}
}

// FailAlways marks every sector in [start, start+length) as unreadable.
func (f *FakeMedium) FailAlways(start, length int64) {
	for i := start; i < start+length; i++ {
		f.failures[i] = -1
	}
}

// FailTimes makes sector fail its first times attempts and succeed afterward.
func (f *FakeMedium) FailTimes(sector int64, times int) {
	f.failures[sector] = times
}

// SectorData returns the deterministic content of one sector.
func (f *FakeMedium) SectorData(sector int64) []byte {
	data := make([]byte, f.sectorSize)
	for i := range data {
		data[i] = byte((sector + int64(i)) % 251)
	}
	return data
}

// ReadCalls reports how many ReadSectors calls the medium has served.
func (f *FakeMedium) ReadCalls() int { return len(f.reads) }

// ReadLog returns the reads the medium served, in order.
func (f *FakeMedium) ReadLog() []ReadCall { return f.reads }

// Attempts reports how many times a sector has actually been attempted.
// Sectors behind a failure in a run read are not attempted.
func (f *FakeMedium) Attempts(sector int64) int { return f.attempts[sector] }

// SectorSize implements device.SectorReader.
func (f *FakeMedium) SectorSize() int64 { return f.sectorSize }

// SectorCount implements device.SectorReader.
func (f *FakeMedium) SectorCount() int64 { return f.sectorCount }

// ReadSectors implements device.SectorReader. A run read stops at the first
// failing sector; sectors beyond it are left untouched.
func (f *FakeMedium) ReadSectors(ctx context.Context, start, count int64) (device.ReadResult, error) {
	if err := ctx.Err(); err != nil {
		return device.ReadResult{}, err
	}
	if start < 0 || count <= 0 || start+count > f.sectorCount {
		return device.ReadResult{}, fmt.Errorf("read [%d, %d) outside medium of %d sectors", start, start+count, f.sectorCount)
	}
	f.reads = append(f.reads, ReadCall{Start: start, Count: count})

	data := make([]byte, 0, count*f.sectorSize)
	for i := int64(0); i < count; i++ {
		sector := start + i
		f.attempts[sector]++
		if remaining, ok := f.failures[sector]; ok {
			if remaining < 0 {
				return device.ReadResult{Data: data, SectorsRead: i, Failed: true}, nil
			}
			if remaining > 0 {
				f.failures[sector] = remaining - 1
				return device.ReadResult{Data: data, SectorsRead: i, Failed: true}, nil
			}
			delete(f.failures, sector)
		}
		data = append(data, f.SectorData(sector)...)
	}
	return device.ReadResult{Data: data, SectorsRead: count, Failed: false}, nil
}

var _ device.SectorReader = (*FakeMedium)(nil)
