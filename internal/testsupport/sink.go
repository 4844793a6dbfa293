package testsupport

import "fmt"

// MemorySink captures recovered sector data in memory so tests can check
// exactly which sectors were written and with what content.
type MemorySink struct {
	sectorSize int64
	sectors    map[int64][]byte
}

// NewMemorySink returns an empty sink for sectors of the given size.
func NewMemorySink(sectorSize int64) *MemorySink {
	return &MemorySink{
		sectorSize: sectorSize,
		sectors:    make(map[int64][]byte),
	}
}

// WriteSectors stores data, which must be a whole number of sectors, at start.
func (s *MemorySink) WriteSectors(start int64, data []byte) error {
	if int64(len(data))%s.sectorSize != 0 {
		return fmt.Errorf("write of %d bytes is not sector aligned", len(data))
	}
	for i := int64(0); i < int64(len(data))/s.sectorSize; i++ {
		sector := make([]byte, s.sectorSize)
		copy(sector, data[i*s.sectorSize:(i+1)*s.sectorSize])
		s.sectors[start+i] = sector
	}
	return nil
}

// HasSector reports whether sector data was ever written for index.
func (s *MemorySink) HasSector(index int64) bool {
	_, ok := s.sectors[index]
	return ok
}

// Sector returns the captured content for index, or nil when never written.
func (s *MemorySink) Sector(index int64) []byte { return s.sectors[index] }

// Len reports how many distinct sectors have been written.
func (s *MemorySink) Len() int { return len(s.sectors) }
