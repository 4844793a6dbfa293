package repairmap

import "fmt"

// State classifies a sector of the source medium.
type State string

const (
	// StateUnknown marks sectors never probed.
	StateUnknown State = "unknown"
	// StateGood marks sectors read successfully. Good is final except that it
	// can be reached again from bad via the brute-force stage.
	StateGood State = "good"
	// StateSuspect marks sectors inside a failed probe that have not been
	// isolated to single-sector precision yet.
	StateSuspect State = "suspect"
	// StateBad marks sectors that still fail at single-sector granularity.
	StateBad State = "bad"
)

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	switch s {
	case StateUnknown, StateGood, StateSuspect, StateBad:
		return true
	}
	return false
}

// transitionAllowed encodes the monotone state machine: a sector never
// reverts to unknown, a good sector is never reclassified, and bad sectors
// move only to good (brute-force recovery).
func transitionAllowed(from, to State) bool {
	if from == to {
		return true
	}
	switch from {
	case StateUnknown:
		return to == StateGood || to == StateSuspect
	case StateSuspect:
		return to == StateGood || to == StateBad
	case StateBad:
		return to == StateGood
	}
	return false
}

// Range is a half-open run of sectors [Start, Start+Length).
type Range struct {
	Start  int64
	Length int64
}

// End returns the first sector index past the range.
func (r Range) End() int64 { return r.Start + r.Length }

// IsEmpty reports whether the range covers no sectors.
func (r Range) IsEmpty() bool { return r.Length <= 0 }

// Contains reports whether sector index i falls inside the range.
func (r Range) Contains(i int64) bool { return i >= r.Start && i < r.End() }

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Start, r.End())
}

type run struct {
	start  int64
	length int64
	state  State
}

func (r run) end() int64 { return r.start + r.length }

// Map is the authoritative sector classification for one medium. It is an
// ordered, coalesced list of runs that always partitions [0, sectorCount)
// exactly once. It is not safe for concurrent use; the orchestrator owns it
// and hands it to one stage at a time.
type Map struct {
	sectorCount int64
	runs        []run
}

// New builds a map covering sectorCount sectors, all unknown.
func New(sectorCount int64) (*Map, error) {
	if sectorCount <= 0 {
		return nil, fmt.Errorf("repair map requires a positive sector count, got %d", sectorCount)
	}
	return &Map{
		sectorCount: sectorCount,
		runs:        []run{{start: 0, length: sectorCount, state: StateUnknown}},
	}, nil
}

// SectorCount returns the number of sectors on the medium.
func (m *Map) SectorCount() int64 { return m.sectorCount }

// Get returns the state of a single sector. Indices outside the medium
// report StateUnknown.
func (m *Map) Get(index int64) State {
	if index < 0 || index >= m.sectorCount {
		return StateUnknown
	}
	for _, r := range m.runs {
		if index < r.end() {
			return r.state
		}
	}
	return StateUnknown
}

// Set classifies every sector in rng as state. All covered sectors must
// permit the transition; otherwise nothing is mutated and a
// StateViolationError identifying the first offending sector is returned.
func (m *Map) Set(rng Range, state State) error {
	if rng.IsEmpty() {
		return nil
	}
	if !state.Valid() {
		return fmt.Errorf("repair map: unknown state %q", state)
	}
	if rng.Start < 0 || rng.End() > m.sectorCount {
		return fmt.Errorf("repair map: range %s outside medium of %d sectors", rng, m.sectorCount)
	}

	for _, r := range m.runs {
		if r.end() <= rng.Start || r.start >= rng.End() {
			continue
		}
		if !transitionAllowed(r.state, state) {
			first := r.start
			if rng.Start > first {
				first = rng.Start
			}
			return &StateViolationError{Sector: first, From: r.state, To: state}
		}
	}

	out := make([]run, 0, len(m.runs)+2)
	for _, r := range m.runs {
		if r.end() <= rng.Start || r.start >= rng.End() {
			out = append(out, r)
			continue
		}
		if r.start < rng.Start {
			out = append(out, run{start: r.start, length: rng.Start - r.start, state: r.state})
		}
		if r.end() > rng.End() {
			out = append(out, run{start: rng.End(), length: r.end() - rng.End(), state: r.state})
		}
	}
	out = append(out, run{start: rng.Start, length: rng.Length, state: state})
	m.runs = normalizeRuns(out)
	return nil
}

// Runs returns the maximal contiguous runs of the given state in ascending
// start order. The slice is a snapshot; re-query after mutating the map.
func (m *Map) Runs(state State) []Range {
	var out []Range
	for _, r := range m.runs {
		if r.state == state {
			out = append(out, Range{Start: r.start, Length: r.length})
		}
	}
	return out
}

// LargestRun returns the longest contiguous run of the given state. Equal
// lengths tie-break to the lowest start index. ok is false when no sector
// holds the state.
func (m *Map) LargestRun(state State) (Range, bool) {
	var best Range
	found := false
	for _, r := range m.runs {
		if r.state != state {
			continue
		}
		if !found || r.length > best.Length {
			best = Range{Start: r.start, Length: r.length}
			found = true
		}
	}
	return best, found
}

// Counts aggregates sector totals per state.
type Counts struct {
	Unknown int64
	Good    int64
	Suspect int64
	Bad     int64
}

// Total returns the medium sector count represented by the counts.
func (c Counts) Total() int64 { return c.Unknown + c.Good + c.Suspect + c.Bad }

// Classified returns the number of sectors probed at least once.
func (c Counts) Classified() int64 { return c.Good + c.Suspect + c.Bad }

// Counts tallies sectors by state.
func (m *Map) Counts() Counts {
	var c Counts
	for _, r := range m.runs {
		switch r.state {
		case StateUnknown:
			c.Unknown += r.length
		case StateGood:
			c.Good += r.length
		case StateSuspect:
			c.Suspect += r.length
		case StateBad:
			c.Bad += r.length
		}
	}
	return c
}

// normalizeRuns sorts by start and merges adjacent runs of equal state.
func normalizeRuns(runs []run) []run {
	for i := 1; i < len(runs); i++ {
		for j := i; j > 0 && runs[j].start < runs[j-1].start; j-- {
			runs[j], runs[j-1] = runs[j-1], runs[j]
		}
	}
	out := runs[:0]
	for _, r := range runs {
		if r.length <= 0 {
			continue
		}
		if n := len(out); n > 0 && out[n-1].state == r.state && out[n-1].end() == r.start {
			out[n-1].length += r.length
			continue
		}
		out = append(out, r)
	}
	return out
}
