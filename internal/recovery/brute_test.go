package recovery_test

import (
	"context"
	"testing"

	"discrescue/internal/recovery"
	"discrescue/internal/repairmap"
	"discrescue/internal/testsupport"
)

func TestBruteForcerRecoversTransientSectors(t *testing.T) {
	medium := testsupport.NewFakeMedium(50, 64)
	// Sectors 10 and 13 never read. Sector 11 reads immediately, sector 12
	// needs one failed attempt before it yields.
	medium.FailAlways(10, 1)
	medium.FailTimes(12, 1)
	medium.FailAlways(13, 1)
	sink := testsupport.NewMemorySink(64)
	m := newMap(t, 50)
	seedState(t, m, repairmap.Range{Start: 10, Length: 4}, repairmap.StateBad)
	seedState(t, m, repairmap.Range{Start: 0, Length: 10}, repairmap.StateGood)
	seedState(t, m, repairmap.Range{Start: 14, Length: 36}, repairmap.StateGood)

	forcer := recovery.NewBruteForcer(medium, sink, 3, nil, nil)
	if err := forcer.Execute(context.Background(), m); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	wantRuns(t, m, repairmap.StateBad, []repairmap.Range{
		{Start: 10, Length: 1},
		{Start: 13, Length: 1},
	})
	if m.Get(11) != repairmap.StateGood || m.Get(12) != repairmap.StateGood {
		t.Fatal("recovered sectors must transition to good")
	}
	if !sink.HasSector(12) {
		t.Fatal("recovered sector 12 must reach the sink")
	}
	// Sector 11 left the retry set after pass 1; sector 12 after pass 2.
	if got := medium.Attempts(11); got != 1 {
		t.Fatalf("attempts on sector 11 = %d, want 1", got)
	}
	if got := medium.Attempts(12); got != 2 {
		t.Fatalf("attempts on sector 12 = %d, want 2", got)
	}
	if got := medium.Attempts(10); got != 3 {
		t.Fatalf("attempts on sector 10 = %d, want 3", got)
	}
}

func TestBruteForcerStopsAfterBarrenPass(t *testing.T) {
	medium := testsupport.NewFakeMedium(50, 64)
	medium.FailAlways(5, 2)
	sink := testsupport.NewMemorySink(64)
	m := newMap(t, 50)
	seedState(t, m, repairmap.Range{Start: 5, Length: 2}, repairmap.StateBad)
	seedState(t, m, repairmap.Range{Start: 0, Length: 5}, repairmap.StateGood)
	seedState(t, m, repairmap.Range{Start: 7, Length: 43}, repairmap.StateGood)

	forcer := recovery.NewBruteForcer(medium, sink, 5, nil, nil)
	if err := forcer.Execute(context.Background(), m); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	// Pass 1 recovers nothing, so passes 2 through 5 never run.
	if got := medium.Attempts(5); got != 1 {
		t.Fatalf("attempts on sector 5 = %d, want 1", got)
	}
	if got := medium.Attempts(6); got != 1 {
		t.Fatalf("attempts on sector 6 = %d, want 1", got)
	}
	wantRuns(t, m, repairmap.StateBad, []repairmap.Range{{Start: 5, Length: 2}})
}

func TestBruteForcerNeverTouchesGoodSectors(t *testing.T) {
	medium := testsupport.NewFakeMedium(20, 64)
	medium.FailAlways(8, 1)
	sink := testsupport.NewMemorySink(64)
	m := newMap(t, 20)
	seedState(t, m, repairmap.Range{Start: 8, Length: 1}, repairmap.StateBad)
	seedState(t, m, repairmap.Range{Start: 0, Length: 8}, repairmap.StateGood)
	seedState(t, m, repairmap.Range{Start: 9, Length: 11}, repairmap.StateGood)

	forcer := recovery.NewBruteForcer(medium, sink, 2, nil, nil)
	if err := forcer.Execute(context.Background(), m); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	for _, sector := range []int64{0, 7, 9, 19} {
		if got := medium.Attempts(sector); got != 0 {
			t.Fatalf("good sector %d attempted %d times, want 0", sector, got)
		}
	}
}

func TestBruteForcerZeroPasses(t *testing.T) {
	medium := testsupport.NewFakeMedium(20, 64)
	medium.FailAlways(3, 1)
	sink := testsupport.NewMemorySink(64)
	m := newMap(t, 20)
	seedState(t, m, repairmap.Range{Start: 3, Length: 1}, repairmap.StateBad)
	seedState(t, m, repairmap.Range{Start: 0, Length: 3}, repairmap.StateGood)
	seedState(t, m, repairmap.Range{Start: 4, Length: 16}, repairmap.StateGood)

	forcer := recovery.NewBruteForcer(medium, sink, 0, nil, nil)
	if forcer.Applicable(m) {
		t.Fatal("forcer with zero passes should not be applicable")
	}
	if err := forcer.Execute(context.Background(), m); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if medium.ReadCalls() != 0 {
		t.Fatalf("read calls = %d, want 0", medium.ReadCalls())
	}
}
