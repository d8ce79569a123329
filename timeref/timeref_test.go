package timeref

import (
	"testing"
	"time"
)

func TestSnapshotInvalidBeforeFirstSync(t *testing.T) {
	r := New(SystemClock{})
	_, valid := r.Snapshot()
	if valid {
		t.Fatalf("expected invalid snapshot before any Sync")
	}
}

func TestFreshnessBoundary30SecondsValid(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := &movableClock{at: base}
	r := New(clk)
	r.Sync(1000, base)

	clk.at = base.Add(30 * time.Second)
	_, valid := r.Snapshot()
	if !valid {
		t.Errorf("expected 30s age to still be valid")
	}
}

func TestFreshnessBoundary31SecondsInvalid(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := &movableClock{at: base}
	r := New(clk)
	r.Sync(1000, base)

	clk.at = base.Add(31 * time.Second)
	_, valid := r.Snapshot()
	if valid {
		t.Errorf("expected 31s age to be invalid")
	}
}

func TestCounterToUTCAndBackRoundTrip(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ref := TimeRef{SysTime: base, CounterAtSync: 1_000_000, UTCAtSync: base}

	utc := CounterToUTC(ref, 1.0, 2_000_000)
	want := base.Add(1 * time.Second)
	if !utc.Equal(want) {
		t.Errorf("CounterToUTC = %v, want %v", utc, want)
	}

	counter := UTCToCounter(ref, 1.0, want)
	if counter != 2_000_000 {
		t.Errorf("UTCToCounter = %d, want 2000000", counter)
	}
}

func TestCounterToUTCAppliesXtalMultiplier(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ref := TimeRef{SysTime: base, CounterAtSync: 0, UTCAtSync: base}

	// With a multiplier of 2.0, one million raw counter ticks (nominally
	// 1s) should elapse as 2 real seconds.
	utc := CounterToUTC(ref, 2.0, 1_000_000)
	want := base.Add(2 * time.Second)
	if !utc.Equal(want) {
		t.Errorf("CounterToUTC with multiplier = %v, want %v", utc, want)
	}
}

func TestCounterToUTCHandlesWraparound(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// CounterAtSync near the top of the 32-bit range; a later counter
	// that has wrapped around should still compute a small positive
	// delta, not a huge one.
	ref := TimeRef{SysTime: base, CounterAtSync: 0xFFFFFFFE, UTCAtSync: base}
	utc := CounterToUTC(ref, 1.0, 1) // wrapped: delta is +3 ticks
	want := base.Add(3 * time.Microsecond)
	if !utc.Equal(want) {
		t.Errorf("CounterToUTC wraparound = %v, want %v", utc, want)
	}
}

type movableClock struct {
	at time.Time
}

func (c *movableClock) Now() time.Time { return c.at }

func TestSyncFirstCallDefaultsXtalErrorToUnity(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := New(&movableClock{at: base})
	r.Sync(1000, base)
	ref, _ := r.Snapshot()
	if ref.XtalError != 1.0 {
		t.Errorf("expected first sync to default XtalError to 1.0, got %v", ref.XtalError)
	}
}

func TestSyncMeasuresXtalErrorFromPriorSync(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	r := New(&movableClock{at: base})
	r.Sync(0, base)
	// One second of UTC elapsed, but the counter only advanced
	// 999000us: the local oscillator is running slow.
	r.Sync(999_000, base.Add(1*time.Second))
	ref, _ := r.Snapshot()
	want := 0.999
	if diff := ref.XtalError - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("XtalError = %v, want %v", ref.XtalError, want)
	}
}
