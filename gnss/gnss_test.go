package gnss

import (
	"strings"
	"testing"

	"github.com/goblimey/lora-gateway/timeref"
)

type fakeCounter struct {
	value uint32
	err   error
}

func (f *fakeCounter) TriggerCounter() (uint32, error) { return f.value, f.err }

// A known-good RMC sentence (checksum valid) at 2024-01-02 03:04:05Z.
const sampleRMC = "$GPRMC,030405.00,A,4807.038,N,01131.000,E,022.4,084.4,020124,003.1,W*41"

func TestHandleLineSyncsTimeRefOnValidRMC(t *testing.T) {
	ref := timeref.New(timeref.SystemClock{})
	pps := &PPSArmer{}
	counter := &fakeCounter{value: 42}
	ing := NewIngest(strings.NewReader(""), ref, counter, pps, 128, 0, nil)

	ing.handleLine(sampleRMC)

	got, valid := ref.Snapshot()
	if !valid {
		t.Fatalf("expected TimeRef to become valid after a good RMC sentence")
	}
	if got.CounterAtSync != 42 {
		t.Errorf("expected counter 42, got %d", got.CounterAtSync)
	}
	if got.UTCAtSync.Hour() != 3 || got.UTCAtSync.Minute() != 4 || got.UTCAtSync.Second() != 5 {
		t.Errorf("expected 03:04:05 UTC, got %v", got.UTCAtSync)
	}
}

func TestHandleLineUpdatesPosition(t *testing.T) {
	ref := timeref.New(timeref.SystemClock{})
	pps := &PPSArmer{}
	counter := &fakeCounter{value: 1}
	ing := NewIngest(strings.NewReader(""), ref, counter, pps, 128, 0, nil)

	ing.handleLine(sampleRMC)

	pos := ing.Position()
	if !pos.Valid {
		t.Fatalf("expected position to be valid")
	}
}

func TestHandleLineArmsBeaconOnMatchingOffset(t *testing.T) {
	ref := timeref.New(timeref.SystemClock{})
	pps := &PPSArmer{}
	counter := &fakeCounter{value: 1}
	// utc.Second() == 5, so (5+1) mod period must equal offset to arm.
	ing := NewIngest(strings.NewReader(""), ref, counter, pps, 6, 0, nil)

	ing.handleLine(sampleRMC)

	if !pps.TestAndClear() {
		t.Errorf("expected beacon pre-arm to be set when (sec+1)%%period == offset")
	}
}

func TestHandleLineDoesNotArmBeaconOnNonMatchingOffset(t *testing.T) {
	ref := timeref.New(timeref.SystemClock{})
	pps := &PPSArmer{}
	counter := &fakeCounter{value: 1}
	ing := NewIngest(strings.NewReader(""), ref, counter, pps, 128, 0, nil)

	ing.handleLine(sampleRMC)

	if pps.TestAndClear() {
		t.Errorf("did not expect beacon pre-arm for a non-matching offset")
	}
}

func TestHandleLineIgnoresGarbage(t *testing.T) {
	ref := timeref.New(timeref.SystemClock{})
	pps := &PPSArmer{}
	counter := &fakeCounter{value: 1}
	ing := NewIngest(strings.NewReader(""), ref, counter, pps, 128, 0, nil)

	ing.handleLine("not a valid sentence")

	if _, valid := ref.Snapshot(); valid {
		t.Errorf("garbage input must not produce a valid TimeRef")
	}
}

func TestPPSArmerSingleSlot(t *testing.T) {
	var p PPSArmer
	if p.TestAndClear() {
		t.Fatalf("expected unarmed initially")
	}
	p.Arm()
	if !p.TestAndClear() {
		t.Fatalf("expected armed after Arm")
	}
	if p.TestAndClear() {
		t.Fatalf("expected TestAndClear to consume the flag")
	}
}
