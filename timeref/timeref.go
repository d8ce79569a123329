// Package timeref holds the gateway's counter↔UTC affine time mapping
// (C2 in spec.md). Only the GNSS ingest task calls Sync; every other
// task only ever reads a Snapshot. See spec.md §3-§4.2.
package timeref

import (
	"sync"
	"time"
)

// MaxAge is the freshness budget: a TimeRef whose SysTime is older than
// this is invalid: now - SysTime <= 30s => valid.
const MaxAge = 30 * time.Second

// TimeRef is the affine counter↔UTC mapping established at the last
// successful GNSS sync.
type TimeRef struct {
	SysTime       time.Time // wall-clock time this sync was taken
	CounterAtSync uint32    // concentrator counter at SysTime
	UTCAtSync     time.Time // UTC at SysTime
	XtalError     float64   // measured XTAL error sample, ~1.0
}

// Ref is the mutable, mutex-guarded holder of the current TimeRef.
// Only GNSS ingest (C3) calls Sync; everyone else calls Snapshot.
type Ref struct {
	mu    sync.RWMutex
	clock Clock
	ref   TimeRef
	set   bool
}

// New creates a Ref using clk as its notion of "now" (SystemClock in
// production, StoppedClock in tests).
func New(clk Clock) *Ref {
	return &Ref{clock: clk}
}

// Sync records a new counter↔UTC correspondence, observed at the
// current clock time. It measures the XTAL error as the ratio between
// elapsed concentrator-counter time and elapsed UTC time since the
// previous sync (1.0 on the very first sync, when there is no
// baseline). Called only by GNSS ingest (C3).
func (r *Ref) Sync(counter uint32, utc time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	xtalError := 1.0
	if r.set {
		counterDeltaSeconds := float64(int32(counter-r.ref.CounterAtSync)) / 1e6
		utcDeltaSeconds := utc.Sub(r.ref.UTCAtSync).Seconds()
		if utcDeltaSeconds > 0 {
			xtalError = counterDeltaSeconds / utcDeltaSeconds
		}
	}

	r.ref = TimeRef{
		SysTime:       r.clock.Now(),
		CounterAtSync: counter,
		UTCAtSync:     utc,
		XtalError:     xtalError,
	}
	r.set = true
}

// Snapshot atomically fetches the current TimeRef and its validity,
// per the freshness rule in spec.md §3: consumers must obtain both
// fields together and then check the age, which is exactly what this
// does before returning.
func (r *Ref) Snapshot() (TimeRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.set {
		return TimeRef{}, false
	}
	age := r.clock.Now().Sub(r.ref.SysTime)
	return r.ref, age <= MaxAge
}

// CounterToUTC converts a concentrator counter value to UTC using the
// affine relation in ref and the given XTAL multiplier.
func CounterToUTC(ref TimeRef, xtalMultiplier float64, counter uint32) time.Time {
	deltaCounter := int64(int32(counter - ref.CounterAtSync))
	deltaSeconds := float64(deltaCounter) / 1e6 * xtalMultiplier
	return ref.UTCAtSync.Add(time.Duration(deltaSeconds * float64(time.Second)))
}

// UTCToCounter converts a UTC instant to a concentrator counter value
// using the affine relation in ref and the given XTAL multiplier.
func UTCToCounter(ref TimeRef, xtalMultiplier float64, utc time.Time) uint32 {
	deltaSeconds := utc.Sub(ref.UTCAtSync).Seconds() / xtalMultiplier
	deltaCounter := int64(deltaSeconds * 1e6)
	return ref.CounterAtSync + uint32(deltaCounter)
}
