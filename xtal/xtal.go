// Package xtal implements the XTAL-correction tracker (C4): it
// averages the initial crystal-oscillator error over XERRInitAvg
// samples, then low-pass tracks it, exactly per spec.md §4.2.
package xtal

import "sync"

// XERRInitAvg is the number of samples averaged to seed the multiplier.
const XERRInitAvg = 128

// lowPassWeight is the 1/256 weight applied to each new sample once
// tracking has started.
const lowPassWeight = 1.0 / 256.0

// Correction is the mutex-guarded XTAL multiplier and its validity.
// Invariant: valid implies the time reference was valid at the most
// recent Update.
type Correction struct {
	mu         sync.RWMutex
	multiplier float64
	valid      bool
	sampleSum  float64
	sampleN    int
}

// New creates a Correction with multiplier 1.0 and invalid.
func New() *Correction {
	return &Correction{multiplier: 1.0}
}

// Snapshot returns the current multiplier and whether it is valid.
func (c *Correction) Snapshot() (multiplier float64, valid bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.multiplier, c.valid
}

// Update runs one step of the tracker. timeRefValid is the freshness
// of the time reference at this observation; xtalErr is the sample
// measured from that observation (only meaningful when timeRefValid).
func (c *Correction) Update(timeRefValid bool, xtalErr float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !timeRefValid {
		c.multiplier = 1.0
		c.valid = false
		c.sampleSum = 0
		c.sampleN = 0
		return
	}

	if c.sampleN < XERRInitAvg {
		c.sampleSum += xtalErr
		c.sampleN++
		if c.sampleN == XERRInitAvg {
			c.multiplier = float64(XERRInitAvg) / c.sampleSum
			c.valid = true
		}
		return
	}

	// Low-pass track: multiplier := multiplier*(1-w) + (1/xtalErr)*w
	c.multiplier = c.multiplier*(1-lowPassWeight) + (1/xtalErr)*lowPassWeight
	c.valid = true
}
