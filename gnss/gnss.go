// Package gnss ingests position and time from an attached GNSS
// receiver (C3 in spec.md). It blocks reading the serial device, parses
// NMEA sentences, and on each complete RMC sentence re-synchronises the
// time reference, captures position, and arms the beacon pre-trigger.
// See spec.md §4.3.
package gnss

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/adrianmo/go-nmea"

	"github.com/goblimey/lora-gateway/timeref"
)

// Position is the latest known gateway location.
type Position struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
	Valid     bool
}

// Source supplies the gateway's current position, real or faked.
type Source interface {
	Position() Position
}

// TriggerCounterReader reads the concentrator's free-running counter.
// Implemented by *concentrator.Gateway; kept as a narrow interface here
// so gnss doesn't import the concentrator package's HAL surface.
type TriggerCounterReader interface {
	TriggerCounter() (uint32, error)
}

// PPSArmer is signalled once per beacon cycle, on the second preceding
// the target PPS. An atomic boolean carries the single-writer (gnss),
// single-reader (downstream) hand-off in place of the raw
// "beacon_next_pps" flag: repeated Arm calls before a TestAndClear
// collapse into one pending arm.
type PPSArmer struct {
	armed atomic.Bool
}

// Arm sets the pre-arm flag.
func (p *PPSArmer) Arm() { p.armed.Store(true) }

// TestAndClear reports whether the flag was armed, clearing it either
// way. Safe for one reader (C7) to poll concurrently with Arm (C3).
func (p *PPSArmer) TestAndClear() bool { return p.armed.Swap(false) }

// Ingest reads a GNSS serial stream and keeps a TimeRef in sync.
type Ingest struct {
	reader        io.Reader
	timeRef       *timeref.Ref
	counter       TriggerCounterReader
	pps           *PPSArmer
	beaconPeriod  int
	beaconOffset  int
	log           *slog.Logger

	lastFix atomic.Value // stores Position
}

// NewIngest builds a GNSS ingest task reading from r.
func NewIngest(r io.Reader, ref *timeref.Ref, counter TriggerCounterReader, pps *PPSArmer, beaconPeriod, beaconOffset int, log *slog.Logger) *Ingest {
	ing := &Ingest{
		reader:       r,
		timeRef:      ref,
		counter:      counter,
		pps:          pps,
		beaconPeriod: beaconPeriod,
		beaconOffset: beaconOffset,
		log:          log,
	}
	ing.lastFix.Store(Position{})
	return ing
}

// Position implements Source with the most recent RMC fix.
func (ing *Ingest) Position() Position {
	return ing.lastFix.Load().(Position)
}

// Run blocks reading NMEA sentences until ctx is cancelled or the
// stream ends. Parse or sync failures skip that cycle without killing
// the task, per spec.md §4.3.
func (ing *Ingest) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(ing.reader)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Text()
		ing.handleLine(line)
	}
	return scanner.Err()
}

func (ing *Ingest) handleLine(line string) {
	sentence, err := nmea.Parse(line)
	if err != nil {
		// Not a recognised NMEA sentence, or a checksum failure: skip.
		return
	}

	rmc, ok := sentence.(nmea.RMC)
	if !ok {
		return
	}
	if rmc.Validity != "A" {
		// Receiver reports no fix yet.
		return
	}

	utc, err := rmcUTC(rmc)
	if err != nil {
		if ing.log != nil {
			ing.log.Warn("gnss: cannot derive UTC from RMC sentence", "error", err)
		}
		return
	}

	ing.lastFix.Store(Position{
		Latitude:  rmc.Latitude,
		Longitude: rmc.Longitude,
		Valid:     true,
	})

	secOfCycle := (utc.Second() + 1) % ing.beaconPeriod
	if secOfCycle == ing.beaconOffset {
		ing.pps.Arm()
	}

	counter, err := ing.counter.TriggerCounter()
	if err != nil {
		if ing.log != nil {
			ing.log.Warn("gnss: cannot read trigger counter", "error", err)
		}
		return
	}

	ing.timeRef.Sync(counter, utc)
}
