// Package concentrator wraps the LoRa radio front-end behind a single
// coarse mutex. The hardware can't be safely shared, and the radio is
// the bottleneck anyway, so every operation acquires the lock and
// releases it before returning — no call blocks another out past its
// own duration. See spec.md §4.1.
package concentrator

import (
	"sync"

	"github.com/goblimey/lora-gateway/protocol"
)

// Status is the concentrator's reported activity state.
type Status int

const (
	StatusUnknown Status = iota
	StatusFree
	StatusEmitting
	StatusScheduled
)

// SpuriousResetCounter is the TriggerCounter() value that indicates the
// hardware has silently reset; the supervisor terminates the process
// when it observes this exact value.
const SpuriousResetCounter uint32 = 0x7E000000

// HAL is the hardware abstraction the concentrator gateway drives. A
// real implementation talks to the SX1301/SX1302 front-end; tests
// supply a fake.
type HAL interface {
	Receive(maxN int) ([]protocol.ReceivedPacket, error)
	Send(protocol.TransmitPacket) error
	Status() (Status, error)
	TriggerCounter() (uint32, error)
}

// Gateway serialises all access to a HAL behind one mutex.
type Gateway struct {
	mu  sync.Mutex
	hal HAL
}

// New wraps hal in a mutex-guarded Gateway.
func New(hal HAL) *Gateway {
	return &Gateway{hal: hal}
}

// Receive fetches up to maxN received packets.
func (g *Gateway) Receive(maxN int) ([]protocol.ReceivedPacket, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hal.Receive(maxN)
}

// Send submits a packet for transmission.
func (g *Gateway) Send(pkt protocol.TransmitPacket) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hal.Send(pkt)
}

// Status reports the concentrator's current TX activity.
func (g *Gateway) Status() (Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hal.Status()
}

// TriggerCounter reads the free-running microsecond counter.
func (g *Gateway) TriggerCounter() (uint32, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hal.TriggerCounter()
}

// IsSpuriousReset reports whether a TriggerCounter() reading indicates
// the hardware silently reset.
func IsSpuriousReset(counter uint32) bool {
	return counter == SpuriousResetCounter
}
