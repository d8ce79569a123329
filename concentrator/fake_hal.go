package concentrator

import (
	"sync/atomic"
	"time"

	"github.com/goblimey/lora-gateway/protocol"
)

// FakeHAL is an in-memory HAL used for tests. It counts concurrent
// calls so tests can assert the Gateway truly serialises access.
type FakeHAL struct {
	inFlight    int32
	maxInFlight int32

	// HoldTime, if non-zero, is slept while "in flight" so concurrent
	// callers have a chance to overlap if the Gateway failed to
	// serialise them.
	HoldTime time.Duration

	ReceiveFunc        func(maxN int) ([]protocol.ReceivedPacket, error)
	SendFunc           func(protocol.TransmitPacket) error
	StatusFunc         func() (Status, error)
	TriggerCounterFunc func() (uint32, error)
}

func (f *FakeHAL) enter() func() {
	n := atomic.AddInt32(&f.inFlight, 1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if n <= max {
			break
		}
		if atomic.CompareAndSwapInt32(&f.maxInFlight, max, n) {
			break
		}
	}
	if f.HoldTime > 0 {
		time.Sleep(f.HoldTime)
	}
	return func() { atomic.AddInt32(&f.inFlight, -1) }
}

// MaxInFlight returns the greatest number of concurrent calls observed.
func (f *FakeHAL) MaxInFlight() int32 {
	return atomic.LoadInt32(&f.maxInFlight)
}

func (f *FakeHAL) Receive(maxN int) ([]protocol.ReceivedPacket, error) {
	defer f.enter()()
	if f.ReceiveFunc != nil {
		return f.ReceiveFunc(maxN)
	}
	return nil, nil
}

func (f *FakeHAL) Send(pkt protocol.TransmitPacket) error {
	defer f.enter()()
	if f.SendFunc != nil {
		return f.SendFunc(pkt)
	}
	return nil
}

func (f *FakeHAL) Status() (Status, error) {
	defer f.enter()()
	if f.StatusFunc != nil {
		return f.StatusFunc()
	}
	return StatusFree, nil
}

func (f *FakeHAL) TriggerCounter() (uint32, error) {
	defer f.enter()()
	if f.TriggerCounterFunc != nil {
		return f.TriggerCounterFunc()
	}
	return 0, nil
}
