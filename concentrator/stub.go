package concentrator

import (
	"fmt"

	"github.com/goblimey/lora-gateway/protocol"
)

// errNotImplemented is returned by every NotImplementedHAL call.
var errNotImplemented = fmt.Errorf("concentrator: no hardware HAL wired into this binary")

// NotImplementedHAL satisfies HAL by failing every call. Talking to the
// real SX1301/SX1302 front-end is a cgo/hardware binding concern
// outside this repository's scope (spec.md §1's Non-goals); a
// deployment links its own HAL implementation in behind this
// interface. cmd/lora-gateway falls back to this stub so the daemon
// fails fast and loud instead of nil-pointer-panicking when no real
// HAL has been wired in.
type NotImplementedHAL struct{}

func (NotImplementedHAL) Receive(maxN int) ([]protocol.ReceivedPacket, error) {
	return nil, errNotImplemented
}

func (NotImplementedHAL) Send(protocol.TransmitPacket) error {
	return errNotImplemented
}

func (NotImplementedHAL) Status() (Status, error) {
	return StatusUnknown, errNotImplemented
}

func (NotImplementedHAL) TriggerCounter() (uint32, error) {
	return 0, errNotImplemented
}
