// Package ghost supplies synthetic uplinks injected alongside real
// radio packets (C6a in spec.md, a supplement to C6). Source is
// pluggable so a gateway can wire in whatever ghost-packet generator
// fits its test rig; this package also provides one reference
// implementation reading from a UDP socket.
package ghost

import "github.com/goblimey/lora-gateway/protocol"

// Source supplies up to max synthetic ReceivedPackets. Implementations
// must not block past a short, bounded time budget: the upstream
// fan-out calls Fetch on its hot path.
type Source interface {
	Fetch(max int) []protocol.ReceivedPacket
}
