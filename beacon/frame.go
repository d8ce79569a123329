package beacon

import (
	"math"

	"github.com/goblimey/lora-gateway/crc"
)

// NetID is the fixed 24-bit network identifier every beacon frame
// carries, per spec.md §4.7.
const NetID uint32 = 0xC0FFEE

// FrameLen is the fixed beacon payload size.
const FrameLen = 17

const (
	latMin = -8388608 // 0xFF800000 as a 24-bit signed value
	latMax = 8388607  // 0x007FFFFF
	coordScale = 1 << 23
)

// BuildFrame assembles the 17-byte beacon payload: NetID, UTC seconds,
// a CRC-8 guard, an info byte, scaled latitude/longitude, and a
// trailing CRC-16 guard. See spec.md §4.7 for the exact byte layout.
func BuildFrame(utcSeconds uint32, info byte, latitude, longitude float64) [FrameLen]byte {
	var frame [FrameLen]byte

	frame[0] = byte(NetID)
	frame[1] = byte(NetID >> 8)
	frame[2] = byte(NetID >> 16)

	frame[3] = byte(utcSeconds)
	frame[4] = byte(utcSeconds >> 8)
	frame[5] = byte(utcSeconds >> 16)
	frame[6] = byte(utcSeconds >> 24)

	frame[7] = crc.CRC8CCITT(frame[0:7])

	frame[8] = info

	lat := clampLat(latitude)
	frame[9] = byte(lat)
	frame[10] = byte(lat >> 8)
	frame[11] = byte(lat >> 16)

	lon := maskLon(longitude)
	frame[12] = byte(lon)
	frame[13] = byte(lon >> 8)
	frame[14] = byte(lon >> 16)

	crc16 := crc.CRC16CCITTBytes(frame[8:15])
	frame[15] = crc16[0]
	frame[16] = crc16[1]

	return frame
}

// clampLat scales latitude to a 24-bit signed integer, clamped to the
// representable range rather than wrapping.
func clampLat(latitude float64) int32 {
	scaled := int64(math.Round((latitude / 90) * coordScale))
	if scaled < latMin {
		scaled = latMin
	}
	if scaled > latMax {
		scaled = latMax
	}
	return int32(scaled)
}

// maskLon scales longitude to a 24-bit integer, masking rather than
// clamping out-of-range values (spec.md §4.7: "masked to 24 bits").
func maskLon(longitude float64) int32 {
	scaled := int64(math.Round((longitude / 180) * coordScale))
	return int32(uint32(scaled) & 0xFFFFFF)
}
