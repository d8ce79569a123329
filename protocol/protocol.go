// Package protocol implements the gateway-to-server wire protocol: the
// 12-byte datagram header shared by every message kind, and the JSON
// bodies carried by PUSH_DATA and PULL_RESP. Field names, types and
// units follow the published gateway protocol bit-for-bit; servers
// depend on them, so nothing here is free to drift.
package protocol

import (
	"encoding/binary"
	"errors"
)

// Message type codes carried in header byte 3.
const (
	PushData byte = 0
	PushAck  byte = 1
	PullData byte = 2
	PullResp byte = 3
	PullAck  byte = 4
)

// ProtocolVersion is the only version this daemon speaks.
const ProtocolVersion byte = 1

// HeaderLen is the size of the fixed datagram header.
const HeaderLen = 12

// ErrShortHeader is returned when a datagram is too small to contain a
// header.
var ErrShortHeader = errors.New("protocol: datagram shorter than header")

// ErrBadVersion is returned when the header's version byte isn't 1.
var ErrBadVersion = errors.New("protocol: unsupported protocol version")

// Header is the 12-byte prefix on every datagram:
// {ver(1), token(2), type(1), gateway EUI(8, big-endian)}.
type Header struct {
	Version byte
	Token   uint16
	Type    byte
	EUI     uint64
}

// Encode writes the header into a freshly allocated 12-byte slice.
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderLen)
	buf[0] = h.Version
	buf[1] = byte(h.Token >> 8)
	buf[2] = byte(h.Token)
	buf[3] = h.Type
	binary.BigEndian.PutUint64(buf[4:12], h.EUI)
	return buf
}

// DecodeHeader parses the header from the front of data. It only
// requires len(data) >= HeaderLen; any trailing bytes are the body.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderLen {
		return Header{}, ErrShortHeader
	}
	h := Header{
		Version: data[0],
		Token:   uint16(data[1])<<8 | uint16(data[2]),
		Type:    data[3],
		EUI:     binary.BigEndian.Uint64(data[4:12]),
	}
	if h.Version != ProtocolVersion {
		return h, ErrBadVersion
	}
	return h, nil
}

// IsAck reports whether data is a well-formed ack of the given type
// carrying the given token: length >= 4, version 1, matching type and
// token bytes. This is the exact test spec.md §4.5 requires for a
// PUSH_ACK match and §4.6 for a PULL_ACK match.
func IsAck(data []byte, wantType byte, wantToken uint16) bool {
	if len(data) < 4 {
		return false
	}
	if data[0] != ProtocolVersion {
		return false
	}
	if data[3] != wantType {
		return false
	}
	gotToken := uint16(data[1])<<8 | uint16(data[2])
	return gotToken == wantToken
}

// EncodeAck builds the 4-byte ack datagram for the given type and token.
func EncodeAck(ackType byte, token uint16) []byte {
	return []byte{ProtocolVersion, byte(token >> 8), byte(token), ackType}
}
