// Package downstream runs one Polling/Listening session per live
// server endpoint (C7 in spec.md): a PULL_DATA keep-alive loop that
// processes PULL_ACK/PULL_RESP datagrams and, on the beacon pre-arm
// hand-off from C3, transmits the beacon inline. See spec.md §4.6.
package downstream

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/goblimey/lora-gateway/beacon"
	"github.com/goblimey/lora-gateway/concentrator"
	"github.com/goblimey/lora-gateway/counters"
	"github.com/goblimey/lora-gateway/endpoint"
	"github.com/goblimey/lora-gateway/gnss"
	"github.com/goblimey/lora-gateway/protocol"
	"github.com/goblimey/lora-gateway/timeref"
	"github.com/goblimey/lora-gateway/xtal"
)

// Session runs the state machine for one live endpoint.
type Session struct {
	Endpoint     *endpoint.Endpoint
	Concentrator *concentrator.Gateway
	TimeRef      *timeref.Ref
	Xtal         *xtal.Correction
	PPS          *gnss.PPSArmer
	Beacon       *beacon.Scheduler // nil when beacon is disabled

	GatewayEUI        uint64
	KeepaliveInterval time.Duration
	AutoquitThreshold int

	Counters *counters.Down
	Log      *slog.Logger

	// RequestShutdown is invoked at most once, when AutoquitThreshold is
	// reached without a PULL_ACK. Supplied by the supervisor (C10).
	RequestShutdown func()

	rng            *rand.Rand
	missedInARow   int
	shutdownFired  bool
}

// Run blocks running the Polling/Listening cycle until ctx is
// cancelled or the endpoint dies.
func (s *Session) Run(ctx context.Context) error {
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.KeepaliveInterval == 0 {
		s.KeepaliveInterval = 5 * time.Second
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !s.Endpoint.Live() {
			return nil
		}
		s.pollOnce()
	}
}

// pollOnce runs one Polling entry followed by a Listening window.
func (s *Session) pollOnce() {
	token := uint16(s.rng.Intn(1 << 16))
	pullData := protocol.Header{Version: protocol.ProtocolVersion, Token: token, Type: protocol.PullData, EUI: s.GatewayEUI}.Encode()

	if err := s.Endpoint.SendDown(pullData); err != nil {
		if s.Log != nil {
			s.Log.Warn("down: PULL_DATA send failed", "endpoint", s.Endpoint.Name, "error", err)
		}
		return
	}
	s.Counters.IncPullSent()
	s.missedInARow++

	acked := false
	buf := make([]byte, 2048)
	deadline := time.Now().Add(s.KeepaliveInterval)
	for time.Now().Before(deadline) {
		n, err := s.Endpoint.RecvDown(buf)
		if err != nil {
			continue
		}
		s.handleDatagram(buf[:n], token, &acked)
	}

	if acked {
		s.missedInARow = 0
	} else if s.AutoquitThreshold > 0 && s.missedInARow >= s.AutoquitThreshold && !s.shutdownFired {
		s.shutdownFired = true
		if s.RequestShutdown != nil {
			s.RequestShutdown()
		}
	}
}

func (s *Session) handleDatagram(data []byte, token uint16, acked *bool) {
	s.maybeScheduleBeacon()

	if len(data) < 4 {
		return
	}

	version := data[0]
	msgType := data[3]
	if version != protocol.ProtocolVersion {
		return
	}

	switch msgType {
	case protocol.PullAck:
		gotToken := uint16(data[1])<<8 | uint16(data[2])
		if gotToken != token {
			if s.Log != nil {
				s.Log.Debug("down: discarding out-of-sync PULL_ACK", "endpoint", s.Endpoint.Name)
			}
			return
		}
		if *acked {
			if s.Log != nil {
				s.Log.Debug("down: discarding duplicate PULL_ACK", "endpoint", s.Endpoint.Name)
			}
			return
		}
		*acked = true
		s.missedInARow = 0
		s.Counters.IncAckRcv()

	case protocol.PullResp:
		s.Counters.AddDgram(len(data))
		s.handlePullResp(data[4:])

	default:
		// Not a datagram this session understands; drop it.
	}
}

func (s *Session) handlePullResp(body []byte) {
	ref, refValid := s.TimeRef.Snapshot()
	mult, multValid := s.Xtal.Snapshot()
	if !multValid {
		mult = 1.0
	}

	pkt, err := protocol.ParsePullResp(body, refValid, func(t time.Time) uint32 {
		return timeref.UTCToCounter(ref, mult, t)
	})
	if err != nil {
		if s.Log != nil {
			s.Log.Warn("down: dropping malformed PULL_RESP", "endpoint", s.Endpoint.Name, "error", err)
		}
		return
	}

	s.Counters.AddPayloadByte(pkt.Size)
	if err := s.Concentrator.Send(pkt); err != nil {
		s.Counters.IncTxFail()
		if s.Log != nil {
			s.Log.Warn("down: concentrator rejected TX", "endpoint", s.Endpoint.Name, "error", err)
		}
		return
	}
	s.Counters.IncTxOk()
}

// maybeScheduleBeacon hands off to C8 if C3 pre-armed the beacon and
// both GNSS-derived time and the XTAL correction are currently valid,
// exactly the hand-off spec.md §4.6 describes, clearing the flag
// either way so a stale arm never fires twice.
func (s *Session) maybeScheduleBeacon() {
	if s.PPS == nil {
		return
	}
	if !s.PPS.TestAndClear() {
		return
	}
	if s.Beacon == nil {
		return
	}
	_, refValid := s.TimeRef.Snapshot()
	_, xtalValid := s.Xtal.Snapshot()
	if !refValid || !xtalValid {
		return
	}
	target := time.Now().UTC().Truncate(time.Second).Add(time.Second)
	if err := s.Beacon.Schedule(uint32(target.Unix())); err != nil && s.Log != nil {
		s.Log.Warn("down: beacon transmission failed", "error", err)
	}
}
