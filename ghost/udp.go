package ghost

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"log/slog"
	"net"

	"github.com/goblimey/lora-gateway/protocol"
)

// UDPSource is a reference ghost Source: it listens on a UDP socket
// for datagrams of whitespace-separated hex-encoded payloads and turns
// each payload into a synthetic ReceivedPacket, queued for Fetch. This
// mirrors the teacher's channel-fed byte-stream shape in
// apps/proxy/tcpprox.go (byteChan feeding an RTCM handler that in turn
// feeds messageChan, drained by keepCircularQueueUpdated), adapted
// from one continuous RTCM byte stream to discrete UDP datagrams of
// whole packets.
type UDPSource struct {
	conn    *net.UDPConn
	packets chan protocol.ReceivedPacket
	counter func() uint32
	log     *slog.Logger
}

// NewUDPSource opens addr (host:port) for listening and starts the
// background reader. counter, if non-nil, is called once per parsed
// payload to stamp its CountTimestamp field from the concentrator's
// free-running counter; it is expected to be cheap (typically reading
// an atomic snapshot rather than the concentrator itself, since ghost
// packets are deliberately fetched outside C1's lock — see spec.md §9
// Open Question "ghost fetch vs. concentrator lock").
func NewUDPSource(addr string, queueSize int, counter func() uint32, log *slog.Logger) (*UDPSource, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}

	s := &UDPSource{
		conn:    conn,
		packets: make(chan protocol.ReceivedPacket, queueSize),
		counter: counter,
		log:     log,
	}
	go s.run()
	return s, nil
}

func (s *UDPSource) run() {
	buf := make([]byte, 65507)
	for {
		n, _, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		s.handleDatagram(buf[:n])
	}
}

func (s *UDPSource) handleDatagram(data []byte) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		payload, err := hex.DecodeString(scanner.Text())
		if err != nil {
			if s.log != nil {
				s.log.Warn("ghost: skipping undecodable payload", "error", err)
			}
			continue
		}

		pkt := protocol.ReceivedPacket{
			CRCStatus:  protocol.CRCOK,
			Modulation: protocol.ModLoRa,
			DataRate:   protocol.DataRate{LoRaSF: 7},
			Bandwidth:  125000,
			CodingRate: "4/5",
			Size:       len(payload),
			Payload:    payload,
		}
		if s.counter != nil {
			pkt.CountTimestamp = s.counter()
		}

		select {
		case s.packets <- pkt:
		default:
			if s.log != nil {
				s.log.Warn("ghost: queue full, dropping packet")
			}
		}
	}
}

// Fetch drains up to max queued packets without blocking.
func (s *UDPSource) Fetch(max int) []protocol.ReceivedPacket {
	var out []protocol.ReceivedPacket
	for len(out) < max {
		select {
		case p := <-s.packets:
			out = append(out, p)
		default:
			return out
		}
	}
	return out
}

// Close stops the background reader.
func (s *UDPSource) Close() error {
	return s.conn.Close()
}
