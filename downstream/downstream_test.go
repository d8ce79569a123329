package downstream

import (
	"encoding/base64"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/goblimey/lora-gateway/concentrator"
	"github.com/goblimey/lora-gateway/counters"
	"github.com/goblimey/lora-gateway/endpoint"
	"github.com/goblimey/lora-gateway/gnss"
	"github.com/goblimey/lora-gateway/gwconfig"
	"github.com/goblimey/lora-gateway/protocol"
	"github.com/goblimey/lora-gateway/timeref"
	"github.com/goblimey/lora-gateway/xtal"
)

func listenUDP(t *testing.T) (*net.UDPConn, int) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, conn.LocalAddr().(*net.UDPAddr).Port
}

type fakeHAL struct {
	sent []protocol.TransmitPacket
}

func (f *fakeHAL) Receive(int) ([]protocol.ReceivedPacket, error) { return nil, nil }
func (f *fakeHAL) Send(p protocol.TransmitPacket) error {
	f.sent = append(f.sent, p)
	return nil
}
func (f *fakeHAL) Status() (concentrator.Status, error) { return concentrator.StatusFree, nil }
func (f *fakeHAL) TriggerCounter() (uint32, error)      { return 0, nil }

func newSession(t *testing.T, serverPort, ownPort int) (*Session, *counters.Down) {
	server := gwconfig.Server{Address: "127.0.0.1", PortUp: ownPort, PortDown: serverPort}
	ep, err := endpoint.New(server, 100, 50) // pull_timeout=50ms
	if err != nil {
		t.Fatalf("endpoint.New: %v", err)
	}
	t.Cleanup(ep.Close)

	hal := &fakeHAL{}
	gw := concentrator.New(hal)
	cnt := &counters.Down{}

	return &Session{
		Endpoint:          ep,
		Concentrator:      gw,
		TimeRef:           timeref.New(timeref.SystemClock{}),
		Xtal:              xtal.New(),
		GatewayEUI:        0x1122334455667788,
		KeepaliveInterval: 80 * time.Millisecond,
		Counters:          cnt,
	}, cnt
}

func TestPollOnceSendsPullDataAndReceivesAck(t *testing.T) {
	serverConn, serverPort := listenUDP(t)
	defer serverConn.Close()
	_, ownPort := listenUDP(t) // reserve a free port for the "up" socket the endpoint also dials

	sess, cnt := newSession(t, serverPort, ownPort)

	go func() {
		buf := make([]byte, 64)
		serverConn.SetReadDeadline(time.Now().Add(2 * time.Second))
		n, addr, err := serverConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		ack := protocol.EncodeAck(protocol.PullAck, uint16(buf[1])<<8|uint16(buf[2]))
		_ = n
		serverConn.WriteToUDP(ack, addr)
	}()

	sess.pollOnce()

	s := cnt.SnapshotAndReset()
	if s.PullSent != 1 {
		t.Fatalf("expected one PULL_DATA sent, got %d", s.PullSent)
	}
	if s.AckRcv != 1 {
		t.Fatalf("expected one PULL_ACK received, got %d", s.AckRcv)
	}
	if sess.missedInARow != 0 {
		t.Fatalf("expected missedInARow to reset after an ack, got %d", sess.missedInARow)
	}
}

func TestPollOnceTracksMissedAcksForAutoquit(t *testing.T) {
	serverConn, serverPort := listenUDP(t)
	defer serverConn.Close()
	_, ownPort := listenUDP(t)

	sess, cnt := newSession(t, serverPort, ownPort)
	sess.KeepaliveInterval = 30 * time.Millisecond
	sess.AutoquitThreshold = 2

	fired := false
	sess.RequestShutdown = func() { fired = true }

	sess.pollOnce() // no response from server
	sess.pollOnce()

	s := cnt.SnapshotAndReset()
	if s.PullSent != 2 {
		t.Fatalf("expected 2 PULL_DATA sent, got %d", s.PullSent)
	}
	if !fired {
		t.Fatalf("expected autoquit to fire after %d misses", sess.AutoquitThreshold)
	}
}

func TestHandlePullRespImmediateLoRaSubmitsToConcentrator(t *testing.T) {
	serverConn, serverPort := listenUDP(t)
	defer serverConn.Close()
	_, ownPort := listenUDP(t)

	sess, cnt := newSession(t, serverPort, ownPort)

	payload := []byte{0xAA, 0xBB}
	body := map[string]interface{}{
		"txpk": map[string]interface{}{
			"imme": true,
			"freq": 869.525,
			"rfch": 0,
			"modu": "LORA",
			"datr": "SF7BW125",
			"codr": "4/5",
			"size": len(payload),
			"data": base64.StdEncoding.EncodeToString(payload),
		},
	}
	raw, _ := json.Marshal(body)

	sess.handlePullResp(raw)

	s := cnt.SnapshotAndReset()
	if s.TxOk != 1 {
		t.Fatalf("expected TxOk=1, got %+v", s)
	}
	if s.PayloadByte != uint32(len(payload)) {
		t.Fatalf("expected PayloadByte=%d, got %d", len(payload), s.PayloadByte)
	}
}

func TestHandlePullRespDropsMalformedBody(t *testing.T) {
	serverConn, serverPort := listenUDP(t)
	defer serverConn.Close()
	_, ownPort := listenUDP(t)

	sess, cnt := newSession(t, serverPort, ownPort)
	sess.handlePullResp([]byte(`{"txpk":{}}`))

	s := cnt.SnapshotAndReset()
	if s.TxOk != 0 || s.TxFail != 0 {
		t.Fatalf("expected no TX attempt for a malformed body, got %+v", s)
	}
}

func TestMaybeScheduleBeaconSkippedWithoutValidTimeRef(t *testing.T) {
	serverConn, serverPort := listenUDP(t)
	defer serverConn.Close()
	_, ownPort := listenUDP(t)

	sess, _ := newSession(t, serverPort, ownPort)
	sess.PPS = &gnss.PPSArmer{}
	sess.PPS.Arm()
	// Beacon is left nil, and TimeRef was never synced, so scheduling
	// must be skipped without panicking.
	sess.maybeScheduleBeacon()

	if sess.PPS.TestAndClear() {
		t.Fatalf("expected TestAndClear to have consumed the arm flag already")
	}
}
