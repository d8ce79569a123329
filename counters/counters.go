// Package counters holds the mutex-guarded upstream and downstream
// counter families spec.md §5 names as leaf locks (meas_up, meas_dw;
// there is no GPS counter family here): upstream and
// downstream increment them on the hot path, and C9 periodically
// copies-then-zeroes each family to build a report, exactly the
// snapshot-and-reset discipline the teacher's reportfeed package uses
// around its own traffic counters (apps/proxy/reportfeed/reportfeed.go).
package counters

import "sync"

// Up holds the upstream fan-out's per-interval counters.
type Up struct {
	mu sync.Mutex

	RxNb uint32 // packets received from the concentrator/ghost source
	RxOk uint32 // packets received with CRCOK
	RxFW uint32 // packets actually forwarded (passed the filter)

	PushSent uint32 // PUSH_DATA datagrams sent, across all endpoints
	PushAcked uint32 // PUSH_ACKs received, across all endpoints
}

// AddReceived records one fetched packet.
func (u *Up) AddReceived(crcOK bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.RxNb++
	if crcOK {
		u.RxOk++
	}
}

// AddForwarded records n packets as forwarded in one PUSH_DATA.
func (u *Up) AddForwarded(n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.RxFW += uint32(n)
}

// AddPush records one send attempt and whether it was acked.
func (u *Up) AddPush(acked bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.PushSent++
	if acked {
		u.PushAcked++
	}
}

// UpSnapshot is a copied-and-reset view of Up.
type UpSnapshot struct {
	RxNb, RxOk, RxFW     uint32
	PushSent, PushAcked uint32
}

// AckRatio returns the PUSH_ACK ratio as a percentage, 0 when no sends
// have happened yet.
func (s UpSnapshot) AckRatio() float64 {
	if s.PushSent == 0 {
		return 0
	}
	return 100 * float64(s.PushAcked) / float64(s.PushSent)
}

// SnapshotAndReset copies the current counters out and zeroes them.
func (u *Up) SnapshotAndReset() UpSnapshot {
	u.mu.Lock()
	defer u.mu.Unlock()
	s := UpSnapshot{RxNb: u.RxNb, RxOk: u.RxOk, RxFW: u.RxFW, PushSent: u.PushSent, PushAcked: u.PushAcked}
	u.RxNb, u.RxOk, u.RxFW, u.PushSent, u.PushAcked = 0, 0, 0, 0, 0
	return s
}

// Down holds one downstream session's per-interval counters.
type Down struct {
	mu sync.Mutex

	PullSent    uint32
	AckRcv      uint32
	DgramRcv    uint32
	NetworkByte uint32
	PayloadByte uint32
	TxOk        uint32
	TxFail      uint32
}

func (d *Down) IncPullSent() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.PullSent++
}

func (d *Down) IncAckRcv() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.AckRcv++
}

// AddDgram records one received downstream datagram of n bytes.
func (d *Down) AddDgram(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DgramRcv++
	d.NetworkByte += uint32(n)
}

func (d *Down) AddPayloadByte(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.PayloadByte += uint32(n)
}

func (d *Down) IncTxOk() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.TxOk++
}

func (d *Down) IncTxFail() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.TxFail++
}

// DownSnapshot is a copied-and-reset view of Down.
type DownSnapshot struct {
	PullSent, AckRcv, DgramRcv, NetworkByte, PayloadByte, TxOk, TxFail uint32
}

func (d *Down) SnapshotAndReset() DownSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := DownSnapshot{d.PullSent, d.AckRcv, d.DgramRcv, d.NetworkByte, d.PayloadByte, d.TxOk, d.TxFail}
	d.PullSent, d.AckRcv, d.DgramRcv, d.NetworkByte, d.PayloadByte, d.TxOk, d.TxFail = 0, 0, 0, 0, 0, 0, 0
	return s
}
