// Package upstream implements the one-task fan-out loop (C6 in
// spec.md): batch concentrator and ghost packets, build one PUSH_DATA
// datagram, and send it to every live server endpoint. See spec.md
// §4.5.
package upstream

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/goblimey/lora-gateway/concentrator"
	"github.com/goblimey/lora-gateway/counters"
	"github.com/goblimey/lora-gateway/endpoint"
	"github.com/goblimey/lora-gateway/ghost"
	"github.com/goblimey/lora-gateway/gwconfig"
	"github.com/goblimey/lora-gateway/protocol"
	"github.com/goblimey/lora-gateway/timeref"
	"github.com/goblimey/lora-gateway/xtal"
)

// NBPktMax is the maximum number of packets batched into one PUSH_DATA
// datagram, spec.md §4.5.
const NBPktMax = 8

// FetchSleep is the idle sleep when neither packets nor a pending
// status report are available.
const FetchSleep = 10 * time.Millisecond

// ReportProvider supplies the latest status report, if one is pending.
// C9 sets this up; C6 picks it up and clears it on consumption. See
// spec.md §4.8 ("C6 will pick the report up and append it inside its
// next PUSH_DATA").
type ReportProvider interface {
	TakeReport() (protocol.StatusReport, bool)
}

// Task is the upstream fan-out's single execution unit.
type Task struct {
	Concentrator *concentrator.Gateway
	Ghost        ghost.Source // nil when ghoststream is disabled
	TimeRef      *timeref.Ref
	Xtal         *xtal.Correction
	// Endpoints are the per-server reconnect supervisors (C5a), shared
	// with C7's downstream sessions, so a redial is visible to both
	// fan-out directions instead of upstream being stuck with the dead
	// endpoint it captured at startup.
	Endpoints []*endpoint.Supervisor
	GatewayEUI   uint64
	Filter       Filter
	Counters     *counters.Up
	Reports      ReportProvider
	Log          *slog.Logger

	rng *rand.Rand
}

// Filter resolves which packets are forwarded, per the CRC-status
// switches in gateway_conf.
type Filter struct {
	ForwardCRCValid    bool
	ForwardCRCError    bool
	ForwardCRCDisabled bool
}

// FilterFrom builds a Filter from the resolved gateway_conf
// switches (gwconfig.Enabled).
func FilterFrom(e gwconfig.Enabled) Filter {
	return Filter{
		ForwardCRCValid:    e.ForwardCRCValid,
		ForwardCRCError:    e.ForwardCRCError,
		ForwardCRCDisabled: e.ForwardCRCDisabled,
	}
}

// allow reports whether a packet passes the configured CRC-status
// filter, spec.md §4.5.
func (f Filter) allow(p protocol.ReceivedPacket) bool {
	switch p.CRCStatus {
	case protocol.CRCOK:
		return f.ForwardCRCValid
	case protocol.CRCBad:
		return f.ForwardCRCError
	default:
		return f.ForwardCRCDisabled
	}
}

// filterPackets returns the subset of pkts the configured switches
// allow through.
func (f Filter) filterPackets(pkts []protocol.ReceivedPacket) []protocol.ReceivedPacket {
	out := pkts[:0:0]
	for _, p := range pkts {
		if f.allow(p) {
			out = append(out, p)
		}
	}
	return out
}

// Run blocks executing the fan-out loop until ctx is cancelled.
func (t *Task) Run(ctx context.Context) error {
	if t.rng == nil {
		t.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		t.runOnce()
	}
}

func (t *Task) runOnce() {
	pkts, err := t.Concentrator.Receive(NBPktMax)
	if err != nil && t.Log != nil {
		t.Log.Warn("up: concentrator receive failed", "error", err)
	}
	if t.Ghost != nil && len(pkts) < NBPktMax {
		pkts = append(pkts, t.Ghost.Fetch(NBPktMax-len(pkts))...)
	}
	for _, p := range pkts {
		t.Counters.AddReceived(p.CRCStatus == protocol.CRCOK)
	}

	var report protocol.StatusReport
	hasReport := false
	if t.Reports != nil {
		report, hasReport = t.Reports.TakeReport()
	}

	if len(pkts) == 0 && !hasReport {
		time.Sleep(FetchSleep)
		return
	}

	filtered := t.Filter.filterPackets(pkts)
	if len(filtered) == 0 && !hasReport {
		return
	}
	t.Counters.AddForwarded(len(filtered))

	ref, valid := t.TimeRef.Snapshot()
	mult, multValid := t.Xtal.Snapshot()
	if !multValid {
		mult = 1.0
	}

	body := t.buildBody(filtered, ref, valid, mult, report, hasReport)
	datagram, err := protocol.EncodePushData(body)
	if err != nil {
		if t.Log != nil {
			t.Log.Error("up: cannot encode PUSH_DATA body", "error", err)
		}
		return
	}

	token := uint16(t.rng.Intn(1 << 16))
	header := protocol.Header{Version: protocol.ProtocolVersion, Token: token, Type: protocol.PushData, EUI: t.GatewayEUI}.Encode()
	fullDatagram := append(header, datagram...)

	for _, sup := range t.Endpoints {
		ep := sup.Endpoint()
		if !ep.Live() {
			continue
		}
		t.sendAndWaitAck(ep, fullDatagram, token)
	}
}

func (t *Task) buildBody(pkts []protocol.ReceivedPacket, ref timeref.TimeRef, refValid bool, mult float64, report protocol.StatusReport, hasReport bool) protocol.PushDataBody {
	body := protocol.PushDataBody{}
	for _, p := range pkts {
		// UTC from the TimeRef when it is valid, else the local fetch time.
		utc := time.Now().UTC()
		if refValid {
			utc = timeref.CounterToUTC(ref, mult, p.CountTimestamp)
		}
		body.Rxpk = append(body.Rxpk, protocol.EncodeRxpk(p, utc, true))
	}
	if hasReport {
		body.Stat = protocol.EncodeStat(report)
	}
	return body
}

// sendAndWaitAck sends datagram to ep and attempts up to two receives
// within the endpoint's configured push_timeout_half, spec.md §4.5.
func (t *Task) sendAndWaitAck(ep *endpoint.Endpoint, datagram []byte, token uint16) {
	if err := ep.SendUp(datagram); err != nil {
		if t.Log != nil {
			t.Log.Warn("up: send failed", "endpoint", ep.Name, "error", err)
		}
		t.Counters.AddPush(false)
		return
	}

	buf := make([]byte, 512)
	for attempt := 0; attempt < 2; attempt++ {
		n, err := ep.RecvUp(buf)
		if err != nil {
			continue
		}
		if protocol.IsAck(buf[:n], protocol.PushAck, token) {
			t.Counters.AddPush(true)
			return
		}
	}
	t.Counters.AddPush(false)
}
