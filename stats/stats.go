// Package stats builds the periodic StatusReport (C9 in spec.md): once
// per stat_interval it snapshots-and-zeroes every counter family,
// folds in the current GNSS position, and hands the result to the
// upstream fan-out (C6) for inclusion in the next PUSH_DATA. See
// spec.md §4.8.
package stats

import (
	"sync"
	"time"

	"github.com/goblimey/lora-gateway/counters"
	"github.com/goblimey/lora-gateway/gnss"
	"github.com/goblimey/lora-gateway/protocol"
	"github.com/goblimey/lora-gateway/timeref"
)

// Reporter aggregates counters into a StatusReport once per interval.
type Reporter struct {
	Up       *counters.Up
	Downs    []*counters.Down
	Position gnss.Source // nil if neither real nor fake GNSS is configured

	Platform    string
	Email       string
	Description string

	Clock timeref.Clock // nil means use the real wall clock

	Metrics *Metrics // nil disables Prometheus export

	// OnReport, if set, is called with every report built, independent
	// of whether C6 ever consumes it via TakeReport. The monitor status
	// page (C9a) uses this to mirror the latest report without racing
	// TakeReport's single-consumer hand-off.
	OnReport func(protocol.StatusReport)

	mu      sync.Mutex
	pending *protocol.StatusReport
}

func (r *Reporter) now() time.Time {
	if r.Clock != nil {
		return r.Clock.Now()
	}
	return time.Now()
}

// RunOnce executes one reporting cycle: snapshot-and-zero every
// counter family, build the report, and queue it for C6 to pick up.
func (r *Reporter) RunOnce() protocol.StatusReport {
	upSnap := r.Up.SnapshotAndReset()

	var dwNb, txNb uint32
	for _, d := range r.Downs {
		s := d.SnapshotAndReset()
		dwNb += s.DgramRcv
		txNb += s.TxOk
	}

	report := protocol.StatusReport{
		Time: r.now(),
		RxNb: upSnap.RxNb,
		RxOk: upSnap.RxOk,
		RxFW: upSnap.RxFW,
		AckR: upSnap.AckRatio(),
		DwNb: dwNb,
		TxNb: txNb,

		Platform:    r.Platform,
		Email:       r.Email,
		Description: r.Description,
	}

	if r.Position != nil {
		pos := r.Position.Position()
		if pos.Valid {
			report.HasPosition = true
			report.Latitude = pos.Latitude
			report.Longitude = pos.Longitude
			report.Altitude = pos.Altitude
		}
	}

	r.mu.Lock()
	cp := report
	r.pending = &cp
	r.mu.Unlock()

	if r.Metrics != nil {
		r.Metrics.Update(report, upSnap)
	}
	if r.OnReport != nil {
		r.OnReport(report)
	}

	return report
}

// TakeReport implements upstream.ReportProvider: it returns the most
// recently built report, if one hasn't already been consumed, and
// clears it either way.
func (r *Reporter) TakeReport() (protocol.StatusReport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending == nil {
		return protocol.StatusReport{}, false
	}
	rep := *r.pending
	r.pending = nil
	return rep, true
}
