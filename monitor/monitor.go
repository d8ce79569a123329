// Package monitor serves the gateway's latest StatusReport over HTTP,
// read-only and unauthenticated (C9a, a spec.md §9 supplement — this is
// explicitly NOT the monitor client's remote-shell capability the
// spec's Non-goals exclude). The HTML side reuses the teacher's own
// ReportFeedT shape and go-tools/statusreporter service exactly as
// apps/proxy/tcpprox.go wires it; a JSON side is added alongside since
// the teacher's reportfeed never needed one.
package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	golog "github.com/goblimey/go-tools/logger"
	reporter "github.com/goblimey/go-tools/statusreporter"

	"github.com/goblimey/lora-gateway/protocol"
)

// reportFormat mirrors the teacher's own reportfeed/reportpage.go
// const-template style, adapted from hex-dumped RTCM buffers to a
// gateway status summary.
const reportFormat = `
<h3>Gateway status</h3>
<span id='time'>%s</span>
<pre>
<code>
<div class="preformatted" id='status'>
%s
</div>
</code>
</pre>
`

// Feed satisfies go-tools/statusreporter's ReportFeedT interface
// (SetLogLevel, Status) the same way the teacher's reportfeed.ReportFeed
// does, and additionally holds the most recent StatusReport for JSON
// rendering.
type Feed struct {
	mu   sync.RWMutex
	last protocol.StatusReport
	have bool

	// log mirrors tcpprox.go's package-level verbose/quiet toggle
	// (`log.SetLogLevel(1)`/`fmt.Fprintf(log, ...)`): every request this
	// feed serves is noted here, independent of the daemon's structured
	// slog event log.
	log *golog.LoggerT
}

// NewFeed creates an empty status feed. log may be nil to disable
// request logging.
func NewFeed(log *golog.LoggerT) *Feed {
	return &Feed{log: log}
}

func (f *Feed) logf(format string, args ...interface{}) {
	if f.log != nil {
		fmt.Fprintf(f.log, format, args...)
	}
}

// Update records the latest StatusReport, called by C9 once per
// stat_interval.
func (f *Feed) Update(r protocol.StatusReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = r
	f.have = true
}

// SetLogLevel satisfies the ReportFeedT interface, forwarding to the
// go-tools/logger verbosity toggle the same way tcpprox.go's own
// `log.SetLogLevel(1)` call does for its quiet/verbose flags.
func (f *Feed) SetLogLevel(level uint8) {
	if f.log != nil {
		f.log.SetLogLevel(int(level))
	}
}

// Status satisfies the ReportFeedT interface: an HTML fragment
// summarising the latest report.
func (f *Feed) Status() []byte {
	f.logf("monitor: serving status page\n")
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.have {
		return []byte(fmt.Sprintf(reportFormat, time.Now().Format(time.RFC3339), "no report yet"))
	}
	summary := fmt.Sprintf(
		"rxnb=%d rxok=%d rxfw=%d ackr=%.1f%% dwnb=%d txnb=%d",
		f.last.RxNb, f.last.RxOk, f.last.RxFW, f.last.AckR, f.last.DwNb, f.last.TxNb,
	)
	return []byte(fmt.Sprintf(reportFormat, f.last.Time.Format(time.RFC3339), summary))
}

// JSON returns the latest report as its wire-format "stat" JSON body,
// or (nil, false) if nothing has been reported yet.
func (f *Feed) JSON() (json.RawMessage, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if !f.have {
		return nil, false
	}
	return protocol.EncodeStat(f.last), true
}

// StartHTMLService wires Feed into go-tools/statusreporter exactly as
// apps/proxy/tcpprox.go's makeReporter does, serving the HTML status
// fragment at host:port.
func StartHTMLService(feed *Feed, host string, port int) {
	svc := reporter.MakeReporter(feed, host, port)
	svc.SetUseTextTemplates(true)
	go svc.StartService()
}

// JSONHandler serves the latest report as "stat" JSON at /status.json,
// and 503s until the first report has been built.
func JSONHandler(feed *Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		feed.logf("monitor: serving status.json to %s\n", r.RemoteAddr)
		body, ok := feed.JSON()
		if !ok {
			http.Error(w, "no report yet", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}
