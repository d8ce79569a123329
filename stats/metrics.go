package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/goblimey/lora-gateway/counters"
	"github.com/goblimey/lora-gateway/protocol"
)

// Metrics exports the same per-interval counters the JSON "stat" body
// carries as Prometheus gauges, so a gateway fleet can be scraped
// instead of (or alongside) polling each gateway's own status page.
type Metrics struct {
	rxNb     prometheus.Gauge
	rxOk     prometheus.Gauge
	rxFW     prometheus.Gauge
	ackRatio prometheus.Gauge
	dwNb     prometheus.Gauge
	txNb     prometheus.Gauge
}

// NewMetrics registers the gateway's gauges against reg. Pass
// prometheus.DefaultRegisterer in production, or a fresh
// prometheus.NewRegistry() in tests to avoid collisions between runs.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	ns := "lora_gateway"
	return &Metrics{
		rxNb:     f.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "rx_packets", Help: "Radio packets received in the last reporting interval."}),
		rxOk:     f.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "rx_packets_crc_ok", Help: "Radio packets received with a valid CRC in the last reporting interval."}),
		rxFW:     f.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "rx_packets_forwarded", Help: "Radio packets forwarded upstream in the last reporting interval."}),
		ackRatio: f.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "push_ack_ratio_percent", Help: "Percentage of PUSH_DATA datagrams acked in the last reporting interval."}),
		dwNb:     f.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "downstream_datagrams", Help: "Downstream datagrams received in the last reporting interval."}),
		txNb:     f.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "tx_packets_ok", Help: "Packets successfully transmitted in the last reporting interval."}),
	}
}

// Update pushes one interval's numbers into the registered gauges.
func (m *Metrics) Update(report protocol.StatusReport, snap counters.UpSnapshot) {
	m.rxNb.Set(float64(snap.RxNb))
	m.rxOk.Set(float64(snap.RxOk))
	m.rxFW.Set(float64(snap.RxFW))
	m.ackRatio.Set(snap.AckRatio())
	m.dwNb.Set(float64(report.DwNb))
	m.txNb.Set(float64(report.TxNb))
}
