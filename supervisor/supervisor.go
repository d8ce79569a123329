// Package supervisor wires the gateway's components together and runs
// them for the life of the process (C10 in spec.md): config-driven
// construction, joined goroutine lifetimes, and a single shutdown
// path. See spec.md §4.8-§4.9 and §7.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	golog "github.com/goblimey/go-tools/logger"

	"github.com/goblimey/lora-gateway/beacon"
	"github.com/goblimey/lora-gateway/concentrator"
	"github.com/goblimey/lora-gateway/counters"
	"github.com/goblimey/lora-gateway/downstream"
	"github.com/goblimey/lora-gateway/endpoint"
	"github.com/goblimey/lora-gateway/ghost"
	"github.com/goblimey/lora-gateway/gnss"
	"github.com/goblimey/lora-gateway/gwconfig"
	"github.com/goblimey/lora-gateway/monitor"
	"github.com/goblimey/lora-gateway/stats"
	"github.com/goblimey/lora-gateway/timeref"
	"github.com/goblimey/lora-gateway/upstream"
	"github.com/goblimey/lora-gateway/xtal"
)

// spuriousResetPollInterval bounds how often the trigger-counter health
// probe samples the concentrator, spec.md §5's "meas_gps" reset watch.
const spuriousResetPollInterval = time.Second

// Deps supplies the hardware/IO dependencies Run cannot construct
// itself: the concentrator HAL (hardware binding, out of scope here —
// see spec.md §1's Non-goals) and, when GNSS is enabled and not faked,
// an open serial reader for the receiver.
type Deps struct {
	HAL       concentrator.HAL
	GPSReader io.ReadCloser // required when Config.GPS && !Config.FakeGPS
}

// Run builds every component from cfg and joins their lifetimes until
// ctx is cancelled or any component returns a fatal error, exactly the
// errgroup-based first-error-wins join the teacher never had (the
// spec's REDESIGN FLAG replacing scattered os.Exit calls and volatile
// quit flags with context cancellation).
func Run(ctx context.Context, cfg *gwconfig.Config, deps Deps, log *slog.Logger) error {
	g := cfg.Gateway
	enabled := g.Resolve()

	servers := g.ResolvedServers()
	if len(servers) == 0 {
		return fmt.Errorf("supervisor: no servers configured")
	}
	if g.GPS && !g.FakeGPS && deps.GPSReader == nil {
		return fmt.Errorf("supervisor: gps enabled but no GPS reader supplied")
	}

	concGw := concentrator.New(deps.HAL)
	timeRef := timeref.New(timeref.SystemClock{})
	xtalCorr := xtal.New()
	pps := &gnss.PPSArmer{}

	var position gnss.Source
	if g.FakeGPS {
		position = gnss.NewStaticSource(g.RefLatitude, g.RefLongitude, g.RefAltitude)
	}

	// Dial every enabled endpoint before starting any goroutine. Dead
	// endpoints are kept for the reconnect supervisors to retry; only
	// when no server is enabled at all does Run return here, without
	// ever spinning up a group whose context nobody would go on to
	// cancel.
	eps, dialErr := endpoint.DialAll(servers, g.PushTimeoutMs, 0)
	if dialErr != nil {
		log.Warn("main: one or more endpoints failed to dial at startup", "error", dialErr)
	}
	if len(eps) == 0 {
		return fmt.Errorf("supervisor: no enabled servers configured")
	}

	group, gctx := errgroup.WithContext(ctx)

	if g.GPS && !g.FakeGPS {
		ingest := gnss.NewIngest(deps.GPSReader, timeRef, concGw, pps, g.BeaconPeriod, g.BeaconOffset, log.With("component", "gps"))
		position = ingest
		group.Go(func() error {
			defer deps.GPSReader.Close()
			err := ingest.Run(gctx)
			if gctx.Err() != nil {
				return nil
			}
			return err
		})
	}

	group.Go(func() error {
		return pollSpuriousReset(gctx, concGw, log.With("component", "main"))
	})

	// C4's own once-per-second tracking loop: the GNSS flows C3 → C2 →
	// C4 leg of spec.md §2. Without this, xtalCorr never leaves its
	// initial invalid state and the beacon (C8) could never pass its
	// xtalValid gate.
	group.Go(func() error {
		return xtal.RunTracker(gctx, xtalCorr, timeRef)
	})

	supervisors := make([]*endpoint.Supervisor, len(eps))
	for i, ep := range eps {
		sup := endpoint.NewSupervisor(servers[i], ep, g.PushTimeoutMs, 0)
		supervisors[i] = sup
		group.Go(func() error {
			sup.Run(gctx)
			return nil
		})
	}

	var ghostSource ghost.Source
	if g.Ghoststream && g.GhostAddress != "" {
		src, err := ghost.NewUDPSource(g.GhostAddress, 64, func() uint32 {
			n, _ := concGw.TriggerCounter()
			return n
		}, log.With("component", "ghost"))
		if err != nil {
			return fmt.Errorf("supervisor: cannot start ghost source: %w", err)
		}
		ghostSource = src
	}

	var beaconSched *beacon.Scheduler
	if g.Beacon {
		beaconSched = &beacon.Scheduler{
			Concentrator: concGw,
			Xtal:         xtalCorr,
			Position:     position,
			BeaconFreqHz: g.BeaconFreqHz,
		}
	}

	upCounters := &counters.Up{}
	downCounters := make([]*counters.Down, len(eps))
	for i := range eps {
		downCounters[i] = &counters.Down{}
	}

	reporter := &stats.Reporter{
		Up:          upCounters,
		Downs:       downCounters,
		Position:    position,
		Platform:    g.Platform,
		Email:       g.ContactEmail,
		Description: g.Description,
	}

	if enabled.Statusstream && g.StatIntervalSec > 0 {
		reporter.Metrics = stats.NewMetrics(prometheus.DefaultRegisterer)
		sched := stats.NewScheduler(g.StatIntervalSec, reporter)
		sched.Start()
		group.Go(func() error {
			<-gctx.Done()
			sched.Stop()
			return nil
		})
	}

	if enabled.Upstream {
		task := &upstream.Task{
			Concentrator: concGw,
			Ghost:        ghostSource,
			TimeRef:      timeRef,
			Xtal:         xtalCorr,
			Endpoints:    supervisors,
			GatewayEUI:   parseEUI(g.GatewayID),
			Filter:       upstream.FilterFrom(enabled),
			Counters:     upCounters,
			Reports:      reporter,
			Log:          log.With("component", "up"),
		}
		group.Go(func() error { return task.Run(gctx) })
	}

	if enabled.Downstream {
		autoquit := make(chan struct{})
		var autoquitOnce sync.Once
		requestShutdown := func() { autoquitOnce.Do(func() { close(autoquit) }) }

		for i := range eps {
			i := i
			var sessionBeacon *beacon.Scheduler
			if i == 0 {
				// Only the first endpoint's session schedules the
				// beacon: the concentrator can only transmit once per
				// PPS cycle regardless of how many servers are polling.
				sessionBeacon = beaconSched
			}
			group.Go(func() error {
				return runDownstreamForever(gctx, supervisors[i], concGw, timeRef, xtalCorr, pps, sessionBeacon, downCounters[i], g, log, requestShutdown)
			})
		}

		group.Go(func() error {
			select {
			case <-gctx.Done():
				return nil
			case <-autoquit:
				return fmt.Errorf("supervisor: autoquit threshold reached without a PULL_ACK")
			}
		})
	}

	var feed *monitor.Feed
	if g.Monitor {
		feed = monitor.NewFeed(golog.New())
		reporter.OnReport = feed.Update
		host, port := splitMonitorAddress(g.MonitorAddress)
		monitor.StartHTMLService(feed, host, port)
		mux := http.NewServeMux()
		mux.Handle("/status.json", monitor.JSONHandler(feed))
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: fmt.Sprintf("%s:%d", host, port+1), Handler: mux}
		group.Go(func() error {
			go func() {
				<-gctx.Done()
				srv.Close()
			}()
			err := srv.ListenAndServe()
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		})
	}

	return group.Wait()
}

// runDownstreamForever re-creates a downstream.Session each time the
// endpoint supervisor hands back a freshly redialled endpoint, so a
// reconnect (C5a) resumes polling instead of leaving the session dead
// forever.
func runDownstreamForever(ctx context.Context, sup *endpoint.Supervisor, concGw *concentrator.Gateway, timeRef *timeref.Ref, xtalCorr *xtal.Correction, pps *gnss.PPSArmer, sched *beacon.Scheduler, cnt *counters.Down, g gwconfig.GatewayConf, log *slog.Logger, requestShutdown func()) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		ep := sup.Endpoint()
		if !ep.Live() {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
				continue
			}
		}

		session := &downstream.Session{
			Endpoint:          ep,
			Concentrator:      concGw,
			TimeRef:           timeRef,
			Xtal:              xtalCorr,
			PPS:               pps,
			Beacon:            sched,
			GatewayEUI:        parseEUI(g.GatewayID),
			AutoquitThreshold: g.AutoquitThreshold,
			Counters:          cnt,
			Log:               log.With("component", "down", "endpoint", ep.Name),
			RequestShutdown:   requestShutdown,
		}
		if err := session.Run(ctx); err != nil && ctx.Err() != nil {
			return nil
		}
	}
}

// pollSpuriousReset terminates the run with an error the moment the
// concentrator's trigger counter reports the documented spurious-reset
// signature, per spec.md §5's "meas_gps" health probe.
func pollSpuriousReset(ctx context.Context, concGw *concentrator.Gateway, log *slog.Logger) error {
	ticker := time.NewTicker(spuriousResetPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			counter, err := concGw.TriggerCounter()
			if err != nil {
				continue
			}
			if concentrator.IsSpuriousReset(counter) {
				log.Error("main: concentrator reported a spurious reset, stopping")
				return fmt.Errorf("supervisor: concentrator spurious reset detected")
			}
		}
	}
}

// parseEUI parses a gateway_ID hex string (e.g. "00:11:22:33:44:55:66:77"
// or "0011223344556677") into the 64-bit value the wire header carries.
func parseEUI(id string) uint64 {
	var eui uint64
	clean := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		if c == ':' || c == '-' {
			continue
		}
		clean = append(clean, c)
	}
	for _, c := range clean {
		var v uint64
		switch {
		case c >= '0' && c <= '9':
			v = uint64(c - '0')
		case c >= 'a' && c <= 'f':
			v = uint64(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v = uint64(c-'A') + 10
		default:
			continue
		}
		eui = eui<<4 | v
	}
	return eui
}

// splitMonitorAddress splits a configured "host:port" monitor address
// into its parts, defaulting to an empty host (all interfaces) and
// port 8080 if parsing fails, matching tcpprox.go's own permissive
// -ca/-cp default handling.
func splitMonitorAddress(addr string) (string, int) {
	host, portStr := "", ""
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			host = addr[:i]
			portStr = addr[i+1:]
			break
		}
	}
	port := 8080
	if portStr != "" {
		var parsed int
		if _, err := fmt.Sscanf(portStr, "%d", &parsed); err == nil {
			port = parsed
		}
	}
	return host, port
}
