package endpoint

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/goblimey/lora-gateway/gwconfig"
)

// Supervisor keeps one Endpoint alive, redialling on a slow backoff
// when it goes dead, the same retry-rather-than-give-up idiom the
// teacher's proxy uses around its client accept loop in
// apps/proxy/tcpprox.go (StartClientListener keeps accepting after a
// single failed connectToServer rather than exiting the process).
// This is spec.md §9's "C5a — endpoint reconnect" supplement.
type Supervisor struct {
	server gwconfig.Server
	ep     atomic.Pointer[Endpoint] // written by Run, read by C6 and C7

	minBackoff time.Duration
	maxBackoff time.Duration

	pushTimeoutMs int
	pullTimeoutMs int
}

// NewSupervisor wraps an (possibly already-dead) Endpoint with a
// reconnect loop.
func NewSupervisor(server gwconfig.Server, ep *Endpoint, pushTimeoutMs, pullTimeoutMs int) *Supervisor {
	s := &Supervisor{
		server:        server,
		minBackoff:    5 * time.Second,
		maxBackoff:    5 * time.Minute,
		pushTimeoutMs: pushTimeoutMs,
		pullTimeoutMs: pullTimeoutMs,
	}
	s.ep.Store(ep)
	return s
}

// Endpoint returns the currently wrapped Endpoint. Callers must always
// fetch it fresh rather than caching it, since Run replaces it after a
// reconnect. Both C6's fan-out and C7's downstream session share this
// one Supervisor so a reconnect is visible to both instead of only to
// whichever one happened to hold the live pointer at startup.
func (s *Supervisor) Endpoint() *Endpoint { return s.ep.Load() }

// reconnectPollInterval is how often Run checks the endpoint's
// liveness. A var rather than a const so tests can shrink it instead
// of waiting out a real second per poll.
var reconnectPollInterval = time.Second

// Run blocks polling the endpoint's liveness and redialling on
// failure, backing off geometrically between attempts up to
// maxBackoff, until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	backoff := s.minBackoff
	ticker := time.NewTicker(reconnectPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ep := s.ep.Load()
			if ep.Live() {
				backoff = s.minBackoff
				continue
			}
			ep.Close()
			newEp, err := New(s.server, s.pushTimeoutMs, s.pullTimeoutMs)
			s.ep.Store(newEp)
			if err == nil {
				backoff = s.minBackoff
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.maxBackoff {
				backoff = s.maxBackoff
			}
		}
	}
}
