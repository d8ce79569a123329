// Package endpoint owns one server's pair of UDP sockets (C5 in
// spec.md). Each configured server gets an up-socket, used by the
// upstream fan-out to send PUSH_DATA and receive PUSH_ACK, and a
// down-socket, used by the downstream session to run the PULL_DATA/
// PULL_RESP keep-alive. Startup mirrors the teacher's connect-and-mark
// pattern in apps/proxy/tcpprox.go (connectToServer): resolve, dial,
// and record whether the result is usable rather than panicking the
// whole process over one bad server entry.
package endpoint

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/goblimey/lora-gateway/gwconfig"
)

// Default socket timeouts per spec.md §4.4, used when the config
// leaves push_timeout_ms at zero.
const (
	DefaultPushTimeoutMs = 100
	DefaultPullTimeoutMs = 200
)

// Endpoint is one server's dual-socket connection.
type Endpoint struct {
	Name string // host:port, for logging

	up   *net.UDPConn
	down *net.UDPConn

	pushTimeoutHalf time.Duration
	pullTimeout     time.Duration

	live atomic.Bool
}

// New dials both sockets for one configured server. The endpoint is
// marked live only when both dials succeed, per spec.md §4.4; a
// failure is returned but the caller may still keep a (dead) Endpoint
// around for later reconnect attempts (C5a).
func New(server gwconfig.Server, pushTimeoutMs, pullTimeoutMs int) (*Endpoint, error) {
	if pushTimeoutMs == 0 {
		pushTimeoutMs = DefaultPushTimeoutMs
	}
	if pullTimeoutMs == 0 {
		pullTimeoutMs = DefaultPullTimeoutMs
	}

	ep := &Endpoint{
		Name:            fmt.Sprintf("%s(%d/%d)", server.Address, server.PortUp, server.PortDown),
		pushTimeoutHalf: time.Duration(pushTimeoutMs) * time.Millisecond / 2,
		pullTimeout:     time.Duration(pullTimeoutMs) * time.Millisecond,
	}

	if err := ep.dial(server); err != nil {
		return ep, err
	}
	ep.live.Store(true)
	return ep, nil
}

func (ep *Endpoint) dial(server gwconfig.Server) error {
	upAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", server.Address, server.PortUp))
	if err != nil {
		return fmt.Errorf("endpoint: cannot resolve up address for %s: %w", ep.Name, err)
	}
	downAddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", server.Address, server.PortDown))
	if err != nil {
		return fmt.Errorf("endpoint: cannot resolve down address for %s: %w", ep.Name, err)
	}

	up, err := net.DialUDP("udp", nil, upAddr)
	if err != nil {
		return fmt.Errorf("endpoint: cannot dial up socket for %s: %w", ep.Name, err)
	}
	down, err := net.DialUDP("udp", nil, downAddr)
	if err != nil {
		up.Close()
		return fmt.Errorf("endpoint: cannot dial down socket for %s: %w", ep.Name, err)
	}

	ep.up = up
	ep.down = down
	return nil
}

// Live reports whether the endpoint's sockets are currently usable.
func (ep *Endpoint) Live() bool { return ep.live.Load() }

// markDead marks the endpoint unusable; Reconnect (C5a) may revive it.
func (ep *Endpoint) markDead() { ep.live.Store(false) }

// SendUp writes a datagram on the up-socket (PUSH_DATA); the server's
// PUSH_ACK comes back on the same socket via RecvUp.
func (ep *Endpoint) SendUp(data []byte) error {
	if !ep.Live() {
		return fmt.Errorf("endpoint: %s is dead", ep.Name)
	}
	_, err := ep.up.Write(data)
	if err != nil {
		ep.markDead()
	}
	return err
}

// RecvUp attempts one read from the up-socket within push_timeout_half.
func (ep *Endpoint) RecvUp(buf []byte) (int, error) {
	ep.up.SetReadDeadline(time.Now().Add(ep.pushTimeoutHalf))
	n, err := ep.up.Read(buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return 0, err
		}
		ep.markDead()
	}
	return n, err
}

// SendDown writes a datagram on the down-socket (PULL_DATA).
func (ep *Endpoint) SendDown(data []byte) error {
	if !ep.Live() {
		return fmt.Errorf("endpoint: %s is dead", ep.Name)
	}
	_, err := ep.down.Write(data)
	if err != nil {
		ep.markDead()
	}
	return err
}

// RecvDown blocks for up to pull_timeout waiting for a down-socket
// datagram (PULL_ACK or PULL_RESP).
func (ep *Endpoint) RecvDown(buf []byte) (int, error) {
	ep.down.SetReadDeadline(time.Now().Add(ep.pullTimeout))
	n, err := ep.down.Read(buf)
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return 0, err
		}
		ep.markDead()
	}
	return n, err
}

// Close releases both sockets.
func (ep *Endpoint) Close() {
	ep.live.Store(false)
	if ep.up != nil {
		ep.up.Close()
	}
	if ep.down != nil {
		ep.down.Close()
	}
}

// PushTimeoutHalf reports the configured half-push-timeout, used by
// the upstream fan-out's two-attempt receive window.
func (ep *Endpoint) PushTimeoutHalf() time.Duration { return ep.pushTimeoutHalf }
