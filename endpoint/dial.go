package endpoint

import (
	"github.com/hashicorp/go-multierror"

	"github.com/goblimey/lora-gateway/gwconfig"
)

// DialAll dials one Endpoint per enabled server, returning every
// endpoint (dead ones included, for the reconnect supervisor to keep
// retrying) and an aggregated error describing which, if any, failed
// at startup. A partial failure is not fatal: spec.md requires the
// daemon to keep running with whatever endpoints did come up.
func DialAll(servers []gwconfig.Server, pushTimeoutMs, pullTimeoutMs int) ([]*Endpoint, error) {
	var eps []*Endpoint
	var errs *multierror.Error

	for _, server := range servers {
		if !server.Enabled {
			continue
		}
		ep, err := New(server, pushTimeoutMs, pullTimeoutMs)
		eps = append(eps, ep)
		if err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	return eps, errs.ErrorOrNil()
}
