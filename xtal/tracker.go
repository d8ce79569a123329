package xtal

import (
	"context"
	"time"

	"github.com/goblimey/lora-gateway/timeref"
)

// tickInterval is C4's sampling period, spec.md §4.2's "once per
// second" — a var rather than a const so tests can shrink it.
var tickInterval = time.Second

// RunTracker drives C4's once-per-second tracking loop until ctx is
// cancelled: read the current TimeRef snapshot and feed its XtalError
// sample into Update. This is the GNSS flows C3 → C2 → C4 leg of
// spec.md §2 — without it c never leaves its initial invalid state.
func RunTracker(ctx context.Context, c *Correction, ref *timeref.Ref) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tr, valid := ref.Snapshot()
			c.Update(valid, tr.XtalError)
		}
	}
}
