// Package beacon schedules the GNSS-aligned beacon transmission (C8
// in spec.md). It is invoked inline from a downstream session the
// instant that session's pre-arm flag (gnss.PPSArmer) is found set,
// exactly as spec.md §4.6/§4.7 describe: "pre-armed by C3... hand off
// to C8... then clear the flag."
package beacon

import (
	"fmt"
	"math"
	"time"

	"github.com/goblimey/lora-gateway/concentrator"
	"github.com/goblimey/lora-gateway/gnss"
	"github.com/goblimey/lora-gateway/protocol"
	"github.com/goblimey/lora-gateway/xtal"
)

// Fixed TX parameters, spec.md §4.7.
const (
	spreadingFactor = 9
	bandwidthHz     = 125000
	codingRate      = "4/5"
	preambleLen     = 6
	powerDBm        = 14
)

// PollInterval and PollBudget bound the post-Send status poll.
const (
	PollInterval = 50 * time.Millisecond
	PollBudget   = 30
)

// Scheduler transmits one beacon frame per invocation.
type Scheduler struct {
	Concentrator *concentrator.Gateway
	Xtal         *xtal.Correction
	Position     gnss.Source
	BeaconFreqHz int
}

// Schedule builds and transmits a beacon frame targeting utcSeconds,
// then polls the concentrator until it reports FREE or the poll
// budget is exhausted. It returns an error if the Send itself failed,
// or if the concentrator never returned to FREE within budget.
func (s *Scheduler) Schedule(utcSeconds uint32) error {
	pos := s.Position.Position()

	frame := BuildFrame(utcSeconds, 0, pos.Latitude, pos.Longitude)

	mult, valid := s.Xtal.Snapshot()
	if !valid {
		mult = 1.0
	}
	freqHz := uint32(math.Round(mult * float64(s.BeaconFreqHz)))

	tx := protocol.TransmitPacket{
		Mode:           protocol.SendOnGPSPPS,
		FreqHz:         freqHz,
		Modulation:     protocol.ModLoRa,
		Bandwidth:      bandwidthHz,
		DataRate:       protocol.DataRate{LoRaSF: spreadingFactor},
		CodingRate:     codingRate,
		PreambleLen:    preambleLen,
		NoCRC:          true,
		NoHeader:       true,
		InvertPolarity: true,
		PowerDBm:       powerDBm,
		Size:           len(frame),
		Payload:        frame[:],
	}

	if err := s.Concentrator.Send(tx); err != nil {
		return fmt.Errorf("beacon: send failed: %w", err)
	}

	for i := 0; i < PollBudget; i++ {
		status, err := s.Concentrator.Status()
		if err == nil && status == concentrator.StatusFree {
			return nil
		}
		time.Sleep(PollInterval)
	}
	return fmt.Errorf("beacon: concentrator did not return to FREE within %d polls", PollBudget)
}
