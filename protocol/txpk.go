package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Preamble floors and defaults, spec.md §4.6.
const (
	MinLoRaPreamble = 6
	StdLoRaPreamble = 8
	MinFSKPreamble  = 3
	StdFSKPreamble  = 4
)

// txpkJSON is the wire shape of the "txpk" object in a PULL_RESP body.
// Datr is raw because its type (string for LoRa, number for FSK)
// depends on Modu.
type txpkJSON struct {
	Imme bool            `json:"imme"`
	Tmst *uint32         `json:"tmst"`
	Time string          `json:"time"`
	Freq float64         `json:"freq"`
	RFCh int             `json:"rfch"`
	Powe int             `json:"powe"`
	Modu string          `json:"modu"`
	Datr json.RawMessage `json:"datr"`
	Codr string          `json:"codr"`
	Fdev float64         `json:"fdev"`
	Ipol bool            `json:"ipol"`
	Prea *int            `json:"prea"`
	Ncrc bool            `json:"ncrc"`
	Size int             `json:"size"`
	Data string          `json:"data"`
}

type pullRespJSON struct {
	Txpk txpkJSON `json:"txpk"`
}

// ParsePullResp decodes the body of a PULL_RESP (everything after the
// 4-byte header) into a TransmitPacket, applying the full validation
// table from spec.md §4.6. timeRefValid and utcToCounter convert a
// requested UTC time into a concentrator counter value; utcToCounter
// is only called when the body requests "time" timing.
func ParsePullResp(body []byte, timeRefValid bool, utcToCounter func(time.Time) uint32) (TransmitPacket, error) {
	var parsed pullRespJSON
	if err := json.Unmarshal(body, &parsed); err != nil {
		return TransmitPacket{}, fmt.Errorf("protocol: malformed PULL_RESP: %w", err)
	}
	tx := parsed.Txpk

	pkt := TransmitPacket{
		FreqHz:   uint32(tx.Freq * 1e6),
		RFChain:  tx.RFCh,
		PowerDBm: tx.Powe,
		NoCRC:    tx.Ncrc,
		InvertPolarity: tx.Ipol,
	}

	switch {
	case tx.Imme:
		pkt.Mode = SendImmediate
	case tx.Tmst != nil:
		pkt.Mode = SendTimestamped
		pkt.CountTimestamp = *tx.Tmst
	case tx.Time != "":
		if !timeRefValid {
			return TransmitPacket{}, fmt.Errorf("protocol: PULL_RESP requests UTC time but time reference is invalid")
		}
		t, err := time.Parse(time.RFC3339, tx.Time)
		if err != nil {
			return TransmitPacket{}, fmt.Errorf("protocol: unparsable PULL_RESP time: %w", err)
		}
		pkt.Mode = SendTimestamped
		pkt.CountTimestamp = utcToCounter(t)
	default:
		return TransmitPacket{}, fmt.Errorf("protocol: PULL_RESP has no timing field (imme/tmst/time)")
	}

	if tx.Freq == 0 {
		return TransmitPacket{}, fmt.Errorf("protocol: PULL_RESP missing freq")
	}
	if tx.Modu == "" {
		return TransmitPacket{}, fmt.Errorf("protocol: PULL_RESP missing modu")
	}
	if tx.Size <= 0 {
		return TransmitPacket{}, fmt.Errorf("protocol: PULL_RESP missing or invalid size")
	}
	data, err := base64.StdEncoding.DecodeString(tx.Data)
	if err != nil {
		return TransmitPacket{}, fmt.Errorf("protocol: PULL_RESP data is not valid base64: %w", err)
	}
	if len(data) != tx.Size {
		return TransmitPacket{}, fmt.Errorf("protocol: PULL_RESP data length %d does not match declared size %d", len(data), tx.Size)
	}
	pkt.Size = tx.Size
	pkt.Payload = data

	switch tx.Modu {
	case "LORA":
		pkt.Modulation = ModLoRa
		sf, bw, err := parseDatr(tx.Datr)
		if err != nil {
			return TransmitPacket{}, fmt.Errorf("protocol: PULL_RESP bad LoRa datr: %w", err)
		}
		pkt.DataRate = DataRate{LoRaSF: sf}
		pkt.Bandwidth = bw

		switch tx.Codr {
		case "4/5", "4/6", "2/3", "4/7", "4/8", "1/2":
			pkt.CodingRate = tx.Codr
		default:
			return TransmitPacket{}, fmt.Errorf("protocol: PULL_RESP bad LoRa codr %q", tx.Codr)
		}

		if tx.Prea != nil {
			p := *tx.Prea
			if p < MinLoRaPreamble {
				p = MinLoRaPreamble
			}
			pkt.PreambleLen = p
		} else {
			pkt.PreambleLen = StdLoRaPreamble
		}

	case "FSK":
		pkt.Modulation = ModFSK
		bps, err := parseFSKDatr(tx.Datr)
		if err != nil {
			return TransmitPacket{}, fmt.Errorf("protocol: PULL_RESP bad FSK datr: %w", err)
		}
		pkt.DataRate = DataRate{FSKBps: bps}
		if tx.Fdev == 0 {
			return TransmitPacket{}, fmt.Errorf("protocol: PULL_RESP missing fdev for FSK")
		}
		pkt.Bandwidth = int(tx.Fdev / 1000)

		if tx.Prea != nil {
			p := *tx.Prea
			if p < MinFSKPreamble {
				p = MinFSKPreamble
			}
			pkt.PreambleLen = p
		} else {
			pkt.PreambleLen = StdFSKPreamble
		}

	default:
		return TransmitPacket{}, fmt.Errorf("protocol: unsupported modu %q", tx.Modu)
	}

	return pkt, nil
}

// parseDatr parses a LoRa "SF{7..12}BW{125|250|500}" datr string.
func parseDatr(raw json.RawMessage) (sf int, bwHz int, err error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, 0, fmt.Errorf("expected string datr: %w", err)
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "SF") {
		return 0, 0, fmt.Errorf("datr %q missing SF prefix", s)
	}
	idx := strings.Index(s, "BW")
	if idx < 0 {
		return 0, 0, fmt.Errorf("datr %q missing BW", s)
	}
	sf, err = strconv.Atoi(s[2:idx])
	if err != nil || sf < 7 || sf > 12 {
		return 0, 0, fmt.Errorf("datr %q has invalid spreading factor", s)
	}
	bw, err := strconv.Atoi(s[idx+2:])
	if err != nil {
		return 0, 0, fmt.Errorf("datr %q has invalid bandwidth", s)
	}
	switch bw {
	case 125, 250, 500:
		return sf, bw * 1000, nil
	default:
		return 0, 0, fmt.Errorf("datr %q has unsupported bandwidth %d", s, bw)
	}
}

// parseFSKDatr parses an FSK datr, which is a bare integer bits/s,
// possibly wire-encoded as a JSON number or a numeric string.
func parseFSKDatr(raw json.RawMessage) (int, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		v, err := n.Int64()
		if err == nil {
			return int(v), nil
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		v, err := strconv.Atoi(s)
		if err == nil {
			return v, nil
		}
	}
	return 0, fmt.Errorf("datr %s is not a valid integer bit rate", string(raw))
}
