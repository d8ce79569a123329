package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// sixDecimalFloat formats as "%.6f" in JSON, used for freq (MHz).
type sixDecimalFloat float64

func (f sixDecimalFloat) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%.6f", float64(f))), nil
}

// oneDecimalFloat formats as "%.1f" in JSON, used for lsnr (dB).
type oneDecimalFloat float64

func (f oneDecimalFloat) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprintf("%.1f", float64(f))), nil
}

// rxpkJSON is the wire shape of one element of the "rxpk" array in a
// PUSH_DATA body. Fields absent for a given modulation are omitted.
type rxpkJSON struct {
	Tmst uint32  `json:"tmst"`
	Time string  `json:"time,omitempty"`
	Chan int     `json:"chan"`
	RFCh int     `json:"rfch"`
	Freq sixDecimalFloat `json:"freq"`
	Stat int     `json:"stat"`
	Modu string  `json:"modu"`
	Datr json.RawMessage `json:"datr"`
	Codr string  `json:"codr,omitempty"`
	Lsnr *oneDecimalFloat `json:"lsnr,omitempty"`
	RSSI int     `json:"rssi"`
	Size int     `json:"size"`
	Data string  `json:"data"`
}

// encodeDatr formats the datr field per spec.md §4.5: "SF<x>BW<y>" for
// LoRa, a bare integer bits/s for FSK.
func encodeDatr(p ReceivedPacket) json.RawMessage {
	if p.Modulation == ModFSK {
		return json.RawMessage(fmt.Sprintf("%d", p.DataRate.FSKBps))
	}
	s := fmt.Sprintf("\"SF%dBW%d\"", p.DataRate.LoRaSF, p.Bandwidth/1000)
	return json.RawMessage(s)
}

// EncodeRxpk renders a ReceivedPacket as one "rxpk" JSON element. When
// includeTime is true, utc is emitted as the ISO-8601 "time" field; the
// caller chooses utc (TimeRef-derived when valid, else a local fetch
// time, per spec.md §4.5). When includeTime is false no "time" field is
// emitted.
func EncodeRxpk(p ReceivedPacket, utc time.Time, includeTime bool) json.RawMessage {
	entry := rxpkJSON{
		Tmst: p.CountTimestamp,
		Chan: p.IFChain,
		RFCh: p.RFChain,
		Freq: sixDecimalFloat(float64(p.FreqHz) / 1e6),
		Stat: p.CRCStatus.rxpkStat(),
		Modu: p.Modulation.String(),
		Datr: encodeDatr(p),
		Size: p.Size,
		RSSI: p.RSSI,
		Data: base64.StdEncoding.EncodeToString(p.Payload),
	}
	if includeTime {
		entry.Time = utc.UTC().Format(time.RFC3339)
	}
	if p.Modulation == ModLoRa {
		entry.Codr = p.CodingRate
		snr := oneDecimalFloat(p.SNR)
		entry.Lsnr = &snr
	}
	out, _ := json.Marshal(entry)
	return out
}

// PushDataBody is the JSON body of a PUSH_DATA datagram.
type PushDataBody struct {
	Rxpk []json.RawMessage `json:"rxpk,omitempty"`
	Stat json.RawMessage   `json:"stat,omitempty"`
}

// EncodePushData renders the full PUSH_DATA body.
func EncodePushData(body PushDataBody) ([]byte, error) {
	return json.Marshal(body)
}
