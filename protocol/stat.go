package protocol

import (
	"encoding/json"
	"time"
)

// StatusReport is the snapshot C9 builds once per stat_interval and
// hands to C6 for inclusion in the next PUSH_DATA body.
type StatusReport struct {
	Time time.Time

	HasPosition bool
	Latitude    float64
	Longitude   float64
	Altitude    float64

	RxNb       uint32 // packets received
	RxOk       uint32 // packets received with valid CRC
	RxFW       uint32 // packets forwarded
	AckR       float64 // upstream ack ratio, percent
	DwNb       uint32 // datagrams received downstream
	TxNb       uint32 // packets transmitted

	Platform    string
	Email       string
	Description string
}

type statJSON struct {
	Time string  `json:"time"`
	Lati float64 `json:"lati,omitempty"`
	Long float64 `json:"long,omitempty"`
	Alti float64 `json:"alti,omitempty"`
	RxNb uint32  `json:"rxnb"`
	RxOk uint32  `json:"rxok"`
	RxFW uint32  `json:"rxfw"`
	AckR float64 `json:"ackr"`
	DwNb uint32  `json:"dwnb"`
	TxNb uint32  `json:"txnb"`
	Pfrm string  `json:"pfrm,omitempty"`
	Mail string  `json:"mail,omitempty"`
	Desc string  `json:"desc,omitempty"`
}

// EncodeStat renders a StatusReport as the "stat" JSON object.
func EncodeStat(r StatusReport) json.RawMessage {
	s := statJSON{
		Time: r.Time.UTC().Format("2006-01-02 15:04:05 GMT"),
		RxNb: r.RxNb,
		RxOk: r.RxOk,
		RxFW: r.RxFW,
		AckR: r.AckR,
		DwNb: r.DwNb,
		TxNb: r.TxNb,
		Pfrm: r.Platform,
		Mail: r.Email,
		Desc: r.Description,
	}
	if r.HasPosition {
		s.Lati = r.Latitude
		s.Long = r.Longitude
		s.Alti = r.Altitude
	}
	out, _ := json.Marshal(s)
	return out
}
