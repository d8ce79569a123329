package protocol

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"
)

func TestEncodeRxpkHappyPathLoRa(t *testing.T) {
	pkt := ReceivedPacket{
		CountTimestamp: 123456,
		IFChain:        0,
		RFChain:        0,
		FreqHz:         868100000,
		CRCStatus:      CRCOK,
		Modulation:     ModLoRa,
		Bandwidth:      125000,
		DataRate:       DataRate{LoRaSF: 7},
		CodingRate:     "4/5",
		RSSI:           -80,
		SNR:            9.0,
		Size:           8,
		Payload:        []byte{1, 2, 3, 4, 5, 6, 7, 8},
	}

	raw := EncodeRxpk(pkt, time.Time{}, false)

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("invalid JSON produced: %v", err)
	}

	if decoded["tmst"].(float64) != 123456 {
		t.Errorf("tmst = %v", decoded["tmst"])
	}
	if decoded["chan"].(float64) != 0 {
		t.Errorf("chan = %v", decoded["chan"])
	}
	if decoded["rfch"].(float64) != 0 {
		t.Errorf("rfch = %v", decoded["rfch"])
	}
	if decoded["stat"].(float64) != 1 {
		t.Errorf("stat = %v", decoded["stat"])
	}
	if decoded["modu"].(string) != "LORA" {
		t.Errorf("modu = %v", decoded["modu"])
	}
	if decoded["datr"].(string) != "SF7BW125" {
		t.Errorf("datr = %v", decoded["datr"])
	}
	if decoded["codr"].(string) != "4/5" {
		t.Errorf("codr = %v", decoded["codr"])
	}
	if decoded["lsnr"].(float64) != 9.0 {
		t.Errorf("lsnr = %v", decoded["lsnr"])
	}
	if decoded["rssi"].(float64) != -80 {
		t.Errorf("rssi = %v", decoded["rssi"])
	}
	if decoded["size"].(float64) != 8 {
		t.Errorf("size = %v", decoded["size"])
	}
	if _, hasTime := decoded["time"]; hasTime {
		t.Errorf("time field should be absent when includeTime is false")
	}

	gotData, err := base64.StdEncoding.DecodeString(decoded["data"].(string))
	if err != nil {
		t.Fatalf("data is not valid base64: %v", err)
	}
	if string(gotData) != string(pkt.Payload) {
		t.Errorf("data mismatch: got %v want %v", gotData, pkt.Payload)
	}

	// Golden freq string: exactly 6 decimal places.
	if !containsFreqString(raw, "868.100000") {
		t.Errorf("expected freq formatted to 6 decimals in %s", raw)
	}
}

func TestEncodeRxpkFSKOmitsLoRaOnlyFields(t *testing.T) {
	pkt := ReceivedPacket{
		Modulation: ModFSK,
		DataRate:   DataRate{FSKBps: 50000},
		Size:       4,
		Payload:    []byte{1, 2, 3, 4},
	}
	raw := EncodeRxpk(pkt, time.Time{}, false)
	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, has := decoded["lsnr"]; has {
		t.Errorf("lsnr must be absent for FSK")
	}
	if _, has := decoded["codr"]; has {
		t.Errorf("codr must be absent for FSK")
	}
	if decoded["datr"].(float64) != 50000 {
		t.Errorf("FSK datr should be bare integer, got %v", decoded["datr"])
	}
}

func TestEncodeRxpkIncludesTimeWhenRequested(t *testing.T) {
	utc := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	pkt := ReceivedPacket{Modulation: ModLoRa, DataRate: DataRate{LoRaSF: 7}, Bandwidth: 125000, Payload: []byte{1}}
	raw := EncodeRxpk(pkt, utc, true)
	var decoded map[string]interface{}
	json.Unmarshal(raw, &decoded)
	if decoded["time"] == nil {
		t.Fatalf("expected time field to be present")
	}
}

func containsFreqString(raw []byte, want string) bool {
	return string(raw) != "" && jsonContains(raw, want)
}

func jsonContains(raw []byte, want string) bool {
	for i := 0; i+len(want) <= len(raw); i++ {
		if string(raw[i:i+len(want)]) == want {
			return true
		}
	}
	return false
}
