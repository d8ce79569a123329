package protocol

import (
	"testing"
	"time"
)

func TestParsePullRespImmediateLoRa(t *testing.T) {
	body := []byte(`{"txpk":{"imme":true,"freq":869.525,"rfch":0,"powe":14,"modu":"LORA","datr":"SF9BW125","codr":"4/5","size":1,"data":"AQ=="}}`)

	pkt, err := ParsePullResp(body, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pkt.Mode != SendImmediate {
		t.Errorf("expected immediate mode, got %v", pkt.Mode)
	}
	if pkt.FreqHz != 869525000 {
		t.Errorf("freq = %d", pkt.FreqHz)
	}
	if pkt.DataRate.LoRaSF != 9 || pkt.Bandwidth != 125000 {
		t.Errorf("datr parse wrong: %+v bw=%d", pkt.DataRate, pkt.Bandwidth)
	}
	if pkt.CodingRate != "4/5" {
		t.Errorf("codr = %s", pkt.CodingRate)
	}
	if pkt.PreambleLen != StdLoRaPreamble {
		t.Errorf("expected default preamble %d, got %d", StdLoRaPreamble, pkt.PreambleLen)
	}
	if len(pkt.Payload) != 1 || pkt.Payload[0] != 0x01 {
		t.Errorf("payload mismatch: %v", pkt.Payload)
	}
}

func TestParsePullRespUTCWithoutTimeRefAborts(t *testing.T) {
	body := []byte(`{"txpk":{"time":"2020-01-01T00:00:00Z","freq":868.1,"rfch":0,"modu":"LORA","datr":"SF7BW125","codr":"4/5","size":1,"data":"AQ=="}}`)
	_, err := ParsePullResp(body, false, nil)
	if err == nil {
		t.Fatalf("expected error when TimeRef is invalid")
	}
}

func TestParsePullRespUTCWithTimeRefUsesConverter(t *testing.T) {
	body := []byte(`{"txpk":{"time":"2020-01-01T00:00:00Z","freq":868.1,"rfch":0,"modu":"LORA","datr":"SF7BW125","codr":"4/5","size":1,"data":"AQ=="}}`)
	called := false
	conv := func(t time.Time) uint32 {
		called = true
		return 42
	}
	pkt, err := ParsePullResp(body, true, conv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatalf("expected UTC-to-counter converter to be invoked")
	}
	if pkt.CountTimestamp != 42 {
		t.Errorf("expected converted counter 42, got %d", pkt.CountTimestamp)
	}
}

func TestParsePullRespPreambleClampedToMinimum(t *testing.T) {
	body := []byte(`{"txpk":{"imme":true,"freq":868.1,"rfch":0,"modu":"LORA","datr":"SF7BW125","codr":"4/5","prea":4,"size":1,"data":"AQ=="}}`)
	pkt, err := ParsePullResp(body, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pkt.PreambleLen != MinLoRaPreamble {
		t.Errorf("expected preamble clamped to %d, got %d", MinLoRaPreamble, pkt.PreambleLen)
	}
}

func TestParsePullRespFSK(t *testing.T) {
	body := []byte(`{"txpk":{"imme":true,"freq":868.1,"rfch":0,"modu":"FSK","datr":50000,"fdev":3000,"size":2,"data":"AQI="}}`)
	pkt, err := ParsePullResp(body, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pkt.DataRate.FSKBps != 50000 {
		t.Errorf("FSK bit rate = %d", pkt.DataRate.FSKBps)
	}
	if pkt.Bandwidth != 3 {
		t.Errorf("expected fdev 3000Hz -> 3kHz, got %d", pkt.Bandwidth)
	}
	if pkt.PreambleLen != StdFSKPreamble {
		t.Errorf("expected default FSK preamble %d, got %d", StdFSKPreamble, pkt.PreambleLen)
	}
}

func TestParsePullRespMissingMandatoryFieldFails(t *testing.T) {
	body := []byte(`{"txpk":{"imme":true,"rfch":0,"modu":"LORA","datr":"SF7BW125","codr":"4/5","size":1,"data":"AQ=="}}`)
	_, err := ParsePullResp(body, false, nil)
	if err == nil {
		t.Fatalf("expected error for missing freq")
	}
}

func TestParsePullRespDataLengthMismatchFails(t *testing.T) {
	body := []byte(`{"txpk":{"imme":true,"freq":868.1,"rfch":0,"modu":"LORA","datr":"SF7BW125","codr":"4/5","size":5,"data":"AQ=="}}`)
	_, err := ParsePullResp(body, false, nil)
	if err == nil {
		t.Fatalf("expected error when declared size does not match data length")
	}
}

func TestParsePullRespNoTimingFieldFails(t *testing.T) {
	body := []byte(`{"txpk":{"freq":868.1,"rfch":0,"modu":"LORA","datr":"SF7BW125","codr":"4/5","size":1,"data":"AQ=="}}`)
	_, err := ParsePullResp(body, false, nil)
	if err == nil {
		t.Fatalf("expected error when no imme/tmst/time given")
	}
}
