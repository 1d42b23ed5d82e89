package gateway

import (
	"testing"
	"time"

	"github.com/gateview/gateview/internal/model"
)

var parseNow = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func TestDecodeSampleFullDocument(t *testing.T) {
	raw := []byte(`{
		"signal": {
			"5g": {"sinr": 18, "rsrp": -98, "rsrq": "-11", "rssi": -85,
			       "bands": ["n41"], "gNBID": 310456, "cid": "12"},
			"4g": {"sinr": "9.5", "rsrp": -102, "rsrq": -13, "rssi": -80,
			       "bands": ["b66", "b2"], "eNBID": 99811, "cid": 201}
		},
		"device": {"connectionStatus": "REGISTERED", "deviceUptime": "86400"}
	}`)

	s, perr := decodeSample(raw, parseNow)
	if perr != nil {
		t.Fatalf("decodeSample: %v", perr)
	}
	if s.NRSINR == nil || *s.NRSINR != 18 {
		t.Fatalf("NRSINR = %v, want 18", s.NRSINR)
	}
	if s.NRRSRQ == nil || *s.NRRSRQ != -11 {
		t.Fatalf("quoted NRRSRQ = %v, want -11", s.NRRSRQ)
	}
	if s.NRBands == nil || *s.NRBands != "n41" {
		t.Fatalf("NRBands = %v, want n41", s.NRBands)
	}
	if s.NRGNBID == nil || *s.NRGNBID != 310456 {
		t.Fatalf("NRGNBID = %v, want 310456", s.NRGNBID)
	}
	if s.LTESINR == nil || *s.LTESINR != 9.5 {
		t.Fatalf("quoted LTESINR = %v, want 9.5", s.LTESINR)
	}
	if s.LTEBands == nil || *s.LTEBands != "b66,b2" {
		t.Fatalf("LTEBands = %v, want b66,b2", s.LTEBands)
	}
	if s.RegistrationStatus != "REGISTERED" {
		t.Fatalf("RegistrationStatus = %q", s.RegistrationStatus)
	}
	if s.DeviceUptime == nil || *s.DeviceUptime != 86400 {
		t.Fatalf("DeviceUptime = %v, want 86400", s.DeviceUptime)
	}
	if got := s.Mode(); got != model.ModeNSA {
		t.Fatalf("Mode = %s, want NSA", got)
	}
}

func TestDecodeSampleMissingRadios(t *testing.T) {
	raw := []byte(`{"signal": {"4g": {"sinr": 7, "rsrp": -104}}}`)
	s, perr := decodeSample(raw, parseNow)
	if perr != nil {
		t.Fatalf("decodeSample: %v", perr)
	}
	if s.HasNRSignal() {
		t.Fatal("HasNRSignal true with no 5g object")
	}
	if got := s.Mode(); got != model.ModeLTE {
		t.Fatalf("Mode = %s, want LTE", got)
	}
	// Registration falls back to the inferred mode.
	if s.RegistrationStatus != string(model.ModeLTE) {
		t.Fatalf("RegistrationStatus = %q, want LTE", s.RegistrationStatus)
	}
}

func TestDecodeSampleEmptyStringsAreAbsent(t *testing.T) {
	raw := []byte(`{"signal": {"5g": {"sinr": "", "rsrp": -100, "gNBID": ""}}}`)
	s, perr := decodeSample(raw, parseNow)
	if perr != nil {
		t.Fatalf("decodeSample: %v", perr)
	}
	if s.NRSINR != nil {
		t.Fatalf("empty-string sinr parsed to %v, want nil", *s.NRSINR)
	}
	if s.NRGNBID != nil {
		t.Fatalf("empty-string gNBID parsed to %v, want nil", *s.NRGNBID)
	}
	if s.NRRSRP == nil || *s.NRRSRP != -100 {
		t.Fatalf("NRRSRP = %v, want -100", s.NRRSRP)
	}
}

func TestDecodeSampleMalformed(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"signal": {"5g": {"sinr": "abc"}}}`,
	} {
		_, perr := decodeSample([]byte(raw), parseNow)
		if perr == nil {
			t.Fatalf("decodeSample(%q) succeeded, want parse error", raw)
		}
		if perr.Type != ErrParse {
			t.Fatalf("decodeSample(%q) type = %s, want parse_error", raw, perr.Type)
		}
	}
}

func TestDecodeSampleNoSignal(t *testing.T) {
	s, perr := decodeSample([]byte(`{}`), parseNow)
	if perr != nil {
		t.Fatalf("decodeSample: %v", perr)
	}
	if got := s.Mode(); got != model.ModeNoSignal {
		t.Fatalf("Mode = %s, want No Signal", got)
	}
	if s.Timestamp == "" || s.TimestampUnix == 0 {
		t.Fatal("timestamps not stamped")
	}
}
