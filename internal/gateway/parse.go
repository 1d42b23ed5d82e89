package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gateview/gateview/internal/model"
)

// The gateway reports numbers inconsistently: sometimes JSON numbers,
// sometimes quoted strings, occasionally empty strings. flexFloat and
// flexInt accept all three; an empty or null value parses as absent.

type flexFloat struct {
	val float64
	ok  bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid numeric value %q", s)
	}
	f.val, f.ok = v, true
	return nil
}

func (f *flexFloat) ptr() *float64 {
	if f == nil || !f.ok {
		return nil
	}
	v := f.val
	return &v
}

type flexInt struct {
	val int64
	ok  bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some firmware revisions report uptime with a decimal part.
		fv, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return fmt.Errorf("invalid integer value %q", s)
		}
		v = int64(fv)
	}
	f.val, f.ok = v, true
	return nil
}

func (f *flexInt) ptr() *int64 {
	if f == nil || !f.ok {
		return nil
	}
	v := f.val
	return &v
}

// Wire format of GET /TMI/v1/gateway?get=all.
type wireDoc struct {
	Signal *wireSignal `json:"signal"`
	Device *wireDevice `json:"device"`
}

type wireSignal struct {
	NR  *wireRadio `json:"5g"`
	LTE *wireRadio `json:"4g"`
}

type wireRadio struct {
	SINR  *flexFloat `json:"sinr"`
	RSRP  *flexFloat `json:"rsrp"`
	RSRQ  *flexFloat `json:"rsrq"`
	RSSI  *flexFloat `json:"rssi"`
	Bands []string   `json:"bands"`
	GNBID *flexInt   `json:"gNBID"`
	ENBID *flexInt   `json:"eNBID"`
	CID   *flexInt   `json:"cid"`
}

type wireDevice struct {
	ConnectionStatus string   `json:"connectionStatus"`
	DeviceUptime     *flexInt `json:"deviceUptime"`
}

// decodeSample parses the raw gateway document into a SignalSample stamped
// at now. A malformed document yields a parse_error PollError.
func decodeSample(raw []byte, now time.Time) (*model.SignalSample, *PollError) {
	var doc wireDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &PollError{Type: ErrParse, Err: fmt.Errorf("decode gateway document: %w", err)}
	}

	ts, tsUnix := model.Timestamps(now)
	s := &model.SignalSample{Timestamp: ts, TimestampUnix: tsUnix}

	if doc.Signal != nil {
		if nr := doc.Signal.NR; nr != nil {
			s.NRSINR = nr.SINR.ptr()
			s.NRRSRP = nr.RSRP.ptr()
			s.NRRSRQ = nr.RSRQ.ptr()
			s.NRRSSI = nr.RSSI.ptr()
			s.NRBands = joinBands(nr.Bands)
			s.NRGNBID = nr.GNBID.ptr()
			s.NRCID = nr.CID.ptr()
		}
		if lte := doc.Signal.LTE; lte != nil {
			s.LTESINR = lte.SINR.ptr()
			s.LTERSRP = lte.RSRP.ptr()
			s.LTERSRQ = lte.RSRQ.ptr()
			s.LTERSSI = lte.RSSI.ptr()
			s.LTEBands = joinBands(lte.Bands)
			s.LTEENBID = lte.ENBID.ptr()
			s.LTECID = lte.CID.ptr()
		}
	}
	if doc.Device != nil {
		s.RegistrationStatus = doc.Device.ConnectionStatus
		s.DeviceUptime = doc.Device.DeviceUptime.ptr()
	}
	if s.RegistrationStatus == "" {
		s.RegistrationStatus = string(s.Mode())
	}
	return s, nil
}

func joinBands(bands []string) *string {
	if len(bands) == 0 {
		return nil
	}
	joined := strings.Join(bands, ",")
	return &joined
}
