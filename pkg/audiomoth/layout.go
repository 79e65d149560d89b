package audiomoth

import (
	"encoding/binary"
	"fmt"
	"strings"
)

var le = binary.LittleEndian

// LayoutID names a packet layout.
type LayoutID string

const (
	LayoutMultiGain  LayoutID = "multi-gain"
	LayoutSingleGain LayoutID = "single-gain"
)

// ParseLayoutID accepts a layout name, case-insensitively.
func ParseLayoutID(s string) (LayoutID, error) {
	switch LayoutID(strings.ToLower(strings.TrimSpace(s))) {
	case LayoutMultiGain, "multigain":
		return LayoutMultiGain, nil
	case LayoutSingleGain, "singlegain", "basic":
		return LayoutSingleGain, nil
	}
	return "", &ParseError{Input: s, Reason: "unknown packet layout"}
}

// Layout is one versioned packet format.
type Layout interface {
	ID() LayoutID
	Len() int
	Family() Family
	encode(r *Record) []byte
	decode(b []byte) (*Record, error)
}

// LayoutThreshold selects Layout for firmware not older than Firmware.
type LayoutThreshold struct {
	Firmware Version
	Layout   Layout
}

var layouts = map[LayoutID]Layout{
	LayoutMultiGain:  multiGainLayout{},
	LayoutSingleGain: singleGainLayout{},
}

// Thresholds are ordered by ascending firmware version. The last entry of a
// family is its newest layout.
var layoutThresholds = map[Family][]LayoutThreshold{
	FamilyMultiGain:  {{Firmware: Version{1, 1, 6}, Layout: multiGainLayout{}}},
	FamilySingleGain: {{Firmware: Version{1, 6, 0}, Layout: singleGainLayout{}}},
}

// LayoutByID returns a known layout.
func LayoutByID(id LayoutID) (Layout, error) {
	l, ok := layouts[id]
	if !ok {
		return nil, fmt.Errorf("unknown packet layout %q", id)
	}
	return l, nil
}

// LayoutFor resolves the layout used for fw. Versions below every threshold
// use the newest layout of the family.
func LayoutFor(fw Firmware) Layout {
	thresholds := layoutThresholds[fw.Family()]
	if len(thresholds) == 0 {
		thresholds = layoutThresholds[FamilyMultiGain]
	}
	version := fw.TrueVersion()
	var chosen Layout
	for _, t := range thresholds {
		if !version.Older(t.Firmware) {
			chosen = t.Layout
		}
	}
	if chosen == nil {
		chosen = thresholds[len(thresholds)-1].Layout
	}
	return chosen
}

// VerificationLength returns how many packet bytes are compared against the
// device echo. The echo carries a one byte header.
func VerificationLength(fw Firmware, sentLen, echoedLen int) int {
	n := sentLen
	if echoedLen-1 < n {
		n = echoedLen - 1
	}
	version := fw.TrueVersion()
	for _, t := range layoutThresholds[fw.Family()] {
		if !version.Older(t.Firmware) {
			n = t.Layout.Len()
		}
	}
	if n < 0 {
		n = 0
	}
	return n
}

func putPeriods(buf []byte, off int, periods []TimePeriod) {
	buf[off] = byte(len(periods))
	for i, p := range periods {
		le.PutUint16(buf[off+1+4*i:], uint16(p.StartMinutes))
		le.PutUint16(buf[off+3+4*i:], uint16(p.End()))
	}
}

func getPeriods(buf []byte, off int) ([]TimePeriod, error) {
	count := int(buf[off])
	if count > MaxTimePeriods {
		return nil, &FormatError{Field: "activeStartStopPeriods", Reason: fmt.Sprintf("count %d exceeds %d", count, MaxTimePeriods)}
	}
	if count == 0 {
		return nil, nil
	}
	periods := make([]TimePeriod, count)
	for i := range periods {
		start := int(le.Uint16(buf[off+1+4*i:]))
		end := int(le.Uint16(buf[off+3+4*i:]))
		if start > MinutesPerDay || end > MinutesPerDay {
			return nil, &FormatError{Field: fmt.Sprintf("period %d", i), Reason: "minutes beyond end of day"}
		}
		periods[i] = TimePeriod{StartMinutes: start % MinutesPerDay, EndMinutes: end % MinutesPerDay}
	}
	return periods, nil
}

func checkLength(b []byte, l Layout) error {
	if len(b) < l.Len() {
		return &FormatError{Field: "length", Reason: fmt.Sprintf("%d bytes, %s layout needs %d", len(b), l.ID(), l.Len())}
	}
	return nil
}

// multiGainLayout is the 60 byte packet of the multi-gain firmware.
type multiGainLayout struct{}

func (multiGainLayout) ID() LayoutID   { return LayoutMultiGain }
func (multiGainLayout) Len() int       { return 60 }
func (multiGainLayout) Family() Family { return FamilyMultiGain }

func (l multiGainLayout) encode(r *Record) []byte {
	s := &r.Settings
	buf := make([]byte, l.Len())
	le.PutUint32(buf[0:], r.Timestamp)
	buf[4] = byte(s.Gain1)
	buf[5] = byte(s.Gain2)
	buf[6] = byte(s.Gain3)
	buf[7] = r.ClockDivider
	buf[8] = r.AcquisitionCycles
	buf[9] = r.OversampleRate
	le.PutUint32(buf[10:], r.SampleRate)
	buf[14] = r.SampleRateDivider
	le.PutUint16(buf[15:], uint16(s.SleepDuration))
	le.PutUint16(buf[17:], uint16(s.SleepDurationBetweenGains))
	le.PutUint16(buf[19:], uint16(s.SleepDurationBetweenGains3))
	le.PutUint16(buf[21:], uint16(s.RecordDurationGain1))
	le.PutUint16(buf[23:], uint16(s.RecordDurationGain2))
	le.PutUint16(buf[25:], uint16(s.RecordDurationGain3))
	putPeriods(buf, 28, s.TimePeriods)
	buf[49] = byte(int8(r.TimeZoneHours))
	buf[50] = byte(int8(r.TimeZoneMinutes))
	le.PutUint32(buf[51:], r.EarliestRecordingTime)
	le.PutUint32(buf[55:], r.LatestRecordingTime)
	putFlags(buf, multiGainFlags, r)
	return buf
}

func (l multiGainLayout) decode(b []byte) (*Record, error) {
	if err := checkLength(b, l); err != nil {
		return nil, err
	}
	r := &Record{Layout: l.ID()}
	s := &r.Settings
	r.Timestamp = le.Uint32(b[0:])
	s.Gain1 = int(b[4])
	s.Gain2 = int(b[5])
	s.Gain3 = int(b[6])
	r.ClockDivider = b[7]
	r.AcquisitionCycles = b[8]
	r.OversampleRate = b[9]
	r.SampleRate = le.Uint32(b[10:])
	r.SampleRateDivider = b[14]
	s.SleepDuration = int(le.Uint16(b[15:]))
	s.SleepDurationBetweenGains = int(le.Uint16(b[17:]))
	s.SleepDurationBetweenGains3 = int(le.Uint16(b[19:]))
	s.RecordDurationGain1 = int(le.Uint16(b[21:]))
	s.RecordDurationGain2 = int(le.Uint16(b[23:]))
	s.RecordDurationGain3 = int(le.Uint16(b[25:]))
	periods, err := getPeriods(b, 28)
	if err != nil {
		return nil, err
	}
	s.TimePeriods = periods
	r.TimeZoneHours = int(int8(b[49]))
	r.TimeZoneMinutes = int(int8(b[50]))
	r.EarliestRecordingTime = le.Uint32(b[51:])
	r.LatestRecordingTime = le.Uint32(b[55:])
	getFlags(b, multiGainFlags, r)
	return r, nil
}

// singleGainLayout is the 62 byte packet of the standard firmware.
type singleGainLayout struct{}

func (singleGainLayout) ID() LayoutID   { return LayoutSingleGain }
func (singleGainLayout) Len() int       { return 62 }
func (singleGainLayout) Family() Family { return FamilySingleGain }

func (l singleGainLayout) encode(r *Record) []byte {
	s := &r.Settings
	buf := make([]byte, l.Len())
	le.PutUint32(buf[0:], r.Timestamp)
	buf[4] = byte(s.Gain1)
	buf[5] = r.ClockDivider
	buf[6] = r.AcquisitionCycles
	buf[7] = r.OversampleRate
	le.PutUint32(buf[8:], r.SampleRate)
	buf[12] = r.SampleRateDivider
	le.PutUint16(buf[13:], uint16(s.SleepDuration))
	le.PutUint16(buf[15:], uint16(s.RecordDurationGain1))
	putPeriods(buf, 18, s.TimePeriods)
	buf[39] = byte(int8(r.TimeZoneHours))
	buf[42] = byte(int8(r.TimeZoneMinutes))
	le.PutUint32(buf[44:], r.EarliestRecordingTime)
	le.PutUint32(buf[48:], r.LatestRecordingTime)
	putFlags(buf, singleGainFlags, r)
	return buf
}

func (l singleGainLayout) decode(b []byte) (*Record, error) {
	if err := checkLength(b, l); err != nil {
		return nil, err
	}
	r := &Record{Layout: l.ID()}
	s := &r.Settings
	r.Timestamp = le.Uint32(b[0:])
	s.Gain1 = int(b[4])
	r.ClockDivider = b[5]
	r.AcquisitionCycles = b[6]
	r.OversampleRate = b[7]
	r.SampleRate = le.Uint32(b[8:])
	r.SampleRateDivider = b[12]
	s.SleepDuration = int(le.Uint16(b[13:]))
	s.RecordDurationGain1 = int(le.Uint16(b[15:]))
	periods, err := getPeriods(b, 18)
	if err != nil {
		return nil, err
	}
	s.TimePeriods = periods
	r.TimeZoneHours = int(int8(b[39]))
	r.TimeZoneMinutes = int(int8(b[42]))
	r.EarliestRecordingTime = le.Uint32(b[44:])
	r.LatestRecordingTime = le.Uint32(b[48:])
	getFlags(b, singleGainFlags, r)
	return r, nil
}
