package audiomoth

import (
	"fmt"
	"math"
	"time"
)

// WrappingPeriodThreshold is the first firmware that accepts periods
// crossing midnight.
var WrappingPeriodThreshold = Version{1, 9, 0}

const secondsPerDay = 86400

// Record is a decoded packet: the wire level fields plus the settings they
// reconstruct.
type Record struct {
	Layout    LayoutID `json:"layout"`
	Timestamp uint32   `json:"timestamp"`

	ClockDivider      uint8  `json:"clockDivider"`
	AcquisitionCycles uint8  `json:"acquisitionCycles"`
	OversampleRate    uint8  `json:"oversampleRate"`
	SampleRate        uint32 `json:"sampleRate"`
	SampleRateDivider uint8  `json:"sampleRateDivider"`
	LowVoltageCutoff  bool   `json:"lowVoltageCutoff"`

	TimeZoneHours   int `json:"timeZoneHours"`
	TimeZoneMinutes int `json:"timeZoneMinutes"`

	EarliestRecordingTime uint32 `json:"earliestRecordingTime"`
	LatestRecordingTime   uint32 `json:"latestRecordingTime"`

	Settings Settings `json:"settings"`
}

// Time returns the packet timestamp.
func (r *Record) Time() time.Time {
	return time.Unix(int64(r.Timestamp), 0).UTC()
}

// EffectiveSampleRate is the rate in Hz the recorder writes to file.
func (r *Record) EffectiveSampleRate() uint32 {
	if r.SampleRateDivider == 0 {
		return r.SampleRate
	}
	return r.SampleRate / uint32(r.SampleRateDivider)
}

// OffsetMinutes is the time zone offset carried by the packet.
func (r *Record) OffsetMinutes() int {
	return r.TimeZoneHours*60 + r.TimeZoneMinutes
}

// Flags returns every boolean of the record's layout by wire name.
func (r *Record) Flags() map[string]bool {
	fields := multiGainFlags
	if r.Layout == LayoutSingleGain {
		fields = singleGainFlags
	}
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		out[f.name] = *f.field(r)
	}
	return out
}

// BuildPacket encodes s for firmware fw. sendTime is the instant the packet
// is expected to reach the device and is written as its clock value.
func BuildPacket(s *Settings, fw Firmware, sendTime time.Time) ([]byte, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	version := fw.TrueVersion()
	cfg, err := ResolveSampleRateConfig(s.SampleRateIndex, version)
	if err != nil {
		return nil, err
	}

	var periods []TimePeriod
	if version.Older(WrappingPeriodThreshold) {
		periods = SplitWrappingPeriods(s.TimePeriods)
	} else {
		periods = SortPeriods(s.TimePeriods)
	}
	if len(periods) > MaxTimePeriods {
		return nil, &FormatError{Field: "activeStartStopPeriods", Reason: fmt.Sprintf("%d periods after splitting at midnight", len(periods))}
	}

	offset := s.TimeZone.OffsetAt(sendTime)
	layout := LayoutFor(fw)

	r := &Record{
		Layout:                layout.ID(),
		Timestamp:             packetTimestamp(sendTime),
		ClockDivider:          cfg.ClockDivider,
		AcquisitionCycles:     cfg.AcquisitionCycles,
		OversampleRate:        cfg.OversampleRate,
		SampleRate:            cfg.SampleRate,
		SampleRateDivider:     cfg.SampleRateDivider,
		LowVoltageCutoff:      true,
		TimeZoneHours:         offset / 60,
		TimeZoneMinutes:       offset % 60,
		EarliestRecordingTime: recordingBound(s.FirstRecordingDate, 0, offset),
		LatestRecordingTime:   recordingBound(s.LastRecordingDate, secondsPerDay, offset),
		Settings:              *s,
	}
	r.Settings.TimePeriods = periods

	return layout.encode(r), nil
}

// ReadPacket decodes b using the layout named by id. b is not modified.
func ReadPacket(b []byte, id LayoutID) (*Record, error) {
	layout, err := LayoutByID(id)
	if err != nil {
		return nil, err
	}
	r, err := layout.decode(b)
	if err != nil {
		return nil, err
	}
	r.reconstruct()
	return r, nil
}

// reconstruct fills the settings fields that are derived from wire values.
func (r *Record) reconstruct() {
	s := &r.Settings

	if idx, ok := sampleRateIndexFor(r.ClockDivider, r.AcquisitionCycles, r.OversampleRate, r.SampleRate, r.SampleRateDivider); ok {
		s.SampleRateIndex = idx
	} else {
		s.SampleRateIndex = NearestIndexForSampleRate(int(r.EffectiveSampleRate()))
	}

	offset := r.OffsetMinutes()
	if offset == 0 {
		s.TimeZone = TimeZone{Mode: TimeZoneUTC}
	} else {
		s.TimeZone = TimeZone{Mode: TimeZoneCustom, OffsetMinutes: offset}
	}

	if r.EarliestRecordingTime != 0 {
		t := time.Unix(int64(r.EarliestRecordingTime)+int64(offset)*60, 0)
		s.FirstRecordingDate = RecordingDate{Enabled: true, Date: DateOf(t)}
	}
	if r.LatestRecordingTime != 0 {
		t := time.Unix(int64(r.LatestRecordingTime)-secondsPerDay+int64(offset)*60, 0)
		s.LastRecordingDate = RecordingDate{Enabled: true, Date: DateOf(t)}
	}
}

func packetTimestamp(t time.Time) uint32 {
	return clampUint32(int64(math.Round(float64(t.UnixMilli()) / 1000)))
}

func recordingBound(d RecordingDate, extra int64, offset int) uint32 {
	if !d.Enabled {
		return 0
	}
	return clampUint32(d.Date.Midnight().Unix() + extra - int64(offset)*60)
}

func clampUint32(v int64) uint32 {
	if v < 0 {
		return 0
	}
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}
