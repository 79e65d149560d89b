package audiomoth

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// MinutesPerDay is also the wire value of a period ending at midnight.
	MinutesPerDay = 1440

	// MaxTimePeriods is the number of period slots in every layout.
	MaxTimePeriods = 5

	// MaxGain is the highest gain step accepted by the firmware.
	MaxGain = 4

	maxDuration = 65535

	minTimeZoneOffset = -12 * 60
	maxTimeZoneOffset = 14 * 60
)

// TimePeriod is a daily recording window in minutes after midnight.
// EndMinutes of 0 means the window ends at midnight.
type TimePeriod struct {
	StartMinutes int `json:"startMins"`
	EndMinutes   int `json:"endMins"`
}

// End returns EndMinutes with the midnight sentinel expanded to 1440.
func (p TimePeriod) End() int {
	if p.EndMinutes == 0 {
		return MinutesPerDay
	}
	return p.EndMinutes
}

// Wraps reports whether the period crosses midnight.
func (p TimePeriod) Wraps() bool {
	return p.End() < p.StartMinutes
}

func (p TimePeriod) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", p.StartMinutes/60, p.StartMinutes%60, p.End()/60, p.End()%60)
}

// SortPeriods returns a copy of periods ordered by start time. Equal starts
// keep their input order.
func SortPeriods(periods []TimePeriod) []TimePeriod {
	out := append([]TimePeriod(nil), periods...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartMinutes < out[j].StartMinutes
	})
	return out
}

// SplitWrappingPeriods replaces each period that crosses midnight with the
// two periods either side of it, and returns the result sorted.
func SplitWrappingPeriods(periods []TimePeriod) []TimePeriod {
	out := make([]TimePeriod, 0, len(periods)+1)
	for _, p := range periods {
		if !p.Wraps() {
			out = append(out, p)
			continue
		}
		out = append(out, TimePeriod{StartMinutes: p.StartMinutes, EndMinutes: 0})
		if p.EndMinutes > 0 {
			out = append(out, TimePeriod{StartMinutes: 0, EndMinutes: p.EndMinutes})
		}
	}
	return SortPeriods(out)
}

// TimeZoneMode selects how recording times are offset from UTC.
type TimeZoneMode int

const (
	TimeZoneUTC TimeZoneMode = iota
	TimeZoneLocal
	TimeZoneCustom
)

func (m TimeZoneMode) String() string {
	switch m {
	case TimeZoneLocal:
		return "LOCAL"
	case TimeZoneCustom:
		return "CUSTOM"
	default:
		return "UTC"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m TimeZoneMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *TimeZoneMode) UnmarshalText(b []byte) error {
	switch strings.ToUpper(string(b)) {
	case "", "UTC":
		*m = TimeZoneUTC
	case "LOCAL":
		*m = TimeZoneLocal
	case "CUSTOM":
		*m = TimeZoneCustom
	default:
		return fmt.Errorf("unknown time zone mode %q", string(b))
	}
	return nil
}

// TimeZone is the offset applied to the schedule.
type TimeZone struct {
	Mode          TimeZoneMode `json:"mode"`
	OffsetMinutes int          `json:"offsetMinutes,omitempty"`
}

// OffsetAt returns the offset in minutes that applies at t.
func (tz TimeZone) OffsetAt(t time.Time) int {
	switch tz.Mode {
	case TimeZoneLocal:
		_, off := t.In(time.Local).Zone()
		return off / 60
	case TimeZoneCustom:
		return tz.OffsetMinutes
	default:
		return 0
	}
}

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the UTC calendar date of t.
func DateOf(t time.Time) Date {
	y, m, d := t.UTC().Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// IsZero reports whether d is the zero date.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Midnight returns the start of d in UTC.
func (d Date) Midnight() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	p, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = p
	return nil
}

// RecordingDate bounds the recording schedule when enabled.
type RecordingDate struct {
	Enabled bool `json:"enabled"`
	Date    Date `json:"date"`
}

// Settings is the user facing recorder configuration.
type Settings struct {
	SampleRateIndex int `json:"sampleRateIndex"`

	Gain1 int `json:"gain1"`
	Gain2 int `json:"gain2"`
	Gain3 int `json:"gain3"`

	RecordDurationGain1        int `json:"recordDurationGain1"`
	RecordDurationGain2        int `json:"recordDurationGain2"`
	RecordDurationGain3        int `json:"recordDurationGain3"`
	SleepDuration              int `json:"sleepDuration"`
	SleepDurationBetweenGains  int `json:"sleepDurationBetweenGains"`
	SleepDurationBetweenGains3 int `json:"sleepDurationBetweenGains3"`

	LEDEnabled               bool `json:"ledEnabled"`
	BatteryLevelCheckEnabled bool `json:"batteryLevelCheckEnabled"`
	DutyEnabled              bool `json:"dutyEnabled"`
	RequireAcousticConfig    bool `json:"requireAcousticConfig"`
	DailyFolders             bool `json:"dailyFolders"`
	DisplayVoltageRange      bool `json:"displayVoltageRange"`
	EnergySaverModeEnabled   bool `json:"energySaverModeEnabled"`
	Disable48DCFilter        bool `json:"disable48DCFilter"`
	LowGainRange             bool `json:"lowGainRange,omitempty"`

	TimePeriods        []TimePeriod  `json:"timePeriods"`
	FirstRecordingDate RecordingDate `json:"firstRecordingDate"`
	LastRecordingDate  RecordingDate `json:"lastRecordingDate"`
	TimeZone           TimeZone      `json:"timeZone"`
}

// Validate checks the ranges the packet layouts can carry.
func (s *Settings) Validate() error {
	if s.SampleRateIndex < 0 || s.SampleRateIndex >= len(Configurations) {
		return &IndexError{Index: s.SampleRateIndex, Length: len(Configurations)}
	}

	type field struct {
		name  string
		value int
	}

	for _, g := range []field{{"gain1", s.Gain1}, {"gain2", s.Gain2}, {"gain3", s.Gain3}} {
		if g.value < 0 || g.value > MaxGain {
			return &SettingsError{Field: g.name, Reason: fmt.Sprintf("must be between 0 and %d", MaxGain)}
		}
	}

	durations := []field{
		{"recordDurationGain1", s.RecordDurationGain1},
		{"recordDurationGain2", s.RecordDurationGain2},
		{"recordDurationGain3", s.RecordDurationGain3},
		{"sleepDuration", s.SleepDuration},
		{"sleepDurationBetweenGains", s.SleepDurationBetweenGains},
		{"sleepDurationBetweenGains3", s.SleepDurationBetweenGains3},
	}
	for _, d := range durations {
		if d.value < 0 || d.value > maxDuration {
			return &SettingsError{Field: d.name, Reason: fmt.Sprintf("must be between 0 and %d seconds", maxDuration)}
		}
	}

	if len(s.TimePeriods) > MaxTimePeriods {
		return &FormatError{Field: "timePeriods", Reason: fmt.Sprintf("%d periods, at most %d allowed", len(s.TimePeriods), MaxTimePeriods)}
	}
	if err := checkPeriods(s.TimePeriods); err != nil {
		return err
	}

	if s.TimeZone.Mode == TimeZoneCustom &&
		(s.TimeZone.OffsetMinutes < minTimeZoneOffset || s.TimeZone.OffsetMinutes > maxTimeZoneOffset) {
		return &SettingsError{Field: "timeZone", Reason: "custom offset must be between UTC-12:00 and UTC+14:00"}
	}

	if s.FirstRecordingDate.Enabled && s.FirstRecordingDate.Date.IsZero() {
		return &SettingsError{Field: "firstRecordingDate", Reason: "enabled without a date"}
	}
	if s.LastRecordingDate.Enabled && s.LastRecordingDate.Date.IsZero() {
		return &SettingsError{Field: "lastRecordingDate", Reason: "enabled without a date"}
	}
	if s.FirstRecordingDate.Enabled && s.LastRecordingDate.Enabled &&
		s.LastRecordingDate.Date.Midnight().Before(s.FirstRecordingDate.Date.Midnight()) {
		return &SettingsError{Field: "lastRecordingDate", Reason: "before first recording date"}
	}

	return nil
}

func checkPeriods(periods []TimePeriod) error {
	type span struct{ start, end int }
	var spans []span
	for i, p := range periods {
		if p.StartMinutes < 0 || p.StartMinutes >= MinutesPerDay || p.EndMinutes < 0 || p.EndMinutes >= MinutesPerDay {
			return &SettingsError{Field: fmt.Sprintf("timePeriods[%d]", i), Reason: "minutes must be in [0, 1440)"}
		}
		if p.StartMinutes == p.End() {
			return &SettingsError{Field: fmt.Sprintf("timePeriods[%d]", i), Reason: "empty period"}
		}
		if p.Wraps() {
			spans = append(spans, span{p.StartMinutes, MinutesPerDay}, span{0, p.End()})
		} else {
			spans = append(spans, span{p.StartMinutes, p.End()})
		}
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	for i := 1; i < len(spans); i++ {
		if spans[i].start < spans[i-1].end {
			return &SettingsError{Field: "timePeriods", Reason: "periods overlap"}
		}
	}
	return nil
}
