// Package savefile reads and writes the .config files the desktop
// configurator exchanges with its users.
package savefile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/openacoustics/audiomoth-configurator/pkg/audiomoth"
)

// ErrLoadCancelled is returned when the missing policy cancels a load.
var ErrLoadCancelled = errors.New("configuration load cancelled")

// ConfigFileError reports a file that cannot be applied.
type ConfigFileError struct {
	Reason string
	Err    error
}

func (e *ConfigFileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration file: %s: %v", e.Reason, e.Err)
	}
	return "configuration file: " + e.Reason
}

func (e *ConfigFileError) Unwrap() error {
	return e.Err
}

// MissingPolicy decides how keys absent from a file are filled in.
type MissingPolicy int

const (
	KeepCurrent MissingPolicy = iota
	UseDefaults
	Cancel
)

func (p MissingPolicy) String() string {
	switch p {
	case UseDefaults:
		return "defaults"
	case Cancel:
		return "cancel"
	default:
		return "current"
	}
}

// ParseMissingPolicy parses "current", "defaults" or "cancel".
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch s {
	case "", "current":
		return KeepCurrent, nil
	case "defaults":
		return UseDefaults, nil
	case "cancel":
		return Cancel, nil
	}
	return KeepCurrent, fmt.Errorf("unknown missing policy %q", s)
}

// DefaultSampleRate is written for files with no sample rate.
const DefaultSampleRate = 48000

// DefaultSettings returns the settings a fresh configurator starts with.
func DefaultSettings() audiomoth.Settings {
	return audiomoth.Settings{
		SampleRateIndex:          audiomoth.NearestIndexForSampleRate(DefaultSampleRate),
		Gain1:                    2,
		RecordDurationGain1:      55,
		RecordDurationGain2:      55,
		RecordDurationGain3:      55,
		SleepDuration:            5,
		LEDEnabled:               true,
		BatteryLevelCheckEnabled: true,
		DutyEnabled:              true,
		TimeZone:                 audiomoth.TimeZone{Mode: audiomoth.TimeZoneUTC},
	}
}

// flag, number and text accept only scalars of their own YAML type, so
// "yes" or 1.5 are rejected instead of being coerced.
type (
	flag   bool
	number int
	text   string
)

func checkTag(n *yaml.Node, tag, want string) error {
	if n.Kind != yaml.ScalarNode || n.ShortTag() != tag {
		return fmt.Errorf("line %d: expected %s, found %q", n.Line, want, n.Value)
	}
	return nil
}

func (b *flag) UnmarshalYAML(n *yaml.Node) error {
	if err := checkTag(n, "!!bool", "true or false"); err != nil {
		return err
	}
	var v bool
	if err := n.Decode(&v); err != nil {
		return err
	}
	*b = flag(v)
	return nil
}

func (i *number) UnmarshalYAML(n *yaml.Node) error {
	if err := checkTag(n, "!!int", "an integer"); err != nil {
		return err
	}
	var v int
	if err := n.Decode(&v); err != nil {
		return err
	}
	*i = number(v)
	return nil
}

func (t *text) UnmarshalYAML(n *yaml.Node) error {
	if err := checkTag(n, "!!str", "a string"); err != nil {
		return err
	}
	*t = text(n.Value)
	return nil
}

type filePeriod struct {
	StartMins *number `yaml:"startMins"`
	EndMins   *number `yaml:"endMins"`
}

// file mirrors every key the configurator has ever written.
type file struct {
	TimePeriods               *[]filePeriod `yaml:"timePeriods"`
	LEDEnabled                *flag         `yaml:"ledEnabled"`
	LowVoltageCutoffEnabled   *flag         `yaml:"lowVoltageCutoffEnabled"`
	BatteryCheckEnabled       *flag         `yaml:"batteryCheckEnabled"`
	BatteryLevelCheckEnabled  *flag         `yaml:"batteryLevelCheckEnabled"`
	SampleRateIndex           *number       `yaml:"sampleRateIndex"`
	SampleRate                *number       `yaml:"sampleRate"`
	GainIndex                 *number       `yaml:"gainIndex"`
	Gain1                     *number       `yaml:"gain1"`
	Gain2                     *number       `yaml:"gain2"`
	Gain3                     *number       `yaml:"gain3"`
	RecDuration               *number       `yaml:"recDuration"`
	RecordDurationGain1       *number       `yaml:"recordDurationGain1"`
	RecordDurationGain2       *number       `yaml:"recordDurationGain2"`
	RecordDurationGain3       *number       `yaml:"recordDurationGain3"`
	SleepDuration             *number       `yaml:"sleepDuration"`
	SleepDurationBetweenGains *number       `yaml:"sleepDurationBetweenGains"`
	SleepDurationBetweenGain3 *number       `yaml:"sleepDurationBetweenGains3"`
	LocalTime                 *flag         `yaml:"localTime"`
	CustomTimeZoneOffset      *number       `yaml:"customTimeZoneOffset"`
	FirstRecordingDateEnabled *flag         `yaml:"firstRecordingDateEnabled"`
	FirstRecordingDate        *text         `yaml:"firstRecordingDate"`
	LastRecordingDateEnabled  *flag         `yaml:"lastRecordingDateEnabled"`
	LastRecordingDate         *text         `yaml:"lastRecordingDate"`
	DutyEnabled               *flag         `yaml:"dutyEnabled"`
	RequireAcousticConfig     *flag         `yaml:"requireAcousticConfig"`
	DailyFolders              *flag         `yaml:"dailyFolders"`
	DisplayVoltageRange       *flag         `yaml:"displayVoltageRange"`
	Version                   *text         `yaml:"version"`
	EnergySaverModeEnabled    *flag         `yaml:"energySaverModeEnabled"`
	Disable48DCFilter         *flag         `yaml:"disable48DCFilter"`
}

// missing lists the required keys absent from f.
func (f *file) missing() []string {
	var out []string
	check := func(name string, present bool) {
		if !present {
			out = append(out, name)
		}
	}
	check("timePeriods", f.TimePeriods != nil)
	check("ledEnabled", f.LEDEnabled != nil)
	check("batteryLevelCheckEnabled", f.BatteryLevelCheckEnabled != nil || f.BatteryCheckEnabled != nil)
	check("gain1", f.Gain1 != nil || f.GainIndex != nil)
	check("gain2", f.Gain2 != nil || f.GainIndex != nil)
	check("gain3", f.Gain3 != nil || f.GainIndex != nil)
	check("dutyEnabled", f.DutyEnabled != nil)
	check("sleepDuration", f.SleepDuration != nil)
	check("sleepDurationBetweenGains", f.SleepDurationBetweenGains != nil)
	check("sleepDurationBetweenGains3", f.SleepDurationBetweenGain3 != nil)
	check("recordDurationGain1", f.RecordDurationGain1 != nil || f.RecDuration != nil)
	check("recordDurationGain2", f.RecordDurationGain2 != nil)
	check("recordDurationGain3", f.RecordDurationGain3 != nil)
	check("dailyFolders", f.DailyFolders != nil)
	check("displayVoltageRange", f.DisplayVoltageRange != nil)
	check("energySaverModeEnabled", f.EnergySaverModeEnabled != nil)
	check("disable48DCFilter", f.Disable48DCFilter != nil)
	return out
}

// Loaded is the outcome of a successful Load.
type Loaded struct {
	Settings audiomoth.Settings `json:"settings"`
	// Version is the app version that wrote the file, 0.0.0 when absent.
	Version audiomoth.Version `json:"version"`
	Missing []string          `json:"missing,omitempty"`
}

// Load parses a configuration file. Keys absent from the file come from
// current or from DefaultSettings according to onMissing. Files written
// by a newer app than appVersion are refused. current is never modified.
func Load(data []byte, current audiomoth.Settings, appVersion audiomoth.Version, onMissing MissingPolicy) (*Loaded, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &ConfigFileError{Reason: "file format is incorrect", Err: err}
	}

	fileVersion := audiomoth.Version{}
	if f.Version != nil {
		v, err := audiomoth.ParseVersion(string(*f.Version))
		if err != nil {
			return nil, &ConfigFileError{Reason: "invalid version", Err: err}
		}
		fileVersion = v
	}
	if appVersion.Older(fileVersion) {
		return nil, &ConfigFileError{
			Reason: fmt.Sprintf("created by app version %s, newer than %s", fileVersion, appVersion),
		}
	}

	replacement := DefaultSettings()
	missing := f.missing()
	if len(missing) > 0 {
		switch onMissing {
		case Cancel:
			return nil, ErrLoadCancelled
		case KeepCurrent:
			replacement = current
		}
	}

	s, err := f.settings(replacement)
	if err != nil {
		return nil, err
	}

	ev := log.Info().Str("file_version", fileVersion.String())
	if len(missing) > 0 {
		ev = ev.Strs("missing", missing).Str("policy", onMissing.String())
	}
	ev.Msg("Loaded configuration file")

	return &Loaded{Settings: s, Version: fileVersion, Missing: missing}, nil
}

func (f *file) settings(r audiomoth.Settings) (audiomoth.Settings, error) {
	s := r
	s.TimePeriods = append([]audiomoth.TimePeriod(nil), r.TimePeriods...)

	if f.TimePeriods != nil {
		s.TimePeriods = nil
		for i, p := range *f.TimePeriods {
			if p.StartMins == nil || p.EndMins == nil {
				return s, &ConfigFileError{Reason: fmt.Sprintf("timePeriods[%d] requires startMins and endMins", i)}
			}
			s.TimePeriods = append(s.TimePeriods, audiomoth.TimePeriod{
				StartMinutes: int(*p.StartMins) % audiomoth.MinutesPerDay,
				EndMinutes:   int(*p.EndMins) % audiomoth.MinutesPerDay,
			})
		}
	}

	switch {
	case f.SampleRateIndex != nil:
		s.SampleRateIndex = int(*f.SampleRateIndex)
	case f.SampleRate != nil:
		s.SampleRateIndex = audiomoth.NearestIndexForSampleRate(int(*f.SampleRate))
	}

	setInt(&s.Gain1, f.GainIndex)
	setInt(&s.Gain2, f.GainIndex)
	setInt(&s.Gain3, f.GainIndex)
	setInt(&s.Gain1, f.Gain1)
	setInt(&s.Gain2, f.Gain2)
	setInt(&s.Gain3, f.Gain3)

	setInt(&s.RecordDurationGain1, f.RecDuration)
	setInt(&s.RecordDurationGain1, f.RecordDurationGain1)
	setInt(&s.RecordDurationGain2, f.RecordDurationGain2)
	setInt(&s.RecordDurationGain3, f.RecordDurationGain3)
	setInt(&s.SleepDuration, f.SleepDuration)
	setInt(&s.SleepDurationBetweenGains, f.SleepDurationBetweenGains)
	setInt(&s.SleepDurationBetweenGains3, f.SleepDurationBetweenGain3)

	setBool(&s.LEDEnabled, f.LEDEnabled)
	setBool(&s.BatteryLevelCheckEnabled, f.BatteryCheckEnabled)
	setBool(&s.BatteryLevelCheckEnabled, f.BatteryLevelCheckEnabled)
	setBool(&s.DutyEnabled, f.DutyEnabled)
	setBool(&s.RequireAcousticConfig, f.RequireAcousticConfig)
	setBool(&s.DailyFolders, f.DailyFolders)
	setBool(&s.DisplayVoltageRange, f.DisplayVoltageRange)
	setBool(&s.EnergySaverModeEnabled, f.EnergySaverModeEnabled)
	setBool(&s.Disable48DCFilter, f.Disable48DCFilter)

	switch {
	case f.CustomTimeZoneOffset != nil:
		s.TimeZone = audiomoth.TimeZone{Mode: audiomoth.TimeZoneCustom, OffsetMinutes: int(*f.CustomTimeZoneOffset)}
	case f.LocalTime != nil && bool(*f.LocalTime):
		s.TimeZone = audiomoth.TimeZone{Mode: audiomoth.TimeZoneLocal}
	case f.LocalTime != nil:
		s.TimeZone = audiomoth.TimeZone{Mode: audiomoth.TimeZoneUTC}
	}

	var err error
	if s.FirstRecordingDate, err = recordingDate("firstRecordingDate", r.FirstRecordingDate, f.FirstRecordingDateEnabled, f.FirstRecordingDate); err != nil {
		return s, err
	}
	if s.LastRecordingDate, err = recordingDate("lastRecordingDate", r.LastRecordingDate, f.LastRecordingDateEnabled, f.LastRecordingDate); err != nil {
		return s, err
	}

	if err := s.Validate(); err != nil {
		return s, &ConfigFileError{Reason: "settings out of range", Err: err}
	}
	return s, nil
}

// recordingDate resolves a date bound. Older files mark a bound enabled
// just by including its date.
func recordingDate(name string, r audiomoth.RecordingDate, enabled *flag, date *text) (audiomoth.RecordingDate, error) {
	out := r
	if date != nil {
		d, err := audiomoth.ParseDate(string(*date))
		if err != nil {
			return out, &ConfigFileError{Reason: "invalid " + name, Err: err}
		}
		out.Date = d
	}
	switch {
	case enabled != nil:
		out.Enabled = bool(*enabled)
	default:
		out.Enabled = date != nil
	}
	return out, nil
}

func setInt(dst *int, v *number) {
	if v != nil {
		*dst = int(*v)
	}
}

func setBool(dst *bool, v *flag) {
	if v != nil {
		*dst = bool(*v)
	}
}

// Save writes s in the configurator's file format, tagged with appVersion.
func Save(w io.Writer, s *audiomoth.Settings, appVersion audiomoth.Version) error {
	if err := s.Validate(); err != nil {
		return err
	}
	cfg, err := audiomoth.ResolveSampleRateConfig(s.SampleRateIndex, audiomoth.LatestFirmwareVersion)
	if err != nil {
		return err
	}

	periods := make([]string, 0, len(s.TimePeriods))
	for _, p := range audiomoth.SortPeriods(s.TimePeriods) {
		periods = append(periods, fmt.Sprintf(`{"startMins": %d, "endMins": %d}`, p.StartMinutes, p.End()))
	}

	bw := bufio.NewWriter(w)
	line := func(key, value string) {
		fmt.Fprintf(bw, "%q: %s,\r\n", key, value)
	}
	boolean := strconv.FormatBool
	integer := strconv.Itoa

	bw.WriteString("{\r\n")
	line("timePeriods", "["+strings.Join(periods, ", ")+"]")
	line("ledEnabled", boolean(s.LEDEnabled))
	line("lowVoltageCutoffEnabled", "true")
	line("batteryLevelCheckEnabled", boolean(s.BatteryLevelCheckEnabled))
	line("sampleRate", strconv.FormatFloat(cfg.TrueSampleRate*1000, 'f', -1, 64))
	line("gain1", integer(s.Gain1))
	line("gain2", integer(s.Gain2))
	line("gain3", integer(s.Gain3))
	line("recordDurationGain1", integer(s.RecordDurationGain1))
	line("recordDurationGain2", integer(s.RecordDurationGain2))
	line("recordDurationGain3", integer(s.RecordDurationGain3))
	line("sleepDuration", integer(s.SleepDuration))
	line("sleepDurationBetweenGains", integer(s.SleepDurationBetweenGains))
	line("sleepDurationBetweenGains3", integer(s.SleepDurationBetweenGains3))
	if s.TimeZone.Mode == audiomoth.TimeZoneCustom {
		line("customTimeZoneOffset", integer(s.TimeZone.OffsetMinutes))
	}
	line("localTime", boolean(s.TimeZone.Mode == audiomoth.TimeZoneLocal))
	line("firstRecordingDateEnabled", boolean(s.FirstRecordingDate.Enabled))
	line("lastRecordingDateEnabled", boolean(s.LastRecordingDate.Enabled))
	if s.FirstRecordingDate.Enabled {
		line("firstRecordingDate", strconv.Quote(s.FirstRecordingDate.Date.String()))
	}
	if s.LastRecordingDate.Enabled {
		line("lastRecordingDate", strconv.Quote(s.LastRecordingDate.Date.String()))
	}
	line("dutyEnabled", boolean(s.DutyEnabled))
	line("requireAcousticConfig", boolean(s.RequireAcousticConfig))
	line("dailyFolders", boolean(s.DailyFolders))
	line("displayVoltageRange", boolean(s.DisplayVoltageRange))
	line("version", strconv.Quote(appVersion.String()))
	line("energySaverModeEnabled", boolean(s.EnergySaverModeEnabled))
	line("disable48DCFilter", boolean(s.Disable48DCFilter))
	bw.WriteString("}")

	return bw.Flush()
}
