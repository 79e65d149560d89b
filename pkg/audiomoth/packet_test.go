package audiomoth

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"
	"time"
)

var sendTime = time.Date(2024, 3, 1, 12, 30, 15, 600*int(time.Millisecond), time.UTC)

func multiGainSettings() Settings {
	return Settings{
		SampleRateIndex:            3,
		Gain1:                      2,
		Gain2:                      1,
		Gain3:                      4,
		RecordDurationGain1:        55,
		RecordDurationGain2:        30,
		RecordDurationGain3:        300,
		SleepDuration:              5,
		SleepDurationBetweenGains:  2,
		SleepDurationBetweenGains3: 1,
		LEDEnabled:                 true,
		BatteryLevelCheckEnabled:   false,
		DutyEnabled:                true,
		RequireAcousticConfig:      true,
		DailyFolders:               true,
		DisplayVoltageRange:        false,
		EnergySaverModeEnabled:     true,
		Disable48DCFilter:          true,
		TimePeriods: []TimePeriod{
			{StartMinutes: 60, EndMinutes: 120},
			{StartMinutes: 600, EndMinutes: 0},
		},
		FirstRecordingDate: RecordingDate{Enabled: true, Date: Date{2024, time.March, 1}},
		LastRecordingDate:  RecordingDate{Enabled: true, Date: Date{2024, time.June, 30}},
		TimeZone:           TimeZone{Mode: TimeZoneCustom, OffsetMinutes: -90},
	}
}

func singleGainSettings() Settings {
	return Settings{
		SampleRateIndex:          6,
		Gain1:                    3,
		RecordDurationGain1:      120,
		SleepDuration:            60,
		LEDEnabled:               false,
		BatteryLevelCheckEnabled: true,
		DutyEnabled:              false,
		RequireAcousticConfig:    false,
		DailyFolders:             true,
		DisplayVoltageRange:      true,
		EnergySaverModeEnabled:   false,
		Disable48DCFilter:        true,
		LowGainRange:             true,
		TimePeriods: []TimePeriod{
			{StartMinutes: 0, EndMinutes: 240},
			{StartMinutes: 1200, EndMinutes: 1300},
		},
		TimeZone: TimeZone{Mode: TimeZoneCustom, OffsetMinutes: 330},
	}
}

func TestBuildPacketRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		fw       Firmware
		layout   LayoutID
		length   int
	}{
		{
			name:     "multi-gain",
			settings: multiGainSettings(),
			fw:       NewFirmware(Version{1, 0, 1}, "AudioMoth-MultiGain"),
			layout:   LayoutMultiGain,
			length:   60,
		},
		{
			name: "multi-gain legacy table",
			settings: func() Settings {
				s := multiGainSettings()
				s.SampleRateIndex = 1
				return s
			}(),
			fw:     NewFirmware(Version{1, 0, 1}, "AudioMoth-MultiGain"),
			layout: LayoutMultiGain,
			length: 60,
		},
		{
			name: "multi-gain wrapping period",
			settings: func() Settings {
				s := multiGainSettings()
				s.TimePeriods = []TimePeriod{{StartMinutes: 300, EndMinutes: 400}, {StartMinutes: 1320, EndMinutes: 120}}
				s.TimeZone = TimeZone{Mode: TimeZoneUTC}
				s.FirstRecordingDate = RecordingDate{}
				return s
			}(),
			fw:     NewFirmware(Version{1, 9, 0}, "AudioMoth-MultiGain"),
			layout: LayoutMultiGain,
			length: 60,
		},
		{
			name:     "single-gain",
			settings: singleGainSettings(),
			fw:       NewFirmware(Version{1, 8, 0}, "AudioMoth-Firmware-Basic"),
			layout:   LayoutSingleGain,
			length:   62,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			packet, err := BuildPacket(&tt.settings, tt.fw, sendTime)
			if err != nil {
				t.Fatalf("BuildPacket() error = %v", err)
			}
			if len(packet) != tt.length {
				t.Fatalf("len(packet) = %d, want %d", len(packet), tt.length)
			}
			if id := LayoutFor(tt.fw).ID(); id != tt.layout {
				t.Fatalf("LayoutFor() = %s, want %s", id, tt.layout)
			}

			record, err := ReadPacket(packet, tt.layout)
			if err != nil {
				t.Fatalf("ReadPacket() error = %v", err)
			}
			if !reflect.DeepEqual(record.Settings, tt.settings) {
				t.Errorf("round trip mismatch\n got: %+v\nwant: %+v", record.Settings, tt.settings)
			}
			if !record.LowVoltageCutoff {
				t.Errorf("LowVoltageCutoff = false, want true")
			}
			if got := record.Time(); !got.Equal(time.Date(2024, 3, 1, 12, 30, 16, 0, time.UTC)) {
				t.Errorf("Time() = %v, want rounded send time", got)
			}
		})
	}
}

func TestBuildPacketDoesNotMutateSettings(t *testing.T) {
	s := multiGainSettings()
	s.TimePeriods = []TimePeriod{{StartMinutes: 600, EndMinutes: 700}, {StartMinutes: 60, EndMinutes: 120}}
	before := append([]TimePeriod(nil), s.TimePeriods...)

	if _, err := BuildPacket(&s, NewFirmware(Version{1, 0, 1}, "AudioMoth-MultiGain"), sendTime); err != nil {
		t.Fatalf("BuildPacket() error = %v", err)
	}
	if !reflect.DeepEqual(s.TimePeriods, before) {
		t.Errorf("TimePeriods = %v, want %v", s.TimePeriods, before)
	}
}

func TestBuildPacketPeriodOrderAndSentinel(t *testing.T) {
	s := multiGainSettings()
	s.TimePeriods = []TimePeriod{{StartMinutes: 900, EndMinutes: 0}, {StartMinutes: 60, EndMinutes: 120}}

	packet, err := BuildPacket(&s, NewFirmware(Version{1, 0, 1}, "AudioMoth-MultiGain"), sendTime)
	if err != nil {
		t.Fatalf("BuildPacket() error = %v", err)
	}

	if packet[28] != 2 {
		t.Fatalf("period count = %d, want 2", packet[28])
	}
	wire := []uint16{
		binary.LittleEndian.Uint16(packet[29:]),
		binary.LittleEndian.Uint16(packet[31:]),
		binary.LittleEndian.Uint16(packet[33:]),
		binary.LittleEndian.Uint16(packet[35:]),
	}
	want := []uint16{60, 120, 900, 1440}
	if !reflect.DeepEqual(wire, want) {
		t.Errorf("wire periods = %v, want %v", wire, want)
	}
	for i := 37; i < 49; i++ {
		if packet[i] != 0 {
			t.Errorf("unused period byte %d = %d, want 0", i, packet[i])
		}
	}

	record, err := ReadPacket(packet, LayoutMultiGain)
	if err != nil {
		t.Fatalf("ReadPacket() error = %v", err)
	}
	wantPeriods := []TimePeriod{{StartMinutes: 60, EndMinutes: 120}, {StartMinutes: 900, EndMinutes: 0}}
	if !reflect.DeepEqual(record.Settings.TimePeriods, wantPeriods) {
		t.Errorf("decoded periods = %v, want %v", record.Settings.TimePeriods, wantPeriods)
	}
}

func TestBuildPacketSplitsWrappingPeriodsForOldFirmware(t *testing.T) {
	s := multiGainSettings()
	s.TimePeriods = []TimePeriod{{StartMinutes: 1320, EndMinutes: 120}}

	packet, err := BuildPacket(&s, NewFirmware(Version{1, 0, 1}, "AudioMoth-MultiGain"), sendTime)
	if err != nil {
		t.Fatalf("BuildPacket() error = %v", err)
	}
	record, err := ReadPacket(packet, LayoutMultiGain)
	if err != nil {
		t.Fatalf("ReadPacket() error = %v", err)
	}

	want := []TimePeriod{{StartMinutes: 0, EndMinutes: 120}, {StartMinutes: 1320, EndMinutes: 0}}
	if !reflect.DeepEqual(record.Settings.TimePeriods, want) {
		t.Errorf("periods = %v, want %v", record.Settings.TimePeriods, want)
	}
}

func TestBuildPacketTableSelection(t *testing.T) {
	tests := []struct {
		version  Version
		wantRate uint32
	}{
		{Version{1, 4, 4}, 128000},
		{Version{1, 5, 0}, 384000},
	}

	for _, tt := range tests {
		t.Run(tt.version.String(), func(t *testing.T) {
			s := multiGainSettings()
			s.SampleRateIndex = 0
			fw := NewFirmware(tt.version, "AudioMoth-MultiGain")

			packet, err := BuildPacket(&s, fw, sendTime)
			if err != nil {
				t.Fatalf("BuildPacket() error = %v", err)
			}
			if len(packet) != 60 {
				t.Errorf("len(packet) = %d, want 60", len(packet))
			}
			if got := binary.LittleEndian.Uint32(packet[10:]); got != tt.wantRate {
				t.Errorf("sample rate = %d, want %d", got, tt.wantRate)
			}
		})
	}
}

func TestBuildPacketTimeZoneBytes(t *testing.T) {
	tests := []struct {
		offset    int
		wantHours byte
		wantMins  byte
	}{
		{-90, 0xFF, 0xE2},
		{330, 5, 30},
		{-600, 0xF6, 0},
		{0, 0, 0},
	}

	for _, tt := range tests {
		s := multiGainSettings()
		s.TimeZone = TimeZone{Mode: TimeZoneCustom, OffsetMinutes: tt.offset}
		packet, err := BuildPacket(&s, NewFirmware(Version{1, 0, 1}, "AudioMoth-MultiGain"), sendTime)
		if err != nil {
			t.Fatalf("offset %d: BuildPacket() error = %v", tt.offset, err)
		}
		if packet[49] != tt.wantHours || packet[50] != tt.wantMins {
			t.Errorf("offset %d: bytes = %#x %#x, want %#x %#x", tt.offset, packet[49], packet[50], tt.wantHours, tt.wantMins)
		}
	}
}

func TestBuildPacketFlags(t *testing.T) {
	s := multiGainSettings()
	packet, err := BuildPacket(&s, NewFirmware(Version{1, 0, 1}, "AudioMoth-MultiGain"), sendTime)
	if err != nil {
		t.Fatalf("BuildPacket() error = %v", err)
	}
	// LED, cutoff, duty, energy saver, 48 Hz filter, daily folders
	if packet[27] != 0b10111011 {
		t.Errorf("flags byte = %08b, want 10111011", packet[27])
	}
	if packet[59] != 0b01 {
		t.Errorf("final byte = %08b, want 00000001", packet[59])
	}
}

func TestBuildPacketRejectsInvalidSettings(t *testing.T) {
	fw := NewFirmware(Version{1, 0, 1}, "AudioMoth-MultiGain")

	s := multiGainSettings()
	s.Gain1 = 5
	var se *SettingsError
	if _, err := BuildPacket(&s, fw, sendTime); !errors.As(err, &se) {
		t.Errorf("gain 5: error = %v, want *SettingsError", err)
	}

	s = multiGainSettings()
	s.TimePeriods = []TimePeriod{{0, 10}, {20, 30}, {40, 50}, {60, 70}, {80, 90}, {100, 110}}
	var fe *FormatError
	if _, err := BuildPacket(&s, fw, sendTime); !errors.As(err, &fe) {
		t.Errorf("six periods: error = %v, want *FormatError", err)
	}

	s = multiGainSettings()
	s.TimePeriods = []TimePeriod{{0, 100}, {1300, 120}, {200, 300}, {400, 500}, {600, 700}}
	if _, err := BuildPacket(&s, fw, sendTime); !errors.As(err, &se) {
		t.Errorf("overlap: error = %v, want *SettingsError", err)
	}

	s = multiGainSettings()
	s.TimePeriods = []TimePeriod{{1320, 60}, {200, 300}, {400, 500}, {600, 700}, {800, 900}}
	if _, err := BuildPacket(&s, fw, sendTime); !errors.As(err, &fe) {
		t.Errorf("split beyond five: error = %v, want *FormatError", err)
	}
}

func TestValidateReportsFirstInvalidField(t *testing.T) {
	s := multiGainSettings()
	s.Gain2 = 7
	s.Gain3 = -1
	s.RecordDurationGain3 = -5
	s.SleepDuration = -1

	for i := 0; i < 20; i++ {
		var se *SettingsError
		if err := s.Validate(); !errors.As(err, &se) || se.Field != "gain2" {
			t.Fatalf("Validate() error = %v, want gain2 reported first", err)
		}
	}

	s.Gain2, s.Gain3 = 0, 0
	var se *SettingsError
	if err := s.Validate(); !errors.As(err, &se) || se.Field != "recordDurationGain3" {
		t.Errorf("Validate() error = %v, want recordDurationGain3 reported first", err)
	}
}

func TestReadPacketErrors(t *testing.T) {
	if _, err := ReadPacket(make([]byte, 10), LayoutMultiGain); err == nil {
		t.Error("short packet: expected error")
	}

	packet := make([]byte, 60)
	packet[28] = 6
	var fe *FormatError
	if _, err := ReadPacket(packet, LayoutMultiGain); !errors.As(err, &fe) {
		t.Errorf("count 6: error = %v, want *FormatError", err)
	}

	if _, err := ReadPacket(packet, LayoutID("unknown")); err == nil {
		t.Error("unknown layout: expected error")
	}
}

func TestReadPacketNegativeTimeZone(t *testing.T) {
	packet := make([]byte, 62)
	packet[39] = 0xFD // -3 hours
	packet[42] = 0xE2 // -30 minutes

	record, err := ReadPacket(packet, LayoutSingleGain)
	if err != nil {
		t.Fatalf("ReadPacket() error = %v", err)
	}
	if record.TimeZoneHours != -3 || record.TimeZoneMinutes != -30 {
		t.Errorf("time zone = %d:%d, want -3:-30", record.TimeZoneHours, record.TimeZoneMinutes)
	}
	if record.Settings.TimeZone != (TimeZone{Mode: TimeZoneCustom, OffsetMinutes: -210}) {
		t.Errorf("TimeZone = %+v, want CUSTOM -210", record.Settings.TimeZone)
	}
}

func TestReadPacketSingleGainInvertedFlags(t *testing.T) {
	packet := make([]byte, 62)
	// battery display and sleep/record cycle are stored as "disable" bytes
	packet[41] = 1
	packet[43] = 0

	record, err := ReadPacket(packet, LayoutSingleGain)
	if err != nil {
		t.Fatalf("ReadPacket() error = %v", err)
	}
	if record.Settings.BatteryLevelCheckEnabled {
		t.Error("BatteryLevelCheckEnabled = true, want false")
	}
	if !record.Settings.DutyEnabled {
		t.Error("DutyEnabled = false, want true")
	}
	if flags := record.Flags(); !flags["dutyEnabled"] || flags["batteryLevelCheckEnabled"] {
		t.Errorf("Flags() = %v", flags)
	}
}

func TestVerificationLength(t *testing.T) {
	tests := []struct {
		name   string
		fw     Firmware
		sent   int
		echoed int
		want   int
	}{
		{"multi-gain at threshold", NewFirmware(Version{1, 1, 6}, "AudioMoth-MultiGain"), 60, 64, 60},
		{"multi-gain below threshold", NewFirmware(Version{1, 0, 1}, "AudioMoth-MultiGain"), 60, 64, 60},
		{"short echo", NewFirmware(Version{1, 0, 1}, "AudioMoth-MultiGain"), 60, 20, 19},
		{"single-gain", NewFirmware(Version{1, 8, 0}, "AudioMoth-Firmware-Basic"), 62, 64, 62},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerificationLength(tt.fw, tt.sent, tt.echoed); got != tt.want {
				t.Errorf("VerificationLength() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLayoutForDefaultsToNewest(t *testing.T) {
	fw := NewFirmware(Version{1, 0, 0}, "AudioMoth-Firmware-Basic")
	if id := LayoutFor(fw).ID(); id != LayoutSingleGain {
		t.Errorf("LayoutFor(basic 1.0.0) = %s, want %s", id, LayoutSingleGain)
	}
	fw = NewFirmware(Version{9, 0, 0}, "AudioMoth-MultiGain")
	if id := LayoutFor(fw).ID(); id != LayoutMultiGain {
		t.Errorf("LayoutFor(multi 9.0.0) = %s, want %s", id, LayoutMultiGain)
	}
}
