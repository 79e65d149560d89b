package audiomoth

import "math"

// SampleRateConfig holds the acquisition parameters for one sample rate.
type SampleRateConfig struct {
	TrueSampleRate    float64 `json:"trueSampleRate"` // kHz
	ClockDivider      uint8   `json:"clockDivider"`
	AcquisitionCycles uint8   `json:"acquisitionCycles"`
	OversampleRate    uint8   `json:"oversampleRate"`
	SampleRate        uint32  `json:"sampleRate"`
	SampleRateDivider uint8   `json:"sampleRateDivider"`

	// Current draw estimates in mA.
	RecordCurrent            float64 `json:"recordCurrent,omitempty"`
	EnergySaverRecordCurrent float64 `json:"energySaverRecordCurrent,omitempty"`
	ListenCurrent            float64 `json:"listenCurrent,omitempty"`
	EnergySaverListenCurrent float64 `json:"energySaverListenCurrent,omitempty"`
}

// Configurations is the sample rate table for current firmware.
var Configurations = []SampleRateConfig{
	{8, 4, 16, 1, 384000, 48, 9.22, 5.92, 8.59, 5.41},
	{16, 4, 16, 1, 384000, 24, 9.83, 6.63, 8.72, 5.54},
	{32, 4, 16, 1, 384000, 12, 11.3, 8.04, 8.95, 5.78},
	{48, 4, 16, 1, 384000, 8, 12.3, 8.93, 9.14, 5.98},
	{96, 4, 16, 1, 384000, 4, 15.8, 15.8, 10.0, 10.0},
	{192, 4, 16, 1, 384000, 2, 24.1, 24.1, 11.5, 11.5},
	{250, 4, 16, 1, 250000, 1, 26.4, 26.4, 10.6, 10.6},
	{384, 4, 16, 1, 384000, 1, 38.5, 38.5, 12.7, 12.7},
}

// LegacyConfigurations replaces the first entries of Configurations for
// firmware older than LegacyConfigurationThreshold.
var LegacyConfigurations = []SampleRateConfig{
	{TrueSampleRate: 8, ClockDivider: 4, AcquisitionCycles: 16, OversampleRate: 1, SampleRate: 128000, SampleRateDivider: 16},
	{TrueSampleRate: 16, ClockDivider: 4, AcquisitionCycles: 16, OversampleRate: 1, SampleRate: 128000, SampleRateDivider: 8},
	{TrueSampleRate: 32, ClockDivider: 4, AcquisitionCycles: 16, OversampleRate: 1, SampleRate: 128000, SampleRateDivider: 4},
}

// LegacyConfigurationThreshold is the first firmware version using the
// current table for every index.
var LegacyConfigurationThreshold = Version{1, 4, 5}

// ResolveSampleRateConfig returns the table entry sent to firmware fw for index.
func ResolveSampleRateConfig(index int, fw Version) (SampleRateConfig, error) {
	if fw.Older(LegacyConfigurationThreshold) && index < len(LegacyConfigurations) {
		if index < 0 {
			return SampleRateConfig{}, &IndexError{Index: index, Length: len(LegacyConfigurations), Legacy: true}
		}
		return LegacyConfigurations[index], nil
	}
	if index < 0 || index >= len(Configurations) {
		return SampleRateConfig{}, &IndexError{Index: index, Length: len(Configurations)}
	}
	return Configurations[index], nil
}

// NearestIndexForSampleRate returns the index in Configurations whose true
// sample rate is closest to rateHz. Ties resolve to the lowest index.
func NearestIndexForSampleRate(rateHz int) int {
	best := 0
	bestDiff := math.Inf(1)
	for i, c := range Configurations {
		diff := math.Abs(c.TrueSampleRate - float64(rateHz)/1000)
		if diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best
}

// sampleRateIndexFor recovers the index whose acquisition parameters match
// a decoded packet. Current entries are checked before legacy ones.
func sampleRateIndexFor(clk, acq, ovs uint8, rate uint32, divider uint8) (int, bool) {
	match := func(c SampleRateConfig) bool {
		return c.ClockDivider == clk && c.AcquisitionCycles == acq && c.OversampleRate == ovs &&
			c.SampleRate == rate && c.SampleRateDivider == divider
	}
	for i, c := range Configurations {
		if match(c) {
			return i, true
		}
	}
	for i, c := range LegacyConfigurations {
		if match(c) {
			return i, true
		}
	}
	return 0, false
}
