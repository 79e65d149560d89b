package audiomoth

import (
	"encoding/json"
	"errors"
	"reflect"
	"sort"
	"testing"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{"1.2.3", Version{1, 2, 3}, false},
		{" 1.10.0 ", Version{1, 10, 0}, false},
		{"1.2", Version{}, true},
		{"1.a.3", Version{}, true},
		{"1.-1.3", Version{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVersion(tt.in)
			if tt.wantErr {
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Fatalf("ParseVersion(%q) error = %v, want *ParseError", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseVersion(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseVersion(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b Version
		want Ordering
	}{
		{Version{1, 10, 0}, Version{1, 2, 0}, NotOlder},
		{Version{1, 2, 0}, Version{1, 10, 0}, Older},
		{Version{1, 2, 3}, Version{1, 2, 3}, NotOlder},
		{Version{0, 9, 9}, Version{1, 0, 0}, Older},
		{Version{2, 0, 0}, Version{1, 99, 99}, NotOlder},
		{Version{1, 4, 4}, Version{1, 4, 5}, Older},
	}

	for _, tt := range tests {
		if got := CompareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("CompareVersions(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestVersionTotalOrder(t *testing.T) {
	versions := []Version{{1, 10, 0}, {1, 2, 0}, {0, 0, 1}, {1, 2, 10}, {1, 2, 9}, {10, 0, 0}}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Compare(versions[j]) < 0 })

	want := []Version{{0, 0, 1}, {1, 2, 0}, {1, 2, 9}, {1, 2, 10}, {1, 10, 0}, {10, 0, 0}}
	for i := range want {
		if versions[i] != want[i] {
			t.Fatalf("sorted[%d] = %v, want %v", i, versions[i], want[i])
		}
	}

	for _, a := range want {
		for _, b := range want {
			if a.Older(b) && b.Older(a) {
				t.Errorf("%v and %v are both older than each other", a, b)
			}
			if a == b && a.Older(b) {
				t.Errorf("%v is older than itself", a)
			}
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		description string
		tier        Tier
		family      Family
	}{
		{"AudioMoth-MultiGain", Custom, FamilyMultiGain},
		{"AudioMoth-MultiGain-RC2", OfficialReleaseCandidate, FamilyMultiGain},
		{"AudioMoth-Firmware-Basic", Unsupported, FamilySingleGain},
		{"AudioMoth-Firmware-Basic-RC1", Unsupported, FamilySingleGain},
		{"Something-Else", Unsupported, FamilyMultiGain},
		{"", Unsupported, FamilyMultiGain},
	}

	for _, tt := range tests {
		t.Run(tt.description, func(t *testing.T) {
			got := Classify(tt.description)
			if got.Tier != tt.tier {
				t.Errorf("Classify(%q).Tier = %v, want %v", tt.description, got.Tier, tt.tier)
			}
			if got.Family != tt.family {
				t.Errorf("Classify(%q).Family = %v, want %v", tt.description, got.Family, tt.family)
			}
		})
	}
}

func TestFirmwareJSON(t *testing.T) {
	for _, fw := range []Firmware{
		NewFirmware(Version{1, 0, 0}, "AudioMoth-MultiGain"),
		NewFirmware(Version{1, 0, 0}, "AudioMoth-MultiGain-RC1"),
		NewFirmware(Version{1, 8, 0}, "AudioMoth-Firmware-Basic"),
		NewFirmware(Version{0, 1, 0}, "Lab-Build-E1.9.0"),
	} {
		data, err := json.Marshal(fw)
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}
		var got Firmware
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", data, err)
		}
		if !reflect.DeepEqual(got, fw) {
			t.Errorf("Unmarshal(%s) = %+v, want %+v", data, got, fw)
		}
	}

	var tier Tier
	if err := tier.UnmarshalText([]byte("beta")); err == nil {
		t.Error("Tier.UnmarshalText(beta) succeeded")
	}
}

func TestExtractEquivalentVersion(t *testing.T) {
	v, err := ExtractEquivalentVersion("AudioMoth-Custom-E1.7.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != (Version{1, 7, 1}) {
		t.Errorf("ExtractEquivalentVersion = %v, want 1.7.1", v)
	}

	_, err = ExtractEquivalentVersion("AudioMoth-Custom")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Errorf("error = %v, want *ParseError", err)
	}
}

func TestFirmwareTrueVersion(t *testing.T) {
	tests := []struct {
		name        string
		version     Version
		description string
		want        Version
		recommend   bool
	}{
		{"supported", Version{1, 0, 0}, "AudioMoth-MultiGain", Version{1, 0, 0}, true},
		{"latest", Version{1, 0, 1}, "AudioMoth-MultiGain", Version{1, 0, 1}, false},
		{"unsupported equivalent", Version{0, 1, 0}, "Lab-Build-E1.9.0", LatestFirmwareVersion, false},
		{"unsupported", Version{3, 0, 0}, "Unknown", LatestFirmwareVersion, false},
		{"basic", Version{1, 8, 0}, "AudioMoth-Firmware-Basic", LatestFirmwareVersion, false},
		{"basic release candidate", Version{1, 8, 0}, "AudioMoth-Firmware-Basic-RC3", LatestFirmwareVersion, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fw := NewFirmware(tt.version, tt.description)
			if got := fw.TrueVersion(); got != tt.want {
				t.Errorf("TrueVersion() = %v, want %v", got, tt.want)
			}
			if got := fw.UpdateRecommended(); got != tt.recommend {
				t.Errorf("UpdateRecommended() = %v, want %v", got, tt.recommend)
			}
		})
	}
}
