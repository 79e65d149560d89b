package audiomoth

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Version is a three component firmware or application version.
type Version [3]int

// LatestFirmwareVersion is the newest multi-gain firmware release known to
// this configurator.
var LatestFirmwareVersion = Version{1, 0, 1}

// ParseVersion parses "major.minor.patch".
func ParseVersion(s string) (Version, error) {
	var v Version
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return v, &ParseError{Input: s, Reason: "expected three dot-separated integers"}
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return v, &ParseError{Input: s, Reason: fmt.Sprintf("component %d is not a non-negative integer", i)}
		}
		v[i] = n
	}
	return v, nil
}

// String returns the dotted form.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
}

// Compare returns -1, 0 or 1 comparing components numerically.
func (v Version) Compare(o Version) int {
	for i := 0; i < 3; i++ {
		switch {
		case v[i] < o[i]:
			return -1
		case v[i] > o[i]:
			return 1
		}
	}
	return 0
}

// Older reports whether v precedes o.
func (v Version) Older(o Version) bool {
	return v.Compare(o) < 0
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(b []byte) error {
	p, err := ParseVersion(string(b))
	if err != nil {
		return err
	}
	*v = p
	return nil
}

// Ordering is the result of CompareVersions.
type Ordering int

const (
	NotOlder Ordering = iota
	Older
)

func (o Ordering) String() string {
	if o == Older {
		return "older"
	}
	return "notOlder"
}

// CompareVersions reports whether a is older than b. Equal versions are not older.
func CompareVersions(a, b Version) Ordering {
	if a.Older(b) {
		return Older
	}
	return NotOlder
}

// Tier is the support level of a firmware build.
type Tier int

const (
	OfficialRelease Tier = iota
	OfficialReleaseCandidate
	Custom
	Unsupported
)

func (t Tier) String() string {
	switch t {
	case OfficialRelease:
		return "official"
	case OfficialReleaseCandidate:
		return "release-candidate"
	case Custom:
		return "custom"
	default:
		return "unsupported"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Tier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Tier) UnmarshalText(b []byte) error {
	for _, c := range []Tier{OfficialRelease, OfficialReleaseCandidate, Custom, Unsupported} {
		if string(b) == c.String() {
			*t = c
			return nil
		}
	}
	return &ParseError{Input: string(b), Reason: "unknown firmware tier"}
}

// Family groups firmware builds sharing a packet layout lineage.
type Family int

const (
	FamilyMultiGain Family = iota
	FamilySingleGain
)

func (f Family) String() string {
	if f == FamilySingleGain {
		return "single-gain"
	}
	return "multi-gain"
}

// MarshalText implements encoding.TextMarshaler.
func (f Family) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Family) UnmarshalText(b []byte) error {
	p, err := ParseFamily(string(b))
	if err != nil {
		return err
	}
	*f = p
	return nil
}

// ParseFamily accepts the names produced by Family.String.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "multi-gain", "multigain":
		return FamilyMultiGain, nil
	case "single-gain", "singlegain", "basic":
		return FamilySingleGain, nil
	}
	return FamilyMultiGain, &ParseError{Input: s, Reason: "unknown firmware family"}
}

// Classification is the outcome of classifying a firmware description.
type Classification struct {
	Tier   Tier   `json:"tier"`
	Family Family `json:"family"`
}

type knownFirmware struct {
	description string
	tier        Tier
	family      Family
}

var knownFirmwares = []knownFirmware{
	{"AudioMoth-MultiGain", Custom, FamilyMultiGain},
	{"AudioMoth-Firmware-Basic", Unsupported, FamilySingleGain},
}

var (
	rcSuffixRegex    = regexp.MustCompile(`-RC\d+$`)
	equivalenceRegex = regexp.MustCompile(`E(\d+)\.(\d+)\.(\d+)`)
)

// Classify maps a firmware description to its support tier.
func Classify(description string) Classification {
	for _, k := range knownFirmwares {
		if description == k.description {
			return Classification{Tier: k.tier, Family: k.family}
		}
	}

	stripped := rcSuffixRegex.ReplaceAllString(description, "")
	if stripped != description {
		for _, k := range knownFirmwares {
			if stripped != k.description {
				continue
			}
			tier := OfficialReleaseCandidate
			if k.tier == Unsupported {
				tier = Unsupported
			}
			return Classification{Tier: tier, Family: k.family}
		}
	}

	return Classification{Tier: Unsupported, Family: FamilyMultiGain}
}

// ExtractEquivalentVersion finds an "E<major>.<minor>.<patch>" marker in a
// custom firmware description.
func ExtractEquivalentVersion(description string) (Version, error) {
	m := equivalenceRegex.FindStringSubmatch(description)
	if m == nil {
		return Version{}, &ParseError{Input: description, Reason: "no equivalent version marker"}
	}
	var v Version
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Version{}, &ParseError{Input: description, Reason: err.Error()}
		}
		v[i] = n
	}
	return v, nil
}

// Firmware is the identity a packet is built for.
type Firmware struct {
	Version        Version        `json:"version"`
	Description    string         `json:"description"`
	Classification Classification `json:"classification"`
	// Equivalent is set when the description carries an equivalence marker.
	Equivalent *Version `json:"equivalent,omitempty"`
}

// NewFirmware classifies a reported version and description.
func NewFirmware(version Version, description string) Firmware {
	fw := Firmware{
		Version:        version,
		Description:    description,
		Classification: Classify(description),
	}
	if eq, err := ExtractEquivalentVersion(description); err == nil {
		fw.Equivalent = &eq
	}
	return fw
}

// Family returns the layout family of the firmware.
func (f Firmware) Family() Family {
	return f.Classification.Family
}

// Supported reports whether the configurator is able to drive the firmware.
func (f Firmware) Supported() bool {
	return f.Classification.Tier != Unsupported
}

// TrueVersion is the version used for layout and table decisions.
// Unsupported firmware is treated as the latest multi-gain release, even
// when its description carries an equivalence marker.
func (f Firmware) TrueVersion() Version {
	if !f.Supported() {
		return LatestFirmwareVersion
	}
	if f.Equivalent != nil {
		return *f.Equivalent
	}
	return f.Version
}

// UpdateRecommended reports whether a newer multi-gain release exists.
func (f Firmware) UpdateRecommended() bool {
	return f.Supported() && f.Family() == FamilyMultiGain && f.Version.Older(LatestFirmwareVersion)
}
