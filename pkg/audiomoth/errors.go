package audiomoth

import "fmt"

// FormatError reports a malformed packet or an out-of-range field.
type FormatError struct {
	Field  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("packet format: %s: %s", e.Field, e.Reason)
}

// ParseError reports a version or description string that cannot be parsed.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Input, e.Reason)
}

// IndexError reports a sample rate index outside the selected table.
type IndexError struct {
	Index  int
	Length int
	Legacy bool
}

func (e *IndexError) Error() string {
	table := "current"
	if e.Legacy {
		table = "legacy"
	}
	return fmt.Sprintf("sample rate index %d out of range for %s table (%d entries)", e.Index, table, e.Length)
}

// PacketMismatchError reports the first byte where the device echo differs
// from the packet that was sent.
type PacketMismatchError struct {
	Index  int
	Sent   byte
	Echoed byte
	// Truncated is set when the echo ended before Index.
	Truncated bool
}

func (e *PacketMismatchError) Error() string {
	if e.Truncated {
		return fmt.Sprintf("packet mismatch: echo truncated at index %d", e.Index)
	}
	return fmt.Sprintf("packet mismatch at index %d: sent %d, echoed %d", e.Index, e.Sent, e.Echoed)
}

// SettingsError reports a settings value the codec refuses to encode.
type SettingsError struct {
	Field  string
	Reason string
}

func (e *SettingsError) Error() string {
	return fmt.Sprintf("invalid settings: %s: %s", e.Field, e.Reason)
}
