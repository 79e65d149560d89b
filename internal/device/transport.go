package device

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/openacoustics/audiomoth-configurator/pkg/audiomoth"
)

// ErrNoDevice is returned by a Transport when no recorder is attached.
var ErrNoDevice = errors.New("no device detected")

// Transport is a single-shot request/response link to a recorder.
// Implementations are not required to be safe for concurrent use; callers
// serialise access through Exclusive.
type Transport interface {
	Time(ctx context.Context) (time.Time, error)
	ID(ctx context.Context) (string, error)
	FirmwareVersion(ctx context.Context) (audiomoth.Version, error)
	FirmwareDescription(ctx context.Context) (string, error)
	BatteryState(ctx context.Context) (BatteryState, error)
	// AppPacket reads back the configuration held by the recorder. The
	// reply keeps its one byte message type header.
	AppPacket(ctx context.Context) ([]byte, error)
	// SetPacket sends a configuration packet and returns the raw device
	// reply, whose first byte is the message type header.
	SetPacket(ctx context.Context, packet []byte) ([]byte, error)
}

// Enumerator is implemented by transports that can tell whether a
// recorder is plugged in without talking to it.
type Enumerator interface {
	Attached() ([]string, error)
}

// BatteryState is the four bit battery level reported by the recorder.
type BatteryState uint8

// String renders the level the way the recorder's own display does.
func (b BatteryState) String() string {
	switch {
	case b == 0:
		return "< 3.6V"
	case b >= 15:
		return "> 4.9V"
	default:
		return fmt.Sprintf("%.1fV", 3.5+float64(b)/10)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (b BatteryState) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. It accepts the forms
// produced by String.
func (b *BatteryState) UnmarshalText(text []byte) error {
	s := string(text)
	switch s {
	case "< 3.6V":
		*b = 0
		return nil
	case "> 4.9V":
		*b = 15
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "V"), 64)
	if err != nil || !strings.HasSuffix(s, "V") {
		return fmt.Errorf("invalid battery level %q", s)
	}
	level := math.Round((v - 3.5) * 10)
	if level < 1 || level > 14 {
		return fmt.Errorf("battery level %q out of range", s)
	}
	*b = BatteryState(level)
	return nil
}
