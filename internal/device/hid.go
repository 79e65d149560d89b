package device

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sstallion/go-hid"

	"github.com/openacoustics/audiomoth-configurator/internal/config"
	"github.com/openacoustics/audiomoth-configurator/pkg/audiomoth"
)

// USB message types understood by the recorder firmware.
const (
	msgGetTime                byte = 0x01
	msgGetUID                 byte = 0x03
	msgGetBattery             byte = 0x04
	msgGetAppPacket           byte = 0x05
	msgSetAppPacket           byte = 0x06
	msgGetFirmwareVersion     byte = 0x07
	msgGetFirmwareDescription byte = 0x08
)

const (
	reportSize        = 64
	maxPayloadSize    = reportSize - 1
	uidSize           = 8
	descriptionLength = 32
)

var hidInit sync.Once

// HIDTransport talks to a recorder over USB HID.
type HIDTransport struct {
	vendorID  uint16
	productID uint16
	timeout   time.Duration

	mu  sync.Mutex
	dev *hid.Device
}

// NewHIDTransport initialises hidapi. The device itself is opened lazily
// and reopened after any I/O failure.
func NewHIDTransport(cfg *config.DeviceConfig) (*HIDTransport, error) {
	var initErr error
	hidInit.Do(func() {
		initErr = hid.Init()
	})
	if initErr != nil {
		return nil, fmt.Errorf("init hidapi: %w", initErr)
	}

	return &HIDTransport{
		vendorID:  cfg.VendorID,
		productID: cfg.ProductID,
		timeout:   cfg.ReadTimeout,
	}, nil
}

// Close releases the open device handle, if any.
func (t *HIDTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *HIDTransport) closeLocked() error {
	if t.dev == nil {
		return nil
	}
	err := t.dev.Close()
	t.dev = nil
	return err
}

// Attached implements Enumerator by listing the paths of matching
// recorders.
func (t *HIDTransport) Attached() ([]string, error) {
	var paths []string
	err := hid.Enumerate(t.vendorID, t.productID, func(info *hid.DeviceInfo) error {
		paths = append(paths, info.Path)
		return nil
	})
	return paths, err
}

// exchange writes one report and reads the reply.
func (t *HIDTransport) exchange(ctx context.Context, msgType byte, payload []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(payload) > maxPayloadSize {
		return nil, fmt.Errorf("payload of %d bytes exceeds %d", len(payload), maxPayloadSize)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev == nil {
		dev, err := hid.OpenFirst(t.vendorID, t.productID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoDevice, err)
		}
		t.dev = dev
		log.Debug().
			Str("vid", fmt.Sprintf("%04x", t.vendorID)).
			Str("pid", fmt.Sprintf("%04x", t.productID)).
			Msg("Opened HID device")
	}

	// report ID 0, message type, payload
	out := make([]byte, reportSize+1)
	out[1] = msgType
	copy(out[2:], payload)

	if _, err := t.dev.Write(out); err != nil {
		t.closeLocked()
		return nil, fmt.Errorf("write report 0x%02x: %w", msgType, err)
	}

	in := make([]byte, reportSize)
	n, err := t.dev.ReadWithTimeout(in, t.timeout)
	if err != nil {
		t.closeLocked()
		return nil, fmt.Errorf("read report 0x%02x: %w", msgType, err)
	}

	return checkReply(msgType, in[:n])
}

func checkReply(msgType byte, reply []byte) ([]byte, error) {
	if len(reply) == 0 {
		return nil, fmt.Errorf("empty reply to 0x%02x", msgType)
	}
	if reply[0] != msgType {
		return nil, fmt.Errorf("reply type 0x%02x does not match request 0x%02x", reply[0], msgType)
	}
	return reply, nil
}

// Time implements Transport.
func (t *HIDTransport) Time(ctx context.Context) (time.Time, error) {
	reply, err := t.exchange(ctx, msgGetTime, nil)
	if err != nil {
		return time.Time{}, err
	}
	return parseTime(reply)
}

// ID implements Transport.
func (t *HIDTransport) ID(ctx context.Context) (string, error) {
	reply, err := t.exchange(ctx, msgGetUID, nil)
	if err != nil {
		return "", err
	}
	return parseID(reply)
}

// FirmwareVersion implements Transport.
func (t *HIDTransport) FirmwareVersion(ctx context.Context) (audiomoth.Version, error) {
	reply, err := t.exchange(ctx, msgGetFirmwareVersion, nil)
	if err != nil {
		return audiomoth.Version{}, err
	}
	return parseFirmwareVersion(reply)
}

// FirmwareDescription implements Transport.
func (t *HIDTransport) FirmwareDescription(ctx context.Context) (string, error) {
	reply, err := t.exchange(ctx, msgGetFirmwareDescription, nil)
	if err != nil {
		return "", err
	}
	return parseDescription(reply), nil
}

// BatteryState implements Transport.
func (t *HIDTransport) BatteryState(ctx context.Context) (BatteryState, error) {
	reply, err := t.exchange(ctx, msgGetBattery, nil)
	if err != nil {
		return 0, err
	}
	if len(reply) < 2 {
		return 0, fmt.Errorf("battery reply too short")
	}
	return BatteryState(reply[1] & 0x0f), nil
}

// AppPacket implements Transport.
func (t *HIDTransport) AppPacket(ctx context.Context) ([]byte, error) {
	return t.exchange(ctx, msgGetAppPacket, nil)
}

// SetPacket implements Transport.
func (t *HIDTransport) SetPacket(ctx context.Context, packet []byte) ([]byte, error) {
	return t.exchange(ctx, msgSetAppPacket, packet)
}

func parseTime(reply []byte) (time.Time, error) {
	if len(reply) < 5 {
		return time.Time{}, fmt.Errorf("time reply too short: %d bytes", len(reply))
	}
	return time.Unix(int64(binary.LittleEndian.Uint32(reply[1:5])), 0).UTC(), nil
}

// parseID renders the little-endian UID most significant byte first.
func parseID(reply []byte) (string, error) {
	if len(reply) < 1+uidSize {
		return "", fmt.Errorf("id reply too short: %d bytes", len(reply))
	}
	uid := make([]byte, uidSize)
	for i := 0; i < uidSize; i++ {
		uid[i] = reply[uidSize-i]
	}
	return strings.ToUpper(hex.EncodeToString(uid)), nil
}

func parseFirmwareVersion(reply []byte) (audiomoth.Version, error) {
	if len(reply) < 4 {
		return audiomoth.Version{}, fmt.Errorf("firmware version reply too short: %d bytes", len(reply))
	}
	return audiomoth.Version{int(reply[1]), int(reply[2]), int(reply[3])}, nil
}

func parseDescription(reply []byte) string {
	b := reply[1:]
	if len(b) > descriptionLength {
		b = b[:descriptionLength]
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
