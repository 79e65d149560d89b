package transfer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openacoustics/audiomoth-configurator/internal/device"
	"github.com/openacoustics/audiomoth-configurator/pkg/audiomoth"
)

// Readback is the configuration a recorder currently holds.
type Readback struct {
	DeviceID string             `json:"deviceId"`
	Firmware audiomoth.Firmware `json:"firmware"`
	Packet   []byte             `json:"-"`
	Record   *audiomoth.Record  `json:"record"`
}

// ReadConfiguration reads back and decodes the packet stored on the
// attached recorder, using the layout of its firmware.
func (m *Machine) ReadConfiguration(ctx context.Context) (*Readback, error) {
	if m.State() != Idle {
		return nil, ErrBusy
	}

	tr, err := m.exclusive.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire transport: %w", err)
	}
	defer m.exclusive.Release()

	sess, err := m.identify(ctx, tr)
	if err != nil {
		return nil, err
	}

	reply, err := device.Retry(ctx, m.retry, "getAppPacket", tr.AppPacket)
	if err != nil {
		return nil, err
	}

	layout := audiomoth.LayoutFor(sess.Firmware)
	body := reply[1:]
	if len(body) > layout.Len() {
		body = body[:layout.Len()]
	}
	record, err := audiomoth.ReadPacket(body, layout.ID())
	if err != nil {
		return nil, fmt.Errorf("decode stored packet: %w", err)
	}

	log.Debug().
		Str("device_id", sess.ID).
		Str("layout", string(layout.ID())).
		Msg("Read recorder configuration")

	return &Readback{
		DeviceID: sess.ID,
		Firmware: sess.Firmware,
		Packet:   append([]byte(nil), body...),
		Record:   record,
	}, nil
}
