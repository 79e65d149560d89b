package integration

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/openacoustics/audiomoth-configurator/internal/models"
	"github.com/openacoustics/audiomoth-configurator/internal/transfer"
)

// Publisher forwards recorder status and transfer outcomes to external
// systems
type Publisher interface {
	PublishStatus(ctx context.Context, msg *models.StatusMessage) error
	PublishTransfer(ctx context.Context, msg *models.TransferMessage) error
	Close() error
}

// unknownDevice names the subject segment used before any recorder is seen
const unknownDevice = "none"

// StatusMessage converts a poll result into its wire form
func StatusMessage(st transfer.Status) *models.StatusMessage {
	msg := &models.StatusMessage{
		DeviceID:   st.DeviceID,
		Connected:  st.Connected,
		DeviceTime: st.DeviceTime,
		Battery:    st.Battery,
		Warnings:   st.Warnings,
		PolledAt:   st.PolledAt,
	}
	if st.Firmware != nil {
		msg.FirmwareVersion = st.Firmware.Version.String()
		msg.FirmwareTier = st.Firmware.Classification.Tier.String()
	}
	return msg
}

// TransferMessage converts a transfer result into its wire form
func TransferMessage(res *transfer.Result) *models.TransferMessage {
	return &models.TransferMessage{
		TransferID:      res.ID,
		DeviceID:        res.DeviceID,
		State:           res.State.String(),
		Error:           res.Error(),
		FirmwareVersion: res.Firmware.Version.String(),
		Layout:          string(res.Layout),
		Packet:          hex.EncodeToString(res.Packet),
		SentAt:          res.SentAt,
	}
}

func deviceSegment(id string) string {
	if id == "" {
		return unknownDevice
	}
	return id
}

// Multi fans messages out to several publishers
type Multi []Publisher

// PublishStatus implements Publisher
func (m Multi) PublishStatus(ctx context.Context, msg *models.StatusMessage) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishStatus(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishTransfer implements Publisher
func (m Multi) PublishTransfer(ctx context.Context, msg *models.TransferMessage) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishTransfer(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Publisher
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards everything
type Nop struct{}

func (Nop) PublishStatus(context.Context, *models.StatusMessage) error     { return nil }
func (Nop) PublishTransfer(context.Context, *models.TransferMessage) error { return nil }
func (Nop) Close() error                                                   { return nil }
