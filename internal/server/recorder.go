package server

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openacoustics/audiomoth-configurator/internal/integration"
	"github.com/openacoustics/audiomoth-configurator/internal/models"
	"github.com/openacoustics/audiomoth-configurator/internal/storage"
	"github.com/openacoustics/audiomoth-configurator/internal/transfer"
)

const recordTimeout = 5 * time.Second

// Recorder persists recorder activity and forwards it to integrations
type Recorder struct {
	store     storage.Store
	publisher integration.Publisher

	mu   sync.Mutex
	last *models.StatusMessage
}

// NewRecorder creates a recorder
func NewRecorder(store storage.Store, publisher integration.Publisher) *Recorder {
	if publisher == nil {
		publisher = integration.Nop{}
	}
	return &Recorder{store: store, publisher: publisher}
}

// Attach subscribes the recorder to a machine and a poller
func (r *Recorder) Attach(m *transfer.Machine, p *transfer.Poller) {
	m.OnResult(r.HandleResult)
	p.OnStatus(r.HandleStatus)
}

// HandleStatus logs connection changes and firmware warnings and publishes
// the status whenever it differs from the last one published.
func (r *Recorder) HandleStatus(st transfer.Status) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	msg := integration.StatusMessage(st)

	r.mu.Lock()
	prev := r.last
	changed := prev == nil || statusChanged(prev, msg)
	if changed {
		r.last = msg
	}
	r.mu.Unlock()

	if prev != nil && prev.Connected != msg.Connected {
		if msg.Connected {
			r.event(ctx, &models.EventLog{
				DeviceID:    stringPtr(msg.DeviceID),
				Type:        models.EventTypeConnected,
				Level:       models.EventLevelInfo,
				Description: "Recorder connected",
				Details:     models.Variables{"firmwareVersion": msg.FirmwareVersion, "battery": msg.Battery},
			})
		} else {
			r.event(ctx, &models.EventLog{
				DeviceID:    stringPtr(prev.DeviceID),
				Type:        models.EventTypeDisconnected,
				Level:       models.EventLevelInfo,
				Description: "Recorder disconnected",
			})
		}
	}

	for _, w := range st.Warnings {
		r.event(ctx, &models.EventLog{
			DeviceID:    stringPtr(msg.DeviceID),
			Type:        models.EventTypeFirmwareWarning,
			Level:       models.EventLevelWarning,
			Code:        w,
			Description: fmt.Sprintf("Firmware warning: %s", w),
			Details:     models.Variables{"firmwareVersion": msg.FirmwareVersion, "firmwareTier": msg.FirmwareTier},
		})
	}

	if changed {
		if err := r.publisher.PublishStatus(ctx, msg); err != nil {
			log.Error().Err(err).Msg("Failed to publish recorder status")
			r.integrationFailed(ctx, msg.DeviceID, "status", err)
		}
	}
}

func statusChanged(a, b *models.StatusMessage) bool {
	return a.Connected != b.Connected ||
		a.DeviceID != b.DeviceID ||
		a.Battery != b.Battery ||
		a.FirmwareVersion != b.FirmwareVersion ||
		len(b.Warnings) > 0
}

// HandleResult stores a finished transfer, logs it and publishes it
func (r *Recorder) HandleResult(res *transfer.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	settings, err := models.ToVariables(res.Settings)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode transfer settings")
	}

	entry := &models.ConfigurationLog{
		CreatedAt:           res.FinishedAt,
		TransferID:          res.ID,
		DeviceID:            res.DeviceID,
		FirmwareVersion:     res.Firmware.Version.String(),
		FirmwareDescription: res.Firmware.Description,
		Layout:              string(res.Layout),
		State:               res.State.String(),
		Error:               res.Error(),
		ScheduledAt:         res.ScheduledAt,
		SentAt:              res.SentAt,
		Packet:              hex.EncodeToString(res.Packet),
		Settings:            settings,
		Operator:            res.Requester,
	}
	if entry.DeviceID != "" {
		if err := r.store.CreateConfigurationLog(ctx, entry); err != nil {
			log.Error().Err(err).Str("transfer_id", res.ID.String()).Msg("Failed to store configuration log")
		}
	}

	ev := &models.EventLog{
		DeviceID:    stringPtr(res.DeviceID),
		Type:        models.EventTypeConfigured,
		Level:       models.EventLevelInfo,
		Code:        res.State.String(),
		Description: "Recorder configured",
		Details:     models.Variables{"transferId": res.ID.String(), "layout": string(res.Layout)},
	}
	if res.Err != nil {
		ev.Type = models.EventTypeConfigureFailed
		ev.Level = models.EventLevelError
		ev.Description = res.Error()
	}
	r.event(ctx, ev)

	if err := r.publisher.PublishTransfer(ctx, integration.TransferMessage(res)); err != nil {
		log.Error().Err(err).Msg("Failed to publish transfer result")
		r.integrationFailed(ctx, res.DeviceID, "transfer", err)
	}
}

func (r *Recorder) integrationFailed(ctx context.Context, deviceID, kind string, err error) {
	r.event(ctx, &models.EventLog{
		DeviceID:    stringPtr(deviceID),
		Type:        models.EventTypeIntegration,
		Level:       models.EventLevelWarning,
		Code:        kind,
		Description: err.Error(),
	})
}

func (r *Recorder) event(ctx context.Context, ev *models.EventLog) {
	if err := r.store.CreateEventLog(ctx, ev); err != nil {
		log.Error().Err(err).Str("type", string(ev.Type)).Msg("Failed to create event log")
	}
}

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
