package integration

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/openacoustics/audiomoth-configurator/internal/config"
	"github.com/openacoustics/audiomoth-configurator/internal/models"
)

// natsConn is the part of *nats.Conn the publisher uses
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher publishes on <prefix>.device.<id>.status and
// <prefix>.device.<id>.transfer
type NATSPublisher struct {
	nc     natsConn
	prefix string
}

// ConnectNATS connects to the configured NATS server
func ConnectNATS(cfg *config.NATSConfig, name string) (*nats.Conn, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.UserInfo(cfg.Username, cfg.Password),
		nats.ReconnectWait(cfg.ReconnectInterval),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// NewNATSPublisher creates a NATS publisher
func NewNATSPublisher(nc *nats.Conn, prefix string) *NATSPublisher {
	return newNATSPublisher(nc, prefix)
}

func newNATSPublisher(nc natsConn, prefix string) *NATSPublisher {
	return &NATSPublisher{nc: nc, prefix: prefix}
}

func (p *NATSPublisher) subject(deviceID, kind string) string {
	return fmt.Sprintf("%s.device.%s.%s", p.prefix, deviceSegment(deviceID), kind)
}

func (p *NATSPublisher) publish(subject string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	log.Debug().
		Str("subject", subject).
		Int("size", len(data)).
		Msg("Published to NATS")
	return nil
}

// PublishStatus implements Publisher
func (p *NATSPublisher) PublishStatus(_ context.Context, msg *models.StatusMessage) error {
	return p.publish(p.subject(msg.DeviceID, "status"), msg)
}

// PublishTransfer implements Publisher
func (p *NATSPublisher) PublishTransfer(_ context.Context, msg *models.TransferMessage) error {
	return p.publish(p.subject(msg.DeviceID, "transfer"), msg)
}

// Close drains the connection
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
