package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/openacoustics/audiomoth-configurator/internal/config"
	"github.com/openacoustics/audiomoth-configurator/internal/models"
)

const mqttPublishTimeout = 5 * time.Second

// mqttClient is the part of mqtt.Client the publisher uses
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes on <prefix>/device/<id>/status and
// <prefix>/device/<id>/transfer
type MQTTPublisher struct {
	client  mqttClient
	prefix  string
	qos     byte
	timeout time.Duration
}

// NewMQTTPublisher connects to the configured broker
func NewMQTTPublisher(cfg *config.MQTTConfig) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(30 * time.Second)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().
			Str("broker", cfg.Broker).
			Msg("MQTT client connected")
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Error().
			Err(err).
			Str("broker", cfg.Broker).
			Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		return nil, fmt.Errorf("connect to MQTT broker %s: timeout", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", cfg.Broker, err)
	}

	return newMQTTPublisher(client, cfg.TopicPrefix, cfg.QoS), nil
}

func newMQTTPublisher(client mqttClient, prefix string, qos byte) *MQTTPublisher {
	return &MQTTPublisher{client: client, prefix: prefix, qos: qos, timeout: mqttPublishTimeout}
}

func (p *MQTTPublisher) topic(deviceID, kind string) string {
	return fmt.Sprintf("%s/device/%s/%s", p.prefix, deviceSegment(deviceID), kind)
}

func (p *MQTTPublisher) publish(ctx context.Context, topic string, v interface{}, retained bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.qos, retained, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	log.Debug().
		Str("topic", topic).
		Int("size", len(data)).
		Msg("Published to MQTT")
	return nil
}

// PublishStatus implements Publisher. Status is retained so new
// subscribers see the latest recorder state.
func (p *MQTTPublisher) PublishStatus(ctx context.Context, msg *models.StatusMessage) error {
	return p.publish(ctx, p.topic(msg.DeviceID, "status"), msg, true)
}

// PublishTransfer implements Publisher
func (p *MQTTPublisher) PublishTransfer(ctx context.Context, msg *models.TransferMessage) error {
	return p.publish(ctx, p.topic(msg.DeviceID, "transfer"), msg, false)
}

// Close disconnects from the broker
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
