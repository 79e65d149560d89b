package integration

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/openacoustics/audiomoth-configurator/internal/models"
	"github.com/openacoustics/audiomoth-configurator/internal/transfer"
	"github.com/openacoustics/audiomoth-configurator/pkg/audiomoth"
)

type published struct {
	subject  string
	data     []byte
	retained bool
}

type fakeNATS struct {
	msgs    []published
	err     error
	drained bool
}

func (f *fakeNATS) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func (f *fakeNATS) Drain() error {
	f.drained = true
	return nil
}

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeMQTT struct {
	msgs         []published
	qos          byte
	err          error
	disconnected bool
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.qos = qos
	if f.err != nil {
		return newFakeToken(f.err)
	}
	f.msgs = append(f.msgs, published{subject: topic, data: payload.([]byte), retained: retained})
	return newFakeToken(nil)
}

func (f *fakeMQTT) Disconnect(uint) { f.disconnected = true }

func sampleStatus() transfer.Status {
	fw := audiomoth.NewFirmware(audiomoth.Version{1, 0, 1}, "AudioMoth-MultiGain")
	return transfer.Status{
		Connected: true,
		DeviceID:  "24F3190C5FD8E3A1",
		Firmware:  &fw,
		Battery:   "4.5V",
		PolledAt:  time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestStatusMessage(t *testing.T) {
	msg := StatusMessage(sampleStatus())
	if msg.FirmwareVersion != "1.0.1" || msg.FirmwareTier != "custom" {
		t.Errorf("firmware = %s %s", msg.FirmwareVersion, msg.FirmwareTier)
	}

	empty := StatusMessage(transfer.Status{})
	if empty.Connected || empty.FirmwareVersion != "" {
		t.Errorf("disconnected message = %+v", empty)
	}
}

func TestTransferMessage(t *testing.T) {
	res := &transfer.Result{
		ID:       uuid.New(),
		State:    transfer.Failed,
		DeviceID: "A",
		Packet:   []byte{0xde, 0xad},
		Layout:   audiomoth.LayoutSingleGain,
		Err:      errors.New("echo mismatch"),
	}
	msg := TransferMessage(res)
	if msg.State != "failed" || msg.Error != "echo mismatch" || msg.Packet != "dead" || msg.Layout != "single-gain" {
		t.Errorf("TransferMessage() = %+v", msg)
	}
}

func TestNATSPublisher(t *testing.T) {
	nc := &fakeNATS{}
	p := newNATSPublisher(nc, "audiomoth")
	ctx := context.Background()

	if err := p.PublishStatus(ctx, StatusMessage(sampleStatus())); err != nil {
		t.Fatalf("PublishStatus() error = %v", err)
	}
	if err := p.PublishTransfer(ctx, &models.TransferMessage{State: "confirmed"}); err != nil {
		t.Fatalf("PublishTransfer() error = %v", err)
	}

	want := []string{"audiomoth.device.24F3190C5FD8E3A1.status", "audiomoth.device.none.transfer"}
	if len(nc.msgs) != len(want) {
		t.Fatalf("published %d messages, want %d", len(nc.msgs), len(want))
	}
	for i, subject := range want {
		if nc.msgs[i].subject != subject {
			t.Errorf("subject[%d] = %q, want %q", i, nc.msgs[i].subject, subject)
		}
	}

	var decoded models.StatusMessage
	if err := json.Unmarshal(nc.msgs[0].data, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.Battery != "4.5V" {
		t.Errorf("Battery = %q", decoded.Battery)
	}

	nc.err = errors.New("connection closed")
	if err := p.PublishStatus(ctx, &models.StatusMessage{}); !errors.Is(err, nc.err) {
		t.Errorf("PublishStatus() error = %v, want wrapped connection error", err)
	}

	p.Close()
	if !nc.drained {
		t.Error("Close() did not drain")
	}
}

func TestMQTTPublisher(t *testing.T) {
	client := &fakeMQTT{}
	p := newMQTTPublisher(client, "audiomoth", 1)
	ctx := context.Background()

	if err := p.PublishStatus(ctx, StatusMessage(sampleStatus())); err != nil {
		t.Fatalf("PublishStatus() error = %v", err)
	}
	if err := p.PublishTransfer(ctx, &models.TransferMessage{DeviceID: "A", State: "confirmed"}); err != nil {
		t.Fatalf("PublishTransfer() error = %v", err)
	}

	if client.msgs[0].subject != "audiomoth/device/24F3190C5FD8E3A1/status" || !client.msgs[0].retained {
		t.Errorf("status publish = %+v", client.msgs[0])
	}
	if client.msgs[1].subject != "audiomoth/device/A/transfer" || client.msgs[1].retained {
		t.Errorf("transfer publish = %+v", client.msgs[1])
	}
	if client.qos != 1 {
		t.Errorf("qos = %d, want 1", client.qos)
	}

	client.err = errors.New("not connected")
	if err := p.PublishStatus(ctx, &models.StatusMessage{}); !errors.Is(err, client.err) {
		t.Errorf("PublishStatus() error = %v, want wrapped broker error", err)
	}

	p.Close()
	if !client.disconnected {
		t.Error("Close() did not disconnect")
	}
}

func TestMulti(t *testing.T) {
	a, b := &fakeNATS{}, &fakeNATS{err: errors.New("down")}
	m := Multi{newNATSPublisher(a, "x"), newNATSPublisher(b, "y"), Nop{}}

	err := m.PublishTransfer(context.Background(), &models.TransferMessage{DeviceID: "A"})
	if !errors.Is(err, b.err) {
		t.Errorf("Multi error = %v, want joined failure", err)
	}
	if len(a.msgs) != 1 {
		t.Error("healthy publisher skipped after a sibling failed")
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
