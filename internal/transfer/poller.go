package transfer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openacoustics/audiomoth-configurator/internal/device"
	"github.com/openacoustics/audiomoth-configurator/pkg/audiomoth"
)

// Status is one snapshot of the attached recorder.
type Status struct {
	Connected     bool                `json:"connected"`
	DeviceID      string              `json:"deviceId,omitempty"`
	Firmware      *audiomoth.Firmware `json:"firmware,omitempty"`
	DeviceTime    time.Time           `json:"deviceTime,omitempty"`
	Battery       string              `json:"battery,omitempty"`
	Communicating bool                `json:"communicating"`
	Warnings      []string            `json:"warnings,omitempty"`
	PolledAt      time.Time           `json:"polledAt"`
}

// Poller refreshes the recorder status every second on the half-second
// mark. A busy transport skips the cycle; a failed read reports the
// recorder as disconnected.
type Poller struct {
	exclusive *device.Exclusive
	sessions  *device.SessionTracker
	machine   *Machine
	retry     device.RetryPolicy
	clock     Clock
	offset    time.Duration

	mu     sync.Mutex
	last   Status
	onFunc []func(Status)
}

// NewPoller creates a poller sharing the machine's transport.
// offset is the point within each second at which a poll starts.
func NewPoller(ex *device.Exclusive, sessions *device.SessionTracker, m *Machine, offset time.Duration) *Poller {
	if offset <= 0 {
		offset = 500 * time.Millisecond
	}
	return &Poller{
		exclusive: ex,
		sessions:  sessions,
		machine:   m,
		retry:     m.retry,
		clock:     m.clock,
		offset:    offset,
	}
}

// OnStatus registers fn for every completed poll.
func (p *Poller) OnStatus(fn func(Status)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onFunc = append(p.onFunc, fn)
}

// Last returns the most recent status.
func (p *Poller) Last() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	log.Info().Dur("offset", p.offset).Msg("Device poller started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Device poller stopped")
			return ctx.Err()
		case <-p.clock.After(nextPollDelay(p.clock.Now(), p.offset)):
		}
		p.PollOnce(ctx)
	}
}

// PollOnce runs a single cycle. It returns false when the cycle was
// skipped because a transfer holds the transport.
func (p *Poller) PollOnce(ctx context.Context) (Status, bool) {
	tr, ok := p.exclusive.TryAcquire()
	if !ok {
		return Status{}, false
	}
	st := p.read(ctx, tr)
	p.exclusive.Release()

	st.Communicating = p.machine.Communicating(st.PolledAt)

	p.mu.Lock()
	prev := p.last
	p.last = st
	funcs := append([]func(Status){}, p.onFunc...)
	p.mu.Unlock()

	if prev.Connected != st.Connected {
		log.Info().Bool("connected", st.Connected).Str("device_id", st.DeviceID).Msg("Recorder connection changed")
	}
	for _, fn := range funcs {
		fn(st)
	}
	return st, true
}

func (p *Poller) read(ctx context.Context, tr device.Transport) Status {
	st := Status{PolledAt: p.clock.Now()}

	if e, ok := tr.(device.Enumerator); ok {
		if paths, err := e.Attached(); err == nil && len(paths) == 0 {
			return p.disconnected(st, device.ErrNoDevice)
		}
	}

	deviceTime, err := device.Retry(ctx, p.retry, "getTime", tr.Time)
	if err != nil {
		return p.disconnected(st, err)
	}
	id, err := device.Retry(ctx, p.retry, "getID", tr.ID)
	if err != nil {
		return p.disconnected(st, err)
	}
	battery, err := device.Retry(ctx, p.retry, "getBatteryState", tr.BatteryState)
	if err != nil {
		return p.disconnected(st, err)
	}
	version, err := device.Retry(ctx, p.retry, "getFirmwareVersion", tr.FirmwareVersion)
	if err != nil {
		return p.disconnected(st, err)
	}
	description, err := device.Retry(ctx, p.retry, "getFirmwareDescription", tr.FirmwareDescription)
	if err != nil {
		return p.disconnected(st, err)
	}

	sess, _ := p.sessions.Observe(id, version, description, st.PolledAt)
	fw := sess.Firmware

	st.Connected = true
	st.DeviceID = id
	st.DeviceTime = deviceTime
	st.Battery = battery.String()
	st.Firmware = &fw
	st.Warnings = p.warnings(sess)
	return st
}

// warnings returns the firmware warnings not yet raised in this session.
func (p *Poller) warnings(sess device.Session) []string {
	var out []string
	if !sess.Firmware.Supported() && p.sessions.WarnOnce(device.WarnUnsupportedFirmware) {
		log.Warn().
			Str("device_id", sess.ID).
			Str("description", sess.Firmware.Description).
			Msg("Recorder firmware is not supported")
		out = append(out, device.WarnUnsupportedFirmware)
	}
	if sess.Firmware.UpdateRecommended() && p.sessions.WarnOnce(device.WarnUpdateRecommended) {
		log.Warn().
			Str("device_id", sess.ID).
			Str("version", sess.Firmware.Version.String()).
			Msg("Recorder firmware update recommended")
		out = append(out, device.WarnUpdateRecommended)
	}
	return out
}

func (p *Poller) disconnected(st Status, err error) Status {
	log.Debug().Err(err).Msg("Recorder poll failed")
	return st
}
