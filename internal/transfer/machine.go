package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openacoustics/audiomoth-configurator/internal/device"
	"github.com/openacoustics/audiomoth-configurator/pkg/audiomoth"
)

// Common errors
var (
	ErrBusy                = errors.New("a configuration transfer is already in progress")
	ErrUnsupportedFirmware = errors.New("firmware is not supported by this configurator")
	ErrNoSession           = errors.New("no recorder has been seen yet")
)

type requesterKey struct{}

// WithRequester tags transfers started with ctx with the name of whoever
// asked for them.
func WithRequester(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, requesterKey{}, name)
}

// RequesterFrom returns the name set by WithRequester.
func RequesterFrom(ctx context.Context) string {
	name, _ := ctx.Value(requesterKey{}).(string)
	return name
}

// minimumSleepDuration is the shortest sleep the recorder is known to
// handle reliably between recordings.
const minimumSleepDuration = 5

// State is a step of a configuration transfer.
type State int

const (
	Idle State = iota
	Scheduling
	Sending
	Verifying
	Confirmed
	Failed
)

func (s State) String() string {
	switch s {
	case Scheduling:
		return "scheduling"
	case Sending:
		return "sending"
	case Verifying:
		return "verifying"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "idle"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	for st := Idle; st <= Failed; st++ {
		if string(b) == st.String() {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown transfer state %q", string(b))
}

// Result describes one finished transfer.
type Result struct {
	ID          uuid.UUID          `json:"id"`
	State       State              `json:"state"`
	DeviceID    string             `json:"deviceId,omitempty"`
	Firmware    audiomoth.Firmware `json:"firmware"`
	Layout      audiomoth.LayoutID `json:"layout,omitempty"`
	Settings    audiomoth.Settings `json:"settings"`
	Packet      []byte             `json:"packet,omitempty"`
	Echo        []byte             `json:"echo,omitempty"`
	ScheduledAt time.Time          `json:"scheduledAt"`
	SentAt      time.Time          `json:"sentAt"`
	FinishedAt  time.Time          `json:"finishedAt"`
	Requester   string             `json:"requester,omitempty"`
	Err         error              `json:"-"`
}

// Error returns the failure message, or "" for a confirmed transfer.
func (r *Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Machine drives configuration transfers. It is safe for concurrent use;
// only one transfer runs at a time.
type Machine struct {
	exclusive        *device.Exclusive
	sessions         *device.SessionTracker
	retry            device.RetryPolicy
	scheduler        Scheduler
	clock            Clock
	allowUnsupported bool

	mu                 sync.Mutex
	state              State
	communicatingUntil time.Time
	stateFuncs         []func(State, *Result)
	resultFuncs        []func(*Result)
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(m *Machine) { m.clock = c }
}

// WithScheduler replaces the default scheduler.
func WithScheduler(s Scheduler) Option {
	return func(m *Machine) { m.scheduler = s }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p device.RetryPolicy) Option {
	return func(m *Machine) { m.retry = p }
}

// AllowUnsupported lets the machine configure unsupported firmware.
func AllowUnsupported(allow bool) Option {
	return func(m *Machine) { m.allowUnsupported = allow }
}

// NewMachine creates a transfer state machine.
func NewMachine(ex *device.Exclusive, sessions *device.SessionTracker, opts ...Option) *Machine {
	m := &Machine{
		exclusive: ex,
		sessions:  sessions,
		retry:     device.DefaultRetryPolicy(),
		scheduler: DefaultScheduler(),
		clock:     SystemClock,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Session returns the recorder last identified by a transfer or a poll.
func (m *Machine) Session() (device.Session, error) {
	sess, ok := m.sessions.Current()
	if !ok {
		return device.Session{}, ErrNoSession
	}
	return sess, nil
}

// OnState registers fn for every state change. The result is nil until the
// transfer reaches a terminal state.
func (m *Machine) OnState(fn func(State, *Result)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stateFuncs = append(m.stateFuncs, fn)
}

// OnResult registers fn for every confirmed or failed transfer. It runs
// after the machine is back to Idle.
func (m *Machine) OnResult(fn func(*Result)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resultFuncs = append(m.resultFuncs, fn)
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Communicating reports whether the recorder clock display should stay
// frozen at t because a packet is about to be or has just been sent.
func (m *Machine) Communicating(t time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state != Idle || t.Before(m.communicatingUntil)
}

func (m *Machine) setState(s State, res *Result) {
	m.mu.Lock()
	m.state = s
	funcs := append([]func(State, *Result){}, m.stateFuncs...)
	m.mu.Unlock()

	for _, fn := range funcs {
		fn(s, res)
	}
}

func (m *Machine) begin() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Idle {
		return false
	}
	m.state = Scheduling
	return true
}

// Configure sends s to the attached recorder and verifies the echo. A
// failed transfer returns its Result together with the cause.
func (m *Machine) Configure(ctx context.Context, s audiomoth.Settings) (*Result, error) {
	if !m.begin() {
		return nil, ErrBusy
	}

	res := &Result{ID: uuid.New(), Settings: s, Requester: RequesterFrom(ctx)}
	m.setState(Scheduling, nil)

	res.Err = m.run(ctx, res)
	res.FinishedAt = m.clock.Now()
	res.State = Confirmed
	if res.Err != nil {
		res.State = Failed
	}

	m.finish(res)
	return res, res.Err
}

func (m *Machine) run(ctx context.Context, res *Result) error {
	tr, err := m.exclusive.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire transport: %w", err)
	}
	defer m.exclusive.Release()

	sess, err := m.identify(ctx, tr)
	if err != nil {
		return err
	}
	res.DeviceID = sess.ID
	res.Firmware = sess.Firmware

	if !sess.Firmware.Supported() {
		if !m.allowUnsupported {
			return fmt.Errorf("%w: %q", ErrUnsupportedFirmware, sess.Firmware.Description)
		}
		log.Warn().
			Str("device_id", sess.ID).
			Str("description", sess.Firmware.Description).
			Msg("Configuring unsupported firmware")
	}

	if res.Settings.SleepDuration < minimumSleepDuration {
		log.Warn().
			Int("sleep_duration", res.Settings.SleepDuration).
			Msg("Sleep duration below 5 seconds may cause recording gaps")
	}

	now := m.clock.Now()
	sendTime := m.scheduler.NextSendTime(now)
	res.ScheduledAt = sendTime

	packet, err := audiomoth.BuildPacket(&res.Settings, sess.Firmware, sendTime)
	if err != nil {
		return fmt.Errorf("build packet: %w", err)
	}
	res.Packet = packet
	res.Layout = audiomoth.LayoutFor(sess.Firmware).ID()

	m.setState(Sending, nil)

	wait := sendTime.Sub(m.clock.Now())
	suspend := wait
	if wait <= 0 {
		suspend = time.Second
	}
	m.mu.Lock()
	m.communicatingUntil = now.Add(suspend)
	m.mu.Unlock()

	// A scheduled send always fires. The packet embeds its send time, so
	// the caller can no longer cancel once it is built.
	sendCtx := context.WithoutCancel(ctx)
	if wait > 0 {
		<-m.clock.After(wait)
	}

	res.SentAt = m.clock.Now()
	echo, err := device.Retry(sendCtx, m.retry, "setPacket", func(ctx context.Context) ([]byte, error) {
		return tr.SetPacket(ctx, packet)
	})
	if err != nil {
		return err
	}
	res.Echo = echo

	m.setState(Verifying, nil)

	n := audiomoth.VerificationLength(sess.Firmware, len(packet), len(echo))
	return VerifyEcho(packet, echo, n)
}

// identify reads the recorder identity and refreshes the session.
func (m *Machine) identify(ctx context.Context, tr device.Transport) (device.Session, error) {
	id, err := device.Retry(ctx, m.retry, "getID", tr.ID)
	if err != nil {
		return device.Session{}, err
	}
	version, err := device.Retry(ctx, m.retry, "getFirmwareVersion", tr.FirmwareVersion)
	if err != nil {
		return device.Session{}, err
	}
	description, err := device.Retry(ctx, m.retry, "getFirmwareDescription", tr.FirmwareDescription)
	if err != nil {
		return device.Session{}, err
	}
	sess, _ := m.sessions.Observe(id, version, description, m.clock.Now())
	return sess, nil
}

func (m *Machine) finish(res *Result) {
	ev := log.Info()
	if res.Err != nil {
		ev = log.Error().Err(res.Err)
	}
	ev.Str("transfer_id", res.ID.String()).
		Str("device_id", res.DeviceID).
		Str("firmware", res.Firmware.Version.String()).
		Str("layout", string(res.Layout)).
		Str("state", res.State.String()).
		Msg("Configuration transfer finished")

	m.setState(res.State, res)
	m.setState(Idle, nil)

	m.mu.Lock()
	funcs := append([]func(*Result){}, m.resultFuncs...)
	m.mu.Unlock()
	for _, fn := range funcs {
		fn(res)
	}
}
