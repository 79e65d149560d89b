package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/openacoustics/audiomoth-configurator/pkg/audiomoth"
)

// errStubTransient is the failure injected by StubTransport.FailNext.
var errStubTransient = errors.New("stub: transient HID failure")

// StubTransport is an in-memory recorder used for simulation and tests.
type StubTransport struct {
	mu sync.Mutex

	id          string
	version     audiomoth.Version
	description string
	battery     BatteryState
	clockOffset time.Duration
	now         func() time.Time

	attached   bool
	failNext   int
	corruptAt  int
	packet     []byte
	packetSets int
}

// NewStubTransport returns an attached multi-gain recorder.
func NewStubTransport(id string) *StubTransport {
	return &StubTransport{
		id:          id,
		version:     audiomoth.LatestFirmwareVersion,
		description: "AudioMoth-MultiGain",
		battery:     10,
		now:         time.Now,
		attached:    true,
		corruptAt:   -1,
	}
}

// SetFirmware changes the reported firmware.
func (s *StubTransport) SetFirmware(v audiomoth.Version, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version, s.description = v, description
}

// SetID swaps the attached recorder for another.
func (s *StubTransport) SetID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
}

// SetAttached plugs or unplugs the recorder.
func (s *StubTransport) SetAttached(attached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached = attached
}

// FailNext makes the next n operations fail with a transient error.
func (s *StubTransport) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// CorruptEcho flips the echoed packet byte at index. A negative index
// restores faithful echoes.
func (s *StubTransport) CorruptEcho(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corruptAt = index
}

// Packet returns the last configuration written.
func (s *StubTransport) Packet() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.packet...)
}

// PacketSets counts successful SetPacket calls.
func (s *StubTransport) PacketSets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packetSets
}

func (s *StubTransport) begin() error {
	if !s.attached {
		return ErrNoDevice
	}
	if s.failNext > 0 {
		s.failNext--
		return errStubTransient
	}
	return nil
}

// Time implements Transport.
func (s *StubTransport) Time(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return time.Time{}, err
	}
	return s.now().Add(s.clockOffset).Truncate(time.Second).UTC(), nil
}

// ID implements Transport.
func (s *StubTransport) ID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return "", err
	}
	return s.id, nil
}

// FirmwareVersion implements Transport.
func (s *StubTransport) FirmwareVersion(ctx context.Context) (audiomoth.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return audiomoth.Version{}, err
	}
	return s.version, nil
}

// FirmwareDescription implements Transport.
func (s *StubTransport) FirmwareDescription(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return "", err
	}
	return s.description, nil
}

// BatteryState implements Transport.
func (s *StubTransport) BatteryState(ctx context.Context) (BatteryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return 0, err
	}
	return s.battery, nil
}

// Attached implements Enumerator.
func (s *StubTransport) Attached() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.attached {
		return nil, nil
	}
	return []string{"stub:" + s.id}, nil
}

// AppPacket implements Transport. A recorder that was never configured
// replies with zeroes.
func (s *StubTransport) AppPacket(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return nil, err
	}
	reply := make([]byte, reportSize)
	reply[0] = msgGetAppPacket
	copy(reply[1:], s.packet)
	return reply, nil
}

// SetPacket implements Transport. The recorder takes its clock from the
// packet's first four bytes.
func (s *StubTransport) SetPacket(ctx context.Context, packet []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return nil, err
	}

	s.packet = append([]byte(nil), packet...)
	s.packetSets++
	if len(packet) >= 4 {
		ts := int64(packet[0]) | int64(packet[1])<<8 | int64(packet[2])<<16 | int64(packet[3])<<24
		s.clockOffset = time.Unix(ts, 0).Sub(s.now())
	}

	reply := make([]byte, reportSize)
	reply[0] = msgSetAppPacket
	copy(reply[1:], packet)
	if s.corruptAt >= 0 && s.corruptAt+1 < len(reply) {
		reply[s.corruptAt+1] ^= 0xFF
	}
	return reply, nil
}
