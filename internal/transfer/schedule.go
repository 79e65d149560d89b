package transfer

import (
	"time"

	"github.com/openacoustics/audiomoth-configurator/internal/config"
)

// Clock is the time source used for scheduling.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Scheduler picks the instant a packet is transmitted so that it reaches
// the recorder on a whole second.
type Scheduler struct {
	USBLag       time.Duration
	MinimumDelay time.Duration
}

// DefaultScheduler compensates 20ms of USB latency and waits at least 100ms.
func DefaultScheduler() Scheduler {
	return Scheduler{USBLag: 20 * time.Millisecond, MinimumDelay: 100 * time.Millisecond}
}

// NewScheduler builds a scheduler from configuration.
func NewScheduler(cfg *config.TransferConfig) Scheduler {
	return Scheduler{USBLag: cfg.USBLag, MinimumDelay: cfg.MinimumDelay}
}

// NextSendTime returns the transmit instant after now.
func (s Scheduler) NextSendTime(now time.Time) time.Time {
	ms := time.Duration(now.Nanosecond()) / time.Millisecond * time.Millisecond
	delay := time.Second - ms - s.USBLag
	if delay < s.MinimumDelay {
		delay += time.Second
	}
	return now.Add(delay)
}

// nextPollDelay returns the wait until the next half-second mark.
func nextPollDelay(now time.Time, offset time.Duration) time.Duration {
	d := offset - time.Duration(now.Nanosecond())
	if d <= 0 {
		d += time.Second
	}
	return d
}
