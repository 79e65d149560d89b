package device

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openacoustics/audiomoth-configurator/pkg/audiomoth"
)

// Session is the cached identity of one attached recorder. It lives until a
// recorder with a different ID is seen.
type Session struct {
	ID        string             `json:"id"`
	Firmware  audiomoth.Firmware `json:"firmware"`
	StartedAt time.Time          `json:"startedAt"`

	warned map[string]bool
}

// Warning kinds reported at most once per session.
const (
	WarnUnsupportedFirmware = "unsupported_firmware"
	WarnUpdateRecommended   = "update_recommended"
)

func (s *Session) warnOnce(kind string) bool {
	if s.warned[kind] {
		return false
	}
	if s.warned == nil {
		s.warned = make(map[string]bool)
	}
	s.warned[kind] = true
	return true
}

// SessionTracker holds the current Session.
type SessionTracker struct {
	mu      sync.Mutex
	current *Session
}

// NewSessionTracker returns an empty tracker.
func NewSessionTracker() *SessionTracker {
	return &SessionTracker{}
}

// Observe records a fresh identity read. A new ID starts a new session; the
// same ID refreshes the firmware identity but keeps the warnings raised.
func (t *SessionTracker) Observe(id string, version audiomoth.Version, description string, now time.Time) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fw := audiomoth.NewFirmware(version, description)

	if t.current != nil && t.current.ID == id {
		t.current.Firmware = fw
		return *t.current, false
	}

	if t.current != nil {
		log.Info().Str("previous_id", t.current.ID).Str("device_id", id).Msg("Recorder changed")
	}
	t.current = &Session{ID: id, Firmware: fw, StartedAt: now}
	return *t.current, true
}

// Current returns a copy of the active session.
func (t *SessionTracker) Current() (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return Session{}, false
	}
	return *t.current, true
}

// WarnOnce reports whether kind has not been raised yet in the active
// session and marks it raised.
func (t *SessionTracker) WarnOnce(kind string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return false
	}
	return t.current.warnOnce(kind)
}
