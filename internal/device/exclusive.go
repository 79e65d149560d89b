package device

import "context"

// Exclusive hands out a Transport to one holder at a time, so at most one
// HID transaction sequence is in flight.
type Exclusive struct {
	transport Transport
	slot      chan struct{}
}

// NewExclusive wraps t.
func NewExclusive(t Transport) *Exclusive {
	return &Exclusive{transport: t, slot: make(chan struct{}, 1)}
}

// Acquire blocks until the transport is free or ctx is done.
func (e *Exclusive) Acquire(ctx context.Context) (Transport, error) {
	select {
	case e.slot <- struct{}{}:
		return e.transport, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire takes the transport only if it is free.
func (e *Exclusive) TryAcquire() (Transport, bool) {
	select {
	case e.slot <- struct{}{}:
		return e.transport, true
	default:
		return nil, false
	}
}

// Release returns the transport taken by Acquire or TryAcquire.
func (e *Exclusive) Release() {
	select {
	case <-e.slot:
	default:
		panic("device: Release without Acquire")
	}
}
