package device

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleepPolicy(attempts int) (RetryPolicy, *[]time.Duration) {
	var slept []time.Duration
	return RetryPolicy{
		Attempts: attempts,
		Interval: 100 * time.Millisecond,
		Rand:     func() float64 { return 0.5 },
		Sleep:    func(d time.Duration) { slept = append(slept, d) },
	}, &slept
}

func failingOp(failures int, err error) (func(context.Context) (int, error), *int) {
	calls := 0
	return func(context.Context) (int, error) {
		calls++
		if calls <= failures {
			return 0, err
		}
		return 42, nil
	}, &calls
}

func TestRetrySucceedsOnLastAttempt(t *testing.T) {
	policy, slept := noSleepPolicy(10)
	op, calls := failingOp(9, errors.New("busy"))

	got, err := Retry(context.Background(), policy, "getTime", op)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if got != 42 {
		t.Errorf("Retry() = %d, want 42", got)
	}
	if *calls != 10 {
		t.Errorf("calls = %d, want 10", *calls)
	}
	if len(*slept) != 9 {
		t.Errorf("sleeps = %d, want 9", len(*slept))
	}
}

func TestRetryExhausted(t *testing.T) {
	policy, slept := noSleepPolicy(10)
	cause := errors.New("busy")
	op, calls := failingOp(10, cause)

	_, err := Retry(context.Background(), policy, "getTime", op)

	var ue *UnreachableError
	if !errors.As(err, &ue) {
		t.Fatalf("Retry() error = %v, want *UnreachableError", err)
	}
	if ue.Attempts != 10 {
		t.Errorf("Attempts = %d, want 10", ue.Attempts)
	}
	if !errors.Is(err, cause) {
		t.Errorf("error does not wrap the last failure")
	}
	if *calls != 10 {
		t.Errorf("calls = %d, want 10", *calls)
	}
	if len(*slept) != 9 {
		t.Errorf("sleeps = %d, want 9", len(*slept))
	}
}

func TestRetryNoDeviceStopsImmediately(t *testing.T) {
	policy, slept := noSleepPolicy(10)
	op, calls := failingOp(10, ErrNoDevice)

	_, err := Retry(context.Background(), policy, "getID", op)

	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("Retry() error = %v, want *ConnectionError", err)
	}
	if *calls != 1 {
		t.Errorf("calls = %d, want 1", *calls)
	}
	if len(*slept) != 0 {
		t.Errorf("sleeps = %d, want 0", len(*slept))
	}
}

func TestRetryBackoffRange(t *testing.T) {
	tests := []struct {
		rnd  float64
		want time.Duration
	}{
		{0, 50 * time.Millisecond},
		{0.5, 75 * time.Millisecond},
		{1, 100 * time.Millisecond},
	}

	for _, tt := range tests {
		p := RetryPolicy{Interval: 100 * time.Millisecond, Rand: func() float64 { return tt.rnd }}
		if got := p.Backoff(); got != tt.want {
			t.Errorf("Backoff() with rand %v = %s, want %s", tt.rnd, got, tt.want)
		}
	}

	p := DefaultRetryPolicy()
	for i := 0; i < 100; i++ {
		d := p.Backoff()
		if d < 50*time.Millisecond || d > 100*time.Millisecond {
			t.Fatalf("Backoff() = %s, outside [50ms, 100ms]", d)
		}
	}
}

func TestRetryAgainstStub(t *testing.T) {
	stub := NewStubTransport("24F3190C5FD8E3A1")
	stub.FailNext(3)
	policy, _ := noSleepPolicy(10)

	id, err := Retry(context.Background(), policy, "getID", stub.ID)
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if id != "24F3190C5FD8E3A1" {
		t.Errorf("id = %q", id)
	}

	stub.SetAttached(false)
	_, err = Retry(context.Background(), policy, "getID", stub.ID)
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Errorf("detached: error = %v, want *ConnectionError", err)
	}
}
