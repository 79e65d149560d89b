package device

import (
	"context"
	"testing"
	"time"

	"github.com/openacoustics/audiomoth-configurator/pkg/audiomoth"
)

func TestExclusive(t *testing.T) {
	stub := NewStubTransport("A")
	ex := NewExclusive(stub)

	tr, err := ex.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if tr != Transport(stub) {
		t.Fatal("Acquire() returned a different transport")
	}

	if _, ok := ex.TryAcquire(); ok {
		t.Fatal("TryAcquire() succeeded while held")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := ex.Acquire(ctx); err == nil {
		t.Fatal("Acquire() succeeded while held")
	}

	ex.Release()
	if _, ok := ex.TryAcquire(); !ok {
		t.Fatal("TryAcquire() failed after Release")
	}
	ex.Release()
}

func TestSessionTracker(t *testing.T) {
	tracker := NewSessionTracker()
	now := time.Now()

	if _, ok := tracker.Current(); ok {
		t.Fatal("Current() reported a session before any observation")
	}
	if tracker.WarnOnce(WarnUpdateRecommended) {
		t.Fatal("WarnOnce() without session = true")
	}

	s, changed := tracker.Observe("A", audiomoth.Version{1, 0, 0}, "AudioMoth-MultiGain", now)
	if !changed || s.ID != "A" {
		t.Fatalf("Observe(A) = %+v, changed %v", s, changed)
	}
	if !tracker.WarnOnce(WarnUpdateRecommended) {
		t.Error("first WarnOnce() = false")
	}
	if tracker.WarnOnce(WarnUpdateRecommended) {
		t.Error("second WarnOnce() = true")
	}

	s, changed = tracker.Observe("A", audiomoth.Version{1, 0, 1}, "AudioMoth-MultiGain", now)
	if changed {
		t.Error("same ID started a new session")
	}
	if s.Firmware.Version != (audiomoth.Version{1, 0, 1}) {
		t.Errorf("firmware not refreshed: %v", s.Firmware.Version)
	}
	if tracker.WarnOnce(WarnUpdateRecommended) {
		t.Error("warning raised twice in one session")
	}

	_, changed = tracker.Observe("B", audiomoth.Version{1, 0, 0}, "AudioMoth-MultiGain", now)
	if !changed {
		t.Error("new ID did not start a new session")
	}
	if !tracker.WarnOnce(WarnUpdateRecommended) {
		t.Error("warnings not reset for new session")
	}
}

func TestBatteryStateString(t *testing.T) {
	tests := []struct {
		state BatteryState
		want  string
	}{
		{0, "< 3.6V"},
		{1, "3.6V"},
		{10, "4.5V"},
		{14, "4.9V"},
		{15, "> 4.9V"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("BatteryState(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

func TestBatteryStateText(t *testing.T) {
	for b := BatteryState(0); b <= 15; b++ {
		text, _ := b.MarshalText()
		var got BatteryState
		if err := got.UnmarshalText(text); err != nil {
			t.Fatalf("UnmarshalText(%q) error = %v", text, err)
		}
		if got != b {
			t.Errorf("UnmarshalText(%q) = %d, want %d", text, got, b)
		}
	}

	for _, bad := range []string{"", "4.2", "3.0V", "full"} {
		var got BatteryState
		if err := got.UnmarshalText([]byte(bad)); err == nil {
			t.Errorf("UnmarshalText(%q) succeeded", bad)
		}
	}
}

func TestReplyParsers(t *testing.T) {
	reply := make([]byte, reportSize)
	reply[0] = msgGetTime
	reply[1], reply[2], reply[3], reply[4] = 0x00, 0xE1, 0xF5, 0x05 // 100000000

	ts, err := parseTime(reply)
	if err != nil {
		t.Fatalf("parseTime() error = %v", err)
	}
	if ts.Unix() != 100000000 {
		t.Errorf("parseTime() = %d, want 100000000", ts.Unix())
	}

	reply[0] = msgGetUID
	copy(reply[1:], []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0xAB})
	id, err := parseID(reply)
	if err != nil {
		t.Fatalf("parseID() error = %v", err)
	}
	if id != "AB07060504030201" {
		t.Errorf("parseID() = %q, want AB07060504030201", id)
	}

	reply[0] = msgGetFirmwareVersion
	copy(reply[1:], []byte{1, 0, 1})
	v, err := parseFirmwareVersion(reply)
	if err != nil {
		t.Fatalf("parseFirmwareVersion() error = %v", err)
	}
	if v != (audiomoth.Version{1, 0, 1}) {
		t.Errorf("parseFirmwareVersion() = %v", v)
	}

	desc := make([]byte, reportSize)
	desc[0] = msgGetFirmwareDescription
	copy(desc[1:], "AudioMoth-MultiGain")
	if got := parseDescription(desc); got != "AudioMoth-MultiGain" {
		t.Errorf("parseDescription() = %q", got)
	}

	if _, err := checkReply(msgGetTime, []byte{msgGetUID}); err == nil {
		t.Error("checkReply() accepted mismatched type")
	}
	if _, err := parseTime([]byte{msgGetTime, 1}); err == nil {
		t.Error("parseTime() accepted short reply")
	}
}

func TestStubEcho(t *testing.T) {
	stub := NewStubTransport("A")
	packet := []byte{1, 2, 3, 4, 5}

	reply, err := stub.SetPacket(context.Background(), packet)
	if err != nil {
		t.Fatalf("SetPacket() error = %v", err)
	}
	if reply[0] != msgSetAppPacket {
		t.Errorf("reply header = %#x", reply[0])
	}
	for i, b := range packet {
		if reply[i+1] != b {
			t.Errorf("reply[%d] = %d, want %d", i+1, reply[i+1], b)
		}
	}

	stub.CorruptEcho(2)
	reply, _ = stub.SetPacket(context.Background(), packet)
	if reply[3] == packet[2] {
		t.Error("CorruptEcho(2) left byte unchanged")
	}
	if stub.PacketSets() != 2 {
		t.Errorf("PacketSets() = %d, want 2", stub.PacketSets())
	}
}
