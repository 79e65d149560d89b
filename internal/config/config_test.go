package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  name: field-kit\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Server.Name != "field-kit" {
		t.Errorf("Server.Name = %q, want field-kit", cfg.Server.Name)
	}
	if cfg.Device.VendorID != 0x10c4 || cfg.Device.ProductID != 0x0002 {
		t.Errorf("device = %04x:%04x, want 10c4:0002", cfg.Device.VendorID, cfg.Device.ProductID)
	}
	if cfg.Retry.Attempts != 10 || cfg.Retry.Interval != 100*time.Millisecond {
		t.Errorf("retry = %d/%s, want 10/100ms", cfg.Retry.Attempts, cfg.Retry.Interval)
	}
	if cfg.Transfer.USBLag != 20*time.Millisecond || cfg.Transfer.MinimumDelay != 100*time.Millisecond {
		t.Errorf("transfer = %s/%s, want 20ms/100ms", cfg.Transfer.USBLag, cfg.Transfer.MinimumDelay)
	}
	if cfg.Transfer.PollOffset != 500*time.Millisecond {
		t.Errorf("Transfer.PollOffset = %s, want 500ms", cfg.Transfer.PollOffset)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN == "" {
		t.Errorf("database = %s %q, want sqlite with default dsn", cfg.Database.Driver, cfg.Database.DSN)
	}
}

func TestParseValues(t *testing.T) {
	doc := `
device:
  vendor_id: 0x1234
  product_id: 0x0005
  allow_unsupported: true
retry:
  attempts: 3
  interval: 50ms
database:
  driver: postgres
  dsn: postgres://localhost/audiomoth
mqtt:
  broker: tcp://localhost:1883
  qos: 1
`
	cfg, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Device.VendorID != 0x1234 || cfg.Device.ProductID != 5 {
		t.Errorf("device = %04x:%04x, want 1234:0005", cfg.Device.VendorID, cfg.Device.ProductID)
	}
	if !cfg.Device.AllowUnsupported {
		t.Error("AllowUnsupported = false, want true")
	}
	if cfg.Retry.Attempts != 3 || cfg.Retry.Interval != 50*time.Millisecond {
		t.Errorf("retry = %d/%s, want 3/50ms", cfg.Retry.Attempts, cfg.Retry.Interval)
	}
	if cfg.MQTT.QoS != 1 {
		t.Errorf("MQTT.QoS = %d, want 1", cfg.MQTT.QoS)
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"driver", "database:\n  driver: mysql\n"},
		{"postgres without dsn", "database:\n  driver: postgres\n"},
		{"qos", "mqtt:\n  qos: 3\n"},
		{"minimum delay", "transfer:\n  minimum_delay: 2s\n"},
		{"log format", "log:\n  format: xml\n"},
		{"poll offset", "transfer:\n  poll_offset: 1500ms\n"},
		{"yaml", "device: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.doc)); err == nil {
				t.Errorf("Parse(%q) expected error", tt.doc)
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("AUDIOMOTH_SIMULATE", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Parse([]byte("jwt:\n  secret: from-file\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.JWT.Secret != "from-env" {
		t.Errorf("JWT.Secret = %q, want from-env", cfg.JWT.Secret)
	}
	if !cfg.Device.Simulate {
		t.Error("Device.Simulate = false, want true")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "configurator.yml")
	if err := os.WriteFile(path, []byte("api:\n  port: 9000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Addr() != "127.0.0.1:9000" {
		t.Errorf("API.Addr() = %q, want 127.0.0.1:9000", cfg.API.Addr())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("Load(missing) expected error")
	}
}
