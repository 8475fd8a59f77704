package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wsbase-protocol/wsbase-go/pkg/connection"
)

func TestParseFullConfig(t *testing.T) {
	cfg, err := Parse([]byte(`
max_reconnect_attempts: 5
reconnect_deadline: 2m
base_delay: 500ms
max_delay: 10s
auth_expiry_window: 30s
auth_skew_tolerance: 5s
request_default_timeout: 15s
outbound_queue_capacity: 128
max_message_size: 131072
hostname: example.local
port: 9000
cert_file: /tmp/cert.pem
key_file: /tmp/key.pem
generate_cert: true
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.MaxReconnectAttempts != 5 {
		t.Errorf("MaxReconnectAttempts = %d, want 5", cfg.MaxReconnectAttempts)
	}
	if cfg.BaseDelay.Std() != 500*time.Millisecond {
		t.Errorf("BaseDelay = %v, want 500ms", cfg.BaseDelay.Std())
	}
	if cfg.ReconnectDeadline.Std() != 2*time.Minute {
		t.Errorf("ReconnectDeadline = %v, want 2m", cfg.ReconnectDeadline.Std())
	}
	if cfg.OutboundQueueCapacity != 128 {
		t.Errorf("OutboundQueueCapacity = %d, want 128", cfg.OutboundQueueCapacity)
	}
	if cfg.ListenAddr() != "example.local:9000" {
		t.Errorf("ListenAddr() = %q", cfg.ListenAddr())
	}
	if !cfg.TLSEnabled() {
		t.Error("TLSEnabled() = false, want true")
	}

	backoff := cfg.Backoff()
	want := connection.BackoffConfig{
		Initial:     500 * time.Millisecond,
		Max:         10 * time.Second,
		MaxAttempts: 5,
		Deadline:    2 * time.Minute,
	}
	if backoff != want {
		t.Errorf("Backoff() = %+v, want %+v", backoff, want)
	}
}

func TestParseDefaultsSurvivePartialFile(t *testing.T) {
	cfg, err := Parse([]byte("port: 9999\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.BaseDelay.Std() != connection.InitialBackoff {
		t.Errorf("BaseDelay = %v, want default %v", cfg.BaseDelay.Std(), connection.InitialBackoff)
	}
	if cfg.OutboundQueueCapacity != connection.DefaultQueueCapacity {
		t.Errorf("OutboundQueueCapacity = %d, want default", cfg.OutboundQueueCapacity)
	}
}

func TestDurationForms(t *testing.T) {
	cfg, err := Parse([]byte("base_delay: 2\nmax_delay: 1m30s\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.BaseDelay.Std() != 2*time.Second {
		t.Errorf("numeric BaseDelay = %v, want 2s", cfg.BaseDelay.Std())
	}
	if cfg.MaxDelay.Std() != 90*time.Second {
		t.Errorf("MaxDelay = %v, want 1m30s", cfg.MaxDelay.Std())
	}

	cfg, err = Parse([]byte("base_delay: 0.5\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.BaseDelay.Std() != 500*time.Millisecond {
		t.Errorf("fractional BaseDelay = %v, want 500ms", cfg.BaseDelay.Std())
	}

	if _, err := Parse([]byte("base_delay: fast\n")); err == nil {
		t.Error("Parse() accepted a malformed duration")
	}
	if _, err := Parse([]byte("base_delay: [1, 2]\n")); err == nil {
		t.Error("Parse() accepted a non-scalar duration")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative attempts", "max_reconnect_attempts: -1"},
		{"base exceeds max", "base_delay: 10s\nmax_delay: 1s"},
		{"port out of range", "port: 70000"},
		{"cert without key", "cert_file: /tmp/cert.pem"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Errorf("Parse(%q) accepted invalid config", tt.yaml)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("hostname: box\nport: 4000\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr() != "box:4000" {
		t.Errorf("ListenAddr() = %q, want box:4000", cfg.ListenAddr())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() of missing file succeeded")
	}
}
