package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if cfg.Iface != "tun0" {
		t.Errorf("default Iface = %q, want tun0", cfg.Iface)
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("default MetricsAddr = %q, want empty", cfg.MetricsAddr)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("default LogLevel = %v, want Info", cfg.LogLevel)
	}
	if cfg.TimeWaitTimeout != 60*time.Second {
		t.Errorf("default TimeWaitTimeout = %v, want 60s", cfg.TimeWaitTimeout)
	}
}

func TestParseOverrides(t *testing.T) {
	cfg, err := Parse([]string{
		"-iface", "tun7",
		"-metrics-addr", ":9100",
		"-log-level", "debug",
		"-time-wait-timeout", "5s",
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Iface != "tun7" {
		t.Errorf("Iface = %q, want tun7", cfg.Iface)
	}
	if cfg.MetricsAddr != ":9100" {
		t.Errorf("MetricsAddr = %q, want :9100", cfg.MetricsAddr)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want Debug", cfg.LogLevel)
	}
	if cfg.TimeWaitTimeout != 5*time.Second {
		t.Errorf("TimeWaitTimeout = %v, want 5s", cfg.TimeWaitTimeout)
	}
}

func TestParseRejectsBadLogLevel(t *testing.T) {
	if _, err := Parse([]string{"-log-level", "noisy"}); err == nil {
		t.Fatal("Parse with invalid log level should return an error")
	}
}

func TestParseRejectsUnknownFlag(t *testing.T) {
	if _, err := Parse([]string{"-bogus-flag"}); err == nil {
		t.Fatal("Parse with unknown flag should return an error")
	}
}
