// Package config parses process configuration from CLI flags, matching
// the teacher codebase's own CLI minimalism (plain hardcoded vars in its
// example programs, no flag-parsing framework) by using the standard
// library's flag package rather than importing one.
package config

import (
	"flag"
	"log/slog"
	"time"
)

// Config holds the process-wide settings the core treats as external
// (design §10.5).
type Config struct {
	Iface           string
	MetricsAddr     string
	LogLevel        slog.Level
	TimeWaitTimeout time.Duration
}

// Parse builds a Config from args (typically os.Args[1:]).
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("tuntcpd", flag.ContinueOnError)

	iface := fs.String("iface", "tun0", "name of the TUN interface to bind")
	metricsAddr := fs.String("metrics-addr", "", "address to serve Prometheus metrics on (empty disables)")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	timeWait := fs.Duration("time-wait-timeout", 60*time.Second, "TIME_WAIT eviction timeout (substitutes for 2*MSL)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(*logLevel)); err != nil {
		return Config{}, err
	}

	return Config{
		Iface:           *iface,
		MetricsAddr:     *metricsAddr,
		LogLevel:        lvl,
		TimeWaitTimeout: *timeWait,
	}, nil
}
