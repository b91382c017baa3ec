// Package config builds the immutable, env-derived configuration record
// every component of boardd is handed by reference at startup, per the
// spec's "global flags" design note: spoofing_started, fake_send, and
// loopback_can never vary after startup and are never read from the
// environment again once main() has built the Config.
package config

import (
	"flag"
	"log/slog"
	"os"
)

// Config is built once in main() and passed by reference to every
// component. Nothing in this struct changes after New returns.
type Config struct {
	// SpoofIgnition forces published health reports to report ignition on,
	// set by the presence of STARTED.
	SpoofIgnition bool
	// FakeSend disables the send pump's bulk-out transfer while leaving all
	// other side effects (subscription drain) intact, set by FAKESEND.
	FakeSend bool
	// Loopback enables device-side CAN loopback on open, set by
	// BOARDD_LOOPBACK.
	Loopback bool

	// Debug raises the log level to debug.
	Debug bool
	// HealthAddr is the listen address for the HTTP health server.
	HealthAddr string
	// MQTTBroker is the loopback broker address backing the message bus.
	MQTTBroker string
}

const (
	defaultHealthAddr = ":8080"
	defaultMQTTBroker = "tcp://127.0.0.1:1883"
)

// New builds a Config from the process environment and command-line flags.
// It also installs the slog default logger at the resolved level, mirroring
// cmd/oriond's startup sequence.
func New(args []string) (*Config, error) {
	fs := flag.NewFlagSet("boardd", flag.ContinueOnError)
	debug := fs.Bool("debug", false, "enable debug logging")
	healthAddr := fs.String("health-addr", defaultHealthAddr, "listen address for the HTTP health server")
	mqttBroker := fs.String("mqtt-broker", defaultMQTTBroker, "address of the loopback message-bus broker")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &Config{
		SpoofIgnition: envSet("STARTED"),
		FakeSend:      envSet("FAKESEND"),
		Loopback:      envSet("BOARDD_LOOPBACK"),
		Debug:         *debug,
		HealthAddr:    *healthAddr,
		MQTTBroker:    *mqttBroker,
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	return cfg, nil
}

func envSet(name string) bool {
	_, ok := os.LookupEnv(name)
	return ok
}
