package config

import (
	"time"

	"tccycle/internal/traffic"
)

const (
	// MaxInterfaceNameLen is IFNAMSIZ minus the trailing NUL.
	MaxInterfaceNameLen = 15

	// DefaultDwell is how long each profile stays installed.
	DefaultDwell = 2 * time.Minute

	// DefaultTCCommandTimeout bounds every tc, ip and modprobe invocation.
	DefaultTCCommandTimeout = traffic.DefaultCommandTimeout

	// DefaultSettleDelay separates the egress root delete from the re-add.
	DefaultSettleDelay = 200 * time.Millisecond

	// DefaultTeardownTimeout bounds cleanup after cancellation.
	DefaultTeardownTimeout = 5 * time.Second

	DefaultLatency   = traffic.DefaultLatency
	DefaultDelay     = traffic.DefaultDelay
	DefaultLimit     = traffic.DefaultLimit
	DefaultIFBDevice = traffic.DefaultIFBDevice
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// DefaultConfigPath is searched when no path is given.
	DefaultConfigPath = "/etc/tccycle/config.yaml"
)

// Environment variables that override file values.
const (
	EnvConfigPath = "TCCYCLE_CONFIG"
	EnvInterface  = "TCCYCLE_INTERFACE"
	EnvDirection  = "TCCYCLE_DIRECTION"
	EnvIFBDevice  = "TCCYCLE_IFB_DEVICE"
	EnvDwell      = "TCCYCLE_DWELL"
	EnvLogLevel   = "TCCYCLE_LOG_LEVEL"
)

// DefaultSequence is the built-in profile cycle.
func DefaultSequence() []string {
	return []string{"20mbit", "30mbit", "50mbit", "30mbit", "10mbit", "5mbit"}
}
