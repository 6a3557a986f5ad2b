package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"tccycle/internal/traffic"
)

// Direction values accepted by Config.Direction.
const (
	DirectionEgress  = string(traffic.DirectionEgress)
	DirectionIngress = string(traffic.DirectionIngress)
	DirectionBoth    = "both"
)

// Config represents the top-level tccycle configuration.
type Config struct {
	Interface  string           `yaml:"interface" json:"interface"`
	Direction  string           `yaml:"direction" json:"direction"`
	IFBDevice  string           `yaml:"ifb_device" json:"ifb_device"`
	Dwell      time.Duration    `yaml:"dwell" json:"dwell"`
	Sequence   []string         `yaml:"sequence" json:"sequence"`
	Profiles   []ProfileConfig  `yaml:"profiles" json:"profiles"`
	Shaping    ShapingConfig    `yaml:"shaping" json:"shaping"`
	Commands   CommandConfig    `yaml:"commands" json:"commands"`
	Controller ControllerConfig `yaml:"controller" json:"controller"`
	Watcher    WatcherConfig    `yaml:"watcher" json:"watcher"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" json:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// ProfileConfig registers one profile. Rate defaults to the name parsed as
// a tc rate.
type ProfileConfig struct {
	Name  string `yaml:"name" json:"name"`
	Rate  string `yaml:"rate,omitempty" json:"rate,omitempty"`
	Burst string `yaml:"burst" json:"burst"`
}

// ShapingConfig holds the parameters shared by every profile.
type ShapingConfig struct {
	Latency       time.Duration `yaml:"latency" json:"latency"`
	Delay         time.Duration `yaml:"delay" json:"delay"`
	Limit         int           `yaml:"limit" json:"limit"`
	FallbackBurst string        `yaml:"fallback_burst" json:"fallback_burst"`
}

// CommandConfig controls external command execution. A zero timeout leaves
// commands unbounded and a zero settle delay skips the pause.
type CommandConfig struct {
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	SettleDelay time.Duration `yaml:"settle_delay" json:"settle_delay"`
}

// ControllerConfig controls the shaping loop.
type ControllerConfig struct {
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures" json:"max_consecutive_failures"`
	TeardownTimeout        time.Duration `yaml:"teardown_timeout" json:"teardown_timeout"`
}

// WatcherConfig toggles the link watcher.
type WatcherConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// TelemetryConfig selects telemetry sinks. Empty values disable them.
type TelemetryConfig struct {
	CSVPath        string `yaml:"csv_path" json:"csv_path"`
	MetricsAddress string `yaml:"metrics_address" json:"metrics_address"`
}

// LoggingConfig selects log level and format.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Default returns Config populated with recommended defaults. Interface is
// left empty and must be supplied.
func Default() Config {
	return Config{
		Direction: DirectionEgress,
		IFBDevice: DefaultIFBDevice,
		Dwell:     DefaultDwell,
		Sequence:  DefaultSequence(),
		Shaping: ShapingConfig{
			Latency:       DefaultLatency,
			Delay:         DefaultDelay,
			Limit:         DefaultLimit,
			FallbackBurst: traffic.DefaultFallbackBurst.String(),
		},
		Commands: CommandConfig{
			Timeout:     DefaultTCCommandTimeout,
			SettleDelay: DefaultSettleDelay,
		},
		Controller: ControllerConfig{
			TeardownTimeout: DefaultTeardownTimeout,
		},
		Watcher: WatcherConfig{Enabled: true},
		Logging: LoggingConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// ApplyDefaults normalises missing or zero values.
func (c *Config) ApplyDefaults() {
	if c == nil {
		return
	}
	c.Interface = strings.TrimSpace(c.Interface)
	c.Direction = strings.ToLower(strings.TrimSpace(c.Direction))
	if c.Direction == "" {
		c.Direction = DirectionEgress
	}
	if c.IFBDevice == "" {
		c.IFBDevice = DefaultIFBDevice
	}
	if c.Dwell <= 0 {
		c.Dwell = DefaultDwell
	}
	if len(c.Sequence) == 0 {
		c.Sequence = DefaultSequence()
	}

	if c.Shaping.Latency <= 0 {
		c.Shaping.Latency = DefaultLatency
	}
	if c.Shaping.Limit <= 0 {
		c.Shaping.Limit = DefaultLimit
	}
	if c.Shaping.FallbackBurst == "" {
		c.Shaping.FallbackBurst = traffic.DefaultFallbackBurst.String()
	}

	if c.Controller.TeardownTimeout <= 0 {
		c.Controller.TeardownTimeout = DefaultTeardownTimeout
	}

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// Validate performs boundary checks and returns the first error encountered.
// Every sequence entry must be a registered profile or a parseable rate.
func (c Config) Validate() error {
	if c.Interface == "" {
		return fmt.Errorf("interface must be set")
	}
	if len(c.Interface) > MaxInterfaceNameLen {
		return fmt.Errorf("interface %q exceeds %d characters", c.Interface, MaxInterfaceNameLen)
	}
	if _, err := c.Directions(); err != nil {
		return err
	}
	if c.IFBDevice == "" || len(c.IFBDevice) > MaxInterfaceNameLen {
		return fmt.Errorf("ifb_device must be 1-%d characters", MaxInterfaceNameLen)
	}
	if c.IFBDevice == c.Interface {
		return fmt.Errorf("ifb_device must differ from interface")
	}
	if c.Dwell <= 0 {
		return fmt.Errorf("dwell must be positive")
	}
	if len(c.Sequence) == 0 {
		return fmt.Errorf("sequence must not be empty")
	}
	if c.Shaping.Limit <= 0 {
		return fmt.Errorf("shaping.limit must be positive")
	}
	if c.Shaping.Latency <= 0 {
		return fmt.Errorf("shaping.latency must be positive")
	}
	if c.Shaping.Delay < 0 {
		return fmt.Errorf("shaping.delay must not be negative")
	}
	if c.Commands.Timeout < 0 || c.Commands.SettleDelay < 0 {
		return fmt.Errorf("commands timeout and settle_delay must not be negative")
	}
	if c.Controller.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("controller.max_consecutive_failures must not be negative")
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}

	table, err := c.ProfileTable()
	if err != nil {
		return err
	}
	for i, name := range c.Sequence {
		if _, err := table.Resolve(name); err != nil {
			return fmt.Errorf("sequence[%d]: %w", i, err)
		}
	}
	return nil
}

// Directions expands Direction into the backends to run.
func (c Config) Directions() ([]traffic.Direction, error) {
	if c.Direction == DirectionBoth {
		return []traffic.Direction{traffic.DirectionEgress, traffic.DirectionIngress}, nil
	}
	direction, err := traffic.ParseDirection(c.Direction)
	if err != nil {
		return nil, fmt.Errorf("direction must be egress, ingress or both: %w", err)
	}
	return []traffic.Direction{direction}, nil
}

// ProfileTable builds the read-only profile table. The built-in table is
// used when no profiles are configured.
func (c Config) ProfileTable() (*traffic.ProfileTable, error) {
	fallback, err := traffic.ParseSize(c.Shaping.FallbackBurst)
	if err != nil {
		return nil, fmt.Errorf("shaping.fallback_burst: %w", err)
	}
	shaping := traffic.Shaping{
		Latency:       c.Shaping.Latency,
		Delay:         c.Shaping.Delay,
		Limit:         c.Shaping.Limit,
		FallbackBurst: fallback,
	}

	if len(c.Profiles) == 0 {
		return traffic.NewProfileTable(traffic.DefaultEntries(), shaping), nil
	}

	entries := make(map[string]traffic.ProfileEntry, len(c.Profiles))
	for i, p := range c.Profiles {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return nil, fmt.Errorf("profiles[%d]: name must be set", i)
		}
		if _, dup := entries[name]; dup {
			return nil, fmt.Errorf("profiles[%d]: duplicate profile %q", i, name)
		}
		rateText := p.Rate
		if rateText == "" {
			rateText = name
		}
		rate, err := traffic.ParseRate(rateText)
		if err != nil {
			return nil, fmt.Errorf("profiles[%d] %s: %w", i, name, err)
		}
		burst, err := traffic.ParseSize(p.Burst)
		if err != nil {
			return nil, fmt.Errorf("profiles[%d] %s: burst: %w", i, name, err)
		}
		entries[name] = traffic.ProfileEntry{Rate: rate, Burst: burst}
	}
	return traffic.NewProfileTable(entries, shaping), nil
}

// SequenceCopy returns a copy of the configured sequence.
func (c Config) SequenceCopy() []string {
	return append([]string(nil), c.Sequence...)
}

// ParseLevel maps a level name onto slog.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}
