package traffic

import (
	"time"

	"tccycle/internal/clock"
)

// RunnerSettings configures a Runner.
type RunnerSettings struct {
	// Timeout bounds every external invocation. Zero disables the bound.
	Timeout  time.Duration
	Observer CommandObserver
}

// Settings encapsulates the inputs required to build a backend.
type Settings struct {
	Interface string
	IFBDevice string
	// SettleDelay is the pause between deleting and re-adding the egress
	// root qdisc. Zero skips the pause.
	SettleDelay time.Duration
	Clock       clock.Clock
}

// DefaultCommandTimeout bounds every tc, ip and modprobe invocation.
const DefaultCommandTimeout = 3 * time.Second

func (s Settings) withDefaults() Settings {
	if s.IFBDevice == "" {
		s.IFBDevice = DefaultIFBDevice
	}
	if s.SettleDelay < 0 {
		s.SettleDelay = 0
	}
	if s.Clock == nil {
		s.Clock = clock.Real()
	}
	return s
}
