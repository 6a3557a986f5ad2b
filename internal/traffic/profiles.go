package traffic

import (
	"fmt"
	"sort"
	"time"
)

// Shaping holds the parameters shared by every profile.
type Shaping struct {
	// Latency bounds how long a packet may wait in the tbf queue.
	Latency time.Duration
	// Delay is the fixed netem delay on the child qdisc.
	Delay time.Duration
	// Limit is the netem queue depth in packets.
	Limit int
	// FallbackBurst is used for rates that have no table entry.
	FallbackBurst Size
}

// ProfileEntry is one registered (rate, burst) pair.
type ProfileEntry struct {
	Rate  Rate
	Burst Size
}

// Profile is a fully resolved shaping target.
type Profile struct {
	Name     string
	Rate     Rate
	Burst    Size
	Latency  time.Duration
	Delay    time.Duration
	Limit    int
	Fallback bool
}

// ProfileTable maps profile names to shaping parameters. It is read-only
// after construction and may be shared between controllers.
type ProfileTable struct {
	entries map[string]ProfileEntry
	shaping Shaping
}

// Shared shaping defaults taken from the original tc scripts.
const (
	DefaultLatency       = 50 * time.Millisecond
	DefaultDelay         = 50 * time.Millisecond
	DefaultLimit         = 1000
	DefaultFallbackBurst = Size(100 * 1024)
)

// DefaultShaping returns the latency, delay, limit and fallback burst used when
// nothing else is configured.
func DefaultShaping() Shaping {
	return Shaping{
		Latency:       DefaultLatency,
		Delay:         DefaultDelay,
		Limit:         DefaultLimit,
		FallbackBurst: DefaultFallbackBurst,
	}
}

// DefaultEntries returns the built-in rate/burst pairs.
func DefaultEntries() map[string]ProfileEntry {
	return map[string]ProfileEntry{
		"5mbit":  {Rate: 5e6, Burst: 31 * 1024},
		"10mbit": {Rate: 10e6, Burst: 62 * 1024},
		"20mbit": {Rate: 20e6, Burst: 125 * 1024},
		"30mbit": {Rate: 30e6, Burst: 187 * 1024},
		"50mbit": {Rate: 50e6, Burst: 312 * 1024},
	}
}

// NewProfileTable copies entries into a new table.
func NewProfileTable(entries map[string]ProfileEntry, shaping Shaping) *ProfileTable {
	copied := make(map[string]ProfileEntry, len(entries))
	for name, entry := range entries {
		copied[name] = entry
	}
	if shaping.FallbackBurst == 0 {
		shaping.FallbackBurst = DefaultFallbackBurst
	}
	return &ProfileTable{entries: copied, shaping: shaping}
}

// Shaping returns the shared shaping parameters.
func (t *ProfileTable) Shaping() Shaping {
	return t.shaping
}

// Resolve returns the profile for name. Names without an entry are parsed as
// a rate and paired with the fallback burst; that is not an error. Only a
// name that is neither registered nor a rate fails.
func (t *ProfileTable) Resolve(name string) (Profile, error) {
	profile := Profile{
		Name:    name,
		Latency: t.shaping.Latency,
		Delay:   t.shaping.Delay,
		Limit:   t.shaping.Limit,
	}

	if entry, ok := t.entries[name]; ok {
		profile.Rate = entry.Rate
		profile.Burst = entry.Burst
		return profile, nil
	}

	rate, err := ParseRate(name)
	if err != nil {
		return Profile{}, fmt.Errorf("profile %q is not registered and is not a rate: %w", name, err)
	}
	profile.Rate = rate
	profile.Burst = t.shaping.FallbackBurst
	profile.Fallback = true
	return profile, nil
}

// Names returns the registered profile names in rate order.
func (t *ProfileTable) Names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		ri, rj := t.entries[names[i]].Rate, t.entries[names[j]].Rate
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
	return names
}
