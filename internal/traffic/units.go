package traffic

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Rate is a throughput in bits per second.
type Rate uint64

// Size is a byte count.
type Size uint64

// Rate multipliers follow iproute2: SI prefixes, "bps" suffixes count bytes.
var rateUnits = []struct {
	suffix string
	factor float64
}{
	{"kibit", 1024},
	{"mibit", 1024 * 1024},
	{"gibit", 1024 * 1024 * 1024},
	{"kbit", 1e3},
	{"mbit", 1e6},
	{"gbit", 1e9},
	{"tbit", 1e12},
	{"kbps", 8e3},
	{"mbps", 8e6},
	{"gbps", 8e9},
	{"bit", 1},
	{"bps", 8},
}

// Size multipliers follow iproute2: "k" is 1024 bytes.
var sizeUnits = []struct {
	suffix string
	factor float64
}{
	{"kb", 1024},
	{"mb", 1024 * 1024},
	{"gb", 1024 * 1024 * 1024},
	{"k", 1024},
	{"m", 1024 * 1024},
	{"g", 1024 * 1024 * 1024},
	{"b", 1},
}

// ParseRate parses tc rate notation such as "20mbit" or "512kbit".
// A bare number is bits per second.
func ParseRate(value string) (Rate, error) {
	n, err := parseQuantity(value, "rate", func(s string) (string, float64) {
		for _, u := range rateUnits {
			if strings.HasSuffix(s, u.suffix) {
				return strings.TrimSuffix(s, u.suffix), u.factor
			}
		}
		return s, 1
	})
	return Rate(n), err
}

// ParseSize parses tc size notation such as "125k" or "1500b".
// A bare number is bytes.
func ParseSize(value string) (Size, error) {
	n, err := parseQuantity(value, "size", func(s string) (string, float64) {
		for _, u := range sizeUnits {
			if strings.HasSuffix(s, u.suffix) {
				return strings.TrimSuffix(s, u.suffix), u.factor
			}
		}
		return s, 1
	})
	return Size(n), err
}

func parseQuantity(value, kind string, split func(string) (string, float64)) (uint64, error) {
	s := strings.ToLower(strings.TrimSpace(value))
	if s == "" {
		return 0, fmt.Errorf("empty %s", kind)
	}
	number, factor := split(s)
	f, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", kind, value, err)
	}
	if f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid %s %q: must be positive", kind, value)
	}
	return uint64(math.Round(f * factor)), nil
}

// String renders the rate in the largest exact tc unit.
func (r Rate) String() string {
	v := uint64(r)
	switch {
	case v != 0 && v%1e9 == 0:
		return strconv.FormatUint(v/1e9, 10) + "gbit"
	case v != 0 && v%1e6 == 0:
		return strconv.FormatUint(v/1e6, 10) + "mbit"
	case v != 0 && v%1e3 == 0:
		return strconv.FormatUint(v/1e3, 10) + "kbit"
	default:
		return strconv.FormatUint(v, 10) + "bit"
	}
}

// Human renders the rate for operators, e.g. "20 Mbit/s".
func (r Rate) Human() string {
	return humanize.SI(float64(r), "bit/s")
}

// String renders the size in the largest exact tc unit.
func (s Size) String() string {
	v := uint64(s)
	switch {
	case v != 0 && v%(1024*1024) == 0:
		return strconv.FormatUint(v/(1024*1024), 10) + "m"
	case v != 0 && v%1024 == 0:
		return strconv.FormatUint(v/1024, 10) + "k"
	default:
		return strconv.FormatUint(v, 10) + "b"
	}
}

// Human renders the size for operators, e.g. "125 KiB".
func (s Size) Human() string {
	return humanize.IBytes(uint64(s))
}

// renderDuration formats d with the units tc understands (s, ms, us).
func renderDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0ms"
	case d%time.Second == 0:
		return strconv.FormatInt(int64(d/time.Second), 10) + "s"
	case d%time.Millisecond == 0:
		return strconv.FormatInt(int64(d/time.Millisecond), 10) + "ms"
	default:
		return strconv.FormatInt(int64(d/time.Microsecond), 10) + "us"
	}
}
