// Package telemetry records profile switches as CSV rows and Prometheus
// metrics.
package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tccycle/internal/controller"
	"tccycle/internal/traffic"
)

// Collector bundles the shaping metrics. It implements controller.Recorder
// and traffic.CommandObserver.
type Collector struct {
	gatherer prometheus.Gatherer

	Switches         *prometheus.CounterVec
	CommandFailures  *prometheus.CounterVec
	CommandDurations *prometheus.HistogramVec
	ActiveRate       *prometheus.GaugeVec
	ActiveBurst      *prometheus.GaugeVec
}

// NewCollector registers the shaping metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	switches, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shaping_profile_switches_total",
		Help: "Profile switch attempts, labeled by direction, interface and result.",
	}, []string{"direction", "interface", "result"}), "shaping_profile_switches_total")
	if err != nil {
		return nil, err
	}

	failures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shaping_command_failures_total",
		Help: "External commands that exited nonzero, labeled by command and whether the failure was expected.",
	}, []string{"command", "tolerated"}), "shaping_command_failures_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shaping_command_duration_seconds",
		Help:    "External command latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"command"}), "shaping_command_duration_seconds")
	if err != nil {
		return nil, err
	}

	rate, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shaping_active_rate_bits_per_second",
		Help: "Rate of the last successfully applied profile.",
	}, []string{"direction", "interface"}), "shaping_active_rate_bits_per_second")
	if err != nil {
		return nil, err
	}

	burst, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shaping_active_burst_bytes",
		Help: "Burst of the last successfully applied profile.",
	}, []string{"direction", "interface"}), "shaping_active_burst_bytes")
	if err != nil {
		return nil, err
	}

	return &Collector{
		gatherer:         gatherer,
		Switches:         switches,
		CommandFailures:  failures,
		CommandDurations: durations,
		ActiveRate:       rate,
		ActiveBurst:      burst,
	}, nil
}

// RecordSwitch updates switch counters and, on success, the active gauges.
func (c *Collector) RecordSwitch(event controller.SwitchEvent) {
	if c == nil {
		return
	}
	direction := string(event.Direction)
	result := "applied"
	if !event.Applied {
		result = "failed"
	}
	c.Switches.WithLabelValues(direction, event.Interface, result).Inc()
	if event.Applied {
		c.ActiveRate.WithLabelValues(direction, event.Interface).Set(float64(event.Profile.Rate))
		c.ActiveBurst.WithLabelValues(direction, event.Interface).Set(float64(event.Profile.Burst))
	}
}

// ObserveCommand records command latency and failures.
func (c *Collector) ObserveCommand(result traffic.Result) {
	if c == nil {
		return
	}
	name := commandLabel(result.Command)
	c.CommandDurations.WithLabelValues(name).Observe(result.Duration.Seconds())
	if !result.OK() {
		c.CommandFailures.WithLabelValues(name, fmt.Sprint(result.Command.Tolerate)).Inc()
	}
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// commandLabel keeps label cardinality bounded: the program plus its first
// two arguments, e.g. "tc qdisc add".
func commandLabel(cmd traffic.Command) string {
	label := cmd.Name
	for i, arg := range cmd.Args {
		if i == 2 {
			break
		}
		label += " " + arg
	}
	return label
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
