package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"tccycle/internal/clock"
	"tccycle/internal/config"
	"tccycle/internal/controller"
	terr "tccycle/internal/errors"
	"tccycle/internal/telemetry"
	"tccycle/internal/traffic"
)

// Options replaces host dependencies, mainly for tests. Zero values select
// the real implementations.
type Options struct {
	Executor   traffic.CommandExecutor
	Netlink    traffic.NetlinkClient
	Clock      clock.Clock
	Registerer prometheus.Registerer
}

// Stack is the assembled set of services for one configuration.
type Stack struct {
	Daemon      *Daemon
	Backends    []traffic.Backend
	Controllers []*controller.Controller
	Collector   *telemetry.Collector
	closers     []io.Closer
}

// Close releases telemetry sinks.
func (s *Stack) Close() error {
	var errs terr.MultiError
	for _, closer := range s.closers {
		errs.Add(closer.Close())
	}
	return errs.ErrorOrNil()
}

// Teardown removes shaping installed by every backend.
func (s *Stack) Teardown(ctx context.Context) {
	for _, backend := range s.Backends {
		_ = backend.Teardown(ctx)
	}
}

// Build assembles backends, controllers and supporting services from a
// validated configuration.
func Build(cfg config.Config, logger *slog.Logger, opts Options) (*Stack, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Netlink == nil {
		opts.Netlink = traffic.DefaultNetlinkClient()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Registerer == nil {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts.Registerer = registry
	}

	table, err := cfg.ProfileTable()
	if err != nil {
		return nil, terr.WrapCritical(err, "build_profiles")
	}
	directions, err := cfg.Directions()
	if err != nil {
		return nil, terr.WrapCritical(err, "build_directions")
	}
	if err := traffic.LookupInterface(opts.Netlink, cfg.Interface); err != nil {
		return nil, terr.WrapCritical(err, "lookup_interface", terr.ErrorContext{Interface: cfg.Interface})
	}

	collector, err := telemetry.NewCollector(opts.Registerer)
	if err != nil {
		return nil, terr.WrapCritical(err, "register_metrics")
	}

	stack := &Stack{Collector: collector}
	recorders := []controller.Recorder{collector}
	if cfg.Telemetry.CSVPath != "" {
		csvRecorder, err := telemetry.OpenCSVFile(logger, cfg.Telemetry.CSVPath)
		if err != nil {
			return nil, terr.WrapCritical(err, "open_telemetry", terr.ErrorContext{Value: cfg.Telemetry.CSVPath})
		}
		stack.closers = append(stack.closers, csvRecorder)
		recorders = append(recorders, csvRecorder)
	}

	runner := traffic.NewRunner(logger, opts.Executor, traffic.RunnerSettings{
		Timeout:  cfg.Commands.Timeout,
		Observer: collector,
	})
	settings := traffic.Settings{
		Interface:   cfg.Interface,
		IFBDevice:   cfg.IFBDevice,
		SettleDelay: cfg.Commands.SettleDelay,
		Clock:       opts.Clock,
	}

	var watcher *traffic.LinkWatcher
	var services []ShapingService
	for _, direction := range directions {
		var backend traffic.Backend
		switch direction {
		case traffic.DirectionIngress:
			ingress := traffic.NewIngress(logger, runner, opts.Netlink, settings)
			if cfg.Watcher.Enabled {
				if watcher == nil {
					watcher = traffic.NewLinkWatcher(logger, opts.Netlink)
				}
				watcher.Watch(ingress, cfg.Interface, ingress.IFBDevice())
			}
			backend = ingress
		default:
			backend = traffic.NewEgress(logger, runner, settings)
		}

		ctrl, err := controller.New(logger, backend, table, controller.Settings{
			Sequence:               cfg.SequenceCopy(),
			Dwell:                  cfg.Dwell,
			MaxConsecutiveFailures: cfg.Controller.MaxConsecutiveFailures,
			TeardownTimeout:        cfg.Controller.TeardownTimeout,
			Clock:                  opts.Clock,
			Recorders:              recorders,
		})
		if err != nil {
			_ = stack.Close()
			return nil, terr.WrapCritical(fmt.Errorf("%s controller: %w", direction, err), "build_controller")
		}
		stack.Backends = append(stack.Backends, backend)
		stack.Controllers = append(stack.Controllers, ctrl)
		services = append(services, ctrl)
	}

	deps := Dependencies{Controllers: services, Logger: logger}
	if watcher != nil {
		deps.Watcher = watcher
	}
	if cfg.Telemetry.MetricsAddress != "" {
		deps.Metrics = telemetry.NewServer(logger, cfg.Telemetry.MetricsAddress, collector)
	}
	stack.Daemon = NewDaemon(deps)
	return stack, nil
}
