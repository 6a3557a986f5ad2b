package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// ShapingService runs one shaping loop until its context ends.
type ShapingService interface {
	Run(ctx context.Context) error
}

// WatchService reacts to link changes until its context ends.
type WatchService interface {
	Run(ctx context.Context) error
}

// MetricsService exposes metrics until its context ends.
type MetricsService interface {
	Serve(ctx context.Context) error
}

// Dependencies groups the services required by the daemon.
type Dependencies struct {
	Controllers []ShapingService
	Watcher     WatchService
	Metrics     MetricsService
	Logger      *slog.Logger
}

// Daemon coordinates the shaping loops and their supporting services.
type Daemon struct {
	controllers []ShapingService
	watcher     WatchService
	metrics     MetricsService
	logger      *slog.Logger
}

// NewDaemon constructs a Daemon with validated dependencies.
func NewDaemon(deps Dependencies) *Daemon {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	return &Daemon{
		controllers: deps.Controllers,
		watcher:     deps.Watcher,
		metrics:     deps.Metrics,
		logger:      deps.Logger,
	}
}

// Run blocks until every controller has returned. Controllers return nil on
// cancellation after tearing down; a controller error cancels the others.
// Supporting services stop once the controllers are done.
func (d *Daemon) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			err = fmt.Errorf("daemon panic: %v", r)
			if d.logger != nil {
				d.logger.Error("daemon panic recovered",
					slog.Any("panic", r),
					slog.String("stack", string(stack)))
			}
		}
	}()

	if ctx == nil {
		return errors.New("context must not be nil")
	}
	if len(d.controllers) == 0 {
		return errors.New("no shaping controllers configured")
	}

	supportCtx, stopSupport := context.WithCancel(ctx)
	defer stopSupport()

	support, supportCtx := errgroup.WithContext(supportCtx)
	if d.watcher != nil {
		support.Go(func() error {
			if err := d.watcher.Run(supportCtx); err != nil {
				return fmt.Errorf("link watcher: %w", err)
			}
			return nil
		})
	}
	if d.metrics != nil {
		support.Go(func() error {
			if err := d.metrics.Serve(supportCtx); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	// A failed supporting service is logged but does not stop shaping.
	supportDone := make(chan error, 1)
	go func() { supportDone <- support.Wait() }()

	shaping, shapingCtx := errgroup.WithContext(ctx)
	for _, controller := range d.controllers {
		shaping.Go(func() error { return controller.Run(shapingCtx) })
	}
	shapingErr := shaping.Wait()

	stopSupport()
	if supportErr := <-supportDone; supportErr != nil && !errors.Is(supportErr, context.Canceled) {
		d.logger.Error("supporting service failed", slog.String("error", supportErr.Error()))
	}

	if shapingErr != nil {
		d.logger.Error("shaping stopped", slog.String("error", shapingErr.Error()))
		return shapingErr
	}
	return nil
}
