// Package controller cycles a shaping backend through a sequence of
// profiles on a fixed dwell.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tccycle/internal/clock"
	terr "tccycle/internal/errors"
	"tccycle/internal/traffic"
)

const defaultTeardownTimeout = 5 * time.Second

// SwitchEvent describes one profile switch attempt.
type SwitchEvent struct {
	Time      time.Time
	Direction traffic.Direction
	Interface string
	Step      int
	Profile   traffic.Profile
	Applied   bool
	Err       error
}

// Recorder receives every switch attempt.
type Recorder interface {
	RecordSwitch(SwitchEvent)
}

// Status is a snapshot of controller progress.
type Status struct {
	Step                int
	Target              string
	SwitchedAt          time.Time
	ConsecutiveFailures int
}

// Settings configures a Controller.
type Settings struct {
	Sequence []string
	Dwell    time.Duration
	// MaxConsecutiveFailures ends Run with a critical error after that many
	// failed applies in a row. Zero never escalates.
	MaxConsecutiveFailures int
	TeardownTimeout        time.Duration
	Clock                  clock.Clock
	Recorders              []Recorder
}

// Controller drives one backend.
type Controller struct {
	logger   *slog.Logger
	backend  traffic.Backend
	profiles *traffic.ProfileTable
	settings Settings

	mu     sync.RWMutex
	status Status
}

// New constructs a Controller. The sequence must be non-empty.
func New(logger *slog.Logger, backend traffic.Backend, profiles *traffic.ProfileTable, settings Settings) (*Controller, error) {
	if backend == nil {
		return nil, errors.New("backend must not be nil")
	}
	if profiles == nil {
		return nil, errors.New("profile table must not be nil")
	}
	if len(settings.Sequence) == 0 {
		return nil, errors.New("sequence must not be empty")
	}
	if settings.Dwell <= 0 {
		return nil, fmt.Errorf("dwell must be positive, got %s", settings.Dwell)
	}
	if settings.MaxConsecutiveFailures < 0 {
		return nil, fmt.Errorf("max consecutive failures must not be negative, got %d", settings.MaxConsecutiveFailures)
	}
	if settings.Clock == nil {
		settings.Clock = clock.Real()
	}
	if settings.TeardownTimeout <= 0 {
		settings.TeardownTimeout = defaultTeardownTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	settings.Sequence = append([]string(nil), settings.Sequence...)

	return &Controller{
		logger: logger.With(
			slog.String("direction", string(backend.Direction())),
			slog.String("interface", backend.Interface())),
		backend:  backend,
		profiles: profiles,
		settings: settings,
	}, nil
}

// Status returns the current progress snapshot.
func (c *Controller) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Run cycles through the sequence until ctx is cancelled, then tears the
// backend down and returns nil. It returns early only on a critical error.
func (c *Controller) Run(ctx context.Context) error {
	first, err := c.profiles.Resolve(c.settings.Sequence[0])
	if err != nil {
		return terr.WrapCritical(err, "resolve_profile", terr.ErrorContext{Profile: c.settings.Sequence[0]})
	}

	c.logger.Info("shaping controller starting",
		slog.Int("profiles", len(c.settings.Sequence)),
		slog.Duration("dwell", c.settings.Dwell))

	if err := c.initialize(ctx, first); err != nil {
		return c.finish(ctx, err)
	}

	for step := 0; ; step++ {
		if ctx.Err() != nil {
			return c.finish(ctx, nil)
		}
		if err := c.runStep(ctx, step); err != nil {
			return c.finish(ctx, err)
		}
		if err := clock.Wait(ctx, c.settings.Clock, c.settings.Dwell); err != nil {
			return c.finish(ctx, nil)
		}
	}
}

func (c *Controller) initialize(ctx context.Context, initial traffic.Profile) error {
	err := c.backend.Initialize(ctx, initial)
	if err == nil || ctx.Err() != nil {
		return nil
	}
	if terr.IsCritical(err) {
		return err
	}
	c.handleCategorizedError("backend initialization incomplete", err, terr.CategoryRecoverable)
	return nil
}

func (c *Controller) runStep(ctx context.Context, step int) error {
	name := c.settings.Sequence[step%len(c.settings.Sequence)]
	profile, err := c.profiles.Resolve(name)
	if err != nil {
		return terr.WrapCritical(err, "resolve_profile", terr.ErrorContext{Profile: name})
	}
	if profile.Fallback {
		c.logger.Warn("profile not registered, using fallback burst",
			slog.String("profile", name),
			slog.String("burst", profile.Burst.String()))
	}

	if c.backend.State() == traffic.StateUninitialized {
		c.logger.Info("re-initializing backend", slog.String("profile", name))
		if err := c.initialize(ctx, profile); err != nil {
			return err
		}
	}

	switchedAt := c.settings.Clock.Now()
	applyErr := c.backend.ApplyProfile(ctx, profile)
	if errors.Is(applyErr, traffic.ErrNotInitialized) && ctx.Err() == nil {
		// An invalidation can land between the state check and the apply.
		// Re-initialize once; a backend that still refuses is fatal below.
		c.logger.Info("backend invalidated during apply, re-initializing", slog.String("profile", name))
		if err := c.initialize(ctx, profile); err != nil {
			return err
		}
		applyErr = c.backend.ApplyProfile(ctx, profile)
	}
	if ctx.Err() != nil {
		return nil
	}
	if applyErr != nil && (terr.IsCritical(applyErr) || errors.Is(applyErr, traffic.ErrNotInitialized)) {
		return applyErr
	}

	failures := c.recordStep(step, name, switchedAt, applyErr)
	c.notify(SwitchEvent{
		Time:      switchedAt,
		Direction: c.backend.Direction(),
		Interface: c.backend.Interface(),
		Step:      step,
		Profile:   profile,
		Applied:   applyErr == nil,
		Err:       applyErr,
	})

	if applyErr != nil {
		c.handleCategorizedError("profile apply failed", applyErr, terr.CategoryRecoverable,
			slog.String("profile", name),
			slog.Int("step", step),
			slog.Int("consecutive_failures", failures))
		if limit := c.settings.MaxConsecutiveFailures; limit > 0 && failures >= limit {
			return terr.WrapCritical(
				fmt.Errorf("%d consecutive apply failures: %w", failures, applyErr),
				"escalate",
				terr.ErrorContext{Profile: name, Direction: string(c.backend.Direction())},
			)
		}
		return nil
	}

	c.logger.Info("profile applied",
		slog.String("profile", name),
		slog.Int("step", step),
		slog.String("rate", profile.Rate.Human()),
		slog.String("burst", profile.Burst.Human()))
	return nil
}

func (c *Controller) recordStep(step int, name string, switchedAt time.Time, applyErr error) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Step = step
	c.status.Target = name
	c.status.SwitchedAt = switchedAt
	if applyErr != nil {
		c.status.ConsecutiveFailures++
	} else {
		c.status.ConsecutiveFailures = 0
	}
	return c.status.ConsecutiveFailures
}

func (c *Controller) notify(event SwitchEvent) {
	for _, recorder := range c.settings.Recorders {
		recorder.RecordSwitch(event)
	}
}

// finish tears the backend down under a context that survives ctx's
// cancellation and returns cause.
func (c *Controller) finish(ctx context.Context, cause error) error {
	teardownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.settings.TeardownTimeout)
	defer cancel()

	if err := c.backend.Teardown(teardownCtx); err != nil {
		c.handleCategorizedError("teardown failed", err, terr.CategoryOptional)
	}
	if cause != nil {
		c.handleCategorizedError("shaping controller stopped", cause, terr.CategoryCritical)
		return cause
	}
	c.logger.Info("shaping controller stopped")
	return nil
}

func (c *Controller) handleCategorizedError(message string, err error, defaultCategory terr.Category, attrs ...slog.Attr) {
	terr.Log(c.logger, message, err, defaultCategory, attrs...)
}
