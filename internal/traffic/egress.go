package traffic

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"tccycle/internal/clock"
	terr "tccycle/internal/errors"
)

// Egress shapes outbound traffic with a tbf root and a netem child. Each
// profile switch deletes and re-adds both qdiscs.
type Egress struct {
	shapingState
	logger *slog.Logger
	runner *Runner
	iface  string
	clock  clock.Clock
	settle time.Duration
}

// NewEgress constructs an egress backend for settings.Interface.
func NewEgress(logger *slog.Logger, runner *Runner, settings Settings) *Egress {
	settings = settings.withDefaults()
	return &Egress{
		logger: logger,
		runner: runner,
		iface:  settings.Interface,
		clock:  settings.Clock,
		settle: settings.SettleDelay,
	}
}

func (e *Egress) Direction() Direction { return DirectionEgress }

func (e *Egress) Interface() string { return e.iface }

// Initialize has no device setup to do on egress.
func (e *Egress) Initialize(ctx context.Context, _ Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.markInitialized(nil)
	return nil
}

// ApplyProfile replaces the root qdisc with one built from profile.
func (e *Egress) ApplyProfile(ctx context.Context, profile Profile) error {
	errCtx := terr.ErrorContext{
		Interface: e.iface,
		Direction: string(DirectionEgress),
		Profile:   profile.Name,
	}
	if e.State() == StateUninitialized {
		return terr.WrapCritical(ErrNotInitialized, "apply_profile", errCtx)
	}

	e.runner.Run(ctx, Tc(rootQdiscConfig(e.iface).DeleteArgs()...).Tolerated())

	if err := clock.Wait(ctx, e.clock, e.settle); err != nil {
		return err
	}

	steps := []QdiscConfig{
		tbfQdiscConfig(e.iface, profile),
		netemQdiscConfig(e.iface, profile),
	}
	for _, cfg := range steps {
		cmd := Tc(cfg.AddArgs()...)
		if result := e.runner.Run(ctx, cmd); !result.OK() {
			return terr.WrapRecoverable(
				fmt.Errorf("add %s qdisc on %s: %w", cfg.Kind, e.iface, result.Failure()),
				"apply_profile",
				errCtx,
				terr.ErrorContext{Command: cmd.String()},
			)
		}
	}

	e.markApplied(profile)
	if e.logger != nil {
		e.logger.Debug("egress profile installed",
			slog.String("interface", e.iface),
			slog.String("profile", profile.Name),
			slog.String("rate", profile.Rate.Human()),
			slog.String("burst", profile.Burst.Human()))
	}
	return nil
}

// Teardown deletes the root qdisc. Failures are ignored.
func (e *Egress) Teardown(ctx context.Context) error {
	e.runner.Run(ctx, Tc(rootQdiscConfig(e.iface).DeleteArgs()...).Tolerated())
	e.reset()
	return nil
}
