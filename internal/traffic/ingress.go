package traffic

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	terr "tccycle/internal/errors"
)

var redirectProtocols = []string{"ip", "ipv6"}

// Ingress shapes inbound traffic by redirecting it to an ifb device and
// shaping the ifb's egress. Profile switches change the tbf in place.
type Ingress struct {
	shapingState
	logger  *slog.Logger
	runner  *Runner
	netlink NetlinkClient
	iface   string
	ifb     string
	initMu  sync.Mutex
}

// NewIngress constructs an ingress backend for settings.Interface using
// settings.IFBDevice as the shaping device.
func NewIngress(logger *slog.Logger, runner *Runner, netlinkClient NetlinkClient, settings Settings) *Ingress {
	settings = settings.withDefaults()
	if netlinkClient == nil {
		netlinkClient = defaultNetlinkClient{}
	}
	return &Ingress{
		logger:  logger,
		runner:  runner,
		netlink: netlinkClient,
		iface:   settings.Interface,
		ifb:     settings.IFBDevice,
	}
}

func (in *Ingress) Direction() Direction { return DirectionIngress }

func (in *Ingress) Interface() string { return in.iface }

// IFBDevice returns the name of the shaping device.
func (in *Ingress) IFBDevice() string { return in.ifb }

// Initialize installs the redirect and the initial profile. It removes any
// previous ingress qdisc and ifb root first, so repeated calls leave exactly
// one redirect filter per protocol. Command failures are aggregated into a
// recoverable error but the backend is still marked initialized.
func (in *Ingress) Initialize(ctx context.Context, initial Profile) error {
	in.initMu.Lock()
	defer in.initMu.Unlock()

	errCtx := terr.ErrorContext{
		Interface: in.iface,
		Device:    in.ifb,
		Direction: string(DirectionIngress),
		Profile:   initial.Name,
	}

	var failures terr.MultiError
	run := func(cmd Command) bool {
		result := in.runner.Run(ctx, cmd)
		if !result.OK() && !cmd.Tolerate {
			failures.Add(result.Failure())
			return false
		}
		return true
	}

	run(Command{Name: "modprobe", Args: []string{"ifb", "numifbs=1"}})
	if err := in.ensureIfb(ctx); err != nil {
		failures.Add(err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	run(Tc(ingressQdiscConfig(in.iface).DeleteArgs()...).Tolerated())
	run(Tc(rootQdiscConfig(in.ifb).DeleteArgs()...).Tolerated())

	if run(Tc(ingressQdiscConfig(in.iface).AddArgs()...)) {
		for _, protocol := range redirectProtocols {
			run(Tc(redirectFilterConfig(in.iface, protocol, in.ifb).AddArgs()...))
		}
	}

	var installed *Profile
	if run(Tc(tbfQdiscConfig(in.ifb, initial).AddArgs()...)) &&
		run(Tc(netemQdiscConfig(in.ifb, initial).AddArgs()...)) {
		installed = &initial
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	in.markInitialized(installed)

	if failures.Len() > 0 {
		return terr.WrapRecoverable(&failures, "initialize_ingress", errCtx)
	}
	if in.logger != nil {
		in.logger.Info("ingress redirect installed",
			slog.String("interface", in.iface),
			slog.String("ifb", in.ifb),
			slog.String("profile", initial.Name))
	}
	return nil
}

// ApplyProfile changes the ifb tbf rate and burst in place.
func (in *Ingress) ApplyProfile(ctx context.Context, profile Profile) error {
	errCtx := terr.ErrorContext{
		Interface: in.iface,
		Device:    in.ifb,
		Direction: string(DirectionIngress),
		Profile:   profile.Name,
	}
	if in.State() == StateUninitialized {
		return terr.WrapCritical(ErrNotInitialized, "apply_profile", errCtx)
	}

	cmd := Tc(tbfQdiscConfig(in.ifb, profile).ChangeArgs()...)
	if result := in.runner.Run(ctx, cmd); !result.OK() {
		return terr.WrapRecoverable(
			fmt.Errorf("change tbf on %s: %w", in.ifb, result.Failure()),
			"apply_profile",
			errCtx,
			terr.ErrorContext{Command: cmd.String()},
		)
	}

	in.markApplied(profile)
	if in.logger != nil {
		in.logger.Debug("ingress profile installed",
			slog.String("interface", in.iface),
			slog.String("ifb", in.ifb),
			slog.String("profile", profile.Name),
			slog.String("rate", profile.Rate.Human()),
			slog.String("burst", profile.Burst.Human()))
	}
	return nil
}

// Teardown removes the redirect and the ifb qdiscs and takes the ifb down.
// Failures are ignored.
func (in *Ingress) Teardown(ctx context.Context) error {
	in.initMu.Lock()
	defer in.initMu.Unlock()

	in.runner.Run(ctx, Tc(ingressQdiscConfig(in.iface).DeleteArgs()...).Tolerated())
	in.runner.Run(ctx, Tc(rootQdiscConfig(in.ifb).DeleteArgs()...).Tolerated())
	in.setIfbDown(ctx)
	in.reset()
	return nil
}
