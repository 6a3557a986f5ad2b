package traffic

import (
	"context"
	"errors"
	"fmt"

	"github.com/vishvananda/netlink"

	terr "tccycle/internal/errors"
)

// ensureIfb makes sure the ifb device exists and is administratively up.
func (in *Ingress) ensureIfb(ctx context.Context) error {
	name := in.ifb
	link, err := in.netlink.LinkByName(name)
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if !errors.As(err, &notFound) {
			return terr.New(
				terr.CategoryRecoverable,
				fmt.Errorf("lookup ifb %s: %w", name, err),
				terr.ErrorContext{Device: name, Operation: "link_lookup"},
			)
		}
		add := Command{Name: "ip", Args: []string{"link", "add", "name", name, "type", "ifb"}}
		if result := in.runner.Run(ctx, add); !result.OK() {
			return terr.New(
				terr.CategoryRecoverable,
				fmt.Errorf("create ifb %s: %w", name, result.Failure()),
				terr.ErrorContext{Device: name, Command: add.String()},
			)
		}
		link, err = in.netlink.LinkByName(name)
		if err != nil {
			link = nil
		}
	}

	if linkIsUp(link) {
		return nil
	}
	up := Command{Name: "ip", Args: []string{"link", "set", "dev", name, "up"}}
	if result := in.runner.Run(ctx, up); !result.OK() {
		return terr.New(
			terr.CategoryRecoverable,
			fmt.Errorf("set ifb %s up: %w", name, result.Failure()),
			terr.ErrorContext{Device: name, Command: up.String()},
		)
	}
	return nil
}

// setIfbDown takes the ifb device down. Failures are only logged by the runner.
func (in *Ingress) setIfbDown(ctx context.Context) {
	in.runner.Run(ctx, Command{Name: "ip", Args: []string{"link", "set", "dev", in.ifb, "down"}, Tolerate: true})
}
