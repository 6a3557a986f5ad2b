package traffic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"

	"github.com/vishvananda/netlink"
)

// NetlinkClient abstracts netlink operations for easier testing and substitution.
type NetlinkClient interface {
	LinkByName(name string) (netlink.Link, error)
	LinkSubscribeWithOptions(ch chan netlink.LinkUpdate, done chan struct{}, opts netlink.LinkSubscribeOptions) error
}

// CommandExecutor abstracts command execution. Implementations return the
// combined output and an error whose ExitCode method, when present, reports
// the process exit status.
type CommandExecutor interface {
	Run(ctx context.Context, name string, args []string) (string, error)
}

// DefaultNetlinkClient returns a NetlinkClient backed by the host netlink socket.
func DefaultNetlinkClient() NetlinkClient { return defaultNetlinkClient{} }

type defaultNetlinkClient struct{}

func (defaultNetlinkClient) LinkByName(name string) (netlink.Link, error) {
	return netlink.LinkByName(name)
}

func (defaultNetlinkClient) LinkSubscribeWithOptions(ch chan netlink.LinkUpdate, done chan struct{}, opts netlink.LinkSubscribeOptions) error {
	return netlink.LinkSubscribeWithOptions(ch, done, opts)
}

// ProcessExecutor returns a CommandExecutor that runs real processes.
func ProcessExecutor() CommandExecutor { return processExecutor{} }

type processExecutor struct{}

func (processExecutor) Run(ctx context.Context, name string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	return output.String(), err
}

func ensureExecutor(executor CommandExecutor) CommandExecutor {
	if executor != nil {
		return executor
	}
	return processExecutor{}
}

func linkIsUp(link netlink.Link) bool {
	if link == nil {
		return false
	}
	attrs := link.Attrs()
	return attrs != nil && attrs.Flags&net.FlagUp != 0
}

// LookupInterface confirms that name exists.
func LookupInterface(client NetlinkClient, name string) error {
	if client == nil {
		client = defaultNetlinkClient{}
	}
	if _, err := client.LinkByName(name); err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return fmt.Errorf("interface %s not found", name)
		}
		return fmt.Errorf("lookup interface %s: %w", name, err)
	}
	return nil
}
