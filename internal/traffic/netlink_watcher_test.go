package traffic

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

type countingInvalidator struct {
	count atomic.Int32
}

func (c *countingInvalidator) Invalidate() { c.count.Add(1) }

func linkUpdate(name string, up bool, msgType uint16) netlink.LinkUpdate {
	link := &netlink.Ifb{LinkAttrs: netlink.LinkAttrs{Name: name}}
	if up {
		link.Flags |= net.FlagUp
	}
	update := netlink.LinkUpdate{Link: link}
	update.Header.Type = msgType
	return update
}

func TestLinkWatcherInvalidatesWhenLinkReturns(t *testing.T) {
	links := newFakeNetlink()
	logger, _ := newTestLogger(t)
	watcher := NewLinkWatcher(logger, links)
	target := &countingInvalidator{}
	watcher.Watch(target, "eth0", "ifb0")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- watcher.Run(ctx) }()

	var updates chan netlink.LinkUpdate
	select {
	case updates = <-links.subscriptions:
	case <-time.After(time.Second):
		t.Fatal("watcher did not subscribe")
	}

	// Baseline: ifb0 created down, then brought up. Not a return.
	updates <- linkUpdate("ifb0", false, unix.RTM_NEWLINK)
	updates <- linkUpdate("ifb0", true, unix.RTM_NEWLINK)
	updates <- linkUpdate("lo", true, unix.RTM_NEWLINK)
	// Removed and re-created.
	updates <- linkUpdate("ifb0", true, unix.RTM_DELLINK)
	updates <- linkUpdate("ifb0", false, unix.RTM_NEWLINK)
	updates <- linkUpdate("ifb0", true, unix.RTM_NEWLINK)

	require.Eventually(t, func() bool { return target.count.Load() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
	assert.Equal(t, int32(1), target.count.Load())
}

func TestLinkWatcherSubscribeFailureIsCritical(t *testing.T) {
	links := newFakeNetlink()
	links.subscribeErr = errors.New("permission denied")
	watcher := NewLinkWatcher(nil, links)
	watcher.Watch(&countingInvalidator{}, "ifb0")

	err := watcher.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribe link")
}

func TestLinkWatcherWithoutTargetsWaitsForCancel(t *testing.T) {
	watcher := NewLinkWatcher(nil, newFakeNetlink())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, watcher.Run(ctx))
}
