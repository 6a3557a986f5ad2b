package traffic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	terr "tccycle/internal/errors"
)

// Invalidator is implemented by backends whose kernel state can be lost
// when a link disappears.
type Invalidator interface {
	Invalidate()
}

// LinkWatcher subscribes to link updates and invalidates its targets when a
// watched link is re-created or comes back up. The next apply then
// re-initializes the backend.
type LinkWatcher struct {
	logger  *slog.Logger
	netlink NetlinkClient
	targets map[string][]Invalidator

	mu    sync.Mutex
	links map[string]linkState
}

type linkState struct {
	up     bool
	seenUp bool
}

// NewLinkWatcher constructs a watcher with no targets.
func NewLinkWatcher(logger *slog.Logger, netlinkClient NetlinkClient) *LinkWatcher {
	if netlinkClient == nil {
		netlinkClient = defaultNetlinkClient{}
	}
	return &LinkWatcher{
		logger:  logger,
		netlink: netlinkClient,
		targets: map[string][]Invalidator{},
		links:   map[string]linkState{},
	}
}

// Watch registers target to be invalidated on changes to the named links.
// It must be called before Run.
func (w *LinkWatcher) Watch(target Invalidator, names ...string) {
	for _, name := range names {
		if name == "" {
			continue
		}
		w.targets[name] = append(w.targets[name], target)
	}
}

// Run blocks until ctx is done or the subscription fails.
func (w *LinkWatcher) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			if w.logger != nil {
				w.logger.Error("link watcher panic recovered",
					slog.Any("panic", r),
					slog.String("stack", string(stack)))
			}
			if err == nil {
				err = fmt.Errorf("link watcher panic: %v", r)
			}
		}
	}()

	if len(w.targets) == 0 {
		<-ctx.Done()
		return nil
	}

	updates := make(chan netlink.LinkUpdate, 32)
	done := make(chan struct{})
	defer close(done)

	opts := netlink.LinkSubscribeOptions{ListExisting: true}
	if err := w.netlink.LinkSubscribeWithOptions(updates, done, opts); err != nil {
		return terr.New(
			terr.CategoryCritical,
			fmt.Errorf("subscribe link: %w", err),
			terr.ErrorContext{Operation: "netlink_link_subscribe"},
		)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return errors.New("link subscription closed")
			}
			w.handle(update)
		}
	}
}

func (w *LinkWatcher) handle(update netlink.LinkUpdate) {
	name := updateLinkName(update)
	targets, watched := w.targets[name]
	if !watched {
		return
	}

	up := update.Header.Type != unix.RTM_DELLINK && linkIsUp(update.Link)

	w.mu.Lock()
	previous := w.links[name]
	w.links[name] = linkState{up: up, seenUp: previous.seenUp || up}
	w.mu.Unlock()

	// A link seen up for the first time is the baseline, not a return.
	if !up || previous.up || !previous.seenUp {
		return
	}

	if w.logger != nil {
		w.logger.Info("watched link returned, scheduling re-initialization",
			slog.String("link", name),
			slog.Int("targets", len(targets)))
	}
	for _, target := range targets {
		target.Invalidate()
	}
}

func updateLinkName(update netlink.LinkUpdate) string {
	if update.Link == nil {
		return ""
	}
	if attrs := update.Link.Attrs(); attrs != nil {
		return attrs.Name
	}
	return ""
}
