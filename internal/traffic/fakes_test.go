package traffic

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/vishvananda/netlink"
)

type fakeExitError struct {
	code int
}

func (e *fakeExitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func (e *fakeExitError) ExitCode() int { return e.code }

type call struct {
	name string
	args []string
}

func (c call) String() string { return c.name + " " + strings.Join(c.args, " ") }

// fakeTC models the subset of kernel qdisc state the backends touch and
// fails the same way tc does when an object is missing or already present.
type fakeTC struct {
	mu      sync.Mutex
	calls   []call
	root    map[string][]string
	netem   map[string]bool
	ingress map[string]bool
	filters map[string][]string

	failAll   bool
	failMatch string
	links     *fakeNetlink
}

func newFakeTC() *fakeTC {
	return &fakeTC{
		root:    map[string][]string{},
		netem:   map[string]bool{},
		ingress: map[string]bool{},
		filters: map[string][]string{},
	}
}

func (f *fakeTC) Run(ctx context.Context, name string, args []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	c := call{name: name, args: append([]string(nil), args...)}
	f.calls = append(f.calls, c)

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.failAll || (f.failMatch != "" && strings.Contains(c.String(), f.failMatch)) {
		return "RTNETLINK answers: Operation not permitted\n", &fakeExitError{code: 2}
	}

	switch name {
	case "tc":
		return f.tcLocked(args)
	case "ip":
		f.ipLocked(args)
	}
	return "", nil
}

func (f *fakeTC) tcLocked(args []string) (string, error) {
	fail := func(msg string) (string, error) { return msg + "\n", &fakeExitError{code: 2} }
	if len(args) < 4 {
		return fail("Command line is not complete.")
	}
	dev := args[3]
	rest := args[4:]

	if args[0] == "filter" {
		if !f.ingress[dev] {
			return fail("Error: Parent Qdisc doesn't exists.")
		}
		f.filters[dev] = append(f.filters[dev], valueAfter(rest, "protocol"))
		return "", nil
	}

	isIngress := len(rest) > 0 && rest[len(rest)-1] == "ingress"
	switch args[1] {
	case "del":
		if isIngress {
			if !f.ingress[dev] {
				return fail("Error: Cannot find specified qdisc on specified object.")
			}
			delete(f.ingress, dev)
			delete(f.filters, dev)
			return "", nil
		}
		if f.root[dev] == nil {
			return fail("Error: Cannot delete qdisc with handle of zero.")
		}
		delete(f.root, dev)
		delete(f.netem, dev)
	case "add":
		switch {
		case isIngress:
			if f.ingress[dev] {
				return fail("Error: Exclusivity flag on, cannot modify.")
			}
			f.ingress[dev] = true
		case rest[0] == "root":
			if f.root[dev] != nil {
				return fail("Error: Exclusivity flag on, cannot modify.")
			}
			f.root[dev] = rest
		case rest[0] == "parent":
			if f.root[dev] == nil || f.netem[dev] {
				return fail("Error: Failed to find specified qdisc.")
			}
			f.netem[dev] = true
		}
	case "change":
		if f.root[dev] == nil {
			return fail("Error: Specified qdisc not found.")
		}
		f.root[dev] = rest
	}
	return "", nil
}

func (f *fakeTC) ipLocked(args []string) {
	if f.links == nil || len(args) < 4 || args[0] != "link" {
		return
	}
	switch args[1] {
	case "add":
		f.links.add(args[3], false)
	case "set":
		f.links.setUp(args[3], args[len(args)-1] == "up")
	}
}

func valueAfter(args []string, key string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == key {
			return args[i+1]
		}
	}
	return ""
}

func (f *fakeTC) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.String())
	}
	return out
}

func (f *fakeTC) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *fakeTC) Filters(dev string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.filters[dev]...)
}

func (f *fakeTC) Root(dev string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.root[dev]...)
}

type fakeNetlink struct {
	mu            sync.Mutex
	links         map[string]*netlink.Ifb
	subscriptions chan chan netlink.LinkUpdate
	subscribeErr  error
}

func newFakeNetlink() *fakeNetlink {
	return &fakeNetlink{
		links:         map[string]*netlink.Ifb{},
		subscriptions: make(chan chan netlink.LinkUpdate, 1),
	}
}

func (f *fakeNetlink) add(name string, up bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	link := &netlink.Ifb{LinkAttrs: netlink.LinkAttrs{Name: name}}
	if up {
		link.Flags |= net.FlagUp
	}
	f.links[name] = link
}

func (f *fakeNetlink) setUp(name string, up bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	link, ok := f.links[name]
	if !ok {
		return
	}
	if up {
		link.Flags |= net.FlagUp
	} else {
		link.Flags &^= net.FlagUp
	}
}

func (f *fakeNetlink) LinkByName(name string) (netlink.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	link, ok := f.links[name]
	if !ok {
		return nil, netlink.LinkNotFoundError{}
	}
	copied := *link
	return &copied, nil
}

func (f *fakeNetlink) LinkSubscribeWithOptions(ch chan netlink.LinkUpdate, _ chan struct{}, _ netlink.LinkSubscribeOptions) error {
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscriptions <- ch
	return nil
}

// syncBuffer guards a log buffer shared between a goroutine under test and
// the test itself.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(t *testing.T) (*slog.Logger, *syncBuffer) {
	t.Helper()
	buf := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return logger, buf
}

func testProfile(t *testing.T, name string) Profile {
	t.Helper()
	profile, err := NewProfileTable(DefaultEntries(), DefaultShaping()).Resolve(name)
	if err != nil {
		t.Fatalf("resolve %s: %v", name, err)
	}
	return profile
}
