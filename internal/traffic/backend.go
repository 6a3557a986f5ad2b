package traffic

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Direction selects which side of the interface is shaped.
type Direction string

const (
	DirectionEgress  Direction = "egress"
	DirectionIngress Direction = "ingress"
)

// ParseDirection validates a direction name.
func ParseDirection(value string) (Direction, error) {
	switch Direction(value) {
	case DirectionEgress, DirectionIngress:
		return Direction(value), nil
	default:
		return "", fmt.Errorf("unknown direction %q", value)
	}
}

// State is the lifecycle position of a backend.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateShaping
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateShaping:
		return "shaping"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ErrNotInitialized is returned when a profile is applied before Initialize.
var ErrNotInitialized = errors.New("backend not initialized")

// Backend installs shaping profiles on one side of an interface.
type Backend interface {
	Direction() Direction
	Interface() string
	// Initialize prepares the kernel objects the backend needs and installs
	// initial when the direction requires it up front.
	Initialize(ctx context.Context, initial Profile) error
	ApplyProfile(ctx context.Context, profile Profile) error
	// Teardown removes installed shaping on a best-effort basis.
	Teardown(ctx context.Context) error
	State() State
	// Applied returns the last successfully installed profile.
	Applied() (Profile, bool)
	// Invalidate forces the next apply to re-initialize first.
	Invalidate()
}

// shapingState is embedded by the backends. It is only advanced by
// successful operations.
type shapingState struct {
	mu      sync.Mutex
	state   State
	applied Profile
	has     bool
}

func (s *shapingState) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *shapingState) Applied() (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.applied, s.has
}

func (s *shapingState) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateUninitialized
}

func (s *shapingState) markInitialized(installed *Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateInitialized
	if installed != nil {
		s.applied = *installed
		s.has = true
	}
}

func (s *shapingState) markApplied(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateShaping
	s.applied = p
	s.has = true
}

func (s *shapingState) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateUninitialized
	s.applied = Profile{}
	s.has = false
}
