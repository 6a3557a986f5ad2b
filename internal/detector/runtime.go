package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	terr "tccycle/internal/errors"
	"tccycle/internal/traffic"
)

const probeTimeout = 2 * time.Second

// Probe bundles the host lookups the checks depend on.
type Probe struct {
	LookPath     func(file string) (string, error)
	Geteuid      func() int
	ModuleLoaded func(name string) bool
	Executor     traffic.CommandExecutor
}

// DefaultProbe inspects the running host.
func DefaultProbe() Probe {
	return Probe{
		LookPath: exec.LookPath,
		Geteuid:  unix.Geteuid,
		ModuleLoaded: func(name string) bool {
			_, err := os.Stat(fmt.Sprintf("/sys/module/%s", name))
			return err == nil
		},
		Executor: traffic.ProcessExecutor(),
	}
}

// RequiredCommands lists the binaries shaping invokes.
func RequiredCommands(ingress bool) []string {
	if ingress {
		return []string{"tc", "ip", "modprobe"}
	}
	return []string{"tc"}
}

// ValidateRuntime checks binaries and privileges on the running host.
func ValidateRuntime(logger *slog.Logger, ingress bool) error {
	return DefaultProbe().ValidateRuntime(logger, ingress)
}

// ValidateRuntime ensures required binaries and privileges are available
// before shaping starts. Returns a categorized critical error on failure.
func (p Probe) ValidateRuntime(logger *slog.Logger, ingress bool) error {
	if logger != nil {
		logger.Info("runtime prerequisite check started", slog.String("kernel", KernelRelease()))
	}

	var issues []string
	for _, cmd := range RequiredCommands(ingress) {
		if _, err := p.LookPath(cmd); err != nil {
			issues = append(issues, fmt.Sprintf("missing command %q: %v", cmd, err))
		}
	}
	if euid := p.Geteuid(); euid != 0 {
		issues = append(issues, fmt.Sprintf("traffic control requires root, running as uid %d", euid))
	}

	if len(issues) > 0 {
		description := strings.Join(issues, "; ")
		if logger != nil {
			logger.Error("runtime prerequisite check failed", slog.String("issues", description))
		}
		return terr.New(
			terr.CategoryCritical,
			errors.New("runtime prerequisites missing"),
			terr.ErrorContext{Operation: "runtime_validation", Value: description},
		)
	}

	if logger != nil {
		logger.Info("runtime prerequisite check passed")
	}
	return nil
}

// KernelRelease returns uname -r, or "unknown".
func KernelRelease() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return "unknown"
	}
	return unix.ByteSliceToString(uts.Release[:])
}

func (p Probe) modprobe(name string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	executor := p.Executor
	if executor == nil {
		executor = traffic.ProcessExecutor()
	}
	return executor.Run(ctx, "modprobe", []string{name})
}
