package traffic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Command is one external invocation.
type Command struct {
	Name string
	Args []string
	// Tolerate marks commands that are expected to fail when the object
	// they remove is already absent.
	Tolerate bool
}

// Tc builds a tc command.
func Tc(args ...string) Command { return Command{Name: "tc", Args: args} }

// Tolerated returns a copy of c marked as an expected failure.
func (c Command) Tolerated() Command {
	c.Tolerate = true
	return c
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Result is the outcome of one external invocation. A failed Result is
// information for the caller, never a panic or a log.Fatal.
type Result struct {
	Command  Command
	ExitCode int
	Output   string
	Err      error
	Duration time.Duration
}

// OK reports whether the command exited zero.
func (r Result) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Failure returns an error describing a failed result, or nil.
func (r Result) Failure() error {
	if r.OK() {
		return nil
	}
	out := strings.TrimSpace(r.Output)
	if out == "" {
		return fmt.Errorf("command %s: exit %d: %w", r.Command, r.ExitCode, r.Err)
	}
	return fmt.Errorf("command %s: exit %d: %s: %w", r.Command, r.ExitCode, out, r.Err)
}

// Absent reports whether the failure output says the target did not exist.
func (r Result) Absent() bool {
	return !r.OK() && containsAny(r.Output, absentMarkers)
}

// CommandObserver receives every command result.
type CommandObserver interface {
	ObserveCommand(Result)
}

// ErrCommandTimeout marks a command killed because it exceeded its timeout.
var ErrCommandTimeout = errors.New("command timed out")

// Runner executes commands with a per-invocation timeout and logs failures.
// Nonzero exit is logged at warn level and returned to the caller.
type Runner struct {
	logger   *slog.Logger
	executor CommandExecutor
	timeout  time.Duration
	observer CommandObserver
}

// NewRunner builds a Runner. A zero timeout leaves invocations unbounded.
func NewRunner(logger *slog.Logger, executor CommandExecutor, settings RunnerSettings) *Runner {
	return &Runner{
		logger:   logger,
		executor: ensureExecutor(executor),
		timeout:  settings.Timeout,
		observer: settings.Observer,
	}
}

// Run executes cmd and returns its result.
func (r *Runner) Run(ctx context.Context, cmd Command) Result {
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	output, err := r.executor.Run(runCtx, cmd.Name, cmd.Args)
	result := Result{
		Command:  cmd,
		Output:   output,
		Duration: time.Since(start),
	}

	if err != nil {
		result.Err = err
		result.ExitCode = -1
		var coded interface{ ExitCode() int }
		if errors.As(err, &coded) {
			result.ExitCode = coded.ExitCode()
		}
		if ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			result.Err = fmt.Errorf("%w after %s: %w", ErrCommandTimeout, r.timeout, err)
		}
	}

	r.log(ctx, result)
	if r.observer != nil {
		r.observer.ObserveCommand(result)
	}
	return result
}

func (r *Runner) log(ctx context.Context, result Result) {
	if r.logger == nil {
		return
	}
	attrs := []any{
		slog.String("cmd", result.Command.Name),
		slog.String("args", strings.Join(result.Command.Args, " ")),
	}

	if result.OK() {
		if out := strings.TrimSpace(result.Output); out != "" {
			r.logger.Debug("command output", append(attrs, slog.String("output", out))...)
		}
		return
	}

	if ctx.Err() != nil {
		r.logger.Debug("command interrupted", append(attrs, slog.String("error", result.Err.Error()))...)
		return
	}

	attrs = append(attrs,
		slog.Int("exit_code", result.ExitCode),
		slog.Bool("tolerated", result.Command.Tolerate),
		slog.Bool("absent", result.Absent()),
		slog.String("output", strings.TrimSpace(result.Output)),
	)
	if result.Err != nil {
		attrs = append(attrs, slog.String("error", result.Err.Error()))
	}
	r.logger.Warn("command failed", attrs...)
}

func containsAny(message string, substrings []string) bool {
	if message == "" || len(substrings) == 0 {
		return false
	}
	lower := strings.ToLower(message)
	for _, sub := range substrings {
		if sub == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(sub)) {
			return true
		}
	}
	return false
}
