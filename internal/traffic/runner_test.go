package traffic

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingExecutor struct{}

func (blockingExecutor) Run(ctx context.Context, _ string, _ []string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type recordingObserver struct {
	results []Result
}

func (o *recordingObserver) ObserveCommand(r Result) { o.results = append(o.results, r) }

func TestRunnerSuccess(t *testing.T) {
	logger, logs := newTestLogger(t)
	tc := newFakeTC()
	observer := &recordingObserver{}
	runner := NewRunner(logger, tc, RunnerSettings{Timeout: time.Second, Observer: observer})

	result := runner.Run(context.Background(), Command{Name: "modprobe", Args: []string{"ifb"}})

	assert.True(t, result.OK())
	assert.Equal(t, 0, result.ExitCode)
	assert.NoError(t, result.Failure())
	assert.NotContains(t, logs.String(), "level=WARN")
	require.Len(t, observer.results, 1)
	assert.Equal(t, "modprobe ifb", observer.results[0].Command.String())
}

func TestRunnerNonzeroExitLogsWarning(t *testing.T) {
	logger, logs := newTestLogger(t)
	tc := newFakeTC()
	runner := NewRunner(logger, tc, RunnerSettings{Timeout: DefaultCommandTimeout})

	result := runner.Run(context.Background(), Tc(rootQdiscConfig("eth0").DeleteArgs()...).Tolerated())

	assert.False(t, result.OK())
	assert.Equal(t, 2, result.ExitCode)
	assert.True(t, result.Absent())
	assert.Contains(t, result.Output, "handle of zero")
	assert.Error(t, result.Failure())

	out := logs.String()
	assert.Equal(t, 1, strings.Count(out, "level=WARN"))
	assert.Contains(t, out, "exit_code=2")
	assert.Contains(t, out, "tolerated=true")
	assert.Contains(t, out, "absent=true")
}

func TestRunnerTimeoutIsFailure(t *testing.T) {
	logger, logs := newTestLogger(t)
	runner := NewRunner(logger, blockingExecutor{}, RunnerSettings{Timeout: 10 * time.Millisecond})

	result := runner.Run(context.Background(), Tc("qdisc", "show"))

	assert.False(t, result.OK())
	assert.Equal(t, -1, result.ExitCode)
	assert.True(t, errors.Is(result.Err, ErrCommandTimeout))
	assert.Contains(t, logs.String(), "level=WARN")
}

func TestRunnerParentCancellationLogsDebug(t *testing.T) {
	logger, logs := newTestLogger(t)
	runner := NewRunner(logger, blockingExecutor{}, RunnerSettings{Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := runner.Run(ctx, Tc("qdisc", "show"))

	assert.False(t, result.OK())
	assert.True(t, errors.Is(result.Err, context.Canceled))
	assert.False(t, errors.Is(result.Err, ErrCommandTimeout))
	assert.NotContains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "command interrupted")
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "tc qdisc del dev eth0 root", Tc("qdisc", "del", "dev", "eth0", "root").String())
	assert.Equal(t, "true", Command{Name: "true"}.String())
}
