package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tccycle/internal/controller"
	"tccycle/internal/traffic"
)

func switchEvent(applied bool) controller.SwitchEvent {
	event := controller.SwitchEvent{
		Time:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Direction: traffic.DirectionIngress,
		Interface: "eth0",
		Profile: traffic.Profile{
			Name:  "20mbit",
			Rate:  20_000_000,
			Burst: 125 * 1024,
		},
		Applied: applied,
	}
	if !applied {
		event.Err = errors.New("tc failed")
	}
	return event
}

func TestCollectorRecordsSwitches(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	require.NoError(t, err)

	collector.RecordSwitch(switchEvent(true))
	collector.RecordSwitch(switchEvent(false))
	collector.RecordSwitch(switchEvent(true))

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.Switches.WithLabelValues("ingress", "eth0", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Switches.WithLabelValues("ingress", "eth0", "failed")))
	assert.Equal(t, 20e6, testutil.ToFloat64(collector.ActiveRate.WithLabelValues("ingress", "eth0")))
	assert.Equal(t, float64(125*1024), testutil.ToFloat64(collector.ActiveBurst.WithLabelValues("ingress", "eth0")))
}

func TestCollectorObservesCommands(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	require.NoError(t, err)

	collector.ObserveCommand(traffic.Result{
		Command:  traffic.Tc("qdisc", "del", "dev", "eth0", "root").Tolerated(),
		ExitCode: 2,
		Err:      errors.New("exit status 2"),
		Duration: 5 * time.Millisecond,
	})
	collector.ObserveCommand(traffic.Result{
		Command:  traffic.Tc("qdisc", "add", "dev", "eth0", "root"),
		Duration: 3 * time.Millisecond,
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.CommandFailures.WithLabelValues("tc qdisc del", "true")))
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.CommandFailures.WithLabelValues("tc qdisc add", "false")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.CommandDurations))
}

func TestNewCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg)
	require.NoError(t, err)
	second, err := NewCollector(reg)
	require.NoError(t, err)

	first.RecordSwitch(switchEvent(true))
	assert.Equal(t, 1.0, testutil.ToFloat64(second.Switches.WithLabelValues("ingress", "eth0", "applied")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	require.NoError(t, err)
	collector.RecordSwitch(switchEvent(true))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `shaping_profile_switches_total{direction="ingress",interface="eth0",result="applied"} 1`)
	assert.Contains(t, body, "shaping_active_rate_bits_per_second")
}

func TestServerServesUntilCancelled(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	require.NoError(t, err)
	collector.RecordSwitch(switchEvent(true))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server := NewServer(logger, "127.0.0.1:0", collector)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()

	select {
	case <-server.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server not ready")
	}

	resp, err := http.Get("http://" + server.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "shaping_profile_switches_total"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
