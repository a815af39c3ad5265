package admin

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailmark-labs/ppm/health"
	"github.com/trailmark-labs/ppm/metric"
	"github.com/trailmark-labs/ppm/pipeline"
	"github.com/trailmark-labs/ppm/security"
)

type fakeStatus struct{ snap pipeline.Snapshot }

func (f fakeStatus) Counters() pipeline.Snapshot { return f.snap }

func startTestServer(t *testing.T, addr string, status StatusProvider) *Server {
	t.Helper()
	monitor := health.NewMonitor()
	monitor.UpdateHealthy("pipeline", "running")

	srv := NewServer(addr, metric.NewRegistry(), monitor, status, security.ServerTLSConfig{}, nil)
	go func() { _ = srv.Start() }()
	t.Cleanup(func() { _ = srv.Stop() })

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if resp, err := http.Get("http://" + addr + "/healthz"); err == nil {
			resp.Body.Close()
			return srv
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("admin server did not become ready")
	return nil
}

func TestHealthzReportsHealthy(t *testing.T) {
	srv := startTestServer(t, "127.0.0.1:18801", fakeStatus{})
	_ = srv

	resp, err := http.Get("http://127.0.0.1:18801/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestStatuszReportsCounterSnapshot(t *testing.T) {
	want := pipeline.Snapshot{RecvMsgs: 5, SentMsgs: 3, FiltMsgs: 2}
	startTestServer(t, "127.0.0.1:18802", fakeStatus{snap: want})

	resp, err := http.Get("http://127.0.0.1:18802/statusz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var got pipeline.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, want, got)
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	startTestServer(t, "127.0.0.1:18803", fakeStatus{})

	resp, err := http.Get("http://127.0.0.1:18803/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWSEventsStreamsCounterSnapshots(t *testing.T) {
	want := pipeline.Snapshot{RecvMsgs: 7}
	startTestServer(t, "127.0.0.1:18804", fakeStatus{snap: want})

	conn, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:18804/ws/events", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg snapshotEvent
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "counters", msg.Type)
	assert.Equal(t, want, msg.Counters)
}
