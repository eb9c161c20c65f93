package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dms/internal/dms"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.Write(m))
	return m.GetCounter().GetValue()
}

func histogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	h, ok := o.(prometheus.Histogram)
	require.True(t, ok)
	m := &dto.Metric{}
	require.NoError(t, h.Write(m))
	return m.GetHistogram().GetSampleCount()
}

func TestMetrics_OperationCompleted(t *testing.T) {
	m := New(nil)

	m.OperationCompleted("Trash", nil, 10*time.Millisecond)
	m.OperationCompleted("Trash", nil, 20*time.Millisecond)
	m.OperationCompleted("Trash", fmt.Errorf("trash n1: %w", dms.ErrPermissionDenied), time.Millisecond)
	m.OperationCompleted("Trash", errors.New("disk I/O error"), time.Millisecond)

	assert.Equal(t, 2.0, counterValue(t, m.OperationsTotal.WithLabelValues("Trash", "ok")))
	assert.Equal(t, 1.0, counterValue(t, m.OperationsTotal.WithLabelValues("Trash", "permission_denied")))
	assert.Equal(t, 1.0, counterValue(t, m.OperationsTotal.WithLabelValues("Trash", "internal")))
	assert.Equal(t, uint64(4), histogramCount(t, m.OperationDuration.WithLabelValues("Trash")))
}

func TestMetrics_GatewayAndBatch(t *testing.T) {
	m := New(nil)

	m.GatewayCallCompleted("copy_with_tier", nil, time.Millisecond)
	m.GatewayCallCompleted("copy_with_tier", errors.New("timeout"), time.Second)
	m.BatchItemCompleted("Archive", nil)
	m.BatchItemCompleted("Archive", fmt.Errorf("copy: %w", dms.ErrGatewayFailure))
	m.BatchItemCompleted("Archive", fmt.Errorf("copy: %w", dms.ErrGatewayFailure))

	assert.Equal(t, 1.0, counterValue(t, m.GatewayCallsTotal.WithLabelValues("copy_with_tier", "error")))
	assert.Equal(t, 2.0, counterValue(t, m.BatchItemsTotal.WithLabelValues("Archive", "gateway_failure")))
	assert.Equal(t, 1.0, counterValue(t, m.BatchItemsTotal.WithLabelValues("Archive", "ok")))
}

func TestMetrics_Events(t *testing.T) {
	m := New(nil)

	m.EventDelivered(dms.EventAccessGranted, nil)
	m.EventDropped(dms.EventShareRequested)
	m.EventDropped(dms.EventShareRequested)
	m.BackgroundRun("purge", nil)

	assert.Equal(t, 1.0, counterValue(t, m.EventsDelivered.WithLabelValues("access_granted", "ok")))
	assert.Equal(t, 2.0, counterValue(t, m.EventsDropped.WithLabelValues("share_requested")))
	assert.Equal(t, 1.0, counterValue(t, m.BackgroundRuns.WithLabelValues("purge", "ok")))
}

func TestNew_SeparateRegistries(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) }, "registering twice on one registry should panic")
	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.OperationCompleted("CreateFolder", nil, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `dms_operations_total{op="CreateFolder",result="ok"} 1`)
}

func TestServer_ServeUntilCancelled(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg).BackgroundRun("tier_poll", nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewServer(ln.Addr().String(), reg).Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "dms_background_runs_total")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
