package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFsyncMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newFsyncMetrics(reg)

	m.RecordRequestStart("GET")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsInFlight.WithLabelValues("GET")))
	m.RecordRequestEnd("GET")
	assert.Equal(t, 0.0, testutil.ToFloat64(m.requestsInFlight.WithLabelValues("GET")))

	m.RecordRequest("GET", "OUT", 3*time.Millisecond)
	m.RecordRequest("GET", "ERROR", time.Millisecond)
	m.RecordRequest("QUIT", "", 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "OUT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "ERROR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("QUIT", "none")))

	m.RecordBytesTransferred("PUT", "in", 100)
	m.RecordBytesTransferred("PUT", "in", 28)
	assert.Equal(t, 128.0, testutil.ToFloat64(m.bytesTransferred.WithLabelValues("PUT", "in")))

	m.RecordProtocolError("bad start marker")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.protocolErrors.WithLabelValues("bad start marker")))

	m.RecordSleep("woken", 2*time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sleepsTotal.WithLabelValues("woken")))

	m.RecordConnectionAccepted()
	m.SetActiveConnections(3)
	m.RecordConnectionClosed()
	m.RecordConnectionForceClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionsAccepted))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionsClosed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connectionsForceClosed))
}

func TestSleepExcludedFromLatencyHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newFsyncMetrics(reg)

	m.RecordRequest("SLEEP", "OK", time.Hour)
	m.RecordRequest("PWD", "OK", time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != "fsyncd_request_duration_milliseconds" {
			continue
		}
		require.Len(t, mf.GetMetric(), 1)
		assert.Equal(t, "PWD", mf.GetMetric()[0].GetLabel()[0].GetValue())
		return
	}
	t.Fatal("request duration histogram not gathered")
}
