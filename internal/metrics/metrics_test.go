package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveRequest(t *testing.T) {
	m := New()

	m.ObserveRequest("GET", "/files/list", 200, 20*time.Millisecond)
	m.ObserveRequest("GET", "/files/list", 200, 30*time.Millisecond)
	m.ObserveRequest("POST", "/files/upload", 413, time.Second)

	assert.InDelta(t, 2, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "/files/list", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.requestsTotal.WithLabelValues("POST", "/files/upload", "413")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.requestDuration))
}

func TestUploadMetrics(t *testing.T) {
	m := New()

	m.UploadFinished("success", 100, time.Second)
	m.UploadFinished("error", 50, time.Second)
	m.AdmissionRejected("size")
	m.ObserveRefresh("ok")

	assert.InDelta(t, 1, testutil.ToFloat64(m.uploadsTotal.WithLabelValues("success")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.uploadsTotal.WithLabelValues("error")), 0)
	assert.InDelta(t, 100, testutil.ToFloat64(m.uploadBytesTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.admissionRejections.WithLabelValues("size")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.refreshesTotal.WithLabelValues("ok")), 0)
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.UploadFinished("success", 10, time.Millisecond)

	path := filepath.Join(t.TempDir(), "cloudvault.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `cloudvault_uploads_total{status="success"} 1`)

	err = m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "x.prom"))
	assert.Error(t, err)
}
