package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestCacheLookupCounters(t *testing.T) {
	hits := value(t, cacheLookups.WithLabelValues("hit"))
	misses := value(t, cacheLookups.WithLabelValues("miss"))

	RecordCacheHit()
	RecordCacheHit()
	RecordCacheMiss()

	require.InDelta(t, hits+2, value(t, cacheLookups.WithLabelValues("hit")), 1e-9)
	require.InDelta(t, misses+1, value(t, cacheLookups.WithLabelValues("miss")), 1e-9)
}

func TestRecordModelLoadStatus(t *testing.T) {
	before := value(t, modelLoads.WithLabelValues("tiny", "cpu", "error"))
	RecordModelLoad("tiny", "cpu", errors.New("boom"), time.Second)
	require.InDelta(t, before+1, value(t, modelLoads.WithLabelValues("tiny", "cpu", "error")), 1e-9)
}

func TestRequestStartedBalancesGauge(t *testing.T) {
	before := value(t, activeRequests)
	done := RequestStarted()
	require.InDelta(t, before+1, value(t, activeRequests), 1e-9)
	done()
	require.InDelta(t, before, value(t, activeRequests), 1e-9)
}

func TestHandlerExposesMetrics(t *testing.T) {
	RecordTranscription("upload", "ok", 2*time.Second)
	SetLoadedModels(1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "voxscribe_transcriptions_total")
	require.Contains(t, string(body), "voxscribe_loaded_models 1")
}

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()

	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Counter != nil {
		return out.Counter.GetValue()
	}
	return out.Gauge.GetValue()
}
