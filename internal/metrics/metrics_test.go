package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAdvisorMetrics(t *testing.T) {
	t.Run("AdvisorQueries", func(t *testing.T) {
		before := testutil.ToFloat64(AdvisorQueries.WithLabelValues("BLOCK_SIZE", "ok"))
		AdvisorQueries.WithLabelValues("BLOCK_SIZE", "ok").Inc()
		AdvisorQueries.WithLabelValues("BLOCK_SIZE", "ok").Inc()
		assert.Equal(t, before+2, testutil.ToFloat64(AdvisorQueries.WithLabelValues("BLOCK_SIZE", "ok")))
	})

	t.Run("ZeroOccupancyResults", func(t *testing.T) {
		before := testutil.ToFloat64(ZeroOccupancyResults)
		ZeroOccupancyResults.Inc()
		assert.Equal(t, before+1, testutil.ToFloat64(ZeroOccupancyResults))
	})

	t.Run("RecommendedBlockSize", func(t *testing.T) {
		RecommendedBlockSize.WithLabelValues("a2000").Set(1024)
		assert.Equal(t, float64(1024), testutil.ToFloat64(RecommendedBlockSize.WithLabelValues("a2000")))
	})

	t.Run("histograms", func(t *testing.T) {
		assert.NotPanics(t, func() {
			SweepCandidates.Observe(32)
			AdvisorQueryDuration.WithLabelValues("SWEEP").Observe(0.002)
		})
	})
}

func TestMiddleware(t *testing.T) {
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), "/test")

	before := testutil.ToFloat64(EndpointResponses.WithLabelValues("/test", "418"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(EndpointResponses.WithLabelValues("/test", "418")))

	t.Run("default status", func(t *testing.T) {
		ok := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("ok"))
		}), "/ok")
		ok.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
		assert.Equal(t, float64(1), testutil.ToFloat64(EndpointResponses.WithLabelValues("/ok", "200")))
	})
}

func TestMetricsRegistration(t *testing.T) {
	metrics := []prometheus.Collector{
		EndpointResponses,
		AdvisorQueries,
		AdvisorQueryDuration,
		ZeroOccupancyResults,
		SweepCandidates,
		RecommendedBlockSize,
	}

	for _, metric := range metrics {
		// Already registered by promauto, so registering again must fail.
		err := prometheus.Register(metric)
		assert.Error(t, err)
	}
}
