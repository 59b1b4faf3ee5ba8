package metrics_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alkime/ebooks/internal/ebook"
	"github.com/alkime/ebooks/internal/metrics"
	"github.com/alkime/ebooks/internal/workflow"
)

func TestObserver(t *testing.T) {
	success := metrics.ProviderCallsTotal.WithLabelValues("cover", metrics.OutcomeSuccess)
	failure := metrics.ProviderCallsTotal.WithLabelValues("cover", metrics.OutcomeFailure)
	other := metrics.ProviderCallsTotal.WithLabelValues("cover", "error")
	beforeSuccess := testutil.ToFloat64(success)
	beforeFailure := testutil.ToFloat64(failure)
	beforeOther := testutil.ToFloat64(other)

	obs := metrics.Observer{}
	obs.ObserveOperation(workflow.OpCover, time.Second, nil)
	obs.ObserveOperation(workflow.OpCover, time.Second, ebook.NewCoverFailure(errors.New("boom")))
	obs.ObserveOperation(workflow.OpCover, time.Second, errors.New("panic"))

	assert.Equal(t, beforeSuccess+1, testutil.ToFloat64(success))
	assert.Equal(t, beforeFailure+1, testutil.ToFloat64(failure))
	assert.Equal(t, beforeOther+1, testutil.ToFloat64(other))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(metrics.Middleware())
	r.GET("/ping/:id", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	counter := metrics.HTTPRequestsTotal.WithLabelValues("GET", "/ping/:id", "200")
	before := testutil.ToFloat64(counter)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping/42", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, before+1, testutil.ToFloat64(counter), "labelled by route, not raw path")
}

func TestObserveExport(t *testing.T) {
	counter := metrics.ExportsTotal.WithLabelValues("pdf", metrics.OutcomeFailure)
	before := testutil.ToFloat64(counter)

	metrics.ObserveExport("pdf", errors.New("boom"))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
