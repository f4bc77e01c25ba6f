package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObservePass("full_rescan", time.Now(), nil)
	m.ObservePass("full_rescan", time.Now(), errors.New("boom"))
	m.ObserveChanges(2, 1, 0)
	m.CacheHit()
	m.CacheMiss()
	m.CacheMiss()
	m.CacheResolved(true)
	m.Launch("counted")
	m.SetRecords(7)
	m.Published()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcilePasses.WithLabelValues("full_rescan", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcilePasses.WithLabelValues("full_rescan", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsChanged.WithLabelValues("added")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheResolutions.WithLabelValues("fallback")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.RegistryRecords))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ChangesPublished))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePass("x", time.Now(), nil)
		m.ObserveChanges(1, 1, 1)
		m.CacheHit()
		m.CacheMiss()
		m.CacheResolved(false)
		m.Launch("ignored")
		m.SetRecords(1)
		m.Published()
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	a, b := New(), New()
	a.Published()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ChangesPublished))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Launch("counted")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `appregistry_launches_total{outcome="counted"} 1`))
}
