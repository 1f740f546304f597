package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/capital-declarations-api/internal/models"
)

func TestMetricsServiceSnapshotAndExposition(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/portal/:token", http.StatusOK, 20*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/portal/:token", http.StatusNotFound, 40*time.Millisecond)
	m.RecordTransition(models.DeclarationStatusInProgress, models.SystemActor())
	m.RecordPortalView(PortalOutcomeFirst)
	m.RecordPortalUpload("ok")
	m.RecordPortalUpload("storage_failure")

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 30.0, snap.AverageRequestDurationMs, 0.001)
	assert.Equal(t, uint64(1), snap.Transitions)
	assert.Equal(t, uint64(1), snap.PortalViews)
	assert.Equal(t, uint64(1), snap.PortalUploads)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `declaration_transitions_total{actor="system",to="in_progress"} 1`))
	assert.True(t, strings.Contains(body, `portal_uploads_total{result="storage_failure"} 1`))
}

func TestMetricsServiceNilSafe(t *testing.T) {
	var m *MetricsService
	m.RecordPortalView(PortalOutcomeInvalid)
	m.RecordCacheOperation(true, time.Millisecond)
	assert.Equal(t, models.SystemMetrics{}, m.Snapshot())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
