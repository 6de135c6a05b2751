package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/office-ledger/internal/domain/entity"
)

func scrape(t *testing.T, m *Reminders) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestReminders_Exposition(t *testing.T) {
	m := NewReminders()

	m.ObserveDispatch(entity.DispatchSent)
	m.ObserveDispatch(entity.DispatchSent)
	m.ObserveDispatch(entity.DispatchFailed)
	m.ObserveCycle(entity.TriggerScheduled, entity.CycleTally{Attempted: 3, Sent: 2, Failed: 1}, 120*time.Millisecond)
	m.ObserveLeaseSkipped()

	body := scrape(t, m)
	assert.Contains(t, body, MetricDispatchesTotal+`{outcome="sent"} 2`)
	assert.Contains(t, body, MetricDispatchesTotal+`{outcome="failed"} 1`)
	assert.Contains(t, body, MetricCyclesTotal+`{trigger="scheduled"} 1`)
	assert.Contains(t, body, MetricCycleTally+`{field="attempted"} 3`)
	assert.Contains(t, body, MetricLeaseSkippedTotal+" 1")
	assert.Contains(t, body, MetricCycleDurationSeconds+"_count 1")
}
