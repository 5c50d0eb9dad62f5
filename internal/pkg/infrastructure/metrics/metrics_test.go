package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/iot-for-tillgenglighet/iot-telemetry-registry/internal/pkg/ingestion"
)

func TestThatOutcomesAreCountedPerVariant(t *testing.T) {
	m := New()

	m.Accepted(ingestion.FlowField)
	m.Accepted(ingestion.FlowField)
	m.Rejected(ingestion.Quality, "unknown_device")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.reportsAccepted.WithLabelValues("flow")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reportsRejected.WithLabelValues("quality", "unknown_device")))
}

func TestThatTheHandlerExposesTheCounters(t *testing.T) {
	m := New()
	m.Probed("moisture", "box")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `telemetry_registry_probing_group_probes_total{group="moisture",strategy="box"} 1`))
}
