package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("source", "webhook"),
		attribute.String("owner_id", "456"),
		attribute.String("outcome", "settled"),
	)
	require.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("source"), attrs[0].Key)
	assert.Equal(t, attribute.Key("outcome"), attrs[1].Key)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordBillGenerated(context.Background(), "gateway")
		m.RecordPaymentEvent(context.Background(), "webhook", "settled")
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	httpMetrics, err := NewHTTPMetrics(Config{}, noop.NewMeterProvider())
	require.NoError(t, err)

	engine := gin.New()
	engine.Use(httpMetrics.GinMiddleware())
	engine.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
