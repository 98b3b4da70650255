package handlers

import (
	"context"
	"sort"

	"school-library/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// MetricsReader is pulled for an in-process snapshot.
// sdkmetric.ManualReader implements it.
type MetricsReader interface {
	Collect(ctx context.Context, rm *metricdata.ResourceMetrics) error
}

// MetricPoint is one counter value with its attributes
type MetricPoint struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      float64           `json:"value"`
}

// MetricsHandler exposes the circulation counters
type MetricsHandler struct {
	reader MetricsReader
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(reader MetricsReader) *MetricsHandler {
	return &MetricsHandler{reader: reader}
}

// Snapshot returns the current counter values
// @Summary Metrics snapshot
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response
// @Router /admin/metrics [get]
func (h *MetricsHandler) Snapshot(c *fiber.Ctx) error {
	var rm metricdata.ResourceMetrics
	if err := h.reader.Collect(c.UserContext(), &rm); err != nil {
		return fail(c, err, "Failed to collect metrics")
	}
	return response.Success(c, "Metrics collected", flatten(rm))
}

func flatten(rm metricdata.ResourceMetrics) []MetricPoint {
	points := []MetricPoint{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					points = append(points, MetricPoint{Name: m.Name, Attributes: attributes(dp.Attributes.ToSlice()), Value: float64(dp.Value)})
				}
			case metricdata.Sum[float64]:
				for _, dp := range data.DataPoints {
					points = append(points, MetricPoint{Name: m.Name, Attributes: attributes(dp.Attributes.ToSlice()), Value: dp.Value})
				}
			}
		}
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Name < points[j].Name })
	return points
}

func attributes(kvs []attribute.KeyValue) map[string]string {
	if len(kvs) == 0 {
		return nil
	}
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}
