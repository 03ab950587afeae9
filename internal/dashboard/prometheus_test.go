package dashboard

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestCollectors_Set(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollectors(registry)

	c.Set(models.SystemMetrics{
		EventsPerSec:        12.5,
		AvgProcessingTimeMs: 4.2,
		QueueDepth:          3,
		ActiveWorkers:       7,
		DBConnectionsActive: 2,
		DBConnectionsIdle:   5,
		RedisMemoryUsedMB:   128.0,
		ErrorRate:           0.01,
	})

	if got := gaugeValue(t, c.eventsPerSec); got != 12.5 {
		t.Errorf("eventsPerSec = %v, want 12.5", got)
	}
	if got := gaugeValue(t, c.activeWorkers); got != 7 {
		t.Errorf("activeWorkers = %v, want 7", got)
	}
	if got := gaugeValue(t, c.queueDepth); got != 3 {
		t.Errorf("queueDepth = %v, want 3", got)
	}
}
