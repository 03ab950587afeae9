package dashboard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

// Collectors exposes SystemMetrics as prometheus gauges under /metrics,
// scraped independently of the JSON /api/dashboard/metrics endpoint.
type Collectors struct {
	eventsPerSec        prometheus.Gauge
	avgProcessingTimeMs prometheus.Gauge
	queueDepth          prometheus.Gauge
	activeWorkers       prometheus.Gauge
	dbConnsActive       prometheus.Gauge
	dbConnsIdle         prometheus.Gauge
	redisMemoryUsedMB   prometheus.Gauge
	errorRate           prometheus.Gauge
}

func NewCollectors(registry prometheus.Registerer) *Collectors {
	factory := promauto.With(registry)
	return &Collectors{
		eventsPerSec:        factory.NewGauge(prometheus.GaugeOpts{Namespace: "trustpipeline", Name: "events_per_second", Help: "ingested events per second"}),
		avgProcessingTimeMs: factory.NewGauge(prometheus.GaugeOpts{Namespace: "trustpipeline", Name: "avg_processing_time_ms", Help: "average webhook processing latency in milliseconds"}),
		queueDepth:          factory.NewGauge(prometheus.GaugeOpts{Namespace: "trustpipeline", Name: "queue_depth", Help: "pending items in the dead-letter queue"}),
		activeWorkers:       factory.NewGauge(prometheus.GaugeOpts{Namespace: "trustpipeline", Name: "active_workers", Help: "active users counted toward system load"}),
		dbConnsActive:       factory.NewGauge(prometheus.GaugeOpts{Namespace: "trustpipeline", Name: "db_connections_active", Help: "active postgres pool connections"}),
		dbConnsIdle:         factory.NewGauge(prometheus.GaugeOpts{Namespace: "trustpipeline", Name: "db_connections_idle", Help: "idle postgres pool connections"}),
		redisMemoryUsedMB:   factory.NewGauge(prometheus.GaugeOpts{Namespace: "trustpipeline", Name: "redis_memory_used_mb", Help: "redis memory usage in megabytes"}),
		errorRate:           factory.NewGauge(prometheus.GaugeOpts{Namespace: "trustpipeline", Name: "error_rate", Help: "fraction of webhook requests resulting in an error response"}),
	}
}

// Set updates every gauge from a freshly computed SystemMetrics snapshot.
func (c *Collectors) Set(m models.SystemMetrics) {
	c.eventsPerSec.Set(m.EventsPerSec)
	c.avgProcessingTimeMs.Set(m.AvgProcessingTimeMs)
	c.queueDepth.Set(float64(m.QueueDepth))
	c.activeWorkers.Set(float64(m.ActiveWorkers))
	c.dbConnsActive.Set(float64(m.DBConnectionsActive))
	c.dbConnsIdle.Set(float64(m.DBConnectionsIdle))
	c.redisMemoryUsedMB.Set(m.RedisMemoryUsedMB)
	c.errorRate.Set(m.ErrorRate)
}
