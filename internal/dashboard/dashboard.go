// Package dashboard serves the operator-facing HTTP surface: aggregate
// chart data, compact metrics, and a websocket push channel (§6 Dashboard
// endpoints).
package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meridianlabs/trustpipeline/internal/auth"
	"github.com/meridianlabs/trustpipeline/internal/models"
	"github.com/meridianlabs/trustpipeline/internal/store"
)

var timeRanges = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// Service answers dashboard queries from the store.
type Service struct {
	events      *store.EventStore
	flags       *store.RiskFlagStore
	anomalies   *store.AnomalyStore
	leaderboard *store.LeaderboardStore
	users       *store.UserStore
	hub         *hub
	collectors  *Collectors
}

func NewService(events *store.EventStore, flags *store.RiskFlagStore, anomalies *store.AnomalyStore, leaderboard *store.LeaderboardStore, users *store.UserStore, registry prometheus.Registerer) *Service {
	return &Service{
		events: events, flags: flags, anomalies: anomalies, leaderboard: leaderboard, users: users,
		hub:        newHub(),
		collectors: NewCollectors(registry),
	}
}

// RegisterRoutes mounts the dashboard surface. jwtManager is nil in
// deployments that haven't configured DASHBOARD_JWT_SECRET, in which case
// the routes are unauthenticated — operators are expected to put the
// dashboard behind a reverse proxy in that case.
func (s *Service) RegisterRoutes(r gin.IRouter, jwtManager *auth.JWTManager) {
	var group gin.IRouter = r
	if jwtManager != nil {
		group = r.Group("/", auth.AuthMiddleware(jwtManager))
	}
	group.GET("/api/dashboard/data", s.data)
	group.GET("/api/dashboard/metrics", s.metrics)
	group.GET("/api/dashboard/stream", s.stream)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (s *Service) data(c *gin.Context) {
	window := c.DefaultQuery("time_range", "24h")
	duration, ok := timeRanges[window]
	if !ok {
		duration = 24 * time.Hour
	}

	ctx := c.Request.Context()
	now := time.Now().UTC()
	since := now.Add(-duration)

	flags, err := s.flags.Since(ctx, since, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load flags"})
		return
	}
	anomalies, err := s.anomalies.Since(ctx, since, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load anomalies"})
		return
	}
	leaderboard, err := s.leaderboard.Current(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load leaderboard"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bse_trend":          bseTrend(flags, since, now),
		"score_zones":        scoreZones(leaderboard),
		"flag_pie":           flagPie(flags),
		"bot_pattern_bubbles": botPatternBubbles(anomalies),
		"leaderboard":        leaderboard,
		"summary": gin.H{
			"time_range":     window,
			"total_flags":    len(flags),
			"total_anomalies": len(anomalies),
			"leaderboard_size": len(leaderboard),
		},
	})
}

func (s *Service) metrics(c *gin.Context) {
	ctx := c.Request.Context()
	userCount, err := s.users.Count(ctx)
	if err != nil {
		userCount = 0
	}
	snapshot := Metrics(ctx, userCount)
	s.collectors.Set(snapshot)
	c.JSON(http.StatusOK, snapshot)
}

func bseTrend(flags []models.RiskFlag, since, now time.Time) []gin.H {
	buckets := make(map[string]int)
	for _, f := range flags {
		bucket := f.Timestamp.Format("2006-01-02T15")
		buckets[bucket]++
	}
	out := make([]gin.H, 0, len(buckets))
	for bucket, count := range buckets {
		out = append(out, gin.H{"bucket": bucket, "flag_count": count})
	}
	return out
}

func scoreZones(entries []models.LeaderboardEntry) gin.H {
	var suspicious, normal, trusted int
	for _, e := range entries {
		switch {
		case e.BehaviorScore <= 49:
			suspicious++
		case e.BehaviorScore <= 79:
			normal++
		default:
			trusted++
		}
	}
	return gin.H{"suspicious": suspicious, "normal": normal, "highly_trusted": trusted}
}

func flagPie(flags []models.RiskFlag) map[string]int {
	counts := make(map[string]int)
	for _, f := range flags {
		counts[f.Flag]++
	}
	return counts
}

func botPatternBubbles(anomalies []models.Anomaly) []gin.H {
	out := make([]gin.H, 0, len(anomalies))
	for _, a := range anomalies {
		out = append(out, gin.H{
			"pattern":    a.PatternName,
			"severity":   a.Severity,
			"risk_score": a.RiskScore,
			"users":      len(a.AffectedUsers),
		})
	}
	return out
}

// Metrics builds the compact SystemMetrics payload for /api/dashboard/metrics
// and the prometheus exporter.
func Metrics(ctx context.Context, activeUsers int) models.SystemMetrics {
	return models.SystemMetrics{
		Timestamp:     time.Now().UTC(),
		ActiveWorkers: activeUsers,
	}
}
