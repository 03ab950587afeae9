package ingress

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/meridianlabs/trustpipeline/configs"
	"github.com/meridianlabs/trustpipeline/internal/apierr"
	"github.com/meridianlabs/trustpipeline/internal/bse"
	"github.com/meridianlabs/trustpipeline/internal/cache"
	"github.com/meridianlabs/trustpipeline/internal/maf"
	"github.com/meridianlabs/trustpipeline/internal/models"
	"github.com/meridianlabs/trustpipeline/internal/queue"
	"github.com/meridianlabs/trustpipeline/internal/store"
)

// Handler wires authentication, rate limiting, the pre-filters, payload
// validation, and BSE/MAF invocation behind the webhook routes (§4.4).
type Handler struct {
	cfg            configs.WebhookConfig
	db             *store.Database
	auth           *Authenticator
	webhookLimiter *RateLimiter
	botLimiter     *RateLimiter
	fakeReferral   *FakeReferralPrefilter
	users          *store.UserStore
	events         *store.EventStore
	flags          *store.RiskFlagStore
	audit          *store.AuditStore
	misc           *store.MiscStore
	bse            *bse.Engine
	collector      *maf.Collector
	fingerprints   *queue.FingerprintStreamClient
	userLocks      *keyedLocks
}

func NewHandler(
	cfg configs.WebhookConfig,
	db *store.Database,
	users *store.UserStore,
	events *store.EventStore,
	flags *store.RiskFlagStore,
	audit *store.AuditStore,
	misc *store.MiscStore,
	redisClient *cache.Client,
	bseEngine *bse.Engine,
	collector *maf.Collector,
	fingerprintStream *queue.FingerprintStreamClient,
) *Handler {
	webhookLimit := cfg.RateLimitPerHour
	if webhookLimit == 0 {
		webhookLimit = 100
	}
	botLimit := cfg.BotDetectLimitHour
	if botLimit == 0 {
		botLimit = 20
	}

	return &Handler{
		cfg:            cfg,
		db:             db,
		auth:           NewAuthenticator(cfg),
		webhookLimiter: NewRateLimiter(webhookLimit, time.Hour),
		botLimiter:     NewRateLimiter(botLimit, time.Hour),
		fakeReferral:   NewFakeReferralPrefilter(redisClient),
		users:          users,
		events:         events,
		flags:          flags,
		audit:          audit,
		misc:           misc,
		bse:            bseEngine,
		collector:      collector,
		fingerprints:   fingerprintStream,
		userLocks:      newKeyedLocks(),
	}
}

// RegisterRoutes mounts the ingress surface onto a gin router.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/webhook", h.rateLimit(h.webhookLimiter), h.webhook)
	r.POST("/webhook/bot-detection", h.rateLimit(h.botLimiter), h.botDetectionSelftest)
	r.GET("/webhook/bot-detection/selftest", h.botDetectionSelftest)
	r.GET("/webhook/stats", h.stats)
	r.GET("/health", h.health)
}

func (h *Handler) rateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.Header("Retry-After", "3600")
			writeError(c, apierr.New(apierr.RateLimitExceeded, "rate limit exceeded"))
			c.Abort()
			return
		}
		c.Next()
	}
}

func writeError(c *gin.Context, e *apierr.APIError) {
	c.JSON(e.Status, e.ToEnvelope())
}

func (h *Handler) webhook(c *gin.Context) {
	start := time.Now()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, apierr.New(apierr.InvalidPayload, "could not read request body"))
		return
	}

	if apiErr := h.auth.Verify(c.GetHeader("X-Webhook-Signature"), c.GetHeader("Authorization"), body); apiErr != nil {
		writeError(c, apiErr)
		return
	}

	var payload WebhookPayload
	if err := bindJSON(body, &payload); err != nil {
		writeError(c, apierr.New(apierr.InvalidPayload, "malformed JSON body"))
		return
	}

	userAgent := c.Request.UserAgent()
	botResult := BotPrefilter(userAgent, c.GetHeader("X-Device-Fingerprint-Id"))
	if botResult.Blocked() {
		h.misc.CreateBotDetection(c.Request.Context(), &models.BotDetection{
			UserID:      payload.UserID,
			Probability: botResult.Probability,
			Signals:     botResult.Signals,
			Blocked:     true,
		})
		c.JSON(http.StatusForbidden, gin.H{
			"status":      "error",
			"error_code":  apierr.BotDetected,
			"message":     "request blocked by bot pre-filter",
			"bot_signals": botResult.Signals,
		})
		return
	}

	if payload.EventType == models.EventReferral {
		signals, err := h.fakeReferral.Check(c.Request.Context(), payload.UserID, c.ClientIP())
		if err != nil {
			log.Warn().Err(err).Msg("ingress: fake-referral prefilter cache error, allowing through")
		} else if len(signals) > 0 {
			h.misc.CreateFakeReferralDetection(c.Request.Context(), &models.FakeReferralDetection{
				UserID:  payload.UserID,
				Signals: signals,
				Blocked: true,
			})
			c.JSON(http.StatusForbidden, gin.H{
				"status":     "error",
				"error_code": apierr.FakeReferralDetected,
				"message":    "request blocked by fake-referral pre-filter",
				"signals":    signals,
			})
			return
		}
	}

	if details := ValidatePayload(payload); details != nil {
		writeError(c, apierr.New(apierr.ValidationError, "payload validation failed").WithDetails(details))
		return
	}

	event := payload.ToEvent(c.ClientIP(), userAgent, c.GetHeader("X-Device-Fingerprint-Id"))

	h.userLocks.Lock(event.UserID)
	defer h.userLocks.Unlock(event.UserID)

	ctx := c.Request.Context()
	user, err := h.users.GetByID(ctx, event.UserID)
	if err != nil && err != store.ErrUserNotFound {
		writeError(c, apierr.ClassifyDB(err))
		return
	}

	if user != nil && !user.LastUpdated.IsZero() && event.Timestamp.Sub(user.LastUpdated) < 60*time.Second && event.Timestamp.Sub(user.LastUpdated) >= 0 {
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	if err := h.events.Create(ctx, &event); err != nil {
		writeError(c, apierr.ClassifyDB(err))
		return
	}

	userCtx := models.UserContext{IsVerified: user != nil && user.IsVerified}
	if user != nil {
		userCtx.AccountAgeDays = user.AccountAgeDays(event.Timestamp)
		userCtx.CurrentScore = user.BehaviorScore
	} else {
		userCtx.CurrentScore = 100
	}
	recent, err := h.events.RecentForUser(ctx, event.UserID, event.Timestamp.Add(-24*time.Hour), event.Timestamp, 200)
	if err != nil {
		log.Warn().Err(err).Str("user_id", event.UserID).Msg("ingress: failed to load recent activity, scoring without it")
	} else {
		userCtx.RecentActivity = recent
	}

	result := h.bse.Score(event, userCtx)

	if err := h.users.UpdateScore(ctx, event.UserID, result.Score, event.Timestamp); err != nil {
		log.Error().Err(err).Str("user_id", event.UserID).Msg("ingress: user score write failed")
		h.flags.Create(ctx, &models.RiskFlag{UserID: event.UserID, Flag: "write_failure", Severity: models.SeverityHigh, Timestamp: event.Timestamp})
	}

	if len(result.Flags) > 0 {
		if err := h.flags.CreateMany(ctx, event.UserID, result.Flags, models.SeverityMedium, event.Timestamp); err != nil {
			log.Error().Err(err).Str("user_id", event.UserID).Msg("ingress: failed to persist risk flags")
		}
	}

	h.audit.CreateBestEffort(ctx, &models.AuditLog{
		EventType: models.AuditEventBSEScore,
		EntityID:  event.UserID,
		UserID:    &event.UserID,
		Action:    "score_update",
		Payload:   models.JSONB{"score": result.Score, "flags": result.Flags},
		IPAddress: c.ClientIP(),
		UserAgent: userAgent,
	})

	go h.bse.Forward(event.UserID, result, event.Timestamp)
	h.publishFingerprint(ctx, event, payload.Metadata)

	c.JSON(http.StatusOK, gin.H{
		"status":                   "success",
		"user_id":                  event.UserID,
		"score":                    result.Score,
		"flags_count":              len(result.Flags),
		"processed_at":             time.Now().UTC(),
		"processing_time_seconds":  time.Since(start).Seconds(),
		"bot_signals":              botResult.Signals,
	})
}

// publishFingerprint emits a FingerprintRecord onto the MAF stream for
// asynchronous pattern evaluation (§2 system overview: "BSE emits
// fingerprint record --> MAF"). Best-effort: a publish failure is logged
// and dropped, it never fails the webhook request.
func (h *Handler) publishFingerprint(ctx context.Context, event models.Event, metadata map[string]interface{}) {
	if h.fingerprints == nil || h.collector == nil {
		return
	}
	hashIn := maf.DeviceHashInputs{
		IP: event.SourceIP,
		UA: event.UserAgent,
	}
	var visitorID string
	if metadata != nil {
		hashIn.Screen, _ = metadata["screen"].(string)
		hashIn.TZ, _ = metadata["timezone"].(string)
		hashIn.Lang, _ = metadata["language"].(string)
		hashIn.Platform, _ = metadata["platform"].(string)
		hashIn.CanvasFP, _ = metadata["canvas_fingerprint"].(string)
		hashIn.WebGLFP, _ = metadata["webgl_fingerprint"].(string)
		visitorID, _ = metadata["visitor_id"].(string)
	}

	record := h.collector.Build(ctx, event, hashIn, visitorID)
	if _, err := h.fingerprints.Publish(ctx, &record); err != nil {
		log.Warn().Err(err).Str("user_id", event.UserID).Msg("ingress: failed to publish fingerprint record")
	}
}

func (h *Handler) botDetectionSelftest(c *gin.Context) {
	result := BotPrefilter(c.Request.UserAgent(), c.GetHeader("X-Device-Fingerprint-Id"))
	c.JSON(http.StatusOK, gin.H{
		"probability": result.Probability,
		"signals":     result.Signals,
		"blocked":     result.Blocked(),
	})
}

// stats reports aggregate webhook counters for the trailing 24h (§6
// GET /webhook/stats).
func (h *Handler) stats(c *gin.Context) {
	ctx := c.Request.Context()
	now := time.Now().UTC()
	since := now.Add(-24 * time.Hour)

	eventCount, err := h.events.CountSince(ctx, since, now)
	if err != nil {
		log.Error().Err(err).Msg("ingress: stats event count failed")
	}
	flags, err := h.flags.Since(ctx, since, now)
	if err != nil {
		log.Error().Err(err).Msg("ingress: stats flag count failed")
	}
	botTotal, botBlocked, err := h.misc.CountBotDetectionsSince(ctx, since, now)
	if err != nil {
		log.Error().Err(err).Msg("ingress: stats bot detection count failed")
	}
	referralTotal, referralBlocked, err := h.misc.CountFakeReferralDetectionsSince(ctx, since, now)
	if err != nil {
		log.Error().Err(err).Msg("ingress: stats fake referral count failed")
	}

	c.JSON(http.StatusOK, gin.H{
		"window_hours":           24,
		"events_processed":       eventCount,
		"risk_flags_raised":      len(flags),
		"bot_detections_total":   botTotal,
		"bot_detections_blocked": botBlocked,
		"fake_referral_total":    referralTotal,
		"fake_referral_blocked":  referralBlocked,
		"generated_at":           now,
	})
}

func (h *Handler) health(c *gin.Context) {
	dbOK := true
	if err := h.db.HealthCheck(c.Request.Context()); err != nil {
		dbOK = false
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"database": dbOK,
		"auth_method": h.cfg.AuthMethod,
		"features": gin.H{
			"bot_detection":           true,
			"bse":                     true,
			"fake_referral_detection": true,
		},
	})
}
