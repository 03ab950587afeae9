package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User is the subject of behavioral scoring. IDs are caller-supplied
// strings (webhook payloads carry "user_id" as an opaque string, not
// necessarily a UUID), so User.ID is not typed as uuid.UUID.
type User struct {
	ID            string    `json:"id"`
	BehaviorScore int       `json:"behavior_score"`
	WeeklyScore   int       `json:"weekly_score"`
	IsVerified    bool      `json:"is_verified"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdated   time.Time `json:"last_updated"`
	Metadata      JSONB     `json:"metadata,omitempty"`
}

// AccountAgeDays returns the account's age in days at t, as a fractional value.
func (u User) AccountAgeDays(t time.Time) float64 {
	return t.Sub(u.CreatedAt).Hours() / 24
}

// Event is one immutable behavioral observation.
type Event struct {
	ID                 uuid.UUID `json:"id"`
	UserID             string    `json:"user_id"`
	EventType          string    `json:"event_type"`
	Timestamp          time.Time `json:"timestamp"`
	Metadata           JSONB     `json:"metadata,omitempty"`
	SourceIP           string    `json:"source_ip"`
	UserAgent          string    `json:"user_agent"`
	DeviceFingerprintID string   `json:"device_fingerprint_id,omitempty"`
}

// EventType enum values.
const (
	EventLogin             = "login"
	EventSignup            = "signup"
	EventReferral          = "referral"
	EventMemeUpload        = "meme_upload"
	EventSocialInteraction = "social_interaction"
	EventFormSubmission    = "form_submission"
	EventWalletConnection  = "wallet_connection"
	EventNFTListing        = "nft_listing"
	EventClick             = "click"
	EventPageView          = "page_view"
)

// FingerprintRecord is a canonical device/IP sighting written by the MAF collector.
type FingerprintRecord struct {
	ID              uuid.UUID `json:"id"`
	UserID          string    `json:"user_id"`
	EventType       string    `json:"event_type"`
	IP              string    `json:"ip"`
	UserAgent       string    `json:"user_agent"`
	DeviceHash      string    `json:"device_hash"`
	Timestamp       time.Time `json:"timestamp"`
	Confidence      float64   `json:"confidence"`
	Geo             string    `json:"geo,omitempty"`
	BrowserDetails  JSONB     `json:"browser_details,omitempty"`
}

// RiskFlag is an append-only per-user risk tag.
type RiskFlag struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Flag      string    `json:"flag"`
	Severity  string    `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Metadata  JSONB     `json:"metadata,omitempty"`
}

// Severity enum values shared by RiskFlag and Anomaly.
const (
	SeverityLow    = "LOW"
	SeverityMedium = "MED"
	SeverityHigh   = "HIGH"
)

// Anomaly is a cross-user pattern hit produced by MAF.
type Anomaly struct {
	ID             uuid.UUID `json:"id"`
	PatternName    string    `json:"pattern_name"`
	Severity       string    `json:"severity"`
	AffectedUsers  []string  `json:"affected_users"`
	FingerprintData JSONB    `json:"fingerprint_data,omitempty"`
	RiskScore      float64   `json:"risk_score"`
	DetectedAt     time.Time `json:"detected_at"`
	Status         string    `json:"status"`
	Description    string    `json:"description"`
}

// Anomaly status values.
const (
	AnomalyStatusOpen     = "open"
	AnomalyStatusResolved = "resolved"
)

// LeaderboardEntry is a materialized ranking row.
type LeaderboardEntry struct {
	ID               uuid.UUID `json:"id"`
	UserID           string    `json:"user_id"`
	Position         int       `json:"position"`
	BehaviorScore    int       `json:"behavior_score"`
	PreviousPosition *int      `json:"previous_position,omitempty"`
	PositionChange   int       `json:"position_change"`
	CreatedAt        time.Time `json:"created_at"`
}

// Challenge is a weekly meme task.
type Challenge struct {
	ID            uuid.UUID `json:"id"`
	Type          string    `json:"type"`
	Description   string    `json:"description"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	RewardPoints  int       `json:"reward_points"`
	Active        bool      `json:"active"`
}

// Challenge template categories (§4.3 weekly_challenges_and_reset).
const (
	ChallengeThemeType      = "theme"
	ChallengeFormatType     = "format"
	ChallengeViralType      = "viral"
	ChallengeEngagementType = "engagement"
	ChallengeDailyType      = "daily"
)

// JobLog is a scheduled-job audit row.
type JobLog struct {
	ID        uuid.UUID `json:"id"`
	JobName   string    `json:"job_name"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Metadata  JSONB     `json:"metadata,omitempty"`
}

// JobLog status values.
const (
	JobStatusSuccess        = "success"
	JobStatusFailed         = "failed"
	JobStatusSkippedOverlap = "skipped_overlap"
)

// Alert is an operator-visible incident.
type Alert struct {
	ID        uuid.UUID `json:"id"`
	AlertType string    `json:"alert_type"`
	Priority  string    `json:"priority"`
	Summary   string    `json:"summary"`
	Details   JSONB     `json:"details,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Alert priority/status values.
const (
	AlertPriorityHigh   = "HIGH"
	AlertPriorityMedium = "MEDIUM"
	AlertStatusOpen     = "open"
	AlertStatusResolved = "resolved"
)

// Passkey is a short-lived authorization token embedded in User.Metadata.
type Passkey struct {
	Scope    string `json:"scope"`
	MAC      string `json:"mac"`
	IssuedAt int64  `json:"issued_at"`
}

// Passkey scope values.
const (
	PasskeyScopeWallet  = "wallet"
	PasskeyScopeSession = "session"
)

// AuditLog records a best-effort trail of scoring decisions, account
// mutations and access decisions. Never blocks the primary operation.
type AuditLog struct {
	ID         uuid.UUID  `json:"id"`
	EventType  string     `json:"event_type"`
	EntityID   string     `json:"entity_id"`
	EntityType string     `json:"entity_type"`
	UserID     *string    `json:"user_id,omitempty"`
	Action     string     `json:"action"`
	Payload    JSONB      `json:"payload,omitempty"`
	IPAddress  string     `json:"ip_address,omitempty"`
	UserAgent  string     `json:"user_agent,omitempty"`
	RequestID  string     `json:"request_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// AuditLog event type values.
const (
	AuditEventBSEScore      = "bse_score"
	AuditEventSOLJob        = "sol_job"
	AuditEventAccessDecision = "access_decision"
)

// AccessLog is written by AGK for every access decision (best effort).
type AccessLog struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	Granted     bool      `json:"granted"`
	Reason      string    `json:"reason,omitempty"`
	AccessLevel string    `json:"access_level,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// BotDetection is a persisted bot pre-filter verdict (§6 bot_detections table).
type BotDetection struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	Probability float64   `json:"probability"`
	Signals     []string  `json:"signals"`
	Blocked     bool      `json:"blocked"`
	CreatedAt   time.Time `json:"created_at"`
}

// FakeReferralDetection is a persisted fake-referral pre-filter verdict.
type FakeReferralDetection struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Signals   []string  `json:"signals"`
	Blocked   bool      `json:"blocked"`
	CreatedAt time.Time `json:"created_at"`
}

// UserContext is the input BSE needs beyond the Event itself.
type UserContext struct {
	AccountAgeDays float64
	CurrentScore   int
	IsVerified     bool
	RecentActivity []Event // last N in [50,200], previous 24h
}

// RiskLevel enum values (§4.1).
const (
	RiskLevelSuspicious   = "suspicious"
	RiskLevelNormal       = "normal"
	RiskLevelHighlyTrusted = "highly_trusted"
)

// FlagColor enum values (§4.2).
const (
	FlagColorRed    = "RED"
	FlagColorYellow = "YELLOW"
	FlagColorGreen  = "GREEN"
)

// VelocityScore enum values.
const (
	VelocityLow    = "low"
	VelocityMedium = "medium"
	VelocityHigh   = "high"
)

// FinalRiskAssessment enum values (§4.2 integration output).
const (
	RiskVeryLow  = "VERY_LOW"
	RiskLow      = "LOW"
	RiskMedium   = "MEDIUM"
	RiskHigh     = "HIGH"
	RiskCritical = "CRITICAL"
)

// JSONB is a helper type for PostgreSQL JSONB columns, matching the
// marshal/scan idiom used throughout the store adapter.
type JSONB map[string]interface{}

func (j JSONB) Value() ([]byte, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Pagination mirrors the dashboard's list-endpoint paging contract.
type Pagination struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}

// PaginatedResponse wraps paginated results.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	Pagination Pagination  `json:"pagination"`
}

// SystemMetrics backs /api/dashboard/metrics and the prometheus exporter.
type SystemMetrics struct {
	Timestamp            time.Time `json:"timestamp"`
	EventsPerSec         float64   `json:"events_per_sec"`
	AvgProcessingTimeMs  float64   `json:"avg_processing_time_ms"`
	QueueDepth           int       `json:"queue_depth"`
	ActiveWorkers        int       `json:"active_workers"`
	DBConnectionsActive  int       `json:"db_connections_active"`
	DBConnectionsIdle    int       `json:"db_connections_idle"`
	RedisMemoryUsedMB    float64   `json:"redis_memory_used_mb"`
	ErrorRate            float64   `json:"error_rate"`
}
