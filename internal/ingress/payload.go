package ingress

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/meridianlabs/trustpipeline/internal/models"
)

// bindJSON decodes the raw webhook body; kept separate from gin's
// ShouldBindJSON so auth verification can run against the raw bytes first.
func bindJSON(body []byte, dest *WebhookPayload) error {
	return json.Unmarshal(body, dest)
}

// WebhookPayload is the `POST /webhook` request body (§4.4, §7).
type WebhookPayload struct {
	UserID        string                 `json:"user_id" validate:"required"`
	BehaviorScore *int                   `json:"behavior_score" validate:"required,min=0,max=100"`
	RiskFlags     []string               `json:"risk_flags" validate:"max=20"`
	Timestamp     *time.Time             `json:"timestamp,omitempty"`
	EventType     string                 `json:"event_type,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

var validate = validator.New()

// ValidatePayload accumulates every validation error rather than stopping
// at the first, per §4.4's "all validation errors accumulate" rule.
func ValidatePayload(p WebhookPayload) []string {
	var details []string

	err := validate.Struct(p)
	if err == nil {
		return nil
	}

	valErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}

	for _, fe := range valErrs {
		switch fe.Field() {
		case "UserID":
			details = append(details, "user_id must be a non-empty string")
		case "BehaviorScore":
			details = append(details, "behavior_score must be a number between 0 and 100")
		case "RiskFlags":
			details = append(details, "risk_flags must contain at most 20 entries")
		default:
			details = append(details, fmt.Sprintf("%s failed validation: %s", fe.Field(), fe.Tag()))
		}
	}
	return details
}

// ToEvent converts a validated payload into the Event the store persists.
func (p WebhookPayload) ToEvent(sourceIP, userAgent, deviceFingerprintID string) models.Event {
	ts := time.Now().UTC()
	if p.Timestamp != nil {
		ts = p.Timestamp.UTC()
	}

	return models.Event{
		UserID:              p.UserID,
		EventType:           p.EventType,
		Timestamp:           ts,
		Metadata:            p.Metadata,
		SourceIP:            sourceIP,
		UserAgent:           userAgent,
		DeviceFingerprintID: deviceFingerprintID,
	}
}
