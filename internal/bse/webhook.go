package bse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meridianlabs/trustpipeline/configs"
)

// outboundPayload is the body BSE POSTs to the configured webhook after
// every scoring run (§4.1 Forwarding).
type outboundPayload struct {
	UserID        string    `json:"user_id"`
	BehaviorScore int       `json:"behavior_score"`
	RiskFlags     []string  `json:"risk_flags"`
	Timestamp     time.Time `json:"timestamp"`
}

// Forwarder POSTs scoring results to an outbound webhook with bounded
// retry. Failure is logged and swallowed: it never reverses the score
// already persisted to the user row.
type Forwarder struct {
	url        string
	client     *http.Client
	maxRetries int
	baseDelay  time.Duration
}

func NewForwarder(cfg configs.WebhookConfig) *Forwarder {
	return &Forwarder{
		url:        cfg.OutboundURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		baseDelay:  5 * time.Second,
	}
}

// Send fires the webhook synchronously with exponential backoff (base 5s,
// jitter up to 25% of the delay) across up to 3 attempts. It runs in the
// caller's goroutine; callers wanting non-blocking forwarding should call
// this in a goroutine of their own.
func (f *Forwarder) Send(userID string, score int, flags []string, timestamp time.Time) {
	if f.url == "" {
		return
	}

	body, err := json.Marshal(outboundPayload{
		UserID:        userID,
		BehaviorScore: score,
		RiskFlags:     flags,
		Timestamp:     timestamp,
	})
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("bse: failed to marshal outbound webhook payload")
		return
	}

	delay := f.baseDelay
	var lastErr error
	for attempt := 1; attempt <= f.maxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		lastErr = f.post(ctx, body)
		cancel()
		if lastErr == nil {
			return
		}

		log.Warn().Err(lastErr).Str("user_id", userID).Int("attempt", attempt).Msg("bse: outbound webhook attempt failed")
		if attempt == f.maxRetries {
			break
		}

		jitter := time.Duration(rand.Int63n(int64(delay) / 4))
		time.Sleep(delay + jitter)
		delay *= 2
	}

	log.Error().Err(lastErr).Str("user_id", userID).Msg("bse: outbound webhook exhausted retry budget, dropping")
}

func (f *Forwarder) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
