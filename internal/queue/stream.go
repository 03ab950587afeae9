// Package queue carries events between the ingress, BSE/MAF, and the
// async fan-out worker. The fingerprint bus is Redis Streams (adapted from
// the teacher's transaction stream); the dead-letter path for permanently
// failing events is a Kafka topic (adapted from the teacher's Kafka
// worker), so the backlog survives process restarts (§12).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/meridianlabs/trustpipeline/configs"
	"github.com/meridianlabs/trustpipeline/internal/models"
)

// FingerprintStreamClient publishes/consumes FingerprintRecords over a
// Redis Stream with a consumer group, mirroring the teacher's
// RedisStreamClient (XADD/XREADGROUP/XCLAIM/XACK).
type FingerprintStreamClient struct {
	client        *redis.Client
	streamName    string
	consumerGroup string
	maxRetries    int
}

func NewFingerprintStreamClient(cfg configs.RedisConfig) (*FingerprintStreamClient, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	fsc := &FingerprintStreamClient{
		client:        client,
		streamName:    cfg.FingerprintStream,
		consumerGroup: cfg.ConsumerGroup,
		maxRetries:    cfg.MaxRetries,
	}

	if err := fsc.createConsumerGroup(ctx); err != nil {
		log.Warn().Err(err).Msg("consumer group may already exist")
	}

	log.Info().Msg("fingerprint stream client initialized")
	return fsc, nil
}

func (r *FingerprintStreamClient) createConsumerGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.streamName, r.consumerGroup, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return err
	}
	return nil
}

// Publish emits one FingerprintRecord onto the stream for asynchronous MAF
// pattern evaluation.
func (r *FingerprintStreamClient) Publish(ctx context.Context, record *models.FingerprintRecord) (string, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal fingerprint record: %w", err)
	}

	msgID, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.streamName,
		Values: map[string]interface{}{"data": string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish fingerprint record: %w", err)
	}

	return msgID, nil
}

// StreamMessage is one consumed record plus its stream message id (needed
// for Acknowledge).
type StreamMessage struct {
	ID     string
	Record *models.FingerprintRecord
}

// Consume reads new messages, claiming any abandoned pending entries first.
func (r *FingerprintStreamClient) Consume(ctx context.Context, consumerName string, count int64, block time.Duration) ([]StreamMessage, error) {
	claimed, err := r.claimPending(ctx, consumerName, count)
	if err != nil {
		log.Warn().Err(err).Msg("failed to claim pending fingerprint messages")
	}
	if len(claimed) > 0 {
		return claimed, nil
	}

	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.consumerGroup,
		Consumer: consumerName,
		Streams:  []string{r.streamName, ">"},
		Count:    count,
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read fingerprint stream: %w", err)
	}

	var out []StreamMessage
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			record, err := r.parse(msg)
			if err != nil {
				log.Error().Err(err).Str("message_id", msg.ID).Msg("failed to parse fingerprint message")
				continue
			}
			out = append(out, StreamMessage{ID: msg.ID, Record: record})
		}
	}
	return out, nil
}

func (r *FingerprintStreamClient) claimPending(ctx context.Context, consumerName string, count int64) ([]StreamMessage, error) {
	minIdle := 30 * time.Second

	pending, err := r.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.streamName,
		Group:  r.consumerGroup,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	var ids []string
	for _, p := range pending {
		if p.Idle >= minIdle {
			ids = append(ids, p.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	claimed, err := r.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.streamName,
		Group:    r.consumerGroup,
		Consumer: consumerName,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, err
	}

	var out []StreamMessage
	for _, msg := range claimed {
		record, err := r.parse(msg)
		if err != nil {
			log.Error().Err(err).Str("message_id", msg.ID).Msg("failed to parse claimed fingerprint message")
			continue
		}
		out = append(out, StreamMessage{ID: msg.ID, Record: record})
	}
	return out, nil
}

func (r *FingerprintStreamClient) parse(msg redis.XMessage) (*models.FingerprintRecord, error) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid message format")
	}
	var record models.FingerprintRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fingerprint record: %w", err)
	}
	return &record, nil
}

func (r *FingerprintStreamClient) Acknowledge(ctx context.Context, messageID string) error {
	return r.client.XAck(ctx, r.streamName, r.consumerGroup, messageID).Err()
}

func (r *FingerprintStreamClient) PendingCount(ctx context.Context) (int64, error) {
	pending, err := r.client.XPending(ctx, r.streamName, r.consumerGroup).Result()
	if err != nil {
		return 0, err
	}
	return pending.Count, nil
}

func (r *FingerprintStreamClient) Close() error {
	return r.client.Close()
}
