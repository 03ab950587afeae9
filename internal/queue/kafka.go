package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"github.com/meridianlabs/trustpipeline/configs"
	"github.com/meridianlabs/trustpipeline/internal/models"
)

// DeadLetterEvent is a payload whose processing failed (§12 supplemented
// dead-letter handling). cmd/maf-worker publishes one each time persisting
// a fingerprint record fails and leaves Attempts unset.
type DeadLetterEvent struct {
	Event     models.Event `json:"event"`
	Reason    string       `json:"reason"`
	FailedAt  time.Time    `json:"failed_at"`
	Attempts  int          `json:"attempts"`
}

// DeadLetterProducer publishes permanently-failing events to a Kafka topic
// so the backlog survives a process restart, adapted from the teacher's
// Kafka worker (which uses sarama for an analytics CDC pipeline — here
// repurposed as the BSE/MAF dead-letter dispatcher, §11 domain stack).
type DeadLetterProducer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewDeadLetterProducer(cfg configs.KafkaConfig) (*DeadLetterProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Version = sarama.V3_0_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	return &DeadLetterProducer{producer: producer, topic: cfg.DeadLetterTopic}, nil
}

func (p *DeadLetterProducer) Publish(ctx context.Context, dle DeadLetterEvent) error {
	data, err := json.Marshal(dle)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(dle.Event.UserID),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish dead letter event: %w", err)
	}

	log.Warn().Str("user_id", dle.Event.UserID).Str("reason", dle.Reason).Msg("event sent to dead letter topic")
	return nil
}

func (p *DeadLetterProducer) Close() error {
	return p.producer.Close()
}

// DeadLetterConsumerHandler drains the dead-letter topic and persists each
// entry via the caller-supplied Sink. No binary in this repository starts
// RunDeadLetterConsumer.
type DeadLetterConsumerHandler struct {
	Sink func(ctx context.Context, dle DeadLetterEvent) error
}

func (h *DeadLetterConsumerHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *DeadLetterConsumerHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *DeadLetterConsumerHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			var dle DeadLetterEvent
			if err := json.Unmarshal(msg.Value, &dle); err != nil {
				log.Error().Err(err).Msg("failed to unmarshal dead letter event")
				session.MarkMessage(msg, "")
				continue
			}

			if err := h.Sink(session.Context(), dle); err != nil {
				log.Error().Err(err).Msg("failed to persist dead letter event")
				continue
			}

			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// RunDeadLetterConsumer blocks, consuming the dead-letter topic until ctx
// is cancelled. Retries the initial broker connection the way the
// teacher's kafka-worker does.
func RunDeadLetterConsumer(ctx context.Context, cfg configs.KafkaConfig, groupID string, handler *DeadLetterConsumerHandler) error {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Consumer.Return.Errors = true
	config.Version = sarama.V3_0_0_0

	var consumerGroup sarama.ConsumerGroup
	var err error
	for i := 0; i < 30; i++ {
		consumerGroup, err = sarama.NewConsumerGroup(cfg.Brokers, groupID, config)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("failed to connect to kafka, retrying")
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer group: %w", err)
	}
	defer consumerGroup.Close()

	for {
		if err := consumerGroup.Consume(ctx, []string{cfg.DeadLetterTopic}, handler); err != nil {
			log.Error().Err(err).Msg("error from dead letter consumer")
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}
