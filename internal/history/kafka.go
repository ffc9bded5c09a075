package history

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"live-subtitle-pipeline/internal/model"
	"live-subtitle-pipeline/internal/observability/metrics"
)

// KafkaConfig holds Kafka sink configuration.
type KafkaConfig struct {
	Brokers   []string
	Topic     string
	Principal string
	Enabled   bool
}

// KafkaSink publishes history records to a Kafka topic, keyed by sequence
// number. When disabled it degrades to log-only mode so the rest of the
// pipeline is unaffected by a missing broker.
type KafkaSink struct {
	writer    *kafka.Writer
	topic     string
	principal string
	enabled   bool
	metrics   *metrics.Metrics
}

// NewKafkaSink creates a Kafka history sink.
func NewKafkaSink(cfg *KafkaConfig) *KafkaSink {
	m := metrics.DefaultMetrics

	if cfg == nil || !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka history sink disabled, using log-only mode")
		s := &KafkaSink{enabled: false, metrics: m}
		if cfg != nil {
			s.topic = cfg.Topic
			s.principal = cfg.Principal
		}
		return s
	}

	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}
	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topic", cfg.Topic).
		Str("principal", cfg.Principal).
		Msg("Kafka history sink initialized")

	return &KafkaSink{
		writer:    writer,
		topic:     cfg.Topic,
		principal: cfg.Principal,
		enabled:   true,
		metrics:   m,
	}
}

// Append publishes one history record.
func (s *KafkaSink) Append(ctx context.Context, rec model.HistoryRecord) error {
	start := time.Now()

	payload, err := json.Marshal(rec)
	if err != nil {
		log.Error().Err(err).Str("topic", s.topic).Msg("Failed to marshal history record")
		return err
	}

	log.Debug().
		Str("topic", s.topic).
		Uint64("sequenceNo", rec.SequenceNo).
		RawJSON("payload", payload).
		Msg("Publishing history record")

	if !s.enabled || s.writer == nil {
		s.metrics.HistoryPublishLatency.Observe(time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(rec.SequenceNo, 10)),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte("subtitle.history.record")},
			{Key: "principal", Value: []byte(s.principal)},
		},
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", s.topic).
			Uint64("sequenceNo", rec.SequenceNo).
			Msg("Failed to write history record to Kafka")
		s.metrics.HistoryPublishLatency.Observe(time.Since(start).Seconds())
		return err
	}

	s.metrics.HistoryPublishLatency.Observe(time.Since(start).Seconds())
	return nil
}

// Close closes the Kafka writer.
func (s *KafkaSink) Close() error {
	if s.writer == nil {
		return nil
	}
	if err := s.writer.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing Kafka history writer")
		return err
	}
	return nil
}
