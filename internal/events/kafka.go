package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaConfig configures the Kafka publisher.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON messages keyed by pipeline name.
type KafkaPublisher struct {
	w     messageWriter
	topic string
	log   *zap.Logger
	now   func() time.Time
}

var _ Publisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher returns a publisher writing to cfg.Topic.
func NewKafkaPublisher(cfg KafkaConfig, log *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("events: at least one kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("events: kafka topic is required")
	}
	bt := cfg.BatchTimeout
	if bt <= 0 {
		bt = 50 * time.Millisecond
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           bt,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newKafkaPublisher(w, cfg.Topic, log), nil
}

func newKafkaPublisher(w messageWriter, topic string, log *zap.Logger) *KafkaPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaPublisher{w: w, topic: topic, log: log, now: time.Now}
}

// PublishRunFinished implements Publisher. A missing EventID is filled with a
// random UUID.
func (p *KafkaPublisher) PublishRunFinished(ctx context.Context, ev *RunFinished) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.EndedAt.IsZero() {
		ev.EndedAt = p.now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(ev.Pipeline),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(RunFinishedType)},
			{Key: "event_id", Value: []byte(ev.EventID)},
			{Key: "run_id", Value: []byte(strconv.FormatInt(ev.RunID, 10))},
		},
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		p.log.Error("publish run event failed", zap.String("topic", p.topic), zap.Int64("run_id", ev.RunID), zap.Error(err))
		return fmt.Errorf("events: publish run %d: %w", ev.RunID, err)
	}
	p.log.Debug("published run event", zap.String("topic", p.topic), zap.Int64("run_id", ev.RunID), zap.String("status", ev.Status))
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error { return p.w.Close() }
