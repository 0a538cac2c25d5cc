package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Event types carried in Envelope.Type.
const (
	EventAssessment       = "wallet.assessment"
	EventBlacklistAdded   = "blacklist.added"
	EventBlacklistRemoved = "blacklist.removed"
)

// Envelope wraps every published payload.
type Envelope struct {
	Type string          `json:"type"`
	Key  string          `json:"key,omitempty"`
	TS   int64           `json:"ts"` // unix millis
	Data json.RawMessage `json:"data"`
}

// Sink publishes typed events. key partitions related events together.
type Sink interface {
	Emit(ctx context.Context, typ, key string, v any) error
	Close() error
}

type KafkaSink struct {
	topic string
	p     sarama.SyncProducer
	now   func() time.Time
}

// NewKafkaSink dials brokers with acks from all in-sync replicas.
func NewKafkaSink(brokers []string, topic string, cfg *sarama.Config) (*KafkaSink, error) {
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is empty")
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers")
	}
	if cfg == nil {
		cfg = sarama.NewConfig()
		cfg.Producer.RequiredAcks = sarama.WaitForAll
		cfg.Producer.Retry.Max = 5
		cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	}
	// SyncProducer requires both.
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return newKafkaSink(p, topic), nil
}

func newKafkaSink(p sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{topic: topic, p: p, now: time.Now}
}

func (s *KafkaSink) Close() error {
	if s.p != nil {
		return s.p.Close()
	}
	return nil
}

// Emit sends v wrapped in an Envelope and waits for the broker ack.
// SyncProducer takes no context, so ctx is only checked before sending.
func (s *KafkaSink) Emit(ctx context.Context, typ, key string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b, err := json.Marshal(Envelope{
		Type: typ,
		Key:  key,
		TS:   s.now().UnixMilli(),
		Data: data,
	})
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: s.topic,
		Value: sarama.ByteEncoder(b),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}
	if _, _, err = s.p.SendMessage(msg); err != nil {
		return fmt.Errorf("kafka emit failed: %w", err)
	}
	return nil
}
