package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/dqlited/dqlited/cfg"
	"github.com/dqlited/dqlited/publisher"
)

func init() {
	publisher.RegisterSink("kafka", func(config cfg.PublisherSinkConfiguration) (publisher.Sink, error) {
		if config.URL == "" {
			return nil, fmt.Errorf("kafka sink requires a url (comma-separated broker list)")
		}
		return NewKafka(strings.Split(config.URL, ","))
	})
}

// Kafka implements publisher.Sink over kafka-go, grounded on the teacher's
// KafkaSink (publisher/sink/kafka.go).
type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers []string) (*Kafka, error) {
	if len(brokers) == 0 || brokers[0] == "" {
		return nil, fmt.Errorf("kafka sink requires at least one broker address")
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              100,
		BatchBytes:             1 << 20,
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: true,
	}
	return &Kafka{writer: writer}, nil
}

func (k *Kafka) Publish(topic, key string, value []byte) error {
	return k.writer.WriteMessages(context.Background(), kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
	})
}

func (k *Kafka) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
