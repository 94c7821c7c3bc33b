package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prohmpiriya/leadflow/pkg/config"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is anything that can be published with a partition key
type Message interface {
	Key() string
}

// Producer publishes JSON encoded messages to Kafka/Redpanda
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer creates a franz-go client and pings the seed brokers
func NewProducer(ctx context.Context, cfg config.KafkaConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach kafka brokers: %w", err)
	}

	return &Producer{client: client, topic: cfg.Topic}, nil
}

// Publish encodes msg and waits for the broker acknowledgement
func (p *Producer) Publish(ctx context.Context, eventType string, msg Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", eventType, err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(msg.Key()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(eventType)},
		},
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", eventType, err)
	}
	return nil
}

// Close flushes pending records and closes the client
func (p *Producer) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.client.Flush(ctx)
	p.client.Close()
}
