package event

import (
	"context"
	"sync"

	"github.com/prohmpiriya/leadflow/internal/domain"
	"github.com/prohmpiriya/leadflow/pkg/kafka"
	"github.com/prohmpiriya/leadflow/pkg/logger"
	"go.uber.org/zap"
)

// Publisher emits lead events to downstream collaborators
type Publisher interface {
	Publish(ctx context.Context, evt *domain.LeadEvent) error
}

// KafkaPublisher publishes lead events through a Kafka producer
type KafkaPublisher struct {
	producer *kafka.Producer
}

// NewKafkaPublisher creates a publisher on top of producer
func NewKafkaPublisher(producer *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// Publish sends evt keyed by tenant and lead
func (p *KafkaPublisher) Publish(ctx context.Context, evt *domain.LeadEvent) error {
	return p.producer.Publish(ctx, evt.EventType, evt)
}

// LogPublisher only logs events, used when Kafka is disabled
type LogPublisher struct{}

// NewLogPublisher creates a LogPublisher
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{}
}

func (p *LogPublisher) Publish(ctx context.Context, evt *domain.LeadEvent) error {
	logger.WithContext(ctx).Debug("Lead event",
		zap.String("event_type", evt.EventType),
		zap.String("tenant_id", evt.TenantID),
		zap.String("lead_id", evt.LeadID),
	)
	return nil
}

// MemoryPublisher records events in memory for tests
type MemoryPublisher struct {
	mu     sync.Mutex
	events []*domain.LeadEvent
}

// NewMemoryPublisher creates an empty MemoryPublisher
func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(ctx context.Context, evt *domain.LeadEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := *evt
	p.events = append(p.events, &c)
	return nil
}

// Events returns recorded events of the given type, all when eventType is empty
func (p *MemoryPublisher) Events(eventType string) []*domain.LeadEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*domain.LeadEvent
	for _, e := range p.events {
		if eventType == "" || e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}
