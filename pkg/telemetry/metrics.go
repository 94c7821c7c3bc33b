package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricOpts holds options for creating metrics
type MetricOpts struct {
	Name        string
	Description string
	Unit        string
}

// Counter wraps an OTel counter
type Counter struct {
	counter metric.Int64Counter
}

// NewCounter creates a new counter metric
func NewCounter(opts MetricOpts) (*Counter, error) {
	c, err := GetMeter().Int64Counter(
		opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &Counter{counter: c}, nil
}

// Inc increments the counter by 1. Safe on a nil Counter.
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// Histogram wraps an OTel float histogram
type Histogram struct {
	histogram metric.Float64Histogram
}

// NewHistogram creates a histogram with explicit bucket boundaries
func NewHistogram(opts MetricOpts, boundaries ...float64) (*Histogram, error) {
	options := []metric.Float64HistogramOption{
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	}
	if len(boundaries) > 0 {
		options = append(options, metric.WithExplicitBucketBoundaries(boundaries...))
	}
	h, err := GetMeter().Float64Histogram(opts.Name, options...)
	if err != nil {
		return nil, err
	}
	return &Histogram{histogram: h}, nil
}

// Record records a value. Safe on a nil Histogram.
func (h *Histogram) Record(ctx context.Context, value float64, attrs ...attribute.KeyValue) {
	if h == nil {
		return
	}
	h.histogram.Record(ctx, value, metric.WithAttributes(attrs...))
}

// Since records the elapsed milliseconds since start
func (h *Histogram) Since(ctx context.Context, start time.Time, attrs ...attribute.KeyValue) {
	h.Record(ctx, float64(time.Since(start).Microseconds())/1000.0, attrs...)
}

// Metrics holds the service level instruments
type Metrics struct {
	LeadsCreated      *Counter
	MessagesAppended  *Counter
	LeadTransitions   *Counter
	Logins            *Counter
	FollowupsDue      *Counter
	AggregateDuration *Histogram
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// GetMetrics returns the lazily created service instruments. Instruments that
// fail to register are left nil and silently skipped.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		m := &Metrics{}
		m.LeadsCreated, _ = NewCounter(MetricOpts{
			Name:        "leads_created_total",
			Description: "Leads created from a first inbound message",
			Unit:        "{lead}",
		})
		m.MessagesAppended, _ = NewCounter(MetricOpts{
			Name:        "messages_appended_total",
			Description: "Messages appended to conversations",
			Unit:        "{message}",
		})
		m.LeadTransitions, _ = NewCounter(MetricOpts{
			Name:        "lead_transitions_total",
			Description: "Accepted lead status transitions",
			Unit:        "{transition}",
		})
		m.Logins, _ = NewCounter(MetricOpts{
			Name:        "logins_total",
			Description: "Login attempts by role and outcome",
			Unit:        "{attempt}",
		})
		m.FollowupsDue, _ = NewCounter(MetricOpts{
			Name:        "followups_due_total",
			Description: "Follow-up due events emitted by the scheduler",
			Unit:        "{event}",
		})
		m.AggregateDuration, _ = NewHistogram(MetricOpts{
			Name:        "analytics_aggregate_duration_ms",
			Description: "Time spent computing a dashboard snapshot",
			Unit:        "ms",
		}, 1, 5, 10, 25, 50, 100, 250, 500, 1000)
		metrics = m
	})
	return metrics
}
