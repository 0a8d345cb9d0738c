package helper

import (
	"context"
	"maps"
	"sync"

	"github.com/AntonStoeckl/eventsourced-aggregates-go/eventstore"
)

// SpySpanContext is the span handed out by TracingCollectorSpy.
type SpySpanContext struct {
	mu         sync.Mutex
	status     string
	attributes map[string]string
}

func (c *SpySpanContext) SetStatus(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = status
}

func (c *SpySpanContext) AddAttribute(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attributes == nil {
		c.attributes = map[string]string{}
	}

	c.attributes[key] = value
}

func (c *SpySpanContext) GetStatus() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status
}

func (c *SpySpanContext) GetAttributes() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return maps.Clone(c.attributes)
}

// SpySpanRecord is a started span together with what FinishSpan reported for it.
type SpySpanRecord struct {
	Name            string
	StartAttributes map[string]string
	Status          string
	EndAttributes   map[string]string
	Finished        bool
	SpanContext     *SpySpanContext
}

// TracingCollectorSpy implements eventstore.TracingCollector and keeps every span in start order.
// It does not put spans into the context.
type TracingCollectorSpy struct {
	mu    sync.Mutex
	spans []*SpySpanRecord
}

func NewTracingCollectorSpy() *TracingCollectorSpy {
	return &TracingCollectorSpy{}
}

func (s *TracingCollectorSpy) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, eventstore.SpanContext) {
	span := &SpySpanContext{}

	s.mu.Lock()
	s.spans = append(s.spans, &SpySpanRecord{Name: name, StartAttributes: maps.Clone(attrs), SpanContext: span})
	s.mu.Unlock()

	return ctx, span
}

func (s *TracingCollectorSpy) FinishSpan(spanCtx eventstore.SpanContext, status string, attrs map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, span := range s.spans {
		if span.SpanContext != spanCtx {
			continue
		}

		span.Status, span.EndAttributes, span.Finished = status, maps.Clone(attrs), true

		return
	}
}

func (s *TracingCollectorSpy) GetSpanRecords() []SpySpanRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SpySpanRecord, len(s.spans))
	for i, span := range s.spans {
		out[i] = *span
	}

	return out
}

// FindSpan returns the first span started with name.
func (s *TracingCollectorSpy) FindSpan(name string) (SpySpanRecord, bool) {
	for _, span := range s.GetSpanRecords() {
		if span.Name == name {
			return span, true
		}
	}

	return SpySpanRecord{}, false
}
