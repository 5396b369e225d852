package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Publisher appends envelopes to a Redis stream.
type Publisher struct {
	client *redis.Client
	stream string
}

// PublishOption configures Redis XADD behaviour.
type PublishOption func(*redis.XAddArgs)

// WithMaxLenApprox sets an approximate max length for the stream.
func WithMaxLenApprox(maxLen int64) PublishOption {
	return func(args *redis.XAddArgs) {
		if maxLen > 0 {
			args.MaxLen = maxLen
			args.Approx = true
		}
	}
}

// NewPublisher creates a Publisher bound to one stream.
func NewPublisher(client *redis.Client, stream string) *Publisher {
	return &Publisher{client: client, stream: stream}
}

// Publish validates the envelope and appends it to the stream, returning the
// assigned stream entry id.
func (p *Publisher) Publish(ctx context.Context, envelope Envelope, opts ...PublishOption) (string, error) {
	if p.stream == "" {
		return "", fmt.Errorf("stream name is required")
	}
	if envelope.EventID == "" {
		envelope.EventID = uuid.NewString()
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = time.Now().UTC()
	}
	raw, err := envelope.Marshal()
	if err != nil {
		return "", err
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{"envelope": raw},
	}
	for _, opt := range opts {
		opt(args)
	}

	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}
	return id, nil
}

// PublishIngest enqueues a processing job for a document.
func (p *Publisher) PublishIngest(ctx context.Context, job IngestJob, opts ...PublishOption) (string, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal ingest job: %w", err)
	}
	return p.Publish(ctx, Envelope{EventType: EventIngest, Data: data}, opts...)
}
