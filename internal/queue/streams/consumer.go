package streams

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Consumer reads envelopes from a Redis stream using consumer groups.
type Consumer struct {
	client *redis.Client
	stream string
	group  string
	name   string
}

// ConsumerOption configures consumer behaviour on read.
type ConsumerOption func(*redis.XReadGroupArgs)

// WithBlock sets the maximum blocking duration when reading.
func WithBlock(d time.Duration) ConsumerOption {
	return func(args *redis.XReadGroupArgs) {
		if d > 0 {
			args.Block = d
		}
	}
}

// WithCount caps the number of messages returned in a single read.
func WithCount(n int64) ConsumerOption {
	return func(args *redis.XReadGroupArgs) {
		if n > 0 {
			args.Count = n
		}
	}
}

// NewConsumer builds a consumer for the specified stream, group and name.
func NewConsumer(client *redis.Client, stream, group, name string) *Consumer {
	return &Consumer{client: client, stream: stream, group: group, name: name}
}

// EnsureGroup creates the consumer group if it does not exist.
func EnsureGroup(ctx context.Context, client *redis.Client, stream, group string) error {
	if stream == "" || group == "" {
		return fmt.Errorf("stream and group must be provided")
	}
	if err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err(); err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			return nil
		}
		return fmt.Errorf("xgroup create: %w", err)
	}
	return nil
}

// Message represents a consumed stream entry.
type Message struct {
	ID       string
	Envelope Envelope
}

// Read pulls new messages for this consumer. A nil result with nil error
// means the block timeout expired without messages.
func (c *Consumer) Read(ctx context.Context, opts ...ConsumerOption) ([]Message, error) {
	if c.stream == "" || c.group == "" || c.name == "" {
		return nil, fmt.Errorf("stream, group and consumer name must be configured")
	}

	args := &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, ">"},
	}
	for _, opt := range opts {
		opt(args)
	}

	result, err := c.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}

	var out []Message
	for _, st := range result {
		for _, msg := range st.Messages {
			if decoded, ok := c.decodeMessage(ctx, msg); ok {
				out = append(out, decoded)
			}
		}
	}
	return out, nil
}

// Ack acknowledges processing of the provided message IDs.
func (c *Consumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, c.stream, c.group, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// AutoClaim reclaims pending messages older than minIdle from dead consumers.
// The returned next ID should be reused to continue claiming.
func (c *Consumer) AutoClaim(ctx context.Context, minIdle time.Duration, start string, count int64) ([]Message, string, error) {
	args := &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.name,
		MinIdle:  minIdle,
		Start:    start,
	}
	if count > 0 {
		args.Count = count
	}
	msgs, next, err := c.client.XAutoClaim(ctx, args).Result()
	if err != nil {
		return nil, "", fmt.Errorf("xautoclaim: %w", err)
	}
	var out []Message
	for _, msg := range msgs {
		if decoded, ok := c.decodeMessage(ctx, msg); ok {
			out = append(out, decoded)
		}
	}
	return out, next, nil
}

// decodeMessage unwraps one stream entry. Malformed entries are acked and
// dropped so they cannot wedge the group.
func (c *Consumer) decodeMessage(ctx context.Context, msg redis.XMessage) (Message, bool) {
	raw, ok := msg.Values["envelope"]
	if !ok {
		_ = c.client.XAck(ctx, c.stream, c.group, msg.ID).Err()
		return Message{}, false
	}

	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			_ = c.client.XAck(ctx, c.stream, c.group, msg.ID).Err()
			return Message{}, false
		}
		data = encoded
	}

	env, err := UnmarshalEnvelope(data)
	if err != nil {
		_ = c.client.XAck(ctx, c.stream, c.group, msg.ID).Err()
		return Message{}, false
	}
	return Message{ID: msg.ID, Envelope: env}, true
}
