// Package worker consumes ingestion jobs from the stream and drives the
// ingest pipeline.
package worker

import (
	"context"
	"log"
	"time"

	"github.com/mohammad-safakhou/ebookqa/internal/queue/streams"
)

// JobHandler processes one decoded ingestion job.
type JobHandler interface {
	Process(ctx context.Context, job streams.IngestJob) error
}

// Consumer is the stream surface the processor needs, satisfied by
// *streams.Consumer.
type Consumer interface {
	Read(ctx context.Context, opts ...streams.ConsumerOption) ([]streams.Message, error)
	Ack(ctx context.Context, ids ...string) error
	AutoClaim(ctx context.Context, minIdle time.Duration, start string, count int64) ([]streams.Message, string, error)
}

// Processor pulls jobs from the stream and hands them to the handler. A job
// that the handler absorbed (including terminal document failure) is acked;
// only infrastructure errors leave the message pending for reclaim.
type Processor struct {
	logger   *log.Logger
	consumer Consumer
	handler  JobHandler
}

func NewProcessor(logger *log.Logger, consumer Consumer, handler JobHandler) *Processor {
	if logger == nil {
		logger = log.New(log.Writer(), "[WORKER] ", log.LstdFlags)
	}
	return &Processor{logger: logger, consumer: consumer, handler: handler}
}

// Start blocks until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Printf("worker starting")
	p.reclaim(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Printf("worker stopping: %v", ctx.Err())
			return nil
		default:
		}

		msgs, err := p.consumer.Read(ctx, streams.WithBlock(5*time.Second), streams.WithCount(16))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Printf("error reading stream: %v", err)
			time.Sleep(time.Second)
			continue
		}
		for _, msg := range msgs {
			p.handle(ctx, msg)
		}
	}
}

func (p *Processor) handle(ctx context.Context, msg streams.Message) {
	job, err := streams.DecodeIngestJob(msg.Envelope)
	if err != nil {
		// Undecodable jobs can never succeed; drop them.
		p.logger.Printf("dropping message %s: %v", msg.ID, err)
		p.ack(ctx, msg.ID)
		return
	}
	if err := p.handler.Process(ctx, job); err != nil {
		p.logger.Printf("job doc=%d failed, leaving pending: %v", job.DocID, err)
		return
	}
	p.ack(ctx, msg.ID)
}

func (p *Processor) ack(ctx context.Context, id string) {
	if err := p.consumer.Ack(ctx, id); err != nil {
		p.logger.Printf("warn: failed to ack message %s: %v", id, err)
	}
}

// reclaim takes over messages abandoned by crashed workers.
func (p *Processor) reclaim(ctx context.Context) {
	start := "0-0"
	for {
		msgs, next, err := p.consumer.AutoClaim(ctx, time.Minute, start, 16)
		if err != nil {
			p.logger.Printf("warn: autoclaim failed: %v", err)
			return
		}
		for _, msg := range msgs {
			p.handle(ctx, msg)
		}
		if next == "0-0" || len(msgs) == 0 {
			return
		}
		start = next
	}
}
