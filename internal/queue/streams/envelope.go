// Package streams moves ingestion jobs between the API and the worker over
// Redis Streams with consumer groups, so an upload survives worker restarts.
package streams

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventIngest is the only event type currently flowing through the stream.
const EventIngest = "document.ingest"

// Envelope is the canonical message wrapper persisted to the stream.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Attempt    int             `json:"attempt"`
	Data       json.RawMessage `json:"data"`
}

// ValidateBasic ensures mandatory envelope fields are present.
func (e *Envelope) ValidateBasic() error {
	if e.EventID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if e.Attempt < 0 {
		return fmt.Errorf("attempt must be >= 0")
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if len(e.Data) == 0 {
		return fmt.Errorf("data payload is required")
	}
	return nil
}

// Marshal returns the JSON encoding of the envelope.
func (e *Envelope) Marshal() ([]byte, error) {
	if err := e.ValidateBasic(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// UnmarshalEnvelope parses JSON bytes into an Envelope and validates required
// fields.
func UnmarshalEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if err := env.ValidateBasic(); err != nil {
		return env, err
	}
	return env, nil
}

// IngestJob asks the worker to (re)process one uploaded document.
type IngestJob struct {
	DocID    int64 `json:"doc_id"`
	UserID   int64 `json:"user_id"`
	ForceOCR bool  `json:"force_ocr"`
}

// DecodeIngestJob extracts an IngestJob from an envelope, rejecting foreign
// event types.
func DecodeIngestJob(env Envelope) (IngestJob, error) {
	if env.EventType != EventIngest {
		return IngestJob{}, fmt.Errorf("unexpected event type %q", env.EventType)
	}
	var job IngestJob
	if err := json.Unmarshal(env.Data, &job); err != nil {
		return IngestJob{}, fmt.Errorf("decode ingest job: %w", err)
	}
	if job.DocID <= 0 || job.UserID <= 0 {
		return IngestJob{}, fmt.Errorf("ingest job missing doc_id/user_id")
	}
	return job, nil
}
