// Package audit records security-relevant events: patient indexing, match
// queries and trust registry changes. Events always land in the structured
// log; when a Kafka publisher is configured they are also produced to the
// audit topic for downstream consumers.
package audit

import (
	"context"
	"log/slog"
	"time"
)

// Event is a single audit record.
type Event struct {
	Name      string            `json:"name"`
	Actor     string            `json:"actor,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// Publisher delivers events to an external sink.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// Recorder is the front door for audit events. A nil Recorder is usable and
// drops everything, so callers never need to guard.
type Recorder struct {
	log *slog.Logger
	pub Publisher
}

// NewRecorder wires a recorder to the structured log and an optional
// publisher. pub may be nil.
func NewRecorder(log *slog.Logger, pub Publisher) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{log: log, pub: pub}
}

// Record logs the event and hands it to the publisher. Publish failures are
// logged, never propagated; audit must not take the request path down.
func (r *Recorder) Record(ctx context.Context, name, actor string, details map[string]string) {
	if r == nil {
		return
	}
	event := Event{
		Name:      name,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}

	attrs := []any{"actor", actor}
	for k, v := range details {
		attrs = append(attrs, k, v)
	}
	r.log.Info("audit: "+name, attrs...)

	if r.pub == nil {
		return
	}
	if err := r.pub.Publish(ctx, event); err != nil {
		r.log.Error("audit publish failed", "event", name, "error", err)
	}
}

// Close releases the underlying publisher, if any.
func (r *Recorder) Close() {
	if r != nil && r.pub != nil {
		r.pub.Close()
	}
}
