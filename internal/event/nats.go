// internal/event/nats.go
// Package event publishes resource and statistics change events to NATS JetStream.
package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/julioonmartinez/lulinks-api/internal/model"
	"github.com/nats-io/nats.go"
)

// Action names the change applied to a resource.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// Publisher defines the event publishing operations required by the API.
type Publisher interface {
	// PublishResourceChanged announces a create, update or delete of a document.
	PublishResourceChanged(ctx context.Context, action Action, r model.Resource) error

	// PublishStatisticsRecorded announces the record state after an event was merged.
	PublishStatisticsRecorded(ctx context.Context, s model.Statistics) error

	// Close closes the publisher connection
	Close() error
}

// Noop is a Publisher that discards events. It is used when NATS is not configured.
type Noop struct{}

func (Noop) Close() error { return nil }

func (Noop) PublishResourceChanged(ctx context.Context, action Action, r model.Resource) error {
	return nil
}

func (Noop) PublishStatisticsRecorded(ctx context.Context, s model.Statistics) error {
	return nil
}

// Stream names and subject roots
const (
	resourcesStream = "LULINKS_RESOURCES"
	statsStream     = "LULINKS_STATS"
	resourcesRoot   = "lulinks.resources"
	statsSubject    = "lulinks.statistics.recorded"
)

// natsPub is the NATS JetStream implementation of Publisher.
type natsPub struct {
	nc *nats.Conn            // NATS connection
	js nats.JetStreamContext // JetStream context for stream operations
}

// NewPublisher connects to url and returns a JetStream publisher.
// An empty url, or any connection or stream setup failure, yields a Noop
// so the API keeps serving without event streaming.
func NewPublisher(url string) Publisher {
	if url == "" {
		return Noop{}
	}

	nc, err := nats.Connect(url, nats.Name("lulinks-api"), nats.MaxReconnects(-1))
	if err != nil {
		slog.Warn("NATS connect failed, using noop publisher", "error", err)
		return Noop{}
	}

	js, err := nc.JetStream()
	if err != nil {
		slog.Warn("NATS JetStream context creation failed, using noop publisher", "error", err)
		nc.Close()
		return Noop{}
	}

	if err := initStreams(js); err != nil {
		slog.Warn("NATS stream initialization failed, using noop publisher", "error", err)
		nc.Close()
		return Noop{}
	}

	return &natsPub{nc: nc, js: js}
}

// initStreams creates the resource and statistics streams. The duplicate window
// lets JetStream drop retried publishes that carry the same message id.
func initStreams(js nats.JetStreamContext) error {
	streams := []*nats.StreamConfig{
		{
			Name:       resourcesStream,
			Subjects:   []string{resourcesRoot + ".>"},
			Retention:  nats.LimitsPolicy,
			MaxAge:     24 * time.Hour,
			Discard:    nats.DiscardOld,
			Storage:    nats.FileStorage,
			Duplicates: 2 * time.Minute,
		},
		{
			Name:       statsStream,
			Subjects:   []string{statsSubject},
			Retention:  nats.LimitsPolicy,
			MaxAge:     24 * time.Hour,
			Discard:    nats.DiscardOld,
			Storage:    nats.FileStorage,
			Duplicates: 2 * time.Minute,
		},
	}
	for _, cfg := range streams {
		if _, err := js.StreamInfo(cfg.Name); err == nil {
			continue
		}
		if _, err := js.AddStream(cfg); err != nil {
			return fmt.Errorf("failed to create %s stream: %w", cfg.Name, err)
		}
	}
	return nil
}

// Envelope is the standard wrapper around every published payload.
type Envelope struct {
	Type          string      `json:"type"`          // Event type identifier, equal to the subject
	Version       string      `json:"version"`       // Event schema version
	OccurredAt    time.Time   `json:"occurredAt"`    // When the event occurred
	CorrelationID string      `json:"correlationId"` // Request correlation id when known
	Payload       interface{} `json:"payload"`       // Event-specific data
}

type correlationKey struct{}

// WithCorrelationID attaches a request correlation id that published envelopes will carry.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationFrom(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.New().String()
}

// ResourceSubject returns the subject for a resource change, e.g. lulinks.resources.widget.updated.
func ResourceSubject(kind model.Kind, action Action) string {
	return fmt.Sprintf("%s.%s.%s", resourcesRoot, kind, action)
}

func (p *natsPub) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

func (p *natsPub) publish(ctx context.Context, subject, msgID string, payload interface{}) error {
	b, err := json.Marshal(Envelope{
		Type:          subject,
		Version:       "1.0.0",
		OccurredAt:    time.Now().UTC(),
		CorrelationID: correlationFrom(ctx),
		Payload:       payload,
	})
	if err != nil {
		return err
	}
	_, err = p.js.Publish(subject, b, nats.MsgId(msgID), nats.Context(ctx))
	return err
}

func (p *natsPub) PublishResourceChanged(ctx context.Context, action Action, r model.Resource) error {
	subject := ResourceSubject(r.Kind, action)
	msgID := fmt.Sprintf("%s:%s:%s:%d", r.Kind, r.ID, action, r.UpdatedAt.UnixNano())
	return p.publish(ctx, subject, msgID, r)
}

func (p *natsPub) PublishStatisticsRecorded(ctx context.Context, s model.Statistics) error {
	msgID := fmt.Sprintf("%s:%d:%d:%d", s.ID, s.Views, s.Clicks, s.UpdatedAt.UnixNano())
	return p.publish(ctx, statsSubject, msgID, s)
}
