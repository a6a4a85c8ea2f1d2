// Package events publishes domain events for other services to consume.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	SubmissionCreated = "submission.created"
	StatusChanged     = "form.status_changed"
)

// Event is the envelope published on every subject.
type Event struct {
	Type       string      `json:"type"`
	BusinessID string      `json:"business_id"`
	FormID     string      `json:"form_id"`
	OccurredAt int64       `json:"occurred_at"`
	Data       interface{} `json:"data,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

// Subject returns <prefix>.<businessID>.<type>.
func Subject(prefix, businessID, eventType string) string {
	return fmt.Sprintf("%s.%s.%s", prefix, businessID, eventType)
}

type NATSPublisher struct {
	nc     *nats.Conn
	prefix string
}

// NewNATSPublisher connects to url and keeps reconnecting in the background.
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("formsmith"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("nats error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &NATSPublisher{nc: nc, prefix: prefix}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, e Event) error {
	if e.OccurredAt == 0 {
		e.OccurredAt = time.Now().UnixMilli()
	}
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.nc.Publish(Subject(p.prefix, e.BusinessID, e.Type), body)
}

func (p *NATSPublisher) Close() {
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
	}
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
func (Noop) Close()                              {}

// PublishAsync publishes without blocking the caller and logs failures.
// Events are best effort; callers never fail because of them.
func PublishAsync(p Publisher, e Event) {
	if p == nil {
		return
	}
	go func() {
		if err := p.Publish(context.Background(), e); err != nil {
			log.Warn().Err(err).Str("type", e.Type).Str("business_id", e.BusinessID).Msg("failed to publish event")
		}
	}()
}

// Recorder keeps published events in memory. Tests use it to assert on
// what a service emitted. Events past the buffer are dropped.
type Recorder struct {
	ch chan Event
}

func NewRecorder() *Recorder {
	return &Recorder{ch: make(chan Event, 64)}
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	select {
	case r.ch <- e:
	default:
	}
	return nil
}

func (r *Recorder) Close() {}

// Next waits up to timeout for the next event.
func (r *Recorder) Next(timeout time.Duration) (Event, bool) {
	select {
	case e := <-r.ch:
		return e, true
	case <-time.After(timeout):
		return Event{}, false
	}
}
