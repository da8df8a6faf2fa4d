// Package notify publishes build results to NATS for external listeners.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/specserve/internal/events"
	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
	"git.home.luguber.info/inful/specserve/internal/logfields"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "specserve.builds"

// BuildMessage is the JSON payload published per build.
type BuildMessage struct {
	BuildID    string    `json:"build_id"`
	Source     string    `json:"source,omitempty"`
	Target     string    `json:"target"`
	Status     string    `json:"status"`
	ExitCode   int       `json:"exit_code"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subj string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Drain() error
}

// NATSPublisher sends BuildMessages on one subject.
type NATSPublisher struct {
	conn    conn
	subject string
}

// NewNATSPublisher connects to url.
func NewNATSPublisher(url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("specserve"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryNetwork, "connect to NATS").
			Retryable().
			WithContext("url", url).
			Build()
	}
	slog.Info("NATS build notifications enabled", slog.String("url", url), slog.String("subject", subjectOrDefault(subject)))
	return newPublisher(nc, subject), nil
}

func newPublisher(c conn, subject string) *NATSPublisher {
	return &NATSPublisher{conn: c, subject: subjectOrDefault(subject)}
}

func subjectOrDefault(s string) string {
	if s == "" {
		return DefaultSubject
	}
	return s
}

// Publish sends one build message.
func (p *NATSPublisher) Publish(e events.BuildCompleted) error {
	data, err := json.Marshal(BuildMessage{
		BuildID:    e.BuildID,
		Source:     e.Source,
		Target:     e.Target,
		Status:     e.Status,
		ExitCode:   e.ExitCode,
		Error:      e.Error,
		StartedAt:  e.StartedAt,
		DurationMS: e.Duration.Milliseconds(),
	})
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "marshal build message").Build()
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryNetwork, "publish build message").
			WithContext("subject", p.subject).
			Build()
	}
	slog.Debug("Published build message", logfields.Target(e.Target), slog.String("status", e.Status))
	return nil
}

// Consume publishes every BuildCompleted from bus until ctx ends or the bus
// closes.
func (p *NATSPublisher) Consume(ctx context.Context, bus *events.Bus) error {
	ch, unsubscribe := events.Subscribe[events.BuildCompleted](bus, 16)
	defer unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if err := p.Publish(e); err != nil {
				slog.Warn("Build notification failed", logfields.Target(e.Target), logfields.Error(err))
			}
		}
	}
}

// Close flushes pending messages and drains the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.FlushTimeout(2 * time.Second); err != nil {
		slog.Debug("NATS flush", logfields.Error(err))
	}
	return p.conn.Drain()
}
