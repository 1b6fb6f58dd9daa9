// Package notify delivers best-effort messages to tenant members.
package notify

import (
	"context"
	"errors"
	"log/slog"
)

// Message is addressed to one member of one tenant. Ref identifies a
// replaceable notification; it is empty for one-off messages.
type Message struct {
	TenantID int64  `json:"tenant_id"`
	UserID   int64  `json:"user_id"`
	Ref      string `json:"ref,omitempty"`
	Text     string `json:"text"`
}

// Notifier delivers messages. Callers treat every error as non-fatal.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
	// EditOrReplace updates the notification identified by msg.Ref, or
	// delivers msg as a new one when the sink cannot edit in place.
	EditOrReplace(ctx context.Context, msg Message) error
}

var ErrNoRef = errors.New("notify: message has no ref")

// Fanout sends each message to every sink. A failing sink is logged and
// skipped; Fanout itself never returns an error.
type Fanout struct {
	sinks  []Notifier
	logger *slog.Logger
}

func NewFanout(logger *slog.Logger, sinks ...Notifier) *Fanout {
	return &Fanout{sinks: sinks, logger: logger}
}

func (f *Fanout) Send(ctx context.Context, msg Message) error {
	for _, s := range f.sinks {
		if err := s.Send(ctx, msg); err != nil {
			f.logger.Warn("notify send failed", "tenant_id", msg.TenantID, "user_id", msg.UserID, "error", err)
		}
	}
	return nil
}

func (f *Fanout) EditOrReplace(ctx context.Context, msg Message) error {
	for _, s := range f.sinks {
		if err := s.EditOrReplace(ctx, msg); err != nil {
			f.logger.Warn("notify edit failed", "tenant_id", msg.TenantID, "user_id", msg.UserID, "ref", msg.Ref, "error", err)
		}
	}
	return nil
}

// Log writes every message to a logger.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Send(_ context.Context, msg Message) error {
	l.logger.Info("notification", "tenant_id", msg.TenantID, "user_id", msg.UserID, "ref", msg.Ref, "text", msg.Text)
	return nil
}

func (l *Log) EditOrReplace(_ context.Context, msg Message) error {
	if msg.Ref == "" {
		return ErrNoRef
	}
	l.logger.Info("notification replaced", "tenant_id", msg.TenantID, "user_id", msg.UserID, "ref", msg.Ref, "text", msg.Text)
	return nil
}
