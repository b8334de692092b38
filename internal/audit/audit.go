// Package audit records verification events to the store and, optionally, to
// a Discord channel through a webhook.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/monito83/OgWalletBot/internal/storage"
)

// Recorder appends an event to an audit sink. Implementations never fail the
// caller; errors are logged.
type Recorder interface {
	RecordEvent(ctx context.Context, kind string, details map[string]string)
}

// StoreRecorder writes events to the audit_events table.
type StoreRecorder struct {
	store  storage.AuditStore
	logger *slog.Logger
	now    func() time.Time
}

// NewStoreRecorder creates a recorder backed by store.
func NewStoreRecorder(store storage.AuditStore, logger *slog.Logger) *StoreRecorder {
	return &StoreRecorder{store: store, logger: logger, now: time.Now}
}

// RecordEvent implements Recorder.
func (r *StoreRecorder) RecordEvent(ctx context.Context, kind string, details map[string]string) {
	err := r.store.AppendAuditEvent(ctx, storage.AuditEvent{
		Kind:      kind,
		Details:   details,
		CreatedAt: r.now(),
	})
	if err != nil {
		r.logger.Error("failed to record audit event", "kind", kind, "error", err)
	}
}

type multi []Recorder

// Multi fans an event out to every non-nil recorder in order.
func Multi(recorders ...Recorder) Recorder {
	var m multi
	for _, r := range recorders {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m multi) RecordEvent(ctx context.Context, kind string, details map[string]string) {
	for _, r := range m {
		r.RecordEvent(ctx, kind, details)
	}
}

type actorRecorder struct {
	next  Recorder
	actor func(context.Context) string
}

// WithActor adds an "actor" detail naming the caller found in ctx, when
// there is one.
func WithActor(next Recorder, actor func(context.Context) string) Recorder {
	return &actorRecorder{next: next, actor: actor}
}

func (r *actorRecorder) RecordEvent(ctx context.Context, kind string, details map[string]string) {
	if who := r.actor(ctx); who != "" {
		enriched := make(map[string]string, len(details)+1)
		for k, v := range details {
			enriched[k] = v
		}
		enriched["actor"] = who
		details = enriched
	}
	r.next.RecordEvent(ctx, kind, details)
}
