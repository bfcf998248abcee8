package service

import (
	"context"
	"log/slog"

	"github.com/harborworks/fieldsync/internal/sync/domain"
	"github.com/harborworks/fieldsync/pkg/metricsx"
	"github.com/harborworks/fieldsync/pkg/slogx"
)

// EventHandler applies the side effects for one event type. Handlers are
// independently fallible: an error is logged and counted but never aborts
// sibling handlers or the ingestion acknowledgement, because the event is
// already durable by the time a handler runs.
type EventHandler interface {
	Handle(ctx context.Context, ev domain.OfflineEvent) error
}

// Dispatcher routes a freshly appended event to zero-or-one handler keyed
// by event type. The handler set is closed at construction; an event type
// without a registration is logged and skipped, never an error.
type Dispatcher struct {
	handlers map[domain.EventType]EventHandler
}

// NewDispatcher registers the full handler set. Adding an event type is a
// compile-time-checked addition here plus a constant in domain.
func NewDispatcher(deps HandlerDeps) *Dispatcher {
	return &Dispatcher{
		handlers: map[domain.EventType]EventHandler{
			domain.EventProjectUpdate:   &projectUpdateHandler{deps},
			domain.EventUserDocument:    &userDocumentHandler{deps},
			domain.EventTaskUpdate:      &taskUpdateHandler{deps},
			domain.EventActivityLog:     &activityLogHandler{deps},
			domain.EventBiometricEnroll: &biometricEnrollHandler{deps},
		},
	}
}

// Dispatch runs the matching handler synchronously. Handlers for one
// event run on the request goroutine and sequentially because several of
// them mutate the same task/project aggregate and must not race each
// other within a single event.
func (d *Dispatcher) Dispatch(ctx context.Context, ev domain.OfflineEvent) {
	log := slogx.FromContext(ctx)

	handler, ok := d.handlers[ev.EventType]
	if !ok {
		log.Warn("no handler for event type",
			slog.String("event_id", ev.ID),
			slog.String("event_type", string(ev.EventType)),
		)
		metricsx.ObserveHandlerOutcome(string(ev.EventType), "skipped")
		return
	}

	if err := handler.Handle(ctx, ev); err != nil {
		// Durability of the event log beats atomicity of side effects:
		// the caller is still acknowledged, and the failure is visible
		// here and in the metrics.
		log.Error("event handler failed",
			slog.String("event_id", ev.ID),
			slog.String("event_type", string(ev.EventType)),
			slog.Any("error", err),
		)
		metricsx.ObserveHandlerOutcome(string(ev.EventType), "error")
		return
	}

	metricsx.ObserveHandlerOutcome(string(ev.EventType), "ok")
}
