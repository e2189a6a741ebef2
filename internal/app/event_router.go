package app

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/example/wfm/internal/ctxutil"
	"github.com/example/wfm/internal/ports/primary"
	"github.com/example/wfm/internal/ports/secondary"
)

// EventRouter dispatches record events to the numbering triggers:
// created and activated go to the creation assigner, updated to the
// duplicate guard. It is the in-process EventPublisher and the handler the
// Kafka consumer calls.
//
// Handling never fails the producer. Redelivery is harmless because the
// assigner skips numbered records and the guard only acts on duplicates.
type EventRouter struct {
	assigner primary.CreationAssigner
	guard    primary.DuplicateGuard
	logger   zerolog.Logger
}

// NewEventRouter creates an EventRouter.
func NewEventRouter(assigner primary.CreationAssigner, guard primary.DuplicateGuard, logger zerolog.Logger) *EventRouter {
	return &EventRouter{
		assigner: assigner,
		guard:    guard,
		logger:   logger.With().Str("component", "event_router").Logger(),
	}
}

// Publish handles the event synchronously.
func (r *EventRouter) Publish(ctx context.Context, event secondary.RecordEvent) error {
	return r.Handle(ctx, event)
}

// Handle runs the trigger for event. Only cancellation is returned.
func (r *EventRouter) Handle(ctx context.Context, event secondary.RecordEvent) error {
	ctx = ctxutil.WithSystemActor(ctx)
	log := r.logger.With().Str("event", event.Type).Str("record_id", event.RecordID).Logger()

	switch event.Type {
	case secondary.EventRecordCreated:
		res := r.assigner.OnRecordCreated(ctx, event)
		log.Debug().Str("status", res.Status).Str("serial", res.Serial).Str("reason", res.Reason).Msg("creation trigger")
	case secondary.EventRecordActivated:
		res := r.assigner.OnRecordActivated(ctx, event)
		log.Debug().Str("status", res.Status).Str("serial", res.Serial).Str("reason", res.Reason).Msg("activation trigger")
	case secondary.EventRecordUpdated:
		res := r.guard.OnRecordUpdated(ctx, event)
		log.Debug().Str("status", res.Status).Int("changes", res.Changes).Str("reason", res.Reason).Msg("duplicate guard")
	default:
		log.Warn().Msg("unknown event type ignored")
	}
	return ctx.Err()
}

var (
	_ secondary.EventPublisher = (*EventRouter)(nil)
	_ primary.EventHandler     = (*EventRouter)(nil)
)
