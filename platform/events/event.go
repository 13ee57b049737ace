// Package events is the in-process bus that carries rotation outcomes to
// read-side consumers such as the stats cache.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is anything published on the bus. EventName is the subscription key.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// TenantScoped is implemented by events that belong to one tenant. The bus
// attaches the tenant to handler failure logs.
type TenantScoped interface {
	EventTenant() uuid.UUID
}

// BaseEvent is embedded by concrete events.
type BaseEvent struct {
	EventID   uuid.UUID `json:"eventId"`
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time { return e.Timestamp }

// NewBaseEvent stamps a fresh id and the current UTC time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{EventID: uuid.New(), Timestamp: time.Now().UTC()}
}

type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus delivers events to subscribers.
//
// Publish is fire-and-forget: handlers run on their own goroutines and
// failures are only logged. PublishSync runs them inline and returns the
// joined errors.
type Bus interface {
	Publish(ctx context.Context, event Event)
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
