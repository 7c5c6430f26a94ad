package modforge

import (
	"context"
	"sync"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
)

// Observer is implemented by anything that wants lifecycle notifications.
// Events use the CloudEvents specification for standardized format and
// interoperability with external systems.
type Observer interface {
	// OnEvent is called for each event the observer is subscribed to.
	// Observers should return quickly to avoid delaying other observers.
	OnEvent(ctx context.Context, event cloudevents.Event) error

	// ObserverID returns a unique identifier for registration tracking.
	ObserverID() string
}

// Subject is implemented by event emitters. Lifecycle transitions are
// fire-and-forget notifications: observer errors are logged, never
// propagated to the operation that triggered them.
type Subject interface {
	// RegisterObserver adds an observer, optionally filtered by event
	// types. An empty filter receives all events.
	RegisterObserver(observer Observer, eventTypes ...string) error

	// UnregisterObserver removes an observer. Idempotent.
	UnregisterObserver(observer Observer) error

	// NotifyObservers delivers an event to all matching observers.
	NotifyObservers(ctx context.Context, event cloudevents.Event) error
}

type observerRegistration struct {
	observer     Observer
	eventTypes   map[string]bool
	registeredAt time.Time
}

// ObserverRegistry is the standard Subject implementation. Safe for
// concurrent use.
type ObserverRegistry struct {
	observers map[string]observerRegistration
	logger    Logger
	mutex     sync.RWMutex
}

// NewObserverRegistry creates an empty observer registry.
func NewObserverRegistry(logger Logger) *ObserverRegistry {
	return &ObserverRegistry{
		observers: make(map[string]observerRegistration),
		logger:    logger,
	}
}

func (r *ObserverRegistry) RegisterObserver(observer Observer, eventTypes ...string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	filter := make(map[string]bool, len(eventTypes))
	for _, eventType := range eventTypes {
		filter[eventType] = true
	}
	r.observers[observer.ObserverID()] = observerRegistration{
		observer:     observer,
		eventTypes:   filter,
		registeredAt: time.Now(),
	}
	return nil
}

func (r *ObserverRegistry) UnregisterObserver(observer Observer) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	delete(r.observers, observer.ObserverID())
	return nil
}

func (r *ObserverRegistry) NotifyObservers(ctx context.Context, event cloudevents.Event) error {
	r.mutex.RLock()
	registrations := make([]observerRegistration, 0, len(r.observers))
	for _, registration := range r.observers {
		registrations = append(registrations, registration)
	}
	r.mutex.RUnlock()

	for _, registration := range registrations {
		if len(registration.eventTypes) > 0 && !registration.eventTypes[event.Type()] {
			continue
		}
		if err := registration.observer.OnEvent(ctx, event); err != nil {
			r.logger.Warn("Observer failed to handle event",
				"observer", registration.observer.ObserverID(),
				"eventType", event.Type(),
				"error", err)
		}
	}
	return nil
}

// FuncObserver adapts a function to the Observer interface.
type FuncObserver struct {
	ID      string
	Handler func(ctx context.Context, event cloudevents.Event) error
}

func (o *FuncObserver) OnEvent(ctx context.Context, event cloudevents.Event) error {
	return o.Handler(ctx, event)
}

func (o *FuncObserver) ObserverID() string {
	return o.ID
}
