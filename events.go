package modforge

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
)

// CloudEvent type constants for module lifecycle transitions, using reverse
// domain notation per the CloudEvents specification.
const (
	EventTypeModuleInstalled = "com.modforge.module.installed"
	EventTypeModuleEnabled   = "com.modforge.module.enabled"
	EventTypeModuleDisabled  = "com.modforge.module.disabled"
	EventTypeModuleRemoved   = "com.modforge.module.removed"

	EventTypeCompileStarted   = "com.modforge.compile.started"
	EventTypeCompileCompleted = "com.modforge.compile.completed"
	EventTypeCompileFailed    = "com.modforge.compile.failed"

	EventTypeModuleLoaded     = "com.modforge.module.loaded"
	EventTypeModuleLoadFailed = "com.modforge.module.load_failed"
)

// eventSource identifies this package as the CloudEvents source.
const eventSource = "modforge"

// NewModuleEvent builds a CloudEvent for a lifecycle transition, carrying
// the module name in the payload.
func NewModuleEvent(eventType, moduleName string, extra map[string]any) cloudevents.Event {
	data := map[string]any{"module": moduleName}
	for key, value := range extra {
		data[key] = value
	}

	event := cloudevents.NewEvent()
	event.SetID(generateEventID())
	event.SetSource(eventSource)
	event.SetType(eventType)
	event.SetTime(time.Now())
	event.SetSpecVersion(cloudevents.VersionV1)
	_ = event.SetData(cloudevents.ApplicationJSON, data)
	return event
}

// generateEventID returns a UUIDv7 so event IDs sort by time, falling back
// to v4 if v7 generation fails.
func generateEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// notify emits an event through subject when one is attached. Emission is
// fire-and-forget; failures never affect the triggering operation.
func notify(ctx context.Context, subject Subject, logger Logger, event cloudevents.Event) {
	if subject == nil {
		return
	}
	if err := subject.NotifyObservers(ctx, event); err != nil {
		logger.Warn("Failed to notify observers", "eventType", event.Type(), "error", err)
	}
}
