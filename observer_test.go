package modforge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectingObserver records every event it receives.
type collectingObserver struct {
	id     string
	mutex  sync.Mutex
	events []cloudevents.Event
	err    error
}

func (o *collectingObserver) OnEvent(_ context.Context, event cloudevents.Event) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.events = append(o.events, event)
	return o.err
}

func (o *collectingObserver) ObserverID() string { return o.id }

func (o *collectingObserver) types() []string {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	types := make([]string, len(o.events))
	for i, event := range o.events {
		types[i] = event.Type()
	}
	return types
}

func TestObserverRegistryFiltering(t *testing.T) {
	ctx := context.Background()
	registry := NewObserverRegistry(&testLogger{})

	all := &collectingObserver{id: "all"}
	installsOnly := &collectingObserver{id: "installs"}
	require.NoError(t, registry.RegisterObserver(all))
	require.NoError(t, registry.RegisterObserver(installsOnly, EventTypeModuleInstalled))

	require.NoError(t, registry.NotifyObservers(ctx, NewModuleEvent(EventTypeModuleInstalled, "blog", nil)))
	require.NoError(t, registry.NotifyObservers(ctx, NewModuleEvent(EventTypeModuleEnabled, "blog", nil)))

	assert.Equal(t, []string{EventTypeModuleInstalled, EventTypeModuleEnabled}, all.types())
	assert.Equal(t, []string{EventTypeModuleInstalled}, installsOnly.types())
}

func TestObserverRegistryUnregister(t *testing.T) {
	ctx := context.Background()
	registry := NewObserverRegistry(&testLogger{})

	observer := &collectingObserver{id: "temp"}
	require.NoError(t, registry.RegisterObserver(observer))
	require.NoError(t, registry.UnregisterObserver(observer))
	require.NoError(t, registry.UnregisterObserver(observer))

	require.NoError(t, registry.NotifyObservers(ctx, NewModuleEvent(EventTypeModuleRemoved, "blog", nil)))
	assert.Empty(t, observer.types())
}

func TestObserverErrorDoesNotStopDelivery(t *testing.T) {
	ctx := context.Background()
	registry := NewObserverRegistry(&testLogger{})

	failing := &collectingObserver{id: "failing", err: errors.New("observer broke")}
	healthy := &collectingObserver{id: "healthy"}
	require.NoError(t, registry.RegisterObserver(failing))
	require.NoError(t, registry.RegisterObserver(healthy))

	require.NoError(t, registry.NotifyObservers(ctx, NewModuleEvent(EventTypeModuleDisabled, "blog", nil)))
	assert.Len(t, healthy.types(), 1, "one observer's error never blocks the others")
}

func TestFuncObserver(t *testing.T) {
	ctx := context.Background()
	registry := NewObserverRegistry(&testLogger{})

	var seen []string
	observer := &FuncObserver{
		ID: "fn",
		Handler: func(_ context.Context, event cloudevents.Event) error {
			seen = append(seen, event.Type())
			return nil
		},
	}
	require.NoError(t, registry.RegisterObserver(observer, EventTypeCompileCompleted))

	require.NoError(t, registry.NotifyObservers(ctx, NewModuleEvent(EventTypeCompileCompleted, "", nil)))
	require.NoError(t, registry.NotifyObservers(ctx, NewModuleEvent(EventTypeCompileFailed, "", nil)))
	assert.Equal(t, []string{EventTypeCompileCompleted}, seen)
}

func TestNewModuleEventShape(t *testing.T) {
	event := NewModuleEvent(EventTypeModuleEnabled, "shop", map[string]any{"previous_state": "installed"})

	assert.Equal(t, EventTypeModuleEnabled, event.Type())
	assert.Equal(t, eventSource, event.Source())
	assert.Equal(t, cloudevents.VersionV1, event.SpecVersion())
	assert.False(t, event.Time().IsZero())
	_, err := uuid.Parse(event.ID())
	assert.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(event.Data(), &payload))
	assert.Equal(t, "shop", payload["module"])
	assert.Equal(t, "installed", payload["previous_state"])
}

func TestEventIDsAreTimeOrdered(t *testing.T) {
	first := NewModuleEvent(EventTypeModuleLoaded, "a", nil)
	second := NewModuleEvent(EventTypeModuleLoaded, "b", nil)
	assert.NotEqual(t, first.ID(), second.ID())
	assert.Less(t, first.ID(), second.ID(), "v7 identifiers sort by creation time")
}
