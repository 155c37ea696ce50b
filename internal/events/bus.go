// Package events carries state-change notifications between the LED core
// and observers such as the metrics collector.
package events

import (
	"github.com/kelindar/event"
)

// Bus wraps a kelindar/event dispatcher. A nil *Bus is valid and drops
// everything, so publishers do not need to guard their calls.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish publishes an event to all subscribers.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case BrightnessAppliedEvent:
		event.Publish(b.dispatcher, e)
	case WeightChangedEvent:
		event.Publish(b.dispatcher, e)
	case LEDRegisteredEvent:
		event.Publish(b.dispatcher, e)
	case ApplyFailedEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe registers a handler; the handler's argument type selects the
// events it receives. Returns an unsubscribe function.
// Usage: unsub := bus.Subscribe(func(e BrightnessAppliedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	if b == nil {
		return func() {}
	}
	switch h := handler.(type) {
	case func(BrightnessAppliedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(WeightChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LEDRegisteredEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ApplyFailedEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
