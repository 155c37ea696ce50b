package leds

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// Registry stands in for the LED-class framework: it holds the live
// logical LEDs by name and hands them to the attribute surface. LEDs enter
// the registry only once registration fully succeeds.
type Registry struct {
	mu    sync.RWMutex
	byName map[string]*LED
	order []string
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*LED)}
}

// Add registers a live LED. Duplicate names are rejected.
func (r *Registry) Add(l *LED) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[l.name]; ok {
		return fmt.Errorf("led %q already registered", l.name)
	}
	r.byName[l.name] = l
	r.order = append(r.order, l.name)
	return nil
}

// Remove unregisters a LED without closing it.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; !ok {
		return
	}
	delete(r.byName, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Get looks up a live LED by name.
func (r *Registry) Get(name string) (*LED, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.byName[name]
	return l, ok
}

// Names returns the registered LED names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Close tears down every registered LED and empties the registry. Errors
// are aggregated; teardown continues past failures.
func (r *Registry) Close() error {
	r.mu.Lock()
	leds := make([]*LED, 0, len(r.order))
	for _, name := range r.order {
		leds = append(leds, r.byName[name])
	}
	r.byName = make(map[string]*LED)
	r.order = nil
	r.mu.Unlock()

	var err error
	for _, l := range leds {
		err = multierr.Append(err, l.Close())
	}
	return err
}
