// Package pwm defines the channel-resource boundary between logical LEDs
// and the hardware that generates the PWM signal. A Channel is one
// acquirable output; a Provider turns a resource specifier into a Channel.
package pwm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDeferred is returned by a Provider when the backing device is not yet
// available and the acquisition should be retried later by the caller.
// It is distinct from a hard acquisition failure.
var ErrDeferred = errors.New("pwm: resource not yet available")

// Channel is one PWM output. Duty and period are in nanoseconds.
// Calls are synchronous and non-cancellable.
type Channel interface {
	// Configure sets the duty cycle and period without changing the
	// enable state.
	Configure(dutyNs, periodNs int64) error
	Enable() error
	Disable() error
	// Period reports the channel's intrinsic configured period in
	// nanoseconds, 0 if unknown.
	Period() int64
	// Close releases the output, leaving it in a safe (off) state.
	Close() error
}

// Provider acquires channels from resource specifiers. A Provider may
// return (nil, nil) when the specifier resolves to nothing; the caller is
// responsible for validating the acquired count.
type Provider interface {
	Acquire(spec string) (Channel, error)
}

// Registry dispatches acquisition to providers by specifier scheme.
// Specifiers are either "scheme:rest" or bare sysfs chip paths such as
// "pwmchip0/2", which dispatch to the provider registered for "".
type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register associates a scheme with a provider. The empty scheme is the
// fallback for specifiers without a "scheme:" prefix.
func (r *Registry) Register(scheme string, p Provider) {
	r.providers[scheme] = p
}

// Acquire implements Provider.
func (r *Registry) Acquire(spec string) (Channel, error) {
	scheme := ""
	if i := strings.Index(spec, ":"); i > 0 {
		scheme = spec[:i]
	}
	p, ok := r.providers[scheme]
	if !ok {
		p, ok = r.providers[""]
	}
	if !ok {
		return nil, fmt.Errorf("pwm: no provider for specifier %q", spec)
	}
	return p.Acquire(spec)
}
