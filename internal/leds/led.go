package leds

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/jstrnad/pwmled-go/internal/events"
	"github.com/jstrnad/pwmled-go/internal/logger"
)

var log = logger.New("leds")

// ErrBusy is returned by weight writes while the LED's attribute surface
// is administratively disabled.
var ErrBusy = fmt.Errorf("leds: attribute access disabled")

// LED is one logical LED: a single brightness level fanned out over an
// ordered set of weighted PWM channels. All runtime mutation (brightness,
// weights, administrative state) is serialized by the LED access lock.
type LED struct {
	name           string
	label          string
	defaultTrigger string
	maxBrightness  int64
	activeLow      bool
	periodNs       int64

	mu           sync.Mutex
	brightness   int64
	dutyNs       int64
	table        *WeightTable
	attrDisabled bool

	bus *events.Bus
}

// Name returns the LED's unique name.
func (l *LED) Name() string { return l.name }

// Label returns the human-readable description.
func (l *LED) Label() string { return l.label }

// DefaultTrigger returns the configured default trigger, possibly empty.
func (l *LED) DefaultTrigger() string { return l.defaultTrigger }

// MaxBrightness returns the brightness scale maximum.
func (l *LED) MaxBrightness() int64 { return l.maxBrightness }

// ActiveLow reports the polarity convention.
func (l *LED) ActiveLow() bool { return l.activeLow }

// Period returns the operating period in nanoseconds, fixed after
/// registration. 0 means the LED runs degraded: every duty computes to 0.
func (l *LED) Period() int64 { return l.periodNs }

// Brightness returns the current logical brightness.
func (l *LED) Brightness() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.brightness
}

// Channels returns the channel names in table order.
func (l *LED) Channels() []string {
	names := make([]string, l.table.Len())
	for i := range names {
		names[i] = l.table.Name(i)
	}
	return names
}

// Weight returns the weight of the channel at the given table index.
func (l *LED) Weight(index int) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.table.Weight(index)
}

// WeightByName returns the weight of the named channel.
func (l *LED) WeightByName(channel string) (int64, error) {
	i, ok := l.table.Index(channel)
	if !ok {
		return 0, fmt.Errorf("led %s: no channel %q", l.name, channel)
	}
	return l.Weight(i)
}

// SetAttrEnabled flips the administrative flag gating weight writes.
func (l *LED) SetAttrEnabled(enabled bool) {
	l.mu.Lock()
	l.attrDisabled = !enabled
	l.mu.Unlock()
}

// SetBrightness applies a new logical brightness to every channel. The
// level must be within [0, maxBrightness].
func (l *LED) SetBrightness(level int64) error {
	if level < 0 || level > l.maxBrightness {
		return fmt.Errorf("led %s: brightness %d out of range [0,%d]", l.name, level, l.maxBrightness)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.brightness = level
	l.dutyNs = GlobalDuty(level, l.periodNs, l.maxBrightness)
	return l.apply()
}

// SetWeight stores a new weight for the channel at the given table index
// and synchronously re-applies the current brightness so the change is
// visible before the call returns. Rejected with ErrBusy while attribute
// access is administratively disabled.
func (l *LED) SetWeight(index int, value int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.attrDisabled {
		return ErrBusy
	}
	if err := l.table.SetWeight(index, value); err != nil {
		return err
	}

	// Recompute from the current brightness rather than the cached duty
	// so a weight write behaves exactly like a fresh brightness set.
	l.dutyNs = GlobalDuty(l.brightness, l.periodNs, l.maxBrightness)
	if err := l.apply(); err != nil {
		return err
	}

	l.bus.Publish(events.WeightChangedEvent{
		LED:     l.name,
		Channel: l.table.Name(index),
		Weight:  value,
	})
	return nil
}

// SetWeightByName is SetWeight addressed by channel name.
func (l *LED) SetWeightByName(channel string, value int64) error {
	i, ok := l.table.Index(channel)
	if !ok {
		return fmt.Errorf("led %s: no channel %q", l.name, channel)
	}
	return l.SetWeight(i, value)
}

/// apply pushes the current global duty to every channel: first a configure
// pass over all channels, then an enable/disable pass, so a consumer never
// observes a mix of old and new duty settings across channels. A configure
// failure abandons the operation; channels configured earlier in the pass
// keep their new duty and no enable state changes. Caller holds l.mu.
func (l *LED) apply() error {
	duties := make(map[string]int64, l.table.Len())

	for _, e := range l.table.entries {
		d := ChannelDuty(l.dutyNs, e.Weight, l.periodNs, l.maxBrightness, l.activeLow)
		if err := e.Resource.Configure(d, l.periodNs); err != nil {
			log.Errorf("led %s: configure channel %s failed: %v", l.name, e.Name, err)
			l.bus.Publish(events.ApplyFailedEvent{LED: l.name, Channel: e.Name, Cause: err.Error()})
			return fmt.Errorf("led %s: configure channel %s: %w", l.name, e.Name, err)
		}
		duties[e.Name] = d
	}

	for _, e := range l.table.entries {
		var err error
		if l.dutyNs == 0 {
			err = e.Resource.Disable()
		} else {
			err = e.Resource.Enable()
		}
		if err != nil {
			log.Errorf("led %s: switch channel %s failed: %v", l.name, e.Name, err)
			l.bus.Publish(events.ApplyFailedEvent{LED: l.name, Channel: e.Name, Cause: err.Error()})
			return fmt.Errorf("led %s: switch channel %s: %w", l.name, e.Name, err)
		}
	}

	l.bus.Publish(events.BrightnessAppliedEvent{
		LED:         l.name,
		Brightness:  l.brightness,
		GlobalDuty:  l.dutyNs,
		ChannelDuty: duties,
	})
	return nil
}

// Close turns the LED off and releases all channel resources.
func (l *LED) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.brightness = 0
	l.dutyNs = 0
	if err := l.apply(); err != nil {
		log.Warningf("led %s: final off failed: %v", l.name, err)
	}

	var err error
	for _, e := range l.table.entries {
		err = multierr.Append(err, e.Resource.Close())
	}
	return err
}
