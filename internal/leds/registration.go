package leds

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/jstrnad/pwmled-go/internal/events"
	"github.com/jstrnad/pwmled-go/pkg/pwm"
)

// ChannelSpec names one channel and the resource specifier to acquire it
// from, in declaration order.
type ChannelSpec struct {
	Name string
	Spec string
}

// Definition is the discovered configuration of one logical LED.
type Definition struct {
	Name string
	// Label is a human-readable description, defaults to the name.
	Label          string
	DefaultTrigger string
	ActiveLow      bool
	MaxBrightness  int64
	// FallbackPeriodNs is used when no acquired channel reports an
	// intrinsic period.
	FallbackPeriodNs int64
	Channels         []ChannelSpec
}

// State tracks registration progress for one logical LED.
type State int

const (
	Discovering State = iota
	Acquiring
	Validating
	Registering
	Active
	Failed
)

func (s State) String() string {
	switch s {
	case Discovering:
		return "discovering"
	case Acquiring:
		return "acquiring"
	case Validating:
		return "validating"
	case Registering:
		return "registering"
	case Active:
		return "active"
	default:
		return "failed"
	}
}

// RegistrationController brings logical LEDs online: it validates the
// discovered configuration, acquires the channel resources, derives the
// operating period and registers the LED. It never retries; a deferred
// acquisition propagates to the caller, who owns the retry decision.
type RegistrationController struct {
	provider pwm.Provider
	registry *Registry
	bus      *events.Bus
}

func NewRegistrationController(provider pwm.Provider, registry *Registry, bus *events.Bus) *RegistrationController {
	return &RegistrationController{provider: provider, registry: registry, bus: bus}
}

// RegisterLED runs the per-LED state machine to completion. On any failure
// the channels acquired for this LED are released and the error names the
// stage it occurred in.
func (c *RegistrationController) RegisterLED(def Definition) (*LED, error) {
	state := Discovering

	if def.Name == "" {
		return nil, stageErr(state, errors.New("led without a name"))
	}
	if def.MaxBrightness <= 0 {
		return nil, stageErr(state, errors.Errorf("led %s: max brightness must be positive, got %d", def.Name, def.MaxBrightness))
	}
	if len(def.Channels) == 0 {
		return nil, stageErr(state, errors.Errorf("led %s: no channels declared", def.Name))
	}

	// Acquisition is all-or-nothing in declaration order: the first
	// failure aborts without touching the remaining channels.
	state = Acquiring
	entries := make([]*ChannelEntry, 0, len(def.Channels))
	release := func() {
		for _, e := range entries {
			e.Resource.Close()
		}
	}
	for _, cs := range def.Channels {
		ch, err := c.provider.Acquire(cs.Spec)
		if err != nil {
			release()
			if errors.Is(err, pwm.ErrDeferred) {
				// Propagated verbatim so the caller can tell
				// "try again later" from a hard failure.
				return nil, stageErr(state, errors.Wrapf(err, "led %s: channel %s", def.Name, cs.Name))
			}
			log.Errorf("led %s: unable to acquire channel %s (%s): %v", def.Name, cs.Name, cs.Spec, err)
			return nil, stageErr(state, errors.Wrapf(err, "led %s: channel %s", def.Name, cs.Name))
		}
		if ch == nil {
			continue
		}
		entries = append(entries, &ChannelEntry{Name: cs.Name, Weight: def.MaxBrightness, Resource: ch})
	}

	state = Validating
	if len(entries) != len(def.Channels) {
		release()
		return nil, stageErr(state, errors.Errorf("led %s: acquired %d of %d declared channels",
			def.Name, len(entries), len(def.Channels)))
	}

	state = Registering
	periodNs := int64(0)
	for _, e := range entries {
		if p := e.Resource.Period(); p != 0 {
			periodNs = p
		}
	}
	if periodNs == 0 && def.FallbackPeriodNs > 0 {
		periodNs = def.FallbackPeriodNs
	}
	if periodNs == 0 {
		// Accepted degraded state: every duty computes to 0.
		log.Warningf("led %s: no period discoverable, duty will stay at 0", def.Name)
	}

	label := def.Label
	if label == "" {
		label = def.Name
	}
	l := &LED{
		name:           def.Name,
		label:          label,
		defaultTrigger: def.DefaultTrigger,
		maxBrightness:  def.MaxBrightness,
		activeLow:      def.ActiveLow,
		periodNs:       periodNs,
		table:          newWeightTable(entries),
		bus:            c.bus,
	}

	if err := c.registry.Add(l); err != nil {
		release()
		return nil, stageErr(state, err)
	}

	// Initial application of the current ("off") brightness, mirroring a
	// fresh framework registration.
	if err := l.SetBrightness(l.brightness); err != nil {
		log.Warningf("led %s: initial brightness apply failed: %v", def.Name, err)
	}

	state = Active
	log.Infof("led %s %s: %d channels, period %dns", def.Name, state, len(entries), periodNs)
	c.bus.Publish(events.LEDRegisteredEvent{LED: def.Name, Channels: len(entries), PeriodNs: periodNs})
	return l, nil
}

// RegisterDevice registers a device's LEDs strictly in declaration order.
// The first failure aborts the device: LEDs already registered in this
// pass are torn down and their channels released, so no device stays
// half-registered.
func (c *RegistrationController) RegisterDevice(defs []Definition) ([]*LED, error) {
	done := make([]*LED, 0, len(defs))
	for _, def := range defs {
		l, err := c.RegisterLED(def)
		if err != nil {
			var teardown error
			for _, prev := range done {
				c.registry.Remove(prev.Name())
				teardown = multierr.Append(teardown, prev.Close())
			}
			if teardown != nil {
				log.Warningf("device teardown after failed registration: %v", teardown)
			}
			return nil, errors.Wrapf(err, "device registration aborted at led %s", def.Name)
		}
		done = append(done, l)
	}
	return done, nil
}

func stageErr(s State, err error) error {
	return errors.Wrapf(err, "registration %s", s)
}
