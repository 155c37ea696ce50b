// Package softpwm bit-bangs a PWM signal on a plain GPIO line for boards
// whose pins have no hardware PWM. Specifiers look like
// "gpio:gpiochip0:17".
package softpwm

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/jstrnad/pwmled-go/internal/logger"
	"github.com/jstrnad/pwmled-go/pkg/pwm"
)

var log = logger.New("softpwm")

type pin interface {
	SetValue(int) error
	Close() error
}

// requestLine is replaced in tests.
var requestLine = func(chip string, offset int) (pin, error) {
	return gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
}

// Provider acquires GPIO lines and drives them with a software PWM loop.
type Provider struct {
	// DevDir is where gpiochip device nodes live. Empty means /dev.
	DevDir string
}

func (p *Provider) Acquire(spec string) (pwm.Channel, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 || parts[0] != "gpio" {
		return nil, fmt.Errorf("softpwm: invalid specifier %q, want gpio:<chip>:<line>", spec)
	}
	chip := parts[1]
	offset, err := strconv.Atoi(parts[2])
	if err != nil || offset < 0 {
		return nil, fmt.Errorf("softpwm: invalid line %q in %q", parts[2], spec)
	}

	devDir := p.DevDir
	if devDir == "" {
		devDir = "/dev"
	}
	dev := filepath.Join(devDir, chip)
	if _, err := os.Stat(dev); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", pwm.ErrDeferred, dev)
	}

	l, err := requestLine(dev, offset)
	if err != nil {
		return nil, fmt.Errorf("softpwm: request %s line %d: %w", dev, offset, err)
	}
	log.Debugf("acquired %s line %d", dev, offset)
	return newChannel(l), nil
}

type state struct {
	dutyNs   int64
	periodNs int64
	enabled  bool
}

// Channel toggles a GPIO line from a dedicated goroutine. Parameter
// changes take effect at the next period boundary.
type Channel struct {
	pin pin

	mu     sync.Mutex
	st     state
	closed bool

	update chan state
	done   chan struct{}
}

func newChannel(p pin) *Channel {
	c := &Channel{
		pin:    p,
		update: make(chan state, 1),
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Channel) Configure(dutyNs, periodNs int64) error {
	if dutyNs < 0 || periodNs < 0 {
		return fmt.Errorf("softpwm: negative duty or period")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.dutyNs = dutyNs
	c.st.periodNs = periodNs
	return c.push()
}

func (c *Channel) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.enabled = true
	return c.push()
}

func (c *Channel) Disable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st.enabled = false
	return c.push()
}

// Period reports 0: a bit-banged line has no intrinsic period, the
// consumer must bring its own.
func (c *Channel) Period() int64 { return 0 }

func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.update)
	c.mu.Unlock()

	<-c.done
	return c.pin.Close()
}

// push hands the current parameters to the toggle loop without blocking.
// Caller holds c.mu.
func (c *Channel) push() error {
	if c.closed {
		return fmt.Errorf("softpwm: channel closed")
	}
	select {
	case <-c.update:
	default:
	}
	c.update <- c.st
	return nil
}

// run owns the line. It sleeps through each on/off phase and picks up new
// parameters between cycles, so a glitchless duty change costs at most one
// period of latency.
func (c *Channel) run() {
	var st state
	cur := -1
	set := func(v int) {
		if cur == v {
			return
		}
		if err := c.pin.SetValue(v); err != nil {
			log.Errorf("set line value %d: %v", v, err)
			return
		}
		cur = v
	}

	defer func() {
		set(0)
		close(c.done)
	}()

	for {
		if !st.enabled || st.periodNs <= 0 {
			set(0)
			next, ok := <-c.update
			if !ok {
				return
			}
			st = next
			continue
		}

		on := time.Duration(st.dutyNs)
		if on > time.Duration(st.periodNs) {
			on = time.Duration(st.periodNs)
		}
		off := time.Duration(st.periodNs) - on

		if on > 0 {
			set(1)
			time.Sleep(on)
		}
		if off > 0 {
			set(0)
			time.Sleep(off)
		}

		select {
		case next, ok := <-c.update:
			if !ok {
				return
			}
			st = next
		default:
		}
	}
}
