// Package pca9685 drives channels of an NXP PCA9685 16-channel PWM
// expander over I2C. Specifiers look like "pca9685:1:0x40:5" for bus 1,
// device address 0x40, output 5. All outputs of one chip share a period
// set by the prescaler at first open.
package pca9685

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	i2c "github.com/d2r2/go-i2c"

	"github.com/jstrnad/pwmled-go/internal/logger"
	"github.com/jstrnad/pwmled-go/pkg/pwm"
)

var log = logger.New("pca9685")

const (
	regMode1    = 0x00
	regLed0OnL  = 0x06
	regPrescale = 0xFE

	mode1Sleep   = 0x10
	mode1Restart = 0x80

	// Bit 4 of LEDn_OFF_H forces the output fully off; it takes
	// precedence over everything in the ON registers.
	fullOffBit = 0x10
	fullOnBit  = 0x10

	timerResolution = 4096
	oscillatorHz    = 25_000_000

	channelCount   = 16
	bytesPerOutput = 4

	defaultFreqHz = 200
)

type conn interface {
	ReadRegU8(reg byte) (byte, error)
	WriteRegU8(reg byte, value byte) error
	Close() error
}

// openI2C is replaced in tests.
var openI2C = func(addr uint8, bus int) (conn, error) {
	return i2c.NewI2C(addr, bus)
}

// Provider opens PCA9685 chips on demand and hands out their outputs.
// Chips are shared: two channels on the same bus and address use one
// device handle.
type Provider struct {
	// FreqHz is the output frequency programmed into the prescaler when
	// a chip is first opened. 0 means 200 Hz.
	FreqHz float64
	// DevDir is where i2c device nodes live. Empty means /dev.
	DevDir string

	mu      sync.Mutex
	devices map[string]*device
}

func (p *Provider) Acquire(spec string) (pwm.Channel, error) {
	bus, addr, output, err := parseSpec(spec)
	if err != nil {
		return nil, err
	}

	devDir := p.DevDir
	if devDir == "" {
		devDir = "/dev"
	}
	node := filepath.Join(devDir, fmt.Sprintf("i2c-%d", bus))
	if _, err := os.Stat(node); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", pwm.ErrDeferred, node)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.devices == nil {
		p.devices = make(map[string]*device)
	}
	key := fmt.Sprintf("%d/0x%02x", bus, addr)
	d, ok := p.devices[key]
	if !ok {
		freq := p.FreqHz
		if freq <= 0 {
			freq = defaultFreqHz
		}
		d, err = openDevice(bus, addr, freq)
		if err != nil {
			return nil, fmt.Errorf("pca9685: open %s: %w", key, err)
		}
		p.devices[key] = d
	}

	ch, err := d.claim(output)
	if err != nil {
		return nil, err
	}
	ch.release = func() { p.release(key, d) }
	return ch, nil
}

func (p *Provider) release(key string, d *device) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d.refs--
	if d.refs > 0 {
		return
	}
	delete(p.devices, key)
	if err := d.conn.Close(); err != nil {
		log.Warningf("close %s: %v", key, err)
	}
}

func parseSpec(spec string) (bus int, addr uint8, output int, err error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 4 || parts[0] != "pca9685" {
		return 0, 0, 0, fmt.Errorf("pca9685: invalid specifier %q, want pca9685:<bus>:<addr>:<channel>", spec)
	}
	bus, err = strconv.Atoi(parts[1])
	if err != nil || bus < 0 {
		return 0, 0, 0, fmt.Errorf("pca9685: invalid bus %q in %q", parts[1], spec)
	}
	a, err := strconv.ParseUint(strings.TrimPrefix(parts[2], "0x"), 16, 8)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("pca9685: invalid address %q in %q", parts[2], spec)
	}
	output, err = strconv.Atoi(parts[3])
	if err != nil || output < 0 || output >= channelCount {
		return 0, 0, 0, fmt.Errorf("pca9685: invalid channel %q in %q, chip has %d outputs", parts[3], spec, channelCount)
	}
	return bus, uint8(a), output, nil
}

// device is one opened chip. Register access is serialized through mu.
type device struct {
	mu       sync.Mutex
	conn     conn
	periodNs int64
	refs     int
	claimed  [channelCount]bool
}

// openDevice programs the prescaler for the requested frequency. The
// prescaler is only writable while the oscillator sleeps.
func openDevice(bus int, addr uint8, freqHz float64) (*device, error) {
	c, err := openI2C(addr, bus)
	if err != nil {
		return nil, err
	}

	prescale := int(oscillatorHz/(timerResolution*freqHz) + 0.5)
	prescale--
	if prescale < 3 {
		prescale = 3
	}
	if prescale > 255 {
		prescale = 255
	}

	mode1, err := c.ReadRegU8(regMode1)
	if err != nil {
		c.Close()
		return nil, err
	}
	steps := []struct {
		reg, val byte
	}{
		{regMode1, mode1&^mode1Restart | mode1Sleep},
		{regPrescale, byte(prescale)},
		{regMode1, mode1 &^ mode1Sleep},
	}
	for _, s := range steps {
		if err := c.WriteRegU8(s.reg, s.val); err != nil {
			c.Close()
			return nil, err
		}
	}
	// The oscillator needs 500us to stabilize before RESTART.
	time.Sleep(500 * time.Microsecond)
	if err := c.WriteRegU8(regMode1, mode1&^mode1Sleep|mode1Restart); err != nil {
		c.Close()
		return nil, err
	}

	d := &device{
		conn:     c,
		periodNs: int64(prescale+1) * timerResolution * 1_000_000_000 / oscillatorHz,
	}
	log.Infof("opened pca9685 bus %d addr 0x%02x, prescale %d, period %dns", bus, addr, prescale, d.periodNs)
	return d, nil
}

func (d *device) claim(output int) (*Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.claimed[output] {
		return nil, fmt.Errorf("pca9685: channel %d already in use", output)
	}
	d.claimed[output] = true
	d.refs++
	return &Channel{dev: d, output: output}, nil
}

// Channel is one output of an opened chip.
type Channel struct {
	dev    *device
	output int

	mu        sync.Mutex
	dutyTicks int
	enabled   bool
	closed    bool
	release   func()
}

func (c *Channel) Configure(dutyNs, periodNs int64) error {
	ticks := 0
	if periodNs > 0 && dutyNs > 0 {
		ticks = int(dutyNs * timerResolution / periodNs)
		if ticks > timerResolution {
			ticks = timerResolution
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("pca9685: channel %d closed", c.output)
	}
	c.dutyTicks = ticks
	if !c.enabled {
		// The full-off bit stays set; the new duty lands on Enable.
		return nil
	}
	return c.write()
}

func (c *Channel) Enable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("pca9685: channel %d closed", c.output)
	}
	c.enabled = true
	return c.write()
}

func (c *Channel) Disable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("pca9685: channel %d closed", c.output)
	}
	c.enabled = false
	return c.write()
}

// Period reports the chip-wide period derived from the prescaler.
func (c *Channel) Period() int64 { return c.dev.periodNs }

func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.enabled = false
	c.dutyTicks = 0
	err := c.write()
	c.mu.Unlock()

	c.dev.mu.Lock()
	c.dev.claimed[c.output] = false
	c.dev.mu.Unlock()
	if c.release != nil {
		c.release()
	}
	return err
}

// write pushes the current state into the four LEDn registers. Caller
// holds c.mu.
func (c *Channel) write() error {
	var onL, onH, offL, offH byte
	switch {
	case !c.enabled || c.dutyTicks == 0:
		offH = fullOffBit
	case c.dutyTicks >= timerResolution:
		onH = fullOnBit
	default:
		onL, onH = 0, 0
		offL, offH = byte(c.dutyTicks), byte(c.dutyTicks>>8)
	}

	base := byte(regLed0OnL + bytesPerOutput*c.output)
	vals := []byte{onL, onH, offL, offH}

	c.dev.mu.Lock()
	defer c.dev.mu.Unlock()
	for i, v := range vals {
		if err := c.dev.conn.WriteRegU8(base+byte(i), v); err != nil {
			return fmt.Errorf("pca9685: write channel %d: %w", c.output, err)
		}
	}
	return nil
}
