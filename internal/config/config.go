package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/jstrnad/pwmled-go/internal/leds"
)

type Config struct {
	Daemon DaemonConfig
	// LEDs in declaration order.
	LEDs []leds.Definition
}

type DaemonConfig struct {
	Listen   string
	Metrics  bool
	Watch    bool
	LogLevel string

	// RetryInterval and RetryAttempts bound the re-acquisition loop for
	// channels whose backing device is not up yet.
	RetryInterval time.Duration
	RetryAttempts int

	// PCA9685FreqHz is programmed into expander chips at first open.
	PCA9685FreqHz float64
}

// Load reads and validates an ini config file. LED sections are named
// [led.<name>] and declare their channels like:
//
//	[led.status]
//	channels = warm,cold
//	channel.warm = pwmchip0/0
//	channel.cold = gpio:gpiochip0:17
func Load(path string) (*Config, error) {
	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	cfg := &Config{}

	sec := iniFile.Section("daemon")
	cfg.Daemon.Listen = sec.Key("listen").MustString("127.0.0.1:9960")
	cfg.Daemon.Metrics = sec.Key("metrics").MustBool(true)
	cfg.Daemon.Watch = sec.Key("watch").MustBool(false)
	cfg.Daemon.LogLevel = sec.Key("log_level").MustString("info")
	cfg.Daemon.RetryInterval = time.Duration(sec.Key("retry_interval").MustFloat64(2) * float64(time.Second))
	cfg.Daemon.RetryAttempts = sec.Key("retry_attempts").MustInt(30)
	cfg.Daemon.PCA9685FreqHz = sec.Key("pca9685_freq_hz").MustFloat64(200)

	if listen := os.Getenv("PWMLED_LISTEN"); listen != "" {
		cfg.Daemon.Listen = listen
	}
	if level := os.Getenv("PWMLED_LOG_LEVEL"); level != "" {
		cfg.Daemon.LogLevel = level
	}

	for _, s := range iniFile.Sections() {
		name, ok := strings.CutPrefix(s.Name(), "led.")
		if !ok {
			continue
		}
		def, err := loadLED(name, s)
		if err != nil {
			return nil, err
		}
		cfg.LEDs = append(cfg.LEDs, def)
	}
	if len(cfg.LEDs) == 0 {
		return nil, fmt.Errorf("config %s: no [led.*] sections", path)
	}

	return cfg, nil
}

func loadLED(name string, sec *ini.Section) (leds.Definition, error) {
	def := leds.Definition{
		Name:             name,
		Label:            sec.Key("label").String(),
		DefaultTrigger:   sec.Key("default_trigger").String(),
		ActiveLow:        sec.Key("active_low").MustBool(false),
		MaxBrightness:    sec.Key("max_brightness").MustInt64(255),
		FallbackPeriodNs: sec.Key("period_ns").MustInt64(0),
	}
	if name == "" {
		return def, fmt.Errorf("config: [led.] section without a name")
	}
	if def.MaxBrightness <= 0 {
		return def, fmt.Errorf("led %s: max_brightness must be positive, got %d", name, def.MaxBrightness)
	}
	if def.FallbackPeriodNs < 0 {
		return def, fmt.Errorf("led %s: period_ns must not be negative, got %d", name, def.FallbackPeriodNs)
	}

	channels := sec.Key("channels").String()
	if channels == "" {
		return def, fmt.Errorf("led %s: no channels declared", name)
	}
	seen := make(map[string]bool)
	for _, ch := range strings.Split(channels, ",") {
		ch = strings.TrimSpace(ch)
		if ch == "" {
			return def, fmt.Errorf("led %s: empty channel name in %q", name, channels)
		}
		if seen[ch] {
			return def, fmt.Errorf("led %s: duplicate channel %q", name, ch)
		}
		seen[ch] = true

		spec := sec.Key("channel." + ch).String()
		if spec == "" {
			return def, fmt.Errorf("led %s: channel %s has no channel.%s specifier", name, ch, ch)
		}
		def.Channels = append(def.Channels, leds.ChannelSpec{Name: ch, Spec: spec})
	}
	return def, nil
}
