package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jstrnad/pwmled-go/internal/config"
	"github.com/jstrnad/pwmled-go/internal/events"
	"github.com/jstrnad/pwmled-go/internal/leds"
	"github.com/jstrnad/pwmled-go/internal/logger"
	"github.com/jstrnad/pwmled-go/internal/metrics"
	"github.com/jstrnad/pwmled-go/internal/pca9685"
	"github.com/jstrnad/pwmled-go/internal/server"
	"github.com/jstrnad/pwmled-go/internal/softpwm"
	"github.com/jstrnad/pwmled-go/pkg/pwm"
)

var log = logger.New("main")

// buildProviders wires every channel backend into one dispatch registry.
// Bare specifiers like "pwmchip0/2" fall through to sysfs.
func buildProviders(cfg *config.Config) *pwm.Registry {
	reg := pwm.NewRegistry()
	reg.Register("", &pwm.SysfsProvider{})
	reg.Register("gpio", &softpwm.Provider{})
	reg.Register("pca9685", &pca9685.Provider{FreqHz: cfg.Daemon.PCA9685FreqHz})
	return reg
}

// registerWithRetry runs device registration, retrying on deferred
// channel acquisitions. Hard failures abort immediately; deferrals are
// retried up to attempts times with a fixed interval.
func registerWithRetry(ctx context.Context, ctrl *leds.RegistrationController, defs []leds.Definition, interval time.Duration, attempts int) ([]*leds.LED, error) {
	var lastErr error
	for try := 0; ; try++ {
		registered, err := ctrl.RegisterDevice(defs)
		if err == nil {
			return registered, nil
		}
		if !errors.Is(err, pwm.ErrDeferred) {
			return nil, err
		}
		lastErr = err
		if try >= attempts {
			return nil, errors.Wrapf(lastErr, "giving up after %d attempts", try+1)
		}
		log.Infof("channel not ready, retrying in %v (%d/%d): %v", interval, try+1, attempts, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func runServe(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := logger.SetLevel(cfg.Daemon.LogLevel); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	bus := events.New()
	providers := buildProviders(cfg)
	registry := leds.NewRegistry()
	defer registry.Close()
	ctrl := leds.NewRegistrationController(providers, registry, bus)

	var collector *metrics.Collector
	if cfg.Daemon.Metrics {
		collector = metrics.NewCollector()
		collector.Attach(bus)
		defer collector.Detach()
	}

	if _, err := registerWithRetry(ctx, ctrl, cfg.LEDs, cfg.Daemon.RetryInterval, cfg.Daemon.RetryAttempts); err != nil {
		return errors.Wrap(err, "device registration failed")
	}

	opts := &server.Options{Listen: cfg.Daemon.Listen}
	if collector != nil {
		opts.MetricsHandler = collector.Handler()
	}
	srv := server.NewServer(registry, opts)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Start(ctx); err != nil {
			log.Errorf("api server: %v", err)
			cancel()
		}
	}()

	// Config reloads tear the device down and bring it back up with the
	// new definitions. Reloads and shutdown are serialized.
	var reloadMu sync.Mutex
	if cfg.Daemon.Watch {
		w := config.NewWatcher(path, func(next *config.Config) {
			reloadMu.Lock()
			defer reloadMu.Unlock()
			if ctx.Err() != nil {
				return
			}
			if err := registry.Close(); err != nil {
				log.Warningf("teardown before reload: %v", err)
			}
			if collector != nil {
				for _, def := range cfg.LEDs {
					collector.Forget(def.Name)
				}
			}
			if _, err := registerWithRetry(ctx, ctrl, next.LEDs, next.Daemon.RetryInterval, next.Daemon.RetryAttempts); err != nil {
				log.Errorf("re-registration after reload failed: %v", err)
				return
			}
			cfg = next
		}, nil)
		if err := w.Start(); err != nil {
			return errors.Wrap(err, "config watcher")
		}
		defer w.Stop()
	}

	if ok, err := sd.SdNotify(false, sd.SdNotifyReady); err != nil {
		log.Warningf("sd_notify: %v", err)
	} else if ok {
		log.Debugf("notified systemd")
	}

	select {
	case <-sigCh:
		log.Infof("shutting down")
	case <-ctx.Done():
	}
	sd.SdNotify(false, sd.SdNotifyStopping)
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		log.Warningf("shutdown timeout")
	}
	return nil
}

func runCheck(cmd *cobra.Command, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %d leds\n", path, len(cfg.LEDs))
	for _, def := range cfg.LEDs {
		fmt.Fprintf(cmd.OutOrStdout(), "  led %s: %d channels, max_brightness %d\n",
			def.Name, len(def.Channels), def.MaxBrightness)
		for _, ch := range def.Channels {
			fmt.Fprintf(cmd.OutOrStdout(), "    %s = %s\n", ch.Name, ch.Spec)
		}
	}
	return nil
}
