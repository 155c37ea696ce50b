package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jstrnad/pwmled-go/internal/leds"
	"github.com/jstrnad/pwmled-go/pkg/pwm"
)

// flakyProvider defers the first n acquisitions of each specifier, then
// hands out a fresh mock channel.
type flakyProvider struct {
	mu        sync.Mutex
	deferrals int
	attempts  int
}

func (p *flakyProvider) Acquire(spec string) (pwm.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts++
	if p.deferrals > 0 {
		p.deferrals--
		return nil, pwm.ErrDeferred
	}
	return &pwm.MockChannel{Name: spec, IntrinsicPeriod: 1000}, nil
}

func testDefs() []leds.Definition {
	return []leds.Definition{{
		Name:          "status",
		MaxBrightness: 255,
		Channels:      []leds.ChannelSpec{{Name: "a", Spec: "pwmchip0/0"}},
	}}
}

func TestRegisterWithRetryEventuallySucceeds(t *testing.T) {
	p := &flakyProvider{deferrals: 2}
	registry := leds.NewRegistry()
	ctrl := leds.NewRegistrationController(p, registry, nil)

	registered, err := registerWithRetry(context.Background(), ctrl, testDefs(), time.Millisecond, 5)
	if err != nil {
		t.Fatalf("registerWithRetry failed: %v", err)
	}
	if len(registered) != 1 || registered[0].Name() != "status" {
		t.Errorf("registered = %v", registered)
	}
	if p.attempts != 3 {
		t.Errorf("acquisition attempts = %d, want 3", p.attempts)
	}
}

func TestRegisterWithRetryGivesUp(t *testing.T) {
	p := &flakyProvider{deferrals: 100}
	ctrl := leds.NewRegistrationController(p, leds.NewRegistry(), nil)

	_, err := registerWithRetry(context.Background(), ctrl, testDefs(), time.Millisecond, 2)
	if err == nil {
		t.Fatal("registerWithRetry succeeded, want exhaustion error")
	}
	if !strings.Contains(err.Error(), "giving up") {
		t.Errorf("error %q does not report exhaustion", err)
	}
	if p.attempts != 3 {
		t.Errorf("acquisition attempts = %d, want 3", p.attempts)
	}
}

func TestRegisterWithRetryHardFailureIsImmediate(t *testing.T) {
	// A validation error is not deferred, so no retry happens.
	ctrl := leds.NewRegistrationController(&flakyProvider{}, leds.NewRegistry(), nil)

	defs := []leds.Definition{{Name: "bad", MaxBrightness: 0}}
	start := time.Now()
	_, err := registerWithRetry(context.Background(), ctrl, defs, time.Second, 10)
	if err == nil {
		t.Fatal("registerWithRetry succeeded, want error")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("hard failure went through the retry loop")
	}
}

func TestRegisterWithRetryHonorsContext(t *testing.T) {
	p := &flakyProvider{deferrals: 100}
	ctrl := leds.NewRegistrationController(p, leds.NewRegistry(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := registerWithRetry(ctx, ctrl, testDefs(), time.Hour, 10)
	if err == nil {
		t.Fatal("registerWithRetry ignored cancelled context")
	}
}

func TestRunCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pwmled.conf")
	content := `[led.status]
channels = warm,cold
channel.warm = pwmchip0/0
channel.cold = gpio:gpiochip0:17
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out := &bytes.Buffer{}
	checkCmd.SetOut(out)
	if err := runCheck(checkCmd, path); err != nil {
		t.Fatalf("runCheck failed: %v", err)
	}
	got := out.String()
	for _, want := range []string{"1 leds", "led status: 2 channels", "cold = gpio:gpiochip0:17"} {
		if !strings.Contains(got, want) {
			t.Errorf("check output missing %q:\n%s", want, got)
		}
	}
}

func TestRunCheckRejectsBrokenConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pwmled.conf")
	if err := os.WriteFile(path, []byte("[daemon]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := runCheck(checkCmd, path); err == nil {
		t.Fatal("runCheck accepted a config without leds")
	}
}
