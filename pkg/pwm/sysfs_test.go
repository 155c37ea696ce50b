package pwm

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// fakeChip builds a sysfs-like pwm chip tree under a temp dir. Channel
// directories must be created by the test when it wants the export to be
// observable, since there is no kernel behind the export file.
func fakeChip(t *testing.T, chip string, channels ...int) string {
	t.Helper()
	root := t.TempDir()
	chipDir := filepath.Join(root, chip)
	if err := os.MkdirAll(chipDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, ch := range channels {
		if err := os.MkdirAll(filepath.Join(chipDir, "pwm"+strconv.Itoa(ch)), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestSysfsAcquireMissingChipIsDeferred(t *testing.T) {
	p := &SysfsProvider{Root: t.TempDir()}
	_, err := p.Acquire("pwmchip0/0")
	if !errors.Is(err, ErrDeferred) {
		t.Fatalf("Acquire on missing chip = %v, want ErrDeferred", err)
	}
}

func TestSysfsAcquireInvalidSpec(t *testing.T) {
	p := &SysfsProvider{Root: t.TempDir()}
	for _, spec := range []string{"pwmchip0", "pwmchip0/x", ""} {
		if _, err := p.Acquire(spec); err == nil {
			t.Errorf("Acquire(%q) succeeded, want error", spec)
		} else if errors.Is(err, ErrDeferred) {
			t.Errorf("Acquire(%q) deferred, want hard error", spec)
		}
	}
}

func TestSysfsConfigureWritesPeriodThenDuty(t *testing.T) {
	root := fakeChip(t, "pwmchip0", 2)
	p := &SysfsProvider{Root: root}

	ch, err := p.Acquire("pwmchip0/2")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if err := ch.Configure(300, 1000); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}

	base := filepath.Join(root, "pwmchip0", "pwm2")
	for file, want := range map[string]string{"period": "1000", "duty_cycle": "300"} {
		data, err := os.ReadFile(filepath.Join(base, file))
		if err != nil {
			t.Fatalf("reading %s: %v", file, err)
		}
		if string(data) != want {
			t.Errorf("%s = %q, want %q", file, data, want)
		}
	}

	if got := ch.Period(); got != 1000 {
		t.Errorf("Period() = %d, want 1000", got)
	}
}

func TestSysfsEnableDisable(t *testing.T) {
	root := fakeChip(t, "pwmchip0", 0)
	p := &SysfsProvider{Root: root}

	ch, err := p.Acquire("pwmchip0/0")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	if err := ch.Enable(); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	enablePath := filepath.Join(root, "pwmchip0", "pwm0", "enable")
	if data, _ := os.ReadFile(enablePath); string(data) != "1" {
		t.Errorf("enable = %q, want 1", data)
	}

	if err := ch.Disable(); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if data, _ := os.ReadFile(enablePath); string(data) != "0" {
		t.Errorf("enable = %q, want 0", data)
	}
}

func TestSysfsCloseZeroesDuty(t *testing.T) {
	root := fakeChip(t, "pwmchip1", 0)
	p := &SysfsProvider{Root: root}

	ch, err := p.Acquire("pwmchip1/0")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := ch.Configure(500, 1000); err != nil {
		t.Fatalf("Configure failed: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	base := filepath.Join(root, "pwmchip1", "pwm0")
	if data, _ := os.ReadFile(filepath.Join(base, "duty_cycle")); string(data) != "0" {
		t.Errorf("duty_cycle after Close = %q, want 0", data)
	}
	if data, _ := os.ReadFile(filepath.Join(base, "enable")); string(data) != "0" {
		t.Errorf("enable after Close = %q, want 0", data)
	}
}

func TestRegistryDispatch(t *testing.T) {
	sysRoot := fakeChip(t, "pwmchip0", 1)

	mock := &MockProvider{Channels: map[string]*MockChannel{
		"mock:a": {Name: "a"},
	}}

	r := NewRegistry()
	r.Register("", &SysfsProvider{Root: sysRoot})
	r.Register("mock", mock)

	if _, err := r.Acquire("pwmchip0/1"); err != nil {
		t.Errorf("sysfs dispatch failed: %v", err)
	}
	if _, err := r.Acquire("mock:a"); err != nil {
		t.Errorf("mock dispatch failed: %v", err)
	}
	if got := mock.Acquired(); len(got) != 1 || got[0] != "mock:a" {
		t.Errorf("mock saw %v, want [mock:a]", got)
	}
}

func TestRegistryUnknownScheme(t *testing.T) {
	r := NewRegistry()
	r.Register("mock", &MockProvider{})
	if _, err := r.Acquire("pwmchip0/0"); err == nil {
		t.Error("Acquire without fallback provider succeeded, want error")
	}
}
