package pwm

import (
	"fmt"
	"sync"
)

// MockCall records one operation applied to a MockChannel.
type MockCall struct {
	Op       string // "configure", "enable", "disable", "close"
	DutyNs   int64
	PeriodNs int64
}

// MockChannel is an in-memory Channel for tests. It records every call and
// can be scripted to fail.
type MockChannel struct {
	Name string
	// IntrinsicPeriod is what Period reports.
	IntrinsicPeriod int64
	// ConfigureErr, when set, is returned by Configure.
	ConfigureErr error

	mu      sync.Mutex
	calls   []MockCall
	enabled bool
}

func (m *MockChannel) Configure(dutyNs, periodNs int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConfigureErr != nil {
		return m.ConfigureErr
	}
	m.calls = append(m.calls, MockCall{Op: "configure", DutyNs: dutyNs, PeriodNs: periodNs})
	return nil
}

func (m *MockChannel) Enable() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
	m.calls = append(m.calls, MockCall{Op: "enable"})
	return nil
}

func (m *MockChannel) Disable() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
	m.calls = append(m.calls, MockCall{Op: "disable"})
	return nil
}

func (m *MockChannel) Period() int64 { return m.IntrinsicPeriod }

func (m *MockChannel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Op: "close"})
	return nil
}

// Calls returns a copy of the recorded calls.
func (m *MockChannel) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// LastConfigure returns the most recent configure call, if any.
func (m *MockChannel) LastConfigure() (MockCall, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.calls) - 1; i >= 0; i-- {
		if m.calls[i].Op == "configure" {
			return m.calls[i], true
		}
	}
	return MockCall{}, false
}

// Enabled reports the current enable state.
func (m *MockChannel) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// MockProvider maps specifiers to prepared channels or errors.
type MockProvider struct {
	// Channels maps specifier to the channel Acquire hands out. A nil
	// value models a provider that silently resolves to nothing.
	Channels map[string]*MockChannel
	// Errs maps specifier to an acquisition error.
	Errs map[string]error

	mu       sync.Mutex
	acquired []string
}

func (p *MockProvider) Acquire(spec string) (Channel, error) {
	p.mu.Lock()
	p.acquired = append(p.acquired, spec)
	p.mu.Unlock()

	if err, ok := p.Errs[spec]; ok {
		return nil, err
	}
	ch, ok := p.Channels[spec]
	if !ok {
		return nil, fmt.Errorf("mock: unknown specifier %q", spec)
	}
	if ch == nil {
		return nil, nil
	}
	return ch, nil
}

// Acquired returns the specifiers requested so far, in order.
func (p *MockProvider) Acquired() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.acquired))
	copy(out, p.acquired)
	return out
}
