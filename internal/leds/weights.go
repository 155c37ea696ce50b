package leds

import (
	"fmt"

	"github.com/jstrnad/pwmled-go/pkg/pwm"
)

// ChannelEntry binds one named PWM channel to its weight. Entries are
// created at registration and never added or removed afterwards; only the
// weight changes at runtime.
type ChannelEntry struct {
	Name     string
	Weight   int64
	Resource pwm.Channel
}

// WeightTable is the fixed-size ordered channel set of one logical LED.
// The index-to-name mapping is immutable after construction. The table has
// no locking of its own; the owning LED's access lock serializes use.
type WeightTable struct {
	entries []*ChannelEntry
	index   map[string]int
}

// newWeightTable builds a table from acquired channels, every weight
// initialized to maxBrightness ("full contribution").
func newWeightTable(entries []*ChannelEntry) *WeightTable {
	idx := make(map[string]int, len(entries))
	for i, e := range entries {
		idx[e.Name] = i
	}
	return &WeightTable{entries: entries, index: idx}
}

func (t *WeightTable) Len() int { return len(t.entries) }

// Index resolves a channel name to its table position.
func (t *WeightTable) Index(name string) (int, bool) {
	i, ok := t.index[name]
	return i, ok
}

// Name returns the channel name at position i.
func (t *WeightTable) Name(i int) string { return t.entries[i].Name }

// Weight returns the weight at position i.
func (t *WeightTable) Weight(i int) (int64, error) {
	if i < 0 || i >= len(t.entries) {
		return 0, fmt.Errorf("channel index %d out of range [0,%d)", i, len(t.entries))
	}
	return t.entries[i].Weight, nil
}

// SetWeight stores the value as given. Values above the LED's max
// brightness are deliberately not clamped; see ChannelDuty.
func (t *WeightTable) SetWeight(i int, value int64) error {
	if i < 0 || i >= len(t.entries) {
		return fmt.Errorf("channel index %d out of range [0,%d)", i, len(t.entries))
	}
	t.entries[i].Weight = value
	return nil
}
