package leds

import "testing"

func TestGlobalDuty(t *testing.T) {
	tests := []struct {
		name       string
		brightness int64
		period     int64
		max        int64
		want       int64
	}{
		{"off", 0, 1000, 255, 0},
		{"full", 255, 1000, 255, 1000},
		{"half rounds down", 127, 1000, 255, 498},
		{"one step", 1, 1000, 255, 3},
		{"zero period", 255, 0, 255, 0},
		{"zero max is guarded", 10, 1000, 0, 0},
		{"large period no overflow", 100, 1_000_000_000, 255, 392_156_862},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GlobalDuty(tt.brightness, tt.period, tt.max); got != tt.want {
				t.Errorf("GlobalDuty(%d, %d, %d) = %d, want %d",
					tt.brightness, tt.period, tt.max, got, tt.want)
			}
		})
	}
}

func TestChannelDuty(t *testing.T) {
	tests := []struct {
		name      string
		duty      int64
		weight    int64
		period    int64
		max       int64
		activeLow bool
		want      int64
	}{
		{"full weight passes through", 1000, 255, 1000, 255, false, 1000},
		{"half weight rounds down", 1000, 127, 1000, 255, false, 498},
		{"zero weight", 1000, 0, 1000, 255, false, 0},
		{"active low inverts", 600, 255, 1000, 255, true, 400},
		{"active low full is zero", 1000, 255, 1000, 255, true, 0},
		{"active low off is period", 0, 255, 1000, 255, true, 1000},
		{"boost weight exceeds period", 1000, 510, 1000, 255, false, 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChannelDuty(tt.duty, tt.weight, tt.period, tt.max, tt.activeLow)
			if got != tt.want {
				t.Errorf("ChannelDuty(%d, %d, %d, %d, %v) = %d, want %d",
					tt.duty, tt.weight, tt.period, tt.max, tt.activeLow, got, tt.want)
			}
		})
	}
}

func TestChannelDutyMonotonic(t *testing.T) {
	const period, max = 100000, 255

	// Non-decreasing in brightness for fixed weight.
	for _, weight := range []int64{1, 64, 128, 255} {
		prev := int64(-1)
		for b := int64(0); b <= max; b++ {
			d := ChannelDuty(GlobalDuty(b, period, max), weight, period, max, false)
			if d < prev {
				t.Fatalf("duty not monotonic in brightness: w=%d b=%d duty=%d prev=%d", weight, b, d, prev)
			}
			prev = d
		}
	}

	// Non-decreasing in weight for fixed brightness.
	for _, b := range []int64{1, 100, 255} {
		g := GlobalDuty(b, period, max)
		prev := int64(-1)
		for w := int64(0); w <= max; w++ {
			d := ChannelDuty(g, w, period, max, false)
			if d < prev {
				t.Fatalf("duty not monotonic in weight: b=%d w=%d duty=%d prev=%d", b, w, d, prev)
			}
			prev = d
		}
	}
}

func TestChannelDutyPolarityRoundTrip(t *testing.T) {
	const period, max = 40000, 255
	for b := int64(0); b <= max; b += 5 {
		for w := int64(0); w <= max; w += 5 {
			g := GlobalDuty(b, period, max)
			normal := ChannelDuty(g, w, period, max, false)
			inverted := ChannelDuty(g, w, period, max, true)
			if normal+inverted != period {
				t.Fatalf("polarity round trip broken: b=%d w=%d %d+%d != %d",
					b, w, normal, inverted, period)
			}
		}
	}
}
