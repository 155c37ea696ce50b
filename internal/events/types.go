package events

// Event type constants for kelindar/event.
const (
	TypeBrightnessApplied uint32 = iota + 1
	TypeWeightChanged
	TypeLEDRegistered
	TypeApplyFailed
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// BrightnessAppliedEvent is published after a brightness value has been
// applied to all channels of a logical LED.
type BrightnessAppliedEvent struct {
	LED         string
	Brightness  int64
	GlobalDuty  int64
	ChannelDuty map[string]int64
}

func (e BrightnessAppliedEvent) Type() uint32 { return TypeBrightnessApplied }

// WeightChangedEvent is published when a channel weight write has taken
// effect, i.e. after the synchronous re-application completed.
type WeightChangedEvent struct {
	LED     string
	Channel string
	Weight  int64
}

func (e WeightChangedEvent) Type() uint32 { return TypeWeightChanged }

// LEDRegisteredEvent is published when a logical LED reaches the active
// state.
type LEDRegisteredEvent struct {
	LED      string
	Channels int
	PeriodNs int64
}

func (e LEDRegisteredEvent) Type() uint32 { return TypeLEDRegistered }

// ApplyFailedEvent is published when a configure call fails mid-apply.
type ApplyFailedEvent struct {
	LED     string
	Channel string
	Cause   string
}

func (e ApplyFailedEvent) Type() uint32 { return TypeApplyFailed }
