// Package leds implements logical LEDs driven by sets of weighted PWM
// channels: duty translation, per-channel weights, brightness application
// and the registration lifecycle.
package leds

// GlobalDuty translates a logical brightness into the LED-wide duty cycle
// in nanoseconds: floor(period * brightness / maxBrightness). All math is
// integer; rounding truncates.
func GlobalDuty(brightness, periodNs, maxBrightness int64) int64 {
	if maxBrightness <= 0 {
		return 0
	}
	return periodNs * brightness / maxBrightness
}

// ChannelDuty scales the global duty by a channel weight and applies the
// polarity convention: rel = floor(globalDuty * weight / maxBrightness),
// inverted against the period for active-low channels.
//
// Weights above maxBrightness are not clamped; they proportionally amplify
// the channel duty beyond the nominal range, which for active-low channels
// produces a value below zero. Callers that care must bound the weight.
func ChannelDuty(globalDutyNs, weight, periodNs, maxBrightness int64, activeLow bool) int64 {
	if maxBrightness <= 0 {
		return 0
	}
	rel := globalDutyNs * weight / maxBrightness
	if activeLow {
		return periodNs - rel
	}
	return rel
}
