// Package metrics exposes LED state over Prometheus. The collector feeds
// off the event bus, so the LED core has no metrics dependency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jstrnad/pwmled-go/internal/events"
)

// Collector turns bus events into Prometheus series.
type Collector struct {
	registry *prometheus.Registry

	brightness    *prometheus.GaugeVec
	channelDuty   *prometheus.GaugeVec
	applyFailures *prometheus.CounterVec
	registrations prometheus.Counter

	unsubs []func()
}

// NewCollector builds the metric set on its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		brightness: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pwmled_brightness",
			Help: "Current logical brightness per LED.",
		}, []string{"led"}),
		channelDuty: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pwmled_channel_duty_ns",
			Help: "Applied per-channel duty cycle in nanoseconds.",
		}, []string{"led", "channel"}),
		applyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "pwmled_apply_failures_total",
			Help: "Hardware apply failures per LED channel.",
		}, []string{"led", "channel"}),
		registrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "pwmled_registrations_total",
			Help: "Successful LED registrations.",
		}),
	}
}

// Attach subscribes the collector to the bus. Call Detach to stop.
func (c *Collector) Attach(bus *events.Bus) {
	c.unsubs = append(c.unsubs,
		bus.Subscribe(func(e events.BrightnessAppliedEvent) {
			c.brightness.WithLabelValues(e.LED).Set(float64(e.Brightness))
			for ch, duty := range e.ChannelDuty {
				c.channelDuty.WithLabelValues(e.LED, ch).Set(float64(duty))
			}
		}),
		bus.Subscribe(func(e events.ApplyFailedEvent) {
			c.applyFailures.WithLabelValues(e.LED, e.Channel).Inc()
		}),
		bus.Subscribe(func(e events.LEDRegisteredEvent) {
			c.registrations.Inc()
		}),
	)
}

// Detach undoes Attach.
func (c *Collector) Detach() {
	for _, u := range c.unsubs {
		u()
	}
	c.unsubs = nil
}

// Forget drops the series of an unregistered LED so stale values do not
// linger on the scrape endpoint.
func (c *Collector) Forget(led string) {
	c.brightness.DeletePartialMatch(prometheus.Labels{"led": led})
	c.channelDuty.DeletePartialMatch(prometheus.Labels{"led": led})
}

// Handler serves the scrape endpoint for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
