// Package server exposes the LED attribute surface over HTTP. It is the
// userspace stand-in for the sysfs brightness and weight files.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/jstrnad/pwmled-go/internal/leds"
	"github.com/jstrnad/pwmled-go/internal/logger"
)

var log = logger.New("server")

// Options configures the API server.
type Options struct {
	Listen string
	// MetricsHandler, when set, is mounted at /metrics.
	MetricsHandler http.Handler
}

// Server is the Huma v2 API server over the LED registry.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	registry   *leds.Registry
	options    *Options
}

// NewServer builds the server and registers all routes.
func NewServer(registry *leds.Registry, opts *Options) *Server {
	mux := http.NewServeMux()

	config := huma.DefaultConfig("pwmled API", "1.0.0")
	config.Info.Description = "Multichannel PWM LED controller"
	config.Servers = []*huma.Server{}

	s := &Server{
		api:      humago.New(mux, config),
		mux:      mux,
		registry: registry,
		options:  opts,
	}

	if opts.MetricsHandler != nil {
		mux.Handle("/metrics", opts.MetricsHandler)
	}

	s.registerHealthRoutes()
	s.registerLEDRoutes()
	return s
}

// API exposes the huma API, mainly for tests.
func (s *Server) API() huma.API { return s.api }

// Handler returns the root handler, including the metrics mount.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves until the context is cancelled, then drains with a
// timeout.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.options.Listen,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", s.options.Listen)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

type HealthResponse struct {
	Body struct {
		Status string `json:"status" example:"ok" doc:"Daemon liveness"`
		LEDs   int    `json:"leds" doc:"Number of registered LEDs"`
	}
}

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health check",
		Tags:        []string{"health"},
	}, func(ctx context.Context, input *struct{}) (*HealthResponse, error) {
		resp := &HealthResponse{}
		resp.Body.Status = "ok"
		resp.Body.LEDs = len(s.registry.Names())
		return resp, nil
	})
}

// ChannelInfo is one weighted channel of an LED.
type ChannelInfo struct {
	Name   string `json:"name" doc:"Channel name"`
	Weight int64  `json:"weight" doc:"Brightness weight on the LED's scale"`
}

// LEDInfo is the full state of one LED.
type LEDInfo struct {
	Name           string        `json:"name" doc:"Unique LED name"`
	Label          string        `json:"label" doc:"Human-readable description"`
	DefaultTrigger string        `json:"default_trigger,omitempty" doc:"Configured default trigger"`
	ActiveLow      bool          `json:"active_low" doc:"Inverted output polarity"`
	MaxBrightness  int64         `json:"max_brightness" doc:"Top of the brightness scale"`
	PeriodNs       int64         `json:"period_ns" doc:"Operating PWM period in nanoseconds, 0 if degraded"`
	Brightness     int64         `json:"brightness" doc:"Current logical brightness"`
	Channels       []ChannelInfo `json:"channels" doc:"Channels in declaration order"`
}

type ListLEDsResponse struct {
	Body struct {
		LEDs []LEDInfo `json:"leds" doc:"Registered LEDs in registration order"`
	}
}

type GetLEDResponse struct {
	Body LEDInfo
}

type BrightnessResponse struct {
	Body struct {
		Brightness int64 `json:"brightness" doc:"Current logical brightness"`
	}
}

type SetBrightnessRequest struct {
	LED  string `path:"led" doc:"LED name"`
	Body struct {
		Brightness int64 `json:"brightness" minimum:"0" doc:"New logical brightness"`
	}
}

type WeightResponse struct {
	Body struct {
		Weight int64 `json:"weight" doc:"Current channel weight"`
	}
}

type SetWeightRequest struct {
	LED     string `path:"led" doc:"LED name"`
	Channel string `path:"channel" doc:"Channel name"`
	Body    struct {
		Weight int64 `json:"weight" minimum:"0" doc:"New channel weight"`
	}
}

func (s *Server) ledInfo(l *leds.LED) LEDInfo {
	info := LEDInfo{
		Name:           l.Name(),
		Label:          l.Label(),
		DefaultTrigger: l.DefaultTrigger(),
		ActiveLow:      l.ActiveLow(),
		MaxBrightness:  l.MaxBrightness(),
		PeriodNs:       l.Period(),
		Brightness:     l.Brightness(),
	}
	for _, name := range l.Channels() {
		w, _ := l.WeightByName(name)
		info.Channels = append(info.Channels, ChannelInfo{Name: name, Weight: w})
	}
	return info
}

func (s *Server) lookup(name string) (*leds.LED, error) {
	l, ok := s.registry.Get(name)
	if !ok {
		return nil, huma.Error404NotFound(fmt.Sprintf("no led %q", name))
	}
	return l, nil
}

func (s *Server) registerLEDRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-leds",
		Method:      http.MethodGet,
		Path:        "/api/leds",
		Summary:     "List LEDs",
		Tags:        []string{"leds"},
	}, func(ctx context.Context, input *struct{}) (*ListLEDsResponse, error) {
		resp := &ListLEDsResponse{}
		resp.Body.LEDs = []LEDInfo{}
		for _, name := range s.registry.Names() {
			if l, ok := s.registry.Get(name); ok {
				resp.Body.LEDs = append(resp.Body.LEDs, s.ledInfo(l))
			}
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-led",
		Method:      http.MethodGet,
		Path:        "/api/leds/{led}",
		Summary:     "Get LED state",
		Tags:        []string{"leds"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *struct {
		LED string `path:"led" doc:"LED name"`
	}) (*GetLEDResponse, error) {
		l, err := s.lookup(input.LED)
		if err != nil {
			return nil, err
		}
		return &GetLEDResponse{Body: s.ledInfo(l)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-brightness",
		Method:      http.MethodGet,
		Path:        "/api/leds/{led}/brightness",
		Summary:     "Get brightness",
		Tags:        []string{"leds"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *struct {
		LED string `path:"led" doc:"LED name"`
	}) (*BrightnessResponse, error) {
		l, err := s.lookup(input.LED)
		if err != nil {
			return nil, err
		}
		resp := &BrightnessResponse{}
		resp.Body.Brightness = l.Brightness()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-brightness",
		Method:      http.MethodPut,
		Path:        "/api/leds/{led}/brightness",
		Summary:     "Set brightness",
		Description: "Applies a new logical brightness across all channels of the LED.",
		Tags:        []string{"leds"},
		Errors:      []int{400, 404, 500},
	}, func(ctx context.Context, input *SetBrightnessRequest) (*BrightnessResponse, error) {
		l, err := s.lookup(input.LED)
		if err != nil {
			return nil, err
		}
		if input.Body.Brightness > l.MaxBrightness() {
			return nil, huma.Error400BadRequest(fmt.Sprintf(
				"brightness %d above maximum %d", input.Body.Brightness, l.MaxBrightness()))
		}
		if err := l.SetBrightness(input.Body.Brightness); err != nil {
			return nil, huma.Error500InternalServerError("failed to apply brightness", err)
		}
		resp := &BrightnessResponse{}
		resp.Body.Brightness = l.Brightness()
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-channel-weight",
		Method:      http.MethodGet,
		Path:        "/api/leds/{led}/channels/{channel}",
		Summary:     "Get channel weight",
		Tags:        []string{"leds"},
		Errors:      []int{404},
	}, func(ctx context.Context, input *struct {
		LED     string `path:"led" doc:"LED name"`
		Channel string `path:"channel" doc:"Channel name"`
	}) (*WeightResponse, error) {
		l, err := s.lookup(input.LED)
		if err != nil {
			return nil, err
		}
		w, err := l.WeightByName(input.Channel)
		if err != nil {
			return nil, huma.Error404NotFound(err.Error())
		}
		resp := &WeightResponse{}
		resp.Body.Weight = w
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-channel-weight",
		Method:      http.MethodPut,
		Path:        "/api/leds/{led}/channels/{channel}",
		Summary:     "Set channel weight",
		Description: "Stores a new weight and synchronously re-applies the current brightness. Weights above max_brightness boost the channel beyond the global duty.",
		Tags:        []string{"leds"},
		Errors:      []int{404, 409, 500},
	}, func(ctx context.Context, input *SetWeightRequest) (*WeightResponse, error) {
		l, err := s.lookup(input.LED)
		if err != nil {
			return nil, err
		}
		if _, err := l.WeightByName(input.Channel); err != nil {
			return nil, huma.Error404NotFound(err.Error())
		}
		if err := l.SetWeightByName(input.Channel, input.Body.Weight); err != nil {
			if errors.Is(err, leds.ErrBusy) {
				return nil, huma.Error409Conflict("led attribute access is disabled", err)
			}
			return nil, huma.Error500InternalServerError("failed to apply weight", err)
		}
		resp := &WeightResponse{}
		resp.Body.Weight = input.Body.Weight
		return resp, nil
	})
}
