// Package service triggers market events and keeps the recent-events log.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zappabad/cloutmarket/internal/events"
	"github.com/zappabad/cloutmarket/internal/events/view"
	"github.com/zappabad/cloutmarket/internal/instrument"
	"github.com/zappabad/cloutmarket/internal/metrics"
	"github.com/zappabad/cloutmarket/internal/pricing"
)

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMetrics sets the collectors updated by the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// Service records event overlays for the pricing engine.
type Service struct {
	cfg      Config
	registry *instrument.Registry
	overlay  *pricing.Overlay
	log      *view.Log
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	// mu orders overlay, log and channel writes so subscribers see events
	// in log order.
	mu        sync.Mutex
	external  chan events.Event
	dropped   atomic.Int64
	closed    bool
	closeOnce sync.Once
}

// New creates an event Service writing into overlay.
func New(registry *instrument.Registry, overlay *pricing.Overlay, cfg Config, opts ...Option) *Service {
	cfg = cfg.withDefaults()
	s := &Service{
		cfg:      cfg,
		registry: registry,
		overlay:  overlay,
		log:      view.NewLog(cfg.LogSize),
		logger:   slog.Default(),
		now:      time.Now,
		external: make(chan events.Event, cfg.ExternalEventBuffer),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	s.logger = s.logger.With("component", "events")
	return s
}

// TriggerEvent validates req, applies its overlay and logs it.
func (s *Service) TriggerEvent(ctx context.Context, req events.Request) (events.Event, error) {
	if err := ctx.Err(); err != nil {
		return events.Event{}, err
	}
	if _, ok := s.registry.Get(req.InstrumentID); !ok {
		return events.Event{}, fmt.Errorf("%w: %s", events.ErrUnknownInstrument, req.InstrumentID)
	}
	if err := req.Validate(); err != nil {
		return events.Event{}, err
	}

	now := s.now()
	ev := events.Event{
		ID:              uuid.NewString(),
		InstrumentID:    req.InstrumentID,
		Type:            req.Type,
		Title:           req.Title,
		ImpactPercent:   req.ImpactPercent,
		DurationMinutes: req.DurationMinutes,
		CreatedAt:       now,
		ExpiresAt:       now.Add(time.Duration(req.DurationMinutes) * time.Minute),
	}

	s.mu.Lock()
	s.overlay.Add(pricing.Impact{
		ID:           ev.ID,
		InstrumentID: ev.InstrumentID,
		Percent:      ev.ImpactPercent,
		ExpiresAt:    ev.ExpiresAt,
	})
	s.log.Append(ev)
	if !s.closed {
		select {
		case s.external <- ev:
		default:
			s.metrics.EventsDropped.Inc()
			if s.dropped.Add(1)%100 == 1 {
				s.logger.Warn("event channel full, dropping", "dropped", s.dropped.Load())
			}
		}
	}
	s.mu.Unlock()

	s.metrics.EventsTriggered.WithLabelValues(ev.Type.String()).Inc()
	s.logger.Info("event triggered",
		"id", ev.ID,
		"instrument", ev.InstrumentID,
		"type", ev.Type,
		"impact", ev.ImpactPercent,
		"expires_at", ev.ExpiresAt,
	)
	return ev, nil
}

// Recent returns the last n events, newest first.
func (s *Service) Recent(n int) []events.Event {
	return s.log.Latest(n)
}

// Active returns the events on instrumentID still in effect.
func (s *Service) Active(instrumentID string) []events.Event {
	now := s.now()
	var out []events.Event
	for _, ev := range s.log.Latest(s.log.Count()) {
		if ev.InstrumentID == instrumentID && ev.Active(now) {
			out = append(out, ev)
		}
	}
	return out
}

// Events returns the subscriber channel. It is closed by Close.
func (s *Service) Events() <-chan events.Event {
	return s.external
}

// DroppedEvents returns the count of events not delivered to subscribers.
func (s *Service) DroppedEvents() int64 {
	return s.dropped.Load()
}

// Close closes the subscriber channel.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.external)
		s.mu.Unlock()
	})
}
