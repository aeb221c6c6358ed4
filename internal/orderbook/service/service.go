package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zappabad/cloutmarket/internal/orderbook/core"
	"github.com/zappabad/cloutmarket/internal/orderbook/view"
)

// ErrClosed is returned once the service has been closed.
var ErrClosed = errors.New("orderbook service closed")

// EventHook is invoked on the command goroutine for every core event, before
// the event reaches the view or external subscribers. It must not call back
// into the same Service.
type EventHook func(core.Event)

// Option configures a Service.
type Option func(*Service)

// WithEventHook installs a synchronous event hook.
func WithEventHook(h EventHook) Option {
	return func(s *Service) { s.hook = h }
}

// WithClock overrides the wall clock used to stamp orders.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// command types
type cmdType int

const (
	cmdSubmitLimit cmdType = iota
	cmdCancel
	cmdSweep
	cmdRecordTrade
	cmdSnapshot
)

type command struct {
	typ    cmdType
	order  core.Order      // submit
	id     core.OrderID    // cancel
	userID core.UserID     // cancel
	now    int64           // sweep
	trade  core.TradeEvent // record
	respCh chan<- response
}

type response struct {
	submitReport core.SubmitReport
	cancelReport core.CancelReport
	trade        core.TradeEvent
	snapshot     core.BookSnapshot
	swept        int
	err          error
}

// Service owns one instrument's order book. All mutations run on a single
// command goroutine, which is the exclusive section for that instrument.
type Service struct {
	instrumentID string
	cfg          Config
	core         *core.Core
	view         *view.BookView
	hook         EventHook
	now          func() time.Time
	logger       *slog.Logger

	cmdCh          chan command
	internalEvents chan core.Event
	externalEvents chan core.Event

	droppedExternal atomic.Int64

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewService creates a new orderbook Service for instrumentID.
func NewService(instrumentID string, cfg Config, opts ...Option) *Service {
	cfg = cfg.withDefaults()

	s := &Service{
		instrumentID:   instrumentID,
		cfg:            cfg,
		core:           core.NewCore(core.WithTradeIDs(uuid.NewString)),
		view:           view.NewBookView(cfg.TradeTapeSize),
		now:            time.Now,
		logger:         slog.Default(),
		cmdCh:          make(chan command, cfg.CommandBuffer),
		internalEvents: make(chan core.Event, cfg.EventBuffer),
		externalEvents: make(chan core.Event, cfg.ExternalEventBuffer),
		closed:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "orderbook", "instrument", instrumentID)

	s.wg.Add(1)
	go s.runCommandProcessor()

	s.wg.Add(1)
	go s.runEventDispatcher()

	return s
}

// InstrumentID returns the instrument this book belongs to.
func (s *Service) InstrumentID() string { return s.instrumentID }

func (s *Service) runCommandProcessor() {
	defer s.wg.Done()

	for {
		select {
		case <-s.closed:
			return
		case cmd := <-s.cmdCh:
			s.processCommand(cmd)
		}
	}
}

func (s *Service) processCommand(cmd command) {
	var (
		resp   response
		events []core.Event
	)

	switch cmd.typ {
	case cmdSubmitLimit:
		o := cmd.order
		if o.Time == 0 {
			o.Time = s.now().UnixNano()
		}
		resp.submitReport, events, resp.err = s.core.SubmitLimit(o)

	case cmdCancel:
		resp.cancelReport, events, resp.err = s.core.Cancel(cmd.id, cmd.userID, s.now().UnixNano())

	case cmdSweep:
		events = s.core.SweepExpired(cmd.now)
		resp.swept = len(events)

	case cmdRecordTrade:
		var ev core.TradeEvent
		ev, resp.err = s.core.RecordTrade(cmd.trade)
		if resp.err == nil {
			resp.trade = ev
			events = []core.Event{ev}
		}

	case cmdSnapshot:
		resp.snapshot = s.core.Snapshot()
	}

	for _, ev := range events {
		if s.hook != nil {
			s.hook(ev)
		}
		s.emitEvent(ev)
	}

	if cmd.respCh != nil {
		cmd.respCh <- resp
	}
}

func (s *Service) emitEvent(ev core.Event) {
	// blocking is ok, buffer should be sufficient
	select {
	case s.internalEvents <- ev:
	case <-s.closed:
		return
	}
}

func (s *Service) runEventDispatcher() {
	defer s.wg.Done()
	defer close(s.externalEvents)

	for {
		select {
		case <-s.closed:
			return
		case ev := <-s.internalEvents:
			s.view.Apply(ev)

			if s.cfg.DropExternalEvents {
				select {
				case s.externalEvents <- ev:
				default:
					if s.droppedExternal.Add(1)%100 == 1 {
						s.logger.Warn("external event channel full, dropping", "dropped", s.droppedExternal.Load())
					}
				}
			} else {
				select {
				case s.externalEvents <- ev:
				case <-s.closed:
					return
				}
			}
		}
	}
}

func (s *Service) call(ctx context.Context, cmd command) (response, error) {
	respCh := make(chan response, 1)
	cmd.respCh = respCh

	select {
	case <-s.closed:
		return response{}, ErrClosed
	case <-ctx.Done():
		return response{}, ctx.Err()
	case s.cmdCh <- cmd:
	}

	select {
	case <-s.closed:
		return response{}, ErrClosed
	case <-ctx.Done():
		return response{}, ctx.Err()
	case resp := <-respCh:
		return resp, resp.err
	}
}

// SubmitLimit submits a limit order. The caller assigns ID, UserID and
// optionally Time; a zero Time is stamped with the service clock.
func (s *Service) SubmitLimit(ctx context.Context, o core.Order) (core.SubmitReport, error) {
	o.Kind = core.OrderKindLimit
	resp, err := s.call(ctx, command{typ: cmdSubmitLimit, order: o})
	return resp.submitReport, err
}

// Cancel cancels a resting order owned by userID.
func (s *Service) Cancel(ctx context.Context, id core.OrderID, userID core.UserID) (core.CancelReport, error) {
	resp, err := s.call(ctx, command{typ: cmdCancel, id: id, userID: userID})
	return resp.cancelReport, err
}

// SweepExpired removes resting orders that expired at or before now and
// returns how many were removed.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	resp, err := s.call(ctx, command{typ: cmdSweep, now: now.UnixNano()})
	return resp.swept, err
}

// RecordTrade publishes a fill against simulated liquidity on this book's
// trade stream. The returned event carries the assigned trade id.
func (s *Service) RecordTrade(ctx context.Context, ev core.TradeEvent) (core.TradeEvent, error) {
	if ev.Time == 0 {
		ev.Time = s.now().UnixNano()
	}
	resp, err := s.call(ctx, command{typ: cmdRecordTrade, trade: ev})
	return resp.trade, err
}

// Snapshot returns a consistent sorted copy of the book.
func (s *Service) Snapshot(ctx context.Context) (core.BookSnapshot, error) {
	resp, err := s.call(ctx, command{typ: cmdSnapshot})
	return resp.snapshot, err
}

// GetLevels returns aggregate levels for a side (from view).
func (s *Service) GetLevels(side core.Side) []view.Level {
	return s.view.Levels(side)
}

// GetOrders returns resting orders for a side (from view).
func (s *Service) GetOrders(side core.Side) []view.RestingOrder {
	return s.view.Orders(side)
}

// GetTradesLast returns the last n trades (from view).
func (s *Service) GetTradesLast(n int) []core.TradeEvent {
	return s.view.TradesLast(n)
}

// Volume returns the total traded shares seen by the view.
func (s *Service) Volume() core.Shares {
	return s.view.Volume()
}

// Events returns the external events channel for subscribers.
func (s *Service) Events() <-chan core.Event {
	return s.externalEvents
}

// DroppedExternalEvents returns the count of dropped external events.
func (s *Service) DroppedExternalEvents() int64 {
	return s.droppedExternal.Load()
}

// Close shuts down the service and waits for goroutines to finish.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	s.wg.Wait()
}
