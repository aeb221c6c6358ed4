// Package runner drives a bot strategy on a timer.
package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zappabad/cloutmarket/internal/trader"
	"github.com/zappabad/cloutmarket/internal/trader/strategy"
	"github.com/zappabad/cloutmarket/internal/trading"
)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the wall clock passed to the strategy.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// Runner executes a strategy on a timer.
type Runner struct {
	cfg      Config
	botID    trader.BotID
	strategy strategy.Strategy
	mr       strategy.MarketReader
	er       strategy.EventReader
	sender   strategy.OrderSender
	logger   *slog.Logger
	now      func() time.Time

	events        chan trader.Event
	droppedEvents atomic.Int64

	startOnce sync.Once
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewRunner creates a Runner. It does not tick until Start.
func NewRunner(
	cfg Config,
	botID trader.BotID,
	strat strategy.Strategy,
	mr strategy.MarketReader,
	er strategy.EventReader,
	sender strategy.OrderSender,
	opts ...Option,
) *Runner {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}

	r := &Runner{
		cfg:      cfg,
		botID:    botID,
		strategy: strat,
		mr:       mr,
		er:       er,
		sender:   sender,
		logger:   slog.Default(),
		now:      time.Now,
		events:   make(chan trader.Event, cfg.EventBuffer),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "bot", "bot", string(botID))
	return r
}

// BotID returns the bot's id.
func (r *Runner) BotID() trader.BotID { return r.botID }

// Start begins ticking.
func (r *Runner) Start() {
	r.startOnce.Do(func() {
		r.wg.Add(1)
		go r.run()
	})
}

func (r *Runner) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.closed:
			return
		case <-ticker.C:
			r.Tick()
		}
	}
}

// Tick runs one strategy step and executes its intents.
func (r *Runner) Tick() {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.TickInterval)
	defer cancel()

	intents, events := r.strategy.Step(ctx, r.now(), r.mr, r.er)

	for _, intent := range intents {
		r.executeIntent(ctx, intent)
	}
	for _, ev := range events {
		r.emitEvent(ev)
	}
}

func (r *Runner) executeIntent(ctx context.Context, intent trader.OrderIntent) {
	res, err := r.sender.Submit(ctx, string(r.botID), trading.OrderRequest{
		InstrumentID: intent.InstrumentID,
		Side:         intent.Side,
		Kind:         intent.Kind,
		Shares:       intent.Shares,
		LimitPrice:   intent.LimitPrice,
		ExpiresIn:    intent.ExpiresIn,
	})

	ev := trader.Event{BotID: r.botID, Time: r.now(), Intent: &intent}
	switch {
	case err == nil:
		ev.Type = trader.EventPlacedOrder
		ev.OrderID = res.Order.ID
	case errors.Is(err, trading.ErrInsufficientFunds), errors.Is(err, trading.ErrInsufficientShares), errors.Is(err, trading.ErrValidation):
		ev.Type = trader.EventRejected
		ev.Message = err.Error()
		r.logger.Debug("quote rejected", "instrument", intent.InstrumentID, "side", intent.Side, "err", err)
	default:
		ev.Type = trader.EventError
		ev.Message = err.Error()
		r.logger.Warn("quote failed", "instrument", intent.InstrumentID, "side", intent.Side, "err", err)
	}
	r.emitEvent(ev)
}

func (r *Runner) emitEvent(ev trader.Event) {
	if r.cfg.DropEvents {
		select {
		case r.events <- ev:
		default:
			r.droppedEvents.Add(1)
		}
	} else {
		select {
		case r.events <- ev:
		case <-r.closed:
		}
	}
}

// Events returns the bot events channel.
func (r *Runner) Events() <-chan trader.Event {
	return r.events
}

// DroppedEvents returns the count of dropped events.
func (r *Runner) DroppedEvents() int64 {
	return r.droppedEvents.Load()
}

// Close stops the runner and closes its events channel.
func (r *Runner) Close() {
	r.closeOnce.Do(func() {
		close(r.closed)
		r.wg.Wait()
		close(r.events)
	})
}
