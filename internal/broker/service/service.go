package service

import (
	"log/slog"
	"sync"

	"github.com/zappabad/cloutmarket/internal/broker"
	brokerview "github.com/zappabad/cloutmarket/internal/broker/view"
	"github.com/zappabad/cloutmarket/internal/trader"
)

// Service consumes bot event streams into a journal.
type Service struct {
	cfg     Config
	journal *brokerview.Journal
	logger  *slog.Logger

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a Service.
func New(cfg Config, logger *slog.Logger) *Service {
	if cfg.JournalCapacity <= 0 {
		cfg.JournalCapacity = DefaultConfig().JournalCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		cfg:     cfg,
		journal: brokerview.NewJournal(cfg.JournalCapacity),
		logger:  logger.With("component", "broker"),
		closed:  make(chan struct{}),
	}
}

// AttachBot starts consuming a bot's events. Consumption stops when the
// channel closes or the service is closed.
func (s *Service) AttachBot(events <-chan trader.Event) {
	s.wg.Add(1)
	go s.runBotListener(events)
}

func (s *Service) runBotListener(events <-chan trader.Event) {
	defer s.wg.Done()

	for {
		select {
		case <-s.closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handleBotEvent(ev)
		}
	}
}

func (s *Service) handleBotEvent(ev trader.Event) {
	entry := broker.EntryFromEvent(ev)
	s.journal.Add(entry)

	switch ev.Type {
	case trader.EventError:
		s.logger.Warn("bot order failed", "bot", ev.BotID, "instrument", entry.InstrumentID, "err", ev.Message)
	case trader.EventRejected:
		s.logger.Debug("bot order rejected", "bot", ev.BotID, "instrument", entry.InstrumentID, "reason", ev.Message)
	}
}

// Recent returns up to n journaled entries, newest first.
func (s *Service) Recent(n int) []broker.Entry {
	return s.journal.Recent(n)
}

// Stats returns per-bot counters.
func (s *Service) Stats() []broker.BotStats {
	return s.journal.Stats()
}

// Close stops every listener.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	s.wg.Wait()
}
