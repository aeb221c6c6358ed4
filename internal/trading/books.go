package trading

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zappabad/cloutmarket/internal/orderbook/core"
	orderbookservice "github.com/zappabad/cloutmarket/internal/orderbook/service"
)

// BookEvent wraps a core event with the instrument it happened on.
type BookEvent struct {
	InstrumentID string
	Event        core.Event
}

// TopOfBook holds the best bid and ask and the last trade of one instrument.
type TopOfBook struct {
	BidPrice  decimal.Decimal `json:"bid_price"`
	BidShares int64           `json:"bid_shares"`
	BidOK     bool            `json:"bid_ok"`
	AskPrice  decimal.Decimal `json:"ask_price"`
	AskShares int64           `json:"ask_shares"`
	AskOK     bool            `json:"ask_ok"`
	LastPrice decimal.Decimal `json:"last_price"`
	LastTime  time.Time       `json:"last_time"`
	HasLast   bool            `json:"has_last"`
}

// bookSet owns one order book service per instrument and fans their events
// into a single channel.
type bookSet struct {
	cfg   Config
	books map[string]*orderbookservice.Service

	mu        sync.RWMutex
	lastTrade map[string]core.TradeEvent

	external chan BookEvent
	dropped  atomic.Int64

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newBookSet(ids []string, cfg Config, hookFor func(id string) orderbookservice.EventHook, opts ...orderbookservice.Option) *bookSet {
	s := &bookSet{
		cfg:       cfg,
		books:     make(map[string]*orderbookservice.Service, len(ids)),
		lastTrade: make(map[string]core.TradeEvent),
		external:  make(chan BookEvent, cfg.EventBuffer),
		closed:    make(chan struct{}),
	}

	for _, id := range ids {
		bookOpts := append([]orderbookservice.Option{orderbookservice.WithEventHook(hookFor(id))}, opts...)
		s.books[id] = orderbookservice.NewService(id, cfg.Book, bookOpts...)
	}

	for id, book := range s.books {
		s.wg.Add(1)
		go s.runForwarder(id, book)
	}
	return s
}

func (s *bookSet) runForwarder(id string, book *orderbookservice.Service) {
	defer s.wg.Done()

	events := book.Events()
	for {
		select {
		case <-s.closed:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if trade, ok := ev.(core.TradeEvent); ok {
				s.mu.Lock()
				s.lastTrade[id] = trade
				s.mu.Unlock()
			}

			be := BookEvent{InstrumentID: id, Event: ev}
			if s.cfg.DropEvents {
				select {
				case s.external <- be:
				default:
					s.dropped.Add(1)
				}
			} else {
				select {
				case s.external <- be:
				case <-s.closed:
					return
				}
			}
		}
	}
}

func (s *bookSet) get(id string) (*orderbookservice.Service, bool) {
	b, ok := s.books[id]
	return b, ok
}

// top reads best levels from the book view and the last trade seen by the
// forwarder.
func (s *bookSet) top(id string) (TopOfBook, bool) {
	book, ok := s.books[id]
	if !ok {
		return TopOfBook{}, false
	}
	var t TopOfBook
	if bids := book.GetLevels(core.SideBuy); len(bids) > 0 {
		t.BidPrice = bids[0].Price.Decimal()
		t.BidShares = int64(bids[0].Shares)
		t.BidOK = true
	}
	if asks := book.GetLevels(core.SideSell); len(asks) > 0 {
		t.AskPrice = asks[0].Price.Decimal()
		t.AskShares = int64(asks[0].Shares)
		t.AskOK = true
	}

	s.mu.RLock()
	trade, has := s.lastTrade[id]
	s.mu.RUnlock()
	if has {
		t.LastPrice = trade.Price.Decimal()
		t.LastTime = time.Unix(0, trade.Time)
		t.HasLast = true
	}
	return t, true
}

func (s *bookSet) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
	for _, book := range s.books {
		book.Close()
	}
	s.wg.Wait()
	close(s.external)
}
