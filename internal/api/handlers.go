package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/zappabad/cloutmarket/internal/broker"
	"github.com/zappabad/cloutmarket/internal/events"
	"github.com/zappabad/cloutmarket/internal/orderbook/core"
	"github.com/zappabad/cloutmarket/internal/trading"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, trading.ErrValidation), errors.Is(err, events.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, trading.ErrInstrumentNotFound), errors.Is(err, trading.ErrOrderNotFound), errors.Is(err, events.ErrUnknownInstrument):
		return http.StatusNotFound
	case errors.Is(err, trading.ErrNotOwner):
		return http.StatusForbidden
	case errors.Is(err, trading.ErrInsufficientFunds), errors.Is(err, trading.ErrInsufficientShares), errors.Is(err, trading.ErrNotCancellable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, trading.ErrNoPrice):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}
	var ve *trading.ValidationError
	if errors.As(err, &ve) {
		body.Field = ve.Field
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "err", err)
		body.Error = "internal error"
	}
	c.AbortWithStatusJSON(status, body)
}

func limitParam(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, &trading.ValidationError{Field: "limit", Reason: "must be a positive integer"}
	}
	return min(n, maxListLimit), nil
}

func (s *Server) getHealth(c *gin.Context) {
	st := s.market.Status()
	status := "ok"
	if st.Cycles == 0 {
		status = "starting"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"cycles":       st.Cycles,
		"skipped":      st.Skipped,
		"last_refresh": st.LastRefresh,
		"running":      st.Running,
	})
}

func (s *Server) getMarket(c *gin.Context) {
	snap := s.market.Snapshot()
	if snap == nil {
		s.fail(c, trading.ErrNoPrice)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) getInstrument(c *gin.Context) {
	p, ok := s.market.Instrument(c.Param("id"))
	if !ok {
		s.fail(c, trading.ErrInstrumentNotFound)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) getOrderBook(c *gin.Context) {
	book, err := s.trading.OrderBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (s *Server) getTrades(c *gin.Context) {
	n, err := limitParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	trades, err := s.trading.RecentTrades(c.Param("id"), n)
	if err != nil {
		s.fail(c, err)
		return
	}
	if trades == nil {
		trades = []trading.Trade{}
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

type orderBody struct {
	InstrumentID     string          `json:"instrument_id"`
	Side             string          `json:"side"`
	Kind             string          `json:"kind"`
	Shares           int64           `json:"shares"`
	LimitPrice       decimal.Decimal `json:"limit_price"`
	ExpiresInSeconds int64           `json:"expires_in_seconds"`
}

func (b orderBody) request() (trading.OrderRequest, error) {
	side, ok := core.ParseSide(b.Side)
	if !ok {
		return trading.OrderRequest{}, &trading.ValidationError{Field: "side", Reason: "must be buy or sell"}
	}
	kind := core.OrderKindMarket
	if b.Kind != "" {
		if kind, ok = core.ParseOrderKind(b.Kind); !ok {
			return trading.OrderRequest{}, &trading.ValidationError{Field: "kind", Reason: "must be market or limit"}
		}
	}
	if b.ExpiresInSeconds < 0 {
		return trading.OrderRequest{}, &trading.ValidationError{Field: "expires_in_seconds", Reason: "must not be negative"}
	}
	return trading.OrderRequest{
		InstrumentID: b.InstrumentID,
		Side:         side,
		Kind:         kind,
		Shares:       b.Shares,
		LimitPrice:   b.LimitPrice,
		ExpiresIn:    time.Duration(b.ExpiresInSeconds) * time.Second,
	}, nil
}

func (s *Server) postOrder(c *gin.Context) {
	var body orderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.fail(c, &trading.ValidationError{Field: "body", Reason: err.Error()})
		return
	}
	req, err := body.request()
	if err != nil {
		s.fail(c, err)
		return
	}
	res, err := s.trading.Submit(c.Request.Context(), userOf(c), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (s *Server) getOrders(c *gin.Context) {
	orders := s.trading.Orders(userOf(c))
	if orders == nil {
		orders = []trading.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) getOrder(c *gin.Context) {
	o, err := s.trading.Order(userOf(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) deleteOrder(c *gin.Context) {
	o, err := s.trading.Cancel(c.Request.Context(), userOf(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (s *Server) getPortfolio(c *gin.Context) {
	p, err := s.trading.Portfolio(c.Request.Context(), userOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) postEvent(c *gin.Context) {
	var req events.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, errors.Join(events.ErrInvalidEvent, err))
		return
	}
	ev, err := s.events.TriggerEvent(c.Request.Context(), req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}

func (s *Server) getEvents(c *gin.Context) {
	n, err := limitParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	recent := s.events.Recent(n)
	if recent == nil {
		recent = []events.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": recent})
}

func (s *Server) getBots(c *gin.Context) {
	n, err := limitParam(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	stats := s.cfg.Bots.Stats()
	activity := s.cfg.Bots.Recent(n)
	if activity == nil {
		activity = []broker.Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"bots": stats, "activity": activity})
}
