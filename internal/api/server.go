// Package api serves the market, trading and event operations over HTTP
// and streams published snapshots over a websocket.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/zappabad/cloutmarket/internal/broker"
	"github.com/zappabad/cloutmarket/internal/events"
	"github.com/zappabad/cloutmarket/internal/market"
	marketservice "github.com/zappabad/cloutmarket/internal/market/service"
	"github.com/zappabad/cloutmarket/internal/portfolio"
	"github.com/zappabad/cloutmarket/internal/trading"
)

// UserHeader carries the caller's user id.
const UserHeader = "X-User-ID"

// Market is the read side of the aggregator.
type Market interface {
	Snapshot() *market.Snapshot
	Instrument(id string) (market.PricedInstrument, bool)
	Status() marketservice.Status
}

// Trading is the subset of the trading engine the API exposes.
type Trading interface {
	Submit(ctx context.Context, userID string, req trading.OrderRequest) (trading.Result, error)
	Cancel(ctx context.Context, userID, orderID string) (trading.Order, error)
	Order(userID, orderID string) (trading.Order, error)
	Orders(userID string) []trading.Order
	OrderBook(ctx context.Context, instrumentID string) (trading.BookSnapshot, error)
	RecentTrades(instrumentID string, n int) ([]trading.Trade, error)
	Portfolio(ctx context.Context, userID string) (portfolio.Portfolio, error)
}

// Events is the event injector.
type Events interface {
	TriggerEvent(ctx context.Context, req events.Request) (events.Event, error)
	Recent(n int) []events.Event
}

// Bots reports the liquidity bots' activity.
type Bots interface {
	Recent(n int) []broker.Entry
	Stats() []broker.BotStats
}

// Config configures the Server.
type Config struct {
	// AdminToken, when set, is required as a bearer token on admin routes.
	AdminToken string
	// MetricsPath serves Metrics when both are set.
	MetricsPath string
	Metrics     http.Handler
	// RequestTimeout bounds each request's context.
	RequestTimeout time.Duration
	// Bots, when set, is served on the admin routes.
	Bots Bots
}

// Server routes requests to the services.
type Server struct {
	cfg     Config
	market  Market
	trading Trading
	events  Events
	hub     *Hub
	logger  *slog.Logger
	engine  *gin.Engine

	upgrader websocket.Upgrader
}

// NewServer builds the gin engine and its routes.
func NewServer(cfg Config, m Market, t Trading, ev Events, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	s := &Server{
		cfg:     cfg,
		market:  m,
		trading: t,
		events:  ev,
		hub:     hub,
		logger:  logger.With("component", "api"),
		engine:  gin.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.engine.Use(gin.Recovery(), s.requestLogger(), s.timeout())
	s.setupRoutes()
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.getHealth)
	if s.cfg.Metrics != nil && s.cfg.MetricsPath != "" {
		s.engine.GET(s.cfg.MetricsPath, gin.WrapH(s.cfg.Metrics))
	}

	v1 := s.engine.Group("/api/v1")
	v1.GET("/market", s.getMarket)
	v1.GET("/instruments/:id", s.getInstrument)
	v1.GET("/instruments/:id/orderbook", s.getOrderBook)
	v1.GET("/instruments/:id/trades", s.getTrades)
	v1.GET("/events", s.getEvents)

	user := v1.Group("", s.requireUser())
	user.POST("/orders", s.postOrder)
	user.GET("/orders", s.getOrders)
	user.GET("/orders/:id", s.getOrder)
	user.DELETE("/orders/:id", s.deleteOrder)
	user.GET("/portfolio", s.getPortfolio)

	admin := v1.Group("/admin", s.requireAdmin())
	admin.POST("/events", s.postEvent)
	if s.cfg.Bots != nil {
		admin.GET("/bots", s.getBots)
	}

	if s.hub != nil {
		s.engine.GET("/ws/market", s.handleWebSocket)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) timeout() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Header.Get("Upgrade") != "" {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (s *Server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := strings.TrimSpace(c.GetHeader(UserHeader))
		if user == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "missing " + UserHeader + " header"})
			return
		}
		c.Set("user", user)
		c.Next()
	}
}

func (s *Server) requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminToken == "" {
			c.Next()
			return
		}
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "admin token required"})
			return
		}
		c.Next()
	}
}

func userOf(c *gin.Context) string { return c.GetString("user") }

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "err", err)
		return
	}
	cl := &client{
		hub:    s.hub,
		conn:   conn,
		send:   make(chan []byte, 16),
		remote: c.ClientIP(),
	}
	if !s.hub.add(cl) {
		conn.Close()
		return
	}
	go cl.writePump()
	go cl.readPump()
}
