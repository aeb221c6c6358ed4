// Package publish writes each published price set to an outbound feed.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/zappabad/cloutmarket/internal/market"
	"github.com/zappabad/cloutmarket/internal/metrics"
)

// Publisher sends a published snapshot downstream.
type Publisher interface {
	Publish(ctx context.Context, snap *market.Snapshot) error
	Close() error
}

// NopPublisher discards everything. It is used when no brokers are
// configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, *market.Snapshot) error { return nil }
func (NopPublisher) Close() error                                    { return nil }

// Config configures a KafkaPublisher.
type Config struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
}

// DefaultConfig returns the defaults; Brokers is left empty.
func DefaultConfig() Config {
	return Config{
		Topic:        "cloutmarket.prices",
		BatchTimeout: 50 * time.Millisecond,
		MaxAttempts:  3,
	}
}

// PriceMessage is the value of one feed message.
type PriceMessage struct {
	Cycle         uint64    `json:"cycle"`
	ID            string    `json:"id"`
	Symbol        string    `json:"symbol"`
	Category      string    `json:"category"`
	Price         float64   `json:"price"`
	PreviousPrice float64   `json:"previous_price"`
	PercentChange float64   `json:"percent_change"`
	Volume        float64   `json:"volume"`
	MarketCap     float64   `json:"market_cap"`
	Sentiment     string    `json:"sentiment"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per instrument, keyed by symbol so each
// instrument's prices stay ordered within a partition.
type KafkaPublisher struct {
	writer  messageWriter
	topic   string
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewKafkaPublisher creates a publisher for cfg.Brokers.
func NewKafkaPublisher(cfg Config, m *metrics.Metrics, logger *slog.Logger) *KafkaPublisher {
	d := DefaultConfig()
	if cfg.Topic == "" {
		cfg.Topic = d.Topic
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = d.BatchTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           cfg.BatchTimeout,
		MaxAttempts:            cfg.MaxAttempts,
	}
	return newKafkaPublisher(w, cfg.Topic, m, logger)
}

func newKafkaPublisher(w messageWriter, topic string, m *metrics.Metrics, logger *slog.Logger) *KafkaPublisher {
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaPublisher{
		writer:  w,
		topic:   topic,
		metrics: m,
		logger:  logger.With("component", "publisher", "topic", topic),
	}
}

// Messages converts snap into feed messages.
func Messages(snap *market.Snapshot) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(snap.Instruments))
	for _, p := range snap.Instruments {
		value, err := json.Marshal(PriceMessage{
			Cycle:         snap.Cycle,
			ID:            p.ID,
			Symbol:        p.Symbol,
			Category:      p.Category.String(),
			Price:         p.Price,
			PreviousPrice: p.PreviousPrice,
			PercentChange: p.PercentChange,
			Volume:        p.Volume,
			MarketCap:     p.MarketCap,
			Sentiment:     string(snap.Sentiment),
			UpdatedAt:     p.UpdatedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", p.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(p.Symbol),
			Value: value,
			Time:  snap.UpdatedAt,
		})
	}
	return msgs, nil
}

// Publish writes snap as one batch.
func (p *KafkaPublisher) Publish(ctx context.Context, snap *market.Snapshot) error {
	if snap == nil || len(snap.Instruments) == 0 {
		return nil
	}
	msgs, err := Messages(snap)
	if err != nil {
		p.metrics.PublishErrors.Inc()
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		p.metrics.PublishErrors.Inc()
		p.logger.Error("publish prices failed", "cycle", snap.Cycle, "count", len(msgs), "err", err)
		return fmt.Errorf("publish cycle %d: %w", snap.Cycle, err)
	}
	p.logger.Debug("prices published", "cycle", snap.Cycle, "count", len(msgs))
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
