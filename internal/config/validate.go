package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zappabad/cloutmarket/internal/logging"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Output {
	case "stdout", "file", "both":
	default:
		return fmt.Errorf("logging.output must be stdout, file or both, got %q", c.Logging.Output)
	}

	if c.Signal.Concurrency < 1 {
		return errors.New("signal.concurrency must be >= 1")
	}
	if c.Signal.Simulated.FailureRate < 0 || c.Signal.Simulated.FailureRate > 1 {
		return errors.New("signal.simulated.failure_rate must be between 0 and 1")
	}

	if _, err := time.LoadLocation(c.Pricing.Location); err != nil {
		return fmt.Errorf("pricing.location: %w", err)
	}
	if c.Pricing.LiquidityDivisor <= 0 {
		return errors.New("pricing.liquidity_divisor must be > 0")
	}

	if err := validHour("refresh.peak_start_hour", c.Refresh.PeakStartHour); err != nil {
		return err
	}
	if err := validHour("refresh.peak_end_hour", c.Refresh.PeakEndHour); err != nil {
		return err
	}
	if c.Refresh.MaxChangePercent < 0 {
		return errors.New("refresh.max_change_percent must be >= 0")
	}
	if c.Refresh.CorrelationFactor < 0 || c.Refresh.CorrelationFactor > 1 {
		return errors.New("refresh.correlation_factor must be between 0 and 1")
	}
	if c.Refresh.PressureDecay < 0 || c.Refresh.PressureDecay > 1 {
		return errors.New("refresh.pressure_decay must be between 0 and 1")
	}

	if c.Trading.StartingCash < 0 {
		return errors.New("trading.starting_cash must be >= 0")
	}
	if c.Trading.MaxSlippage < 0 || c.Trading.MaxSlippage >= 1 {
		return errors.New("trading.max_slippage must be in [0, 1)")
	}

	if c.Bots.Enabled && c.Bots.Count < 1 {
		return errors.New("bots.count must be >= 1 when bots are enabled")
	}
	if c.Bots.EndowCash < 0 || c.Bots.EndowShares < 0 {
		return errors.New("bots endowment must be >= 0")
	}

	if len(c.Kafka.Brokers) > 0 && strings.TrimSpace(c.Kafka.Topic) == "" {
		return errors.New("kafka.topic is required when brokers are set")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("instruments: %w", err)
	}
	return nil
}

func validHour(field string, h int) error {
	if h < 0 || h > 23 {
		return fmt.Errorf("%s must be between 0 and 23, got %d", field, h)
	}
	return nil
}
