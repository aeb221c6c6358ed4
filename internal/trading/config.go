package trading

import (
	"time"

	orderbookservice "github.com/zappabad/cloutmarket/internal/orderbook/service"
)

// Config holds configuration for the trading engine.
type Config struct {
	// Book is the configuration for each order book service.
	Book orderbookservice.Config `yaml:"book"`
	// MaxSlippage caps the slippage fraction of a market order.
	MaxSlippage float64 `yaml:"max_slippage"`
	// VolumeFloor is the minimum daily volume used in the slippage formula.
	VolumeFloor float64 `yaml:"volume_floor"`
	// EventBuffer is the size of the consolidated book events channel.
	EventBuffer int `yaml:"event_buffer"`
	// DropEvents determines whether the consolidated channel drops on overflow.
	DropEvents bool `yaml:"drop_events"`
	// OrderRetention is how long terminal orders stay queryable.
	OrderRetention time.Duration `yaml:"order_retention"`
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		Book:           orderbookservice.DefaultConfig(),
		MaxSlippage:    0.02,
		VolumeFloor:    1000,
		EventBuffer:    1024,
		DropEvents:     true,
		OrderRetention: time.Hour,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxSlippage <= 0 {
		c.MaxSlippage = d.MaxSlippage
	}
	if c.VolumeFloor <= 0 {
		c.VolumeFloor = d.VolumeFloor
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	if c.OrderRetention <= 0 {
		c.OrderRetention = d.OrderRetention
	}
	return c
}
