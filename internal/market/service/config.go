package service

import (
	"time"
)

// Config holds configuration for the aggregator.
type Config struct {
	// PeakStartHour and PeakEndHour bound the local-time window, [start, end),
	// refreshed at PeakInterval. The window may wrap past midnight.
	PeakStartHour   int           `yaml:"peak_start_hour"`
	PeakEndHour     int           `yaml:"peak_end_hour"`
	PeakInterval    time.Duration `yaml:"peak_interval"`
	OffPeakInterval time.Duration `yaml:"off_peak_interval"`
	// FetchTimeout bounds the whole signal batch of one cycle.
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	// MaxChangePercent is the circuit-breaker band per cycle.
	MaxChangePercent float64 `yaml:"max_change_percent"`
	// CorrelationFactor is the share of the sector mean added to each member.
	CorrelationFactor float64 `yaml:"correlation_factor"`
	// PressureDecay multiplies trading pressure after each cycle; 0 resets.
	PressureDecay      float64 `yaml:"pressure_decay"`
	SentimentThreshold float64 `yaml:"sentiment_threshold"`
	// HookTimeout bounds the after-cycle hooks and the memory checkpoint.
	HookTimeout time.Duration `yaml:"hook_timeout"`
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		PeakStartHour:      17,
		PeakEndHour:        23,
		PeakInterval:       30 * time.Second,
		OffPeakInterval:    2 * time.Minute,
		FetchTimeout:       10 * time.Second,
		MaxChangePercent:   10,
		CorrelationFactor:  0.1,
		PressureDecay:      0.5,
		SentimentThreshold: 0.5,
		HookTimeout:        10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PeakInterval <= 0 {
		c.PeakInterval = d.PeakInterval
	}
	if c.OffPeakInterval <= 0 {
		c.OffPeakInterval = d.OffPeakInterval
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = d.FetchTimeout
	}
	if c.MaxChangePercent <= 0 {
		c.MaxChangePercent = d.MaxChangePercent
	}
	if c.PressureDecay < 0 {
		c.PressureDecay = 0
	}
	if c.SentimentThreshold <= 0 {
		c.SentimentThreshold = d.SentimentThreshold
	}
	if c.HookTimeout <= 0 {
		c.HookTimeout = d.HookTimeout
	}
	return c
}
