package config

// applyDefaults fills fields a file set to their zero value. Service
// packages apply their own defaults too; the ones here matter for wiring.
func (c *Config) applyDefaults() {
	d := Default()

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = d.Server.ReadHeaderTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}

	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.Logging.Output == "" {
		c.Logging.Output = d.Logging.Output
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = d.Logging.FilePath
	}

	if c.Signal.Concurrency == 0 {
		c.Signal.Concurrency = d.Signal.Concurrency
	}
	if c.Signal.RequestTimeout == 0 {
		c.Signal.RequestTimeout = d.Signal.RequestTimeout
	}

	if c.Pricing.SignalWeight == 0 && c.Pricing.TradingWeight == 0 {
		c.Pricing.SignalWeight = d.Pricing.SignalWeight
		c.Pricing.TradingWeight = d.Pricing.TradingWeight
	}
	if c.Pricing.LiquidityDivisor == 0 {
		c.Pricing.LiquidityDivisor = d.Pricing.LiquidityDivisor
	}
	if c.Pricing.Location == "" {
		c.Pricing.Location = d.Pricing.Location
	}

	if c.Trading.StartingCash == 0 {
		c.Trading.StartingCash = d.Trading.StartingCash
	}

	if c.Bots.Count == 0 && c.Bots.Enabled {
		c.Bots.Count = d.Bots.Count
	}

	if c.Redis.Prefix == "" {
		c.Redis.Prefix = d.Redis.Prefix
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = d.Kafka.Topic
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = d.Metrics.Path
	}
}
