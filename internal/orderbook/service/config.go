package service

// Config holds configuration for the orderbook service.
type Config struct {
	// CommandBuffer is the size of the inbound command channel.
	CommandBuffer int `yaml:"command_buffer"`
	// EventBuffer is the size of the internal authoritative event channel.
	EventBuffer int `yaml:"event_buffer"`
	// TradeTapeSize is the capacity of the trade tape ring buffer.
	TradeTapeSize int `yaml:"trade_tape_size"`
	// DropExternalEvents determines whether external event channel drops on overflow.
	DropExternalEvents bool `yaml:"drop_external_events"`
	// ExternalEventBuffer is the size of the external events channel.
	ExternalEventBuffer int `yaml:"external_event_buffer"`
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		CommandBuffer:       256,
		EventBuffer:         1024,
		TradeTapeSize:       500,
		DropExternalEvents:  true,
		ExternalEventBuffer: 256,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CommandBuffer <= 0 {
		c.CommandBuffer = d.CommandBuffer
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	if c.TradeTapeSize <= 0 {
		c.TradeTapeSize = d.TradeTapeSize
	}
	if c.ExternalEventBuffer <= 0 {
		c.ExternalEventBuffer = d.ExternalEventBuffer
	}
	return c
}
