package service

// Config holds configuration for the event injector.
type Config struct {
	// LogSize is the capacity of the recent-events log.
	LogSize int `yaml:"log_size"`
	// ExternalEventBuffer is the size of the subscriber channel. Events that
	// do not fit are dropped and counted.
	ExternalEventBuffer int `yaml:"external_event_buffer"`
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		LogSize:             50,
		ExternalEventBuffer: 64,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.LogSize <= 0 {
		c.LogSize = d.LogSize
	}
	if c.ExternalEventBuffer <= 0 {
		c.ExternalEventBuffer = d.ExternalEventBuffer
	}
	return c
}
