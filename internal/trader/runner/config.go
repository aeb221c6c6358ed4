package runner

import "time"

// Config holds configuration for the bot runner.
type Config struct {
	// TickInterval is the interval between strategy ticks.
	TickInterval time.Duration `yaml:"tick_interval"`
	// EventBuffer is the size of the bot events channel.
	EventBuffer int `yaml:"event_buffer"`
	// DropEvents determines whether the events channel drops on overflow.
	DropEvents bool `yaml:"drop_events"`
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval: 5 * time.Second,
		EventBuffer:  256,
		DropEvents:   true,
	}
}
