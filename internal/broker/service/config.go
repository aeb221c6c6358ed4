package service

// Config holds configuration for the broker service.
type Config struct {
	// JournalCapacity is the maximum number of bot entries to keep.
	JournalCapacity int `yaml:"journal_capacity"`
}

// DefaultConfig returns a Config with reasonable defaults.
func DefaultConfig() Config {
	return Config{
		JournalCapacity: 200,
	}
}
