// Package config loads the YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	brokerservice "github.com/zappabad/cloutmarket/internal/broker/service"
	eventsservice "github.com/zappabad/cloutmarket/internal/events/service"
	"github.com/zappabad/cloutmarket/internal/instrument"
	"github.com/zappabad/cloutmarket/internal/logging"
	marketservice "github.com/zappabad/cloutmarket/internal/market/service"
	"github.com/zappabad/cloutmarket/internal/pricing"
	"github.com/zappabad/cloutmarket/internal/publish"
	"github.com/zappabad/cloutmarket/internal/signal"
	"github.com/zappabad/cloutmarket/internal/store"
	"github.com/zappabad/cloutmarket/internal/trader/runner"
	"github.com/zappabad/cloutmarket/internal/trader/strategy"
	"github.com/zappabad/cloutmarket/internal/trading"
)

// Config is the whole file.
type Config struct {
	Server      ServerConfig            `yaml:"server"`
	Logging     logging.Config          `yaml:"logging"`
	Signal      SignalConfig            `yaml:"signal"`
	Pricing     PricingConfig           `yaml:"pricing"`
	Refresh     marketservice.Config    `yaml:"refresh"`
	Trading     TradingConfig           `yaml:"trading"`
	Events      eventsservice.Config    `yaml:"events"`
	Bots        BotsConfig              `yaml:"bots"`
	Redis       store.RedisConfig       `yaml:"redis"`
	Kafka       publish.Config          `yaml:"kafka"`
	Metrics     MetricsConfig           `yaml:"metrics"`
	Instruments []instrument.Definition `yaml:"instruments"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	// AdminToken, when set, must be sent as a bearer token to admin routes.
	AdminToken string `yaml:"admin_token"`
}

// SignalConfig selects the signal source. An empty URL uses the simulated
// source.
type SignalConfig struct {
	URL            string                 `yaml:"url"`
	APIKey         string                 `yaml:"api_key"`
	MaxRetries     int                    `yaml:"max_retries"`
	RetryBackoff   time.Duration          `yaml:"retry_backoff"`
	Concurrency    int                    `yaml:"concurrency"`
	RequestTimeout time.Duration          `yaml:"request_timeout"`
	Simulated      signal.SimulatedConfig `yaml:"simulated"`
}

// PricingConfig holds the model weights and the time profile.
type PricingConfig struct {
	pricing.Config `yaml:",inline"`
	// Location is an IANA zone name for the peak window and time multipliers.
	Location string `yaml:"location"`
	// HolidayCalendar is a market calendar MIC; empty disables holidays.
	HolidayCalendar string `yaml:"holiday_calendar"`
}

// TradingConfig holds the engine settings and account defaults.
type TradingConfig struct {
	trading.Config `yaml:",inline"`
	StartingCash   float64 `yaml:"starting_cash"`
}

// BotsConfig configures the liquidity bots.
type BotsConfig struct {
	Enabled bool                 `yaml:"enabled"`
	Count   int                  `yaml:"count"`
	Runner  runner.Config        `yaml:"runner"`
	Maker   strategy.MakerConfig `yaml:"maker"`
	Journal brokerservice.Config `yaml:"journal"`
	// EndowCash and EndowShares seed each bot at start; shares are given in
	// every instrument at the first published price.
	EndowCash   float64 `yaml:"endow_cash"`
	EndowShares int64   `yaml:"endow_shares"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Logging: logging.DefaultConfig(),
		Signal: SignalConfig{
			MaxRetries:     3,
			RetryBackoff:   500 * time.Millisecond,
			Concurrency:    8,
			RequestTimeout: 5 * time.Second,
			Simulated:      signal.DefaultSimulatedConfig(),
		},
		Pricing: PricingConfig{
			Config:          pricing.DefaultConfig(),
			Location:        "Local",
			HolidayCalendar: "xnys",
		},
		Refresh: marketservice.DefaultConfig(),
		Trading: TradingConfig{Config: trading.DefaultConfig(), StartingCash: 10000},
		Events:  eventsservice.DefaultConfig(),
		Bots: BotsConfig{
			Enabled:     true,
			Count:       2,
			Runner:      runner.DefaultConfig(),
			Maker:       strategy.DefaultMakerConfig(),
			Journal:     brokerservice.DefaultConfig(),
			EndowCash:   1_000_000,
			EndowShares: 1000,
		},
		Redis:   store.DefaultRedisConfig(),
		Kafka:   publish.DefaultConfig(),
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads path, expands environment variables, fills defaults and
// validates. An empty path returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Registry builds the instrument registry from the file, or the built-in
// catalog when none are listed.
func (c *Config) Registry() (*instrument.Registry, error) {
	if len(c.Instruments) == 0 {
		return instrument.NewRegistry(instrument.DefaultCatalog())
	}
	return instrument.NewRegistry(c.Instruments)
}

// Location resolves Pricing.Location.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Pricing.Location)
}
