package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zappabad/cloutmarket/internal/instrument"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Refresh.PeakInterval != 30*time.Second {
		t.Errorf("Refresh.PeakInterval = %v, want 30s", cfg.Refresh.PeakInterval)
	}
	if cfg.Pricing.SignalWeight != 0.7 {
		t.Errorf("Pricing.SignalWeight = %v, want 0.7", cfg.Pricing.SignalWeight)
	}
	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	if reg.Len() != 12 {
		t.Errorf("registry len = %d, want 12", reg.Len())
	}
}

func TestLoad(t *testing.T) {
	yaml := `
server:
  addr: ":9000"
refresh:
  peak_start_hour: 18
  peak_interval: 15s
  max_change_percent: 5
pricing:
  signal_weight: 0.6
  trading_weight: 0.4
  location: UTC
trading:
  starting_cash: 2500
  max_slippage: 0.01
kafka:
  brokers: ["localhost:9092"]
instruments:
  - id: golang
    symbol: GO
    signal_key: golang
    category: technology
    volatility: 1.2
    category_multiplier: 2
`
	cfg, err := Load(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Errorf("Server.Addr = %q, want :9000", cfg.Server.Addr)
	}
	if cfg.Refresh.PeakStartHour != 18 || cfg.Refresh.PeakEndHour != 23 {
		t.Errorf("peak window = %d-%d, want 18-23", cfg.Refresh.PeakStartHour, cfg.Refresh.PeakEndHour)
	}
	if cfg.Refresh.PeakInterval != 15*time.Second {
		t.Errorf("PeakInterval = %v, want 15s", cfg.Refresh.PeakInterval)
	}
	if cfg.Refresh.OffPeakInterval != 2*time.Minute {
		t.Errorf("OffPeakInterval = %v, want 2m default", cfg.Refresh.OffPeakInterval)
	}
	if cfg.Pricing.TradingWeight != 0.4 {
		t.Errorf("TradingWeight = %v, want 0.4", cfg.Pricing.TradingWeight)
	}
	if cfg.Pricing.LiquidityDivisor != 100_000 {
		t.Errorf("LiquidityDivisor = %v, want default", cfg.Pricing.LiquidityDivisor)
	}
	if cfg.Trading.StartingCash != 2500 || cfg.Trading.MaxSlippage != 0.01 {
		t.Errorf("trading = %+v", cfg.Trading)
	}
	if cfg.Kafka.Topic != "cloutmarket.prices" {
		t.Errorf("Kafka.Topic = %q, want default", cfg.Kafka.Topic)
	}

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry: %v", err)
	}
	def, ok := reg.Get("golang")
	if !ok || def.Category != instrument.CategoryTechnology || def.Name != "GO" {
		t.Errorf("golang = %+v", def)
	}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("Location = %v, %v", loc, err)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_REDIS_ADDR", "redis:6379")
	t.Setenv("TEST_SIGNAL_KEY", "secret123")

	yaml := `
redis:
  addr: ${TEST_REDIS_ADDR}
signal:
  url: https://metrics.example.com
  api_key: ${TEST_SIGNAL_KEY}
`
	cfg, err := Load(writeTempFile(t, yaml))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Redis.Addr != "redis:6379" {
		t.Errorf("Redis.Addr = %q", cfg.Redis.Addr)
	}
	if cfg.Signal.APIKey != "secret123" {
		t.Errorf("Signal.APIKey = %q", cfg.Signal.APIKey)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad hour", "refresh:\n  peak_end_hour: 24\n", "peak_end_hour"},
		{"bad location", "pricing:\n  location: Mars/Olympus\n", "pricing.location"},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"bad output", "logging:\n  output: syslog\n", "logging.output"},
		{"bad slippage", "trading:\n  max_slippage: 1.5\n", "max_slippage"},
		{"bad decay", "refresh:\n  pressure_decay: 2\n", "pressure_decay"},
		{"bad failure rate", "signal:\n  simulated:\n    failure_rate: 3\n", "failure_rate"},
		{"duplicate instrument", `
instruments:
  - {id: a, symbol: A, signal_key: a, category: memes, volatility: 1, category_multiplier: 1}
  - {id: a, symbol: B, signal_key: b, category: memes, volatility: 1, category_multiplier: 1}
`, "duplicate"},
		{"unknown category", `
instruments:
  - {id: a, symbol: A, signal_key: a, category: crypto, volatility: 1, category_multiplier: 1}
`, "category"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeTempFile(t, tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error")
	}
}
