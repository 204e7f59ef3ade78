package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/BurntSushi/toml"

	"lendpool/pool"
)

// Config captures the runtime configuration for lendpoold.
type Config struct {
	ListenAddress   string          `toml:"ListenAddress"`
	Environment     string          `toml:"Environment"`
	AuthToken       string          `toml:"AuthToken"`
	RateLimitPerSec int             `toml:"RateLimitPerSec"`
	Telemetry       TelemetryConfig `toml:"telemetry"`
	Reserves        []ReserveConfig `toml:"reserve"`
}

// TelemetryConfig holds the OpenTelemetry exporter settings. Telemetry stays
// off unless an endpoint is configured.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// ReserveConfig declares one reserve. Rates are RAY-per-second integers
// rendered as decimal strings so the file round-trips without precision loss.
type ReserveConfig struct {
	Asset      string `toml:"Asset"`
	Decimals   uint8  `toml:"Decimals"`
	Borrowable bool   `toml:"Borrowable"`

	LTVBps           uint64 `toml:"LTVBps"`
	LiqThresholdBps  uint64 `toml:"LiqThresholdBps"`
	LiqBonusBps      uint64 `toml:"LiqBonusBps"`
	CloseFactorBps   uint64 `toml:"CloseFactorBps"`
	ReserveFactorBps uint64 `toml:"ReserveFactorBps"`

	OptimalUtilizationBps uint64 `toml:"OptimalUtilizationBps"`
	BaseRateRay           string `toml:"BaseRateRay"`
	Slope1Ray             string `toml:"Slope1Ray"`
	Slope2Ray             string `toml:"Slope2Ray"`

	BorrowCapWad string `toml:"BorrowCapWad,omitempty"`
}

// Load reads and validates the configuration file at path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8585"
	}
	if c.RateLimitPerSec <= 0 {
		c.RateLimitPerSec = 50
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "dev"
	}
}

// Validate checks structural soundness of the configuration.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Reserves))
	for i := range c.Reserves {
		rc := &c.Reserves[i]
		asset := strings.ToUpper(strings.TrimSpace(rc.Asset))
		if asset == "" {
			return fmt.Errorf("reserve %d: asset identifier required", i)
		}
		rc.Asset = asset
		if _, ok := seen[asset]; ok {
			return fmt.Errorf("reserve %s: duplicate declaration", asset)
		}
		seen[asset] = struct{}{}
		if rc.Decimals > 18 {
			return fmt.Errorf("reserve %s: decimals above 18 not supported", asset)
		}
		for name, bps := range map[string]uint64{
			"LTVBps":                rc.LTVBps,
			"LiqThresholdBps":       rc.LiqThresholdBps,
			"LiqBonusBps":           rc.LiqBonusBps,
			"CloseFactorBps":        rc.CloseFactorBps,
			"ReserveFactorBps":      rc.ReserveFactorBps,
			"OptimalUtilizationBps": rc.OptimalUtilizationBps,
		} {
			if bps > 10_000 {
				return fmt.Errorf("reserve %s: %s exceeds 10000", asset, name)
			}
		}
		if rc.LTVBps > rc.LiqThresholdBps {
			return fmt.Errorf("reserve %s: LTVBps above LiqThresholdBps", asset)
		}
		if _, err := rc.PoolConfig(); err != nil {
			return err
		}
	}
	return nil
}

// PoolConfig converts the declaration into the engine's reserve config.
func (rc ReserveConfig) PoolConfig() (pool.ReserveConfig, error) {
	base, err := parseRate(rc.Asset, "BaseRateRay", rc.BaseRateRay)
	if err != nil {
		return pool.ReserveConfig{}, err
	}
	slope1, err := parseRate(rc.Asset, "Slope1Ray", rc.Slope1Ray)
	if err != nil {
		return pool.ReserveConfig{}, err
	}
	slope2, err := parseRate(rc.Asset, "Slope2Ray", rc.Slope2Ray)
	if err != nil {
		return pool.ReserveConfig{}, err
	}
	cfg := pool.ReserveConfig{
		Asset:      rc.Asset,
		Decimals:   rc.Decimals,
		Borrowable: rc.Borrowable,
		Risk: pool.RiskParams{
			LTVBps:           rc.LTVBps,
			LiqThresholdBps:  rc.LiqThresholdBps,
			LiqBonusBps:      rc.LiqBonusBps,
			CloseFactorBps:   rc.CloseFactorBps,
			ReserveFactorBps: rc.ReserveFactorBps,
		},
		Curve: pool.CurveParams{
			OptimalUtilizationBps: rc.OptimalUtilizationBps,
			BaseRateRay:           base,
			Slope1Ray:             slope1,
			Slope2Ray:             slope2,
		},
	}
	if trimmed := strings.TrimSpace(rc.BorrowCapWad); trimmed != "" {
		capWad, ok := new(big.Int).SetString(trimmed, 10)
		if !ok || capWad.Sign() < 0 {
			return pool.ReserveConfig{}, fmt.Errorf("reserve %s: invalid BorrowCapWad %q", rc.Asset, rc.BorrowCapWad)
		}
		cfg.BorrowCapWad = capWad
	}
	return cfg, nil
}

func parseRate(asset, field, value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	rate, ok := new(big.Int).SetString(trimmed, 10)
	if !ok || rate.Sign() < 0 {
		return nil, fmt.Errorf("reserve %s: invalid %s %q", asset, field, value)
	}
	return rate, nil
}
