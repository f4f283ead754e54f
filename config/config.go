package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/pawnfi/lending-go/internal/domain"
)

// Config wires the pricing engine and collateral ledger at startup.
type Config struct {
	WalDir              string
	Admin               common.Address
	Native              common.Address
	WrappedNativeSymbol string
	PoolFee             uint32
	TwapInterval        time.Duration
	Blend               domain.FeedWeights
}

type configTmp struct {
	WalDir              string `yaml:"wal_dir"`
	Admin               string `yaml:"admin"`
	Native              string `yaml:"native_asset"`
	WrappedNativeSymbol string `yaml:"wrapped_native_symbol"`
	PoolFee             uint32 `yaml:"pool_fee"`
	TwapInterval        string `yaml:"twap_interval"`
	BlendLatest         string `yaml:"blend_latest_weight"`
	BlendPrevious       string `yaml:"blend_previous_weight"`
}

// Default returns a runnable baseline: push-only blend, one-minute TWAP
// sampling.
func Default() Config {
	return Config{
		WalDir:       "./wal",
		TwapInterval: time.Minute,
		PoolFee:      3000,
		Blend: domain.FeedWeights{
			Latest:   decimal.RequireFromString("0.6"),
			Previous: decimal.RequireFromString("0.4"),
		},
	}
}

// Load reads and validates a YAML config file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var tmp configTmp
	if err := yaml.Unmarshal(data, &tmp); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg := Default()
	if tmp.WalDir != "" {
		cfg.WalDir = tmp.WalDir
	}
	if tmp.Admin != "" {
		cfg.Admin = common.HexToAddress(tmp.Admin)
	}
	if tmp.Native != "" {
		cfg.Native = common.HexToAddress(tmp.Native)
	}
	if tmp.WrappedNativeSymbol != "" {
		cfg.WrappedNativeSymbol = tmp.WrappedNativeSymbol
	}
	if tmp.PoolFee != 0 {
		cfg.PoolFee = tmp.PoolFee
	}
	if tmp.TwapInterval != "" {
		interval, err := time.ParseDuration(tmp.TwapInterval)
		if err != nil {
			return Config{}, fmt.Errorf("twap_interval: %w", err)
		}
		if interval < time.Second {
			return Config{}, fmt.Errorf("twap_interval must be at least one second, got %s", interval)
		}
		cfg.TwapInterval = interval
	}

	if tmp.BlendLatest != "" || tmp.BlendPrevious != "" {
		latest, err := decimal.NewFromString(tmp.BlendLatest)
		if err != nil {
			return Config{}, fmt.Errorf("blend_latest_weight: %w", err)
		}
		previous, err := decimal.NewFromString(tmp.BlendPrevious)
		if err != nil {
			return Config{}, fmt.Errorf("blend_previous_weight: %w", err)
		}
		cfg.Blend = domain.FeedWeights{Latest: latest, Previous: previous}
	}

	if err := cfg.Blend.Validate(); err != nil {
		return Config{}, fmt.Errorf("blend weights: %w", err)
	}
	return cfg, nil
}
