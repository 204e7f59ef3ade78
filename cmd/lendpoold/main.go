package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/yaml.v3"

	"lendpool/config"
	"lendpool/core/events"
	"lendpool/observability"
	"lendpool/observability/logging"
	"lendpool/observability/otel"
	"lendpool/oracle"
	"lendpool/pool"
	"lendpool/rpc"
	"lendpool/token"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the TOML configuration file")
	pricesPath := flag.String("prices", "", "optional YAML file seeding oracle prices")
	flag.Parse()

	if err := run(*configPath, *pricesPath); err != nil {
		fmt.Fprintf(os.Stderr, "lendpoold: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, pricesPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := logging.Setup("lendpoold", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Endpoint != "" {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: "lendpoold",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     cfg.Telemetry.Metrics,
			Traces:      cfg.Telemetry.Traces,
		})
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	prices := oracle.NewManual()
	if pricesPath != "" {
		if err := seedPrices(prices, pricesPath); err != nil {
			return err
		}
	}

	engine := pool.NewEngine(prices)
	engine.SetEmitter(events.MultiEmitter{
		observability.NewEventObserver(),
		events.NewLogEmitter(logger.With("component", "pool")),
	})

	for _, rc := range cfg.Reserves {
		reserveCfg, err := rc.PoolConfig()
		if err != nil {
			return fmt.Errorf("reserve %s: %w", rc.Asset, err)
		}
		if err := engine.InitReserve(reserveCfg); err != nil {
			return fmt.Errorf("init reserve %s: %w", rc.Asset, err)
		}
		engine.RegisterAsset(reserveCfg.Asset, token.NewVault(reserveCfg.Asset))
		logger.Info("reserve initialised", "asset", reserveCfg.Asset, "decimals", reserveCfg.Decimals, "borrowable", reserveCfg.Borrowable)
	}

	server := rpc.NewServer(engine, rpc.Options{
		AuthToken:       cfg.AuthToken,
		RateLimitPerSec: cfg.RateLimitPerSec,
		Logger:          logger.With("component", "rpc"),
	})
	return server.Serve(ctx, cfg.ListenAddress)
}

// seedPrices loads a YAML map of asset symbol to WAD price string.
func seedPrices(prices *oracle.Manual, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read prices %s: %w", path, err)
	}
	var seed map[string]string
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return fmt.Errorf("decode prices %s: %w", path, err)
	}
	for asset, value := range seed {
		price, ok := new(big.Int).SetString(value, 10)
		if !ok || price.Sign() <= 0 {
			return fmt.Errorf("invalid price for %s: %q", asset, value)
		}
		prices.SetPrice(asset, price)
	}
	return nil
}
