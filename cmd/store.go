package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quadrant-labs/assess/internal/resilience"
	"github.com/quadrant-labs/assess/internal/store"
)

// openStore builds the configured backend wrapped in the resilient gateway.
func openStore(ctx context.Context) (*store.Gateway, error) {
	var (
		backend store.Store
		err     error
	)

	switch cfg.Store.Driver {
	case "postgres":
		backend, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite":
		backend, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "memory":
		zap.L().Warn("using in-memory store; nothing will survive a restart")
		backend = store.NewMemory()
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "open %s store", cfg.Store.Driver)
	}

	retryCfg := resilience.RetryFromConfig(
		cfg.Resil.MaxAttempts, cfg.Resil.BaseDelayMs, cfg.Resil.MaxDelayMs,
		cfg.Resil.Multiplier, cfg.Resil.Jitter,
	)
	circuitCfg := resilience.CircuitFromConfig(cfg.Resil.FailureThreshold, cfg.Resil.CooldownSecs)

	return store.NewGateway(backend, retryCfg, circuitCfg), nil
}
