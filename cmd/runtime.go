package cmd

import (
	"fmt"

	"sync-bridge/core/config"
	"sync-bridge/core/database"
	"sync-bridge/core/engine"
	"sync-bridge/core/logger"
	"sync-bridge/core/state"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// runtime bundles the wired collaborators every command needs. Lifecycle is
// owned here, by the process entry point, not by import-time side effects.
type runtime struct {
	cfg        *config.Config
	logger     *zap.Logger
	db         *gorm.DB
	mappings   *state.MappingStore
	cursors    *state.CursorStore
	runs       *state.RunLogStore
	registry   *engine.Registry
	reconciler *engine.Reconciler
}

// newRuntime loads configuration, connects the database, migrates the state
// schema and builds the engine with its registered integrations.
func newRuntime() (*runtime, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	l, err := logger.New(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := database.Migrate(db, state.Models()...); err != nil {
		return nil, err
	}

	mappings := state.NewMappingStore(db)
	cursors := state.NewCursorStore(db)
	runs := state.NewRunLogStore(db)

	retry := engine.NewRetryPolicy(cfg.Engine.MaxRetries, cfg.Engine.BackoffBase)
	reconciler := engine.NewReconciler(mappings, cursors, runs, retry, l)

	registry := engine.NewRegistry()
	for _, build := range integrationBuilders {
		integ, err := build(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to build integration: %w", err)
		}
		if integ.CallsPerSecond == 0 {
			integ.CallsPerSecond = cfg.Engine.CallsPerSecond
		}
		if integ.Lookback == 0 {
			integ.Lookback = cfg.Engine.Lookback()
		}
		if integ.Lookahead == 0 {
			integ.Lookahead = cfg.Engine.Lookahead()
		}
		if err := registry.Register(integ); err != nil {
			return nil, err
		}
	}

	return &runtime{
		cfg:        cfg,
		logger:     l,
		db:         db,
		mappings:   mappings,
		cursors:    cursors,
		runs:       runs,
		registry:   registry,
		reconciler: reconciler,
	}, nil
}
