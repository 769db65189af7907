// Package storage persists assessment series to the configured backends.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/chrissnell/radiativepower/internal/assessment"
	"github.com/chrissnell/radiativepower/internal/storage/csvdir"
	"github.com/chrissnell/radiativepower/internal/storage/sqlite"
	"github.com/chrissnell/radiativepower/internal/storage/timescaledb"
	"github.com/chrissnell/radiativepower/pkg/config"
	"go.uber.org/zap"
)

// ResultStore is a backend that persists assessment series
type ResultStore interface {
	SaveSeries(ctx context.Context, s *assessment.Series) error
	Close() error
}

// Engine is a named, configured ResultStore
type Engine struct {
	Name  string
	Store ResultStore
}

// Multi fans every series out to all of its engines
type Multi struct {
	Engines []Engine
}

var _ assessment.Sink = (*Multi)(nil)

// New creates a Multi populated with every storage backend present in cfg
func New(ctx context.Context, cfg config.StorageData, logger *zap.SugaredLogger) (*Multi, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	m := &Multi{}

	if cfg.CSV != nil && cfg.CSV.Directory != "" {
		if err := m.AddEngine(ctx, "csv", cfg, logger); err != nil {
			return m, fmt.Errorf("could not add CSV storage backend: %w", err)
		}
	}

	if cfg.SQLite != nil && cfg.SQLite.Path != "" {
		if err := m.AddEngine(ctx, "sqlite", cfg, logger); err != nil {
			return m, fmt.Errorf("could not add SQLite storage backend: %w", err)
		}
	}

	if cfg.TimescaleDB != nil && cfg.TimescaleDB.ConnectionString != "" {
		if err := m.AddEngine(ctx, "timescaledb", cfg, logger); err != nil {
			return m, fmt.Errorf("could not add TimescaleDB storage backend: %w", err)
		}
	}

	if len(m.Engines) == 0 {
		logger.Warn("no storage backends configured; assessment results will only be logged")
	}
	return m, nil
}

// AddEngine opens the backend called engineName and adds it to m
func (m *Multi) AddEngine(ctx context.Context, engineName string, cfg config.StorageData, logger *zap.SugaredLogger) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	var (
		store ResultStore
		err   error
	)

	switch engineName {
	case "csv":
		store, err = csvdir.New(cfg.CSV.Directory, logger.Named("csv"))
	case "sqlite":
		store, err = sqlite.New(cfg.SQLite.Path, logger.Named("sqlite"))
	case "timescaledb":
		store, err = timescaledb.New(ctx, cfg.TimescaleDB.ConnectionString, logger.Named("timescaledb"))
	default:
		return fmt.Errorf("unknown storage engine %q", engineName)
	}
	if err != nil {
		return err
	}

	m.Add(engineName, store)
	return nil
}

// Add appends an already opened store
func (m *Multi) Add(name string, store ResultStore) {
	m.Engines = append(m.Engines, Engine{Name: name, Store: store})
}

// SaveSeries writes s to every engine, stopping at the first failure
func (m *Multi) SaveSeries(ctx context.Context, s *assessment.Series) error {
	for _, e := range m.Engines {
		if err := e.Store.SaveSeries(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", e.Name, err)
		}
	}
	return nil
}

// Close closes every engine
func (m *Multi) Close() error {
	var errs []error
	for _, e := range m.Engines {
		if err := e.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", e.Name, err))
		}
	}
	return errors.Join(errs...)
}
