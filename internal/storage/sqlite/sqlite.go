// Package sqlite stores assessment series in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/chrissnell/radiativepower/internal/assessment"
	"github.com/chrissnell/radiativepower/pkg/migrate"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store writes series to SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// New opens (creating if needed) the database at path and applies pending
// schema migrations.
func New(path string, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to results database: %w", err)
	}

	m := migrate.NewMigrator(db, migrations, "migrations").WithLogger(logger)
	if err := m.MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate results database: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// DB exposes the underlying handle for queries over stored results.
func (s *Store) DB() *sql.DB { return s.db }

// SaveSeries stores a series, replacing an earlier one with the same name,
// location and period.
func (s *Store) SaveSeries(ctx context.Context, series *assessment.Series) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	start := series.Start.UTC().Format(time.RFC3339)
	end := series.End.UTC().Format(time.RFC3339)

	if err := deleteExisting(ctx, tx, series.Name, series.Location.Latitude, series.Location.Longitude, start, end); err != nil {
		return err
	}

	id := uuid.New().String()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO series (id, run_id, name, formula, bandgap_ev, latitude, longitude,
			period_start, period_end, total_kwh_per_square_m, skipped_hours)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, series.RunID.String(), series.Name, series.Formula.String(), float64(series.Bandgap),
		series.Location.Latitude, series.Location.Longitude, start, end, series.TotalKWh, series.Skipped)
	if err != nil {
		return fmt.Errorf("failed to insert series: %w", err)
	}

	readings, err := tx.PrepareContext(ctx, `
		INSERT INTO power_readings (series_id, time, power_watts_per_sqm, optimal_voltage, t_sky, t_surf, at_boundary)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare reading insert: %w", err)
	}
	defer readings.Close()

	for _, r := range series.Rows {
		_, err := readings.ExecContext(ctx, id, r.Time.UTC().Format(time.RFC3339),
			float64(r.Power), float64(r.OptimalVoltage), float64(r.SkyTemperature), float64(r.SurfaceTemperature), r.AtBoundary)
		if err != nil {
			return fmt.Errorf("failed to insert reading for %s: %w", r.Time.Format(time.RFC3339), err)
		}
	}

	for _, h := range series.ByHour {
		if _, err := tx.ExecContext(ctx, `INSERT INTO hour_means (series_id, hour, mean_power, samples) VALUES (?, ?, ?, ?)`,
			id, h.Hour, h.MeanPower, h.Samples); err != nil {
			return fmt.Errorf("failed to insert hour mean: %w", err)
		}
	}
	for _, m := range series.ByMonth {
		if _, err := tx.ExecContext(ctx, `INSERT INTO month_means (series_id, month, mean_power, samples) VALUES (?, ?, ?, ?)`,
			id, int(m.Month), m.MeanPower, m.Samples); err != nil {
			return fmt.Errorf("failed to insert month mean: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit series: %w", err)
	}
	s.logger.Debugw("stored series", "id", id, "location", series.Location.String(), "rows", len(series.Rows))
	return nil
}

func deleteExisting(ctx context.Context, tx *sql.Tx, name string, lat, lon float64, start, end string) error {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM series WHERE name = ? AND latitude = ? AND longitude = ? AND period_start = ? AND period_end = ?`,
		name, lat, lon, start, end)
	if err != nil {
		return fmt.Errorf("failed to look up existing series: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		for _, table := range []string{"power_readings", "hour_means", "month_means"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE series_id = ?", id); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM series WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to clear series: %w", err)
		}
	}
	return nil
}

// CheckHealth pings the database.
func (s *Store) CheckHealth(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
