// Package timescaledb stores assessment series in a TimescaleDB hypertable
// through GORM.
package timescaledb

import (
	"context"
	"fmt"

	"github.com/chrissnell/radiativepower/internal/assessment"
	"github.com/chrissnell/radiativepower/internal/database"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const insertBatchSize = 500

// Storage holds the connection for a TimescaleDB storage backend
type Storage struct {
	client *database.Client
	logger *zap.SugaredLogger
}

// New sets up a new TimescaleDB storage backend and creates its schema
func New(ctx context.Context, connectionString string, logger *zap.SugaredLogger) (*Storage, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	t := &Storage{
		client: database.NewClient(connectionString, logger),
		logger: logger,
	}

	if err := t.client.Connect(); err != nil {
		return nil, err
	}

	for _, step := range schema {
		t.logger.Info(step.description + "...")
		if err := t.client.DB.WithContext(ctx).Exec(step.sql).Error; err != nil {
			t.client.Close()
			return nil, fmt.Errorf("%s: %w", step.description, err)
		}
	}

	return t, nil
}

// SaveSeries stores a series record and its hourly readings in one
// transaction
func (t *Storage) SaveSeries(ctx context.Context, s *assessment.Series) error {
	record, readings := toRecords(s)

	err := t.client.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("could not store series: %w", err)
		}
		if len(readings) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(readings, insertBatchSize).Error; err != nil {
			return fmt.Errorf("could not store readings: %w", err)
		}
		return nil
	})
	if err != nil {
		t.logger.Errorw("could not store series", "location", s.Location.String(), "error", err)
		return err
	}
	return nil
}

func toRecords(s *assessment.Series) (database.SeriesRecord, []database.PowerReading) {
	record := database.SeriesRecord{
		ID:           uuid.New(),
		RunID:        s.RunID,
		Name:         s.Name,
		Formula:      s.Formula.String(),
		BandgapEV:    float64(s.Bandgap),
		Latitude:     s.Location.Latitude,
		Longitude:    s.Location.Longitude,
		PeriodStart:  s.Start,
		PeriodEnd:    s.End,
		TotalKWh:     s.TotalKWh,
		SkippedHours: s.Skipped,
	}

	readings := make([]database.PowerReading, 0, len(s.Rows))
	for _, r := range s.Rows {
		readings = append(readings, database.PowerReading{
			Time:               r.Time,
			SeriesID:           record.ID,
			Latitude:           s.Location.Latitude,
			Longitude:          s.Location.Longitude,
			Power:              float64(r.Power),
			OptimalVoltage:     float64(r.OptimalVoltage),
			SkyTemperature:     float64(r.SkyTemperature),
			SurfaceTemperature: float64(r.SurfaceTemperature),
			AtBoundary:         r.AtBoundary,
		})
	}
	return record, readings
}

// Close closes the connection pool
func (t *Storage) Close() error {
	return t.client.Close()
}
