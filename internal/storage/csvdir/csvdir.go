// Package csvdir writes each assessment series to its own directory of CSV
// and JSON files:
//
//	<root>/<name>/<start>_<end>/<lat>_<lon>/data_per_dt.csv
//	                                       json_data.json
//	                                       mean_by_hour.csv
//	                                       mean_by_month.csv
package csvdir

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/chrissnell/radiativepower/internal/assessment"
	"github.com/gocarina/gocsv"
	"go.uber.org/zap"
)

// File names within a series directory.
const (
	DataFile      = "data_per_dt.csv"
	SummaryFile   = "json_data.json"
	HourMeansFile = "mean_by_hour.csv"
	MonthMeanFile = "mean_by_month.csv"
)

const periodLayout = "20060102-150405"

// DataRow is one line of data_per_dt.csv.
type DataRow struct {
	Time               string  `csv:"time"`
	Power              float64 `csv:"average_power_watts_per_sqm"`
	OptimalVoltage     float64 `csv:"optimal_voltage"`
	SkyTemperature     float64 `csv:"t_sky"`
	SurfaceTemperature float64 `csv:"t_surf"`
	AtBoundary         bool    `csv:"at_boundary"`
}

// HourMeanRow is one line of mean_by_hour.csv.
type HourMeanRow struct {
	Hour      int     `csv:"hour"`
	MeanPower float64 `csv:"average_power_watts_per_sqm"`
	Samples   int     `csv:"samples"`
}

// MonthMeanRow is one line of mean_by_month.csv.
type MonthMeanRow struct {
	Month     string  `csv:"month"`
	MeanPower float64 `csv:"average_power_watts_per_sqm"`
	Samples   int     `csv:"samples"`
}

// Summary is the content of json_data.json.
type Summary struct {
	TotalKWh     float64   `json:"total_kwh_per_square_m"`
	RunID        string    `json:"run_id"`
	Name         string    `json:"name"`
	Formula      string    `json:"formula"`
	BandgapEV    float64   `json:"bandgap_ev"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Hours        int       `json:"hours"`
	SkippedHours int       `json:"skipped_hours"`
}

// Store writes series below a root directory.
type Store struct {
	root   string
	logger *zap.SugaredLogger
}

// New creates root if needed.
func New(root string, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &Store{root: root, logger: logger}, nil
}

// SeriesDir returns the directory a series is written to.
func (s *Store) SeriesDir(series *assessment.Series) string {
	period := series.Start.Format(periodLayout) + "_" + series.End.Format(periodLayout)
	point := strconv.FormatFloat(series.Location.Latitude, 'f', -1, 64) + "_" +
		strconv.FormatFloat(series.Location.Longitude, 'f', -1, 64)
	return filepath.Join(s.root, series.Name, period, point)
}

// SaveSeries replaces the files of series' directory.
func (s *Store) SaveSeries(ctx context.Context, series *assessment.Series) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := s.SeriesDir(series)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating series directory: %w", err)
	}

	rows := make([]*DataRow, 0, len(series.Rows))
	for _, r := range series.Rows {
		rows = append(rows, &DataRow{
			Time:               r.Time.UTC().Format(time.RFC3339),
			Power:              float64(r.Power),
			OptimalVoltage:     float64(r.OptimalVoltage),
			SkyTemperature:     float64(r.SkyTemperature),
			SurfaceTemperature: float64(r.SurfaceTemperature),
			AtBoundary:         r.AtBoundary,
		})
	}
	if err := writeCSV(filepath.Join(dir, DataFile), &rows); err != nil {
		return err
	}

	hours := make([]*HourMeanRow, 0, len(series.ByHour))
	for _, h := range series.ByHour {
		hours = append(hours, &HourMeanRow{Hour: h.Hour, MeanPower: h.MeanPower, Samples: h.Samples})
	}
	if err := writeCSV(filepath.Join(dir, HourMeansFile), &hours); err != nil {
		return err
	}

	months := make([]*MonthMeanRow, 0, len(series.ByMonth))
	for _, m := range series.ByMonth {
		months = append(months, &MonthMeanRow{Month: m.Month.String(), MeanPower: m.MeanPower, Samples: m.Samples})
	}
	if err := writeCSV(filepath.Join(dir, MonthMeanFile), &months); err != nil {
		return err
	}

	summary := Summary{
		TotalKWh:     series.TotalKWh,
		RunID:        series.RunID.String(),
		Name:         series.Name,
		Formula:      series.Formula.String(),
		BandgapEV:    float64(series.Bandgap),
		Latitude:     series.Location.Latitude,
		Longitude:    series.Location.Longitude,
		Start:        series.Start,
		End:          series.End,
		Hours:        len(series.Rows),
		SkippedHours: series.Skipped,
	}
	b, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SummaryFile), b, 0o644); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	s.logger.Debugw("wrote series", "dir", dir, "rows", len(rows))
	return nil
}

// ReadSummary loads json_data.json from a series directory.
func ReadSummary(dir string) (Summary, error) {
	var summary Summary
	b, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	if err != nil {
		return summary, err
	}
	if err := json.Unmarshal(b, &summary); err != nil {
		return summary, fmt.Errorf("decoding %s: %w", SummaryFile, err)
	}
	return summary, nil
}

// CheckHealth verifies that the output directory is still writable.
func (s *Store) CheckHealth(context.Context) error {
	f, err := os.CreateTemp(s.root, ".health-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// Close is a no-op; every file is closed after writing.
func (s *Store) Close() error { return nil }

func writeCSV(path string, rows any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	if err := gocsv.MarshalFile(rows, f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}
