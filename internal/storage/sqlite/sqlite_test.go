package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/radiativepower/internal/assessment"
	"github.com/chrissnell/radiativepower/pkg/sky"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSeries() *assessment.Series {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	return &assessment.Series{
		RunID:    uuid.New(),
		Name:     "swinbank",
		Formula:  sky.FormulaSwinbank,
		Bandgap:  0.17,
		Location: sky.Location{Latitude: 53.5, Longitude: -6.25},
		Start:    start,
		End:      start.Add(23 * time.Hour),
		Rows: []assessment.Row{
			{Time: start, Power: 40.8, OptimalVoltage: -0.0352, SkyTemperature: 269.8, SurfaceTemperature: 443},
			{Time: start.Add(time.Hour), Power: 40.8, OptimalVoltage: -0.0352, SkyTemperature: 269.8, SurfaceTemperature: 443},
		},
		TotalKWh: 0.0816,
		ByHour:   []assessment.HourMean{{Hour: 0, MeanPower: 40.8, Samples: 1}, {Hour: 1, MeanPower: 40.8, Samples: 1}},
		ByMonth:  []assessment.MonthMean{{Month: time.January, MeanPower: 40.8, Samples: 2}},
	}
}

func count(t *testing.T, s *Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestSaveSeries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.db")
	store, err := New(path, nil)
	require.NoError(t, err)

	ctx := context.Background()
	s := sampleSeries()
	require.NoError(t, store.SaveSeries(ctx, s))

	assert.Equal(t, 1, count(t, store, "series"))
	assert.Equal(t, 2, count(t, store, "power_readings"))
	assert.Equal(t, 2, count(t, store, "hour_means"))
	assert.Equal(t, 1, count(t, store, "month_means"))

	var total float64
	var formula, runID string
	require.NoError(t, store.DB().QueryRow("SELECT total_kwh_per_square_m, formula, run_id FROM series").Scan(&total, &formula, &runID))
	assert.Equal(t, 0.0816, total)
	assert.Equal(t, "swinbank", formula)
	assert.Equal(t, s.RunID.String(), runID)

	// Re-running the same coordinate replaces its rows
	s.RunID = uuid.New()
	s.Rows = s.Rows[:1]
	require.NoError(t, store.SaveSeries(ctx, s))
	assert.Equal(t, 1, count(t, store, "series"))
	assert.Equal(t, 1, count(t, store, "power_readings"))

	// A different coordinate is kept alongside
	other := sampleSeries()
	other.Location = sky.Location{Latitude: 52, Longitude: -8.5}
	require.NoError(t, store.SaveSeries(ctx, other))
	assert.Equal(t, 2, count(t, store, "series"))

	assert.NoError(t, store.CheckHealth(ctx))
	require.NoError(t, store.Close())

	// Reopening keeps data and does not re-run migrations
	store, err = New(path, nil)
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, 2, count(t, store, "series"))
}
