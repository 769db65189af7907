package climate

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/radiativepower/pkg/modelerr"
	"github.com/chrissnell/radiativepower/pkg/sky"
	"github.com/chrissnell/radiativepower/pkg/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dublinCSV = `time,latitude,longitude,skt,t2m,d2m,tcc,cbh,sp,strd
2022-01-01 00:00:00,53.5,-6.25,284.1,287.9,278.0,1,210,100470,1250000
2022-01-01 01:00:00,53.5,-6.25,283.9,287.8,278.8,1,195,100465,1255000
2022-01-01 02:00:00,53.5,-6.25,283.7,287.7,,1,,100462,1258000
2022-01-01 03:00:00,53.5,-6.25,283.5,287.65,278.4,1,180,100460,1260000
2022-01-01 03:00:00,52.0,-8.5,282.0,285.0,276.0,0.5,900,101000,1100000
`

var dublin = sky.Location{Latitude: 53.35, Longitude: -6.26}

func writeCSV(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func loadDublin(t *testing.T) *Store {
	t.Helper()
	store, err := LoadCSV(writeCSV(t, t.TempDir(), "era5.csv", dublinCSV), 0.5, nil)
	require.NoError(t, err)
	return store
}

func TestLoadCSV(t *testing.T) {
	store := loadDublin(t)
	ctx := context.Background()
	at := time.Date(2022, 1, 1, 3, 0, 0, 0, time.UTC)

	assert.Len(t, store.Points(), 2)

	skt, err := store.SkinTemperature(ctx, at, dublin)
	require.NoError(t, err)
	assert.Equal(t, units.Q(283.5, units.UnitKelvin), skt)

	sp, err := store.SurfacePressure(ctx, at, dublin)
	require.NoError(t, err)
	mbar, err := sp.Millibars()
	require.NoError(t, err)
	assert.InDelta(t, 1004.6, float64(mbar), 1e-9)

	strd, err := store.DownwardThermalRadiation(ctx, at, dublin)
	require.NoError(t, err)
	w, err := strd.WattsPerSquareMeter()
	require.NoError(t, err)
	assert.InDelta(t, 350, float64(w), 1e-9)

	// Minutes within the hour resolve to the hourly record
	tcc, err := store.TotalCloudCover(ctx, at.Add(20*time.Minute), dublin)
	require.NoError(t, err)
	assert.Equal(t, units.Q(1, units.Dimensionless), tcc)
}

func TestMissingValuesAreNaN(t *testing.T) {
	store := loadDublin(t)
	ctx := context.Background()

	cbh, err := store.CloudBaseHeight(ctx, time.Date(2022, 1, 1, 2, 0, 0, 0, time.UTC), dublin)
	require.NoError(t, err)
	assert.True(t, cbh.IsNaN())
	assert.Equal(t, units.UnitMeter, cbh.Unit)

	// An hour with no row at all
	t2m, err := store.AmbientTemperature(ctx, time.Date(2022, 1, 2, 0, 0, 0, 0, time.UTC), dublin)
	require.NoError(t, err)
	assert.True(t, t2m.IsNaN())
}

func TestMonthlyMeanDewpointIgnoresMissing(t *testing.T) {
	store := loadDublin(t)
	ctx := context.Background()

	q, err := store.MonthlyMeanDewpointTemperature(ctx, time.Date(2022, 1, 17, 12, 0, 0, 0, time.UTC), dublin)
	require.NoError(t, err)
	assert.InDelta(t, 278.4, q.Value, 1e-9)

	q, err = store.MonthlyMeanDewpointTemperature(ctx, time.Date(2022, 2, 1, 0, 0, 0, 0, time.UTC), dublin)
	require.NoError(t, err)
	assert.True(t, q.IsNaN())

	// Adding an hour invalidates the cached mean for its month
	obs := MissingObservation(time.Date(2022, 1, 5, 0, 0, 0, 0, time.UTC))
	obs.DewpointTemperature = 282.4
	store.Add(sky.Location{Latitude: 53.5, Longitude: -6.25}, obs)
	q, err = store.MonthlyMeanDewpointTemperature(ctx, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), dublin)
	require.NoError(t, err)
	assert.InDelta(t, 279.4, q.Value, 1e-9)
}

func TestNearestGridPoint(t *testing.T) {
	store := loadDublin(t)
	ctx := context.Background()
	at := time.Date(2022, 1, 1, 3, 0, 0, 0, time.UTC)

	cork := sky.Location{Latitude: 51.9, Longitude: -8.47}
	q, err := store.AmbientTemperature(ctx, at, cork)
	require.NoError(t, err)
	assert.Equal(t, 285.0, q.Value)
	assert.True(t, store.Covers(cork))

	london := sky.Location{Latitude: 51.5, Longitude: -0.12}
	assert.False(t, store.Covers(london))
	_, err = store.AmbientTemperature(ctx, at, london)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoGridPoint))
	assert.True(t, errors.Is(err, modelerr.ErrInsufficientData))
}

func TestDistanceWrapsAntimeridian(t *testing.T) {
	d := distance(sky.Location{Latitude: 0, Longitude: 179.9}, sky.Location{Latitude: 0, Longitude: -179.9})
	assert.InDelta(t, 0.2, d, 1e-9)
}

func TestLoadCSVDirectory(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "a.csv", dublinCSV)
	writeCSV(t, dir, "b.csv", "time,latitude,longitude,t2m\n2022-01-01T04:00:00Z,53.5,-6.25,287.5\n")
	writeCSV(t, dir, "notes.txt", "ignored")

	store, err := LoadCSV(dir, 0, nil)
	require.NoError(t, err)

	q, err := store.AmbientTemperature(context.Background(), time.Date(2022, 1, 1, 4, 0, 0, 0, time.UTC), dublin)
	require.NoError(t, err)
	assert.Equal(t, 287.5, q.Value)

	// Columns absent from a file load as missing
	skt, err := store.SkinTemperature(context.Background(), time.Date(2022, 1, 1, 4, 0, 0, 0, time.UTC), dublin)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(skt.Value))
}

func TestLoadCSVErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadCSV(filepath.Join(dir, "absent.csv"), 0, nil)
	assert.Error(t, err)

	_, err = LoadCSV(dir, 0, nil)
	assert.Error(t, err, "empty directory")

	bad := writeCSV(t, dir, "bad.csv", "time,latitude,longitude,t2m\nyesterday,53.5,-6.25,287.5\n")
	_, err = LoadCSV(bad, 0, nil)
	assert.Error(t, err)
}

func TestCanceledContext(t *testing.T) {
	store := loadDublin(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.AmbientTemperature(ctx, time.Date(2022, 1, 1, 3, 0, 0, 0, time.UTC), dublin)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSkyTemperatureFromCSV(t *testing.T) {
	store := loadDublin(t)

	model, err := sky.NewTemperatureModel(store, nil, nil)
	require.NoError(t, err)

	got, err := model.SkyTemperature(context.Background(), time.Date(2022, 1, 1, 3, 0, 0, 0, time.UTC), dublin, sky.FormulaMartinBerdahl)
	require.NoError(t, err)
	assert.InDelta(t, 282.7, float64(got), 0.1)
}
