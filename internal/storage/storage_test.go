package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/chrissnell/radiativepower/internal/assessment"
	"github.com/chrissnell/radiativepower/pkg/config"
	"github.com/chrissnell/radiativepower/pkg/sky"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	saved     int
	saveErr   error
	closeErr  error
	healthErr error
}

func (f *fakeStore) SaveSeries(context.Context, *assessment.Series) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved++
	return nil
}

func (f *fakeStore) Close() error { return f.closeErr }

func (f *fakeStore) CheckHealth(context.Context) error { return f.healthErr }

func TestMultiFansOut(t *testing.T) {
	a, b := &fakeStore{}, &fakeStore{}
	m := &Multi{}
	m.Add("a", a)
	m.Add("b", b)

	require.NoError(t, m.SaveSeries(context.Background(), &assessment.Series{}))
	assert.Equal(t, 1, a.saved)
	assert.Equal(t, 1, b.saved)

	b.saveErr = errors.New("read-only")
	err := m.SaveSeries(context.Background(), &assessment.Series{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b: read-only")

	a.closeErr = errors.New("busy")
	assert.ErrorContains(t, m.Close(), "closing a")
}

func TestNewFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := config.StorageData{
		CSV:    &config.CSVData{Directory: filepath.Join(dir, "out")},
		SQLite: &config.SQLiteData{Path: filepath.Join(dir, "results.db")},
	}

	m, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer m.Close()
	require.Len(t, m.Engines, 2)
	assert.Equal(t, "csv", m.Engines[0].Name)
	assert.Equal(t, "sqlite", m.Engines[1].Name)

	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &assessment.Series{
		Name:     "swinbank",
		Formula:  sky.FormulaSwinbank,
		Bandgap:  0.17,
		Location: sky.Location{Latitude: 1, Longitude: 2},
		Start:    start,
		End:      start.Add(23 * time.Hour),
		Rows:     []assessment.Row{{Time: start, Power: 1}},
	}
	assert.NoError(t, m.SaveSeries(context.Background(), s))

	empty, err := New(context.Background(), config.StorageData{}, nil)
	require.NoError(t, err)
	assert.Empty(t, empty.Engines)

	assert.Error(t, m.AddEngine(context.Background(), "influxdb", cfg, nil))
}

func TestHealthManager(t *testing.T) {
	hm := NewHealthManager()
	ctx := context.Background()

	health := hm.Check(ctx, "sqlite", &fakeStore{})
	assert.Equal(t, StatusHealthy, health.Status)
	assert.True(t, hm.IsHealthy("sqlite", time.Minute))

	health = hm.Check(ctx, "timescaledb", &fakeStore{healthErr: errors.New("connection refused")})
	assert.Equal(t, StatusUnhealthy, health.Status)
	assert.Equal(t, "connection refused", health.Error)
	assert.False(t, hm.IsHealthy("timescaledb", time.Minute))

	assert.False(t, hm.IsHealthy("csv", time.Minute))
	assert.Len(t, hm.GetAllHealth(), 2)
}

func TestStartHealthMonitors(t *testing.T) {
	m := &Multi{}
	m.Add("csv", &fakeStore{})
	hm := NewHealthManager()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartHealthMonitors(ctx, hm, time.Hour, nil)

	assert.Eventually(t, func() bool { return hm.IsHealthy("csv", time.Minute) }, time.Second, 10*time.Millisecond)
}
