package restserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/chrissnell/radiativepower/internal/climate"
	"github.com/chrissnell/radiativepower/internal/metrics"
	"github.com/chrissnell/radiativepower/internal/storage"
	"github.com/chrissnell/radiativepower/pkg/config"
	"github.com/chrissnell/radiativepower/pkg/radiative"
	"github.com/chrissnell/radiativepower/pkg/responseformat"
	"github.com/chrissnell/radiativepower/pkg/sky"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

var dublin = sky.Location{Latitude: 53.5, Longitude: -6.25}

func fixtureStore() *climate.Store {
	store := climate.NewStore(0.5)
	day := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	for h := 0; h < 24; h++ {
		obs := climate.MissingObservation(day.Add(time.Duration(h) * time.Hour))
		obs.SkinTemperature = 280
		obs.AmbientTemperature = 287.65
		obs.DewpointTemperature = 278.15
		obs.TotalCloudCover = 0.5
		obs.CloudBaseHeight = 1000
		obs.SurfacePressure = 101325
		if h == 4 {
			obs.AmbientTemperature = math.NaN()
		}
		store.Add(dublin, obs)
	}
	return store
}

func newTestController(t *testing.T, health *storage.HealthManager) (*Controller, *metrics.Collector) {
	t.Helper()
	store := fixtureStore()
	skyModel, err := sky.NewTemperatureModel(store, nil, nil)
	require.NoError(t, err)
	power := radiative.NewPowerModel(nil)
	tracker, err := radiative.NewTracker(power, radiative.NewCache(0), radiative.DefaultSearchSettings(), nil)
	require.NoError(t, err)

	collector, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	ctrl, err := NewController(context.Background(), &sync.WaitGroup{}, config.RESTServerData{}, Models{
		Power:   power,
		Tracker: tracker,
		Sky:     skyModel,
		Bandgap: 0.17,
		Formula: sky.FormulaSwinbank,
	}, collector, health, nil)
	require.NoError(t, err)
	return ctrl, collector
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestNewControllerDefaults(t *testing.T) {
	ctrl, _ := newTestController(t, nil)
	assert.Equal(t, "0.0.0.0:8080", ctrl.Server.Addr)

	_, err := NewController(context.Background(), &sync.WaitGroup{}, config.RESTServerData{}, Models{}, nil, nil, nil)
	assert.Error(t, err)
}

func TestGetMaxPowerPoint(t *testing.T) {
	ctrl, collector := newTestController(t, nil)
	h := ctrl.Handler()

	rec := get(t, h, "/api/v1/mpp?t_sky=270&t_cell=443")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[MaxPowerPointResponse](t, rec)
	assert.Equal(t, 0.17, resp.Bandgap)
	assert.InDelta(t, 40.8, resp.MaxPower, 0.05)
	assert.InDelta(t, -0.0352, resp.OptimalVoltage, 0.002)
	assert.False(t, resp.Cached)

	rec = get(t, h, "/api/v1/mpp?t_sky=270&t_cell=443&bandgap=0.17")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[MaxPowerPointResponse](t, rec).Cached)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.Evaluations.WithLabelValues(metrics.OpMaxPowerPoint, "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("/api/v1/mpp", "200")))
}

func TestGetPower(t *testing.T) {
	ctrl, _ := newTestController(t, nil)

	rec := get(t, ctrl.Handler(), "/api/v1/power?t_surface=443&t_sky=270&voltage=-0.035")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[PowerResponse](t, rec)
	assert.InDelta(t, 40.8, resp.Power, 0.1)
	assert.Equal(t, -0.035, resp.Voltage)
}

func TestBadParameters(t *testing.T) {
	ctrl, _ := newTestController(t, nil)
	h := ctrl.Handler()

	for _, target := range []string{
		"/api/v1/mpp?t_sky=270",
		"/api/v1/mpp?t_sky=abc&t_cell=443",
		"/api/v1/mpp?t_sky=NaN&t_cell=443",
		"/api/v1/mpp?t_sky=0&t_cell=443",
		"/api/v1/mpp?t_sky=270&t_cell=-10",
		"/api/v1/mpp?t_sky=270&t_cell=443&bandgap=-0.1",
		"/api/v1/power?t_surface=443&t_sky=270",
		"/api/v1/power?t_surface=443&t_sky=270&voltage=0.17",
		"/api/v1/power?t_surface=443&t_sky=270&voltage=0.5&bandgap=0.3",
		"/api/v1/sky/temperature?time=yesterday&lat=53.5&lon=-6.25",
		"/api/v1/sky/temperature?time=2022-01-01T03:00&lat=95&lon=-6.25",
		"/api/v1/sky/temperature?time=2022-01-01T03:00&lat=53.5&lon=-6.25&formula=stefan",
		"/api/v1/sky/emissivity?lat=53.5&lon=-6.25",
	} {
		t.Run(target, func(t *testing.T) {
			rec := get(t, h, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.Equal(t, "bad_request", decode[responseformat.ErrorResponse](t, rec).Kind)
		})
	}
}

func TestGetSkyTemperature(t *testing.T) {
	ctrl, _ := newTestController(t, nil)
	h := ctrl.Handler()

	rec := get(t, h, "/api/v1/sky/temperature?time=2022-01-01T03:00:00Z&lat=53.5&lon=-6.25")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[SkyTemperatureResponse](t, rec)
	assert.Equal(t, "swinbank", resp.Formula)
	assert.InDelta(t, 269.787, resp.SkyTemperature, 1e-3)
	assert.True(t, resp.Night)
	require.NotNil(t, resp.Sunrise)
	require.NotNil(t, resp.Sunset)
	assert.WithinDuration(t, time.Date(2022, 1, 1, 8, 41, 0, 0, time.UTC), *resp.Sunrise, 5*time.Minute)
	assert.WithinDuration(t, time.Date(2022, 1, 1, 16, 17, 0, 0, time.UTC), *resp.Sunset, 5*time.Minute)

	rec = get(t, h, "/api/v1/sky/temperature?time=2022-01-01T03:00&lat=53.5&lon=-6.25&formula=martin-berdahl")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = decode[SkyTemperatureResponse](t, rec)
	assert.Less(t, resp.SkyTemperature, 287.65)
	assert.Greater(t, resp.SkyTemperature, 250.0)
}

func TestSkyTemperatureMissingData(t *testing.T) {
	ctrl, collector := newTestController(t, nil)
	h := ctrl.Handler()

	tests := []struct {
		name   string
		target string
	}{
		{"missing hour", "/api/v1/sky/temperature?time=2022-01-01T04:00&lat=53.5&lon=-6.25"},
		{"outside data period", "/api/v1/sky/temperature?time=2023-06-01T00:00&lat=53.5&lon=-6.25"},
		{"no grid point", "/api/v1/sky/temperature?time=2022-01-01T03:00&lat=51.5&lon=-0.12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.target)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
			assert.Equal(t, "insufficient_data", decode[responseformat.ErrorResponse](t, rec).Kind)
		})
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(collector.Evaluations.WithLabelValues(metrics.OpSkyTemperature, "insufficient_data")))
}

func TestGetEmissivity(t *testing.T) {
	ctrl, _ := newTestController(t, nil)

	rec := get(t, ctrl.Handler(), "/api/v1/sky/emissivity?time=2022-01-01T03:00&lat=53.5&lon=-6.25")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[EmissivityResponse](t, rec)
	assert.Greater(t, resp.Emissivity, 0.7)
	assert.Less(t, resp.Emissivity, 1.0)
	assert.Equal(t, time.Date(2022, 1, 1, 3, 0, 0, 0, time.UTC), resp.Time)
}

func TestMsgPackResponse(t *testing.T) {
	ctrl, _ := newTestController(t, nil)

	rec := get(t, ctrl.Handler(), "/api/v1/power?t_surface=443&t_sky=270&voltage=-0.035&format=msgpack")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-msgpack", rec.Header().Get("Content-Type"))

	var resp PowerResponse
	dec := msgpack.NewDecoder(bytes.NewReader(rec.Body.Bytes()))
	dec.SetCustomStructTag("json")
	require.NoError(t, dec.Decode(&resp))
	assert.InDelta(t, 40.8, resp.Power, 0.1)
}

type failingChecker struct{}

func (failingChecker) CheckHealth(context.Context) error { return errors.New("disk full") }

type okChecker struct{}

func (okChecker) CheckHealth(context.Context) error { return nil }

func TestGetHealth(t *testing.T) {
	hm := storage.NewHealthManager()
	ctrl, _ := newTestController(t, hm)
	h := ctrl.Handler()

	rec := get(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, storage.StatusHealthy, decode[HealthResponse](t, rec).Status)

	hm.Check(context.Background(), "sqlite", okChecker{})
	rec = get(t, h, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decode[HealthResponse](t, rec).Storage, "sqlite")

	hm.Check(context.Background(), "csv", failingChecker{})
	rec = get(t, h, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, storage.StatusUnhealthy, resp.Status)
	assert.Equal(t, storage.StatusUnhealthy, resp.Storage["csv"].Status)
}

func TestMetricsEndpoint(t *testing.T) {
	ctrl, _ := newTestController(t, nil)
	h := ctrl.Handler()

	get(t, h, "/api/v1/mpp?t_sky=270&t_cell=443")
	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "radiativepower_evaluations_total")
}
