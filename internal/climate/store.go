package climate

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/chrissnell/radiativepower/pkg/modelerr"
	"github.com/chrissnell/radiativepower/pkg/sky"
	"github.com/chrissnell/radiativepower/pkg/units"
	"gonum.org/v1/gonum/stat"
)

// ErrNoGridPoint is wrapped by every lookup for a location farther than the
// store's maximum distance from all of its grid points.
var ErrNoGridPoint = errors.New("no climate grid point near location")

// Observation holds one hour of observables at a grid point, in the units the
// reanalysis publishes them. NaN marks a missing value.
type Observation struct {
	Time                     time.Time
	SkinTemperature          float64 // K
	AmbientTemperature       float64 // K
	DewpointTemperature      float64 // K
	TotalCloudCover          float64 // fraction
	CloudBaseHeight          float64 // m
	SurfacePressure          float64 // Pa
	DownwardThermalRadiation float64 // J m-2 accumulated over the hour
}

// MissingObservation returns an observation with every value missing.
func MissingObservation(t time.Time) Observation {
	nan := math.NaN()
	return Observation{
		Time:                     t,
		SkinTemperature:          nan,
		AmbientTemperature:       nan,
		DewpointTemperature:      nan,
		TotalCloudCover:          nan,
		CloudBaseHeight:          nan,
		SurfacePressure:          nan,
		DownwardThermalRadiation: nan,
	}
}

type monthKey struct {
	year  int
	month time.Month
}

type series struct {
	loc   sky.Location
	hours map[int64]Observation

	monthlyDewpoint map[monthKey]float64
}

// Store is an in-memory sky.ClimateProvider over hourly point series. Queries
// are answered from the grid point nearest the requested location. It is safe
// for concurrent use.
type Store struct {
	maxDistance float64

	mu      sync.RWMutex
	series  map[sky.Location]*series
	nearest map[sky.Location]*series
}

var _ sky.ClimateProvider = (*Store)(nil)

// NewStore returns an empty store. maxDistance is in degrees; zero or less
// means any grid point will do.
func NewStore(maxDistance float64) *Store {
	return &Store{
		maxDistance: maxDistance,
		series:      make(map[sky.Location]*series),
		nearest:     make(map[sky.Location]*series),
	}
}

// Add records an observation for a grid point, replacing any earlier one for
// the same hour.
func (s *Store) Add(loc sky.Location, obs Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(loc, obs)
	s.nearest = make(map[sky.Location]*series)
}

func (s *Store) add(loc sky.Location, obs Observation) {
	sr, ok := s.series[loc]
	if !ok {
		sr = &series{loc: loc, hours: make(map[int64]Observation), monthlyDewpoint: make(map[monthKey]float64)}
		s.series[loc] = sr
	}
	obs.Time = hourOf(obs.Time)
	sr.hours[obs.Time.Unix()] = obs
	delete(sr.monthlyDewpoint, monthKey{obs.Time.Year(), obs.Time.Month()})
}

// finalize precomputes monthly dewpoint means after a bulk load.
func (s *Store) finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sr := range s.series {
		for _, obs := range sr.hours {
			k := monthKey{obs.Time.Year(), obs.Time.Month()}
			if _, ok := sr.monthlyDewpoint[k]; !ok {
				sr.monthlyDewpoint[k] = sr.meanDewpoint(k)
			}
		}
	}
}

// Points returns the grid points held by the store.
func (s *Store) Points() []sky.Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	points := make([]sky.Location, 0, len(s.series))
	for loc := range s.series {
		points = append(points, loc)
	}
	return points
}

// Covers reports whether loc is within the store's maximum distance of a grid
// point.
func (s *Store) Covers(loc sky.Location) bool {
	_, err := s.lookup(loc)
	return err == nil
}

func hourOf(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}

// distance is the planar separation in degrees with longitude wrapped
// across the antimeridian.
func distance(a, b sky.Location) float64 {
	dlon := math.Abs(a.Longitude - b.Longitude)
	if dlon > 180 {
		dlon = 360 - dlon
	}
	return math.Hypot(a.Latitude-b.Latitude, dlon)
}

func (s *Store) lookup(loc sky.Location) (*series, error) {
	s.mu.RLock()
	sr, ok := s.nearest[loc]
	s.mu.RUnlock()
	if ok {
		return sr, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	best := math.Inf(1)
	for _, candidate := range s.series {
		if d := distance(loc, candidate.loc); d < best {
			best, sr = d, candidate
		}
	}
	if sr == nil || (s.maxDistance > 0 && best > s.maxDistance) {
		return nil, &modelerr.Error{
			Kind: modelerr.InsufficientData,
			Op:   "climate.lookup",
			Msg:  loc.String(),
			Err:  ErrNoGridPoint,
		}
	}
	s.nearest[loc] = sr
	return sr, nil
}

func (s *Store) observation(ctx context.Context, t time.Time, loc sky.Location) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}
	sr, err := s.lookup(loc)
	if err != nil {
		return Observation{}, err
	}

	s.mu.RLock()
	obs, ok := sr.hours[hourOf(t).Unix()]
	s.mu.RUnlock()
	if !ok {
		return MissingObservation(t), nil
	}
	return obs, nil
}

func (sr *series) meanDewpoint(k monthKey) float64 {
	var values []float64
	for _, obs := range sr.hours {
		if obs.Time.Year() != k.year || obs.Time.Month() != k.month {
			continue
		}
		if !math.IsNaN(obs.DewpointTemperature) {
			values = append(values, obs.DewpointTemperature)
		}
	}
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

func (s *Store) SkinTemperature(ctx context.Context, t time.Time, loc sky.Location) (units.Quantity, error) {
	obs, err := s.observation(ctx, t, loc)
	return units.Q(obs.SkinTemperature, units.UnitKelvin), err
}

func (s *Store) AmbientTemperature(ctx context.Context, t time.Time, loc sky.Location) (units.Quantity, error) {
	obs, err := s.observation(ctx, t, loc)
	return units.Q(obs.AmbientTemperature, units.UnitKelvin), err
}

func (s *Store) DewpointTemperature(ctx context.Context, t time.Time, loc sky.Location) (units.Quantity, error) {
	obs, err := s.observation(ctx, t, loc)
	return units.Q(obs.DewpointTemperature, units.UnitKelvin), err
}

// MonthlyMeanDewpointTemperature averages the non-missing hourly dewpoints
// of t's calendar month in UTC.
func (s *Store) MonthlyMeanDewpointTemperature(ctx context.Context, t time.Time, loc sky.Location) (units.Quantity, error) {
	if err := ctx.Err(); err != nil {
		return units.Missing(units.UnitKelvin), err
	}
	sr, err := s.lookup(loc)
	if err != nil {
		return units.Missing(units.UnitKelvin), err
	}

	t = t.UTC()
	k := monthKey{t.Year(), t.Month()}

	s.mu.RLock()
	mean, ok := sr.monthlyDewpoint[k]
	s.mu.RUnlock()
	if !ok {
		s.mu.Lock()
		mean = sr.meanDewpoint(k)
		sr.monthlyDewpoint[k] = mean
		s.mu.Unlock()
	}
	return units.Q(mean, units.UnitKelvin), nil
}

func (s *Store) TotalCloudCover(ctx context.Context, t time.Time, loc sky.Location) (units.Quantity, error) {
	obs, err := s.observation(ctx, t, loc)
	return units.Q(obs.TotalCloudCover, units.Dimensionless), err
}

func (s *Store) CloudBaseHeight(ctx context.Context, t time.Time, loc sky.Location) (units.Quantity, error) {
	obs, err := s.observation(ctx, t, loc)
	return units.Q(obs.CloudBaseHeight, units.UnitMeter), err
}

func (s *Store) SurfacePressure(ctx context.Context, t time.Time, loc sky.Location) (units.Quantity, error) {
	obs, err := s.observation(ctx, t, loc)
	return units.Q(obs.SurfacePressure, units.UnitPascal), err
}

func (s *Store) DownwardThermalRadiation(ctx context.Context, t time.Time, loc sky.Location) (units.Quantity, error) {
	obs, err := s.observation(ctx, t, loc)
	return units.Q(obs.DownwardThermalRadiation, units.UnitJoulePerSquareMeterHour), err
}
