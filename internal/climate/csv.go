// Package climate implements sky.ClimateProvider over hourly reanalysis point
// series.
//
// The CSV layout follows the reanalysis short names: one row per grid point
// and hour with the columns time, latitude, longitude, skt, t2m, d2m, tcc,
// cbh, sp and strd. Temperatures are in kelvin, cloud base height in metres,
// surface pressure in pascal and strd is the hourly accumulated downward
// longwave radiation in J m-2. Empty cells and "nan" mark missing values.
package climate

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/chrissnell/radiativepower/pkg/sky"
	"github.com/gocarina/gocsv"
	"go.uber.org/zap"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// reading is a CSV cell that may be empty. A column absent from the file
// leaves it invalid as well.
type reading struct {
	value float64
	valid bool
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (r *reading) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "na", "null", "--":
		*r = reading{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parsing %q: %w", s, err)
	}
	*r = reading{value: v, valid: !math.IsNaN(v)}
	return nil
}

func (r reading) float() float64 {
	if !r.valid {
		return math.NaN()
	}
	return r.value
}

type timestamp struct {
	t time.Time
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller. Timestamps without a zone
// are taken as UTC.
func (ts *timestamp) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			ts.t = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

type observationRow struct {
	Time      timestamp `csv:"time"`
	Latitude  float64   `csv:"latitude"`
	Longitude float64   `csv:"longitude"`
	Skt       reading   `csv:"skt"`
	T2m       reading   `csv:"t2m"`
	D2m       reading   `csv:"d2m"`
	Tcc       reading   `csv:"tcc"`
	Cbh       reading   `csv:"cbh"`
	Sp        reading   `csv:"sp"`
	Strd      reading   `csv:"strd"`
}

func (r *observationRow) observation() Observation {
	return Observation{
		Time:                     r.Time.t,
		SkinTemperature:          r.Skt.float(),
		AmbientTemperature:       r.T2m.float(),
		DewpointTemperature:      r.D2m.float(),
		TotalCloudCover:          r.Tcc.float(),
		CloudBaseHeight:          r.Cbh.float(),
		SurfacePressure:          r.Sp.float(),
		DownwardThermalRadiation: r.Strd.float(),
	}
}

// LoadCSV reads a climate file, or every *.csv file in a directory, into a
// Store. maxDistance bounds, in degrees, how far a query may be from the
// nearest grid point; zero means unbounded.
func LoadCSV(path string, maxDistance float64, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("climate data %s: %w", path, err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.csv"))
		if err != nil {
			return nil, err
		}
		sort.Strings(files)
		if len(files) == 0 {
			return nil, fmt.Errorf("no climate CSV files in %s", path)
		}
	}

	store := NewStore(maxDistance)
	for _, f := range files {
		n, err := loadFile(store, f)
		if err != nil {
			return nil, err
		}
		logger.Debugw("loaded climate file", "file", f, "rows", n)
	}
	store.finalize()

	logger.Infow("climate data loaded", "path", path, "files", len(files), "points", len(store.series))
	return store, nil
}

func loadFile(store *Store, path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening climate file: %w", err)
	}
	defer file.Close()

	var rows []*observationRow
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return 0, fmt.Errorf("reading climate file %s: %w", path, err)
	}

	for _, r := range rows {
		store.add(sky.Location{Latitude: r.Latitude, Longitude: r.Longitude}, r.observation())
	}
	return len(rows), nil
}
