package assessment

import (
	"sort"
	"time"

	"github.com/chrissnell/radiativepower/pkg/sky"
	"github.com/chrissnell/radiativepower/pkg/units"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

// Row is the evaluation of one hour at one coordinate.
type Row struct {
	Time               time.Time                 `json:"time"`
	Power              units.WattsPerSquareMeter `json:"average_power_watts_per_sqm"`
	OptimalVoltage     units.Volt                `json:"optimal_voltage"`
	SkyTemperature     units.Kelvin              `json:"t_sky"`
	SurfaceTemperature units.Kelvin              `json:"t_surf"`
	AtBoundary         bool                      `json:"at_boundary"`
}

// HourMean is the mean non-negative power for one hour of day (UTC).
type HourMean struct {
	Hour      int     `json:"hour"`
	MeanPower float64 `json:"mean_power_watts_per_sqm"`
	Samples   int     `json:"samples"`
}

// MonthMean is the mean non-negative power for one calendar month.
type MonthMean struct {
	Month     time.Month `json:"month"`
	MeanPower float64    `json:"mean_power_watts_per_sqm"`
	Samples   int        `json:"samples"`
}

// Series is the hourly output of one coordinate over the assessment period.
type Series struct {
	RunID    uuid.UUID          `json:"run_id"`
	Name     string             `json:"name"`
	Formula  sky.Formula        `json:"formula"`
	Bandgap  units.Electronvolt `json:"bandgap_ev"`
	Location sky.Location       `json:"location"`
	Start    time.Time          `json:"start"`
	End      time.Time          `json:"end"`

	Rows []Row `json:"-"`
	// Skipped counts hours dropped for missing climate data.
	Skipped int `json:"skipped_hours"`
	// TotalKWh sums positive hourly power, one hour per row, in kWh per m².
	TotalKWh float64 `json:"total_kwh_per_square_m"`

	ByHour  []HourMean  `json:"-"`
	ByMonth []MonthMean `json:"-"`
}

// add appends a row and accumulates its energy.
func (s *Series) add(r Row) {
	s.Rows = append(s.Rows, r)
	if r.Power > 0 {
		s.TotalKWh += float64(r.Power) / 1000
	}
}

// summarize fills the hour-of-day and month means. Rows with negative power
// are excluded.
func (s *Series) summarize() {
	byHour := make(map[int][]float64)
	byMonth := make(map[time.Month][]float64)
	for _, r := range s.Rows {
		if r.Power < 0 {
			continue
		}
		t := r.Time.UTC()
		byHour[t.Hour()] = append(byHour[t.Hour()], float64(r.Power))
		byMonth[t.Month()] = append(byMonth[t.Month()], float64(r.Power))
	}

	s.ByHour = s.ByHour[:0]
	for h, values := range byHour {
		s.ByHour = append(s.ByHour, HourMean{Hour: h, MeanPower: stat.Mean(values, nil), Samples: len(values)})
	}
	sort.Slice(s.ByHour, func(i, j int) bool { return s.ByHour[i].Hour < s.ByHour[j].Hour })

	s.ByMonth = s.ByMonth[:0]
	for m, values := range byMonth {
		s.ByMonth = append(s.ByMonth, MonthMean{Month: m, MeanPower: stat.Mean(values, nil), Samples: len(values)})
	}
	sort.Slice(s.ByMonth, func(i, j int) bool { return s.ByMonth[i].Month < s.ByMonth[j].Month })
}
