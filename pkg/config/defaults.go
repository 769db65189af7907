package config

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DateLayout is the layout of assessment start and end dates
const DateLayout = "2006-01-02"

const (
	defaultBandgap        = 0.17
	defaultClimateType    = "csv"
	defaultMaxDistance    = 0.5
	defaultRESTListenAddr = "0.0.0.0"
	defaultRESTPort       = 8080
)

// ApplyDefaults fills unset fields with their default values
func (c *ConfigData) ApplyDefaults() {
	m := &c.Model
	if m.Bandgap == 0 {
		m.Bandgap = defaultBandgap
	}
	if m.Strategy == "" {
		m.Strategy = "bounded"
	}
	if m.MinVoltage == 0 && m.MaxVoltage == 0 {
		if m.Strategy == "grid" {
			m.MinVoltage, m.MaxVoltage = -0.05, -0.01
		} else {
			m.MinVoltage, m.MaxVoltage = -5, 0
		}
	}
	if m.VoltageTolerance == 0 {
		m.VoltageTolerance = 1e-5
	}
	if m.MaxEvaluations == 0 {
		m.MaxEvaluations = 500
	}
	if m.GridStep == 0 {
		m.GridStep = 0.001
	}
	if m.GridDecimals == 0 {
		m.GridDecimals = 3
	}
	if m.TemperatureDecimals == 0 {
		m.TemperatureDecimals = 1
	}
	if m.BandgapDecimals == 0 {
		m.BandgapDecimals = 4
	}
	if m.SkyFormula == "" {
		m.SkyFormula = "martin-berdahl"
	}

	if c.Climate.Type == "" {
		c.Climate.Type = defaultClimateType
	}
	if c.Climate.MaxDistance == 0 {
		c.Climate.MaxDistance = defaultMaxDistance
	}

	if c.Assessment.Name == "" {
		c.Assessment.Name = m.SkyFormula
	}
	if c.Assessment.Workers == 0 {
		c.Assessment.Workers = 1
	}

	if c.REST != nil {
		if c.REST.ListenAddr == "" {
			c.REST.ListenAddr = defaultRESTListenAddr
		}
		if c.REST.Port == 0 {
			c.REST.Port = defaultRESTPort
		}
	}
}

// Validate reports every configuration problem it finds
func (c *ConfigData) Validate() error {
	var errs []error

	m := c.Model
	if !(m.Bandgap > 0) || math.IsInf(m.Bandgap, 0) {
		errs = append(errs, fmt.Errorf("model.bandgap must be a positive number of eV, got %v", m.Bandgap))
	}
	if !(m.MinVoltage < m.MaxVoltage) {
		errs = append(errs, fmt.Errorf("model voltage interval [%v, %v] is empty", m.MinVoltage, m.MaxVoltage))
	}
	if m.CacheCapacity < 0 {
		errs = append(errs, fmt.Errorf("model.cache_capacity must not be negative"))
	}
	if m.TemperatureDecimals < 0 || m.BandgapDecimals < 0 || m.GridDecimals < 0 {
		errs = append(errs, fmt.Errorf("model decimal places must not be negative"))
	}

	switch c.Climate.Type {
	case "csv":
		if c.Climate.Path == "" {
			errs = append(errs, fmt.Errorf("climate.path is required for csv climate data"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown climate type %q", c.Climate.Type))
	}
	if c.Climate.MaxDistance < 0 {
		errs = append(errs, fmt.Errorf("climate.max_distance must not be negative"))
	}

	errs = append(errs, c.Assessment.validate()...)

	if c.REST != nil && (c.REST.Port < 0 || c.REST.Port > 65535) {
		errs = append(errs, fmt.Errorf("rest.port %d out of range", c.REST.Port))
	}
	if (c.REST != nil) && ((c.REST.Cert == "") != (c.REST.Key == "")) {
		errs = append(errs, fmt.Errorf("rest.cert and rest.key must be set together"))
	}

	return errors.Join(errs...)
}

func (a AssessmentData) validate() []error {
	var errs []error

	// An assessment section is optional in serve mode
	if a.StartDate == "" && a.EndDate == "" && len(a.Coordinates) == 0 && a.Grid == nil {
		return nil
	}

	start, startErr := time.Parse(DateLayout, a.StartDate)
	if startErr != nil {
		errs = append(errs, fmt.Errorf("assessment.start_date: %w", startErr))
	}
	end, endErr := time.Parse(DateLayout, a.EndDate)
	if endErr != nil {
		errs = append(errs, fmt.Errorf("assessment.end_date: %w", endErr))
	}
	if startErr == nil && endErr == nil && end.Before(start) {
		errs = append(errs, fmt.Errorf("assessment.end_date %s is before start_date %s", a.EndDate, a.StartDate))
	}

	if len(a.Coordinates) == 0 && a.Grid == nil {
		errs = append(errs, fmt.Errorf("assessment needs coordinates or a grid"))
	}
	for i, p := range a.Coordinates {
		if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
			errs = append(errs, fmt.Errorf("assessment.coordinates[%d] (%v, %v) out of range", i, p.Lat, p.Lon))
		}
	}
	if g := a.Grid; g != nil {
		if !(g.Step > 0) {
			errs = append(errs, fmt.Errorf("assessment.grid.step must be positive"))
		}
		if g.LatMin > g.LatMax || g.LonMin > g.LonMax {
			errs = append(errs, fmt.Errorf("assessment.grid bounds are inverted"))
		}
	}

	if a.BatchStart < 0 || a.BatchQuantity < 0 {
		errs = append(errs, fmt.Errorf("assessment batch bounds must not be negative"))
	}
	if a.Workers < 0 {
		errs = append(errs, fmt.Errorf("assessment.workers must not be negative"))
	}
	return errs
}

// Period parses the assessment start and end dates as UTC midnights
func (a AssessmentData) Period() (start, end time.Time, err error) {
	start, err = time.Parse(DateLayout, a.StartDate)
	if err != nil {
		return start, end, fmt.Errorf("parsing start date: %w", err)
	}
	end, err = time.Parse(DateLayout, a.EndDate)
	if err != nil {
		return start, end, fmt.Errorf("parsing end date: %w", err)
	}
	return start, end, nil
}
