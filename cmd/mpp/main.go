package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/chrissnell/radiativepower/pkg/radiative"
	"github.com/chrissnell/radiativepower/pkg/units"
)

func main() {
	var (
		bandgap  = flag.Float64("bandgap", 0.17, "Bandgap energy in eV")
		tSky     = flag.Float64("t-sky", 270, "Effective sky temperature in K")
		tCell    = flag.Float64("t-cell", 443, "Cell (surface) temperature in K")
		strategy = flag.String("strategy", "bounded", "Voltage search: 'bounded' (Brent) or 'grid'")
		asJSON   = flag.Bool("json", false, "Print the result as JSON")
	)
	flag.Parse()

	s, err := radiative.ParseStrategy(*strategy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	settings := radiative.DefaultSearchSettings()
	if s == radiative.StrategyGrid {
		settings = radiative.DefaultGridSettings()
	}

	tracker, err := radiative.NewTracker(nil, nil, settings, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	r, err := tracker.MaxPowerPoint(units.Electronvolt(*bandgap), units.Kelvin(*tSky), units.Kelvin(*tCell))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error finding maximum power point: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(r)
		return
	}

	fmt.Printf("Maximum power point for Eg=%v, T_sky=%v, T_cell=%v\n",
		units.Electronvolt(*bandgap), units.Kelvin(*tSky), units.Kelvin(*tCell))
	fmt.Printf("  Search:          %s\n", settings.Strategy)
	fmt.Printf("  Optimal voltage: %.5f V\n", float64(r.OptimalVoltage))
	fmt.Printf("  Max power:       %.3f W/m²\n", float64(r.MaxPower))
	fmt.Printf("  Evaluations:     %d\n", r.Evaluations)
	if r.AtBoundary {
		fmt.Printf("  Note:            optimum lies on the edge of [%v, %v]\n", settings.MinVoltage, settings.MaxVoltage)
	}
}
