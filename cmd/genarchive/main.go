// Command genarchive writes a synthetic multi-message extract archive for
// local pipeline runs and demos. The generated variables carry archive-native
// units (Kelvin, metres) and a derived valid_time coordinate, matching what a
// real retrieval produces, so a run over the output exercises every pipeline
// stage.
//
// Usage:
//
//	go run ./cmd/genarchive -out data/era5.exa -times 24 -steps 4
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/sayantanonfire/era5-export/internal/adapter/archive"
	"github.com/sayantanonfire/era5-export/internal/dataset"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output archive path")
	times := flag.Int("times", 24, "number of base_time points (hourly)")
	steps := flag.Int("steps", 4, "number of lead_step points")
	lats := flag.Int("lats", 9, "number of latitude points")
	lons := flag.Int("lons", 18, "number of longitude points")
	seed := flag.Int64("seed", 1, "random seed for reproducible fields")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	rng := rand.New(rand.NewSource(*seed))
	g := grid{times: *times, steps: *steps, lats: *lats, lons: *lons}

	t2m := g.variable("t2m", "K", "2 metre temperature", func(lat float64) float64 {
		// Warmer toward the equator, plus weather noise.
		return 288.15 - 0.4*math.Abs(lat) + rng.NormFloat64()*3
	})
	tp := g.variable("tp", "m", "Total precipitation", func(lat float64) float64 {
		v := rng.ExpFloat64() * 0.0005
		// Dry spells dominate real precipitation fields.
		if rng.Float64() < 0.6 {
			v = 0
		}
		return v
	})

	// Punch missing-data holes the way degraded satellite coverage does.
	for _, v := range []*dataset.Variable{t2m, tp} {
		holes := len(v.Data) / 50
		for i := 0; i < holes; i++ {
			v.Data[rng.Intn(len(v.Data))] = math.NaN()
		}
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return err
	}
	if err := archive.Write(*out, t2m, tp); err != nil {
		return err
	}

	log.Printf("wrote %s: t2m and tp, shape [%d %d %d %d]", *out, *times, *steps, *lats, *lons)
	return nil
}

type grid struct {
	times, steps, lats, lons int
}

// variable builds one 4-d field over the grid. value receives the latitude of
// each point so fields can vary meridionally.
func (g grid) variable(name, units, longName string, value func(lat float64) float64) *dataset.Variable {
	baseTime := make([]float64, g.times)
	for i := range baseTime {
		baseTime[i] = float64(i) // hours since the reference epoch
	}
	leadStep := make([]float64, g.steps)
	for i := range leadStep {
		leadStep[i] = float64(i + 1)
	}
	latitude := make([]float64, g.lats)
	for i := range latitude {
		latitude[i] = 80 - 20*float64(i)
	}
	longitude := make([]float64, g.lons)
	for i := range longitude {
		longitude[i] = -180 + 20*float64(i)
	}

	// valid_time = base_time + lead_step, flattened over both axes. The
	// pipeline drops it on load; carrying it keeps the archive honest.
	validTime := make([]float64, 0, g.times*g.steps)
	for _, bt := range baseTime {
		for _, ls := range leadStep {
			validTime = append(validTime, bt+ls)
		}
	}

	data := make([]float64, g.times*g.steps*g.lats*g.lons)
	i := 0
	for range baseTime {
		for range leadStep {
			for _, lat := range latitude {
				for range longitude {
					data[i] = value(lat)
					i++
				}
			}
		}
	}

	return &dataset.Variable{
		Name:  name,
		Dims:  []string{dataset.DimBaseTime, dataset.DimLeadStep, dataset.DimLatitude, dataset.DimLongitude},
		Shape: []int{g.times, g.steps, g.lats, g.lons},
		Data:  data,
		Attrs: map[string]string{
			dataset.AttrUnits:    units,
			dataset.AttrLongName: longName,
		},
		Coords: map[string]dataset.Coordinate{
			dataset.DimBaseTime:  {Name: dataset.DimBaseTime, Values: baseTime},
			dataset.DimLeadStep:  {Name: dataset.DimLeadStep, Values: leadStep},
			dataset.DimLatitude:  {Name: dataset.DimLatitude, Values: latitude},
			dataset.DimLongitude: {Name: dataset.DimLongitude, Values: longitude},
			"valid_time":         {Name: "valid_time", Values: validTime},
		},
	}
}
