package energy

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Averages holds the mean energy (kWh), power (W) and duration (s) of a set of
// runs, each rounded to three decimals. A metric is NaN when the set was empty
// or any run carried a malformed value for it.
type Averages struct {
	AvgEnergy   float64
	AvgPower    float64
	AvgDuration float64
}

// ProjectAverages is Averages labelled with the project it was computed for.
type ProjectAverages struct {
	Project string
	Averages
}

// AverageProject computes the per-field arithmetic mean of runs. NaN values
// are not skipped: a single malformed run makes that metric NaN for the whole
// project, and an empty slice yields NaN for all three.
func AverageProject(runs []Run) Averages {
	energies := make([]float64, len(runs))
	powers := make([]float64, len(runs))
	durations := make([]float64, len(runs))

	for i, r := range runs {
		energies[i] = r.EnergyKWh
		powers[i] = r.AvgPowerWatts
		durations[i] = r.DurationSeconds
	}

	return Averages{
		AvgEnergy:   Round3(mean(energies)),
		AvgPower:    Round3(mean(powers)),
		AvgDuration: Round3(mean(durations)),
	}
}

// AverageAllProjects applies AverageProject to every project independently.
// The result follows the input order.
func AverageAllProjects(projects []ProjectRuns) []ProjectAverages {
	out := make([]ProjectAverages, 0, len(projects))
	for _, p := range projects {
		out = append(out, ProjectAverages{
			Project:  p.Project,
			Averages: AverageProject(p.Runs),
		})
	}
	return out
}

func mean(x []float64) float64 {
	// stat.Mean divides by len(x), so an empty slice is 0/0.
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

// Round3 rounds v to three decimal places, half away from zero. NaN and
// infinities pass through unchanged.
func Round3(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return math.Round(v*1000) / 1000
}
