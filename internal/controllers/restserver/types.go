package restserver

import (
	"math"
	"time"

	"github.com/chrissnell/energymonitor/internal/analytics"
	"github.com/chrissnell/energymonitor/internal/energy"
)

// notAvailable is what clients see in place of intensity figures when there
// is no reference data for a run's zone and month.
const notAvailable = "N/A"

// RunResponse is one run as sent to clients. Missing or malformed values are
// null.
type RunResponse struct {
	Run       string   `json:"run"`
	Energy    *float64 `json:"energy"`
	Power     *float64 `json:"power"`
	Duration  *float64 `json:"duration"`
	Timestamp *string  `json:"timestamp"`
}

// AveragesResponse is one project's averages. A null metric means the project
// had no runs or carried malformed data for that metric.
type AveragesResponse struct {
	Project     string   `json:"project"`
	AvgEnergy   *float64 `json:"avg_energy"`
	AvgPower    *float64 `json:"avg_power"`
	AvgDuration *float64 `json:"avg_duration"`
}

// SnapshotResponse is the carbon picture for one run. Direct, CFE and RE hold
// either a number or the string "N/A".
type SnapshotResponse struct {
	Run             string   `json:"run"`
	Zone            string   `json:"zone"`
	Status          string   `json:"status"`
	Direct          any      `json:"direct"`
	CFE             any      `json:"cfe"`
	RE              any      `json:"re"`
	TotalEmissionsG *float64 `json:"total_emissions_g"`
}

// ZoneResponse is one selectable grid zone.
type ZoneResponse struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func transformRun(r energy.Run) RunResponse {
	resp := RunResponse{
		Run:      r.Name,
		Energy:   finite(r.EnergyKWh),
		Power:    finite(r.AvgPowerWatts),
		Duration: finite(r.DurationSeconds),
	}
	if !r.Timestamp.IsZero() {
		ts := r.Timestamp.UTC().Format(time.RFC3339Nano)
		resp.Timestamp = &ts
	}
	return resp
}

func transformAverages(a energy.ProjectAverages) AveragesResponse {
	return AveragesResponse{
		Project:     a.Project,
		AvgEnergy:   finite(a.AvgEnergy),
		AvgPower:    finite(a.AvgPower),
		AvgDuration: finite(a.AvgDuration),
	}
}

func transformSnapshot(s analytics.Snapshot) SnapshotResponse {
	resp := SnapshotResponse{
		Run:    s.Run.Name,
		Zone:   s.Zone,
		Status: s.Status.String(),
		Direct: notAvailable,
		CFE:    notAvailable,
		RE:     notAvailable,
	}

	if rec, ok := s.Matched(); ok {
		resp.Direct = rec.DirectIntensity
		resp.CFE = rec.CarbonFreePct
		resp.RE = rec.RenewablePct
	}

	// Two decimals, as displayed.
	if g, ok := s.Emissions(); ok {
		rounded := math.Round(g*100) / 100
		resp.TotalEmissionsG = &rounded
	}

	return resp
}
