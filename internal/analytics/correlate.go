package analytics

import (
	"math"

	"github.com/chrissnell/energymonitor/internal/carbon"
	"github.com/chrissnell/energymonitor/internal/energy"
)

// Status says which of the three states a Snapshot is in.
type Status int

const (
	// StatusIdle means there was nothing to correlate: no zone, no runs, or
	// no run selected.
	StatusIdle Status = iota
	// StatusMatched means a reference record was found for the run's month.
	StatusMatched
	// StatusUnmatched means the zone has no reference data for that month.
	StatusUnmatched
)

func (s Status) String() string {
	switch s {
	case StatusMatched:
		return "matched"
	case StatusUnmatched:
		return "unmatched"
	default:
		return "idle"
	}
}

// Snapshot is the carbon picture for one run in one zone. The record and the
// emissions estimate are only reachable through Matched and Emissions, which
// report whether they are present.
type Snapshot struct {
	Status Status
	Run    energy.Run
	Zone   string

	record       carbon.Record
	emissionsG   float64
	hasEmissions bool
}

// Matched returns the reference record behind the snapshot, if there is one.
func (s Snapshot) Matched() (carbon.Record, bool) {
	if s.Status != StatusMatched {
		return carbon.Record{}, false
	}
	return s.record, true
}

// Emissions returns the estimated grams of CO2eq for the run. It is absent
// when there was no match or the run's energy is not a finite number.
func (s Snapshot) Emissions() (float64, bool) {
	return s.emissionsG, s.hasEmissions
}

// Correlator matches runs against a frozen reference index.
type Correlator struct {
	index *carbon.Index
}

// NewCorrelator returns a Correlator over idx.
func NewCorrelator(idx *carbon.Index) *Correlator {
	return &Correlator{index: idx}
}

// Correlate builds the snapshot for the run named runName. Every call starts
// from scratch, so changing zone or selection between calls never leaks data
// from an earlier match.
func (c *Correlator) Correlate(runs []energy.Run, runName, zone string) Snapshot {
	if zone == "" || len(runs) == 0 {
		return Snapshot{Status: StatusIdle, Zone: zone}
	}

	for _, r := range runs {
		if r.Name == runName {
			return c.correlate(r, zone)
		}
	}

	return Snapshot{Status: StatusIdle, Zone: zone}
}

// CorrelateAll returns one snapshot per run, in run order. It returns nil when
// zone is empty or there are no runs.
func (c *Correlator) CorrelateAll(runs []energy.Run, zone string) []Snapshot {
	if zone == "" || len(runs) == 0 {
		return nil
	}

	out := make([]Snapshot, len(runs))
	for i, r := range runs {
		out[i] = c.correlate(r, zone)
	}
	return out
}

func (c *Correlator) correlate(run energy.Run, zone string) Snapshot {
	snap := Snapshot{Status: StatusUnmatched, Run: run, Zone: zone}

	// A run with no timestamp has no month to look up.
	if run.Timestamp.IsZero() {
		return snap
	}

	rec, ok := c.index.Lookup(zone, carbon.MonthOf(run.Timestamp))
	if !ok {
		return snap
	}

	snap.Status = StatusMatched
	snap.record = rec

	if !math.IsNaN(run.EnergyKWh) && !math.IsInf(run.EnergyKWh, 0) {
		snap.emissionsG = run.EnergyKWh * rec.DirectIntensity
		snap.hasEmissions = true
	}

	return snap
}
