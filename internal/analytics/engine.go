// Package analytics is the entry point for energy and carbon calculations.
// It combines the run aggregator with the carbon correlator over one frozen
// reference index.
package analytics

import (
	"math"

	"github.com/chrissnell/energymonitor/internal/carbon"
	"github.com/chrissnell/energymonitor/internal/energy"
	"go.uber.org/zap"
)

// Engine is safe for concurrent use. Its only state is the index it was built
// with, which never changes.
type Engine struct {
	index      *carbon.Index
	correlator *Correlator
	logger     *zap.SugaredLogger
}

// NewEngine creates an engine over idx.
func NewEngine(idx *carbon.Index, logger *zap.SugaredLogger) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Engine{
		index:      idx,
		correlator: NewCorrelator(idx),
		logger:     logger,
	}
}

// ProjectAverages averages the runs of a single project.
func (e *Engine) ProjectAverages(project string, runs []energy.Run) energy.ProjectAverages {
	avg := energy.ProjectAverages{
		Project:  project,
		Averages: energy.AverageProject(runs),
	}
	e.logNaN(avg)
	return avg
}

// AllProjectAverages averages every project, preserving input order.
func (e *Engine) AllProjectAverages(projects []energy.ProjectRuns) []energy.ProjectAverages {
	out := energy.AverageAllProjects(projects)
	for _, avg := range out {
		e.logNaN(avg)
	}
	return out
}

// CorrelateRun returns the carbon snapshot for the selected run in zone.
func (e *Engine) CorrelateRun(runs []energy.Run, runName, zone string) Snapshot {
	snap := e.correlator.Correlate(runs, runName, zone)
	switch snap.Status {
	case StatusUnmatched:
		e.logger.Debugf("no reference data for run %q in zone %q (month %v)",
			runName, zone, carbon.MonthOf(snap.Run.Timestamp))
	case StatusMatched:
		if _, ok := snap.Emissions(); !ok {
			e.logger.Debugf("energy value missing or invalid for run %q; emissions not estimated", runName)
		}
	}
	return snap
}

// CorrelateRuns returns a snapshot for every run in zone.
func (e *Engine) CorrelateRuns(runs []energy.Run, zone string) []Snapshot {
	return e.correlator.CorrelateAll(runs, zone)
}

// Zones lists the zones that have reference data.
func (e *Engine) Zones() []string {
	return e.index.Zones()
}

// HasZone reports whether the reference table has any data for zone.
func (e *Engine) HasZone(zone string) bool {
	for _, z := range e.index.Zones() {
		if z == zone {
			return true
		}
	}
	return false
}

func (e *Engine) logNaN(avg energy.ProjectAverages) {
	if math.IsNaN(avg.AvgEnergy) || math.IsNaN(avg.AvgPower) || math.IsNaN(avg.AvgDuration) {
		e.logger.Debugf("project %q has no runs or malformed run data: %+v", avg.Project, avg.Averages)
	}
}
