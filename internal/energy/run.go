// Package energy models energy-monitoring runs and reduces them into
// per-project averages.
package energy

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Field names of a stored run document, as written by the ingestion side.
const (
	FieldEnergyKWh     = "energy_kwh"
	FieldAvgPowerWatts = "avg_power_watts"
	FieldDuration      = "duration"
	FieldTimestamp     = "timestamp"
)

// Run is the summary of one energy-monitoring session. Numeric fields hold
// NaN when the stored value was missing or not a number.
type Run struct {
	Name            string
	EnergyKWh       float64
	AvgPowerWatts   float64
	DurationSeconds float64
	Timestamp       time.Time // zero when missing or unparseable
}

// ProjectRuns pairs a project name with its runs. A slice of these keeps the
// order projects were handed over in, which a map would not.
type ProjectRuns struct {
	Project string
	Runs    []Run
}

// RunFromFields builds a Run from a raw stored document.
func RunFromFields(name string, fields map[string]any) Run {
	return Run{
		Name:            name,
		EnergyKWh:       ToNumber(fields[FieldEnergyKWh]),
		AvgPowerWatts:   ToNumber(fields[FieldAvgPowerWatts]),
		DurationSeconds: ToNumber(fields[FieldDuration]),
		Timestamp:       ToTime(fields[FieldTimestamp]),
	}
}

// NormalizeFields returns a copy of fields with json.Number values replaced by
// int64 (when integral) or float64. Encoders that know nothing of json.Number
// would otherwise store such values as text.
func NormalizeFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		n, ok := v.(json.Number)
		if !ok {
			out[k] = v
			continue
		}
		if i, err := n.Int64(); err == nil {
			out[k] = i
		} else if f, err := n.Float64(); err == nil {
			out[k] = f
		} else {
			out[k] = n.String()
		}
	}
	return out
}

// ToNumber coerces a loosely typed stored value into a float64. Anything that
// is missing or does not read as a number becomes NaN, so that bad data
// poisons the aggregates built from it instead of quietly counting as zero.
func ToNumber(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int8:
		return float64(n)
	case int16:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint16:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return math.NaN()
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ToTime coerces a stored timestamp into a UTC time. Strings are tried against
// RFC 3339 and a few common layouts (zone-less strings read as UTC); numbers
// are taken as Unix epoch milliseconds. Anything else yields the zero time.
func ToTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case *time.Time:
		if t == nil {
			return time.Time{}
		}
		return t.UTC()
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range timeLayouts {
			if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
				return parsed.UTC()
			}
		}
		return time.Time{}
	case nil:
		return time.Time{}
	default:
		ms := ToNumber(v)
		if math.IsNaN(ms) || math.IsInf(ms, 0) {
			return time.Time{}
		}
		return time.UnixMilli(int64(ms)).UTC()
	}
}
