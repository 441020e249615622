package carbon

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Column names used by the Electricity Maps hourly/monthly exports.
const (
	ColumnZone            = "Zone name"
	ColumnDatetime        = "Datetime (UTC)"
	ColumnDirectIntensity = "Carbon intensity gCO₂eq/kWh (direct)"
	ColumnCarbonFree      = "Carbon-free energy percentage (CFE%)"
	ColumnRenewable       = "Renewable energy percentage (RE%)"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// LoadFile reads a reference table from disk, choosing the decoder by file
// extension (.json or .csv).
func LoadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening reference dataset: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadJSON(f)
	case ".csv":
		return LoadCSV(f)
	default:
		return nil, fmt.Errorf("unsupported reference dataset format %q: use .json or .csv", filepath.Ext(path))
	}
}

// LoadJSON decodes a JSON array of row objects keyed by the export's column
// names. Numeric columns may be JSON numbers or numeric strings.
func LoadJSON(r io.Reader) ([]Record, error) {
	var rows []map[string]any

	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("error decoding reference dataset: %w", err)
	}

	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		rec, err := parseRow(func(col string) (any, bool) {
			v, ok := row[col]
			return v, ok
		})
		if err != nil {
			return nil, fmt.Errorf("reference dataset row %d: %w", i+1, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

// LoadCSV decodes a CSV export whose header row carries the column names.
// Extra columns are ignored.
func LoadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("reference dataset is empty")
		}
		return nil, fmt.Errorf("error reading reference dataset header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.TrimPrefix(strings.TrimSpace(name), "\ufeff")] = i
	}
	for _, required := range []string{ColumnZone, ColumnDatetime, ColumnDirectIntensity, ColumnCarbonFree, ColumnRenewable} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("reference dataset is missing column %q", required)
		}
	}

	var records []Record
	for line := 2; ; line++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading reference dataset line %d: %w", line, err)
		}

		rec, err := parseRow(func(col string) (any, bool) {
			i := columns[col]
			if i >= len(fields) {
				return nil, false
			}
			return fields[i], true
		})
		if err != nil {
			return nil, fmt.Errorf("reference dataset line %d: %w", line, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

func parseRow(get func(col string) (any, bool)) (Record, error) {
	var rec Record

	zone, _ := get(ColumnZone)
	zoneStr, ok := zone.(string)
	if !ok || strings.TrimSpace(zoneStr) == "" {
		return Record{}, fmt.Errorf("missing %q", ColumnZone)
	}
	rec.Zone = strings.TrimSpace(zoneStr)

	raw, _ := get(ColumnDatetime)
	ts, err := parseTimestamp(raw)
	if err != nil {
		return Record{}, fmt.Errorf("bad %q: %w", ColumnDatetime, err)
	}
	rec.ObservedAt = ts

	if rec.DirectIntensity, err = numberColumn(get, ColumnDirectIntensity); err != nil {
		return Record{}, err
	}
	if rec.DirectIntensity < 0 {
		return Record{}, fmt.Errorf("%q is negative: %v", ColumnDirectIntensity, rec.DirectIntensity)
	}
	if rec.CarbonFreePct, err = percentColumn(get, ColumnCarbonFree); err != nil {
		return Record{}, err
	}
	if rec.RenewablePct, err = percentColumn(get, ColumnRenewable); err != nil {
		return Record{}, err
	}

	return rec, nil
}

func parseTimestamp(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("expected a string, got %T", v)
	}
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func numberColumn(get func(col string) (any, bool), col string) (float64, error) {
	v, ok := get(col)
	if !ok {
		return 0, fmt.Errorf("missing %q", col)
	}

	var (
		f   float64
		err error
	)
	switch n := v.(type) {
	case json.Number:
		f, err = n.Float64()
	case float64:
		f = n
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		err = fmt.Errorf("unexpected type %T", v)
	}
	if err != nil {
		return 0, fmt.Errorf("bad %q: %w", col, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("bad %q: not a finite number", col)
	}
	return f, nil
}

func percentColumn(get func(col string) (any, bool), col string) (float64, error) {
	f, err := numberColumn(get, col)
	if err != nil {
		return 0, err
	}
	if f < 0 || f > 100 {
		return 0, fmt.Errorf("%q out of range 0-100: %v", col, f)
	}
	return f, nil
}
