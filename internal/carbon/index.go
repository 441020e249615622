// Package carbon holds the grid carbon-intensity reference table and the
// (zone, month) index that the correlator queries.
package carbon

import "time"

// Record is one row of the grid carbon-intensity reference dataset.
type Record struct {
	Zone            string
	ObservedAt      time.Time
	DirectIntensity float64 // gCO2eq/kWh, direct emissions only
	CarbonFreePct   float64
	RenewablePct    float64
}

// MonthOf returns the UTC calendar month of t. Both the index and the
// correlator key on this, so the two can never disagree about which month
// an instant belongs to.
func MonthOf(t time.Time) time.Month {
	return t.UTC().Month()
}

type key struct {
	zone  string
	month time.Month
}

// Index is a read-only lookup over a reference table keyed by zone and
// calendar month. It has no mutation API once built and is safe for
// concurrent use.
type Index struct {
	byKey map[key]Record
	zones []string
	count int
}

// Build indexes records by (zone, UTC month). When the dataset carries more
// than one record for the same zone and month, the first one in dataset
// order wins.
func Build(records []Record) *Index {
	idx := &Index{
		byKey: make(map[key]Record, len(records)),
		count: len(records),
	}

	seenZone := make(map[string]bool)
	for _, r := range records {
		k := key{zone: r.Zone, month: MonthOf(r.ObservedAt)}
		if _, exists := idx.byKey[k]; !exists {
			idx.byKey[k] = r
		}
		if !seenZone[r.Zone] {
			seenZone[r.Zone] = true
			idx.zones = append(idx.zones, r.Zone)
		}
	}

	return idx
}

// Lookup returns the record for zone in the given month. An empty zone or an
// out-of-range month is a miss, not an error.
func (idx *Index) Lookup(zone string, month time.Month) (Record, bool) {
	if idx == nil || zone == "" || month < time.January || month > time.December {
		return Record{}, false
	}
	r, ok := idx.byKey[key{zone: zone, month: month}]
	return r, ok
}

// Zones lists every zone present in the dataset, in first-seen order.
func (idx *Index) Zones() []string {
	if idx == nil {
		return nil
	}
	out := make([]string, len(idx.zones))
	copy(out, idx.zones)
	return out
}

// Len reports how many records were handed to Build, duplicates included.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return idx.count
}
