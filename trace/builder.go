package trace

import (
	"log"
	"sort"
)

// Build sorts and anchors every unit series of d, then builds the location
// and device views.
func Build(d *Device) {
	SortAndAnchor(d)
	BuildLocationView(d)
	BuildDeviceView(d)
}

// SortAndAnchor sorts each unit series by timestamp (stable, so rows with
// equal timestamps keep log order), records the device origin and prepends a
// marker-0 event at the origin timestamp to every series. Units without
// events are dropped.
func SortAndAnchor(d *Device) {
	found := false
	for _, ld := range d.Locations {
		units := ld.Units[:0]
		for _, u := range ld.Units {
			if len(u.Series) == 0 {
				log.Printf("Warning: device %d location %s unit %s has no events, skipping", d.ID, ld.Location, u.Name)
				continue
			}
			units = append(units, u)
			sort.SliceStable(u.Series, func(i, j int) bool {
				return u.Series[i].Timestamp < u.Series[j].Timestamp
			})
			if first := u.Series[0].Timestamp; !found || first < d.Origin.Timestamp {
				d.Origin = Origin{Timestamp: first, Unit: u.Name, Location: ld.Location}
				found = true
			}
		}
		ld.Units = units
	}

	for _, ld := range d.Locations {
		for _, u := range ld.Units {
			anchor := TimerEvent{
				DeviceID:  d.ID,
				Location:  ld.Location,
				Unit:      u.Name,
				MarkerID:  0,
				Timestamp: d.Origin.Timestamp,
			}
			u.Series = append(Timeseries{anchor}, u.Series...)
		}
	}
}

// BuildLocationView merges the unit series of every location into a series
// registered under AllUnits, each event tagged with its unit.
func BuildLocationView(d *Device) {
	for _, ld := range d.Locations {
		var merged Timeseries
		for _, u := range ld.Units {
			if u.Name == AllUnits {
				continue
			}
			for _, e := range u.Series {
				merged = append(merged, e.withTag(UnitTag(u.Name)))
			}
		}
		sortStable(merged)
		ld.unitOrAdd(AllUnits).Series = merged
	}
}

// BuildDeviceView merges, per unit name, the series of all locations into the
// device aggregate. Events are tagged with their location; marker-0 events
// all carry the origin location since they stand for the same instant.
func BuildDeviceView(d *Device) {
	agg := &LocationData{Location: DeviceLocation}
	for _, ld := range d.Locations {
		for _, u := range ld.Units {
			dst := agg.unitOrAdd(u.Name)
			for _, e := range u.Series {
				loc := ld.Location
				if e.MarkerID == 0 {
					loc = d.Origin.Location
				}
				dst.Series = append(dst.Series, e.withTag(LocationTag(loc)))
			}
		}
	}
	for _, u := range agg.Units {
		sortStable(u.Series)
	}
	d.Aggregate = agg
}

func sortStable(s Timeseries) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Timestamp < s[j].Timestamp })
}
