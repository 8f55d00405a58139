package trace

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
)

// DefaultPreamble is the number of header lines at the top of a device log.
const DefaultPreamble = 2

// Row is one record of the device log.
type Row struct {
	DeviceID  int
	X, Y      int
	Unit      string
	MarkerID  int
	Timestamp uint64
	// Line is the physical line in the log, or 0 for rows built in code.
	Line int
}

// Log is an ingested device log.
type Log struct {
	Devices []*Device
	// Rows is the number of log rows ingested.
	Rows int
}

// Device returns the device with the given ID or nil.
func (l *Log) Device(id int) *Device {
	for _, d := range l.Devices {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// Origin records the earliest first-event timestamp of a device and which
// unit produced it. Every unit series starts at this timestamp.
type Origin struct {
	Timestamp uint64   `json:"ts"`
	Unit      string   `json:"unit"`
	Location  Location `json:"location"`
}

// Device groups the series of one device.
type Device struct {
	ID     int
	Origin Origin
	// Locations holds the physical locations in first-seen order.
	Locations []*LocationData
	// Aggregate is the whole-device view, set by BuildDeviceView.
	Aggregate *LocationData
}

// Location returns the physical location data for loc, or the aggregate view
// for DeviceLocation.
func (d *Device) Location(loc Location) *LocationData {
	if loc == DeviceLocation {
		return d.Aggregate
	}
	for _, l := range d.Locations {
		if l.Location == loc {
			return l
		}
	}
	return nil
}

// SortedLocations returns the physical locations ordered by Location.Less.
func (d *Device) SortedLocations() []Location {
	locs := make([]Location, 0, len(d.Locations))
	for _, l := range d.Locations {
		locs = append(locs, l.Location)
	}
	sort.Slice(locs, func(i, j int) bool { return locs[i].Less(locs[j]) })
	return locs
}

// LocationData holds the unit series of one location.
type LocationData struct {
	Location Location
	Units    []*UnitData
}

// Unit returns the series for name or nil.
func (l *LocationData) Unit(name string) *UnitData {
	if l == nil {
		return nil
	}
	for _, u := range l.Units {
		if u.Name == name {
			return u
		}
	}
	return nil
}

func (l *LocationData) unitOrAdd(name string) *UnitData {
	if u := l.Unit(name); u != nil {
		return u
	}
	u := &UnitData{Name: name}
	l.Units = append(l.Units, u)
	return u
}

// UnitData is the series of one unit.
type UnitData struct {
	Name   string
	Series Timeseries
}

// ReadLog parses and ingests a device log and builds all views.
func ReadLog(r io.Reader, preamble int) (*Log, error) {
	rows, err := ReadRows(r, preamble)
	if err != nil {
		return nil, err
	}
	l, err := Ingest(rows)
	if err != nil {
		return nil, err
	}
	for _, d := range l.Devices {
		Build(d)
	}
	return l, nil
}

// ReadRows reads comma separated rows, skipping the first preamble records.
func ReadRows(r io.Reader, preamble int) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var rows []Row
	for n := 0; ; n++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			line := n + 1
			if errors.As(err, &pe) {
				line = pe.Line
			}
			return nil, &MalformedLogError{Line: line, Err: err}
		}
		if n < preamble {
			continue
		}
		line, _ := cr.FieldPos(0)
		row, err := parseRow(rec, line)
		if err != nil {
			return nil, err
		}
		row.Line = line
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(rec []string, line int) (Row, error) {
	if len(rec) < 6 {
		return Row{}, &MalformedLogError{Line: line, Err: fmt.Errorf("want 6 fields, got %d", len(rec))}
	}
	var (
		row Row
		err error
	)
	field := func(name string, i int, parse func(string) error) {
		if err != nil {
			return
		}
		if perr := parse(strings.TrimSpace(rec[i])); perr != nil {
			err = &MalformedLogError{Line: line, Field: name, Err: perr}
		}
	}
	atoi := func(dst *int) func(string) error {
		return func(s string) (e error) {
			*dst, e = strconv.Atoi(s)
			return e
		}
	}
	field("device", 0, atoi(&row.DeviceID))
	field("x", 1, atoi(&row.X))
	field("y", 2, atoi(&row.Y))
	field("unit", 3, func(s string) error {
		row.Unit = s
		return nil
	})
	field("marker", 4, atoi(&row.MarkerID))
	field("timestamp", 5, func(s string) (e error) {
		row.Timestamp, e = strconv.ParseUint(s, 10, 64)
		return e
	})
	return row, err
}

// Ingest groups rows into devices, locations and units, keeping first-seen
// order at every level. Series are left unsorted; see Build.
func Ingest(rows []Row) (*Log, error) {
	out := &Log{Rows: len(rows)}
	devices := map[int]*Device{}
	for i, r := range rows {
		line := r.Line
		if line == 0 {
			line = i + 1
		}
		if strings.TrimSpace(r.Unit) == "" {
			return nil, &MalformedLogError{Line: line, Field: "unit", Err: errors.New("empty unit name")}
		}
		if r.MarkerID < 0 {
			return nil, &MalformedLogError{Line: line, Field: "marker", Err: fmt.Errorf("negative marker %d", r.MarkerID)}
		}
		loc := Location{X: r.X, Y: r.Y}
		if loc.IsReserved() {
			return nil, fmt.Errorf("%w: line %d: location %s", ErrReservedLocation, line, loc)
		}
		if r.Unit == AllUnits {
			return nil, fmt.Errorf("%w: line %d: unit name %q", ErrReservedLocation, line, r.Unit)
		}

		d, ok := devices[r.DeviceID]
		if !ok {
			d = &Device{ID: r.DeviceID}
			devices[r.DeviceID] = d
			out.Devices = append(out.Devices, d)
		}
		ld := d.Location(loc)
		if ld == nil {
			ld = &LocationData{Location: loc}
			d.Locations = append(d.Locations, ld)
		}
		u := ld.unitOrAdd(r.Unit)
		u.Series = append(u.Series, TimerEvent{
			DeviceID:  r.DeviceID,
			Location:  loc,
			Unit:      r.Unit,
			MarkerID:  r.MarkerID,
			Timestamp: r.Timestamp,
		})
	}
	log.Printf("Ingested %d rows into %d devices", len(rows), len(out.Devices))
	return out, nil
}
