package trace_test

import (
	"reflect"
	"testing"

	"github.com/ZephyrDeng/devprof-analyzer-mcp/trace"
)

func buildDevice(t *testing.T, rows []trace.Row) *trace.Device {
	t.Helper()
	l, err := trace.Ingest(rows)
	if err != nil {
		t.Fatalf("Error ingesting rows: %v", err)
	}
	d := l.Devices[0]
	trace.Build(d)
	return d
}

func testRows() []trace.Row {
	return []trace.Row{
		{DeviceID: 0, X: 1, Y: 1, Unit: "BRISC", MarkerID: 4, Timestamp: 90},
		{DeviceID: 0, X: 1, Y: 1, Unit: "BRISC", MarkerID: 1, Timestamp: 20},
		{DeviceID: 0, X: 1, Y: 1, Unit: "BRISC", MarkerID: 2, Timestamp: 20},
		{DeviceID: 0, X: 1, Y: 1, Unit: "NCRISC", MarkerID: 1, Timestamp: 20},
		{DeviceID: 0, X: 1, Y: 1, Unit: "NCRISC", MarkerID: 4, Timestamp: 60},
		{DeviceID: 0, X: 2, Y: 1, Unit: "BRISC", MarkerID: 1, Timestamp: 15},
		{DeviceID: 0, X: 2, Y: 1, Unit: "BRISC", MarkerID: 4, Timestamp: 70},
	}
}

func TestSortAndAnchor(t *testing.T) {
	d := buildDevice(t, testRows())

	if d.Origin != (trace.Origin{Timestamp: 15, Unit: "BRISC", Location: trace.Location{X: 2, Y: 1}}) {
		t.Fatalf("Unexpected origin: %+v", d.Origin)
	}
	for _, ld := range d.Locations {
		for _, u := range ld.Units {
			if !u.Series.IsSorted() {
				t.Errorf("Series %s/%s is not sorted", ld.Location, u.Name)
			}
			if u.Series[0].MarkerID != 0 || u.Series[0].Timestamp != 15 {
				t.Errorf("Series %s/%s does not start with the origin marker: %+v", ld.Location, u.Name, u.Series[0])
			}
		}
	}

	// Equal timestamps keep log order: marker 1 was logged before marker 2.
	brisc := d.Location(trace.Location{X: 1, Y: 1}).Unit("BRISC").Series
	var markers []int
	for _, e := range brisc {
		markers = append(markers, e.MarkerID)
	}
	if want := []int{0, 1, 2, 4}; !reflect.DeepEqual(markers, want) {
		t.Errorf("Expected markers %v, got %v", want, markers)
	}
}

func TestSortAndAnchorSkipsEmptyUnits(t *testing.T) {
	l, err := trace.Ingest(testRows())
	if err != nil {
		t.Fatalf("Error ingesting rows: %v", err)
	}
	d := l.Devices[0]
	d.Locations[0].Units = append(d.Locations[0].Units, &trace.UnitData{Name: "TRISC0"})
	trace.Build(d)
	if d.Locations[0].Unit("TRISC0") != nil {
		t.Errorf("Expected empty unit to be dropped")
	}
}

func TestLocationViewRoundTrip(t *testing.T) {
	d := buildDevice(t, testRows())
	for _, ld := range d.Locations {
		all := ld.Unit(trace.AllUnits)
		if all == nil {
			t.Fatalf("Location %s has no merged series", ld.Location)
		}
		if !all.Series.IsSorted() {
			t.Errorf("Merged series at %s is not sorted", ld.Location)
		}
		for _, u := range ld.Units {
			if u.Name == trace.AllUnits {
				continue
			}
			got := all.Series.FilterUnit(u.Name)
			if !reflect.DeepEqual(got, u.Series) {
				t.Errorf("Round trip for %s/%s:\n got  %+v\n want %+v", ld.Location, u.Name, got, u.Series)
			}
		}
	}
}

func TestLocationViewTieOrder(t *testing.T) {
	d := buildDevice(t, testRows())
	all := d.Location(trace.Location{X: 1, Y: 1}).Unit(trace.AllUnits).Series
	// At t=20 BRISC is iterated before NCRISC.
	var at20 []string
	for _, e := range all {
		if e.Timestamp == 20 {
			u, _ := e.TaggedUnit()
			at20 = append(at20, u)
		}
	}
	if want := []string{"BRISC", "BRISC", "NCRISC"}; !reflect.DeepEqual(at20, want) {
		t.Errorf("Expected tie order %v, got %v", want, at20)
	}
}

func TestDeviceView(t *testing.T) {
	d := buildDevice(t, testRows())
	if d.Aggregate == nil || d.Aggregate.Location != trace.DeviceLocation {
		t.Fatalf("Expected device aggregate at %s", trace.DeviceLocation)
	}
	brisc := d.Aggregate.Unit("BRISC")
	if brisc == nil {
		t.Fatalf("Expected BRISC series in device view")
	}
	if len(brisc.Series) != 4+3 {
		t.Errorf("Expected 7 BRISC events, got %d", len(brisc.Series))
	}
	for _, e := range brisc.Series {
		loc, ok := e.TaggedLocation()
		if !ok {
			t.Fatalf("Event without location tag: %+v", e)
		}
		if e.MarkerID == 0 && loc != d.Origin.Location {
			t.Errorf("Marker 0 should carry origin location %s, got %s", d.Origin.Location, loc)
		}
		if e.MarkerID != 0 && loc != e.Location {
			t.Errorf("Event tagged %s but came from %s", loc, e.Location)
		}
	}

	all := d.Aggregate.Unit(trace.AllUnits)
	if all == nil {
		t.Fatalf("Expected merged series in device view")
	}
	for _, e := range all.Series[1:] {
		if _, ok := e.TaggedUnit(); !ok {
			t.Errorf("Merged event lost its unit tag: %+v", e)
		}
		if _, ok := e.TaggedLocation(); !ok {
			t.Errorf("Merged event lost its location tag: %+v", e)
		}
	}
	if !all.Series.IsSorted() {
		t.Errorf("Device merged series is not sorted")
	}
}
