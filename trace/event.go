// Package trace holds the device profile event model: timer events as they
// come out of the device log, the per-unit/per-location/per-device series
// built from them, and the duration and alignment types derived later.
package trace

import (
	"encoding/json"
	"fmt"
	"strings"
)

// AllUnits is the synthetic unit name of a location's merged series.
const AllUnits = "ALL"

// Location is the (x, y) coordinate of the block hosting one or more units.
// Negative coordinates are reserved for aggregates.
type Location struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// DeviceLocation is the synthetic location holding the whole-device view.
var DeviceLocation = Location{X: -1, Y: -1}

// IsReserved reports whether l can not appear in a raw log.
func (l Location) IsReserved() bool {
	return l.X < 0 || l.Y < 0
}

// Less orders locations row by row (y first, then x).
func (l Location) Less(o Location) bool {
	if l.Y != o.Y {
		return l.Y < o.Y
	}
	return l.X < o.X
}

func (l Location) String() string {
	if l == DeviceLocation {
		return "DEVICE"
	}
	return fmt.Sprintf("(%d,%d)", l.X, l.Y)
}

// TagKind discriminates Tag.
type TagKind uint8

const (
	TagUnit TagKind = iota + 1
	TagLocation
)

// Tag is a piece of origin metadata attached to an event when series are merged.
type Tag struct {
	Kind     TagKind
	Unit     string
	Location Location
}

// UnitTag tags an event with the unit it came from.
func UnitTag(unit string) Tag { return Tag{Kind: TagUnit, Unit: unit} }

// LocationTag tags an event with the location it came from.
func LocationTag(loc Location) Tag { return Tag{Kind: TagLocation, Location: loc} }

// MarshalJSON writes a unit tag as a string and a location tag as [x, y].
func (t Tag) MarshalJSON() ([]byte, error) {
	switch t.Kind {
	case TagUnit:
		return json.Marshal(t.Unit)
	case TagLocation:
		return json.Marshal([2]int{t.Location.X, t.Location.Y})
	}
	return []byte("null"), nil
}

func (t Tag) String() string {
	switch t.Kind {
	case TagUnit:
		return t.Unit
	case TagLocation:
		return t.Location.String()
	}
	return ""
}

// TimerEvent is one timestamped marker emitted by a unit.
type TimerEvent struct {
	DeviceID  int      `json:"device"`
	Location  Location `json:"location"`
	Unit      string   `json:"unit"`
	MarkerID  int      `json:"marker"`
	Timestamp uint64   `json:"ts"`
	Tags      []Tag    `json:"tags,omitempty"`
}

// withTag returns a copy of e with t appended. The tag slice is never shared.
func (e TimerEvent) withTag(t Tag) TimerEvent {
	tags := make([]Tag, len(e.Tags), len(e.Tags)+1)
	copy(tags, e.Tags)
	e.Tags = append(tags, t)
	return e
}

// TaggedUnit returns the unit recorded in the event tags, if any.
func (e TimerEvent) TaggedUnit() (string, bool) {
	for _, t := range e.Tags {
		if t.Kind == TagUnit {
			return t.Unit, true
		}
	}
	return "", false
}

// TaggedLocation returns the location recorded in the event tags, if any.
func (e TimerEvent) TaggedLocation() (Location, bool) {
	for _, t := range e.Tags {
		if t.Kind == TagLocation {
			return t.Location, true
		}
	}
	return Location{}, false
}

// Key builds the marker key of e: its marker ID plus the origin tags.
func (e TimerEvent) Key() MarkerKey {
	k := MarkerKey{ID: e.MarkerID}
	if u, ok := e.TaggedUnit(); ok {
		k.Unit, k.HasUnit = u, true
	}
	if l, ok := e.TaggedLocation(); ok {
		k.Location, k.HasLocation = l, true
	}
	return k
}

// Timeseries is an ordered sequence of events for one (device, location, unit).
type Timeseries []TimerEvent

// IsSorted reports whether timestamps never decrease.
func (s Timeseries) IsSorted() bool {
	for i := 1; i < len(s); i++ {
		if s[i].Timestamp < s[i-1].Timestamp {
			return false
		}
	}
	return true
}

// FilterUnit extracts the events a merged location series received from unit,
// with the unit tag removed again.
func (s Timeseries) FilterUnit(unit string) Timeseries {
	var out Timeseries
	for _, e := range s {
		u, ok := e.TaggedUnit()
		if !ok || u != unit {
			continue
		}
		var tags []Tag
		for _, t := range e.Tags {
			if t.Kind != TagUnit {
				tags = append(tags, t)
			}
		}
		e.Tags = tags
		out = append(out, e)
	}
	return out
}

// MarkerKey identifies a marker together with the metadata that
// disambiguates reuse of the same ID by different units or locations.
type MarkerKey struct {
	ID          int      `json:"id"`
	Unit        string   `json:"unit,omitempty"`
	Location    Location `json:"location"`
	HasUnit     bool     `json:"hasUnit,omitempty"`
	HasLocation bool     `json:"hasLocation,omitempty"`
}

func (k MarkerKey) String() string {
	return k.Label(nil)
}

// Label renders k, replacing the marker ID with its display label when known.
func (k MarkerKey) Label(labels map[int]string) string {
	parts := []string{fmt.Sprintf("%d", k.ID)}
	if l, ok := labels[k.ID]; ok {
		parts[0] = l
	}
	if k.HasUnit {
		parts = append(parts, k.Unit)
	}
	if k.HasLocation {
		parts = append(parts, k.Location.String())
	}
	return strings.Join(parts, ",")
}

// DurationType is the (start, end) key a duration record is filed under.
type DurationType struct {
	Start MarkerKey `json:"start"`
	End   MarkerKey `json:"end"`
}

func (d DurationType) String() string {
	return d.Start.String() + "->" + d.End.String()
}

// Label renders d with display labels.
func (d DurationType) Label(labels map[int]string) string {
	return d.Start.Label(labels) + "->" + d.End.Label(labels)
}

// DurationRecord is one matched start/end pair.
type DurationRecord struct {
	Type    DurationType `json:"type"`
	StartTS uint64       `json:"start"`
	EndTS   uint64       `json:"end"`
	Value   uint64       `json:"value"`
}

// NewDurationRecord builds a record; end must not precede start.
func NewDurationRecord(t DurationType, start, end uint64) DurationRecord {
	return DurationRecord{Type: t, StartTS: start, EndTS: end, Value: end - start}
}

// OrderEntry points at the Index-th record of Type.
type OrderEntry struct {
	Type  DurationType `json:"type"`
	Index int          `json:"index"`
}
