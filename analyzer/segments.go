package analyzer

import (
	"github.com/ZephyrDeng/devprof-analyzer-mcp/trace"
)

// Sequence is a location's ordered list of duration instances, as consumed by
// Align. Value(i) is the measured value of Entries()[i].
type Sequence interface {
	Entries() []trace.OrderEntry
	Value(i int) uint64
}

// SegmentSet holds the durations between every pair of adjacent events of a
// series, grouped by type, plus the order they occurred in.
type SegmentSet struct {
	Records map[trace.DurationType][]trace.DurationRecord `json:"-"`
	Order   []trace.OrderEntry                            `json:"order"`
}

// Entries implements Sequence.
func (s *SegmentSet) Entries() []trace.OrderEntry { return s.Order }

// Value implements Sequence.
func (s *SegmentSet) Value(i int) uint64 {
	o := s.Order[i]
	return s.Records[o.Type][o.Index].Value
}

// Segments splits series into adjacent-event durations. Keys keep the event
// tags so merged series distinguish the same marker from different origins.
func Segments(series trace.Timeseries) *SegmentSet {
	set := &SegmentSet{Records: map[trace.DurationType][]trace.DurationRecord{}}
	for i := 1; i < len(series); i++ {
		a, b := series[i-1], series[i]
		t := trace.DurationType{Start: a.Key(), End: b.Key()}
		set.Records[t] = append(set.Records[t], trace.NewDurationRecord(t, a.Timestamp, b.Timestamp))
		set.Order = append(set.Order, trace.OrderEntry{Type: t, Index: len(set.Records[t]) - 1})
	}
	return set
}
