package analyzer

import (
	"github.com/ZephyrDeng/devprof-analyzer-mcp/trace"
)

// IntervalResult holds the records matched by one analysis on one series.
// Order[i] describes Records[i].
type IntervalResult struct {
	Records []trace.DurationRecord `json:"records"`
	Order   []trace.OrderEntry     `json:"order"`
}

// Entries implements Sequence.
func (r *IntervalResult) Entries() []trace.OrderEntry { return r.Order }

// Value implements Sequence.
func (r *IntervalResult) Value(i int) uint64 { return r.Records[i].Value }

func (r *IntervalResult) add(start, end trace.TimerEvent) {
	t := trace.DurationType{
		Start: trace.MarkerKey{ID: start.MarkerID},
		End:   trace.MarkerKey{ID: end.MarkerID},
	}
	idx := 0
	for _, o := range r.Order {
		if o.Type == t {
			idx++
		}
	}
	r.Records = append(r.Records, trace.NewDurationRecord(t, start.Timestamp, end.Timestamp))
	r.Order = append(r.Order, trace.OrderEntry{Type: t, Index: idx})
}

// matchKey is the (marker, location, unit) triple compared when matching.
type matchKey struct {
	marker int
	unit   string
	loc    trace.LocationSelector
}

func desiredKey(m trace.MarkerSpec) matchKey {
	return matchKey{marker: m.Marker, unit: m.Unit, loc: m.Location}
}

// eventKey resolves e against m. Wildcard fields keep the literal from m so
// they always compare equal; other fields are overridden by the event tags.
func eventKey(e trace.TimerEvent, m trace.MarkerSpec) matchKey {
	k := matchKey{marker: e.MarkerID, unit: m.Unit, loc: m.Location}
	if m.Unit != trace.AnyUnit {
		if u, ok := e.TaggedUnit(); ok {
			k.unit = u
		}
	}
	if !m.Location.Wildcard() {
		if l, ok := e.TaggedLocation(); ok {
			k.loc = trace.At(l.X, l.Y)
		}
	}
	return k
}

// AnalyzeSeries matches spec against series.
//
// In paired mode every start is paired with the next end; a second start
// before an end replaces the first one, which is dropped. In span mode the
// first start is paired with the last end found after it, giving at most one
// record. A pattern that never matches yields an empty result.
func AnalyzeSeries(series trace.Timeseries, spec trace.AnalysisSpec) *IntervalResult {
	desStart, desEnd := desiredKey(spec.Start), desiredKey(spec.End)
	opens := func(e trace.TimerEvent) bool { return eventKey(e, spec.Start) == desStart }
	closes := func(e trace.TimerEvent) bool { return eventKey(e, spec.End) == desEnd }

	res := &IntervalResult{}
	switch spec.Mode {
	case trace.ModeSpan:
		start := -1
		for i, e := range series {
			if opens(e) {
				start = i
				break
			}
		}
		if start < 0 {
			return res
		}
		for i := len(series) - 1; i > start; i-- {
			if closes(series[i]) {
				res.add(series[start], series[i])
				break
			}
		}
	default:
		open := -1
		for i, e := range series {
			if open < 0 {
				if opens(e) {
					open = i
				}
				continue
			}
			if closes(e) {
				res.add(series[open], e)
				open = -1
			} else if opens(e) {
				open = i
			}
		}
	}
	return res
}
