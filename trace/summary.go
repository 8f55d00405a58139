package trace

// Stat display names accepted by StatSummary.Stat.
const (
	StatCount   = "Count"
	StatAverage = "Average"
	StatMax     = "Max"
	StatMin     = "Min"
	StatRange   = "Range"
	StatMedian  = "Median"
	StatSum     = "Sum"
	StatFirst   = "First"
)

// StatNames lists every stat in display order.
var StatNames = []string{StatCount, StatAverage, StatMax, StatMin, StatRange, StatMedian, StatSum, StatFirst}

// StatSummary summarizes the values of a list of duration records.
// First is the value of the earliest emitted record, not the minimum.
type StatSummary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Max     uint64  `json:"max"`
	Min     uint64  `json:"min"`
	Range   uint64  `json:"range"`
	Median  float64 `json:"median"`
	Sum     uint64  `json:"sum"`
	First   uint64  `json:"first"`
}

// Stat looks up a stat by display name.
func (s *StatSummary) Stat(name string) (float64, bool) {
	if s == nil {
		return 0, false
	}
	switch name {
	case StatCount:
		return float64(s.Count), true
	case StatAverage:
		return s.Average, true
	case StatMax:
		return float64(s.Max), true
	case StatMin:
		return float64(s.Min), true
	case StatRange:
		return float64(s.Range), true
	case StatMedian:
		return s.Median, true
	case StatSum:
		return float64(s.Sum), true
	case StatFirst:
		return float64(s.First), true
	}
	return 0, false
}

// AlignmentColumn is one step of a cross-location timeline. Values is
// parallel to the location list of the timeline it belongs to and holds 0
// for locations that did not take part.
type AlignmentColumn struct {
	Type         DurationType `json:"type"`
	Participants []Location   `json:"participants"`
	Values       []uint64     `json:"values"`
}

// Has reports whether loc took part in the column.
func (c AlignmentColumn) Has(loc Location) bool {
	for _, p := range c.Participants {
		if p == loc {
			return true
		}
	}
	return false
}
