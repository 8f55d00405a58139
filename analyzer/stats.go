package analyzer

import (
	"sort"

	"github.com/ZephyrDeng/devprof-analyzer-mcp/trace"
)

// Summarize computes summary statistics over record values. It returns nil
// when there are no records.
func Summarize(records []trace.DurationRecord) *trace.StatSummary {
	if len(records) == 0 {
		return nil
	}
	values := make([]float64, 0, len(records))
	s := &trace.StatSummary{
		Count: len(records),
		Max:   records[0].Value,
		Min:   records[0].Value,
		First: records[0].Value,
	}
	for _, r := range records {
		s.Sum += r.Value
		if r.Value > s.Max {
			s.Max = r.Value
		}
		if r.Value < s.Min {
			s.Min = r.Value
		}
		values = append(values, float64(r.Value))
	}
	s.Range = s.Max - s.Min
	s.Average = float64(s.Sum) / float64(s.Count)
	s.Median = median(values)
	return s
}

// RollUp combines per-location summaries of one analysis into a device
// summary. The average is weighted by count; the median is the median of the
// input medians. Nil inputs are skipped and nil is returned if none remain.
func RollUp(summaries []*trace.StatSummary) *trace.StatSummary {
	var out *trace.StatSummary
	var medians []float64
	for _, s := range summaries {
		if s == nil || s.Count == 0 {
			continue
		}
		if out == nil {
			out = &trace.StatSummary{Max: s.Max, Min: s.Min, First: s.First}
		}
		out.Count += s.Count
		out.Sum += s.Sum
		if s.Max > out.Max {
			out.Max = s.Max
		}
		if s.Min < out.Min {
			out.Min = s.Min
		}
		medians = append(medians, s.Median)
	}
	if out == nil {
		return nil
	}
	out.Average = float64(out.Sum) / float64(out.Count)
	out.Range = out.Max - out.Min
	out.Median = median(medians)
	return out
}

func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
