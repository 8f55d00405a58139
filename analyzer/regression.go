package analyzer

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/google/pprof/profile"
)

// Regression is the change of the mean duration of one analysis on one
// series between a baseline and a current profile.
type Regression struct {
	Device        int64   `json:"device"`
	Location      string  `json:"location"`
	Unit          string  `json:"unit"`
	Analysis      string  `json:"analysis"`
	OldMean       float64 `json:"oldMean"`
	NewMean       float64 `json:"newMean"`
	Growth        float64 `json:"growth"`        // NewMean - OldMean, cycles
	GrowthPercent float64 `json:"growthPercent"` // 100 when the series is new
	OldCount      int64   `json:"oldCount"`
	NewCount      int64   `json:"newCount"`
}

type seriesKey struct {
	device                   int64
	location, unit, analysis string
}

func (k seriesKey) String() string {
	return fmt.Sprintf("device %d %s %s %s", k.device, k.location, k.unit, k.analysis)
}

type seriesTotal struct {
	sum, count int64
}

func (t seriesTotal) mean() float64 {
	if t.count == 0 {
		return 0
	}
	return float64(t.sum) / float64(t.count)
}

// aggregateDurations sums the duration and instance values of a profile
// written by ToProfile per (device, location, unit, analysis).
func aggregateDurations(p *profile.Profile, which string) (map[seriesKey]seriesTotal, error) {
	durIdx, cntIdx := -1, -1
	for i, st := range p.SampleType {
		if st.Type == "duration" && st.Unit == "cycles" {
			durIdx = i
		}
		if st.Type == "instances" && st.Unit == "count" {
			cntIdx = i
		}
	}
	if durIdx == -1 {
		return nil, fmt.Errorf("could not find duration sample type in the %s profile", which)
	}

	out := make(map[seriesKey]seriesTotal)
	for _, s := range p.Sample {
		if len(s.Value) <= durIdx {
			continue
		}
		k := seriesKey{
			location: firstLabel(s, "location"),
			unit:     firstLabel(s, "unit"),
			analysis: firstLabel(s, "analysis"),
		}
		if d := s.NumLabel["device"]; len(d) > 0 {
			k.device = d[0]
		}
		t := out[k]
		t.sum += s.Value[durIdx]
		if cntIdx >= 0 && len(s.Value) > cntIdx {
			t.count += s.Value[cntIdx]
		} else {
			t.count++
		}
		out[k] = t
	}
	return out, nil
}

func firstLabel(s *profile.Sample, key string) string {
	if v := s.Label[key]; len(v) > 0 {
		return v[0]
	}
	return "unknown"
}

// FindRegressions compares two device profiles and returns the series whose
// mean duration grew by at least threshold (0.1 = 10%), largest growth
// first. Series missing from cur are ignored.
func FindRegressions(base, cur *profile.Profile, threshold float64) ([]Regression, error) {
	if threshold <= 0 {
		threshold = 0.1 // Default threshold: 10% growth
	}
	oldTotals, err := aggregateDurations(base, "baseline")
	if err != nil {
		return nil, err
	}
	newTotals, err := aggregateDurations(cur, "current")
	if err != nil {
		return nil, err
	}

	type keyed struct {
		key seriesKey
		reg Regression
	}
	var found []keyed
	for k, nt := range newTotals {
		ot := oldTotals[k]
		oldMean, newMean := ot.mean(), nt.mean()
		growth := newMean - oldMean
		growthPct := 0.0
		if oldMean > 0 {
			growthPct = growth / oldMean * 100
		} else if growth > 0 {
			growthPct = 100.0 // New series
		}
		if growthPct < threshold*100 {
			continue
		}
		found = append(found, keyed{key: k, reg: Regression{
			Device:        k.device,
			Location:      k.location,
			Unit:          k.unit,
			Analysis:      k.analysis,
			OldMean:       oldMean,
			NewMean:       newMean,
			Growth:        growth,
			GrowthPercent: growthPct,
			OldCount:      ot.count,
			NewCount:      nt.count,
		}})
	}

	sort.Slice(found, func(i, j int) bool {
		if found[i].reg.Growth != found[j].reg.Growth {
			return found[i].reg.Growth > found[j].reg.Growth
		}
		return found[i].key.String() < found[j].key.String()
	})

	regs := make([]Regression, len(found))
	for i, f := range found {
		regs[i] = f.reg
	}
	return regs, nil
}

// DetectRegressions formats FindRegressions as text, markdown or json,
// listing at most limit series.
func DetectRegressions(base, cur *profile.Profile, threshold float64, limit int, format string) (string, error) {
	if threshold <= 0 {
		threshold = 0.1
	}
	if limit <= 0 {
		limit = 10 // Default: show top 10 regressions
	}
	regs, err := FindRegressions(base, cur, threshold)
	if err != nil {
		return "", err
	}
	log.Printf("Found %d duration regressions (threshold %.1f%%)", len(regs), threshold*100)
	if len(regs) > limit {
		regs = regs[:limit]
	}

	switch format {
	case "json":
		jsonBytes, err := json.MarshalIndent(regs, "", "  ")
		if err != nil {
			return errorJSON(fmt.Sprintf("Failed to marshal regressions to JSON: %v", err)), nil
		}
		return string(jsonBytes), nil
	case "text", "markdown":
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}

	var b strings.Builder
	if format == "markdown" {
		b.WriteString("```text\n")
	}
	b.WriteString("Duration Regression Report\n")
	b.WriteString("==========================\n\n")

	if len(regs) == 0 {
		b.WriteString("No significant duration growth detected.\n")
	} else {
		b.WriteString(fmt.Sprintf("Top %d series with mean duration growth above %.1f%%:\n", len(regs), threshold*100))
		b.WriteString("--------------------------------------------------\n")
		b.WriteString(fmt.Sprintf("%-6s %-10s %-8s %-30s %14s %14s %10s\n",
			"Device", "Location", "Unit", "Analysis", "Old Mean", "New Mean", "Growth %"))
		b.WriteString("--------------------------------------------------\n")
		for _, r := range regs {
			b.WriteString(fmt.Sprintf("%-6d %-10s %-8s %-30s %14s %14s %9.2f%%",
				r.Device, r.Location, r.Unit, r.Analysis,
				FormatNumber(r.OldMean), FormatNumber(r.NewMean), r.GrowthPercent))
			if r.OldCount != r.NewCount {
				b.WriteString(fmt.Sprintf(" (instances: %d → %d)", r.OldCount, r.NewCount))
			}
			b.WriteString("\n")
		}
	}
	if format == "markdown" {
		b.WriteString("```\n")
	}
	return b.String(), nil
}
