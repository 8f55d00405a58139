package analyzer

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/ZephyrDeng/devprof-analyzer-mcp/trace"
)

// Report 将分析结果格式化为 text、markdown、json、flamegraph-json 或 csv。
func Report(res *Result, disp Display, format string) (string, error) {
	log.Printf("Formatting analysis report (%d devices, Format: %s)", len(res.Devices), format)

	switch format {
	case "text", "markdown": // 两者使用相同的文本格式
		var b strings.Builder
		if format == "markdown" {
			b.WriteString("```text\n") // 使用文本块以获得更好的对齐效果
		}
		writeTextReport(&b, buildReport(res, disp))
		if format == "markdown" {
			b.WriteString("```\n")
		}
		return b.String(), nil

	case "json":
		jsonBytes, err := json.MarshalIndent(buildReport(res, disp), "", "  ")
		if err != nil {
			log.Printf("Error marshaling analysis report to JSON: %v", err)
			return errorJSON(fmt.Sprintf("Failed to marshal result to JSON: %v", err)), nil // 返回错误信息，但不标记为分析错误
		}
		return string(jsonBytes), nil

	case "flamegraph-json":
		root, err := BuildFlameGraphTree(ToProfile(res), ProfileDurationIndex)
		if err != nil {
			log.Printf("Error building flame graph tree: %v", err)
			return errorJSON(fmt.Sprintf("Failed to build flame graph tree: %v", err)), nil
		}
		jsonBytes, err := json.Marshal(root) // 使用 Marshal 生成紧凑 JSON
		if err != nil {
			log.Printf("Error marshaling flame graph tree to JSON: %v", err)
			return errorJSON(fmt.Sprintf("Failed to marshal flame graph tree to JSON: %v", err)), nil
		}
		return string(jsonBytes), nil

	case "csv":
		var b strings.Builder
		if err := writeCSVReport(&b, res, disp); err != nil {
			return "", fmt.Errorf("write csv report: %w", err)
		}
		return b.String(), nil

	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

func errorJSON(msg string) string {
	b, _ := json.Marshal(ErrorResult{Error: msg})
	return string(b)
}

// buildReport 汇总 Result 中展示所需的部分。
func buildReport(res *Result, disp Display) AnalysisReport {
	rep := AnalysisReport{DisplayStats: disp.stats(), Devices: make([]DeviceReport, 0, len(res.Devices))}
	for _, s := range res.Specs {
		rep.Analyses = append(rep.Analyses, s.Name)
	}

	for _, dr := range res.Devices {
		devRep := DeviceReport{
			Device:         dr.ID,
			Origin:         dr.Origin,
			Locations:      len(dr.Locations),
			Summary:        dr.Summary,
			Analyses:       []AnalysisStat{},
			Spreads:        map[string][]LocationSpread{},
			TimelineErrors: dr.TimelineErrors,
		}
		views := append(append([]*LocationResult(nil), dr.Locations...), dr.Device)
		for _, spec := range res.Specs {
			for _, lr := range views {
				if lr == nil {
					continue
				}
				for _, ur := range lr.Units {
					ar, ok := ur.Analysis[spec.Name]
					if !ok || ar.Stats == nil {
						continue
					}
					devRep.Analyses = append(devRep.Analyses, newAnalysisStat(spec, lr.Location, ur.Unit, ar.Stats, disp))
					if spec.Scope != trace.ScopeDevice {
						devRep.Spreads[spec.Name] = append(devRep.Spreads[spec.Name], LocationSpread{
							Location: lr.Location.String(),
							Unit:     ur.Unit,
							Count:    ar.Stats.Count,
							Median:   ar.Stats.Median,
							Spread:   ar.Stats.Range / 2,
						})
					}
				}
			}
		}
		for _, tl := range dr.Timelines {
			devRep.Timelines = append(devRep.Timelines, TimelineSummary{Unit: tl.Unit, Locations: len(tl.Locations), Columns: len(tl.Columns)})
		}
		rep.Devices = append(rep.Devices, devRep)
	}
	return rep
}

func newAnalysisStat(spec trace.AnalysisSpec, loc trace.Location, unit string, s *trace.StatSummary, disp Display) AnalysisStat {
	st := AnalysisStat{
		Name:      spec.Name,
		Scope:     spec.Scope,
		Location:  loc.String(),
		Unit:      unit,
		Stats:     map[string]float64{},
		Formatted: map[string]string{},
		Summary:   s,
	}
	if s.Count == 1 {
		d := s.Max
		st.Duration = &d
	}
	for _, name := range disp.stats() {
		v, ok := s.Stat(name)
		if !ok {
			continue
		}
		st.Stats[name] = v
		st.Formatted[name] = FormatStat(name, v)
	}
	return st
}

func writeTextReport(b *strings.Builder, rep AnalysisReport) {
	for _, dev := range rep.Devices {
		b.WriteString(fmt.Sprintf("Device %d Analysis\n", dev.Device))
		b.WriteString(fmt.Sprintf("Origin: %s at %s %s\n", FormatCycles(dev.Origin.Timestamp), dev.Origin.Location, dev.Origin.Unit))
		b.WriteString(fmt.Sprintf("Locations: %d\n", dev.Locations))

		for _, name := range rep.Analyses {
			s := dev.Summary[name]
			if s == nil {
				continue
			}
			b.WriteString(fmt.Sprintf("\n=================== %s ===================\n", name))
			if s.Count > 1 {
				for _, stat := range rep.DisplayStats {
					v, ok := s.Stat(stat)
					if !ok {
						continue
					}
					b.WriteString(fmt.Sprintf("%12s [cycles] = %12s\n", stat, FormatNumber(v)))
				}
			} else {
				b.WriteString(fmt.Sprintf("%12s [cycles] = %12s\n", "Duration", FormatNumber(float64(s.Max))))
			}
			if spreads := dev.Spreads[name]; len(spreads) > 0 {
				b.WriteString("\n")
				b.WriteString(fmt.Sprintf("  %-10s %-8s %s\n", "Location", "Unit", "Median±Spread"))
				for _, sp := range spreads {
					b.WriteString(fmt.Sprintf("  %-10s %-8s %s\n", sp.Location, sp.Unit, FormatSpread(sp.Median, sp.Spread, sp.Count)))
				}
			}
		}

		if len(dev.Timelines) > 0 || len(dev.TimelineErrors) > 0 {
			b.WriteString("\nTimelines:\n")
			for _, tl := range dev.Timelines {
				b.WriteString(fmt.Sprintf("  %-8s %d locations, %d columns\n", tl.Unit, tl.Locations, tl.Columns))
			}
			for _, unit := range sortedKeys(dev.TimelineErrors) {
				b.WriteString(fmt.Sprintf("  %-8s dropped: %s\n", unit, dev.TimelineErrors[unit]))
			}
		}
		b.WriteString("--------------------------------------------------\n")
	}
}
