package analyzer

import (
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
)

// TimelineReport 将对齐后的时间线格式化为 text、markdown 或 json。
// unit 非空时只输出该单元类型的时间线。
func TimelineReport(res *Result, disp Display, unit, format string) (string, error) {
	entries := buildTimelineEntries(res, disp, unit)
	log.Printf("Formatting %d timelines (Format: %s)", len(entries), format)

	switch format {
	case "text", "markdown":
		var b strings.Builder
		if format == "markdown" {
			b.WriteString("```text\n")
		}
		if len(entries) == 0 {
			b.WriteString("No timelines available.\n")
		}
		for i, e := range entries {
			writeTextTimeline(&b, e, res.Devices, i)
		}
		if format == "markdown" {
			b.WriteString("```\n")
		}
		return b.String(), nil

	case "json":
		jsonBytes, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			log.Printf("Error marshaling timelines to JSON: %v", err)
			return errorJSON(fmt.Sprintf("Failed to marshal timelines to JSON: %v", err)), nil
		}
		return string(jsonBytes), nil

	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

func buildTimelineEntries(res *Result, disp Display, unit string) []TimelineReportEntry {
	entries := []TimelineReportEntry{}
	for _, dr := range res.Devices {
		for _, tl := range dr.Timelines {
			if unit != "" && tl.Unit != unit {
				continue
			}
			e := TimelineReportEntry{Device: dr.ID, Unit: tl.Unit, Columns: make([]TimelineColumnReport, 0, len(tl.Columns))}
			for _, loc := range tl.Locations {
				e.Locations = append(e.Locations, loc.String())
			}
			for _, c := range tl.Columns {
				e.Columns = append(e.Columns, TimelineColumnReport{Label: c.Type.Label(disp.MarkerLabels), Values: c.Values})
			}
			entries = append(entries, e)
		}
	}
	return entries
}

// writeTextTimeline prints one timeline as a location x column table. Cells
// of locations that did not take part in a column show "-".
func writeTextTimeline(b *strings.Builder, e TimelineReportEntry, devices []*DeviceResult, idx int) {
	if idx > 0 {
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("Device %d timeline: %s (%d locations, %d columns)\n", e.Device, e.Unit, len(e.Locations), len(e.Columns)))
	b.WriteString("Columns:\n")
	for i, c := range e.Columns {
		b.WriteString(fmt.Sprintf("  [%d] %s\n", i, c.Label))
	}

	participates := participation(devices, e)
	b.WriteString(fmt.Sprintf("%-10s", "Location"))
	for i := range e.Columns {
		b.WriteString(fmt.Sprintf(" %12s", fmt.Sprintf("[%d]", i)))
	}
	b.WriteString("\n")
	for li, loc := range e.Locations {
		b.WriteString(fmt.Sprintf("%-10s", loc))
		for ci, c := range e.Columns {
			cell := "-"
			if row := participates[ci]; li < len(row) && row[li] {
				cell = FormatNumber(float64(c.Values[li]))
			}
			b.WriteString(fmt.Sprintf(" %12s", cell))
		}
		b.WriteString("\n")
	}
}

// participation looks the timeline of e back up to recover which locations
// took part in each column; a participant may have a zero value.
func participation(devices []*DeviceResult, e TimelineReportEntry) [][]bool {
	out := make([][]bool, len(e.Columns))
	for _, dr := range devices {
		if dr.ID != e.Device {
			continue
		}
		for _, tl := range dr.Timelines {
			if tl.Unit != e.Unit {
				continue
			}
			for ci, c := range tl.Columns {
				row := make([]bool, len(tl.Locations))
				for li, loc := range tl.Locations {
					row[li] = c.Has(loc)
				}
				out[ci] = row
			}
		}
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
