package analyzer

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/ZephyrDeng/devprof-analyzer-mcp/trace"
)

// writeCSVReport 按设备输出每个位置、每个单元、每个 marker 的时间戳，
// 时间戳相对于设备原点。同一 marker 出现多次时以空格分隔。
func writeCSVReport(w io.Writer, res *Result, disp Display) error {
	cw := csv.NewWriter(w)
	for _, dr := range res.Devices {
		units, markers := csvColumns(dr)

		if err := cw.Write([]string{"device", strconv.Itoa(dr.ID)}); err != nil {
			return err
		}
		header := []string{"core_x", "core_y"}
		for _, u := range units {
			for _, m := range markers {
				header = append(header, u+" "+markerLabel(m, disp.MarkerLabels))
			}
		}
		if err := cw.Write(header); err != nil {
			return err
		}

		for _, lr := range dr.Locations {
			row := []string{strconv.Itoa(lr.Location.X), strconv.Itoa(lr.Location.Y)}
			for _, u := range units {
				ur := lr.Unit(u)
				for _, m := range markers {
					row = append(row, relativeTimestamps(ur, m, dr.Origin.Timestamp))
				}
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// csvColumns 返回设备上的物理单元 (首次出现顺序) 和 marker ID (升序，不含原点 marker 0)。
func csvColumns(dr *DeviceResult) ([]string, []int) {
	var units []string
	seenUnit := map[string]bool{}
	seenMarker := map[int]bool{}
	var markers []int
	for _, lr := range dr.Locations {
		for _, ur := range lr.Units {
			if ur.Unit == trace.AllUnits {
				continue
			}
			if !seenUnit[ur.Unit] {
				seenUnit[ur.Unit] = true
				units = append(units, ur.Unit)
			}
			for _, e := range ur.Series {
				if e.MarkerID == 0 || seenMarker[e.MarkerID] {
					continue
				}
				seenMarker[e.MarkerID] = true
				markers = append(markers, e.MarkerID)
			}
		}
	}
	sort.Ints(markers)
	return units, markers
}

func markerLabel(id int, labels map[int]string) string {
	if l, ok := labels[id]; ok {
		return l
	}
	return fmt.Sprintf("%d", id)
}

func relativeTimestamps(ur *UnitResult, marker int, origin uint64) string {
	if ur == nil {
		return ""
	}
	var ts []string
	for _, e := range ur.Series {
		if e.MarkerID != marker {
			continue
		}
		var rel uint64
		if e.Timestamp > origin {
			rel = e.Timestamp - origin
		}
		ts = append(ts, strconv.FormatUint(rel, 10))
	}
	return strings.Join(ts, " ")
}
