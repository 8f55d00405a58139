package analyzer

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ZephyrDeng/devprof-analyzer-mcp/trace"
)

// Metric names reported through Observer.
const (
	MetricDevicesAnalyzed  = "devprof_devices_analyzed_total"
	MetricDurationRecords  = "devprof_duration_records_total"
	MetricAlignmentStalls  = "devprof_alignment_stalls_total"
	MetricTimelineColumns  = "devprof_timeline_columns_total"
	MetricDeviceLatency    = "devprof_device_analysis_seconds"
	MetricAnalysisNotFound = "devprof_analysis_no_match_total"
)

// Observer receives pipeline metrics.
type Observer interface {
	IncCounter(name string, v float64)
	ObserveLatency(name string, seconds float64)
}

type nopObserver struct{}

func (nopObserver) IncCounter(string, float64)     {}
func (nopObserver) ObserveLatency(string, float64) {}

// Options tunes Run.
type Options struct {
	// Workers caps how many devices are analyzed at once; 0 means no cap.
	Workers int
	// TimelineUnits lists the unit types to align. Empty means every
	// physical unit seen on the device.
	TimelineUnits []string
	// SkipTimelines disables alignment.
	SkipTimelines bool
	Observer      Observer
}

func (o Options) observer() Observer {
	if o.Observer == nil {
		return nopObserver{}
	}
	return o.Observer
}

// Result is the analysis of a whole log.
type Result struct {
	Specs   []trace.AnalysisSpec `json:"specs"`
	Devices []*DeviceResult      `json:"devices"`
}

// DeviceResult holds everything derived for one device.
type DeviceResult struct {
	ID        int               `json:"id"`
	Origin    trace.Origin      `json:"origin"`
	Locations []*LocationResult `json:"locations"`
	// Device is the whole-device view.
	Device *LocationResult `json:"device"`
	// Summary rolls every unit-level summary up per analysis name.
	Summary        map[string]*trace.StatSummary `json:"summary"`
	Timelines      []*Timeline                   `json:"timelines,omitempty"`
	TimelineErrors map[string]string             `json:"timelineErrors,omitempty"`
}

// LocationResult holds the units of one location.
type LocationResult struct {
	Location trace.Location `json:"location"`
	Units    []*UnitResult  `json:"units"`
}

// Unit returns the unit result for name or nil.
func (l *LocationResult) Unit(name string) *UnitResult {
	if l == nil {
		return nil
	}
	for _, u := range l.Units {
		if u.Unit == name {
			return u
		}
	}
	return nil
}

// UnitResult pairs a series with the analyses that matched on it.
type UnitResult struct {
	Unit     string                     `json:"unit"`
	Series   trace.Timeseries           `json:"timeseries"`
	Analysis map[string]*AnalysisResult `json:"analysis,omitempty"`
}

// AnalysisResult is one analysis applied to one series.
type AnalysisResult struct {
	IntervalResult
	Stats *trace.StatSummary `json:"stats"`
}

// Location returns the result for loc, including the device view.
func (d *DeviceResult) Location(loc trace.Location) *LocationResult {
	if loc == trace.DeviceLocation {
		return d.Device
	}
	for _, l := range d.Locations {
		if l.Location == loc {
			return l
		}
	}
	return nil
}

// Run analyzes every device of l. Devices are independent and processed
// concurrently; results keep the device order of l.
func Run(ctx context.Context, l *trace.Log, specs []trace.AnalysisSpec, opts Options) (*Result, error) {
	seen := map[string]bool{}
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate analysis name %q", s.Name)
		}
		seen[s.Name] = true
	}

	obs := opts.observer()
	res := &Result{Specs: specs, Devices: make([]*DeviceResult, len(l.Devices))}
	g, ctx := errgroup.WithContext(ctx)
	if opts.Workers > 0 {
		g.SetLimit(opts.Workers)
	}
	for i, d := range l.Devices {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			res.Devices[i] = AnalyzeDevice(d, specs, opts)
			obs.ObserveLatency(MetricDeviceLatency, time.Since(start).Seconds())
			obs.IncCounter(MetricDevicesAnalyzed, 1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// AnalyzeDevice runs specs over one device and aligns its timelines.
func AnalyzeDevice(d *trace.Device, specs []trace.AnalysisSpec, opts Options) *DeviceResult {
	obs := opts.observer()
	if d.Aggregate == nil {
		trace.Build(d)
	}
	dr := &DeviceResult{
		ID:             d.ID,
		Origin:         d.Origin,
		Summary:        map[string]*trace.StatSummary{},
		TimelineErrors: map[string]string{},
	}
	for _, loc := range d.SortedLocations() {
		dr.Locations = append(dr.Locations, newLocationResult(d.Location(loc)))
	}
	dr.Device = newLocationResult(d.Aggregate)

	for _, spec := range specs {
		var targets []*UnitResult
		switch spec.Scope {
		case trace.ScopeUnit:
			for _, lr := range dr.Locations {
				for _, ur := range lr.Units {
					if ur.Unit == trace.AllUnits {
						continue
					}
					if spec.Start.Unit == trace.AnyUnit || ur.Unit == spec.Start.Unit {
						targets = append(targets, ur)
					}
				}
			}
		case trace.ScopeLocation:
			for _, lr := range dr.Locations {
				if ur := lr.Unit(trace.AllUnits); ur != nil {
					targets = append(targets, ur)
				}
			}
		case trace.ScopeDevice:
			if ur := dr.Device.Unit(trace.AllUnits); ur != nil {
				targets = append(targets, ur)
			}
		}

		var summaries []*trace.StatSummary
		for _, ur := range targets {
			ir := AnalyzeSeries(ur.Series, spec)
			stats := Summarize(ir.Records)
			if stats == nil {
				obs.IncCounter(MetricAnalysisNotFound, 1)
				continue
			}
			ur.Analysis[spec.Name] = &AnalysisResult{IntervalResult: *ir, Stats: stats}
			obs.IncCounter(MetricDurationRecords, float64(len(ir.Records)))
			summaries = append(summaries, stats)
		}
		if s := RollUp(summaries); s != nil {
			dr.Summary[spec.Name] = s
		}
	}

	if !opts.SkipTimelines {
		units := opts.TimelineUnits
		if len(units) == 0 {
			units = physicalUnits(d)
		}
		for _, unit := range units {
			tl, err := BuildTimeline(d, unit)
			if err != nil {
				log.Printf("Device %d: dropping %s timeline: %v", d.ID, unit, err)
				obs.IncCounter(MetricAlignmentStalls, 1)
				dr.TimelineErrors[unit] = err.Error()
				continue
			}
			if tl == nil {
				continue
			}
			obs.IncCounter(MetricTimelineColumns, float64(len(tl.Columns)))
			dr.Timelines = append(dr.Timelines, tl)
		}
	}
	return dr
}

// unitSequence turns a unit series into the sequence handed to Align.
var unitSequence = func(u *trace.UnitData) Sequence { return Segments(u.Series) }

// BuildTimeline aligns the adjacent-event durations of unit across the
// physical locations of d. It returns nil when no location has the unit.
func BuildTimeline(d *trace.Device, unit string) (*Timeline, error) {
	seqs := map[trace.Location]Sequence{}
	var locs []trace.Location
	for _, loc := range d.SortedLocations() {
		u := d.Location(loc).Unit(unit)
		if u == nil {
			continue
		}
		locs = append(locs, loc)
		seqs[loc] = unitSequence(u)
	}
	if len(locs) == 0 {
		return nil, nil
	}
	cols, err := Align(locs, seqs)
	if err != nil {
		return nil, err
	}
	return &Timeline{Unit: unit, Locations: locs, Columns: cols}, nil
}

func physicalUnits(d *trace.Device) []string {
	var units []string
	seen := map[string]bool{}
	for _, ld := range d.Locations {
		for _, u := range ld.Units {
			if u.Name == trace.AllUnits || seen[u.Name] {
				continue
			}
			seen[u.Name] = true
			units = append(units, u.Name)
		}
	}
	return units
}

func newLocationResult(ld *trace.LocationData) *LocationResult {
	lr := &LocationResult{}
	if ld == nil {
		return lr
	}
	lr.Location = ld.Location
	for _, u := range ld.Units {
		lr.Units = append(lr.Units, &UnitResult{
			Unit:     u.Name,
			Series:   u.Series,
			Analysis: map[string]*AnalysisResult{},
		})
	}
	return lr
}
