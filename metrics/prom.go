package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ZephyrDeng/devprof-analyzer-mcp/analyzer"
)

// Metric names owned by the entry points rather than the pipeline.
const (
	MetricRowsIngested   = "devprof_rows_ingested_total"
	MetricRecordsWritten = "devprof_records_written_total"
)

// PromObs implements analyzer.Observer on top of Prometheus collectors.
type PromObs struct {
	counters map[string]prometheus.Counter
	histos   map[string]prometheus.Observer
}

var _ analyzer.Observer = (*PromObs)(nil)

// NewPromObs registers the pipeline collectors with the default registry.
func NewPromObs() *PromObs {
	devices := prometheus.NewCounter(prometheus.CounterOpts{
		Name: analyzer.MetricDevicesAnalyzed,
		Help: "Devices analyzed.",
	})
	records := prometheus.NewCounter(prometheus.CounterOpts{
		Name: analyzer.MetricDurationRecords,
		Help: "Duration records produced by analyses.",
	})
	noMatch := prometheus.NewCounter(prometheus.CounterOpts{
		Name: analyzer.MetricAnalysisNotFound,
		Help: "Analysis targets on which the start/end pattern never matched.",
	})
	stalls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: analyzer.MetricAlignmentStalls,
		Help: "Timelines dropped because alignment made no progress.",
	})
	columns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: analyzer.MetricTimelineColumns,
		Help: "Alignment columns emitted.",
	})
	rows := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricRowsIngested,
		Help: "Device log rows ingested.",
	})
	written := prometheus.NewCounter(prometheus.CounterOpts{
		Name: MetricRecordsWritten,
		Help: "Duration records written to the database sink.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    analyzer.MetricDeviceLatency,
		Help:    "Time spent analyzing one device.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
	})

	prometheus.MustRegister(devices, records, noMatch, stalls, columns, rows, written, latency)

	return &PromObs{
		counters: map[string]prometheus.Counter{
			analyzer.MetricDevicesAnalyzed:  devices,
			analyzer.MetricDurationRecords:  records,
			analyzer.MetricAnalysisNotFound: noMatch,
			analyzer.MetricAlignmentStalls:  stalls,
			analyzer.MetricTimelineColumns:  columns,
			MetricRowsIngested:              rows,
			MetricRecordsWritten:            written,
		},
		histos: map[string]prometheus.Observer{
			analyzer.MetricDeviceLatency: latency,
		},
	}
}

// IncCounter implements analyzer.Observer. Unknown names are ignored.
func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

// ObserveLatency implements analyzer.Observer.
func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}
