package analyzer_test

import (
	"testing"

	"github.com/ZephyrDeng/devprof-analyzer-mcp/analyzer"
	"github.com/ZephyrDeng/devprof-analyzer-mcp/trace"
)

func ev(marker int, ts uint64, tags ...trace.Tag) trace.TimerEvent {
	return trace.TimerEvent{MarkerID: marker, Timestamp: ts, Tags: tags}
}

func unitSpec(mode trace.Mode, start, end int) trace.AnalysisSpec {
	return trace.AnalysisSpec{
		Name:  "test",
		Scope: trace.ScopeUnit,
		Mode:  mode,
		Start: trace.MarkerSpec{Marker: start, Unit: "BRISC"},
		End:   trace.MarkerSpec{Marker: end, Unit: "BRISC"},
	}
}

func TestAnalyzeSeriesPaired(t *testing.T) {
	t.Run("SinglePair", func(t *testing.T) {
		series := trace.Timeseries{ev(1, 10), ev(7, 12), ev(1, 30)}
		res := analyzer.AnalyzeSeries(series, unitSpec(trace.ModePaired, 1, 1))
		if len(res.Records) != 1 {
			t.Fatalf("Expected 1 record, got %d", len(res.Records))
		}
		if got := res.Records[0].Value; got != 20 {
			t.Errorf("Expected value 20, got %d", got)
		}
	})

	t.Run("ReopenDropsEarlierStart", func(t *testing.T) {
		series := trace.Timeseries{ev(1, 1), ev(1, 2), ev(2, 5)}
		res := analyzer.AnalyzeSeries(series, unitSpec(trace.ModePaired, 1, 2))
		if len(res.Records) != 1 {
			t.Fatalf("Expected 1 record, got %d", len(res.Records))
		}
		r := res.Records[0]
		if r.StartTS != 2 || r.EndTS != 5 || r.Value != 3 {
			t.Errorf("Expected record 2->5, got %+v", r)
		}
	})

	t.Run("RepeatedPairs", func(t *testing.T) {
		series := trace.Timeseries{ev(0, 0), ev(1, 10), ev(2, 15), ev(1, 20), ev(2, 40), ev(2, 50)}
		res := analyzer.AnalyzeSeries(series, unitSpec(trace.ModePaired, 1, 2))
		if len(res.Records) != 2 {
			t.Fatalf("Expected 2 records, got %d", len(res.Records))
		}
		if res.Records[0].Value != 5 || res.Records[1].Value != 20 {
			t.Errorf("Unexpected values: %+v", res.Records)
		}
		if res.Order[0].Index != 0 || res.Order[1].Index != 1 {
			t.Errorf("Expected occurrence indexes 0 and 1, got %+v", res.Order)
		}
		want := trace.DurationType{Start: trace.MarkerKey{ID: 1}, End: trace.MarkerKey{ID: 2}}
		if res.Order[1].Type != want {
			t.Errorf("Expected type %s, got %s", want, res.Order[1].Type)
		}
	})

	t.Run("NoMatch", func(t *testing.T) {
		series := trace.Timeseries{ev(0, 0), ev(3, 4)}
		res := analyzer.AnalyzeSeries(series, unitSpec(trace.ModePaired, 1, 2))
		if len(res.Records) != 0 || len(res.Order) != 0 {
			t.Errorf("Expected empty result, got %+v", res)
		}
	})
}

func TestAnalyzeSeriesSpan(t *testing.T) {
	t.Run("FirstStartLastEnd", func(t *testing.T) {
		series := trace.Timeseries{ev(1, 1), ev(2, 2), ev(1, 3), ev(2, 9)}
		res := analyzer.AnalyzeSeries(series, unitSpec(trace.ModeSpan, 1, 2))
		if len(res.Records) != 1 {
			t.Fatalf("Expected 1 record, got %d", len(res.Records))
		}
		if r := res.Records[0]; r.StartTS != 1 || r.EndTS != 9 {
			t.Errorf("Expected record 1->9, got %+v", r)
		}
	})

	t.Run("EndOnlyBeforeStart", func(t *testing.T) {
		series := trace.Timeseries{ev(2, 1), ev(1, 3), ev(5, 4)}
		res := analyzer.AnalyzeSeries(series, unitSpec(trace.ModeSpan, 1, 2))
		if len(res.Records) != 0 {
			t.Errorf("Expected no record, got %+v", res.Records)
		}
	})

	t.Run("NoStart", func(t *testing.T) {
		series := trace.Timeseries{ev(2, 1), ev(2, 3)}
		res := analyzer.AnalyzeSeries(series, unitSpec(trace.ModeSpan, 1, 2))
		if len(res.Records) != 0 {
			t.Errorf("Expected no record, got %+v", res.Records)
		}
	})

	t.Run("SameMarker", func(t *testing.T) {
		series := trace.Timeseries{ev(0, 0), ev(4, 10), ev(4, 25), ev(4, 40)}
		res := analyzer.AnalyzeSeries(series, unitSpec(trace.ModeSpan, 4, 4))
		if len(res.Records) != 1 || res.Records[0].Value != 30 {
			t.Errorf("Expected one record of 30, got %+v", res.Records)
		}
	})
}

func TestAnalyzeSeriesTagMatching(t *testing.T) {
	brisc := trace.UnitTag("BRISC")
	ncrisc := trace.UnitTag("NCRISC")
	coreA := trace.LocationTag(trace.Location{X: 1, Y: 1})
	coreB := trace.LocationTag(trace.Location{X: 2, Y: 1})

	t.Run("UnitFromTags", func(t *testing.T) {
		series := trace.Timeseries{ev(1, 10, ncrisc), ev(1, 12, brisc), ev(2, 20, ncrisc), ev(2, 30, brisc)}
		spec := trace.AnalysisSpec{
			Name: "b", Scope: trace.ScopeLocation, Mode: trace.ModePaired,
			Start: trace.MarkerSpec{Marker: 1, Unit: "BRISC"},
			End:   trace.MarkerSpec{Marker: 2, Unit: "BRISC"},
		}
		res := analyzer.AnalyzeSeries(series, spec)
		if len(res.Records) != 1 || res.Records[0].Value != 18 {
			t.Errorf("Expected BRISC pair 12->30, got %+v", res.Records)
		}
	})

	t.Run("AnyUnit", func(t *testing.T) {
		series := trace.Timeseries{ev(1, 10, ncrisc), ev(2, 20, brisc)}
		spec := trace.AnalysisSpec{
			Name: "any", Scope: trace.ScopeLocation, Mode: trace.ModePaired,
			Start: trace.MarkerSpec{Marker: 1, Unit: trace.AnyUnit},
			End:   trace.MarkerSpec{Marker: 2, Unit: trace.AnyUnit},
		}
		res := analyzer.AnalyzeSeries(series, spec)
		if len(res.Records) != 1 || res.Records[0].Value != 10 {
			t.Errorf("Expected cross-unit pair, got %+v", res.Records)
		}
	})

	t.Run("PinnedLocation", func(t *testing.T) {
		series := trace.Timeseries{
			ev(1, 5, brisc, coreA),
			ev(1, 7, brisc, coreB),
			ev(4, 50, brisc, coreB),
			ev(4, 80, brisc, coreA),
		}
		spec := trace.AnalysisSpec{
			Name: "core b", Scope: trace.ScopeDevice, Mode: trace.ModeSpan,
			Start: trace.MarkerSpec{Marker: 1, Unit: trace.AnyUnit, Location: trace.At(2, 1)},
			End:   trace.MarkerSpec{Marker: 4, Unit: trace.AnyUnit, Location: trace.At(2, 1)},
		}
		res := analyzer.AnalyzeSeries(series, spec)
		if len(res.Records) != 1 || res.Records[0].StartTS != 7 || res.Records[0].EndTS != 50 {
			t.Errorf("Expected 7->50 on (2,1), got %+v", res.Records)
		}

		spec.Start.Location = trace.AnyLocation
		spec.End.Location = trace.AnyLocation
		res = analyzer.AnalyzeSeries(series, spec)
		if len(res.Records) != 1 || res.Records[0].StartTS != 5 || res.Records[0].EndTS != 80 {
			t.Errorf("Expected 5->80 across locations, got %+v", res.Records)
		}
	})
}

func TestSegments(t *testing.T) {
	series := trace.Timeseries{ev(0, 0), ev(1, 10), ev(2, 25), ev(1, 40), ev(2, 48)}
	set := analyzer.Segments(series)

	if len(set.Order) != 4 {
		t.Fatalf("Expected 4 adjacent segments, got %d", len(set.Order))
	}
	oneTwo := trace.DurationType{Start: trace.MarkerKey{ID: 1}, End: trace.MarkerKey{ID: 2}}
	if got := len(set.Records[oneTwo]); got != 2 {
		t.Fatalf("Expected 2 records of 1->2, got %d", got)
	}
	if set.Order[3].Type != oneTwo || set.Order[3].Index != 1 {
		t.Errorf("Expected the last entry to be the second 1->2, got %+v", set.Order[3])
	}
	want := []uint64{10, 15, 15, 8}
	for i, w := range want {
		if got := set.Value(i); got != w {
			t.Errorf("Segment %d: expected %d, got %d", i, w, got)
		}
	}

	t.Run("TagsSplitTypes", func(t *testing.T) {
		tagged := trace.Timeseries{
			ev(1, 0, trace.UnitTag("BRISC")),
			ev(1, 5, trace.UnitTag("NCRISC")),
			ev(1, 9, trace.UnitTag("BRISC")),
		}
		set := analyzer.Segments(tagged)
		if len(set.Records) != 2 {
			t.Errorf("Expected 2 distinct segment types, got %d", len(set.Records))
		}
	})

	t.Run("Short", func(t *testing.T) {
		if set := analyzer.Segments(trace.Timeseries{ev(1, 3)}); len(set.Order) != 0 {
			t.Errorf("Expected no segments for a single event, got %d", len(set.Order))
		}
	})
}
