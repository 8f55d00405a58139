package analyzer

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ZephyrDeng/devprof-analyzer-mcp/trace"
)

func durationLabel(start, end int) trace.DurationType {
	return trace.DurationType{Start: trace.MarkerKey{ID: start}, End: trace.MarkerKey{ID: end}}
}

// relabelingSeq rewrites its entries once its first value is read, so the
// labels seen by later rounds differ from those Align counted up front.
type relabelingSeq struct {
	entries []trace.OrderEntry
	next    []trace.DurationType
}

func newRelabelingSeq(n int, next ...trace.DurationType) *relabelingSeq {
	s := &relabelingSeq{next: next}
	for i := 0; i < n; i++ {
		s.entries = append(s.entries, trace.OrderEntry{Type: durationLabel(1, 2), Index: i})
	}
	return s
}

func (s *relabelingSeq) Entries() []trace.OrderEntry { return s.entries }

func (s *relabelingSeq) Value(i int) uint64 {
	if i == 0 {
		for j, l := range s.next {
			s.entries[j+1].Type = l
		}
	}
	return uint64(10 * (i + 1))
}

func TestAlignStallsOnShiftingLabels(t *testing.T) {
	a, b := trace.Location{X: 1, Y: 1}, trace.Location{X: 2, Y: 1}
	x, y := durationLabel(2, 3), durationLabel(3, 4)
	seqs := map[trace.Location]Sequence{
		a: newRelabelingSeq(3, x, y),
		b: newRelabelingSeq(3, y, x),
	}
	cols, err := Align([]trace.Location{a, b}, seqs)
	if !errors.Is(err, trace.ErrAlignmentStall) {
		t.Fatalf("Expected ErrAlignmentStall, got %v", err)
	}
	if cols != nil {
		t.Errorf("Expected no columns on stall, got %d", len(cols))
	}
}

type stallCounter struct {
	mu     sync.Mutex
	stalls float64
}

func (o *stallCounter) IncCounter(name string, v float64) {
	if name != MetricAlignmentStalls {
		return
	}
	o.mu.Lock()
	o.stalls += v
	o.mu.Unlock()
}

func (o *stallCounter) ObserveLatency(string, float64) {}

func TestAnalyzeDeviceDropsStalledTimeline(t *testing.T) {
	const input = `h
h
0, 1, 1, BRISC, 1, 120
0, 1, 1, BRISC, 4, 900
0, 1, 1, NCRISC, 1, 100
0, 1, 1, NCRISC, 4, 850
0, 2, 1, BRISC, 1, 130
0, 2, 1, BRISC, 4, 700
0, 2, 1, NCRISC, 1, 110
0, 2, 1, NCRISC, 4, 600
`
	l, err := trace.ReadLog(strings.NewReader(input), trace.DefaultPreamble)
	if err != nil {
		t.Fatalf("Error reading log: %v", err)
	}

	orig := unitSequence
	t.Cleanup(func() { unitSequence = orig })
	var flip bool
	unitSequence = func(u *trace.UnitData) Sequence {
		if u.Name != "NCRISC" {
			return orig(u)
		}
		flip = !flip
		if flip {
			return newRelabelingSeq(3, durationLabel(2, 3), durationLabel(3, 4))
		}
		return newRelabelingSeq(3, durationLabel(3, 4), durationLabel(2, 3))
	}

	obs := &stallCounter{}
	dr := AnalyzeDevice(l.Device(0), nil, Options{Observer: obs})

	if len(dr.TimelineErrors) != 1 || !strings.Contains(dr.TimelineErrors["NCRISC"], trace.ErrAlignmentStall.Error()) {
		t.Errorf("Expected only the NCRISC timeline to stall, got %v", dr.TimelineErrors)
	}
	if len(dr.Timelines) != 1 || dr.Timelines[0].Unit != "BRISC" {
		t.Fatalf("Expected the BRISC timeline to survive, got %+v", dr.Timelines)
	}
	if got := dr.Timelines[0].Locations; len(got) != 2 {
		t.Errorf("Expected BRISC aligned across 2 locations, got %v", got)
	}
	if obs.stalls != 1 {
		t.Errorf("Expected 1 alignment stall, got %v", obs.stalls)
	}
}
