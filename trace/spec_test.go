package trace_test

import (
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/ZephyrDeng/devprof-analyzer-mcp/trace"
)

func TestAnalysisSpecYAML(t *testing.T) {
	t.Run("NativeFields", func(t *testing.T) {
		src := `
name: kernel
scope: location
mode: span
start: {marker: 2, unit: ANY, location: any}
end: {marker: 3, unit: BRISC, location: [1, 2]}
`
		var a trace.AnalysisSpec
		if err := yaml.Unmarshal([]byte(src), &a); err != nil {
			t.Fatalf("Error unmarshaling spec: %v", err)
		}
		if a.Scope != trace.ScopeLocation || a.Mode != trace.ModeSpan {
			t.Errorf("Unexpected scope/mode: %s/%s", a.Scope, a.Mode)
		}
		if !a.Start.Location.Any {
			t.Errorf("Expected start location any, got %+v", a.Start.Location)
		}
		if a.End.Location != trace.At(1, 2) {
			t.Errorf("Expected end location (1,2), got %+v", a.End.Location)
		}
		if err := a.Validate(); err != nil {
			t.Errorf("Expected valid spec, got %v", err)
		}
	})

	t.Run("DeviceLogVocabulary", func(t *testing.T) {
		src := `
name: fw
across: core
type: first_last
start: {marker: 1, unit: ANY, location: "(3,4)"}
end: {marker: 4, unit: ANY}
`
		var a trace.AnalysisSpec
		if err := yaml.Unmarshal([]byte(src), &a); err != nil {
			t.Fatalf("Error unmarshaling spec: %v", err)
		}
		if a.Scope != trace.ScopeLocation || a.Mode != trace.ModeSpan {
			t.Errorf("Expected location/span, got %s/%s", a.Scope, a.Mode)
		}
		if a.Start.Location != trace.At(3, 4) {
			t.Errorf("Expected start location (3,4), got %+v", a.Start.Location)
		}
		if !a.End.Location.Wildcard() {
			t.Errorf("Expected unset end location to act as a wildcard")
		}
	})

	t.Run("BadLocation", func(t *testing.T) {
		var a trace.AnalysisSpec
		err := yaml.Unmarshal([]byte("name: x\nstart: {marker: 1, unit: A, location: nowhere}\n"), &a)
		if err == nil {
			t.Fatalf("Expected error for bad location")
		}
	})
}

func TestAnalysisSpecValidate(t *testing.T) {
	base := trace.AnalysisSpec{
		Name:  "a",
		Scope: trace.ScopeUnit,
		Mode:  trace.ModePaired,
		Start: trace.MarkerSpec{Marker: 1, Unit: "BRISC"},
		End:   trace.MarkerSpec{Marker: 2, Unit: "BRISC"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("Expected base spec to be valid: %v", err)
	}

	bad := map[string]func(*trace.AnalysisSpec){
		"NoName":    func(a *trace.AnalysisSpec) { a.Name = "" },
		"BadScope":  func(a *trace.AnalysisSpec) { a.Scope = "chip" },
		"BadMode":   func(a *trace.AnalysisSpec) { a.Mode = "" },
		"NoUnit":    func(a *trace.AnalysisSpec) { a.End.Unit = "" },
		"NegMarker": func(a *trace.AnalysisSpec) { a.Start.Marker = -1 },
	}
	for name, mutate := range bad {
		t.Run(name, func(t *testing.T) {
			a := base
			mutate(&a)
			if err := a.Validate(); err == nil {
				t.Errorf("Expected validation error")
			}
		})
	}
}
