package trace

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// AnyUnit in a MarkerSpec matches events from every unit.
const AnyUnit = "ANY"

// Scope selects which series an analysis runs on.
type Scope string

const (
	ScopeUnit     Scope = "unit"
	ScopeLocation Scope = "location"
	ScopeDevice   Scope = "device"
)

// Mode selects how start and end markers are paired.
type Mode string

const (
	// ModePaired emits one record per start/end pair.
	ModePaired Mode = "paired"
	// ModeSpan emits a single record from the first start to the last end.
	ModeSpan Mode = "span"
)

// LocationSelector restricts a marker to a location. The zero value is unset
// and behaves like Any.
type LocationSelector struct {
	Any      bool
	Set      bool
	Location Location
}

// AnyLocation matches every location.
var AnyLocation = LocationSelector{Any: true}

// At selects one location.
func At(x, y int) LocationSelector {
	return LocationSelector{Set: true, Location: Location{X: x, Y: y}}
}

// Wildcard reports whether the selector matches every location.
func (s LocationSelector) Wildcard() bool {
	return s.Any || !s.Set
}

func (s LocationSelector) String() string {
	switch {
	case s.Any:
		return "any"
	case s.Set:
		return s.Location.String()
	}
	return ""
}

// UnmarshalYAML accepts "any", "x,y", "(x,y)" and [x, y].
func (s *LocationSelector) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		v := strings.TrimSpace(n.Value)
		if strings.EqualFold(v, "any") {
			*s = AnyLocation
			return nil
		}
		v = strings.Trim(v, "()")
		parts := strings.Split(v, ",")
		if len(parts) != 2 {
			return fmt.Errorf("line %d: location %q: want \"any\" or \"x,y\"", n.Line, n.Value)
		}
		return s.set(parts[0], parts[1], n.Line)
	case yaml.SequenceNode:
		if len(n.Content) != 2 {
			return fmt.Errorf("line %d: location needs exactly two coordinates", n.Line)
		}
		return s.set(n.Content[0].Value, n.Content[1].Value, n.Line)
	}
	return fmt.Errorf("line %d: unsupported location value", n.Line)
}

func (s *LocationSelector) set(xs, ys string, line int) error {
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return fmt.Errorf("line %d: location x: %w", line, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return fmt.Errorf("line %d: location y: %w", line, err)
	}
	*s = At(x, y)
	return nil
}

// MarshalYAML writes the selector back in its scalar form.
func (s LocationSelector) MarshalYAML() (interface{}, error) {
	switch {
	case s.Any:
		return "any", nil
	case s.Set:
		return fmt.Sprintf("%d,%d", s.Location.X, s.Location.Y), nil
	}
	return nil, nil
}

// MarkerSpec describes one side of an analysis.
type MarkerSpec struct {
	Marker   int              `yaml:"marker"`
	Unit     string           `yaml:"unit"`
	Location LocationSelector `yaml:"location,omitempty"`
}

// AnalysisSpec names a start/end pattern and where to look for it.
type AnalysisSpec struct {
	Name  string     `yaml:"name"`
	Scope Scope      `yaml:"scope"`
	Mode  Mode       `yaml:"mode"`
	Start MarkerSpec `yaml:"start"`
	End   MarkerSpec `yaml:"end"`
}

// UnmarshalYAML also accepts the device-log vocabulary: across
// (risc|core|device) for scope and type (first_last|adjacent) for mode.
func (a *AnalysisSpec) UnmarshalYAML(n *yaml.Node) error {
	type plain AnalysisSpec
	var raw struct {
		plain  `yaml:",inline"`
		Across string `yaml:"across"`
		Type   string `yaml:"type"`
	}
	if err := n.Decode(&raw); err != nil {
		return err
	}
	*a = AnalysisSpec(raw.plain)
	if a.Scope == "" {
		switch raw.Across {
		case "risc":
			a.Scope = ScopeUnit
		case "core":
			a.Scope = ScopeLocation
		case "device":
			a.Scope = ScopeDevice
		}
	}
	if a.Mode == "" && raw.Type != "" {
		if raw.Type == "first_last" {
			a.Mode = ModeSpan
		} else {
			a.Mode = ModePaired
		}
	}
	return nil
}

// Validate checks the fields the analyzer relies on.
func (a AnalysisSpec) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("analysis name is required")
	}
	switch a.Scope {
	case ScopeUnit, ScopeLocation, ScopeDevice:
	default:
		return fmt.Errorf("analysis %q: unknown scope %q", a.Name, a.Scope)
	}
	switch a.Mode {
	case ModePaired, ModeSpan:
	default:
		return fmt.Errorf("analysis %q: unknown mode %q", a.Name, a.Mode)
	}
	if a.Start.Unit == "" || a.End.Unit == "" {
		return fmt.Errorf("analysis %q: start and end unit are required (use %q to match all)", a.Name, AnyUnit)
	}
	if a.Start.Marker < 0 || a.End.Marker < 0 {
		return fmt.Errorf("analysis %q: marker IDs must not be negative", a.Name)
	}
	return nil
}
