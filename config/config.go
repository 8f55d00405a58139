package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ZephyrDeng/devprof-analyzer-mcp/analyzer"
	"github.com/ZephyrDeng/devprof-analyzer-mcp/trace"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "DEVPROF_CONFIG"

// Config is the server and CLI configuration file.
type Config struct {
	Analyses      []trace.AnalysisSpec `yaml:"analyses"`
	DisplayStats  []string             `yaml:"display_stats"`
	MarkerLabels  map[int]string       `yaml:"marker_labels"`
	TimelineUnits []string             `yaml:"timeline_units"`
	Workers       int                  `yaml:"workers"`
	Input         InputConfig          `yaml:"input"`
	Metrics       MetricsConfig        `yaml:"metrics"`
	Database      DatabaseConfig       `yaml:"database"`
}

// InputConfig describes the log file layout.
type InputConfig struct {
	// Preamble is the number of header lines before the first row. Unset
	// means trace.DefaultPreamble.
	Preamble *int `yaml:"preamble"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr enables the metrics HTTP server when set.
	Addr string `yaml:"addr"`
}

// DatabaseConfig configures the Postgres duration record sink.
type DatabaseConfig struct {
	// ConnString enables the duration record sink when set.
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

// Load reads a YAML config file, fills defaults and validates it. Sections
// left out of the file fall back to Default.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Resolve loads path, or the file named by DEVPROF_CONFIG when path is
// empty, or returns Default when neither is set.
func Resolve(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return Default(), nil
	}
	log.Printf("Loading config from %s", path)
	return Load(path)
}

// Default is the built-in setup for device profiler logs.
func Default() *Config {
	cfg := &Config{
		Analyses:     defaultAnalyses(),
		DisplayStats: []string{trace.StatCount, trace.StatAverage, trace.StatMax, trace.StatMedian, trace.StatMin, trace.StatSum, trace.StatRange},
		MarkerLabels: map[int]string{
			0: "Start",
			1: "Firmware Start",
			2: "Kernel start",
			3: "Kernel End",
			4: "Firmware End",
		},
	}
	cfg.applyDefaults()
	return cfg
}

func defaultAnalyses() []trace.AnalysisSpec {
	return []trace.AnalysisSpec{
		{
			Name: "FW start -> FW end", Scope: trace.ScopeUnit, Mode: trace.ModePaired,
			Start: trace.MarkerSpec{Marker: 1, Unit: trace.AnyUnit},
			End:   trace.MarkerSpec{Marker: 4, Unit: trace.AnyUnit},
		},
		{
			Name: "Kernel start -> Kernel end", Scope: trace.ScopeUnit, Mode: trace.ModePaired,
			Start: trace.MarkerSpec{Marker: 2, Unit: trace.AnyUnit},
			End:   trace.MarkerSpec{Marker: 3, Unit: trace.AnyUnit},
		},
		{
			Name: "BRISC FW start -> NCRISC FW start", Scope: trace.ScopeLocation, Mode: trace.ModePaired,
			Start: trace.MarkerSpec{Marker: 1, Unit: "BRISC"},
			End:   trace.MarkerSpec{Marker: 1, Unit: "NCRISC"},
		},
		{
			Name: "T0 -> ANY CORE ANY RISC FW end", Scope: trace.ScopeDevice, Mode: trace.ModeSpan,
			Start: trace.MarkerSpec{Marker: 0, Unit: trace.AnyUnit, Location: trace.AnyLocation},
			End:   trace.MarkerSpec{Marker: 4, Unit: trace.AnyUnit, Location: trace.AnyLocation},
		},
		{
			Name: "ANY CORE ANY RISC FW start -> FW end", Scope: trace.ScopeDevice, Mode: trace.ModeSpan,
			Start: trace.MarkerSpec{Marker: 1, Unit: trace.AnyUnit, Location: trace.AnyLocation},
			End:   trace.MarkerSpec{Marker: 4, Unit: trace.AnyUnit, Location: trace.AnyLocation},
		},
	}
}

func (c *Config) applyDefaults() {
	if len(c.Analyses) == 0 {
		c.Analyses = defaultAnalyses()
	}
	if len(c.DisplayStats) == 0 {
		c.DisplayStats = append([]string(nil), analyzer.DefaultDisplayStats...)
	}
	if c.MarkerLabels == nil {
		c.MarkerLabels = map[int]string{}
	}
	if c.Input.Preamble == nil {
		n := trace.DefaultPreamble
		c.Input.Preamble = &n
	}
	if c.Database.Table == "" {
		c.Database.Table = "duration_records"
	}
}

func (c *Config) validate() error {
	names := map[string]bool{}
	for _, a := range c.Analyses {
		if err := a.Validate(); err != nil {
			return fmt.Errorf("analyses: %w", err)
		}
		if names[a.Name] {
			return fmt.Errorf("analyses: duplicate name %q", a.Name)
		}
		names[a.Name] = true
	}
	for _, s := range c.DisplayStats {
		if !knownStat(s) {
			return fmt.Errorf("display_stats: unknown stat %q", s)
		}
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if *c.Input.Preamble < 0 {
		return fmt.Errorf("input.preamble must not be negative")
	}
	return nil
}

func knownStat(name string) bool {
	for _, s := range trace.StatNames {
		if s == name {
			return true
		}
	}
	return false
}

// Preamble returns the number of header lines to skip.
func (c *Config) Preamble() int {
	if c.Input.Preamble == nil {
		return trace.DefaultPreamble
	}
	return *c.Input.Preamble
}

// Display returns the report settings.
func (c *Config) Display() analyzer.Display {
	return analyzer.Display{Stats: c.DisplayStats, MarkerLabels: c.MarkerLabels}
}

// Options returns the pipeline settings. obs may be nil.
func (c *Config) Options(obs analyzer.Observer) analyzer.Options {
	return analyzer.Options{Workers: c.Workers, TimelineUnits: c.TimelineUnits, Observer: obs}
}
