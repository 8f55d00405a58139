package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/ZephyrDeng/devprof-analyzer-mcp/analyzer"
	"github.com/ZephyrDeng/devprof-analyzer-mcp/config"
	"github.com/ZephyrDeng/devprof-analyzer-mcp/sink"
	"github.com/ZephyrDeng/devprof-analyzer-mcp/trace"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "analyze":
		err = analyzeCommand(os.Args[2:])
	case "timeline":
		err = timelineCommand(os.Args[2:])
	case "export":
		err = exportCommand(os.Args[2:])
	case "compare":
		err = compareCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("devprof %s: %v", cmd, err)
	}
}

// loadAndRun reads the log at logPath and runs every configured analysis.
func loadAndRun(ctx context.Context, logPath string, cfg *config.Config, opts analyzer.Options) (*analyzer.Result, error) {
	if logPath == "" {
		return nil, fmt.Errorf("-log is required")
	}
	f, err := os.Open(logPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	l, err := trace.ReadLog(f, cfg.Preamble())
	if err != nil {
		return nil, err
	}
	log.Printf("Read %d rows across %d devices from %s", l.Rows, len(l.Devices), logPath)
	return analyzer.Run(ctx, l, cfg.Analyses, opts)
}

func writeOutput(path, s string) error {
	if path == "" {
		_, err := fmt.Print(s)
		return err
	}
	if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
		return err
	}
	log.Printf("Wrote %s", path)
	return nil
}

func analyzeCommand(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	logPath := fs.String("log", "", "Path to the device profiler log (CSV)")
	cfgPath := fs.String("config", "", "Path to configuration file (default: $DEVPROF_CONFIG or built-in)")
	format := fs.String("format", "text", "Output format: text, markdown, json, flamegraph-json or csv")
	out := fs.String("out", "", "Write the report to this file instead of stdout")
	runID := fs.String("run-id", "", "Run ID for stored duration records (default: random UUID)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Resolve(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := cfg.Options(nil)
	opts.SkipTimelines = *format == "flamegraph-json" || *format == "csv"
	res, err := loadAndRun(ctx, *logPath, cfg, opts)
	if err != nil {
		return err
	}

	report, err := analyzer.Report(res, cfg.Display(), *format)
	if err != nil {
		return err
	}
	if err := writeOutput(*out, report); err != nil {
		return err
	}

	if cfg.Database.ConnString == "" {
		return nil
	}
	id := *runID
	if id == "" {
		id = uuid.NewString()
	}
	return storeRecords(ctx, cfg, id, res)
}

func storeRecords(ctx context.Context, cfg *config.Config, runID string, res *analyzer.Result) error {
	db, err := sink.Open(ctx, cfg.Database.ConnString)
	if err != nil {
		return err
	}
	defer db.Close()

	pg := sink.NewPostgresSink(db, cfg.Database.Table)
	if err := pg.EnsureTable(ctx); err != nil {
		return fmt.Errorf("ensure table: %w", err)
	}
	n, err := pg.WriteResult(ctx, runID, res)
	if err != nil {
		return fmt.Errorf("store records: %w", err)
	}
	log.Printf("Stored %d duration records for run %s", n, runID)
	return nil
}

func timelineCommand(args []string) error {
	fs := flag.NewFlagSet("timeline", flag.ExitOnError)
	logPath := fs.String("log", "", "Path to the device profiler log (CSV)")
	cfgPath := fs.String("config", "", "Path to configuration file (default: $DEVPROF_CONFIG or built-in)")
	unit := fs.String("unit", "", "Only align this unit type (default: all configured units)")
	format := fs.String("format", "text", "Output format: text, markdown or json")
	out := fs.String("out", "", "Write the timelines to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Resolve(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts := cfg.Options(nil)
	if *unit != "" {
		opts.TimelineUnits = []string{*unit}
	}
	res, err := loadAndRun(context.Background(), *logPath, cfg, opts)
	if err != nil {
		return err
	}
	for _, dr := range res.Devices {
		for u, msg := range dr.TimelineErrors {
			fmt.Fprintf(os.Stderr, "device %d: %s timeline dropped: %s\n", dr.ID, u, msg)
		}
	}

	report, err := analyzer.TimelineReport(res, cfg.Display(), *unit, *format)
	if err != nil {
		return err
	}
	return writeOutput(*out, report)
}

func exportCommand(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	logPath := fs.String("log", "", "Path to the device profiler log (CSV)")
	cfgPath := fs.String("config", "", "Path to configuration file (default: $DEVPROF_CONFIG or built-in)")
	out := fs.String("out", "devprof.pb.gz", "Path of the pprof file to write")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Resolve(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts := cfg.Options(nil)
	opts.SkipTimelines = true
	res, err := loadAndRun(context.Background(), *logPath, cfg, opts)
	if err != nil {
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := analyzer.WriteProfile(f, res); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("profile written to %s (view with: go tool pprof -http=:8081 %s)\n", *out, *out)
	return nil
}

func compareCommand(args []string) error {
	fs := flag.NewFlagSet("compare", flag.ExitOnError)
	basePath := fs.String("base", "", "Path to the baseline device profiler log (CSV)")
	logPath := fs.String("log", "", "Path to the device profiler log to compare (CSV)")
	cfgPath := fs.String("config", "", "Path to configuration file (default: $DEVPROF_CONFIG or built-in)")
	threshold := fs.Float64("threshold", 0.1, "Minimum mean duration growth to report (0.1 = 10%)")
	limit := fs.Int("limit", 10, "Maximum number of series to report")
	format := fs.String("format", "text", "Output format: text, markdown or json")
	out := fs.String("out", "", "Write the comparison to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *basePath == "" {
		return fmt.Errorf("-base is required")
	}

	cfg, err := config.Resolve(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	opts := cfg.Options(nil)
	opts.SkipTimelines = true
	base, err := loadAndRun(context.Background(), *basePath, cfg, opts)
	if err != nil {
		return fmt.Errorf("baseline: %w", err)
	}
	cur, err := loadAndRun(context.Background(), *logPath, cfg, opts)
	if err != nil {
		return err
	}

	report, err := analyzer.DetectRegressions(analyzer.ToProfile(base), analyzer.ToProfile(cur), *threshold, *limit, *format)
	if err != nil {
		return err
	}
	return writeOutput(*out, report)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *cfgPath == "" {
		return fmt.Errorf("-config is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Printf("config %s looks good (%d analyses)\n", *cfgPath, len(cfg.Analyses))
	return nil
}

func printUsage() {
	fmt.Printf(`devprof - device profiler log analyzer

Usage:
  devprof <command> [flags]

Commands:
  analyze    Run the configured analyses and print per-device statistics
  timeline   Align unit segments across locations and print the timelines
  export     Write duration records as a pprof profile
  compare    Report series whose mean duration grew against a baseline log
  validate   Load and validate a config file

Examples:
  devprof analyze -log profile_log_device.csv -format markdown
  devprof analyze -log profile_log_device.csv -config devprof.yaml -format json -out report.json
  devprof timeline -log profile_log_device.csv -unit BRISC
  devprof export -log profile_log_device.csv -out device.pb.gz
  devprof compare -base baseline.csv -log profile_log_device.csv -threshold 0.05
  devprof validate -config devprof.yaml
`)
}
