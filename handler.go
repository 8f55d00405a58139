package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ZephyrDeng/devprof-analyzer-mcp/analyzer"
	"github.com/ZephyrDeng/devprof-analyzer-mcp/config"
	"github.com/ZephyrDeng/devprof-analyzer-mcp/metrics"
)

// recordSink 持久化一次分析得到的时长记录。
type recordSink interface {
	WriteResult(ctx context.Context, runID string, res *analyzer.Result) (int, error)
}

// app 保存各 MCP 工具共享的配置、指标和存储。
type app struct {
	cfg  *config.Config
	obs  analyzer.Observer // 为 nil 时不上报指标
	sink recordSink        // 为 nil 时不写数据库
}

func (a *app) incCounter(name string, v float64) {
	if a.obs != nil {
		a.obs.IncCounter(name, v)
	}
}

// configFor 返回请求指定的配置；未指定 config_path 时使用服务器配置。
func (a *app) configFor(args map[string]interface{}) (*config.Config, error) {
	path, _ := args["config_path"].(string)
	if path == "" {
		return a.cfg, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config '%s': %w", path, err)
	}
	return cfg, nil
}

// analyze 读取 log_uri 指向的日志并运行配置中的全部分析。
func (a *app) analyze(ctx context.Context, args map[string]interface{}, tune func(*analyzer.Options)) (*analyzer.Result, *config.Config, error) {
	logURI, ok := args["log_uri"].(string)
	if !ok || logURI == "" {
		return nil, nil, fmt.Errorf("missing or invalid required argument: log_uri (string)")
	}
	cfg, err := a.configFor(args)
	if err != nil {
		return nil, nil, err
	}

	l, err := readDeviceLog(logURI, cfg)
	if err != nil {
		return nil, nil, err
	}
	a.incCounter(metrics.MetricRowsIngested, float64(l.Rows))

	opts := cfg.Options(a.obs)
	if tune != nil {
		tune(&opts)
	}
	res, err := analyzer.Run(ctx, l, cfg.Analyses, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("analysis failed: %w", err)
	}
	return res, cfg, nil
}

func textResult(texts ...string) *mcp.CallToolResult {
	content := make([]mcp.Content, 0, len(texts))
	for _, t := range texts {
		content = append(content, mcp.TextContent{Type: "text", Text: t})
	}
	return &mcp.CallToolResult{Content: content}
}

// handleAnalyzeDeviceLog 处理 MCP 工具 "analyze_device_log"。
func (a *app) handleAnalyzeDeviceLog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments

	outputFormat, ok := args["output_format"].(string)
	if !ok || outputFormat == "" {
		outputFormat = "text"
	}
	log.Printf("Handling analyze_device_log: URI=%v, Format=%s", args["log_uri"], outputFormat)

	// flamegraph-json 和 csv 不需要对齐
	res, cfg, err := a.analyze(ctx, args, func(o *analyzer.Options) {
		o.SkipTimelines = outputFormat == "flamegraph-json" || outputFormat == "csv"
	})
	if err != nil {
		return nil, err
	}

	report, err := analyzer.Report(res, cfg.Display(), outputFormat)
	if err != nil {
		log.Printf("Report error: %v", err)
		return nil, err
	}

	runID, _ := args["run_id"].(string)
	if a.sink == nil {
		if runID != "" {
			log.Printf("Warning: run_id %s given but no database is configured, records are not stored", runID)
		}
		return textResult(report), nil
	}

	if runID == "" {
		runID = uuid.NewString()
	}
	n, err := a.sink.WriteResult(ctx, runID, res)
	a.incCounter(metrics.MetricRecordsWritten, float64(n))
	if err != nil {
		return nil, fmt.Errorf("failed to store duration records for run %s: %w", runID, err)
	}

	// 单独的内容块，避免破坏 json 输出
	return textResult(report, fmt.Sprintf("已写入 %d 条时长记录 (run_id: %s)", n, runID)), nil
}

// handleGenerateTimeline 处理 MCP 工具 "generate_timeline"。
func (a *app) handleGenerateTimeline(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments

	outputFormat, ok := args["output_format"].(string)
	if !ok || outputFormat == "" {
		outputFormat = "text"
	}
	unit, _ := args["unit"].(string)
	log.Printf("Handling generate_timeline: URI=%v, Unit=%q, Format=%s", args["log_uri"], unit, outputFormat)

	res, cfg, err := a.analyze(ctx, args, func(o *analyzer.Options) {
		if unit != "" {
			o.TimelineUnits = []string{unit}
		}
	})
	if err != nil {
		return nil, err
	}

	report, err := analyzer.TimelineReport(res, cfg.Display(), unit, outputFormat)
	if err != nil {
		return nil, err
	}

	var dropped []string
	for _, dr := range res.Devices {
		for u, msg := range dr.TimelineErrors {
			if unit == "" || u == unit {
				dropped = append(dropped, fmt.Sprintf("device %d %s: %s", dr.ID, u, msg))
			}
		}
	}
	if len(dropped) > 0 {
		return textResult(report, "以下时间线未能对齐:\n"+strings.Join(dropped, "\n")), nil
	}
	return textResult(report), nil
}

// exportProfile 运行分析并将结果写成 pprof 文件。
func (a *app) exportProfile(ctx context.Context, args map[string]interface{}, outputPath string) error {
	res, _, err := a.analyze(ctx, args, func(o *analyzer.Options) { o.SkipTimelines = true })
	if err != nil {
		return err
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create profile file '%s': %w", outputPath, err)
	}
	if err := analyzer.WriteProfile(f, res); err != nil {
		f.Close()
		return fmt.Errorf("failed to write profile '%s': %w", outputPath, err)
	}
	return f.Close()
}

// exportTempProfile 将分析结果导出到临时 pprof 文件。
func (a *app) exportTempProfile(ctx context.Context, args map[string]interface{}) (string, func(), error) {
	tempFile, err := os.CreateTemp("", "devprof-*.pb.gz")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temporary profile file: %w", err)
	}
	path := tempFile.Name()
	tempFile.Close()

	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Printf("Warning: failed to remove temporary file '%s': %v", path, err)
		}
	}
	if err := a.exportProfile(ctx, args, path); err != nil {
		cleanup()
		return "", nil, err
	}
	return path, cleanup, nil
}

// absPath 将相对路径解析为相对于服务器工作目录的绝对路径。
func absPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		log.Printf("无法解析绝对路径 '%s': %v", p, err)
		return p
	}
	return abs
}

// handleExportPprof 处理 MCP 工具 "export_pprof"。
func (a *app) handleExportPprof(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments

	outputPath, ok := args["output_path"].(string)
	if !ok || outputPath == "" {
		return nil, fmt.Errorf("missing or invalid required argument: output_path (string)")
	}
	outputPath = absPath(outputPath)
	log.Printf("Handling export_pprof: URI=%v, Output=%s", args["log_uri"], outputPath)

	if err := a.exportProfile(ctx, args, outputPath); err != nil {
		return nil, err
	}

	resultText := fmt.Sprintf("pprof 文件已导出到: %s\n可使用 'go tool pprof %s' 查看，默认样本类型为 duration (cycles)。", outputPath, outputPath)
	log.Println(resultText)
	return textResult(resultText), nil
}

// handleGenerateFlamegraph 处理生成火焰图的请求。
func (a *app) handleGenerateFlamegraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments

	outputSvgPath, ok := args["output_svg_path"].(string)
	if !ok || outputSvgPath == "" {
		return nil, fmt.Errorf("missing or invalid required argument: output_svg_path (string)")
	}
	outputSvgPath = absPath(outputSvgPath)
	log.Printf("Handling generate_flamegraph: URI=%v, Output=%s", args["log_uri"], outputSvgPath)

	// --- 1. 检查 go 和 Graphviz (dot) 是否可用 ---
	if _, err := exec.LookPath("go"); err != nil {
		return nil, fmt.Errorf("'go' command not found in PATH, cannot run pprof")
	}
	if _, err := exec.LookPath("dot"); err != nil {
		errMsg := "Graphviz (dot 命令) 未找到或不在 PATH 中。生成 SVG 火焰图需要 Graphviz。\n" +
			"请先安装 Graphviz。常见安装方式：\n" +
			"- macOS (Homebrew): brew install graphviz\n" +
			"- Debian/Ubuntu: sudo apt-get update && sudo apt-get install graphviz\n" +
			"- CentOS/Fedora: sudo yum install graphviz 或 sudo dnf install graphviz\n" +
			"- Windows (Chocolatey): choco install graphviz"
		log.Println(errMsg)
		return nil, fmt.Errorf("%s", errMsg)
	}

	// --- 2. 导出 pprof 文件 ---
	profilePath, cleanup, err := a.exportTempProfile(ctx, args)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	// --- 3. 执行 go tool pprof ---
	cmdArgs := []string{"tool", "pprof", "-sample_index=duration", "-svg", "-output", outputSvgPath, profilePath}
	log.Printf("Executing command: go %s", strings.Join(cmdArgs, " "))

	cmd := exec.CommandContext(ctx, "go", cmdArgs...)
	cmdOutput, err := cmd.CombinedOutput()
	if err != nil {
		log.Printf("Error executing 'go tool pprof': %v\nOutput:\n%s", err, string(cmdOutput))
		return nil, fmt.Errorf("failed to generate flamegraph: %w. Output: %s", err, string(cmdOutput))
	}
	log.Printf("Successfully generated flamegraph: %s", outputSvgPath)

	// --- 4. 返回结果和 SVG 内容 ---
	resultText := fmt.Sprintf("火焰图已成功生成并保存到: %s", outputSvgPath)
	svgBytes, readErr := os.ReadFile(outputSvgPath)
	if readErr != nil {
		log.Printf("成功生成 SVG 文件 '%s' 但读取失败: %v", outputSvgPath, readErr)
		return textResult(resultText), nil
	}
	return textResult(resultText, string(svgBytes)), nil
}

// handleCompareDeviceLogs 处理 MCP 工具 "compare_device_logs"：比较两份日志的平均时长。
func (a *app) handleCompareDeviceLogs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.Params.Arguments

	baseURI, ok := args["base_log_uri"].(string)
	if !ok || baseURI == "" {
		return nil, fmt.Errorf("missing or invalid required argument: base_log_uri (string)")
	}
	outputFormat, ok := args["output_format"].(string)
	if !ok || outputFormat == "" {
		outputFormat = "text"
	}
	threshold, ok := args["threshold"].(float64)
	if !ok || threshold <= 0 {
		threshold = 0.1
	}
	limitFloat, ok := args["limit"].(float64)
	if !ok || limitFloat <= 0 {
		limitFloat = 10
	}
	log.Printf("Handling compare_device_logs: Base=%s, URI=%v, Threshold=%.2f", baseURI, args["log_uri"], threshold)

	skip := func(o *analyzer.Options) { o.SkipTimelines = true }
	cur, _, err := a.analyze(ctx, args, skip)
	if err != nil {
		return nil, err
	}
	baseArgs := map[string]interface{}{"log_uri": baseURI, "config_path": args["config_path"]}
	base, _, err := a.analyze(ctx, baseArgs, skip)
	if err != nil {
		return nil, fmt.Errorf("baseline: %w", err)
	}

	report, err := analyzer.DetectRegressions(analyzer.ToProfile(base), analyzer.ToProfile(cur), threshold, int(limitFloat), outputFormat)
	if err != nil {
		return nil, err
	}
	return textResult(report), nil
}
