package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ZephyrDeng/devprof-analyzer-mcp/config"
	"github.com/ZephyrDeng/devprof-analyzer-mcp/metrics"
	"github.com/ZephyrDeng/devprof-analyzer-mcp/sink"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. 加载配置 (DEVPROF_CONFIG 或内置默认配置)
	cfg, err := config.Resolve("")
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	a := &app{cfg: cfg}

	// 2. 可选的指标服务
	if cfg.Metrics.Addr != "" {
		a.obs = metrics.NewPromObs()
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr); err != nil {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	// 3. 可选的数据库存储
	if cfg.Database.ConnString != "" {
		db, err := sink.Open(ctx, cfg.Database.ConnString)
		if err != nil {
			log.Fatalf("Database error: %v", err)
		}
		defer db.Close()
		pg := sink.NewPostgresSink(db, cfg.Database.Table)
		if err := pg.EnsureTable(ctx); err != nil {
			log.Fatalf("Database error: %v", err)
		}
		a.sink = pg
		log.Printf("Storing duration records in %s table %s", pg.Name(), cfg.Database.Table)
	}

	// 4. 设置信号处理程序以进行清理
	setupSignalHandler(cancel)

	log.Printf("Starting DevprofAnalyzer MCP server via stdio (%d analyses)...", len(cfg.Analyses))
	if err := server.ServeStdio(newMCPServer(a)); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// newMCPServer 注册所有工具。
func newMCPServer(a *app) *server.MCPServer {
	mcpServer := server.NewMCPServer(
		"DevprofAnalyzer",     // 服务器名称
		"0.2.0",               // 服务器版本
		server.WithLogging(),  // 启用日志记录
		server.WithRecovery(), // 启用 panic 恢复
	)

	logURIDesc := "设备 profiler 日志 (CSV) 的 URI (支持 'file://', 'http://', 'https://' 或本地路径)。"
	configDesc := "可选的 YAML 配置文件路径，覆盖服务器配置中的分析定义和展示设置。"

	analyzeTool := mcp.NewTool("analyze_device_log",
		mcp.WithDescription("分析设备 profiler 日志：按配置的分析定义计算各设备、位置、单元上的时长统计。"),
		mcp.WithString("log_uri", mcp.Description(logURIDesc), mcp.Required()),
		mcp.WithString("config_path", mcp.Description(configDesc)),
		mcp.WithString("output_format",
			mcp.Description("分析结果的输出格式。"),
			mcp.DefaultString("text"),
			mcp.Enum("text", "markdown", "json", "flamegraph-json", "csv"),
		),
		mcp.WithString("run_id",
			mcp.Description("配置了数据库时用于存储时长记录的运行 ID；省略时自动生成。"),
		),
	)

	timelineTool := mcp.NewTool("generate_timeline",
		mcp.WithDescription("对齐同一单元类型在各位置上的时间段，生成跨位置的时间线。"),
		mcp.WithString("log_uri", mcp.Description(logURIDesc), mcp.Required()),
		mcp.WithString("unit", mcp.Description("只对齐该单元类型 (例如 'BRISC')；省略时对齐配置中的全部单元。")),
		mcp.WithString("config_path", mcp.Description(configDesc)),
		mcp.WithString("output_format",
			mcp.Description("时间线的输出格式。"),
			mcp.DefaultString("text"),
			mcp.Enum("text", "markdown", "json"),
		),
	)

	exportTool := mcp.NewTool("export_pprof",
		mcp.WithDescription("将时长记录导出为 pprof 文件 (样本栈为 设备/位置/单元/分析)。"),
		mcp.WithString("log_uri", mcp.Description(logURIDesc), mcp.Required()),
		mcp.WithString("output_path", mcp.Description("pprof 文件的保存路径。"), mcp.Required()),
		mcp.WithString("config_path", mcp.Description(configDesc)),
	)

	flamegraphTool := mcp.NewTool("generate_flamegraph",
		mcp.WithDescription("使用 'go tool pprof' 生成时长记录的火焰图 (SVG 格式)。"),
		mcp.WithString("log_uri", mcp.Description(logURIDesc), mcp.Required()),
		mcp.WithString("output_svg_path",
			mcp.Description("生成的 SVG 火焰图文件的保存路径 (必须是绝对路径或相对于工作区的路径)。"),
			mcp.Required(),
		),
		mcp.WithString("config_path", mcp.Description(configDesc)),
	)

	openInteractiveTool := mcp.NewTool("open_interactive_pprof",
		mcp.WithDescription("在后台启动 'go tool pprof' 交互式 Web UI 浏览时长记录。成功启动后会返回进程 PID，用于后续断开连接。"),
		mcp.WithString("log_uri", mcp.Description(logURIDesc), mcp.Required()),
		mcp.WithString("http_address",
			mcp.Description("pprof Web UI 的监听地址和端口 (例如 ':8081')。如果省略，默认为 ':8081'。"),
		),
		mcp.WithString("config_path", mcp.Description(configDesc)),
	)

	disconnectTool := mcp.NewTool("disconnect_pprof_session",
		mcp.WithDescription("终止由 'open_interactive_pprof' 启动的后台 pprof 进程。"),
		mcp.WithNumber("pid", // JSON 数字解析为 float64
			mcp.Description("要终止的后台 pprof 进程的 PID (由 'open_interactive_pprof' 返回)。"),
			mcp.Required(),
		),
	)

	compareTool := mcp.NewTool("compare_device_logs",
		mcp.WithDescription("比较基线日志与当前日志，列出平均时长增长超过阈值的序列。"),
		mcp.WithString("base_log_uri", mcp.Description("基线日志的 URI。"), mcp.Required()),
		mcp.WithString("log_uri", mcp.Description(logURIDesc), mcp.Required()),
		mcp.WithNumber("threshold",
			mcp.Description("平均时长增长比例阈值 (0.1 表示 10%)。"),
			mcp.DefaultNumber(0.1),
		),
		mcp.WithNumber("limit",
			mcp.Description("返回结果的数量上限。"),
			mcp.DefaultNumber(10.0),
		),
		mcp.WithString("config_path", mcp.Description(configDesc)),
		mcp.WithString("output_format",
			mcp.Description("比较结果的输出格式。"),
			mcp.DefaultString("text"),
			mcp.Enum("text", "markdown", "json"),
		),
	)

	mcpServer.AddTool(analyzeTool, a.handleAnalyzeDeviceLog)
	mcpServer.AddTool(timelineTool, a.handleGenerateTimeline)
	mcpServer.AddTool(exportTool, a.handleExportPprof)
	mcpServer.AddTool(compareTool, a.handleCompareDeviceLogs)
	mcpServer.AddTool(flamegraphTool, a.handleGenerateFlamegraph)
	mcpServer.AddTool(openInteractiveTool, a.handleOpenInteractivePprof)
	mcpServer.AddTool(disconnectTool, handleDisconnectPprofSession)

	return mcpServer
}
