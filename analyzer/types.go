package analyzer

import "github.com/ZephyrDeng/devprof-analyzer-mcp/trace"

// --- JSON 输出结构体定义 ---

// ErrorResult 用于在 JSON 格式中返回错误信息
type ErrorResult struct {
	Error  string `json:"error"`
	Device int    `json:"device,omitempty"` // omitempty 如果为 0 则不输出
}

// Display 控制报告中展示哪些统计量以及 marker 的显示名称。
type Display struct {
	Stats        []string       // 为空时使用 DefaultDisplayStats
	MarkerLabels map[int]string // marker ID -> 显示名称
}

// DefaultDisplayStats 是未配置时展示的统计量。
var DefaultDisplayStats = []string{trace.StatCount, trace.StatAverage, trace.StatMax, trace.StatMin, trace.StatRange, trace.StatMedian}

func (d Display) stats() []string {
	if len(d.Stats) == 0 {
		return DefaultDisplayStats
	}
	return d.Stats
}

// AnalysisStat 代表某个分析在某个序列上的统计 (JSON)
type AnalysisStat struct {
	Name      string             `json:"name"`
	Scope     trace.Scope        `json:"scope"`
	Location  string             `json:"location"`           // "(x,y)" 或 "DEVICE"
	Unit      string             `json:"unit"`               // 单元名称或 "ALL"
	Stats     map[string]float64 `json:"stats"`              // 只包含 Display.Stats 中的统计量
	Duration  *uint64            `json:"duration,omitempty"` // 仅当 Count == 1 时输出
	Formatted map[string]string  `json:"formatted"`          // 格式化后的值 (e.g., "1,234 cycles")
	Summary   *trace.StatSummary `json:"summary"`            // 完整统计
}

// LocationSpread 代表某个分析在各位置上的中位数 ± 半极差 (JSON)
type LocationSpread struct {
	Location string  `json:"location"`
	Unit     string  `json:"unit"`
	Count    int     `json:"count"`
	Median   float64 `json:"median"`
	Spread   uint64  `json:"spread"` // (Max - Min) / 2
}

// DeviceReport 代表单个设备的分析结果 (JSON)
type DeviceReport struct {
	Device         int                           `json:"device"`
	Origin         trace.Origin                  `json:"origin"`
	Locations      int                           `json:"locations"`
	Summary        map[string]*trace.StatSummary `json:"summary"`           // 设备级汇总，按分析名称
	Analyses       []AnalysisStat                `json:"analyses"`          // 每个匹配到的序列
	Spreads        map[string][]LocationSpread   `json:"spreads,omitempty"` // 按分析名称
	Timelines      []TimelineSummary             `json:"timelines,omitempty"`
	TimelineErrors map[string]string             `json:"timelineErrors,omitempty"`
}

// TimelineSummary 代表时间线的概要 (JSON)
type TimelineSummary struct {
	Unit      string `json:"unit"`
	Locations int    `json:"locations"`
	Columns   int    `json:"columns"`
}

// AnalysisReport 代表整个日志的分析结果 (JSON)
type AnalysisReport struct {
	Analyses     []string       `json:"analyses"`     // 分析名称，按配置顺序
	DisplayStats []string       `json:"displayStats"` // 展示的统计量
	Devices      []DeviceReport `json:"devices"`
}

// TimelineColumnReport 代表时间线中的一列 (JSON)
type TimelineColumnReport struct {
	Label  string   `json:"label"`  // 带显示名称的持续时间类型
	Values []uint64 `json:"values"` // 与 TimelineReportEntry.Locations 平行，未参与为 0
}

// TimelineReportEntry 代表一个设备上一个单元类型的时间线 (JSON)
type TimelineReportEntry struct {
	Device    int                    `json:"device"`
	Unit      string                 `json:"unit"`
	Locations []string               `json:"locations"`
	Columns   []TimelineColumnReport `json:"columns"`
}

// FlameGraphNode 代表火焰图中的一个节点 (JSON)
// 用于生成层级化的 JSON 数据，适合 d3-flame-graph 等库使用
type FlameGraphNode struct {
	Name     string            `json:"name"`               // 设备、位置、单元或分析名称
	Value    int64             `json:"value"`              // 该节点及其子节点的总值
	Children []*FlameGraphNode `json:"children,omitempty"` // 子节点列表
}
