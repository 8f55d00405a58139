package analyzer

import (
	"fmt"
	"math"
	"strconv"

	"github.com/ZephyrDeng/devprof-analyzer-mcp/trace"
)

// FormatCycles 将周期数转换为带千位分隔符的字符串，例如 "1,234,567 cycles"。
// 注意：已导出 (首字母大写)。
func FormatCycles(v uint64) string {
	return groupThousands(strconv.FormatUint(v, 10)) + " cycles"
}

// FormatStat 按统计量类型格式化数值：Count 为整数，Average/Median 保留一位小数，其余为周期数。
func FormatStat(name string, v float64) string {
	switch name {
	case trace.StatCount:
		return fmt.Sprintf("%d", int64(v))
	case trace.StatAverage, trace.StatMedian:
		whole := uint64(v)
		frac := int((v-float64(whole))*10 + 0.5)
		if frac >= 10 {
			whole, frac = whole+1, 0
		}
		return fmt.Sprintf("%s.%d cycles", groupThousands(strconv.FormatUint(whole, 10)), frac)
	default:
		return FormatCycles(uint64(v))
	}
}

// FormatNumber 四舍五入到整数并加千位分隔符。
func FormatNumber(v float64) string {
	if v < 0 {
		return "-" + FormatNumber(-v)
	}
	return groupThousands(strconv.FormatUint(uint64(math.Round(v)), 10))
}

// FormatSpread 格式化 "中位数±半极差"；只有一个样本时省略半极差。
func FormatSpread(median float64, spread uint64, count int) string {
	if count <= 1 {
		return FormatNumber(median)
	}
	return fmt.Sprintf("%s±%s", FormatNumber(median), groupThousands(strconv.FormatUint(spread, 10)))
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	head := len(digits) % 3
	if head == 0 {
		head = 3
	}
	out := digits[:head]
	for i := head; i < len(digits); i += 3 {
		out += "," + digits[i:i+3]
	}
	return out
}
