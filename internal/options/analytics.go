package options

import (
	"math"
	"sort"
)

// RiskLevel 风险等级
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

const (
	recommendStrikeBand = 0.2 // 行权价距现价 20% 以内
	recommendPoolSize   = 15
	poorRRThreshold     = -10.0
)

// EstimatedReturn 现价上涨 1% 时期权的估算收益率（百分比）
// ok=false 表示缺少 delta/mark/现价，无法估算
func EstimatedReturn(c OptionContract, spot float64) (pct float64, ok bool) {
	if spot <= 0 || c.MarkPrice <= 0 || c.Delta == 0 {
		return 0, false
	}
	change := c.Delta * (spot * 0.01)
	return change / c.MarkPrice * 100, true
}

// Risk |delta| 越小越偏虚值、风险越高；缺少 delta 时为 Medium
func Risk(c OptionContract) RiskLevel {
	if c.Delta == 0 {
		return RiskMedium
	}
	d := math.Abs(c.Delta)
	switch {
	case d < 0.3:
		return RiskHigh
	case d < 0.7:
		return RiskMedium
	default:
		return RiskLow
	}
}

// IntrinsicValue 内在价值
func IntrinsicValue(c OptionContract, spot float64) float64 {
	if c.Type == Put {
		return math.Max(0, c.Strike-spot)
	}
	return math.Max(0, spot-c.Strike)
}

// IsPoorRiskReward 时间价值占比明显高于 |delta| 时认为性价比差
// 缺少 delta 或标记价格时无法评估，按差处理
func IsPoorRiskReward(c OptionContract, spot float64) bool {
	if c.Delta == 0 || c.MarkPrice <= 0 {
		return true
	}
	timeValue := math.Max(0, c.MarkPrice-IntrinsicValue(c, spot))
	timeValPct := timeValue / c.MarkPrice * 100
	return math.Abs(c.Delta*100)-timeValPct < poorRRThreshold
}

// Recommend 从候选合约中挑选推荐：行权价在现价 20% 以内、性价比不差，按成交量降序，最多 limit 个
func Recommend(contracts []OptionContract, spot float64, limit int) []OptionContract {
	if spot <= 0 {
		return []OptionContract{}
	}
	pool := make([]OptionContract, 0, len(contracts))
	for _, c := range contracts {
		if math.Abs(c.Strike-spot)/spot >= recommendStrikeBand {
			continue
		}
		if IsPoorRiskReward(c, spot) {
			continue
		}
		pool = append(pool, c)
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Volume > pool[j].Volume })
	if len(pool) > recommendPoolSize {
		pool = pool[:recommendPoolSize]
	}
	if limit > 0 && len(pool) > limit {
		pool = pool[:limit]
	}
	return pool
}

// HeatmapIntensity 把 [0,1] 的强度映射到 0..10 的色阶
func HeatmapIntensity(v float64) int {
	if v < 0.05 || math.IsNaN(v) {
		return 0
	}
	if v < 0.1 {
		return 1
	}
	if v >= 0.9 {
		return 10
	}
	return int(v*10) + 1
}
