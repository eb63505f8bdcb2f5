package options

import (
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const expiryLayout = "2006-01-02"

// symbolPattern 匹配 BTC-30AUG24-60000-C 以及带结算币后缀的 BTC-30AUG24-60000-C-USDT
var symbolPattern = regexp.MustCompile(`^([A-Z0-9]+)-(\d{1,2}[A-Z]{3}\d{2})-(\d+(?:\.\d+)?)-([CP])(?:-[A-Z]+)?$`)

// symbolParts symbol 解析结果
type symbolParts struct {
	Base   string
	Date   string // 30AUG24
	Strike float64
	Type   OptionType
}

// parseSymbol 解析期权 symbol，不匹配时 ok=false
func parseSymbol(symbol string) (symbolParts, bool) {
	m := symbolPattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(symbol)))
	if m == nil {
		return symbolParts{}, false
	}
	p := symbolParts{Base: m[1], Date: m[2], Strike: toFloat(m[3]), Type: Call}
	if m[4] == "P" {
		p.Type = Put
	}
	return p, true
}

// toFloat 宽松数值转换：能解析的数字字符串返回其值，其余（空串、非数字、NaN/Inf）一律为 0
func toFloat(raw string) float64 {
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	if raw == "" {
		return 0
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0
	}
	f := d.InexactFloat64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// validStrike 行权价必须是有限正数
func validStrike(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

// resolveStrike 优先使用独立字段，其次从 symbol 提取
func resolveStrike(field string, parts symbolParts, parsed bool) float64 {
	if v := toFloat(field); validStrike(v) {
		return v
	}
	if parsed {
		return parts.Strike
	}
	return 0
}

// resolveType optionsType 优先，其次 symbol 后缀；都没有时返回空
func resolveType(optionsType string, parts symbolParts, parsed bool) OptionType {
	switch strings.ToLower(strings.TrimSpace(optionsType)) {
	case "call", "c":
		return Call
	case "put", "p":
		return Put
	}
	if parsed {
		return parts.Type
	}
	return ""
}

// resolveExpiry deliveryTime(ms) 优先，其次 symbol 中的日期；都无法得到时返回空
func resolveExpiry(deliveryTime string, parts symbolParts, parsed bool) string {
	if ms := toFloat(deliveryTime); ms > 0 {
		return time.UnixMilli(int64(ms)).UTC().Format(expiryLayout)
	}
	if parsed {
		if t, err := time.Parse("2Jan06", parts.Date); err == nil {
			return t.Format(expiryLayout)
		}
	}
	return ""
}
