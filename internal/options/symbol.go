package options

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeSymbol 由标的、到期日(YYYY-MM-DD)、行权价、类型构造交易所 symbol
// 例如 ("BTC", "2024-05-31", 60000, Call) -> BTC-31MAY24-60000-C
func ExchangeSymbol(base, expiry string, strike float64, typ OptionType) (string, error) {
	t, err := time.Parse(expiryLayout, expiry)
	if err != nil {
		return "", fmt.Errorf("到期日格式错误 %q: %w", expiry, err)
	}
	if !validStrike(strike) {
		return "", fmt.Errorf("行权价无效: %v", strike)
	}
	code := "C"
	switch typ {
	case Call:
	case Put:
		code = "P"
	default:
		return "", fmt.Errorf("未知期权类型: %q", typ)
	}
	date := fmt.Sprintf("%d%s%s", t.Day(), strings.ToUpper(t.Format("Jan")), t.Format("06"))
	return fmt.Sprintf("%s-%s-%s-%s", strings.ToUpper(base), date, decimal.NewFromFloat(strike).String(), code), nil
}

// BaseOf symbol 中的标的，例如 BTC-30AUG24-60000-C -> BTC
func BaseOf(symbol string) string {
	if i := strings.IndexByte(symbol, '-'); i > 0 {
		return strings.ToUpper(symbol[:i])
	}
	return strings.ToUpper(symbol)
}
