package options

import "time"

// OptionType 期权类型
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// ExpiryAll 表示"不过滤到期日"
const ExpiryAll = "all"

// OptionContract 一个期权合约的标准化视图（由合约信息与 ticker 合并而来）
// 所有行情字段都保证是数值，缺失或无法解析时为 0
type OptionContract struct {
	Symbol          string     `json:"symbol"`
	Strike          float64    `json:"strike"`
	Type            OptionType `json:"type"`
	Expiry          string     `json:"expiry"` // YYYY-MM-DD (UTC)
	MarkPrice       float64    `json:"markPrice"`
	Bid             float64    `json:"bid"`
	Ask             float64    `json:"ask"`
	IV              float64    `json:"iv"`
	Delta           float64    `json:"delta"`
	Gamma           float64    `json:"gamma"`
	Theta           float64    `json:"theta"`
	Vega            float64    `json:"vega"`
	Volume          float64    `json:"volume"`
	OpenInterest    float64    `json:"openInterest"`
	UnderlyingPrice float64    `json:"underlyingPrice"`
}

// Snapshot 一次轮询的完整结果，生成后不再修改
type Snapshot struct {
	Calls       []OptionContract `json:"calls"`
	Puts        []OptionContract `json:"puts"`
	Expirations []string         `json:"expirations"`
	FetchedAt   time.Time        `json:"fetchedAt"`
}

// Clone 深拷贝，交给调用方的数据与内部状态互不影响
func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Calls:       append([]OptionContract(nil), s.Calls...),
		Puts:        append([]OptionContract(nil), s.Puts...),
		Expirations: append([]string(nil), s.Expirations...),
		FetchedAt:   s.FetchedAt,
	}
}

// Empty 是否没有任何合约
func (s Snapshot) Empty() bool {
	return len(s.Calls) == 0 && len(s.Puts) == 0
}

// FilterByExpiry 过滤出指定到期日的合约；expiry 为空或 ExpiryAll 时返回全部
func FilterByExpiry(contracts []OptionContract, expiry string) []OptionContract {
	if expiry == "" || expiry == ExpiryAll {
		return append([]OptionContract(nil), contracts...)
	}
	out := make([]OptionContract, 0, len(contracts))
	for _, c := range contracts {
		if c.Expiry == expiry {
			out = append(out, c)
		}
	}
	return out
}
